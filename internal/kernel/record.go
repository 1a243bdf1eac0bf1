package kernel

import (
	"context"
	"io"
	"time"

	"ccsa/internal/validate"
)

// Record — сохранённая запись ресурса с вложениями.
// Значения полей: string (text, enum, email, url, slug, date "2006-01-02",
// time "15:04", datetime RFC 3339 UTC), int64 (integer, ref), bool,
// []int64 (refs) или nil.
type Record struct {
	ID          int64             `json:"id"`
	Type        string            `json:"type"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Fields      map[string]any    `json:"fields"`
	Attachments map[string]string `json:"attachments"`
}

// String возвращает текстовое значение поля.
func (r *Record) String(name string) string {
	s, _ := r.Fields[name].(string)
	return s
}

// Int возвращает целое значение поля (0, если пусто).
func (r *Record) Int(name string) int64 {
	n, _ := r.Fields[name].(int64)
	return n
}

// RefID возвращает ссылку и признак её наличия.
func (r *Record) RefID(name string) (int64, bool) {
	n, ok := r.Fields[name].(int64)
	return n, ok
}

// Bool возвращает логическое значение поля.
func (r *Record) Bool(name string) bool {
	b, _ := r.Fields[name].(bool)
	return b
}

// IDs возвращает список ссылок many-to-many.
func (r *Record) IDs(name string) []int64 {
	ids, _ := r.Fields[name].([]int64)
	return ids
}

// Date разбирает поле-дату; нулевое время, если пусто.
func (r *Record) Date(name string) time.Time {
	t, err := time.Parse(validate.DateLayout, r.String(name))
	if err != nil {
		return time.Time{}
	}
	return t
}

// DateTime разбирает поле даты-времени.
func (r *Record) DateTime(name string) time.Time {
	t, err := time.Parse(time.RFC3339, r.String(name))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Attachment возвращает относительный путь вложения слота.
func (r *Record) Attachment(slot string) string {
	return r.Attachments[slot]
}

func (r *Record) clone() *Record {
	c := &Record{
		ID:          r.ID,
		Type:        r.Type,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Fields:      make(map[string]any, len(r.Fields)),
		Attachments: make(map[string]string, len(r.Attachments)),
	}
	for k, v := range r.Fields {
		if ids, ok := v.([]int64); ok {
			v = append([]int64(nil), ids...)
		}
		c.Fields[k] = v
	}
	for k, v := range r.Attachments {
		c.Attachments[k] = v
	}
	return c
}

// Upload — входящий файл для слота.
type Upload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// Input — сырые значения формы. Values для refs — id через запятую.
// Clear перечисляет слоты, которые нужно очистить при обновлении.
type Input struct {
	Values map[string]string
	Files  map[string]Upload
	Clear  []string
}

// Mutation — результат изменения: запись и ожидавшиеся, но
// отсутствовавшие на диске старые файлы.
type Mutation struct {
	Record       *Record
	MissingFiles []string
}

// Filter — условие выборки.
type Filter struct {
	Field string
	Op    string
	Value any
}

// Query — выборка для Store.Find.
type Query struct {
	Filters []Filter
	Order   []Order
	Limit   int
	Offset  int
}

// Store — хранилище строк ресурсов. Реализация обязана сериализовать запись.
type Store interface {
	Migrate(ctx context.Context, rt *ResourceType) error
	WithTx(ctx context.Context, fn func(tx Store) error) error
	Insert(ctx context.Context, rt *ResourceType, rec *Record) (int64, error)
	Update(ctx context.Context, rt *ResourceType, rec *Record) error
	Delete(ctx context.Context, rt *ResourceType, id int64) error
	Get(ctx context.Context, rt *ResourceType, id int64) (*Record, error)
	Find(ctx context.Context, rt *ResourceType, q Query) ([]*Record, error)
	Count(ctx context.Context, rt *ResourceType, filters []Filter) (int64, error)
}

// ValidOp — допустимые операторы фильтра.
func ValidOp(op string) bool {
	switch op {
	case "=", "!=", "<", "<=", ">", ">=":
		return true
	}
	return false
}
