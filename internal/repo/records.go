package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ccsa/internal/kernel"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// tsLayout — формат created_at/updated_at; лексикографически сортируем.
const tsLayout = "2006-01-02T15:04:05.000000Z"

// RecordStore — kernel.Store поверх gorm. Каждый ResourceType — своя таблица.
type RecordStore struct {
	db *gorm.DB
}

var _ kernel.Store = (*RecordStore)(nil)

// NewRecordStore создаёт хранилище записей.
func NewRecordStore(db *gorm.DB) *RecordStore {
	return &RecordStore{db: db}
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func columnType(f kernel.Field) string {
	switch f.Kind {
	case kernel.Integer, kernel.Ref:
		return "INTEGER"
	case kernel.Boolean:
		return "INTEGER NOT NULL DEFAULT 0"
	case kernel.Refs:
		return "TEXT NOT NULL DEFAULT '[]'"
	}
	return "TEXT NOT NULL DEFAULT ''"
}

// Migrate создаёт таблицу, недостающие колонки и уникальные индексы.
func (s *RecordStore) Migrate(ctx context.Context, rt *kernel.ResourceType) error {
	db := s.db.WithContext(ctx)

	cols := []string{
		`"id" INTEGER PRIMARY KEY AUTOINCREMENT`,
		`"created_at" TEXT NOT NULL`,
		`"updated_at" TEXT NOT NULL`,
	}
	for _, f := range rt.Fields {
		cols = append(cols, quote(f.Name)+" "+columnType(f))
	}
	for _, sl := range rt.Slots {
		cols = append(cols, quote(sl.Name)+" TEXT NOT NULL DEFAULT ''")
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(rt.Table), strings.Join(cols, ", "))
	if err := db.Exec(ddl).Error; err != nil {
		return fmt.Errorf("create table %s: %w", rt.Table, err)
	}

	var existing []string
	if err := db.Raw("SELECT name FROM pragma_table_info(?)", rt.Table).Scan(&existing).Error; err != nil {
		return fmt.Errorf("inspect %s: %w", rt.Table, err)
	}
	have := map[string]bool{}
	for _, c := range existing {
		have[c] = true
	}
	for _, f := range rt.Fields {
		if !have[f.Name] {
			if err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quote(rt.Table), quote(f.Name), columnType(f))).Error; err != nil {
				return fmt.Errorf("add column %s.%s: %w", rt.Table, f.Name, err)
			}
		}
	}
	for _, sl := range rt.Slots {
		if !have[sl.Name] {
			if err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT NOT NULL DEFAULT ''", quote(rt.Table), quote(sl.Name))).Error; err != nil {
				return fmt.Errorf("add column %s.%s: %w", rt.Table, sl.Name, err)
			}
		}
	}

	for _, set := range rt.UniqueSets() {
		quoted := make([]string, len(set))
		for i, c := range set {
			quoted[i] = quote(c)
		}
		idx := "ux_" + rt.Table + "_" + strings.Join(set, "_")
		stmt := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)", quote(idx), quote(rt.Table), strings.Join(quoted, ", "))
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index %s: %w", idx, err)
		}
	}
	return nil
}

// WithTx выполняет fn в транзакции; fn получает хранилище, привязанное к ней.
func (s *RecordStore) WithTx(ctx context.Context, fn func(tx kernel.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&RecordStore{db: tx})
	})
}

func encodeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case []int64:
		if x == nil {
			x = []int64{}
		}
		raw, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return datatypes.JSON(raw), nil
	case int:
		return int64(x), nil
	}
	return v, nil
}

// row собирает колонки в фиксированном порядке описания.
func (s *RecordStore) row(rt *kernel.ResourceType, rec *kernel.Record) ([]string, []any, error) {
	cols := []string{"created_at", "updated_at"}
	vals := []any{rec.CreatedAt.UTC().Format(tsLayout), rec.UpdatedAt.UTC().Format(tsLayout)}
	for _, f := range rt.Fields {
		v := rec.Fields[f.Name]
		if v == nil {
			switch f.Kind {
			case kernel.Integer, kernel.Ref:
			case kernel.Boolean:
				v = false
			case kernel.Refs:
				v = []int64{}
			default:
				v = ""
			}
		}
		enc, err := encodeValue(v)
		if err != nil {
			return nil, nil, fmt.Errorf("encode %s: %w", f.Name, err)
		}
		cols = append(cols, f.Name)
		vals = append(vals, enc)
	}
	for _, sl := range rt.Slots {
		cols = append(cols, sl.Name)
		vals = append(vals, rec.Attachments[sl.Name])
	}
	return cols, vals, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", kernel.ErrUniqueConstraint, err)
	}
	return err
}

// Insert вставляет строку; при rec.ID != 0 использует этот ключ.
func (s *RecordStore) Insert(ctx context.Context, rt *kernel.ResourceType, rec *kernel.Record) (int64, error) {
	cols, vals, err := s.row(rt, rec)
	if err != nil {
		return 0, err
	}
	if rec.ID != 0 {
		cols = append([]string{"id"}, cols...)
		vals = append([]any{rec.ID}, vals...)
	}
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
		marks[i] = "?"
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING \"id\"",
		quote(rt.Table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	var id int64
	if err := s.db.WithContext(ctx).Raw(stmt, vals...).Scan(&id).Error; err != nil {
		return 0, mapErr(err)
	}
	return id, nil
}

// Update переписывает все колонки строки rec.ID.
func (s *RecordStore) Update(ctx context.Context, rt *kernel.ResourceType, rec *kernel.Record) error {
	cols, vals, err := s.row(rt, rec)
	if err != nil {
		return err
	}
	// created_at не меняется
	cols, vals = cols[1:], vals[1:]
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = quote(c) + " = ?"
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE \"id\" = ?", quote(rt.Table), strings.Join(sets, ", "))
	res := s.db.WithContext(ctx).Exec(stmt, append(vals, rec.ID)...)
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return kernel.ErrNotFound
	}
	return nil
}

// Delete удаляет строку.
func (s *RecordStore) Delete(ctx context.Context, rt *kernel.ResourceType, id int64) error {
	res := s.db.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s WHERE \"id\" = ?", quote(rt.Table)), id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return kernel.ErrNotFound
	}
	return nil
}

// Get читает строку по id.
func (s *RecordStore) Get(ctx context.Context, rt *kernel.ResourceType, id int64) (*kernel.Record, error) {
	recs, err := s.Find(ctx, rt, kernel.Query{
		Filters: []kernel.Filter{{Field: "id", Op: "=", Value: id}},
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, kernel.ErrNotFound
	}
	return recs[0], nil
}

func (s *RecordStore) scoped(ctx context.Context, rt *kernel.ResourceType, filters []kernel.Filter) (*gorm.DB, error) {
	q := s.db.WithContext(ctx).Table(rt.Table)
	for _, f := range filters {
		if !rt.Column(f.Field) || !kernel.ValidOp(f.Op) {
			return nil, fmt.Errorf("invalid filter %s %s", f.Field, f.Op)
		}
		v, err := encodeValue(f.Value)
		if err != nil {
			return nil, err
		}
		if v == nil {
			switch f.Op {
			case "=":
				q = q.Where(quote(f.Field) + " IS NULL")
			case "!=":
				q = q.Where(quote(f.Field) + " IS NOT NULL")
			default:
				return nil, fmt.Errorf("invalid null comparison on %s", f.Field)
			}
			continue
		}
		q = q.Where(fmt.Sprintf("%s %s ?", quote(f.Field), f.Op), v)
	}
	return q, nil
}

// Find выбирает строки; к порядку всегда добавляется id для стабильности.
func (s *RecordStore) Find(ctx context.Context, rt *kernel.ResourceType, query kernel.Query) ([]*kernel.Record, error) {
	q, err := s.scoped(ctx, rt, query.Filters)
	if err != nil {
		return nil, err
	}
	idOrdered := false
	for _, o := range query.Order {
		if !rt.Column(o.Field) {
			return nil, fmt.Errorf("invalid order %s", o.Field)
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		q = q.Order(quote(o.Field) + " " + dir)
		if o.Field == "id" {
			idOrdered = true
		}
	}
	if !idOrdered {
		q = q.Order(`"id" ASC`)
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}
	if query.Offset > 0 {
		q = q.Offset(query.Offset)
	}

	var rows []map[string]any
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*kernel.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := decodeRow(rt, row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Count считает строки по фильтрам.
func (s *RecordStore) Count(ctx context.Context, rt *kernel.ResourceType, filters []kernel.Filter) (int64, error) {
	q, err := s.scoped(ctx, rt, filters)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func decodeRow(rt *kernel.ResourceType, row map[string]any) (*kernel.Record, error) {
	id, ok := toInt64(row["id"])
	if !ok {
		return nil, errors.New("row without id")
	}
	rec := &kernel.Record{
		ID:          id,
		Type:        rt.Name,
		Fields:      make(map[string]any, len(rt.Fields)),
		Attachments: make(map[string]string, len(rt.Slots)),
	}
	rec.CreatedAt, _ = time.Parse(tsLayout, toString(row["created_at"]))
	rec.UpdatedAt, _ = time.Parse(tsLayout, toString(row["updated_at"]))

	for _, f := range rt.Fields {
		v := row[f.Name]
		switch f.Kind {
		case kernel.Integer, kernel.Ref:
			if n, ok := toInt64(v); ok {
				rec.Fields[f.Name] = n
			} else {
				rec.Fields[f.Name] = nil
			}
		case kernel.Boolean:
			n, _ := toInt64(v)
			rec.Fields[f.Name] = n != 0
		case kernel.Refs:
			var j datatypes.JSON
			ids := []int64{}
			if v != nil {
				if err := j.Scan(toBytes(v)); err != nil {
					return nil, fmt.Errorf("decode %s: %w", f.Name, err)
				}
				if len(j) > 0 {
					if err := json.Unmarshal(j, &ids); err != nil {
						return nil, fmt.Errorf("decode %s: %w", f.Name, err)
					}
				}
			}
			rec.Fields[f.Name] = ids
		default:
			rec.Fields[f.Name] = toString(v)
		}
	}
	for _, sl := range rt.Slots {
		rec.Attachments[sl.Name] = toString(row[sl.Name])
	}
	return rec, nil
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case float64:
		return int64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case []byte:
		n, err := strconv.ParseInt(string(x), 10, 64)
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(tsLayout)
	}
	return fmt.Sprint(v)
}

func toBytes(v any) []byte {
	switch x := v.(type) {
	case []byte:
		return x
	case string:
		return []byte(x)
	}
	return []byte(fmt.Sprint(v))
}
