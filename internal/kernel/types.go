package kernel

import (
	"fmt"
)

// FieldKind — семантический тип скалярного поля.
type FieldKind int

const (
	Text FieldKind = iota
	LongText
	Integer
	Boolean
	Date
	DateTime
	Time
	Enum
	Email
	URL
	Slug
	Ref
	Refs
)

func (k FieldKind) String() string {
	switch k {
	case Text:
		return "text"
	case LongText:
		return "longtext"
	case Integer:
		return "integer"
	case Boolean:
		return "boolean"
	case Date:
		return "date"
	case DateTime:
		return "datetime"
	case Time:
		return "time"
	case Enum:
		return "enum"
	case Email:
		return "email"
	case URL:
		return "url"
	case Slug:
		return "slug"
	case Ref:
		return "ref"
	case Refs:
		return "refs"
	}
	return "unknown"
}

// OnDelete — поведение ссылки при удалении целевой записи.
type OnDelete int

const (
	Cascade OnDelete = iota
	SetNull
)

// Field описывает скалярное поле ресурса.
type Field struct {
	Name     string
	Label    string
	Kind     FieldKind
	Max      int
	Required bool
	Unique   bool
	// Choices — допустимые метки для Enum.
	Choices []string
	// Default подставляется при создании, если значение не передано.
	Default any
	// Upper — хранить в верхнем регистре.
	Upper bool
	// RefType — целевой тип для Ref/Refs.
	RefType  string
	OnDelete OnDelete
}

// Slot — именованное вложение.
type Slot struct {
	Name string
	// Dir — подкаталог под StorageRoot.
	Dir string
	// Extensions — белый список расширений; пустой означает «любое».
	Extensions []string
	// MaxSize 0 — используется лимит ядра.
	MaxSize  int64
	Required bool
}

// Cardinality: Many или Singleton (не более одной записи).
type Cardinality int

const (
	Many Cardinality = iota
	Singleton
)

// Order — элемент сортировки.
type Order struct {
	Field string
	Desc  bool
}

// ResourceType — схема и политика одного семейства записей.
type ResourceType struct {
	Name        string
	Label       string
	Table       string
	Fields      []Field
	Slots       []Slot
	Cardinality Cardinality
	// FixedID — неизменяемый первичный ключ синглтона (0 — автоинкремент).
	FixedID int64
	// SlugField выводится из SlugFrom, если пуст.
	SlugField string
	SlugFrom  string
	// Unique — составные ограничения уникальности.
	Unique [][]string
	// Ordering — порядок списка по умолчанию.
	Ordering []Order
	// Normalize вызывается после разбора полей, до проверки обязательности.
	Normalize func(fields map[string]any)
	// Check — межполевые проверки; возвращает поле → причина.
	Check func(fields map[string]any) map[string]string
}

// Field возвращает описание поля по имени.
func (rt *ResourceType) Field(name string) (Field, bool) {
	for _, f := range rt.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Slot возвращает описание слота по имени.
func (rt *ResourceType) Slot(name string) (Slot, bool) {
	for _, s := range rt.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return Slot{}, false
}

// UniqueSets — все ограничения уникальности, включая одиночные Field.Unique.
func (rt *ResourceType) UniqueSets() [][]string {
	sets := make([][]string, 0, len(rt.Unique)+1)
	for _, f := range rt.Fields {
		if f.Unique {
			sets = append(sets, []string{f.Name})
		}
	}
	return append(sets, rt.Unique...)
}

// Column сообщает, является ли имя колонкой таблицы ресурса.
func (rt *ResourceType) Column(name string) bool {
	switch name {
	case "id", "created_at", "updated_at":
		return true
	}
	if _, ok := rt.Field(name); ok {
		return true
	}
	_, ok := rt.Slot(name)
	return ok
}

func (rt *ResourceType) validate() error {
	if rt.Name == "" || rt.Table == "" {
		return fmt.Errorf("resource type: name and table are required")
	}
	seen := map[string]bool{"id": true, "created_at": true, "updated_at": true}
	for _, f := range rt.Fields {
		if seen[f.Name] || f.Name == "" {
			return fmt.Errorf("resource %s: duplicate or empty column %q", rt.Name, f.Name)
		}
		seen[f.Name] = true
		if f.Kind == Enum && len(f.Choices) == 0 {
			return fmt.Errorf("resource %s: enum %s without choices", rt.Name, f.Name)
		}
		if (f.Kind == Ref || f.Kind == Refs) && f.RefType == "" {
			return fmt.Errorf("resource %s: reference %s without target", rt.Name, f.Name)
		}
	}
	for _, s := range rt.Slots {
		if seen[s.Name] || s.Name == "" {
			return fmt.Errorf("resource %s: duplicate or empty column %q", rt.Name, s.Name)
		}
		seen[s.Name] = true
		if s.Dir == "" {
			return fmt.Errorf("resource %s: slot %s without directory", rt.Name, s.Name)
		}
	}
	if rt.SlugField != "" {
		if f, ok := rt.Field(rt.SlugField); !ok || f.Kind != Slug {
			return fmt.Errorf("resource %s: slug field %s must be a slug", rt.Name, rt.SlugField)
		}
		if _, ok := rt.Field(rt.SlugFrom); !ok {
			return fmt.Errorf("resource %s: slug source %s is unknown", rt.Name, rt.SlugFrom)
		}
	}
	for _, set := range rt.Unique {
		for _, name := range set {
			if _, ok := rt.Field(name); !ok {
				return fmt.Errorf("resource %s: unique on unknown field %s", rt.Name, name)
			}
		}
	}
	for _, o := range rt.Ordering {
		if !rt.Column(o.Field) {
			return fmt.Errorf("resource %s: ordering on unknown column %s", rt.Name, o.Field)
		}
	}
	if rt.FixedID != 0 && rt.Cardinality != Singleton {
		return fmt.Errorf("resource %s: fixed id requires singleton cardinality", rt.Name)
	}
	return nil
}
