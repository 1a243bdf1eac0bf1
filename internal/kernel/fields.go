package kernel

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"ccsa/internal/slug"
	"ccsa/internal/validate"
)

// defaultMax — длины по умолчанию для строковых типов без явного Max.
var defaultMax = map[FieldKind]int{
	Email: 254,
	URL:   200,
	Slug:  50,
}

// parseValue приводит сырое значение формы к типу поля.
// Пустая строка означает «нет значения».
func parseValue(f Field, raw string) (any, error) {
	if f.Kind != LongText {
		raw = strings.TrimSpace(raw)
	}
	max := f.Max
	if max == 0 {
		max = defaultMax[f.Kind]
	}

	switch f.Kind {
	case Text, LongText:
		if err := validate.Text(raw, max, false); err != nil {
			return nil, err
		}
		if f.Upper {
			raw = strings.ToUpper(raw)
		}
		return raw, nil
	case Email:
		if raw == "" {
			return "", nil
		}
		if err := validate.Email(raw); err != nil {
			return nil, err
		}
		return raw, validate.Text(raw, max, false)
	case URL:
		if raw == "" {
			return "", nil
		}
		if err := validate.URL(raw); err != nil {
			return nil, err
		}
		return raw, validate.Text(raw, max, false)
	case Slug:
		if raw == "" {
			return "", nil
		}
		if !slug.Valid(raw) {
			return nil, errors.New("Ce champ ne doit contenir que des lettres minuscules non accentuées, des chiffres, des tirets bas et des traits d'union.")
		}
		return raw, validate.Text(raw, max, false)
	case Enum:
		if raw == "" {
			return "", nil
		}
		return raw, validate.Enum(raw, f.Choices)
	case Integer, Ref:
		if raw == "" {
			return nil, nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			if f.Kind == Ref {
				return nil, validate.ErrChoice
			}
			return nil, validate.ErrInteger
		}
		return n, nil
	case Boolean:
		switch strings.ToLower(raw) {
		case "", "false", "off", "0", "no", "non":
			return false, nil
		case "true", "on", "1", "yes", "oui":
			return true, nil
		}
		return nil, validate.ErrBoolean
	case Date:
		if raw == "" {
			return "", nil
		}
		t, err := validate.Date(raw)
		if err != nil {
			return nil, err
		}
		return t.Format(validate.DateLayout), nil
	case Time:
		if raw == "" {
			return "", nil
		}
		t, err := validate.Time(raw)
		if err != nil {
			return nil, err
		}
		return t.Format(validate.TimeLayout), nil
	case DateTime:
		if raw == "" {
			return "", nil
		}
		t, err := validate.DateTime(raw)
		if err != nil {
			return nil, err
		}
		return t.UTC().Format(validate.DateTimeLayout), nil
	case Refs:
		ids := []int64{}
		seen := map[int64]bool{}
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, validate.ErrChoice
			}
			if !seen[n] {
				seen[n] = true
				ids = append(ids, n)
			}
		}
		return ids, nil
	}
	return nil, errors.New("type de champ inconnu")
}

// isEmpty — «пусто» для проверки обязательности.
func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []int64:
		return len(x) == 0
	}
	return false
}

// defaultValue — значение по умолчанию для отсутствующего поля при создании.
func defaultValue(f Field) any {
	if f.Default != nil {
		switch d := f.Default.(type) {
		case int:
			return int64(d)
		case []int64:
			return append([]int64(nil), d...)
		}
		return f.Default
	}
	switch f.Kind {
	case Boolean:
		return false
	case Integer, Ref:
		return nil
	case Refs:
		return []int64{}
	}
	return ""
}

// assemble разбирает вход и сливает его с base (nil при создании).
// При создании отсутствующие поля получают значения по умолчанию;
// при обновлении меняются только переданные ключи.
func (k *Kernel) assemble(ctx context.Context, rt *ResourceType, values map[string]string, base map[string]any) (map[string]any, *ValidationError) {
	verr := &ValidationError{}
	fields := make(map[string]any, len(rt.Fields))
	for name, v := range base {
		fields[name] = v
	}

	for _, f := range rt.Fields {
		raw, provided := values[f.Name]
		if !provided {
			if base == nil {
				fields[f.Name] = defaultValue(f)
			}
			continue
		}
		v, err := parseValue(f, raw)
		if err != nil {
			verr.add(f.Name, err.Error())
			continue
		}
		if isEmpty(v) && f.Default != nil && base == nil {
			v = defaultValue(f)
		}
		fields[f.Name] = v
	}
	if !verr.empty() {
		return nil, verr
	}

	// производные поля
	for _, f := range rt.Fields {
		if f.Upper {
			if s, ok := fields[f.Name].(string); ok {
				fields[f.Name] = strings.ToUpper(s)
			}
		}
	}
	if rt.SlugField != "" && isEmpty(fields[rt.SlugField]) {
		src, _ := fields[rt.SlugFrom].(string)
		f, _ := rt.Field(rt.SlugField)
		max := f.Max
		if max == 0 {
			max = defaultMax[Slug]
		}
		fields[rt.SlugField] = slug.Make(src, max)
	}
	if rt.Normalize != nil {
		rt.Normalize(fields)
	}

	for _, f := range rt.Fields {
		if f.Required && isEmpty(fields[f.Name]) {
			verr.add(f.Name, validate.ErrRequired.Error())
		}
	}
	if rt.Check != nil {
		for field, reason := range rt.Check(fields) {
			verr.add(field, reason)
		}
	}
	if !verr.empty() {
		return nil, verr
	}

	// ссылки должны указывать на существующие записи
	for _, f := range rt.Fields {
		switch f.Kind {
		case Ref:
			id, ok := fields[f.Name].(int64)
			if !ok {
				continue
			}
			if !k.exists(ctx, f.RefType, id) {
				verr.add(f.Name, validate.ErrChoice.Error())
			}
		case Refs:
			ids, _ := fields[f.Name].([]int64)
			for _, id := range ids {
				if !k.exists(ctx, f.RefType, id) {
					verr.add(f.Name, validate.ErrChoice.Error())
					break
				}
			}
		}
	}
	if !verr.empty() {
		return nil, verr
	}
	return fields, nil
}

func (k *Kernel) exists(ctx context.Context, typeName string, id int64) bool {
	target, ok := k.types[typeName]
	if !ok {
		return false
	}
	_, err := k.store.Get(ctx, target, id)
	return err == nil
}

// checkUploads проверяет расширение, размер и обязательность слотов.
func (k *Kernel) checkUploads(rt *ResourceType, in Input, existing *Record) *ValidationError {
	verr := &ValidationError{}
	for name := range in.Files {
		if _, ok := rt.Slot(name); !ok {
			verr.add(name, "Emplacement de fichier inconnu.")
		}
	}
	cleared := map[string]bool{}
	for _, name := range in.Clear {
		cleared[name] = true
	}
	for _, s := range rt.Slots {
		up, has := in.Files[s.Name]
		if has {
			if err := validate.Extension(up.Filename, s.Extensions); err != nil {
				verr.add(s.Name, err.Error())
				continue
			}
			if err := validate.Size(up.Size, k.slotMax(s)); err != nil {
				verr.add(s.Name, err.Error())
				continue
			}
			if up.Content == nil {
				verr.add(s.Name, "Aucun fichier n'a été soumis.")
			}
			continue
		}
		if !s.Required {
			continue
		}
		switch {
		case existing == nil:
			verr.add(s.Name, validate.ErrRequired.Error())
		case cleared[s.Name] || existing.Attachments[s.Name] == "":
			verr.add(s.Name, validate.ErrRequired.Error())
		}
	}
	if verr.empty() {
		return nil
	}
	return verr
}

func (k *Kernel) slotMax(s Slot) int64 {
	if s.MaxSize > 0 {
		return s.MaxSize
	}
	return k.maxSize
}
