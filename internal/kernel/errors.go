package kernel

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound — записи с таким id нет.
	ErrNotFound = errors.New("record not found")
	// ErrForbidden — у принципала нет нужного права.
	ErrForbidden = errors.New("forbidden")
	// ErrUnknownType — тип ресурса не зарегистрирован.
	ErrUnknownType = errors.New("unknown resource type")
	// ErrUniqueConstraint возвращает Store, когда сработал уникальный индекс БД.
	ErrUniqueConstraint = errors.New("unique constraint failed")
)

// ValidationError — поле (или слот) → причина на французском.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, reason string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = reason
	}
}

func (e *ValidationError) empty() bool { return len(e.Fields) == 0 }

// UniqueViolation — нарушено ограничение уникальности.
type UniqueViolation struct {
	Type   string
	Fields []string
}

func (e *UniqueViolation) Error() string {
	return fmt.Sprintf("unique violation on %s(%s)", e.Type, strings.Join(e.Fields, ", "))
}

// Message — текст для пользователя.
func (e *UniqueViolation) Message() string {
	if len(e.Fields) == 1 {
		return fmt.Sprintf("Un enregistrement avec cette valeur de « %s » existe déjà.", e.Fields[0])
	}
	return fmt.Sprintf("Un enregistrement avec ces valeurs (%s) existe déjà.", strings.Join(e.Fields, ", "))
}

// AttachmentIOError — не удалось записать новое вложение; операция откатана.
type AttachmentIOError struct {
	Slot string
	Err  error
}

func (e *AttachmentIOError) Error() string {
	return fmt.Sprintf("attachment %s: %v", e.Slot, e.Err)
}

func (e *AttachmentIOError) Unwrap() error { return e.Err }
