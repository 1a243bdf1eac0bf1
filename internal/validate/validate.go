// Package validate — проверки полей и файлов. Сообщения об ошибках на
// французском: они уходят пользователю как есть.
package validate

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxSize — лимит размера файла по умолчанию (60 Мо).
const DefaultMaxSize int64 = 60 * 1024 * 1024

// Форматы сериализации дат на проводе.
const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04"
	DateTimeLayout = time.RFC3339
)

var (
	ErrRequired = errors.New("Ce champ est obligatoire.")
	ErrEmail    = errors.New("Saisissez une adresse e-mail valide.")
	ErrURL      = errors.New("Saisissez une URL valide.")
	ErrDate     = errors.New("Saisissez une date valide.")
	ErrTime     = errors.New("Saisissez une heure valide.")
	ErrDateTime = errors.New("Saisissez une date et une heure valides.")
	ErrInteger  = errors.New("Saisissez un nombre entier.")
	ErrBoolean  = errors.New("Saisissez une valeur booléenne.")
	ErrChoice   = errors.New("Sélectionnez un choix valide.")
)

// Text проверяет длину (в символах) и непустоту.
func Text(value string, max int, required bool) error {
	if strings.TrimSpace(value) == "" {
		if required {
			return ErrRequired
		}
		return nil
	}
	if max > 0 && utf8.RuneCountInString(value) > max {
		return fmt.Errorf("Assurez-vous que cette valeur comporte au plus %d caractères (actuellement %d).", max, utf8.RuneCountInString(value))
	}
	return nil
}

// MinLength проверяет минимальную длину текста.
func MinLength(value string, min int) error {
	if utf8.RuneCountInString(strings.TrimSpace(value)) < min {
		return fmt.Errorf("Assurez-vous que cette valeur comporte au moins %d caractères.", min)
	}
	return nil
}

// Email — синтаксическая проверка адреса, без DNS и без display-name.
func Email(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return ErrEmail
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value || addr.Name != "" {
		return ErrEmail
	}
	at := strings.LastIndexByte(value, '@')
	if at <= 0 || !strings.Contains(value[at+1:], ".") {
		return ErrEmail
	}
	return nil
}

// PhoneDigits убирает пробелы, дефисы и точки.
func PhoneDigits(value string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '\t':
			return -1
		}
		return r
	}, value)
}

// Phone — только цифры после очистки; minDigits=0 отключает проверку длины.
func Phone(value string, minDigits int) error {
	digits := PhoneDigits(value)
	if digits == "" {
		return errors.New("Le numéro de téléphone ne doit contenir que des chiffres.")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return errors.New("Le numéro de téléphone ne doit contenir que des chiffres.")
		}
	}
	if minDigits > 0 && len(digits) < minDigits {
		return fmt.Errorf("Le numéro de téléphone doit contenir au moins %d chiffres.", minDigits)
	}
	return nil
}

// URL — абсолютный адрес со схемой http или https.
func URL(value string) error {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil || u.Host == "" {
		return ErrURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrURL
	}
	return nil
}

// Date разбирает дату ISO-8601 (YYYY-MM-DD).
func Date(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, ErrDate
	}
	return t, nil
}

// Time разбирает время HH:MM (секунды допускаются).
func Time(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{TimeLayout, "15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrTime
}

// DateTime разбирает RFC 3339; без зоны значение считается UTC.
func DateTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(DateTimeLayout, value); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrDateTime
}

// Enum проверяет принадлежность значения набору меток.
func Enum(value string, labels []string) error {
	for _, l := range labels {
		if l == value {
			return nil
		}
	}
	return ErrChoice
}

// Extension — регистронезависимая проверка расширения по белому списку.
// Пустой список разрешает любое расширение.
func Extension(filename string, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimPrefix(a, "."), ext) {
			return nil
		}
	}
	return fmt.Errorf("L'extension de fichier « %s » n'est pas autorisée. Les extensions autorisées sont : %s.", ext, strings.Join(allowed, ", "))
}

// Size — размер в байтах не больше max (max<=0 означает DefaultMaxSize).
func Size(size, max int64) error {
	if max <= 0 {
		max = DefaultMaxSize
	}
	if size > max {
		return fmt.Errorf("Le fichier est trop volumineux (%s). La taille maximale autorisée est %s.", HumanSize(size), HumanSize(max))
	}
	return nil
}

// HumanSize форматирует размер как «12.3 MB».
func HumanSize(n int64) string {
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1f TB", size)
}

// IsDigits сообщает, состоит ли строка только из цифр.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
