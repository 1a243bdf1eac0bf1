// Package mailer отправляет письма: SMTP, вывод в лог или память (тесты).
package mailer

import (
	"context"
	"errors"
	"fmt"

	"ccsa/internal/config"

	"go.uber.org/zap"
)

// Message — письмо с текстовой и HTML-версией.
type Message struct {
	From    string
	To      []string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
}

// Validate проверяет минимально необходимые поля.
func (m Message) Validate() error {
	switch {
	case m.From == "":
		return errors.New("mailer: empty sender")
	case len(m.To) == 0:
		return errors.New("mailer: no recipients")
	case m.Subject == "":
		return errors.New("mailer: empty subject")
	}
	return nil
}

// Sender отправляет одно письмо.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New выбирает транспорт по EMAIL_BACKEND.
func New(cfg *config.Config, logger *zap.SugaredLogger) (Sender, error) {
	switch cfg.EmailBackend {
	case "smtp":
		return NewSMTP(SMTPConfig{
			Host:     cfg.EmailHost,
			Port:     cfg.EmailPort,
			UseTLS:   cfg.EmailUseTLS,
			Username: cfg.EmailHostUser,
			Password: cfg.EmailHostPassword,
			Timeout:  cfg.EmailTimeout,
		}, logger), nil
	case "console", "":
		return NewConsole(logger), nil
	case "memory":
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("mailer: unknown backend %q", cfg.EmailBackend)
}
