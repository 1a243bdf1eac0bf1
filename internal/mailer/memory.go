package mailer

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Console пишет письма в лог вместо отправки (режим разработки).
type Console struct {
	logger *zap.SugaredLogger
}

func NewConsole(logger *zap.SugaredLogger) *Console {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Console{logger: logger}
}

func (c *Console) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	c.logger.Infow("Mailer: console message",
		"from", msg.From, "to", msg.To, "reply_to", msg.ReplyTo,
		"subject", msg.Subject, "body", msg.Text)
	return nil
}

// Memory складывает письма в Outbox. Fail, если задан, может отклонить письмо.
type Memory struct {
	mu     sync.Mutex
	outbox []Message
	Fail   func(Message) error
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		if err := m.Fail(msg); err != nil {
			return err
		}
	}
	msg.To = append([]string(nil), msg.To...)
	m.outbox = append(m.outbox, msg)
	return nil
}

// Outbox — копия отправленных писем.
func (m *Memory) Outbox() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.outbox...)
}

// Reset очищает ящик.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbox = nil
}
