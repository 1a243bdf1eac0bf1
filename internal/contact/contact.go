// Package contact обрабатывает публичные формы: обращение в CCSA и запрос
// на изменение PLUi.
package contact

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"ccsa/internal/clock"
	"ccsa/internal/kernel"
	"ccsa/internal/mailer"
	"ccsa/internal/resources"
	"ccsa/internal/validate"

	"go.uber.org/zap"
)

var (
	// ErrRateLimited — попытка сверх лимита; HTTP-слой отвечает как на успех.
	ErrRateLimited = errors.New("contact: rate limited")
	// ErrDelivery — письмо в CCSA не ушло.
	ErrDelivery = errors.New("contact: delivery failed")
)

const (
	firstNameMax  = 30
	lastNameMax   = 30
	phoneMax      = 15
	phoneMinDigit = 10
	messageMin    = 10
)

// Form — данные формы обратной связи.
type Form struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Message   string `json:"message"`
	RGPD      bool   `json:"rgpd"`
}

// Validate возвращает *kernel.ValidationError или nil.
func (f *Form) Validate() error {
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.Email = strings.TrimSpace(f.Email)
	f.Phone = strings.TrimSpace(f.Phone)

	fields := map[string]string{}
	check := func(name string, err error) {
		if err != nil {
			if _, dup := fields[name]; !dup {
				fields[name] = err.Error()
			}
		}
	}
	check("first_name", validate.Text(f.FirstName, firstNameMax, true))
	check("last_name", validate.Text(f.LastName, lastNameMax, true))
	check("email", validate.Email(f.Email))
	if f.Phone != "" {
		// пробелы, дефисы и точки допустимы как разделители
		check("phone", validate.Phone(f.Phone, phoneMinDigit))
		check("phone", validate.Text(validate.PhoneDigits(f.Phone), phoneMax, false))
	}
	if strings.TrimSpace(f.Message) == "" {
		check("message", validate.ErrRequired)
	} else if len([]rune(f.Message)) < messageMin {
		check("message", errors.New("Le message doit contenir au moins 10 caractères."))
	}
	if !f.RGPD {
		check("rgpd", validate.ErrRequired)
	}
	if len(fields) > 0 {
		return &kernel.ValidationError{Fields: fields}
	}
	return nil
}

// Result — исход принятой заявки.
type Result struct {
	// PartialDelivery: письмо в CCSA ушло, подтверждение заявителю нет.
	PartialDelivery bool
}

// RecipientSource отдаёт адреса активных получателей.
type RecipientSource interface {
	ActiveRecipients(ctx context.Context) ([]string, error)
}

// Options — адреса и режим работы конвейера.
type Options struct {
	PrimaryEmail string
	PLUiEmail    string
	NoReplyEmail string
	// Testing отключает ограничение частоты.
	Testing bool
}

// Pipeline — обработчик форм.
type Pipeline struct {
	sender     mailer.Sender
	recipients RecipientSource
	limiter    *RateLimiter
	opts       Options
	clock      clock.Clock
	logger     *zap.SugaredLogger
}

func NewPipeline(sender mailer.Sender, recipients RecipientSource, limiter *RateLimiter, opts Options, clk clock.Clock, logger *zap.SugaredLogger) *Pipeline {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if limiter == nil {
		limiter = NewRateLimiter(DefaultRateLimit, DefaultRateWindow, clk)
	}
	return &Pipeline{
		sender:     sender,
		recipients: recipients,
		limiter:    limiter,
		opts:       opts,
		clock:      clk,
		logger:     logger,
	}
}

// Submit проверяет и рассылает обращение. Попытка учитывается лимитом до
// проверки полей.
func (p *Pipeline) Submit(ctx context.Context, form Form, clientIP string) (Result, error) {
	if !p.opts.Testing && !p.limiter.Allow(clientIP) {
		submissionsTotal.WithLabelValues(formContact, outcomeLimited).Inc()
		p.logger.Warnw("Contact: submission rate limited", "ip", clientIP)
		return Result{}, ErrRateLimited
	}
	if err := form.Validate(); err != nil {
		submissionsTotal.WithLabelValues(formContact, outcomeInvalid).Inc()
		return Result{}, err
	}

	to, err := p.resolveRecipients(ctx)
	if err != nil {
		submissionsTotal.WithLabelValues(formContact, outcomeFailed).Inc()
		return Result{}, fmt.Errorf("%w: recipients: %v", ErrDelivery, err)
	}
	who := form.FirstName + " " + form.LastName

	text, html, err := render("notify", form)
	if err != nil {
		return Result{}, fmt.Errorf("render notification: %w", err)
	}
	notify := mailer.Message{
		From:    form.Email,
		To:      to,
		Subject: "CONTACT - CCSA : " + who,
		Text:    text,
		HTML:    html,
	}
	if err := p.sender.Send(ctx, notify); err != nil {
		submissionsTotal.WithLabelValues(formContact, outcomeFailed).Inc()
		p.logger.Errorw("Contact: notification failed", "to", to, "error", err)
		return Result{}, fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	text, html, err = render("ack", form)
	if err == nil {
		err = p.sender.Send(ctx, mailer.Message{
			From:    p.opts.NoReplyEmail,
			To:      []string{form.Email},
			Subject: "CONFIRMATION DE CONTACT - CCSA : " + who,
			Text:    text,
			HTML:    html,
		})
	}
	if err != nil {
		submissionsTotal.WithLabelValues(formContact, outcomePartial).Inc()
		p.logger.Warnw("Contact: partial delivery, acknowledgement not sent", "to", form.Email, "error", err)
		return Result{PartialDelivery: true}, nil
	}

	submissionsTotal.WithLabelValues(formContact, outcomeSent).Inc()
	p.logger.Infow("Contact: submission delivered", "recipients", len(to))
	return Result{}, nil
}

// resolveRecipients: основной адрес первым, затем активные получатели без повторов.
func (p *Pipeline) resolveRecipients(ctx context.Context) ([]string, error) {
	out := []string{p.opts.PrimaryEmail}
	seen := map[string]struct{}{strings.ToLower(p.opts.PrimaryEmail): {}}
	if p.recipients == nil {
		return out, nil
	}
	extra, err := p.recipients.ActiveRecipients(ctx)
	if err != nil {
		return nil, err
	}
	for _, addr := range extra {
		key := strings.ToLower(strings.TrimSpace(addr))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(addr))
	}
	return out, nil
}

// KernelRecipients читает ContactRecipient через ядро.
type KernelRecipients struct {
	K *kernel.Kernel
}

func (r KernelRecipients) ActiveRecipients(ctx context.Context) ([]string, error) {
	page, err := r.K.List(ctx, resources.ContactRecipient, kernel.ListOptions{
		Filters: []kernel.Filter{{Field: "is_active", Op: "=", Value: true}},
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(page.Records))
	for _, rec := range page.Records {
		out = append(out, rec.String("email"))
	}
	return out, nil
}

// ClientIP — первый адрес X-Forwarded-For, иначе адрес соединения, иначе "unknown".
func ClientIP(forwardedFor, remoteAddr string) string {
	if first, _, _ := strings.Cut(forwardedFor, ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if remoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
