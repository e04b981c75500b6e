package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"

	"lastsold-monitor/models"
)

// SMTPConfig describes the outgoing mail server and recipients.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

func (c SMTPConfig) addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// Email sends one plain-text mail per new sale.
type Email struct {
	cfg  SMTPConfig
	send func(m *email.Email) error
}

// NewEmail creates an Email notifier that sends through cfg.
func NewEmail(cfg SMTPConfig) *Email {
	e := &Email{cfg: cfg}
	e.send = e.sendSMTP
	return e
}

func (e *Email) sendSMTP(m *email.Email) error {
	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	err := m.Send(e.cfg.addr(), auth)
	if err != nil && auth != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = m.Send(e.cfg.addr(), nil)
	}
	return err
}

func (e *Email) message(subject, body string) *email.Email {
	m := email.NewEmail()
	m.From = fmt.Sprintf("TCGPlayer Last Sold Monitor <%s>", e.cfg.From)
	m.To = append([]string(nil), e.cfg.To...)
	m.Subject = subject
	m.Text = []byte(body)
	return m
}

func (e *Email) Notify(ctx context.Context, rec models.SaleRecord) error {
	title := rec.Title()
	if title == "" {
		title = rec.CardURL()
	}
	subject := fmt.Sprintf("New sale: %s $%s", title, rec.Price().StringFixed(2))
	return e.deliver(ctx, e.message(subject, FormatSale(rec)))
}

func (e *Email) Announce(ctx context.Context, content string) error {
	return e.deliver(ctx, e.message("TCGPlayer monitor started", content))
}

func (e *Email) deliver(ctx context.Context, m *email.Email) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: email: %v", ErrNotificationFailure, err)
	}
	if err := e.send(m); err != nil {
		return fmt.Errorf("%w: email to %s: %v", ErrNotificationFailure, strings.Join(e.cfg.To, ","), err)
	}
	return nil
}
