// Package email renders and sends notification mail.
package email

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
)

// ErrNoRecipients is returned when a message has nobody to send to
var ErrNoRecipients = errors.New("email has no recipients")

// Attachment is a file sent along with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is one outgoing email.
type Message struct {
	To          []mail.Address
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// HasContent reports whether there is a body or an attachment to send.
func (m *Message) HasContent() bool {
	return m.Text != "" || m.HTML != "" || len(m.Attachments) > 0
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// Config selects and configures the sender.
type Config struct {
	SendgridAPIKey string
	FromEmail      string
	FromName       string
}

func (c Config) from() mail.Address {
	addr := mail.Address{Name: c.FromName, Address: c.FromEmail}
	if addr.Address == "" {
		addr.Address = "admin@alumnibghs.org"
	}
	if addr.Name == "" {
		addr.Name = "BGHS Alumni"
	}
	return addr
}

// NewSender returns a SendGrid sender when an API key is configured and a
// console sender otherwise.
func NewSender(cfg Config, logger *slog.Logger) Sender {
	if cfg.SendgridAPIKey != "" {
		return NewSendgridSender(cfg, logger)
	}
	logger.Warn("SendGrid API key not set, emails will be logged only")
	return NewConsoleSender(cfg, logger)
}

// ParseAddresses turns plain addresses into recipients, skipping malformed ones.
func ParseAddresses(addrs []string) []mail.Address {
	out := make([]mail.Address, 0, len(addrs))
	for _, a := range addrs {
		parsed, err := mail.ParseAddress(a)
		if err != nil {
			continue
		}
		out = append(out, *parsed)
	}
	return out
}
