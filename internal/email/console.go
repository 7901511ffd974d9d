package email

import (
	"context"
	"log/slog"
	"net/mail"
	"sync"
)

// ConsoleSender logs messages instead of sending them and keeps them for inspection.
type ConsoleSender struct {
	from   mail.Address
	logger *slog.Logger

	mu   sync.Mutex
	sent []Message
}

// NewConsoleSender creates a new ConsoleSender instance
func NewConsoleSender(cfg Config, logger *slog.Logger) *ConsoleSender {
	return &ConsoleSender{from: cfg.from(), logger: logger}
}

func (s *ConsoleSender) Send(ctx context.Context, msg *Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}

	to := make([]string, 0, len(msg.To))
	for _, a := range msg.To {
		to = append(to, a.String())
	}
	s.logger.InfoContext(ctx, "Email (console)",
		slog.String("from", s.from.String()),
		slog.Any("to", to),
		slog.String("subject", msg.Subject),
		slog.Int("attachments", len(msg.Attachments)),
	)
	s.logger.DebugContext(ctx, "Email body", slog.String("text", msg.Text))

	s.mu.Lock()
	s.sent = append(s.sent, *msg)
	s.mu.Unlock()
	return nil
}

// Sent returns the messages recorded so far.
func (s *ConsoleSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
