package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendgridSender sends mail through the SendGrid v3 API.
type SendgridSender struct {
	key    string
	host   string
	from   *sgmail.Email
	logger *slog.Logger
}

// NewSendgridSender creates a new SendgridSender instance
func NewSendgridSender(cfg Config, logger *slog.Logger) *SendgridSender {
	from := cfg.from()
	return &SendgridSender{
		key:    cfg.SendgridAPIKey,
		host:   sendgridHost,
		from:   sgmail.NewEmail(from.Name, from.Address),
		logger: logger,
	}
}

func (s *SendgridSender) prepare(msg *Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail(to.Name, to.Address))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)

	if msg.Text != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}

	for _, a := range msg.Attachments {
		m.AddAttachment(&sgmail.Attachment{
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			Type:        a.ContentType,
			Filename:    a.Filename,
			Disposition: "attachment",
		})
	}
	return m
}

// Send posts the message and fails on any non-2xx answer.
func (s *SendgridSender) Send(ctx context.Context, msg *Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}

	req := sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		s.logger.ErrorContext(ctx, "SendGrid rejected email",
			slog.Int("status", res.StatusCode),
			slog.String("body", res.Body),
			slog.String("subject", msg.Subject),
		)
		return fmt.Errorf("failed to send email: sendgrid status %d", res.StatusCode)
	}

	s.logger.InfoContext(ctx, "Email sent",
		slog.String("subject", msg.Subject),
		slog.Int("recipients", len(msg.To)),
		slog.Int("attachments", len(msg.Attachments)),
	)
	return nil
}
