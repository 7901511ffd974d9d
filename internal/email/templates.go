package email

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"net/mail"
	"strconv"
	texttemplate "text/template"
	"time"
)

//go:embed templates/*
var templateFS embed.FS

var (
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt"))
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html"))
)

// RegistrationNotification is the admin mail sent once per registration PDF.
type RegistrationNotification struct {
	FullName       string
	Email          string
	Phone          string
	RegistrationID string
	BatchYear      string
	YearOfLeaving  string
	LastClass      int
	Method         string
	EvidenceCount  int
	ReferenceCount int

	PDF         []byte
	PDFFilename string
}

// YearString renders an optional year, empty when unset.
func YearString(year *int) string {
	if year == nil {
		return ""
	}
	return strconv.Itoa(*year)
}

// BuildRegistrationNotification renders the admin notification for to.
func BuildRegistrationNotification(to []mail.Address, data RegistrationNotification) (*Message, error) {
	text, html, err := render("registration_notification", data)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		To:      to,
		Subject: fmt.Sprintf("New Alumni Registration - %s (%s)", data.FullName, data.YearOfLeaving),
		Text:    text,
		HTML:    html,
	}
	if len(data.PDF) > 0 {
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename:    data.PDFFilename,
			ContentType: "application/pdf",
			Content:     data.PDF,
		})
	}
	return msg, nil
}

// PaymentLink is the mail carrying a one-time registration payment link.
type PaymentLink struct {
	Name        string
	AmountMinor int64
	Currency    string
	Link        string
	ExpiresAt   time.Time
}

// BuildPaymentLink renders the payment link mail for one recipient.
func BuildPaymentLink(to mail.Address, data PaymentLink) (*Message, error) {
	view := struct {
		Name      string
		Amount    string
		Link      string
		ExpiresAt string
	}{
		Name:      data.Name,
		Amount:    FormatAmount(data.AmountMinor, data.Currency),
		Link:      data.Link,
		ExpiresAt: data.ExpiresAt.UTC().Format("02 Jan 2006 15:04 MST"),
	}
	if view.Name == "" {
		view.Name = "Alumnus"
	}

	text, html, err := render("payment_link", view)
	if err != nil {
		return nil, err
	}
	return &Message{
		To:      []mail.Address{to},
		Subject: "Complete your BGHS Alumni registration payment",
		Text:    text,
		HTML:    html,
	}, nil
}

// FormatAmount renders minor units as "INR 500.00".
func FormatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s %s%d.%02d", currency, sign, minor/100, minor%100)
}

func render(name string, data any) (string, string, error) {
	var text, html bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&text, name+".txt", data); err != nil {
		return "", "", fmt.Errorf("failed to render %s text: %w", name, err)
	}
	if err := htmlTemplates.ExecuteTemplate(&html, name+".html", data); err != nil {
		return "", "", fmt.Errorf("failed to render %s html: %w", name, err)
	}
	return text.String(), html.String(), nil
}
