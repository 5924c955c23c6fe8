// Package mail delivers transactional email.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"

	"coralrefuge.org/internal/obs"
)

var (
	ErrInvalidMessage = errors.New("mail: invalid message")
	ErrDelivery       = errors.New("mail: delivery failed")
)

// Attachment is a file sent along with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is a single outbound email.
type Message struct {
	To          string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

func (m Message) validate() error {
	switch {
	case strings.TrimSpace(m.To) == "":
		return fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	case strings.TrimSpace(m.Subject) == "":
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	case m.HTML == "" && m.Text == "":
		return fmt.Errorf("%w: body is required", ErrInvalidMessage)
	}
	return nil
}

// Sender is the subset of the Resend client used here.
type Sender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Resend sends mail through the Resend API.
type Resend struct {
	emails  Sender
	from    string
	replyTo string
}

// NewResend builds a mailer from an API key.
func NewResend(apiKey, from, replyTo string) *Resend {
	client := resend.NewClient(apiKey)
	return NewResendWithSender(client.Emails, from, replyTo)
}

// NewResendWithSender wires an explicit sender (tests, custom HTTP clients).
func NewResendWithSender(s Sender, from, replyTo string) *Resend {
	return &Resend{emails: s, from: from, replyTo: replyTo}
}

// Send delivers msg.
func (r *Resend) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	req := &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: r.replyTo,
	}
	for _, a := range msg.Attachments {
		req.Attachments = append(req.Attachments, &resend.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Content:     a.Content,
		})
	}
	resp, err := r.emails.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	id := ""
	if resp != nil {
		id = resp.Id
	}
	obs.Logger().Info().Str("email_id", id).Str("to", redact(msg.To)).Str("subject", msg.Subject).Msg("email sent")
	return nil
}

// LogMailer only logs messages. Used when no API key is configured.
type LogMailer struct{}

// Send logs msg and reports success.
func (LogMailer) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	total := 0
	for _, a := range msg.Attachments {
		total += len(a.Content)
	}
	obs.Logger().Warn().
		Str("to", redact(msg.To)).
		Str("subject", msg.Subject).
		Int("attachments", len(msg.Attachments)).
		Int("attachment_bytes", total).
		Msg("email delivery disabled; message logged only")
	return nil
}

// redact keeps the first character and domain of an address.
func redact(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at <= 0 {
		return "***"
	}
	return addr[:1] + "***" + addr[at:]
}
