package mail

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/resend/resend-go/v2"

	"coralrefuge.org/internal/certificate"
	"coralrefuge.org/internal/obs"
)

type fakeSender struct {
	got *resend.SendEmailRequest
	err error
}

func (f *fakeSender) SendWithContext(_ context.Context, req *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &resend.SendEmailResponse{Id: "em_123"}, nil
}

func testData() certificate.Data {
	issued := time.Date(2026, 5, 17, 0, 0, 0, 0, time.UTC)
	return certificate.Data{
		ID:          "CPU-2026-000007",
		SponsorName: "Kai <script>",
		AreaName:    "Cabo Pulmo National Park",
		Hectares:    1,
		AmountCents: 15000,
		Currency:    "usd",
		IssuedAt:    issued,
		ExpiresAt:   certificate.ExpiresAt(issued),
		VerifyURL:   "https://coralrefuge.org/registry/CPU-2026-000007",
	}
}

func TestCertificateMessage(t *testing.T) {
	msg, err := CertificateMessage(" kai@example.org ", testData(), []byte("%PDF-1.3"))
	if err != nil {
		t.Fatalf("CertificateMessage: %v", err)
	}
	if msg.To != "kai@example.org" {
		t.Fatalf("unexpected recipient %q", msg.To)
	}
	if !strings.Contains(msg.Subject, "CPU-2026-000007") {
		t.Fatalf("subject missing certificate id: %q", msg.Subject)
	}
	if strings.Contains(msg.HTML, "<script>") {
		t.Fatalf("sponsor name was not escaped")
	}
	if !strings.Contains(msg.HTML, "1 hectare") || !strings.Contains(msg.HTML, "USD 150.00") {
		t.Fatalf("html body missing details: %s", msg.HTML)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].Filename != "CPU-2026-000007.pdf" {
		t.Fatalf("unexpected attachments: %+v", msg.Attachments)
	}
}

func TestResendSendMapsRequest(t *testing.T) {
	sender := &fakeSender{}
	m := NewResendWithSender(sender, "Coral Refuge <certificates@coralrefuge.org>", "hello@coralrefuge.org")

	msg, _ := CertificateMessage("kai@example.org", testData(), []byte("%PDF-1.3"))
	if err := m.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sender.got == nil {
		t.Fatal("sender not called")
	}
	if sender.got.From == "" || len(sender.got.To) != 1 || sender.got.To[0] != "kai@example.org" {
		t.Fatalf("unexpected request: %+v", sender.got)
	}
	if len(sender.got.Attachments) != 1 || sender.got.Attachments[0].ContentType != "application/pdf" {
		t.Fatalf("attachment not forwarded: %+v", sender.got.Attachments)
	}
}

func TestResendSendWrapsErrors(t *testing.T) {
	m := NewResendWithSender(&fakeSender{err: errors.New("503")}, "from@x", "")
	msg, _ := CertificateMessage("kai@example.org", testData(), nil)
	if err := m.Send(context.Background(), msg); !errors.Is(err, ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
	if err := m.Send(context.Background(), Message{Subject: "x", Text: "y"}); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestLogMailerRedactsRecipient(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetOutput(&buf)
	defer restore()

	if err := (LogMailer{}).Send(context.Background(), Message{To: "kai@example.org", Subject: "hi", Text: "x"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if strings.Contains(buf.String(), "kai@example.org") {
		t.Fatalf("recipient logged in clear: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "k***@example.org") {
		t.Fatalf("expected redacted recipient: %s", buf.String())
	}
}
