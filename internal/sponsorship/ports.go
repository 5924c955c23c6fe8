package sponsorship

import (
	"context"
	"time"

	"coralrefuge.org/internal/certificate"
	"coralrefuge.org/internal/mail"
	"coralrefuge.org/internal/stream"
)

// Processor creates hosted checkout sessions.
type Processor interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
}

// Renderer draws certificate PDFs.
type Renderer interface {
	Render(d certificate.Data) ([]byte, error)
}

// Mailer sends email.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// Archiver stores a copy of a rendered certificate and returns its location.
type Archiver interface {
	Put(ctx context.Context, certificateID string, issued time.Time, pdf []byte) (string, error)
}

// Publisher receives live feed events.
type Publisher interface {
	Publish(evt stream.SponsorshipEvent)
}
