package sponsorship

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coralrefuge.org/internal/catalog"
	"coralrefuge.org/internal/certificate"
	"coralrefuge.org/internal/mail"
	"coralrefuge.org/internal/stream"
)

type fakeProcessor struct {
	mu    sync.Mutex
	calls int
	last  SessionRequest
	err   error
}

func (p *fakeProcessor) CreateSession(_ context.Context, req SessionRequest) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.last = req
	if p.err != nil {
		return Session{}, p.err
	}
	return Session{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

type fakeRenderer struct {
	err   error
	calls int
}

func (r *fakeRenderer) Render(d certificate.Data) ([]byte, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-" + d.ID), nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fakeArchive struct {
	keys []string
	err  error
}

func (a *fakeArchive) Put(_ context.Context, id string, _ time.Time, _ []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.keys = append(a.keys, id)
	return "s3://test/" + id, nil
}

type fakeFeed struct{ events []stream.SponsorshipEvent }

func (f *fakeFeed) Publish(evt stream.SponsorshipEvent) { f.events = append(f.events, evt) }

var errBoom = errors.New("boom")

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return cat
}

func seedPartner(t *testing.T, st Store, slugs ...string) Partner {
	t.Helper()
	p, err := st.CreatePartner(context.Background(), Partner{
		Name:            "Pulmo Trust",
		StripeAccountID: "acct_pulmo",
		AreaSlugs:       slugs,
		Active:          true,
	})
	require.NoError(t, err)
	return p
}

var fixedNow = time.Date(2026, 5, 17, 10, 30, 0, 0, time.UTC)

// completedFor builds the callback a processor would send for a 5 ha
// single-year Cabo Pulmo checkout.
func completedFor(sessionID string, p Partner) CompletedCheckout {
	md := Metadata{
		AreaSlug:           "cabo-pulmo",
		AreaName:           "Cabo Pulmo National Park",
		Hectares:           5,
		AmountCents:        75000,
		Currency:           "usd",
		PartnerID:          p.ID,
		PartnerName:        p.Name,
		PartnerAccount:     p.StripeAccountID,
		PlatformFeeCents:   11250,
		PartnerAmountCents: 63750,
		Tier:               "single_year",
		BuyerName:          "Kai Nakamura",
	}
	return CompletedCheckout{
		SessionID:       sessionID,
		PaymentIntentID: "pi_1",
		CustomerEmail:   "kai@example.org",
		CustomerName:    "Kai Nakamura",
		AmountTotal:     75000,
		Currency:        "usd",
		Metadata:        md.Encode(),
	}
}
