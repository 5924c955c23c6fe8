package sponsorship

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fulfillFixture struct {
	store    *InMemory
	partner  Partner
	renderer *fakeRenderer
	mailer   *fakeMailer
	archive  *fakeArchive
	feed     *fakeFeed
	f        *Fulfiller
}

func newFulfillFixture(t *testing.T) *fulfillFixture {
	t.Helper()
	fx := &fulfillFixture{
		store:    NewInMemory(),
		renderer: &fakeRenderer{},
		mailer:   &fakeMailer{},
		archive:  &fakeArchive{},
		feed:     &fakeFeed{},
	}
	fx.partner = seedPartner(t, fx.store, "cabo-pulmo")
	fx.f = NewFulfiller(fx.store, testCatalog(t), fx.renderer, fx.mailer,
		FulfillConfig{PublicBaseURL: "https://coralrefuge.org"},
		WithArchive(fx.archive),
		WithFeed(fx.feed),
		WithClock(func() time.Time { return fixedNow }),
	)
	return fx
}

func TestFulfillPersistsAndDelivers(t *testing.T) {
	fx := newFulfillFixture(t)

	res, err := fx.f.Fulfill(context.Background(), completedFor("cs_1", fx.partner))
	require.NoError(t, err)
	require.False(t, res.Duplicate)
	require.True(t, res.CertificateSent)
	require.NoError(t, res.DeliveryErr)

	s := res.Sponsorship
	require.Equal(t, "CPU-2026-000001", s.CertificateID)
	require.Equal(t, "cs_1", s.StripeSessionID)
	require.Equal(t, "kai@example.org", s.BuyerEmail)
	require.EqualValues(t, 75000, s.AmountCents)
	require.EqualValues(t, 11250, s.PlatformFeeCents)
	require.Equal(t, fx.partner.ID, s.PartnerID)
	require.True(t, s.CertificateSent)
	require.NotNil(t, s.CertificateSentAt)

	stored, err := fx.store.GetSponsorship(context.Background(), s.ID)
	require.NoError(t, err)
	require.True(t, stored.CertificateSent)

	require.Equal(t, 1, fx.mailer.count())
	msg := fx.mailer.sent[0]
	require.Equal(t, "kai@example.org", msg.To)
	require.Len(t, msg.Attachments, 1)
	require.Equal(t, "CPU-2026-000001.pdf", msg.Attachments[0].Filename)
	require.Contains(t, msg.HTML, "https://coralrefuge.org/registry/CPU-2026-000001")

	require.Equal(t, []string{"CPU-2026-000001"}, fx.archive.keys)
	require.Len(t, fx.feed.events, 1)
	require.Equal(t, "cabo-pulmo", fx.feed.events[0].AreaSlug)
	require.InDelta(t, 23.4333, fx.feed.events[0].Location.Lat, 1e-6)
}

func TestFulfillDuplicateDeliveryIsNoOp(t *testing.T) {
	fx := newFulfillFixture(t)
	cc := completedFor("cs_dup", fx.partner)

	first, err := fx.f.Fulfill(context.Background(), cc)
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	second, err := fx.f.Fulfill(context.Background(), cc)
	require.NoError(t, err)
	require.True(t, second.Duplicate)
	require.False(t, second.CertificateSent)

	rows, err := fx.store.ListSponsorships(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 1, fx.mailer.count())
	require.Len(t, fx.feed.events, 1)
}

func TestFulfillConcurrentDuplicates(t *testing.T) {
	fx := newFulfillFixture(t)
	cc := completedFor("cs_race", fx.partner)

	var wg sync.WaitGroup
	results := make([]Result, 8)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = fx.f.Fulfill(context.Background(), cc)
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i, r := range results {
		require.NoError(t, errs[i])
		if !r.Duplicate {
			fresh++
		}
	}
	require.Equal(t, 1, fresh)
	require.Equal(t, 1, fx.mailer.count())
}

func TestFulfillMissingEmailWritesNothing(t *testing.T) {
	fx := newFulfillFixture(t)
	cc := completedFor("cs_noemail", fx.partner)
	cc.CustomerEmail = ""

	_, err := fx.f.Fulfill(context.Background(), cc)
	require.ErrorIs(t, err, ErrInvalidCheckout)

	rows, err := fx.store.ListSponsorships(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Empty(t, rows)
	require.Zero(t, fx.mailer.count())
}

func TestFulfillRejectsInconsistentCheckouts(t *testing.T) {
	cases := map[string]func(*CompletedCheckout){
		"no metadata":     func(cc *CompletedCheckout) { cc.Metadata = nil },
		"amount mismatch": func(cc *CompletedCheckout) { cc.AmountTotal = 100 },
		"no name":         func(cc *CompletedCheckout) { cc.CustomerName = ""; delete(cc.Metadata, MetaBuyerName) },
		"bad split":       func(cc *CompletedCheckout) { cc.Metadata[MetaPlatformFee] = "10000" },
		"zero hectares":   func(cc *CompletedCheckout) { cc.Metadata[MetaHectares] = "0" },
	}
	for name, mod := range cases {
		t.Run(name, func(t *testing.T) {
			fx := newFulfillFixture(t)
			cc := completedFor("cs_bad", fx.partner)
			mod(&cc)
			_, err := fx.f.Fulfill(context.Background(), cc)
			require.ErrorIs(t, err, ErrInvalidCheckout)
			rows, _ := fx.store.ListSponsorships(context.Background(), ListFilter{})
			require.Empty(t, rows)
		})
	}
}

func TestFulfillFallsBackToMetadataName(t *testing.T) {
	fx := newFulfillFixture(t)
	cc := completedFor("cs_name", fx.partner)
	cc.CustomerName = ""

	res, err := fx.f.Fulfill(context.Background(), cc)
	require.NoError(t, err)
	require.Equal(t, "Kai Nakamura", res.Sponsorship.BuyerName)
}

func TestFulfillUnknownAreaUsesFallbackCode(t *testing.T) {
	fx := newFulfillFixture(t)
	cc := completedFor("cs_retired", fx.partner)
	cc.Metadata[MetaAreaSlug] = "retired-reef"
	cc.Metadata[MetaAreaName] = "Retired Reef"

	res, err := fx.f.Fulfill(context.Background(), cc)
	require.NoError(t, err)
	require.Equal(t, "MPA-2026-000001", res.Sponsorship.CertificateID)
	require.Equal(t, "Retired Reef", res.Sponsorship.AreaName)
}

func TestDeliveryFailureKeepsRowAndResendRecovers(t *testing.T) {
	fx := newFulfillFixture(t)
	fx.mailer.err = errBoom

	res, err := fx.f.Fulfill(context.Background(), completedFor("cs_fail", fx.partner))
	require.NoError(t, err)
	require.False(t, res.CertificateSent)
	require.ErrorIs(t, res.DeliveryErr, ErrDelivery)
	require.ErrorIs(t, res.DeliveryErr, errBoom)

	pending, err := fx.store.ListSponsorships(context.Background(), ListFilter{Status: StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.False(t, pending[0].CertificateSent)

	_, err = fx.f.Resend(context.Background(), res.Sponsorship.ID)
	require.ErrorIs(t, err, ErrDelivery)

	fx.mailer.err = nil
	sent, err := fx.f.Resend(context.Background(), res.Sponsorship.ID)
	require.NoError(t, err)
	require.True(t, sent.CertificateSent)
	require.Equal(t, res.Sponsorship.CertificateID, sent.CertificateID)

	pending, err = fx.store.ListSponsorships(context.Background(), ListFilter{Status: StatusPending})
	require.NoError(t, err)
	require.Empty(t, pending)
	require.Equal(t, 1, fx.mailer.count())
}

func TestRenderFailureIsDeliveryFailure(t *testing.T) {
	fx := newFulfillFixture(t)
	fx.renderer.err = errBoom

	res, err := fx.f.Fulfill(context.Background(), completedFor("cs_render", fx.partner))
	require.NoError(t, err)
	require.ErrorIs(t, res.DeliveryErr, errBoom)
	require.Zero(t, fx.mailer.count())
}

func TestArchiveFailureDoesNotBlockEmail(t *testing.T) {
	fx := newFulfillFixture(t)
	fx.archive.err = errBoom

	res, err := fx.f.Fulfill(context.Background(), completedFor("cs_archive", fx.partner))
	require.NoError(t, err)
	require.True(t, res.CertificateSent)
	require.Equal(t, 1, fx.mailer.count())
}

func TestResendUnknownSponsorship(t *testing.T) {
	fx := newFulfillFixture(t)
	_, err := fx.f.Resend(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCertificateIDsAreSequential(t *testing.T) {
	fx := newFulfillFixture(t)
	a, err := fx.f.Fulfill(context.Background(), completedFor("cs_a", fx.partner))
	require.NoError(t, err)
	b, err := fx.f.Fulfill(context.Background(), completedFor("cs_b", fx.partner))
	require.NoError(t, err)
	require.Equal(t, "CPU-2026-000001", a.Sponsorship.CertificateID)
	require.Equal(t, "CPU-2026-000002", b.Sponsorship.CertificateID)
}
