package sponsorship

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coralrefuge.org/internal/catalog"
	"coralrefuge.org/internal/certificate"
	"coralrefuge.org/internal/ids"
	"coralrefuge.org/internal/mail"
	"coralrefuge.org/internal/obs"
	"coralrefuge.org/internal/pricing"
	"coralrefuge.org/internal/stream"
)

// DefaultDeliveryTimeout bounds certificate rendering and email delivery.
const DefaultDeliveryTimeout = 30 * time.Second

// FulfillConfig configures certificate delivery.
type FulfillConfig struct {
	PublicBaseURL   string
	DeliveryTimeout time.Duration
}

// Fulfiller turns verified completed checkouts into sponsorships.
//
// The row is committed before any side effect runs. Rendering, archiving and
// mailing are best effort; a failure leaves certificate_sent false for an
// administrator to resend.
type Fulfiller struct {
	store    Store
	catalog  *catalog.Catalog
	renderer Renderer
	mailer   Mailer
	archive  Archiver
	feed     Publisher
	cfg      FulfillConfig
	now      func() time.Time
}

type Option func(*Fulfiller)

// WithArchive uploads every rendered certificate.
func WithArchive(a Archiver) Option { return func(f *Fulfiller) { f.archive = a } }

// WithFeed publishes fulfilled sponsorships to the live map.
func WithFeed(p Publisher) Option { return func(f *Fulfiller) { f.feed = p } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(f *Fulfiller) { f.now = now } }

func NewFulfiller(store Store, cat *catalog.Catalog, renderer Renderer, mailer Mailer, cfg FulfillConfig, opts ...Option) *Fulfiller {
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultDeliveryTimeout
	}
	f := &Fulfiller{
		store:    store,
		catalog:  cat,
		renderer: renderer,
		mailer:   mailer,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Result describes what Fulfill did.
type Result struct {
	Sponsorship     Sponsorship
	Duplicate       bool
	CertificateSent bool
	// DeliveryErr is set when the row was persisted but the certificate
	// could not be delivered.
	DeliveryErr error
}

// Fulfill persists cc exactly once and delivers its certificate.
//
// Returned errors mean nothing was persisted: ErrInvalidCheckout for data that
// can never be fulfilled, anything else for a storage failure worth a retry.
// A replayed session yields Result.Duplicate and no side effects.
func (f *Fulfiller) Fulfill(ctx context.Context, cc CompletedCheckout) (Result, error) {
	log := obs.Logger().With().Str("session_id", cc.SessionID).Logger()

	row, err := f.build(cc)
	if err != nil {
		log.Warn().Err(err).Msg("checkout_rejected")
		return Result{}, err
	}

	seq, err := f.store.NextCertificateSequence(ctx)
	if err != nil {
		log.Error().Err(err).Msg("certificate_sequence_failed")
		return Result{}, fmt.Errorf("certificate sequence: %w", err)
	}
	code := certificate.FallbackCode
	if area, err := f.catalog.Get(row.AreaSlug); err == nil {
		code = area.Code
	}
	row.CertificateID = certificate.NewID(code, row.CreatedAt, seq).String()

	saved, err := f.store.InsertSponsorship(ctx, row)
	if errors.Is(err, ErrDuplicateSession) {
		log.Info().Msg("checkout_already_fulfilled")
		return Result{Duplicate: true}, nil
	}
	if err != nil {
		log.Error().Err(err).Msg("sponsorship_insert_failed")
		return Result{}, fmt.Errorf("insert sponsorship: %w", err)
	}
	log.Info().
		Str("sponsorship_id", saved.ID).
		Str("certificate_id", saved.CertificateID).
		Str("area", saved.AreaSlug).
		Int("hectares", saved.Hectares).
		Int64("amount_cents", saved.AmountCents).
		Msg("sponsorship_persisted")

	f.publish(saved)

	res := Result{Sponsorship: saved}
	sent, derr := f.deliver(ctx, saved)
	if derr != nil {
		log.Error().Err(derr).Str("sponsorship_id", saved.ID).Msg("certificate_delivery_failed")
		res.DeliveryErr = derr
		return res, nil
	}
	res.Sponsorship = sent
	res.CertificateSent = true
	return res, nil
}

// Resend regenerates and re-sends the certificate of an existing sponsorship.
func (f *Fulfiller) Resend(ctx context.Context, id string) (Sponsorship, error) {
	s, err := f.store.GetSponsorship(ctx, id)
	if err != nil {
		return Sponsorship{}, err
	}
	sent, err := f.deliver(ctx, s)
	if err != nil {
		obs.Logger().Error().Err(err).Str("sponsorship_id", id).Msg("certificate_resend_failed")
		return s, err
	}
	obs.Logger().Info().Str("sponsorship_id", id).Str("certificate_id", s.CertificateID).Msg("certificate_resent")
	return sent, nil
}

func (f *Fulfiller) build(cc CompletedCheckout) (Sponsorship, error) {
	cc.SessionID = strings.TrimSpace(cc.SessionID)
	cc.CustomerEmail = strings.TrimSpace(cc.CustomerEmail)
	if cc.SessionID == "" {
		return Sponsorship{}, fmt.Errorf("%w: session id missing", ErrInvalidCheckout)
	}
	if cc.CustomerEmail == "" {
		return Sponsorship{}, fmt.Errorf("%w: customer email missing", ErrInvalidCheckout)
	}
	md, err := ParseMetadata(cc.Metadata)
	if err != nil {
		return Sponsorship{}, err
	}
	if cc.AmountTotal != md.AmountCents {
		return Sponsorship{}, fmt.Errorf("%w: amount total %d does not match quoted amount %d",
			ErrInvalidCheckout, cc.AmountTotal, md.AmountCents)
	}
	name := strings.TrimSpace(cc.CustomerName)
	if name == "" {
		name = md.BuyerName
	}
	if name == "" {
		return Sponsorship{}, fmt.Errorf("%w: customer name missing", ErrInvalidCheckout)
	}
	currency := strings.ToLower(strings.TrimSpace(cc.Currency))
	if currency == "" {
		currency = md.Currency
	}
	areaName := md.AreaName
	if area, err := f.catalog.Get(md.AreaSlug); err == nil && areaName == "" {
		areaName = area.Name
	}

	now := f.now()
	return Sponsorship{
		ID:                    ids.NewAt(now),
		StripeSessionID:       cc.SessionID,
		StripePaymentIntentID: cc.PaymentIntentID,
		StripeSubscriptionID:  cc.SubscriptionID,
		BuyerName:             name,
		BuyerEmail:            cc.CustomerEmail,
		Company:               md.Company,
		AreaSlug:              md.AreaSlug,
		AreaName:              areaName,
		Hectares:              md.Hectares,
		AmountCents:           md.AmountCents,
		Currency:              currency,
		PlatformFeeCents:      md.PlatformFeeCents,
		PartnerAmountCents:    md.PartnerAmountCents,
		PartnerID:             md.PartnerID,
		PartnerName:           md.PartnerName,
		PartnerAccountID:      md.PartnerAccount,
		Tier:                  md.Tier,
		Years:                 md.Years,
		Anonymous:             md.Anonymous,
		CreatedAt:             now,
	}, nil
}

// deliver renders, archives and mails the certificate, then marks the row sent.
// It runs on its own deadline so a cancelled callback request does not abort
// a delivery that has already started.
func (f *Fulfiller) deliver(ctx context.Context, s Sponsorship) (Sponsorship, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.cfg.DeliveryTimeout)
	defer cancel()

	err := f.send(ctx, s)
	obs.CertificateDelivery(err == nil)
	if err != nil {
		return s, fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	at := f.now()
	if err := f.store.MarkCertificateSent(ctx, s.ID, at); err != nil {
		return s, fmt.Errorf("%w: mark sent: %w", ErrDelivery, err)
	}
	s.CertificateSent = true
	s.CertificateSentAt = &at
	return s, nil
}

func (f *Fulfiller) send(ctx context.Context, s Sponsorship) error {
	data := f.CertificateData(s)
	pdf, err := f.renderer.Render(data)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if f.archive != nil {
		loc, err := f.archive.Put(ctx, s.CertificateID, s.CreatedAt, pdf)
		if err != nil {
			obs.Logger().Warn().Err(err).Str("certificate_id", s.CertificateID).Msg("certificate_archive_failed")
		} else {
			obs.Logger().Debug().Str("certificate_id", s.CertificateID).Str("location", loc).Msg("certificate_archived")
		}
	}
	msg, err := mail.CertificateMessage(s.BuyerEmail, data, pdf)
	if err != nil {
		return err
	}
	return f.mailer.Send(ctx, msg)
}

// CertificateData rebuilds the certificate contents from the row.
func (f *Fulfiller) CertificateData(s Sponsorship) certificate.Data {
	d := certificate.Data{
		ID:          s.CertificateID,
		SponsorName: s.BuyerName,
		Company:     s.Company,
		AreaName:    s.AreaName,
		Hectares:    s.Hectares,
		AmountCents: s.AmountCents,
		Currency:    s.Currency,
		Recurring:   s.Tier == pricing.TierMonthly,
		Years:       s.Years,
		IssuedAt:    s.CreatedAt,
		ExpiresAt:   certificate.ExpiresAt(s.CreatedAt),
		VerifyURL:   VerifyURL(f.cfg.PublicBaseURL, s.CertificateID),
	}
	if area, err := f.catalog.Get(s.AreaSlug); err == nil {
		d.AreaLocation = area.Location
	}
	return d
}

// VerifyURL is the public registry page a certificate QR code points at.
func VerifyURL(base, certificateID string) string {
	return strings.TrimRight(base, "/") + "/registry/" + certificateID
}

func (f *Fulfiller) publish(s Sponsorship) {
	if f.feed == nil {
		return
	}
	evt := stream.SponsorshipEvent{
		AreaSlug:  s.AreaSlug,
		Location:  stream.Location{Name: s.AreaName},
		Hectares:  s.Hectares,
		Recurring: s.Recurring(),
		Timestamp: s.CreatedAt,
	}
	if area, err := f.catalog.Get(s.AreaSlug); err == nil {
		evt.Location = stream.Location{Name: area.Name, Lat: area.Lat, Lon: area.Lon}
	}
	f.feed.Publish(evt)
}
