// Package app wires configuration into the concrete services shared by the
// API server and the maintenance commands.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"coralrefuge.org/internal/archive"
	"coralrefuge.org/internal/auth"
	"coralrefuge.org/internal/catalog"
	"coralrefuge.org/internal/certificate"
	"coralrefuge.org/internal/config"
	"coralrefuge.org/internal/mail"
	"coralrefuge.org/internal/obs"
	"coralrefuge.org/internal/payments"
	"coralrefuge.org/internal/sponsorship"
	"coralrefuge.org/internal/store/pg"
	"coralrefuge.org/internal/stream"
)

// Services holds every long-lived dependency, constructed once.
type Services struct {
	Config    *config.Config
	Catalog   *catalog.Catalog
	Store     sponsorship.Store
	DB        *sql.DB
	Feed      *stream.Stream
	Checkout  *sponsorship.Checkout
	Fulfiller *sponsorship.Fulfiller
	Partners  *sponsorship.Partners
	Tokens    *auth.Issuer
	Admin     *auth.Admin

	closers []func() error
}

// Build constructs the services described by cfg. Optional integrations
// (database, processor, mail provider, archive, admin auth) degrade to
// in-process or disabled implementations when unconfigured.
func Build(ctx context.Context, cfg *config.Config) (*Services, error) {
	log := obs.Logger()
	s := &Services{Config: cfg, Feed: stream.New()}

	var err error
	if cfg.CatalogPath != "" {
		s.Catalog, err = catalog.Load(cfg.CatalogPath)
	} else {
		s.Catalog, err = catalog.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	if cfg.DatabaseDSN != "" {
		store, err := pg.Open(cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s.Store, s.DB = store, store.DB()
		s.closers = append(s.closers, store.Close)
	} else {
		log.Warn().Msg("CORAL_PG_DSN not set, using in-memory store")
		s.Store = sponsorship.NewInMemory()
	}

	var processor sponsorship.Processor = unconfiguredProcessor{}
	if cfg.StripeSecretKey != "" {
		if processor, err = payments.NewStripe(cfg.StripeSecretKey); err != nil {
			return nil, err
		}
	} else {
		log.Warn().Msg("CORAL_STRIPE_SECRET_KEY not set, checkout will fail with processor_error")
	}

	var mailer sponsorship.Mailer = mail.LogMailer{}
	if cfg.ResendAPIKey != "" {
		mailer = mail.NewResend(cfg.ResendAPIKey, cfg.MailFrom, cfg.MailReplyTo)
	} else {
		log.Warn().Msg("CORAL_RESEND_API_KEY not set, certificates are logged instead of emailed")
	}

	opts := []sponsorship.Option{sponsorship.WithFeed(s.Feed)}
	if cfg.CertificateBucket != "" {
		store, err := archive.NewS3(ctx, cfg.CertificateBucket, cfg.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("certificate archive: %w", err)
		}
		opts = append(opts, sponsorship.WithArchive(store))
	}

	s.Checkout = sponsorship.NewCheckout(s.Catalog, s.Store, processor, sponsorship.CheckoutConfig{
		PublicBaseURL: cfg.PublicBaseURL,
		Currency:      cfg.Currency,
		MaxHectares:   cfg.MaxHectares,
	})
	s.Fulfiller = sponsorship.NewFulfiller(s.Store, s.Catalog, certificate.NewRenderer(), mailer, sponsorship.FulfillConfig{
		PublicBaseURL:   cfg.PublicBaseURL,
		DeliveryTimeout: cfg.DeliveryTimeout,
	}, opts...)
	s.Partners = sponsorship.NewPartners(s.Store, s.Catalog)

	if cfg.AdminEnabled() {
		if s.Tokens, err = auth.NewIssuer(cfg.AuthSecret); err != nil {
			return nil, err
		}
		if s.Admin, err = auth.NewAdmin(cfg.AdminPasswordHash, s.Tokens); err != nil {
			return nil, err
		}
	} else {
		log.Warn().Msg("admin API disabled: CORAL_AUTH_SECRET and CORAL_ADMIN_PASSWORD_HASH not set")
	}
	return s, nil
}

// Close releases the database pool.
func (s *Services) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type unconfiguredProcessor struct{}

func (unconfiguredProcessor) CreateSession(context.Context, sponsorship.SessionRequest) (sponsorship.Session, error) {
	return sponsorship.Session{}, payments.ErrNotConfigured
}
