package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"coralrefuge.org/internal/ids"
	"coralrefuge.org/internal/pricing"
	"coralrefuge.org/internal/sponsorship"
)

const (
	pgErrUniqueViolation = "23505"
	pgErrCheckViolation  = "23514"
)

type Store struct {
	db *sql.DB
}

var _ sponsorship.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Webhook and checkout traffic is light; keep the pool small.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// --- partners ---

const partnerColumns = `id, name, coalesce(contact_email,''), stripe_account_id,
	array_to_string(area_slugs, ','), active, created_at, updated_at`

func (s *Store) ActivePartnerForArea(ctx context.Context, areaSlug string) (sponsorship.Partner, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+partnerColumns+`
		from partner_accounts
		where active and $1 = any(area_slugs)
		order by created_at
		limit 2
	`, areaSlug)
	if err != nil {
		return sponsorship.Partner{}, err
	}
	defer rows.Close()

	var found []sponsorship.Partner
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return sponsorship.Partner{}, err
		}
		found = append(found, p)
	}
	if err := rows.Err(); err != nil {
		return sponsorship.Partner{}, err
	}
	switch len(found) {
	case 0:
		return sponsorship.Partner{}, sponsorship.ErrPartnerNotFound
	case 1:
		return found[0], nil
	}
	return sponsorship.Partner{}, sponsorship.ErrPartnerAmbiguous
}

func (s *Store) CreatePartner(ctx context.Context, p sponsorship.Partner) (sponsorship.Partner, error) {
	if p.ID == "" {
		p.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into partner_accounts(id, name, contact_email, stripe_account_id, area_slugs, active, created_at, updated_at)
		values ($1,$2,nullif($3,''),$4,string_to_array($5, ','),$6,now(),now())
		returning created_at, updated_at
	`, p.ID, p.Name, p.ContactEmail, p.StripeAccountID, strings.Join(p.AreaSlugs, ","), p.Active).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return sponsorship.Partner{}, sponsorship.ErrConflict
		}
		return sponsorship.Partner{}, err
	}
	return p, nil
}

func (s *Store) UpdatePartner(ctx context.Context, p sponsorship.Partner) (sponsorship.Partner, error) {
	err := s.db.QueryRowContext(ctx, `
		update partner_accounts
		set name=$2, contact_email=nullif($3,''), stripe_account_id=$4,
		    area_slugs=string_to_array($5, ','), active=$6, updated_at=now()
		where id=$1
		returning created_at, updated_at
	`, p.ID, p.Name, p.ContactEmail, p.StripeAccountID, strings.Join(p.AreaSlugs, ","), p.Active).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sponsorship.Partner{}, sponsorship.ErrNotFound
	}
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return sponsorship.Partner{}, sponsorship.ErrConflict
		}
		return sponsorship.Partner{}, err
	}
	return p, nil
}

func (s *Store) GetPartner(ctx context.Context, id string) (sponsorship.Partner, error) {
	row := s.db.QueryRowContext(ctx, `select `+partnerColumns+` from partner_accounts where id=$1`, id)
	p, err := scanPartner(row)
	if errors.Is(err, sql.ErrNoRows) {
		return sponsorship.Partner{}, sponsorship.ErrNotFound
	}
	return p, err
}

func (s *Store) ListPartners(ctx context.Context) ([]sponsorship.Partner, error) {
	rows, err := s.db.QueryContext(ctx, `select `+partnerColumns+` from partner_accounts order by name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []sponsorship.Partner{}
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- sponsorships ---

const sponsorshipColumns = `id, stripe_session_id, coalesce(stripe_payment_intent_id,''),
	coalesce(stripe_subscription_id,''), buyer_name, buyer_email, coalesce(company,''),
	area_slug, area_name, hectares, amount_cents, currency, platform_fee_cents,
	partner_amount_cents, partner_id, partner_name, partner_account_id, tier, years,
	anonymous, certificate_id, certificate_sent, certificate_sent_at, created_at`

func (s *Store) NextCertificateSequence(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `select nextval('certificate_seq')`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// InsertSponsorship relies on the unique stripe_session_id: a replayed
// callback inserts nothing and is reported as ErrDuplicateSession.
func (s *Store) InsertSponsorship(ctx context.Context, row sponsorship.Sponsorship) (sponsorship.Sponsorship, error) {
	if row.ID == "" {
		row.ID = ids.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into sponsorships(
			id, stripe_session_id, stripe_payment_intent_id, stripe_subscription_id,
			buyer_name, buyer_email, company, area_slug, area_name, hectares,
			amount_cents, currency, platform_fee_cents, partner_amount_cents,
			partner_id, partner_name, partner_account_id, tier, years, anonymous,
			certificate_id, created_at)
		values ($1,$2,nullif($3,''),nullif($4,''),$5,$6,nullif($7,''),$8,$9,$10,
			$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		on conflict (stripe_session_id) do nothing
		returning created_at
	`,
		row.ID, row.StripeSessionID, row.StripePaymentIntentID, row.StripeSubscriptionID,
		row.BuyerName, row.BuyerEmail, row.Company, row.AreaSlug, row.AreaName, row.Hectares,
		row.AmountCents, row.Currency, row.PlatformFeeCents, row.PartnerAmountCents,
		row.PartnerID, row.PartnerName, row.PartnerAccountID, string(row.Tier), row.Years, row.Anonymous,
		row.CertificateID, row.CreatedAt,
	).Scan(&row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sponsorship.Sponsorship{}, sponsorship.ErrDuplicateSession
	}
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				if pgErr.ConstraintName == "sponsorships_stripe_session_id_key" {
					return sponsorship.Sponsorship{}, sponsorship.ErrDuplicateSession
				}
				return sponsorship.Sponsorship{}, fmt.Errorf("%w: %s", sponsorship.ErrConflict, pgErr.ConstraintName)
			case pgErrCheckViolation:
				return sponsorship.Sponsorship{}, fmt.Errorf("%w: %s", sponsorship.ErrInvalidCheckout, pgErr.ConstraintName)
			}
		}
		return sponsorship.Sponsorship{}, err
	}
	row.CertificateSent = false
	row.CertificateSentAt = nil
	return row, nil
}

func (s *Store) GetSponsorship(ctx context.Context, id string) (sponsorship.Sponsorship, error) {
	return s.getSponsorship(ctx, `where id=$1`, id)
}

func (s *Store) GetSponsorshipByCertificate(ctx context.Context, certificateID string) (sponsorship.Sponsorship, error) {
	return s.getSponsorship(ctx, `where certificate_id=$1`, certificateID)
}

func (s *Store) getSponsorship(ctx context.Context, where string, arg string) (sponsorship.Sponsorship, error) {
	row := s.db.QueryRowContext(ctx, `select `+sponsorshipColumns+` from sponsorships `+where, arg)
	out, err := scanSponsorship(row)
	if errors.Is(err, sql.ErrNoRows) {
		return sponsorship.Sponsorship{}, sponsorship.ErrNotFound
	}
	return out, err
}

func (s *Store) ListSponsorships(ctx context.Context, f sponsorship.ListFilter) ([]sponsorship.Sponsorship, error) {
	f = f.Normalize()
	where := ""
	switch f.Status {
	case sponsorship.StatusPending:
		where = "where not certificate_sent"
	case sponsorship.StatusSent:
		where = "where certificate_sent"
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+sponsorshipColumns+`
		from sponsorships `+where+`
		order by created_at desc, id desc
		limit $1 offset $2
	`, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []sponsorship.Sponsorship{}
	for rows.Next() {
		row, err := scanSponsorship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) MarkCertificateSent(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update sponsorships set certificate_sent = true, certificate_sent_at = $2
		where id=$1
	`, id, at.UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sponsorship.ErrNotFound
	}
	return nil
}

// --- helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanPartner(sc scanner) (sponsorship.Partner, error) {
	var p sponsorship.Partner
	var slugs string
	if err := sc.Scan(&p.ID, &p.Name, &p.ContactEmail, &p.StripeAccountID, &slugs, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return sponsorship.Partner{}, err
	}
	p.AreaSlugs = splitSlugs(slugs)
	return p, nil
}

func scanSponsorship(sc scanner) (sponsorship.Sponsorship, error) {
	var (
		s      sponsorship.Sponsorship
		tier   string
		sentAt sql.NullTime
	)
	err := sc.Scan(
		&s.ID, &s.StripeSessionID, &s.StripePaymentIntentID, &s.StripeSubscriptionID,
		&s.BuyerName, &s.BuyerEmail, &s.Company, &s.AreaSlug, &s.AreaName, &s.Hectares,
		&s.AmountCents, &s.Currency, &s.PlatformFeeCents, &s.PartnerAmountCents,
		&s.PartnerID, &s.PartnerName, &s.PartnerAccountID, &tier, &s.Years, &s.Anonymous,
		&s.CertificateID, &s.CertificateSent, &sentAt, &s.CreatedAt,
	)
	if err != nil {
		return sponsorship.Sponsorship{}, err
	}
	s.Tier = pricing.Tier(tier)
	if sentAt.Valid {
		t := sentAt.Time.UTC()
		s.CertificateSentAt = &t
	}
	return s, nil
}

func splitSlugs(raw string) []string {
	out := []string{}
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
