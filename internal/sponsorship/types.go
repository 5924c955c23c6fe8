// Package sponsorship implements the checkout and fulfillment workflow:
// a priced hectare selection becomes a processor checkout session, and the
// processor's completed-checkout callback becomes a persisted sponsorship with
// an emailed certificate.
package sponsorship

import (
	"strings"
	"time"

	"coralrefuge.org/internal/certificate"
	"coralrefuge.org/internal/pricing"
)

// Partner is the organisation managing one or more protected areas. Its
// processor account receives the partner share of every charge.
type Partner struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	ContactEmail    string    `json:"contact_email,omitempty"`
	StripeAccountID string    `json:"stripe_account_id"`
	AreaSlugs       []string  `json:"area_slugs"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Manages reports whether the partner lists slug among its areas.
func (p Partner) Manages(slug string) bool {
	for _, s := range p.AreaSlugs {
		if s == slug {
			return true
		}
	}
	return false
}

// Sponsorship is a completed, paid order.
type Sponsorship struct {
	ID                    string       `json:"id"`
	StripeSessionID       string       `json:"stripe_session_id"`
	StripePaymentIntentID string       `json:"stripe_payment_intent_id,omitempty"`
	StripeSubscriptionID  string       `json:"stripe_subscription_id,omitempty"`
	BuyerName             string       `json:"buyer_name"`
	BuyerEmail            string       `json:"buyer_email"`
	Company               string       `json:"company,omitempty"`
	AreaSlug              string       `json:"area_slug"`
	AreaName              string       `json:"area_name"`
	Hectares              int          `json:"hectares"`
	AmountCents           int64        `json:"amount_cents"`
	Currency              string       `json:"currency"`
	PlatformFeeCents      int64        `json:"platform_fee_cents"`
	PartnerAmountCents    int64        `json:"partner_amount_cents"`
	PartnerID             string       `json:"partner_id"`
	PartnerName           string       `json:"partner_name"`
	PartnerAccountID      string       `json:"partner_account_id"`
	Tier                  pricing.Tier `json:"tier"`
	Years                 int          `json:"years,omitempty"`
	Anonymous             bool         `json:"anonymous"`
	CertificateID         string       `json:"certificate_id"`
	CertificateSent       bool         `json:"certificate_sent"`
	CertificateSentAt     *time.Time   `json:"certificate_sent_at,omitempty"`
	CreatedAt             time.Time    `json:"created_at"`
}

const anonymousName = "Anonymous"

// DisplayName is the name shown publicly.
func (s Sponsorship) DisplayName() string {
	if s.Anonymous {
		return anonymousName
	}
	if c := strings.TrimSpace(s.Company); c != "" {
		return c
	}
	return s.BuyerName
}

// Recurring reports whether the sponsorship is a monthly subscription.
func (s Sponsorship) Recurring() bool { return s.Tier == pricing.TierMonthly }

// RegistryEntry is the public view of a sponsorship.
type RegistryEntry struct {
	CertificateID string    `json:"certificate_id"`
	SponsorName   string    `json:"sponsor_name"`
	AreaSlug      string    `json:"area_slug"`
	AreaName      string    `json:"area_name"`
	Hectares      int       `json:"hectares"`
	Recurring     bool      `json:"recurring"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Registry returns the public registry entry of s.
func (s Sponsorship) Registry() RegistryEntry {
	return RegistryEntry{
		CertificateID: s.CertificateID,
		SponsorName:   s.DisplayName(),
		AreaSlug:      s.AreaSlug,
		AreaName:      s.AreaName,
		Hectares:      s.Hectares,
		Recurring:     s.Recurring(),
		IssuedAt:      s.CreatedAt,
		ExpiresAt:     certificate.ExpiresAt(s.CreatedAt),
	}
}

// CheckoutRequest is what the buyer submits from the sponsorship form.
type CheckoutRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Company   string `json:"company,omitempty"`
	AreaSlug  string `json:"area"`
	Hectares  int    `json:"hectares"`
	Tier      string `json:"tier"`
	Years     int    `json:"years,omitempty"`
	Anonymous bool   `json:"anonymous"`
}

// SessionRequest is the processor-neutral description of a checkout session.
type SessionRequest struct {
	AmountCents      int64
	Currency         string
	Description      string
	BuyerEmail       string
	PartnerAccountID string
	PlatformFeeCents int64
	// FeePercent applies to subscriptions, where the fee recurs with each invoice.
	FeePercent float64
	Recurring  bool
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// Session is a created processor checkout session.
type Session struct {
	ID  string
	URL string
}

// StartResult is returned to the buyer after a session was created.
type StartResult struct {
	SessionID   string        `json:"session_id"`
	RedirectURL string        `json:"redirect_url"`
	Quote       pricing.Quote `json:"quote"`
	Split       pricing.Split `json:"split"`
}

// CompletedCheckout is a verified checkout session whose payment cleared.
type CompletedCheckout struct {
	SessionID       string
	PaymentStatus   string
	PaymentIntentID string
	SubscriptionID  string
	CustomerEmail   string
	CustomerName    string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
}

// Certificate delivery status filter values.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
)

// ListFilter narrows ListSponsorships. Results are newest first.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Normalize clamps the paging fields.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Status = strings.ToLower(strings.TrimSpace(f.Status))
	return f
}
