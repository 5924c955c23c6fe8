package sponsorship

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"coralrefuge.org/internal/catalog"
	"coralrefuge.org/internal/obs"
	"coralrefuge.org/internal/pricing"
)

// CheckoutConfig holds the values a checkout session is built from.
type CheckoutConfig struct {
	PublicBaseURL string
	Currency      string
	MaxHectares   int
}

// Checkout prices a selection and opens a processor session for it.
// Nothing is persisted: the processor is the system of record until the
// completed-checkout callback arrives.
type Checkout struct {
	catalog   *catalog.Catalog
	store     Store
	processor Processor
	cfg       CheckoutConfig
}

func NewCheckout(cat *catalog.Catalog, store Store, proc Processor, cfg CheckoutConfig) *Checkout {
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	cfg.Currency = strings.ToLower(strings.TrimSpace(cfg.Currency))
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.MaxHectares <= 0 {
		cfg.MaxHectares = pricing.DefaultMaxHectares
	}
	return &Checkout{catalog: cat, store: store, processor: proc, cfg: cfg}
}

// Currency is the charge currency of every session.
func (c *Checkout) Currency() string { return c.cfg.Currency }

// Quote prices sel for the area. Errors wrap ErrInvalidSelection.
func (c *Checkout) Quote(areaSlug string, sel pricing.Selection) (catalog.Area, pricing.Quote, error) {
	area, err := c.catalog.Get(areaSlug)
	if err != nil {
		return catalog.Area{}, pricing.Quote{}, fmt.Errorf("%w: %w", ErrInvalidSelection, err)
	}
	q, err := pricing.Calculate(sel, area.Rates(), area.MaxHectares(c.cfg.MaxHectares))
	if err != nil {
		return catalog.Area{}, pricing.Quote{}, fmt.Errorf("%w: %w", ErrInvalidSelection, err)
	}
	return area, q, nil
}

// Start validates req, resolves the partner, prices the selection and creates
// exactly one processor session.
func (c *Checkout) Start(ctx context.Context, req CheckoutRequest) (StartResult, error) {
	res, err := c.start(ctx, req)
	switch {
	case err == nil:
		obs.CheckoutResult("created")
	case PartnerUnavailable(err):
		obs.CheckoutResult("partner_unavailable")
	case errors.Is(err, ErrProcessor):
		obs.CheckoutResult("processor_error")
	default:
		obs.CheckoutResult("invalid")
	}
	return res, err
}

func (c *Checkout) start(ctx context.Context, req CheckoutRequest) (StartResult, error) {
	req = normalizeRequest(req)
	if err := validateRequest(req); err != nil {
		return StartResult{}, err
	}
	tier, err := pricing.ParseTier(req.Tier)
	if err != nil {
		return StartResult{}, fmt.Errorf("%w: %w", ErrInvalidSelection, err)
	}
	area, quote, err := c.Quote(req.AreaSlug, pricing.Selection{Hectares: req.Hectares, Tier: tier, Years: req.Years})
	if err != nil {
		return StartResult{}, err
	}

	// Resolve routing before talking to the processor.
	partner, err := c.store.ActivePartnerForArea(ctx, area.Slug)
	if err != nil {
		return StartResult{}, fmt.Errorf("area %s: %w", area.Slug, err)
	}

	split := pricing.FeeSplit(quote.Total)
	md := Metadata{
		AreaSlug:           area.Slug,
		AreaName:           area.Name,
		Hectares:           quote.Hectares,
		AmountCents:        quote.Total,
		Currency:           c.cfg.Currency,
		Anonymous:          req.Anonymous,
		PartnerID:          partner.ID,
		PartnerName:        partner.Name,
		PartnerAccount:     partner.StripeAccountID,
		PlatformFeeCents:   split.PlatformFee,
		PartnerAmountCents: split.PartnerAmount,
		Tier:               quote.Tier,
		Years:              quote.Years,
		Subscription:       quote.Recurring,
		BuyerName:          req.Name,
		Company:            req.Company,
		MinimumMonths:      quote.MinimumMonths,
	}
	sreq := SessionRequest{
		AmountCents:      quote.Total,
		Currency:         c.cfg.Currency,
		Description:      Description(quote.Hectares, area.Name),
		BuyerEmail:       req.Email,
		PartnerAccountID: partner.StripeAccountID,
		PlatformFeeCents: split.PlatformFee,
		FeePercent:       pricing.PlatformFeePercent(),
		Recurring:        quote.Recurring,
		SuccessURL:       c.cfg.PublicBaseURL + "/sponsor/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:        c.cfg.PublicBaseURL + "/sponsor/" + area.Slug,
		Metadata:         md.Encode(),
	}

	sess, err := c.processor.CreateSession(ctx, sreq)
	if err != nil {
		obs.Logger().Error().Err(err).Str("area", area.Slug).Int64("amount_cents", quote.Total).Msg("checkout_session_failed")
		return StartResult{}, fmt.Errorf("%w: %w", ErrProcessor, err)
	}
	obs.Logger().Info().
		Str("session_id", sess.ID).
		Str("area", area.Slug).
		Str("tier", string(quote.Tier)).
		Int("hectares", quote.Hectares).
		Int64("amount_cents", quote.Total).
		Msg("checkout_session_created")

	return StartResult{SessionID: sess.ID, RedirectURL: sess.URL, Quote: quote, Split: split}, nil
}

// Description is the line-item text, e.g. "5 hectares of Cabo Pulmo National Park".
func Description(hectares int, areaName string) string {
	unit := "hectares"
	if hectares == 1 {
		unit = "hectare"
	}
	return fmt.Sprintf("%d %s of %s", hectares, unit, areaName)
}

func normalizeRequest(req CheckoutRequest) CheckoutRequest {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Company = strings.TrimSpace(req.Company)
	req.AreaSlug = strings.ToLower(strings.TrimSpace(req.AreaSlug))
	req.Tier = strings.TrimSpace(req.Tier)
	return req
}

// Free-text fields are copied into processor metadata, which caps values at
// 500 characters.
const (
	maxNameRunes  = 200
	maxEmailBytes = 254
)

func validateRequest(req CheckoutRequest) error {
	var missing []string
	if req.Name == "" {
		missing = append(missing, "name")
	}
	if req.Email == "" {
		missing = append(missing, "email")
	}
	if req.AreaSlug == "" {
		missing = append(missing, "area")
	}
	if req.Hectares == 0 {
		missing = append(missing, "hectares")
	}
	if req.Tier == "" {
		missing = append(missing, "tier")
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	if utf8.RuneCountInString(req.Name) > maxNameRunes {
		return fmt.Errorf("%w: name exceeds %d characters", ErrFieldTooLong, maxNameRunes)
	}
	if utf8.RuneCountInString(req.Company) > maxNameRunes {
		return fmt.Errorf("%w: company exceeds %d characters", ErrFieldTooLong, maxNameRunes)
	}
	if len(req.Email) > maxEmailBytes {
		return fmt.Errorf("%w: email exceeds %d characters", ErrFieldTooLong, maxEmailBytes)
	}
	addr, err := mail.ParseAddress(req.Email)
	if err != nil || addr.Address != req.Email {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, req.Email)
	}
	return nil
}
