package sponsorship

import (
	"fmt"
	"strconv"
	"strings"

	"coralrefuge.org/internal/pricing"
)

// Metadata keys attached to the processor session. The callback carries them
// back and they are the only trusted link to the original order.
const (
	MetaAreaSlug       = "area_slug"
	MetaAreaName       = "area_name"
	MetaHectares       = "hectares"
	MetaAmount         = "amount_cents"
	MetaCurrency       = "currency"
	MetaAnonymous      = "anonymous"
	MetaPartnerID      = "partner_id"
	MetaPartnerName    = "partner_name"
	MetaPartnerAccount = "partner_account"
	MetaPlatformFee    = "platform_fee_cents"
	MetaPartnerAmount  = "partner_amount_cents"
	MetaTier           = "tier"
	MetaYears          = "years"
	MetaSubscription   = "subscription"
	MetaBuyerName      = "buyer_name"
	MetaCompany        = "company"
	MetaMinimumMonths  = "minimum_months"
)

// Metadata is the order reconstructed from the session metadata bag.
type Metadata struct {
	AreaSlug           string
	AreaName           string
	Hectares           int
	AmountCents        int64
	Currency           string
	Anonymous          bool
	PartnerID          string
	PartnerName        string
	PartnerAccount     string
	PlatformFeeCents   int64
	PartnerAmountCents int64
	Tier               pricing.Tier
	Years              int
	Subscription       bool
	BuyerName          string
	Company            string
	MinimumMonths      int
}

// Encode flattens m into processor metadata.
func (m Metadata) Encode() map[string]string {
	out := map[string]string{
		MetaAreaSlug:       m.AreaSlug,
		MetaAreaName:       m.AreaName,
		MetaHectares:       strconv.Itoa(m.Hectares),
		MetaAmount:         strconv.FormatInt(m.AmountCents, 10),
		MetaCurrency:       m.Currency,
		MetaAnonymous:      strconv.FormatBool(m.Anonymous),
		MetaPartnerID:      m.PartnerID,
		MetaPartnerName:    m.PartnerName,
		MetaPartnerAccount: m.PartnerAccount,
		MetaPlatformFee:    strconv.FormatInt(m.PlatformFeeCents, 10),
		MetaPartnerAmount:  strconv.FormatInt(m.PartnerAmountCents, 10),
		MetaTier:           string(m.Tier),
		MetaYears:          strconv.Itoa(m.Years),
		MetaSubscription:   strconv.FormatBool(m.Subscription),
		MetaBuyerName:      m.BuyerName,
	}
	if m.Company != "" {
		out[MetaCompany] = m.Company
	}
	if m.MinimumMonths > 0 {
		out[MetaMinimumMonths] = strconv.Itoa(m.MinimumMonths)
	}
	return out
}

// ParseMetadata reads a metadata bag back. Required keys must be present and
// well formed, and the fee split must add up to the amount.
func ParseMetadata(raw map[string]string) (Metadata, error) {
	if len(raw) == 0 {
		return Metadata{}, fmt.Errorf("%w: metadata missing", ErrInvalidCheckout)
	}
	p := metaParser{raw: raw}
	m := Metadata{
		AreaSlug:           p.str(MetaAreaSlug, true),
		AreaName:           p.str(MetaAreaName, false),
		Hectares:           int(p.num(MetaHectares, true)),
		AmountCents:        p.num(MetaAmount, true),
		Currency:           strings.ToLower(p.str(MetaCurrency, false)),
		Anonymous:          p.flag(MetaAnonymous),
		PartnerID:          p.str(MetaPartnerID, true),
		PartnerName:        p.str(MetaPartnerName, false),
		PartnerAccount:     p.str(MetaPartnerAccount, false),
		PlatformFeeCents:   p.num(MetaPlatformFee, true),
		PartnerAmountCents: p.num(MetaPartnerAmount, true),
		Years:              int(p.num(MetaYears, false)),
		Subscription:       p.flag(MetaSubscription),
		BuyerName:          p.str(MetaBuyerName, false),
		Company:            p.str(MetaCompany, false),
		MinimumMonths:      int(p.num(MetaMinimumMonths, false)),
	}
	if tier := p.str(MetaTier, true); tier != "" {
		t, err := pricing.ParseTier(tier)
		if err != nil {
			p.fail(MetaTier, err.Error())
		}
		m.Tier = t
	}
	if p.err != nil {
		return Metadata{}, p.err
	}

	switch {
	case m.Hectares < 1:
		return Metadata{}, fmt.Errorf("%w: hectares must be >= 1", ErrInvalidCheckout)
	case m.AmountCents <= 0:
		return Metadata{}, fmt.Errorf("%w: amount must be positive", ErrInvalidCheckout)
	case m.PlatformFeeCents+m.PartnerAmountCents != m.AmountCents:
		return Metadata{}, fmt.Errorf("%w: fee split %d+%d does not equal amount %d",
			ErrInvalidCheckout, m.PlatformFeeCents, m.PartnerAmountCents, m.AmountCents)
	case m.PlatformFeeCents != pricing.FeeSplit(m.AmountCents).PlatformFee:
		return Metadata{}, fmt.Errorf("%w: platform fee %d does not match amount %d",
			ErrInvalidCheckout, m.PlatformFeeCents, m.AmountCents)
	}
	return m, nil
}

type metaParser struct {
	raw map[string]string
	err error
}

func (p *metaParser) fail(key, msg string) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: metadata %s %s", ErrInvalidCheckout, key, msg)
	}
}

func (p *metaParser) str(key string, required bool) string {
	v := strings.TrimSpace(p.raw[key])
	if v == "" && required {
		p.fail(key, "missing")
	}
	return v
}

func (p *metaParser) num(key string, required bool) int64 {
	v := p.str(key, required)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.fail(key, "is not an integer")
		return 0
	}
	return n
}

func (p *metaParser) flag(key string) bool {
	v := p.str(key, false)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, "is not a boolean")
	}
	return b
}
