// Package pricing turns a hectare selection into a charge and splits that
// charge between the platform and the partner organisation.
//
// Amounts are int64 minor units (cents). No floats.
package pricing

import (
	"errors"
	"fmt"
	"strings"
)

// Tier is the pricing plan picked by the buyer.
type Tier string

const (
	TierSingleYear Tier = "single_year"
	TierMultiYear  Tier = "multi_year"
	TierMonthly    Tier = "monthly"
)

// MinimumCommitmentMonths is the stated minimum term of the monthly tier.
// It is enforced by the processor's subscription configuration, not here.
const MinimumCommitmentMonths = 3

// DefaultMaxHectares caps a single sponsorship.
const DefaultMaxHectares = 50

var (
	ErrUnknownTier         = errors.New("unknown pricing tier")
	ErrUnsupportedDuration = errors.New("unsupported commitment duration")
	ErrInvalidHectares     = errors.New("invalid hectare count")
	ErrInvalidRate         = errors.New("invalid price per hectare")
)

// multi-year discount table, years -> percent
var multiYearDiscounts = map[int]int64{
	2: 5,
	3: 10,
	5: 15,
}

// ParseTier normalises user input ("multi-year", "Monthly", ...) into a Tier.
func ParseTier(raw string) (Tier, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	switch Tier(s) {
	case TierSingleYear, TierMultiYear, TierMonthly:
		return Tier(s), nil
	case "":
		return TierSingleYear, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTier, raw)
}

// DiscountPercent reports the multi-year discount for years. Durations outside
// the table report 0; Calculate rejects them.
func DiscountPercent(years int) int64 {
	return multiYearDiscounts[years]
}

// SupportedDurations lists the accepted multi-year durations in ascending order.
func SupportedDurations() []int {
	return []int{2, 3, 5}
}

// Rates are the per-hectare prices of one protected area.
type Rates struct {
	PerHectare        int64 // single and multi-year base
	MonthlyPerHectare int64
}

// Selection is what the buyer picked.
type Selection struct {
	Hectares int
	Tier     Tier
	Years    int // multi-year only
}

// Quote is the priced selection.
type Quote struct {
	Hectares            int   `json:"hectares"`
	Tier                Tier  `json:"tier"`
	Years               int   `json:"years,omitempty"`
	BasePerHectare      int64 `json:"base_per_hectare_cents"`
	EffectivePerHectare int64 `json:"effective_per_hectare_cents"`
	DiscountPercent     int64 `json:"discount_percent"`
	Total               int64 `json:"total_cents"`
	Savings             int64 `json:"savings_cents"`
	Recurring           bool  `json:"recurring"`
	MinimumMonths       int   `json:"minimum_months,omitempty"`
}

// Calculate prices sel against rates. maxHectares <= 0 falls back to DefaultMaxHectares.
func Calculate(sel Selection, rates Rates, maxHectares int) (Quote, error) {
	if maxHectares <= 0 {
		maxHectares = DefaultMaxHectares
	}
	if sel.Hectares < 1 || sel.Hectares > maxHectares {
		return Quote{}, fmt.Errorf("%w: %d (allowed 1..%d)", ErrInvalidHectares, sel.Hectares, maxHectares)
	}
	h := int64(sel.Hectares)

	switch sel.Tier {
	case TierSingleYear:
		if rates.PerHectare <= 0 {
			return Quote{}, ErrInvalidRate
		}
		return Quote{
			Hectares:            sel.Hectares,
			Tier:                sel.Tier,
			BasePerHectare:      rates.PerHectare,
			EffectivePerHectare: rates.PerHectare,
			Total:               h * rates.PerHectare,
		}, nil

	case TierMultiYear:
		if rates.PerHectare <= 0 {
			return Quote{}, ErrInvalidRate
		}
		pct, ok := multiYearDiscounts[sel.Years]
		if !ok {
			return Quote{}, fmt.Errorf("%w: %d years (supported: %v)", ErrUnsupportedDuration, sel.Years, SupportedDurations())
		}
		effective := roundDiv(rates.PerHectare*(100-pct), 100)
		years := int64(sel.Years)
		total := h * effective * years
		return Quote{
			Hectares:            sel.Hectares,
			Tier:                sel.Tier,
			Years:               sel.Years,
			BasePerHectare:      rates.PerHectare,
			EffectivePerHectare: effective,
			DiscountPercent:     pct,
			Total:               total,
			Savings:             h*rates.PerHectare*years - total,
		}, nil

	case TierMonthly:
		if rates.MonthlyPerHectare <= 0 {
			return Quote{}, ErrInvalidRate
		}
		return Quote{
			Hectares:            sel.Hectares,
			Tier:                sel.Tier,
			BasePerHectare:      rates.MonthlyPerHectare,
			EffectivePerHectare: rates.MonthlyPerHectare,
			Total:               h * rates.MonthlyPerHectare,
			Recurring:           true,
			MinimumMonths:       MinimumCommitmentMonths,
		}, nil
	}
	return Quote{}, fmt.Errorf("%w: %q", ErrUnknownTier, sel.Tier)
}

// roundDiv divides a non-negative numerator rounding half up.
func roundDiv(num, den int64) int64 {
	return (num + den/2) / den
}
