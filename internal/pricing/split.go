package pricing

// PlatformFeeBasisPoints is the platform's share of every charge (15%).
const PlatformFeeBasisPoints = 1500

const basisPointsDenom = 10000

// Split is a charge divided between the platform and the partner.
// PlatformFee + PartnerAmount always equals the original total.
type Split struct {
	PlatformFee   int64 `json:"platform_fee_cents"`
	PartnerAmount int64 `json:"partner_amount_cents"`
}

// FeeSplit divides total into platform fee and partner amount.
//
// The fee is round-half-up of total*15% computed as q*fee + round(r*fee)
// (total = q*10000 + r) so it never overflows int64. The partner gets the
// remainder, which makes the sum exact. Totals <= 0 carry no fee.
func FeeSplit(total int64) Split {
	if total <= 0 {
		return Split{PlatformFee: 0, PartnerAmount: total}
	}
	q, r := total/basisPointsDenom, total%basisPointsDenom
	fee := q*PlatformFeeBasisPoints + roundDiv(r*PlatformFeeBasisPoints, basisPointsDenom)
	return Split{PlatformFee: fee, PartnerAmount: total - fee}
}

// PlatformFeePercent is the fee as a percentage, as subscription APIs expect it.
func PlatformFeePercent() float64 {
	return float64(PlatformFeeBasisPoints) / 100
}
