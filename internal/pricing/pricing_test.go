package pricing

import (
	"math"
	"math/rand"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"
)

var reef = Rates{PerHectare: 15000, MonthlyPerHectare: 1500}

func TestSingleYearScenario(t *testing.T) {
	q, err := Calculate(Selection{Hectares: 5, Tier: TierSingleYear}, reef, 0)
	require.NoError(t, err)
	require.Equal(t, int64(75000), q.Total)
	require.Zero(t, q.Savings)

	split := FeeSplit(q.Total)
	require.Equal(t, int64(11250), split.PlatformFee)
	require.Equal(t, int64(63750), split.PartnerAmount)
}

func TestMultiYearScenario(t *testing.T) {
	q, err := Calculate(Selection{Hectares: 2, Tier: TierMultiYear, Years: 3}, reef, 0)
	require.NoError(t, err)
	require.Equal(t, int64(13500), q.EffectivePerHectare)
	require.Equal(t, int64(81000), q.Total)
	require.Equal(t, int64(9000), q.Savings)
	require.Equal(t, int64(10), q.DiscountPercent)
}

func TestDiscountTable(t *testing.T) {
	cases := map[int]int64{1: 0, 2: 5, 3: 10, 4: 0, 5: 15, 10: 0}
	for years, want := range cases {
		require.Equal(t, want, DiscountPercent(years), "years=%d", years)
	}
	for _, years := range SupportedDurations() {
		q, err := Calculate(Selection{Hectares: 1, Tier: TierMultiYear, Years: years}, reef, 0)
		require.NoError(t, err)
		require.Equal(t, reef.PerHectare*(100-DiscountPercent(years))/100, q.EffectivePerHectare)
	}
}

func TestUnsupportedDurationRejected(t *testing.T) {
	for _, years := range []int{0, 1, 4, 6, 10} {
		_, err := Calculate(Selection{Hectares: 1, Tier: TierMultiYear, Years: years}, reef, 0)
		require.ErrorIs(t, err, ErrUnsupportedDuration, "years=%d", years)
	}
}

func TestMonthlyTier(t *testing.T) {
	q, err := Calculate(Selection{Hectares: 4, Tier: TierMonthly}, reef, 0)
	require.NoError(t, err)
	require.Equal(t, int64(6000), q.Total)
	require.True(t, q.Recurring)
	require.Equal(t, MinimumCommitmentMonths, q.MinimumMonths)
}

func TestHectareBounds(t *testing.T) {
	_, err := Calculate(Selection{Hectares: 0, Tier: TierSingleYear}, reef, 0)
	require.ErrorIs(t, err, ErrInvalidHectares)
	_, err = Calculate(Selection{Hectares: 51, Tier: TierSingleYear}, reef, 0)
	require.ErrorIs(t, err, ErrInvalidHectares)
	_, err = Calculate(Selection{Hectares: 11, Tier: TierSingleYear}, reef, 10)
	require.ErrorIs(t, err, ErrInvalidHectares)
	_, err = Calculate(Selection{Hectares: 50, Tier: TierSingleYear}, reef, 0)
	require.NoError(t, err)
}

func TestUnknownTierAndRates(t *testing.T) {
	_, err := Calculate(Selection{Hectares: 1, Tier: "lifetime"}, reef, 0)
	require.ErrorIs(t, err, ErrUnknownTier)
	_, err = Calculate(Selection{Hectares: 1, Tier: TierMonthly}, Rates{PerHectare: 100}, 0)
	require.ErrorIs(t, err, ErrInvalidRate)
}

func TestParseTier(t *testing.T) {
	cases := map[string]Tier{
		"":            TierSingleYear,
		"single_year": TierSingleYear,
		"Multi-Year":  TierMultiYear,
		" monthly ":   TierMonthly,
	}
	for in, want := range cases {
		got, err := ParseTier(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got)
	}
	_, err := ParseTier("weekly")
	require.ErrorIs(t, err, ErrUnknownTier)
}

func TestCalculateIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tiers := []Tier{TierSingleYear, TierMultiYear, TierMonthly}
	for i := 0; i < 500; i++ {
		sel := Selection{
			Hectares: 1 + rng.Intn(DefaultMaxHectares),
			Tier:     tiers[rng.Intn(len(tiers))],
			Years:    SupportedDurations()[rng.Intn(3)],
		}
		a, errA := Calculate(sel, reef, 0)
		b, errB := Calculate(sel, reef, 0)
		require.NoError(t, errA)
		require.NoError(t, errB)
		require.Equal(t, a, b)
	}
}

func TestFeeSplitSumsExactly(t *testing.T) {
	check := func(total int64) bool {
		if total < 0 {
			total = -(total + 1)
		}
		s := FeeSplit(total)
		return s.PlatformFee+s.PartnerAmount == total && s.PlatformFee >= 0 && s.PartnerAmount >= 0
	}
	require.NoError(t, quick.Check(check, &quick.Config{MaxCount: 20000}))

	edges := []int64{0, 1, 2, 3, 7, 19, 20, 99, 100, 101, 333, 9999, 10001, 123457, math.MaxInt32, math.MaxInt64 - 1, math.MaxInt64}
	for _, total := range edges {
		s := FeeSplit(total)
		require.Equal(t, total, s.PlatformFee+s.PartnerAmount, "total=%d", total)
	}
}

func TestFeeSplitRounding(t *testing.T) {
	cases := []struct {
		total, fee int64
	}{
		{total: 1, fee: 0},  // 0.15
		{total: 3, fee: 0},  // 0.45
		{total: 4, fee: 1},  // 0.60
		{total: 10, fee: 2}, // 1.5 rounds half up
		{total: 333, fee: 50},
		{total: 75000, fee: 11250},
		{total: math.MaxInt64, fee: 1383505805528216371},
	}
	for _, tc := range cases {
		require.Equal(t, tc.fee, FeeSplit(tc.total).PlatformFee, "total=%d", tc.total)
	}
}

func TestFeeSplitNonPositive(t *testing.T) {
	require.Equal(t, Split{PlatformFee: 0, PartnerAmount: 0}, FeeSplit(0))
	require.Equal(t, Split{PlatformFee: 0, PartnerAmount: -5}, FeeSplit(-5))
}
