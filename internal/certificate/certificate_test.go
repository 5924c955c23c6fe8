package certificate

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIDRoundTrip(t *testing.T) {
	issued := time.Date(2026, 5, 17, 10, 0, 0, 0, time.UTC)
	id := NewID("cpu", issued, 42)
	require.Equal(t, "CPU-2026-000042", id.String())

	parsed, err := ParseID(" cpu-2026-000042 ")
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	big := NewID("TUB", issued, 1234567)
	require.Equal(t, "TUB-2026-1234567", big.String())
	parsed, err = ParseID(big.String())
	require.NoError(t, err)
	require.Equal(t, big, parsed)
}

func TestNewIDFallbackCode(t *testing.T) {
	id := NewID("", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 1)
	require.Equal(t, "MPA-2025-000001", id.String())
	require.Equal(t, "MPA-2025-000001", FormatID(" ", 2025, 1))
	require.Equal(t, "GLV-2027-000310", FormatID("glv", 2027, 310))
}

func TestParseIDRejects(t *testing.T) {
	for _, s := range []string{"", "CPU-26-000001", "CPU-2026-1", "C-2026-000001", "CPU-2026-000000", "2b7c1e0f9a"} {
		_, err := ParseID(s)
		require.ErrorIs(t, err, ErrInvalidID, s)
	}
}

func TestExpiresAtIsTenYears(t *testing.T) {
	issued := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2036, 2, 28, 0, 0, 0, 0, time.UTC), ExpiresAt(issued))
}

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "USD 750.00", FormatAmount(75000, "usd"))
	require.Equal(t, "EUR 1,234,567.05", FormatAmount(123456705, "eur"))
	require.Equal(t, "USD 0.99", FormatAmount(99, ""))
	require.Equal(t, "USD -1.50", FormatAmount(-150, "usd"))
}

func sampleData() Data {
	issued := time.Date(2026, 5, 17, 10, 0, 0, 0, time.UTC)
	return Data{
		ID:           "CPU-2026-000042",
		SponsorName:  "Ana Núñez",
		Company:      "Arrecife Ltd",
		AreaName:     "Cabo Pulmo National Park",
		AreaLocation: "Baja California Sur, Mexico",
		Hectares:     5,
		AmountCents:  75000,
		Currency:     "usd",
		IssuedAt:     issued,
		VerifyURL:    "https://coralrefuge.org/registry/CPU-2026-000042",
	}
}

func TestRenderProducesPDF(t *testing.T) {
	out, err := NewRenderer().Render(sampleData())
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF-")), "missing PDF header")
	require.Greater(t, len(out), 1000)
}

func TestRenderRejectsIncompleteData(t *testing.T) {
	d := sampleData()
	d.SponsorName = " "
	d.Hectares = 0
	_, err := NewRenderer().Render(d)
	require.ErrorIs(t, err, ErrIncompleteData)
}

func TestContributionLabel(t *testing.T) {
	d := sampleData()
	require.Equal(t, "USD 750.00", contributionLabel(d))
	d.Years = 3
	require.Equal(t, "USD 750.00 for 3 years", contributionLabel(d))
	d.Years, d.Recurring = 0, true
	require.Equal(t, "USD 750.00 per month", contributionLabel(d))
}
