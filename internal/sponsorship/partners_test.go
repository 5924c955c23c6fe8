package sponsorship

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPartnersCreateNormalizes(t *testing.T) {
	ps := NewPartners(NewInMemory(), testCatalog(t))
	p, err := ps.Create(context.Background(), Partner{
		Name:            "  Sulu Reef Trust ",
		StripeAccountID: "acct_sulu",
		AreaSlugs:       []string{"Tubbataha", "glovers-reef", "tubbataha"},
		Active:          true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	require.Equal(t, "Sulu Reef Trust", p.Name)
	require.Equal(t, []string{"glovers-reef", "tubbataha"}, p.AreaSlugs)
}

func TestPartnersValidation(t *testing.T) {
	ps := NewPartners(NewInMemory(), testCatalog(t))
	cases := map[string]Partner{
		"no name":      {StripeAccountID: "acct_x", AreaSlugs: []string{"tubbataha"}},
		"bad account":  {Name: "X", StripeAccountID: "x", AreaSlugs: []string{"tubbataha"}},
		"no areas":     {Name: "X", StripeAccountID: "acct_x"},
		"unknown area": {Name: "X", StripeAccountID: "acct_x", AreaSlugs: []string{"atlantis"}},
		"bad email":    {Name: "X", StripeAccountID: "acct_x", AreaSlugs: []string{"tubbataha"}, ContactEmail: "nope"},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ps.Create(context.Background(), p)
			require.ErrorIs(t, err, ErrInvalidPartner)
		})
	}
}

func TestPartnersRejectOverlappingActiveAreas(t *testing.T) {
	ctx := context.Background()
	st := NewInMemory()
	ps := NewPartners(st, testCatalog(t))

	first, err := ps.Create(ctx, Partner{Name: "A", StripeAccountID: "acct_a", AreaSlugs: []string{"cabo-pulmo"}, Active: true})
	require.NoError(t, err)

	_, err = ps.Create(ctx, Partner{Name: "B", StripeAccountID: "acct_b", AreaSlugs: []string{"cabo-pulmo"}, Active: true})
	require.ErrorIs(t, err, ErrConflict)

	// an inactive partner may be staged for the same area
	second, err := ps.Create(ctx, Partner{Name: "B", StripeAccountID: "acct_b", AreaSlugs: []string{"cabo-pulmo"}})
	require.NoError(t, err)

	first.Active = false
	_, err = ps.Update(ctx, first)
	require.NoError(t, err)

	second.Active = true
	updated, err := ps.Update(ctx, second)
	require.NoError(t, err)
	require.True(t, updated.Active)

	active, err := st.ActivePartnerForArea(ctx, "cabo-pulmo")
	require.NoError(t, err)
	require.Equal(t, second.ID, active.ID)
}

func TestPartnersUpdateUnknown(t *testing.T) {
	ps := NewPartners(NewInMemory(), testCatalog(t))
	_, err := ps.Update(context.Background(), Partner{ID: "missing", Name: "X", StripeAccountID: "acct_x", AreaSlugs: []string{"tubbataha"}})
	require.ErrorIs(t, err, ErrNotFound)
}
