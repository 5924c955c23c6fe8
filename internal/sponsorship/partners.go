package sponsorship

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"strings"

	"coralrefuge.org/internal/catalog"
)

// Partners manages partner accounts on behalf of administrators. It keeps the
// rule that every area has at most one active partner.
type Partners struct {
	store   Store
	catalog *catalog.Catalog
}

func NewPartners(store Store, cat *catalog.Catalog) *Partners {
	return &Partners{store: store, catalog: cat}
}

func (ps *Partners) List(ctx context.Context) ([]Partner, error) {
	return ps.store.ListPartners(ctx)
}

func (ps *Partners) Create(ctx context.Context, p Partner) (Partner, error) {
	p, err := ps.normalize(p)
	if err != nil {
		return Partner{}, err
	}
	if err := ps.checkOverlap(ctx, p); err != nil {
		return Partner{}, err
	}
	return ps.store.CreatePartner(ctx, p)
}

func (ps *Partners) Update(ctx context.Context, p Partner) (Partner, error) {
	if _, err := ps.store.GetPartner(ctx, p.ID); err != nil {
		return Partner{}, err
	}
	p, err := ps.normalize(p)
	if err != nil {
		return Partner{}, err
	}
	if err := ps.checkOverlap(ctx, p); err != nil {
		return Partner{}, err
	}
	return ps.store.UpdatePartner(ctx, p)
}

func (ps *Partners) normalize(p Partner) (Partner, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.StripeAccountID = strings.TrimSpace(p.StripeAccountID)
	p.ContactEmail = strings.TrimSpace(p.ContactEmail)
	if p.Name == "" {
		return Partner{}, fmt.Errorf("%w: name is required", ErrInvalidPartner)
	}
	if !strings.HasPrefix(p.StripeAccountID, "acct_") {
		return Partner{}, fmt.Errorf("%w: stripe_account_id must be a connected account id", ErrInvalidPartner)
	}
	if p.ContactEmail != "" {
		if _, err := mail.ParseAddress(p.ContactEmail); err != nil {
			return Partner{}, fmt.Errorf("%w: contact_email: %v", ErrInvalidPartner, err)
		}
	}
	seen := make(map[string]bool, len(p.AreaSlugs))
	slugs := make([]string, 0, len(p.AreaSlugs))
	for _, raw := range p.AreaSlugs {
		area, err := ps.catalog.Get(raw)
		if err != nil {
			return Partner{}, fmt.Errorf("%w: %v", ErrInvalidPartner, err)
		}
		if !seen[area.Slug] {
			seen[area.Slug] = true
			slugs = append(slugs, area.Slug)
		}
	}
	if len(slugs) == 0 {
		return Partner{}, fmt.Errorf("%w: at least one area is required", ErrInvalidPartner)
	}
	sort.Strings(slugs)
	p.AreaSlugs = slugs
	return p, nil
}

func (ps *Partners) checkOverlap(ctx context.Context, p Partner) error {
	if !p.Active {
		return nil
	}
	all, err := ps.store.ListPartners(ctx)
	if err != nil {
		return err
	}
	for _, other := range all {
		if other.ID == p.ID || !other.Active {
			continue
		}
		for _, slug := range p.AreaSlugs {
			if other.Manages(slug) {
				return fmt.Errorf("%w: area %q is already managed by active partner %q", ErrConflict, slug, other.Name)
			}
		}
	}
	return nil
}
