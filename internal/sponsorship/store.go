package sponsorship

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"coralrefuge.org/internal/ids"
)

// Store persists partners and sponsorships.
type Store interface {
	ActivePartnerForArea(ctx context.Context, areaSlug string) (Partner, error)
	CreatePartner(ctx context.Context, p Partner) (Partner, error)
	UpdatePartner(ctx context.Context, p Partner) (Partner, error)
	GetPartner(ctx context.Context, id string) (Partner, error)
	ListPartners(ctx context.Context) ([]Partner, error)

	// NextCertificateSequence returns a new value of the store-wide
	// certificate counter. Values are never reused; gaps are allowed.
	NextCertificateSequence(ctx context.Context) (int64, error)
	// InsertSponsorship returns ErrDuplicateSession if a row for the same
	// processor session already exists.
	InsertSponsorship(ctx context.Context, s Sponsorship) (Sponsorship, error)
	GetSponsorship(ctx context.Context, id string) (Sponsorship, error)
	GetSponsorshipByCertificate(ctx context.Context, certificateID string) (Sponsorship, error)
	ListSponsorships(ctx context.Context, f ListFilter) ([]Sponsorship, error)
	MarkCertificateSent(ctx context.Context, id string, at time.Time) error
}

// InMemory implements Store with in-process concurrency safety.
// It is used when no database is configured and in tests.
type InMemory struct {
	mu        sync.RWMutex
	partners  map[string]Partner
	rows      map[string]Sponsorship
	bySession map[string]string // session id -> sponsorship id
	byCert    map[string]string // certificate id -> sponsorship id
	seq       int64
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		partners:  make(map[string]Partner),
		rows:      make(map[string]Sponsorship),
		bySession: make(map[string]string),
		byCert:    make(map[string]string),
	}
}

func (s *InMemory) ActivePartnerForArea(ctx context.Context, areaSlug string) (Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found []Partner
	for _, p := range s.partners {
		if p.Active && p.Manages(areaSlug) {
			found = append(found, p)
		}
	}
	switch len(found) {
	case 0:
		return Partner{}, ErrPartnerNotFound
	case 1:
		return clonePartner(found[0]), nil
	}
	return Partner{}, ErrPartnerAmbiguous
}

func (s *InMemory) CreatePartner(ctx context.Context, p Partner) (Partner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = ids.NewAt(now)
	}
	if _, exists := s.partners[p.ID]; exists {
		return Partner{}, ErrConflict
	}
	for _, other := range s.partners {
		if strings.EqualFold(other.StripeAccountID, p.StripeAccountID) {
			return Partner{}, ErrConflict
		}
	}
	p.CreatedAt, p.UpdatedAt = now, now
	p = clonePartner(p)
	s.partners[p.ID] = p
	return clonePartner(p), nil
}

func (s *InMemory) UpdatePartner(ctx context.Context, p Partner) (Partner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.partners[p.ID]
	if !ok {
		return Partner{}, ErrNotFound
	}
	for id, other := range s.partners {
		if id != p.ID && strings.EqualFold(other.StripeAccountID, p.StripeAccountID) {
			return Partner{}, ErrConflict
		}
	}
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	p = clonePartner(p)
	s.partners[p.ID] = p
	return clonePartner(p), nil
}

func (s *InMemory) GetPartner(ctx context.Context, id string) (Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.partners[id]
	if !ok {
		return Partner{}, ErrNotFound
	}
	return clonePartner(p), nil
}

func (s *InMemory) ListPartners(ctx context.Context) ([]Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Partner, 0, len(s.partners))
	for _, p := range s.partners {
		out = append(out, clonePartner(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) NextCertificateSequence(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq, nil
}

func (s *InMemory) InsertSponsorship(ctx context.Context, row Sponsorship) (Sponsorship, error) {
	if row.Hectares < 1 || row.PlatformFeeCents+row.PartnerAmountCents != row.AmountCents {
		return Sponsorship{}, ErrInvalidCheckout
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.bySession[row.StripeSessionID]; dup {
		return Sponsorship{}, ErrDuplicateSession
	}
	if _, dup := s.byCert[row.CertificateID]; dup {
		return Sponsorship{}, ErrConflict
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.ID == "" {
		row.ID = ids.NewAt(row.CreatedAt)
	}
	row.CertificateSent = false
	row.CertificateSentAt = nil
	s.rows[row.ID] = row
	s.bySession[row.StripeSessionID] = row.ID
	s.byCert[row.CertificateID] = row.ID
	return row, nil
}

func (s *InMemory) GetSponsorship(ctx context.Context, id string) (Sponsorship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return Sponsorship{}, ErrNotFound
	}
	return row, nil
}

func (s *InMemory) GetSponsorshipByCertificate(ctx context.Context, certificateID string) (Sponsorship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCert[certificateID]
	if !ok {
		return Sponsorship{}, ErrNotFound
	}
	return s.rows[id], nil
}

func (s *InMemory) ListSponsorships(ctx context.Context, f ListFilter) ([]Sponsorship, error) {
	f = f.Normalize()
	s.mu.RLock()
	all := make([]Sponsorship, 0, len(s.rows))
	for _, row := range s.rows {
		switch f.Status {
		case StatusPending:
			if row.CertificateSent {
				continue
			}
		case StatusSent:
			if !row.CertificateSent {
				continue
			}
		}
		all = append(all, row)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	if f.Offset >= len(all) {
		return []Sponsorship{}, nil
	}
	all = all[f.Offset:]
	if len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, nil
}

func (s *InMemory) MarkCertificateSent(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	row.CertificateSent = true
	row.CertificateSentAt = &at
	s.rows[id] = row
	return nil
}

func clonePartner(p Partner) Partner {
	p.AreaSlugs = append([]string(nil), p.AreaSlugs...)
	return p
}
