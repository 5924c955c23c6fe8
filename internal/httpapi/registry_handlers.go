package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"coralrefuge.org/internal/certificate"
	"coralrefuge.org/internal/sponsorship"
)

type registryItem struct {
	sponsorship.RegistryEntry
	Valid bool `json:"valid"`
}

func (a *API) listRegistry(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r.URL.Query().Get("limit"), "limit", 50, 1, 200)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	offset, err := parseIntParam(r.URL.Query().Get("offset"), "offset", 0, 0, 1<<30)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	rows, err := a.store.ListSponsorships(r.Context(), sponsorship.ListFilter{Limit: limit, Offset: offset})
	if err != nil {
		handleSponsorshipError(w, r, err)
		return
	}
	items := make([]registryItem, 0, len(rows))
	for _, s := range rows {
		items = append(items, a.registryItem(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"limit":  limit,
		"offset": offset,
	})
}

func (a *API) getRegistryEntry(w http.ResponseWriter, r *http.Request) {
	id, err := certificate.ParseID(chi.URLParam(r, "certificateID"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, "not_found", "certificate not found")
		return
	}
	s, err := a.store.GetSponsorshipByCertificate(r.Context(), id.String())
	if err != nil {
		if errors.Is(err, sponsorship.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "certificate not found")
			return
		}
		handleSponsorshipError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.registryItem(s))
}

func (a *API) registryItem(s sponsorship.Sponsorship) registryItem {
	entry := s.Registry()
	return registryItem{RegistryEntry: entry, Valid: a.now().Before(entry.ExpiresAt)}
}
