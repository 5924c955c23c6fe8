package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"coralrefuge.org/internal/audit"
	"coralrefuge.org/internal/auth"
	"coralrefuge.org/internal/sponsorship"
)

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}

type partnerRequest struct {
	Name            string   `json:"name"`
	ContactEmail    string   `json:"contact_email"`
	StripeAccountID string   `json:"stripe_account_id"`
	AreaSlugs       []string `json:"area_slugs"`
	Active          *bool    `json:"active"`
}

func (p partnerRequest) partner(id string) sponsorship.Partner {
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	return sponsorship.Partner{
		ID:              id,
		Name:            p.Name,
		ContactEmail:    p.ContactEmail,
		StripeAccountID: p.StripeAccountID,
		AreaSlugs:       p.AreaSlugs,
		Active:          active,
	}
}

func (a *API) adminLogin(w http.ResponseWriter, r *http.Request) {
	if a.admin == nil {
		writeError(w, r, http.StatusServiceUnavailable, "admin_disabled", "admin API is not configured")
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	token, expiresIn, err := a.admin.Login(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			_ = audit.LogEvent(r.Context(), audit.EventAdminLoginFailed, map[string]any{"remote_ip": clientIP(r)})
			writeError(w, r, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal", "token generation failed")
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventAdminLogin, map[string]any{"remote_ip": clientIP(r)})
	writeJSON(w, http.StatusOK, loginResponse{Token: token, TokenType: "Bearer", ExpiresIn: expiresIn})
}

func (a *API) listSponsorships(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	switch status {
	case "", sponsorship.StatusPending, sponsorship.StatusSent:
	default:
		writeError(w, r, http.StatusBadRequest, "invalid_request", "status must be pending or sent")
		return
	}
	limit, err := parseIntParam(q.Get("limit"), "limit", 50, 1, 500)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	offset, err := parseIntParam(q.Get("offset"), "offset", 0, 0, 1<<30)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	rows, err := a.store.ListSponsorships(r.Context(), sponsorship.ListFilter{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		handleSponsorshipError(w, r, err)
		return
	}
	if rows == nil {
		rows = []sponsorship.Sponsorship{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  rows,
		"status": status,
		"limit":  limit,
		"offset": offset,
	})
}

func (a *API) getSponsorship(w http.ResponseWriter, r *http.Request) {
	s, err := a.store.GetSponsorship(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleSponsorshipError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) resendCertificate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := a.fulfiller.Resend(r.Context(), id)
	fields := map[string]any{"sponsorship_id": id, "ok": err == nil}
	if s.CertificateID != "" {
		fields["certificate_id"] = s.CertificateID
	}
	if !errors.Is(err, sponsorship.ErrNotFound) {
		_ = audit.LogEvent(r.Context(), audit.EventCertificateResend, fields)
	}
	if err != nil {
		handleSponsorshipError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) listPartners(w http.ResponseWriter, r *http.Request) {
	items, err := a.partners.List(r.Context())
	if err != nil {
		handleSponsorshipError(w, r, err)
		return
	}
	if items == nil {
		items = []sponsorship.Partner{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createPartner(w http.ResponseWriter, r *http.Request) {
	var req partnerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	p, err := a.partners.Create(r.Context(), req.partner(""))
	if err != nil {
		handleSponsorshipError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventPartnerCreated, map[string]any{
		"partner_id": p.ID,
		"areas":      p.AreaSlugs,
		"active":     p.Active,
	})
	w.Header().Set("Location", "/v1/admin/partners/"+p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) updatePartner(w http.ResponseWriter, r *http.Request) {
	var req partnerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	p, err := a.partners.Update(r.Context(), req.partner(chi.URLParam(r, "id")))
	if err != nil {
		handleSponsorshipError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventPartnerUpdated, map[string]any{
		"partner_id": p.ID,
		"areas":      p.AreaSlugs,
		"active":     p.Active,
	})
	writeJSON(w, http.StatusOK, p)
}

func handleSponsorshipError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sponsorship.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, sponsorship.ErrInvalidPartner):
		writeError(w, r, http.StatusBadRequest, "invalid_partner", err.Error())
	case errors.Is(err, sponsorship.ErrConflict):
		writeError(w, r, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, sponsorship.ErrDelivery):
		writeError(w, r, http.StatusBadGateway, "delivery_failed", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}
