package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"coralrefuge.org/internal/catalog"
	"coralrefuge.org/internal/pricing"
	"coralrefuge.org/internal/sponsorship"
)

type quoteResponse struct {
	Area     catalog.Area  `json:"area"`
	Currency string        `json:"currency"`
	Quote    pricing.Quote `json:"quote"`
	Split    pricing.Split `json:"split"`
}

func (a *API) listAreas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"items":    a.catalog.All(),
		"currency": a.checkout.Currency(),
	})
}

func (a *API) quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hectares, err := parseIntParam(q.Get("hectares"), "hectares", 0, 1, 1<<20)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_selection", err.Error())
		return
	}
	years, err := parseIntParam(q.Get("years"), "years", 0, 0, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_selection", err.Error())
		return
	}
	var missing []string
	if strings.TrimSpace(q.Get("area")) == "" {
		missing = append(missing, "area")
	}
	if hectares == 0 {
		missing = append(missing, "hectares")
	}
	if strings.TrimSpace(q.Get("tier")) == "" {
		missing = append(missing, "tier")
	}
	if len(missing) > 0 {
		handleCheckoutError(w, r, &sponsorship.MissingFieldsError{Fields: missing})
		return
	}
	tier, err := pricing.ParseTier(q.Get("tier"))
	if err != nil {
		handleCheckoutError(w, r, err)
		return
	}

	area, quote, err := a.checkout.Quote(q.Get("area"), pricing.Selection{Hectares: hectares, Tier: tier, Years: years})
	if err != nil {
		handleCheckoutError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		Area:     area,
		Currency: a.checkout.Currency(),
		Quote:    quote,
		Split:    pricing.FeeSplit(quote.Total),
	})
}

func (a *API) startCheckout(w http.ResponseWriter, r *http.Request) {
	var req sponsorship.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	res, err := a.checkout.Start(r.Context(), req)
	if err != nil {
		handleCheckoutError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func handleCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	var missing *sponsorship.MissingFieldsError
	switch {
	case errors.As(err, &missing):
		writeErrorWith(w, r, http.StatusBadRequest, "missing_fields", err.Error(), map[string]any{"fields": missing.Fields})
	case errors.Is(err, sponsorship.ErrInvalidEmail):
		writeError(w, r, http.StatusBadRequest, "invalid_email", err.Error())
	case errors.Is(err, sponsorship.ErrFieldTooLong):
		writeError(w, r, http.StatusBadRequest, "field_too_long", err.Error())
	case errors.Is(err, sponsorship.ErrInvalidSelection), errors.Is(err, pricing.ErrUnknownTier):
		writeError(w, r, http.StatusBadRequest, "invalid_selection", err.Error())
	case sponsorship.PartnerUnavailable(err):
		writeError(w, r, http.StatusConflict, "partner_unavailable", "this area cannot be sponsored right now")
	case errors.Is(err, sponsorship.ErrProcessor):
		writeError(w, r, http.StatusBadGateway, "processor_error", "payment processor is unavailable, please try again")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}
