package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"coralrefuge.org/internal/auth"
	"coralrefuge.org/internal/catalog"
	"coralrefuge.org/internal/obs"
	"coralrefuge.org/internal/sponsorship"
	"coralrefuge.org/internal/stream"
)

const serviceName = "coral-refuge-api"

const (
	maxJSONBody    = 1 << 20
	maxWebhookBody = 256 << 10
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings the database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the services the HTTP layer dispatches to.
type Options struct {
	Version   string
	Catalog   *catalog.Catalog
	Store     sponsorship.Store
	Checkout  *sponsorship.Checkout
	Fulfiller *sponsorship.Fulfiller
	Partners  *sponsorship.Partners
	Feed      *stream.Stream

	// Tokens verifies admin bearer tokens; Admin exchanges the password.
	// Both nil disables the admin API.
	Tokens *auth.Issuer
	Admin  *auth.Admin

	WebhookSecret  string
	AllowedOrigins []string
	RateBurst      int
	RatePerSecond  int
}

// API is the HTTP layer.
type API struct {
	router     chi.Router
	readyProbe readinessChecker
	version    string

	catalog   *catalog.Catalog
	store     sponsorship.Store
	checkout  *sponsorship.Checkout
	fulfiller *sponsorship.Fulfiller
	partners  *sponsorship.Partners
	stream    *stream.Stream
	tokens    *auth.Issuer
	admin     *auth.Admin

	webhookSecret  string
	allowedOrigins []string
	rateBurst      int
	ratePerSec     int
	now            func() time.Time
}

func New(rp readinessChecker, opts Options) *API {
	a := &API{
		readyProbe:     rp,
		version:        opts.Version,
		catalog:        opts.Catalog,
		store:          opts.Store,
		checkout:       opts.Checkout,
		fulfiller:      opts.Fulfiller,
		partners:       opts.Partners,
		stream:         opts.Feed,
		tokens:         opts.Tokens,
		admin:          opts.Admin,
		webhookSecret:  opts.WebhookSecret,
		allowedOrigins: opts.AllowedOrigins,
		rateBurst:      opts.RateBurst,
		ratePerSec:     opts.RatePerSecond,
		now:            time.Now,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 10
	}
	a.router = a.routes()
	return a
}

// Handler returns the root http.Handler.
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestID)
	r.Use(LoggingJSON)
	r.Use(obs.Instrument)
	r.Use(SecurityHeaders)
	r.Use(CORS(a.allowedOrigins))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	limited := func(next http.Handler) http.Handler { return RateLimit(next, a.rateBurst, a.ratePerSec) }
	jsonBody := func(next http.Handler) http.Handler { return MaxBodyBytes(next, maxJSONBody) }

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Get("/v1/areas", a.listAreas)
	r.Get("/v1/quote", a.quote)
	r.With(limited, jsonBody).Post("/v1/checkout", a.startCheckout)
	r.With(func(next http.Handler) http.Handler { return MaxBodyBytes(next, maxWebhookBody) }).
		Post("/v1/webhooks/stripe", a.stripeWebhook)

	r.Get("/v1/registry", a.listRegistry)
	r.Get("/v1/registry/{certificateID}", a.getRegistryEntry)
	r.Get("/registry/{certificateID}", a.getRegistryEntry)
	r.Get("/v1/feed", a.Stream)

	r.Route("/v1/admin", func(r chi.Router) {
		r.With(limited, jsonBody).Post("/login", a.adminLogin)
		r.Group(func(r chi.Router) {
			r.Use(a.RequireRole(auth.RoleAdmin))
			r.Get("/sponsorships", a.listSponsorships)
			r.Get("/sponsorships/{id}", a.getSponsorship)
			r.Post("/sponsorships/{id}/resend", a.resendCertificate)
			r.Get("/partners", a.listPartners)
			r.With(jsonBody).Post("/partners", a.createPartner)
			r.With(jsonBody).Put("/partners/{id}", a.updatePartner)
		})
	})
	return r
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    a.now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeErrorWith(w, r, status, code, msg, nil)
}

func writeErrorWith(w http.ResponseWriter, r *http.Request, status int, code, msg string, extra map[string]any) {
	payload := map[string]any{
		"error": msg,
		"code":  code,
	}
	for k, v := range extra {
		payload[k] = v
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, status, payload)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parseIntParam(raw, name string, def, min, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New(name + " must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max))
	}
	return val, nil
}
