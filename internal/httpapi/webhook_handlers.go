package httpapi

import (
	"errors"
	"io"
	"net/http"

	"coralrefuge.org/internal/obs"
	"coralrefuge.org/internal/payments"
	"coralrefuge.org/internal/sponsorship"
)

const stripeSignatureHeader = "Stripe-Signature"

// stripeWebhook acknowledges every verified event unless the sponsorship row
// could not be written; only then does the processor need to retry.
func (a *API) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "could not read body")
		return
	}

	evt, err := payments.ParseWebhook(payload, r.Header.Get(stripeSignatureHeader), a.webhookSecret)
	switch {
	case errors.Is(err, payments.ErrInvalidSignature):
		obs.WebhookResult("", "invalid_signature")
		obs.Logger().Warn().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("webhook_signature_rejected")
		writeError(w, r, http.StatusBadRequest, "invalid_signature", "invalid signature")
		return
	case err != nil:
		obs.WebhookResult(evt.Type, "invalid")
		obs.Logger().Error().Err(err).Str("event_id", evt.ID).Msg("webhook_payload_rejected")
		a.ack(w, "invalid")
		return
	}

	log := obs.Logger().With().Str("event_id", evt.ID).Str("event_type", evt.Type).Logger()
	if evt.AwaitingPayment {
		obs.WebhookResult(evt.Type, "awaiting_payment")
		log.Info().Msg("webhook_awaiting_payment")
		a.ack(w, "awaiting_payment")
		return
	}
	if evt.Checkout == nil {
		obs.WebhookResult(evt.Type, "ignored")
		log.Debug().Msg("webhook_ignored")
		a.ack(w, "ignored")
		return
	}

	res, err := a.fulfiller.Fulfill(r.Context(), *evt.Checkout)
	switch {
	case errors.Is(err, sponsorship.ErrInvalidCheckout):
		obs.WebhookResult(evt.Type, "invalid")
		a.ack(w, "invalid")
	case err != nil:
		obs.WebhookResult(evt.Type, "storage_error")
		log.Error().Err(err).Str("session_id", evt.Checkout.SessionID).Msg("webhook_fulfillment_failed")
		writeError(w, r, http.StatusInternalServerError, "storage_error", "could not record sponsorship")
	case res.Duplicate:
		obs.WebhookResult(evt.Type, "duplicate")
		a.ack(w, "duplicate")
	case res.DeliveryErr != nil:
		obs.WebhookResult(evt.Type, "delivery_failed")
		a.ack(w, "delivery_failed")
	default:
		obs.WebhookResult(evt.Type, "fulfilled")
		a.ack(w, "fulfilled")
	}
}

func (a *API) ack(w http.ResponseWriter, result string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"received": true,
		"result":   result,
	})
}
