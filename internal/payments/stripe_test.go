package payments

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"coralrefuge.org/internal/sponsorship"
)

const testSecret = "whsec_test_secret"

func sessionRequest(recurring bool) sponsorship.SessionRequest {
	return sponsorship.SessionRequest{
		AmountCents:      75000,
		Currency:         "usd",
		Description:      "5 hectares of Cabo Pulmo National Park",
		BuyerEmail:       "kai@example.org",
		PartnerAccountID: "acct_pulmo",
		PlatformFeeCents: 11250,
		FeePercent:       15,
		Recurring:        recurring,
		SuccessURL:       "https://coralrefuge.org/sponsor/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:        "https://coralrefuge.org/sponsor/cabo-pulmo",
		Metadata:         map[string]string{"area_slug": "cabo-pulmo"},
	}
}

func TestSessionParamsOneTime(t *testing.T) {
	p := sessionParams(sessionRequest(false))

	require.Equal(t, string(stripe.CheckoutSessionModePayment), stripe.StringValue(p.Mode))
	require.Equal(t, "kai@example.org", stripe.StringValue(p.CustomerEmail))
	require.Len(t, p.LineItems, 1)
	item := p.LineItems[0]
	require.EqualValues(t, 1, stripe.Int64Value(item.Quantity))
	require.EqualValues(t, 75000, stripe.Int64Value(item.PriceData.UnitAmount))
	require.Equal(t, "usd", stripe.StringValue(item.PriceData.Currency))
	require.Equal(t, "5 hectares of Cabo Pulmo National Park", stripe.StringValue(item.PriceData.ProductData.Name))
	require.Nil(t, item.PriceData.Recurring)

	require.NotNil(t, p.PaymentIntentData)
	require.EqualValues(t, 11250, stripe.Int64Value(p.PaymentIntentData.ApplicationFeeAmount))
	require.Equal(t, "acct_pulmo", stripe.StringValue(p.PaymentIntentData.TransferData.Destination))
	require.Equal(t, "cabo-pulmo", p.PaymentIntentData.Metadata["area_slug"])
	require.Nil(t, p.SubscriptionData)
	require.Equal(t, "cabo-pulmo", p.Metadata["area_slug"])
}

func TestSessionParamsSubscription(t *testing.T) {
	p := sessionParams(sessionRequest(true))

	require.Equal(t, string(stripe.CheckoutSessionModeSubscription), stripe.StringValue(p.Mode))
	require.NotNil(t, p.LineItems[0].PriceData.Recurring)
	require.Equal(t, "month", stripe.StringValue(p.LineItems[0].PriceData.Recurring.Interval))
	require.NotNil(t, p.SubscriptionData)
	require.Equal(t, 15.0, stripe.Float64Value(p.SubscriptionData.ApplicationFeePercent))
	require.Equal(t, "acct_pulmo", stripe.StringValue(p.SubscriptionData.TransferData.Destination))
	require.Nil(t, p.PaymentIntentData)
	require.Nil(t, p.SubmitType)
}

func TestNewStripeRequiresKey(t *testing.T) {
	_, err := NewStripe("  ")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func signed(t *testing.T, payload []byte) string {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return sp.Header
}

func eventJSON(t *testing.T, typ string, object map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":          "evt_test_1",
		"object":      "event",
		"type":        typ,
		"api_version": "2025-03-31.basil",
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	return raw
}

func TestParseWebhookCompletedCheckout(t *testing.T) {
	payload := eventJSON(t, "checkout.session.completed", map[string]any{
		"id":             "cs_test_1",
		"object":         "checkout.session",
		"amount_total":   75000,
		"currency":       "usd",
		"payment_intent": "pi_123",
		"payment_status": "paid",
		"customer_details": map[string]any{
			"email": "kai@example.org",
			"name":  "Kai Nakamura",
		},
		"metadata": map[string]string{"area_slug": "cabo-pulmo", "hectares": "5"},
	})

	evt, err := ParseWebhook(payload, signed(t, payload), testSecret)
	require.NoError(t, err)
	require.Equal(t, "checkout.session.completed", evt.Type)
	require.NotNil(t, evt.Checkout)

	cc := evt.Checkout
	require.Equal(t, "cs_test_1", cc.SessionID)
	require.Equal(t, "pi_123", cc.PaymentIntentID)
	require.Equal(t, "kai@example.org", cc.CustomerEmail)
	require.Equal(t, "Kai Nakamura", cc.CustomerName)
	require.EqualValues(t, 75000, cc.AmountTotal)
	require.Equal(t, "usd", cc.Currency)
	require.Equal(t, "5", cc.Metadata["hectares"])
	require.Equal(t, "paid", cc.PaymentStatus)
}

func TestParseWebhookWaitsForDelayedPayment(t *testing.T) {
	session := func(status string) map[string]any {
		return map[string]any{
			"id":             "cs_test_ach",
			"object":         "checkout.session",
			"amount_total":   75000,
			"currency":       "usd",
			"payment_status": status,
			"metadata":       map[string]string{"area_slug": "cabo-pulmo"},
		}
	}

	completed := eventJSON(t, "checkout.session.completed", session("unpaid"))
	evt, err := ParseWebhook(completed, signed(t, completed), testSecret)
	require.NoError(t, err)
	require.Nil(t, evt.Checkout)
	require.True(t, evt.AwaitingPayment)

	succeeded := eventJSON(t, "checkout.session.async_payment_succeeded", session("paid"))
	evt, err = ParseWebhook(succeeded, signed(t, succeeded), testSecret)
	require.NoError(t, err)
	require.False(t, evt.AwaitingPayment)
	require.NotNil(t, evt.Checkout)
	require.Equal(t, "cs_test_ach", evt.Checkout.SessionID)

	failed := eventJSON(t, "checkout.session.async_payment_failed", session("unpaid"))
	evt, err = ParseWebhook(failed, signed(t, failed), testSecret)
	require.NoError(t, err)
	require.Nil(t, evt.Checkout)
	require.False(t, evt.AwaitingPayment)

	free := eventJSON(t, "checkout.session.completed", session("no_payment_required"))
	evt, err = ParseWebhook(free, signed(t, free), testSecret)
	require.NoError(t, err)
	require.NotNil(t, evt.Checkout)
}

func TestParseWebhookOtherEventTypes(t *testing.T) {
	payload := eventJSON(t, "payment_intent.created", map[string]any{"id": "pi_1", "object": "payment_intent"})
	evt, err := ParseWebhook(payload, signed(t, payload), testSecret)
	require.NoError(t, err)
	require.Equal(t, "payment_intent.created", evt.Type)
	require.Nil(t, evt.Checkout)
}

func TestParseWebhookRejectsBadSignatures(t *testing.T) {
	payload := eventJSON(t, "checkout.session.completed", map[string]any{"id": "cs_1"})

	_, err := ParseWebhook(payload, "", testSecret)
	require.ErrorIs(t, err, ErrInvalidSignature)

	_, err = ParseWebhook(payload, "t=1,v1=deadbeef", testSecret)
	require.ErrorIs(t, err, ErrInvalidSignature)

	header := signed(t, payload)
	_, err = ParseWebhook(payload, header, "whsec_other")
	require.ErrorIs(t, err, ErrInvalidSignature)

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-2] = ' '
	_, err = ParseWebhook(tampered, header, testSecret)
	require.True(t, errors.Is(err, ErrInvalidSignature))
}
