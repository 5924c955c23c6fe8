// Package payments adapts the Stripe API to the sponsorship workflow:
// hosted checkout sessions with Connect routing, and signed webhooks.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"coralrefuge.org/internal/sponsorship"
)

var (
	ErrNotConfigured    = errors.New("stripe: secret key not configured")
	ErrInvalidSignature = errors.New("stripe: invalid webhook signature")
	ErrInvalidPayload   = errors.New("stripe: invalid webhook payload")
)

// Stripe creates checkout sessions with an explicit key; it never touches
// the package-level stripe.Key.
type Stripe struct {
	sessions session.Client
}

// NewStripe returns a processor for secretKey.
func NewStripe(secretKey string) (*Stripe, error) {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil, ErrNotConfigured
	}
	return &Stripe{sessions: session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey}}, nil
}

// CreateSession opens a hosted checkout session for req.
func (s *Stripe) CreateSession(ctx context.Context, req sponsorship.SessionRequest) (sponsorship.Session, error) {
	params := sessionParams(req)
	params.Context = ctx
	cs, err := s.sessions.New(params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) {
			return sponsorship.Session{}, fmt.Errorf("create checkout session: %s (%s)", serr.Msg, serr.Code)
		}
		return sponsorship.Session{}, fmt.Errorf("create checkout session: %w", err)
	}
	return sponsorship.Session{ID: cs.ID, URL: cs.URL}, nil
}

// sessionParams maps a session request onto Stripe parameters.
//
// One-time charges keep the platform fee as an application fee and transfer
// the rest to the partner's connected account. Subscriptions take the fee as
// a percentage of every invoice.
func sessionParams(req sponsorship.SessionRequest) *stripe.CheckoutSessionParams {
	price := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency: stripe.String(req.Currency),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(req.Description),
		},
		UnitAmount: stripe.Int64(req.AmountCents),
	}
	params := &stripe.CheckoutSessionParams{
		CustomerEmail: stripe.String(req.BuyerEmail),
		SuccessURL:    stripe.String(req.SuccessURL),
		CancelURL:     stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: price,
			Quantity:  stripe.Int64(1),
		}},
		Metadata: req.Metadata,
	}

	if req.Recurring {
		price.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		}
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			ApplicationFeePercent: stripe.Float64(req.FeePercent),
			TransferData: &stripe.CheckoutSessionSubscriptionDataTransferDataParams{
				Destination: stripe.String(req.PartnerAccountID),
			},
			Metadata: req.Metadata,
		}
		return params
	}

	params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
	params.SubmitType = stripe.String(string(stripe.CheckoutSessionSubmitTypeDonate))
	params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
		ApplicationFeeAmount: stripe.Int64(req.PlatformFeeCents),
		Description:          stripe.String(req.Description),
		TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
			Destination: stripe.String(req.PartnerAccountID),
		},
		Metadata: req.Metadata,
	}
	return params
}

// Event is a verified webhook event. Checkout is set only for checkout
// sessions whose payment has cleared. AwaitingPayment marks a completed
// session paid with a delayed method; its async_payment_succeeded event
// carries the checkout later.
type Event struct {
	ID              string
	Type            string
	Checkout        *sponsorship.CompletedCheckout
	AwaitingPayment bool
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
func ParseWebhook(payload []byte, sigHeader, secret string) (Event, error) {
	if strings.TrimSpace(sigHeader) == "" || secret == "" {
		return Event{}, ErrInvalidSignature
	}
	evt, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := Event{ID: evt.ID, Type: string(evt.Type)}
	switch evt.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	default:
		return out, nil
	}
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return Event{}, fmt.Errorf("%w: event %s has no data", ErrInvalidPayload, evt.ID)
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &cs); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !paid(cs.PaymentStatus) {
		out.AwaitingPayment = true
		return out, nil
	}
	out.Checkout = completedCheckout(&cs)
	return out, nil
}

func paid(status stripe.CheckoutSessionPaymentStatus) bool {
	return status == stripe.CheckoutSessionPaymentStatusPaid ||
		status == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
}

func completedCheckout(cs *stripe.CheckoutSession) *sponsorship.CompletedCheckout {
	cc := &sponsorship.CompletedCheckout{
		SessionID:     cs.ID,
		PaymentStatus: string(cs.PaymentStatus),
		AmountTotal:   cs.AmountTotal,
		Currency:      string(cs.Currency),
		Metadata:      cs.Metadata,
	}
	if cs.CustomerDetails != nil {
		cc.CustomerEmail = cs.CustomerDetails.Email
		cc.CustomerName = cs.CustomerDetails.Name
	}
	if cs.PaymentIntent != nil {
		cc.PaymentIntentID = cs.PaymentIntent.ID
	}
	if cs.Subscription != nil {
		cc.SubscriptionID = cs.Subscription.ID
	}
	return cc
}
