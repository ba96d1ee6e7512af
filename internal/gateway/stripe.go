package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeGateway implements Gateway on top of the Stripe API: a manual-capture
// PaymentIntent is a hold, and Stripe Issuing provides the virtual card.
type StripeGateway struct {
	api *client.API
}

// NewStripeGateway creates a gateway client with the given secret key.
func NewStripeGateway(secretKey string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api}
}

// PlaceHold creates (and, when a payment method is supplied, confirms) a
// manual-capture PaymentIntent. The request reference doubles as the Stripe
// idempotency key, so a retried or reconciled call never places a second hold.
func (g *StripeGateway) PlaceHold(ctx context.Context, req *HoldRequest) (*Hold, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount),
		Currency:           stripe.String(req.Currency),
		CaptureMethod:      stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.PaymentMethod != "" {
		params.PaymentMethod = stripe.String(req.PaymentMethod)
		params.Confirm = stripe.Bool(true)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.Reference)
	params.AddMetadata("reference", req.Reference)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classify(err)
	}

	return &Hold{Ref: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// VoidHold cancels the PaymentIntent behind a hold.
func (g *StripeGateway) VoidHold(ctx context.Context, holdRef string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	_, err := g.api.PaymentIntents.Cancel(holdRef, params)
	if err != nil {
		return classify(err)
	}
	return nil
}

// CaptureHold captures the full amount of a hold.
func (g *StripeGateway) CaptureHold(ctx context.Context, holdRef string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx

	_, err := g.api.PaymentIntents.Capture(holdRef, params)
	if err != nil {
		return classify(err)
	}
	return nil
}

// IssueVirtualCard creates an Issuing cardholder and a virtual card with an
// all-time spending limit equal to the funded amount.
func (g *StripeGateway) IssueVirtualCard(ctx context.Context, fundedAmount int64, currency string) (*VirtualCard, error) {
	holderParams := &stripe.IssuingCardholderParams{
		Name:   stripe.String("Trip Organizer"),
		Type:   stripe.String(string(stripe.IssuingCardholderTypeIndividual)),
		Status: stripe.String(string(stripe.IssuingCardholderStatusActive)),
		Billing: &stripe.IssuingCardholderBillingParams{
			Address: &stripe.AddressParams{
				Line1:      stripe.String("123 Main Street"),
				City:       stripe.String("San Francisco"),
				State:      stripe.String("CA"),
				PostalCode: stripe.String("94111"),
				Country:    stripe.String("US"),
			},
		},
	}
	holderParams.Context = ctx

	holder, err := g.api.IssuingCardholders.New(holderParams)
	if err != nil {
		return nil, classify(err)
	}

	cardParams := &stripe.IssuingCardParams{
		Cardholder: stripe.String(holder.ID),
		Currency:   stripe.String(currency),
		Type:       stripe.String(string(stripe.IssuingCardTypeVirtual)),
		Status:     stripe.String(string(stripe.IssuingCardStatusActive)),
		SpendingControls: &stripe.IssuingCardSpendingControlsParams{
			SpendingLimits: []*stripe.IssuingCardSpendingControlsSpendingLimitParams{
				{
					Amount:   stripe.Int64(fundedAmount),
					Interval: stripe.String(string(stripe.IssuingCardSpendingControlsSpendingLimitIntervalAllTime)),
				},
			},
		},
	}
	cardParams.Context = ctx

	card, err := g.api.IssuingCards.New(cardParams)
	if err != nil {
		return nil, classify(err)
	}

	return &VirtualCard{
		Ref:      card.ID,
		LastFour: card.Last4,
		Brand:    string(card.Brand),
		ExpMonth: int(card.ExpMonth),
		ExpYear:  int(card.ExpYear),
	}, nil
}

// FindHoldByReference searches PaymentIntents by the reference metadata the
// hold was placed with.
func (g *StripeGateway) FindHoldByReference(ctx context.Context, reference string) (*HoldLookup, error) {
	params := &stripe.PaymentIntentSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   fmt.Sprintf("metadata['reference']:'%s'", reference),
			Context: ctx,
		},
	}

	iter := g.api.PaymentIntents.Search(params)
	for iter.Next() {
		pi := iter.PaymentIntent()
		return &HoldLookup{
			State:        holdStateOf(pi.Status),
			Ref:          pi.ID,
			ClientSecret: pi.ClientSecret,
		}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, classify(err)
	}

	return &HoldLookup{State: HoldStateNotFound}, nil
}

func holdStateOf(status stripe.PaymentIntentStatus) HoldState {
	switch status {
	case stripe.PaymentIntentStatusRequiresCapture:
		return HoldStateAuthorized
	case stripe.PaymentIntentStatusSucceeded:
		return HoldStateCaptured
	case stripe.PaymentIntentStatusCanceled:
		return HoldStateCanceled
	default:
		return HoldStateProcessing
	}
}

// classify maps raw Stripe and network errors onto the gateway error
// taxonomy: card errors become declines, 5xx and rate limits become
// transient, and timeouts stay ambiguous.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Type == stripe.ErrorTypeCard:
			reason := string(stripeErr.DeclineCode)
			if reason == "" {
				reason = string(stripeErr.Code)
			}
			return &DeclinedError{Reason: reason}
		case stripeErr.HTTPStatusCode >= 500,
			stripeErr.Code == stripe.ErrorCodeRateLimit,
			stripeErr.Type == stripe.ErrorTypeAPI:
			return &TransientError{Err: err}
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrTimeout
		}
		return &TransientError{Err: err}
	}

	return err
}
