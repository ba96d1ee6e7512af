package gateway

import (
	"context"
	"errors"
	"fmt"
)

// HoldRequest describes a preauthorization hold to be placed.
type HoldRequest struct {
	Amount      int64  `json:"amount"` // minor currency units
	Currency    string `json:"currency"`
	Reference   string `json:"reference"` // idempotency key, assigned by the caller
	Description string `json:"description,omitempty"`

	// PaymentMethod, when set, confirms the hold server-side. When empty the
	// hold is confirmed by the participant using the returned client secret.
	PaymentMethod string `json:"payment_method,omitempty"`
}

// Hold is a successfully placed preauthorization.
type Hold struct {
	Ref          string `json:"ref"`
	ClientSecret string `json:"client_secret"`
}

// HoldState is the gateway-side state of a hold, used when reconciling
// an ambiguous outcome by reference.
type HoldState string

const (
	HoldStateAuthorized HoldState = "authorized"
	HoldStateCaptured   HoldState = "captured"
	HoldStateCanceled   HoldState = "canceled"
	HoldStateProcessing HoldState = "processing"
	HoldStateNotFound   HoldState = "not_found"
)

// HoldLookup is the result of a reconciliation lookup.
type HoldLookup struct {
	State        HoldState `json:"state"`
	Ref          string    `json:"ref"`
	ClientSecret string    `json:"client_secret,omitempty"`
}

// VirtualCard is an issued single-use funding instrument.
type VirtualCard struct {
	Ref      string `json:"ref"`
	LastFour string `json:"last_four"`
	Brand    string `json:"brand"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

// Gateway defines the common interface for payment gateway providers.
type Gateway interface {
	// PlaceHold creates and confirms a preauthorization hold.
	PlaceHold(ctx context.Context, req *HoldRequest) (*Hold, error)

	// VoidHold cancels a previously placed hold.
	VoidHold(ctx context.Context, holdRef string) error

	// CaptureHold captures a previously placed hold.
	CaptureHold(ctx context.Context, holdRef string) error

	// IssueVirtualCard issues a virtual card funded up to fundedAmount.
	IssueVirtualCard(ctx context.Context, fundedAmount int64, currency string) (*VirtualCard, error)

	// FindHoldByReference locates a hold by the idempotency reference it
	// was placed with. Used to reconcile ambiguous outcomes.
	FindHoldByReference(ctx context.Context, reference string) (*HoldLookup, error)
}

// ErrTimeout signals an ambiguous outcome: the request may or may not have
// reached the gateway. Callers must never treat it as a decline.
var ErrTimeout = errors.New("gateway request timed out")

// DeclinedError is a permanent business decline from the gateway. It is not
// retried; the reason is surfaced to the participant.
type DeclinedError struct {
	Reason string
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("payment declined: %s", e.Reason)
}

// TransientError wraps a gateway failure that is safe to retry (network
// errors, 5xx responses, rate limiting).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient gateway error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
