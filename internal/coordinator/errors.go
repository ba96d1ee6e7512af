package coordinator

import (
	"errors"
	"fmt"
)

// Precondition and idempotency outcomes surfaced to the API layer. The
// Already* values are signals the caller should treat as success-with-
// existing-state, not as fatal errors.
var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrConfigurationMissing = errors.New("payment configuration not found")
	ErrAlreadyPending       = errors.New("participant already has a payment in progress")
	ErrAlreadyAuthorized    = errors.New("participant already has an authorized payment")
	ErrNothingToRemove      = errors.New("participant has no authorized payment to remove")
	ErrAlreadyFinal         = errors.New("participant payment is already final")
	ErrNotHost              = errors.New("only the trip host may perform this action")

	// ErrGatewayTimeout is an ambiguous outcome: the hold may or may not
	// exist at the gateway. The ledger record is left pending and the
	// reconciliation sweep resolves it. Never auto-resolved to failed.
	ErrGatewayTimeout = errors.New("payment gateway timed out, outcome pending reconciliation")
)

// PaymentFailedError is the expected business outcome of a declined hold.
// The participant may retry, which creates a new ledger record.
type PaymentFailedError struct {
	Reason string
	Err    error
}

func (e *PaymentFailedError) Error() string {
	return fmt.Sprintf("payment failed: %s", e.Reason)
}

func (e *PaymentFailedError) Unwrap() error { return e.Err }

// ThresholdNotMetError reports current vs required participants so the
// caller can show how far the trip is from being funded.
type ThresholdNotMetError struct {
	Current  int
	Required int
}

func (e *ThresholdNotMetError) Error() string {
	return fmt.Sprintf("threshold not met: %d of %d participants authorized", e.Current, e.Required)
}
