package store

import (
	"context"
	"errors"
	"time"

	"tripfund/internal/models"
)

// Storage-level errors. Callers translate these into user-facing outcomes;
// ErrAlreadyExists and ErrAlreadyAttached are idempotency signals, not
// failures.
var (
	ErrAlreadyExists     = errors.New("record already exists")
	ErrNotFound          = errors.New("record not found")
	ErrAlreadyAttached   = errors.New("virtual card already attached")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// CardDetails is the displayable subset of an issued virtual card that is
// persisted on the configuration.
type CardDetails struct {
	Ref      string
	LastFour string
	Brand    string
	ExpMonth int
	ExpYear  int
}

// ConfigStore owns the one-per-trip payment configuration.
type ConfigStore interface {
	// CreateConfiguration persists a new configuration. Returns
	// ErrAlreadyExists when the trip already has one; the caller should
	// fetch the existing configuration and treat the call as a success.
	CreateConfiguration(ctx context.Context, cfg *models.PaymentConfig) error

	// GetConfiguration returns the configuration for a trip or ErrNotFound.
	GetConfiguration(ctx context.Context, tripID string) (*models.PaymentConfig, error)

	// AttachVirtualCard records the issued card on the configuration. The
	// attachment is one-way: a second attempt returns the stored
	// configuration together with ErrAlreadyAttached, never an overwrite.
	AttachVirtualCard(ctx context.Context, tripID string, card CardDetails) (*models.PaymentConfig, error)
}

// Ledger owns the per-(trip, participant) payment records. Terminal records
// are retained for audit; a retry appends a new record.
type Ledger interface {
	// CreatePending appends a new pending record. Returns ErrAlreadyExists
	// when the participant's latest record is still pending, authorized or
	// captured; failed and voided records do not block a retry.
	CreatePending(ctx context.Context, rec *models.ParticipantPayment) error

	// MarkAuthorized moves the participant's latest record from pending to
	// authorized and stores the hold reference.
	MarkAuthorized(ctx context.Context, tripID, participantID, holdRef string) (*models.ParticipantPayment, error)

	// MarkFailed moves the participant's latest record from pending to failed.
	MarkFailed(ctx context.Context, tripID, participantID string) (*models.ParticipantPayment, error)

	// MarkVoided moves the participant's latest record from authorized to voided.
	MarkVoided(ctx context.Context, tripID, participantID string) (*models.ParticipantPayment, error)

	// ListByTrip returns all records for a trip, oldest first. Always a
	// fresh read; no cursor state.
	ListByTrip(ctx context.Context, tripID string) ([]models.ParticipantPayment, error)

	// LatestByParticipant returns the most recent record for the pair, or
	// ErrNotFound when the participant has never attempted a payment.
	LatestByParticipant(ctx context.Context, tripID, participantID string) (*models.ParticipantPayment, error)

	// ListPendingOlderThan feeds the reconciliation sweep with records that
	// have sat in pending since before the cutoff.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]models.ParticipantPayment, error)
}

// Store combines both persistence components plus the consistent read used
// by status queries and the gateway audit trail.
type Store interface {
	ConfigStore
	Ledger

	// Snapshot returns the configuration and ledger rows for a trip read at
	// a single point, so a status read never observes a row mid-transition.
	Snapshot(ctx context.Context, tripID string) (*models.PaymentConfig, []models.ParticipantPayment, error)

	// AppendEvent records a gateway audit row. Best effort.
	AppendEvent(ctx context.Context, ev *models.GatewayEvent) error
}
