package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentStatus is the state of a single participant payment record.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusCaptured   PaymentStatus = "captured"
	PaymentStatusVoided     PaymentStatus = "voided"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// CanTransitionTo encodes the allowed lifecycle:
// pending -> {authorized, failed}; authorized -> {voided, captured}.
// failed, voided and captured are terminal for the record; a retry
// creates a new record instead of resurrecting the old one.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusAuthorized || next == PaymentStatusFailed
	case PaymentStatusAuthorized:
		return next == PaymentStatusVoided || next == PaymentStatusCaptured
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusCaptured, PaymentStatusVoided, PaymentStatusFailed:
		return true
	}
	return false
}

// ParticipantPayment is one payment attempt by one participant on one trip.
// Amount and currency are copied from the configuration at join time and are
// immutable afterwards; a later configuration change never rewrites them.
type ParticipantPayment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	TripID        string        `gorm:"type:varchar(100);index:idx_participant_payments_trip" json:"trip_id"`
	ParticipantID string        `gorm:"type:varchar(100);index" json:"participant_id"`
	Status        PaymentStatus `gorm:"type:varchar(20);index" json:"status"`
	HoldRef       string        `gorm:"type:varchar(100)" json:"hold_ref,omitempty"`
	Amount        int64         `json:"amount"` // minor currency units
	Currency      string        `gorm:"type:varchar(3)" json:"currency"`

	// Reference is the idempotency key sent to the gateway, assigned before
	// the external call so an ambiguous outcome can be reconciled later.
	Reference string `gorm:"type:varchar(150);index" json:"reference"`
}
