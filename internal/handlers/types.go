package handlers

import (
	"tripfund/internal/coordinator"
	"tripfund/internal/models"
)

// SetupPaymentRequest is the host's configuration payload.
type SetupPaymentRequest struct {
	TripID          string `json:"trip_id"`
	HostID          string `json:"host_id"`
	TotalCost       int64  `json:"total_cost"` // minor currency units
	Currency        string `json:"currency"`
	MinParticipants int    `json:"min_participants"`
}

type SetupPaymentResponse struct {
	Configuration *models.PaymentConfig `json:"configuration"`
}

type JoinRequest struct {
	ParticipantID string `json:"participant_id"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

type JoinResponse struct {
	HoldRef      string                    `json:"hold_ref"`
	ClientSecret string                    `json:"client_secret,omitempty"`
	Amount       int64                     `json:"amount"`
	Currency     string                    `json:"currency"`
	Threshold    coordinator.ThresholdView `json:"threshold_view"`
}

type RemoveParticipantResponse struct {
	Status    string                    `json:"status"`
	Threshold coordinator.ThresholdView `json:"threshold_view"`
}

type VirtualCardResponse struct {
	CardRef       string `json:"card_ref"`
	LastFour      string `json:"last_four"`
	Brand         string `json:"brand"`
	ExpMonth      int    `json:"exp_month"`
	ExpYear       int    `json:"exp_year"`
	FundedAmount  int64  `json:"funded_amount"`
	Currency      string `json:"currency"`
	AlreadyExists bool   `json:"already_exists"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
