package coordinator

import (
	"tripfund/internal/models"
)

// ThresholdView is the derived funding state of a trip. It is always
// recomputed from the ledger and never persisted or cached.
type ThresholdView struct {
	CurrentParticipants int  `json:"current_participants"`
	MinParticipants     int  `json:"min_participants"`
	ThresholdMet        bool `json:"threshold_met"`
}

// ComputeThreshold counts committed participants (authorized or captured)
// against the configuration's minimum. The minimum is a floor, not a cap:
// any number of participants may exceed it.
func ComputeThreshold(cfg *models.PaymentConfig, recs []models.ParticipantPayment) ThresholdView {
	current := 0
	for _, r := range recs {
		if r.Status == models.PaymentStatusAuthorized || r.Status == models.PaymentStatusCaptured {
			current++
		}
	}
	return ThresholdView{
		CurrentParticipants: current,
		MinParticipants:     cfg.MinParticipants,
		ThresholdMet:        current >= cfg.MinParticipants,
	}
}
