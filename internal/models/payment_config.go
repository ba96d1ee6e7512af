package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentConfig holds the payment settings for a single trip.
// Created once by the host; the only later mutation is attaching the
// virtual card reference, which is a one-way transition.
type PaymentConfig struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	TripID          string `gorm:"type:varchar(100);uniqueIndex" json:"trip_id"`
	HostID          string `gorm:"type:varchar(100);index" json:"host_id"`
	TotalCost       int64  `json:"total_cost"` // minor currency units
	Currency        string `gorm:"type:varchar(3)" json:"currency"`
	MinParticipants int    `json:"min_participants"`
	PerSeatAmount   int64  `json:"per_seat_amount"`

	// Set exactly once when the card is issued, never cleared.
	VirtualCardRef      *string `gorm:"type:varchar(100)" json:"virtual_card_ref,omitempty"`
	VirtualCardLastFour string  `gorm:"type:varchar(4)" json:"virtual_card_last_four,omitempty"`
	VirtualCardBrand    string  `gorm:"type:varchar(50)" json:"virtual_card_brand,omitempty"`
	VirtualCardExpMonth int     `json:"virtual_card_exp_month,omitempty"`
	VirtualCardExpYear  int     `json:"virtual_card_exp_year,omitempty"`
}

// PerSeatFor computes the per-seat hold amount using ceiling division, so
// perSeat * minParticipants never falls short of the total cost.
func PerSeatFor(totalCost int64, minParticipants int) int64 {
	if minParticipants <= 0 {
		return totalCost
	}
	n := int64(minParticipants)
	return (totalCost + n - 1) / n
}

// HasVirtualCard reports whether a card has already been attached.
func (c *PaymentConfig) HasVirtualCard() bool {
	return c.VirtualCardRef != nil && *c.VirtualCardRef != ""
}
