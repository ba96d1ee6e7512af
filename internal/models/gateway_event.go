package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// GatewayEventKind labels what a gateway audit row records.
type GatewayEventKind string

const (
	GatewayEventHoldPlaced GatewayEventKind = "hold_placed"
	GatewayEventHoldVoided GatewayEventKind = "hold_voided"
	GatewayEventCardIssued GatewayEventKind = "card_issued"
	GatewayEventDeclined   GatewayEventKind = "declined"
)

// GatewayEvent keeps the raw payloads exchanged with the payment gateway
// for audit. Writes are best effort and never block the operation itself.
type GatewayEvent struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	TripID    string           `gorm:"type:varchar(100);index" json:"trip_id"`
	Kind      GatewayEventKind `gorm:"type:varchar(50);not null" json:"kind"`
	Reference string           `gorm:"type:varchar(150);index" json:"reference"`
	Metadata  json.RawMessage  `gorm:"type:jsonb" json:"metadata"`
}
