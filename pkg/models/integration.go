package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentKind string

const (
	PaymentKindAdvance  PaymentKind = "ADVANCE"
	PaymentKindSupplier PaymentKind = "SUPPLIER"
)

type PaymentStatus string

const (
	PaymentStatusConfirmed PaymentStatus = "CONFIRMED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// Payment is a bank event reported for a deal.
type Payment struct {
	ID          string           `json:"id"`
	DealID      string           `json:"deal_id"`
	Kind        PaymentKind      `json:"kind"`
	Status      PaymentStatus    `json:"status"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Currency    string           `json:"currency"`
	ExternalRef string           `json:"external_ref,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// RiskReport is a credit bureau result for a deal.
type RiskReport struct {
	ID        string    `json:"id"`
	DealID    string    `json:"deal_id"`
	Provider  string    `json:"provider"`
	Score     int       `json:"score"`
	Approved  bool      `json:"approved"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
