package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

// Payment records the single payment attempt for a booking. Amount is
// derived from slot duration and the tutor's hourly rate, never
// caller-supplied.
type Payment struct {
	gorm.Model
	BookingID     uint       `gorm:"column:booking_id;not null;uniqueIndex" json:"booking_id"`
	Amount        float64    `gorm:"column:amount;not null" json:"amount"`
	PaymentMethod string     `gorm:"column:payment_method;size:50;not null" json:"payment_method"`
	Status        string     `gorm:"column:status;size:50;not null;default:pending" json:"status"`
	Reference     string     `gorm:"column:reference;size:255" json:"reference,omitempty"`
	PaidAt        *time.Time `gorm:"column:paid_at" json:"paid_at,omitempty"`

	Booking *Booking `gorm:"foreignKey:BookingID" json:"booking,omitempty"`
}

func (Payment) TableName() string {
	return "payments"
}
