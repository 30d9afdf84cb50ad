package models

import (
	"gorm.io/gorm"
)

// Review belongs to a confirmed booking. Editable for 24 hours after
// creation, permanent afterwards.
type Review struct {
	gorm.Model
	BookingID uint   `gorm:"column:booking_id;not null;uniqueIndex" json:"booking_id"`
	Rating    int    `gorm:"column:rating;not null" json:"rating"`
	Comment   string `gorm:"column:comment;type:text" json:"comment"`

	Booking *Booking `gorm:"foreignKey:BookingID" json:"booking,omitempty"`
}

func (Review) TableName() string {
	return "reviews"
}
