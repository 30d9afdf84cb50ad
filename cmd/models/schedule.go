package models

import (
	"time"

	"gorm.io/gorm"
)

// Schedule is a tutor-defined time slot. IsBooked is owned by the booking
// engine; no other component writes it.
type Schedule struct {
	gorm.Model
	TutorID   uint      `gorm:"column:tutor_id;not null;index" json:"tutor_id"`
	Date      time.Time `gorm:"column:date;not null" json:"date"`
	StartTime time.Time `gorm:"column:start_time;not null" json:"start_time"`
	EndTime   time.Time `gorm:"column:end_time;not null" json:"end_time"`
	IsBooked  bool      `gorm:"column:is_booked;not null;default:false" json:"is_booked"`

	Tutor *Tutor `gorm:"foreignKey:TutorID" json:"tutor,omitempty"`
}

func (Schedule) TableName() string {
	return "schedules"
}

// Duration of the slot.
func (s Schedule) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}
