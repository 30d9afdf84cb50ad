package models

import (
	"gorm.io/gorm"
)

const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
)

// Booking joins a student to a schedule slot. At most one non-cancelled
// booking may exist per slot; the partial unique index
// idx_bookings_active_slot (created by the migrate command alongside
// AutoMigrate) backs the engine's transactional check.
type Booking struct {
	gorm.Model
	StudentID  uint   `gorm:"column:student_id;not null;index" json:"student_id"`
	ScheduleID uint   `gorm:"column:schedule_id;not null;index" json:"schedule_id"`
	Status     string `gorm:"column:status;size:50;not null;default:pending" json:"status"`

	Student  *User     `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	Schedule *Schedule `gorm:"foreignKey:ScheduleID" json:"schedule,omitempty"`
}
