package booking

import (
	"errors"

	"github.com/tutorlink/tutorlink-server/cmd/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrSlotUnavailable   = errors.New("schedule slot is unavailable")
	ErrIllegalTransition = errors.New("illegal booking status transition")
	ErrUnknownStatus     = errors.New("unknown booking status")
)

// LegalTransition reports whether a booking may move from one status to
// another: pending to confirmed or cancelled, confirmed to cancelled,
// cancelled is terminal.
func LegalTransition(from, to string) bool {
	switch from {
	case models.BookingPending:
		return to == models.BookingConfirmed || to == models.BookingCancelled
	case models.BookingConfirmed:
		return to == models.BookingCancelled
	default:
		return false
	}
}

func knownStatus(status string) bool {
	switch status {
	case models.BookingPending, models.BookingConfirmed, models.BookingCancelled:
		return true
	}
	return false
}

// Engine is the only writer of Schedule.IsBooked. Reservation and
// cancel-and-release each run inside a single transaction with a row lock
// on the slot, so two concurrent calls against the same slot serialize and
// the loser observes ErrSlotUnavailable.
type Engine struct {
	db *gorm.DB
}

func NewEngine(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

// Create reserves the slot and inserts a pending booking atomically.
func (e *Engine) Create(studentID, scheduleID uint) (*models.Booking, error) {
	tx := e.db.Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	var slot models.Schedule
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&slot, scheduleID).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if slot.IsBooked {
		tx.Rollback()
		return nil, ErrSlotUnavailable
	}

	booking := models.Booking{
		StudentID:  studentID,
		ScheduleID: scheduleID,
		Status:     models.BookingPending,
	}
	if err := tx.Create(&booking).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Model(&models.Schedule{}).Where("id = ?", scheduleID).
		Update("is_booked", true).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// UpdateStatus applies a state-machine transition. Cancelling frees the
// underlying slot in the same transaction; confirming leaves it booked.
func (e *Engine) UpdateStatus(bookingID uint, newStatus string) error {
	if !knownStatus(newStatus) {
		return ErrUnknownStatus
	}

	tx := e.db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	var booking models.Booking
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&booking, bookingID).Error; err != nil {
		tx.Rollback()
		return err
	}

	if !LegalTransition(booking.Status, newStatus) {
		tx.Rollback()
		return ErrIllegalTransition
	}

	if err := tx.Model(&booking).Update("status", newStatus).Error; err != nil {
		tx.Rollback()
		return err
	}

	if newStatus == models.BookingCancelled {
		if err := tx.Model(&models.Schedule{}).Where("id = ?", booking.ScheduleID).
			Update("is_booked", false).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit().Error
}

func (e *Engine) GetByID(bookingID uint) (*models.Booking, error) {
	var booking models.Booking
	if err := e.db.Preload("Student").Preload("Schedule").
		Preload("Schedule.Tutor").Preload("Schedule.Tutor.User").
		First(&booking, bookingID).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetByStudent lists a student's bookings with slot and tutor data, newest
// session first.
func (e *Engine) GetByStudent(studentID uint) ([]models.Booking, error) {
	var bookings []models.Booking
	err := e.db.
		Joins("JOIN schedules ON schedules.id = bookings.schedule_id").
		Where("bookings.student_id = ?", studentID).
		Order("schedules.date DESC, schedules.start_time DESC").
		Preload("Schedule").Preload("Schedule.Tutor").Preload("Schedule.Tutor.User").
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// GetByTutor lists bookings against a tutor's slots with student data,
// newest session first.
func (e *Engine) GetByTutor(tutorID uint) ([]models.Booking, error) {
	var bookings []models.Booking
	err := e.db.
		Joins("JOIN schedules ON schedules.id = bookings.schedule_id").
		Where("schedules.tutor_id = ?", tutorID).
		Order("schedules.date DESC, schedules.start_time DESC").
		Preload("Student").Preload("Schedule").
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (e *Engine) CountTotal() (int64, error) {
	var total int64
	if err := e.db.Model(&models.Booking{}).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (e *Engine) CountByStatus(status string) (int64, error) {
	var total int64
	if err := e.db.Model(&models.Booking{}).Where("status = ?", status).
		Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
