package schedule

import (
	"errors"
	"time"

	"github.com/tutorlink/tutorlink-server/cmd/models"
	"gorm.io/gorm"
)

var (
	ErrEndBeforeStart = errors.New("end time must be after start time")
	ErrTooShort       = errors.New("schedule must be at least 30 minutes")
	ErrPastDate       = errors.New("date must not be in the past")
	ErrSlotBooked     = errors.New("schedule is already booked")
	ErrNoWeekdays     = errors.New("at least one day of the week is required")
	ErrBadDateRange   = errors.New("end date must not be before start date")
)

const MinSlotDuration = 30 * time.Minute

// Store owns schedule rows and availability queries. The is_booked flag is
// only ever flipped by the booking engine.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// ValidateSlot checks the slot invariants: end after start, minimum
// duration, date not in the past.
func ValidateSlot(date, startTime, endTime, now time.Time) error {
	if !endTime.After(startTime) {
		return ErrEndBeforeStart
	}
	if endTime.Sub(startTime) < MinSlotDuration {
		return ErrTooShort
	}
	// Slot dates are parsed as UTC days, so the boundary is UTC too,
	// regardless of the server clock's zone.
	nowUTC := now.UTC()
	dateUTC := date.UTC()
	today := time.Date(nowUTC.Year(), nowUTC.Month(), nowUTC.Day(), 0, 0, 0, 0, time.UTC)
	slotDay := time.Date(dateUTC.Year(), dateUTC.Month(), dateUTC.Day(), 0, 0, 0, 0, time.UTC)
	if slotDay.Before(today) {
		return ErrPastDate
	}
	return nil
}

func (s *Store) Create(tutorID uint, date, startTime, endTime time.Time) (*models.Schedule, error) {
	if err := ValidateSlot(date, startTime, endTime, s.now()); err != nil {
		return nil, err
	}

	slot := models.Schedule{
		TutorID:   tutorID,
		Date:      date,
		StartTime: startTime,
		EndTime:   endTime,
	}
	if err := s.db.Create(&slot).Error; err != nil {
		return nil, err
	}
	return &slot, nil
}

// RecurringResult reports per-date outcomes of a batch insert.
type RecurringResult struct {
	Created int `json:"created"`
	Failed  int `json:"failed"`
}

// CreateRecurring inserts one slot per date in [startDate, endDate] whose
// weekday is in weekdays. The batch is best-effort: a failing date is
// counted and the loop continues, with no rollback of earlier dates.
func (s *Store) CreateRecurring(tutorID uint, startDate, endDate time.Time, weekdays []time.Weekday, startTime, endTime time.Time) (RecurringResult, error) {
	var result RecurringResult

	if !endTime.After(startTime) {
		return result, ErrEndBeforeStart
	}
	if endTime.Sub(startTime) < MinSlotDuration {
		return result, ErrTooShort
	}
	if endDate.Before(startDate) {
		return result, ErrBadDateRange
	}
	if len(weekdays) == 0 {
		return result, ErrNoWeekdays
	}

	wanted := make(map[time.Weekday]bool, len(weekdays))
	for _, day := range weekdays {
		wanted[day] = true
	}

	for date := startDate; !date.After(endDate); date = date.AddDate(0, 0, 1) {
		if !wanted[date.Weekday()] {
			continue
		}
		if _, err := s.Create(tutorID, date, startTime, endTime); err != nil {
			result.Failed++
			continue
		}
		result.Created++
	}

	return result, nil
}

// Update rewrites an unbooked slot. Booked slots are immutable so an active
// booking never points at a changed time.
func (s *Store) Update(id uint, date, startTime, endTime time.Time) error {
	if err := ValidateSlot(date, startTime, endTime, s.now()); err != nil {
		return err
	}

	var slot models.Schedule
	if err := s.db.First(&slot, id).Error; err != nil {
		return err
	}
	if slot.IsBooked {
		return ErrSlotBooked
	}

	slot.Date = date
	slot.StartTime = startTime
	slot.EndTime = endTime
	return s.db.Save(&slot).Error
}

func (s *Store) Delete(id uint) error {
	var slot models.Schedule
	if err := s.db.First(&slot, id).Error; err != nil {
		return err
	}
	if slot.IsBooked {
		return ErrSlotBooked
	}
	return s.db.Delete(&slot).Error
}

func (s *Store) GetByID(id uint) (*models.Schedule, error) {
	var slot models.Schedule
	if err := s.db.First(&slot, id).Error; err != nil {
		return nil, err
	}
	return &slot, nil
}

func (s *Store) IsAvailable(id uint) (bool, error) {
	slot, err := s.GetByID(id)
	if err != nil {
		return false, err
	}
	return !slot.IsBooked, nil
}

// GetAvailable lists a tutor's unbooked slots, optionally from a date
// onwards, ordered by date then start time.
func (s *Store) GetAvailable(tutorID uint, fromDate *time.Time) ([]models.Schedule, error) {
	query := s.db.Where("tutor_id = ? AND is_booked = ?", tutorID, false)
	if fromDate != nil {
		query = query.Where("date >= ?", *fromDate)
	}

	var slots []models.Schedule
	if err := query.Order("date ASC, start_time ASC").Find(&slots).Error; err != nil {
		return nil, err
	}
	return slots, nil
}

// GetByTutor lists all of a tutor's slots, booked ones included, for the
// tutor's own schedule view.
func (s *Store) GetByTutor(tutorID uint, fromDate *time.Time) ([]models.Schedule, error) {
	query := s.db.Where("tutor_id = ?", tutorID)
	if fromDate != nil {
		query = query.Where("date >= ?", *fromDate)
	}

	var slots []models.Schedule
	if err := query.Order("date ASC, start_time ASC").Find(&slots).Error; err != nil {
		return nil, err
	}
	return slots, nil
}
