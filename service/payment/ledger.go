package payment

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/tutorlink/tutorlink-server/cmd/models"
	"gorm.io/gorm"
)

var (
	ErrPaymentExists    = errors.New("payment already exists for this booking")
	ErrInvalidMethod    = errors.New("unrecognized payment method")
	ErrNotConfirmed     = errors.New("booking is not confirmed")
	ErrAlreadyCompleted = errors.New("payment already completed")
)

var methods = map[string]bool{
	"gopay":         true,
	"dana":          true,
	"bank_transfer": true,
}

func RecognizedMethod(method string) bool {
	return methods[method]
}

// CalculateAmount derives the charge from the tutor's hourly rate and the
// slot duration, rounded half-up to 2 decimals.
func CalculateAmount(hourlyRate float64, startTime, endTime time.Time) float64 {
	hours := endTime.Sub(startTime).Minutes() / 60
	return math.Round(hourlyRate*hours*100) / 100
}

// Gateway settles a charge with an external processor. The default
// implementation settles every charge immediately.
type Gateway interface {
	Charge(reference, method string, amount float64) error
}

type stubGateway struct{}

func (stubGateway) Charge(reference, method string, amount float64) error {
	return nil
}

// Ledger keeps one payment row per booking. The amount is derived, never
// caller-supplied, and the unique index on booking_id backstops the
// existence check against concurrent submissions.
type Ledger struct {
	db      *gorm.DB
	now     func() time.Time
	gateway Gateway
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db, now: time.Now, gateway: stubGateway{}}
}

// NewLedgerWithGateway wires a real processor in place of the stub.
func NewLedgerWithGateway(db *gorm.DB, gateway Gateway) *Ledger {
	return &Ledger{db: db, now: time.Now, gateway: gateway}
}

// Create records the payment attempt for a confirmed booking, rejecting a
// second attempt for the same booking.
func (l *Ledger) Create(bookingID uint, method string) (*models.Payment, error) {
	if !RecognizedMethod(method) {
		return nil, ErrInvalidMethod
	}

	var booking models.Booking
	if err := l.db.Preload("Schedule").Preload("Schedule.Tutor").
		First(&booking, bookingID).Error; err != nil {
		return nil, err
	}
	if booking.Status != models.BookingConfirmed {
		return nil, ErrNotConfirmed
	}

	var existing models.Payment
	err := l.db.Where("booking_id = ?", bookingID).First(&existing).Error
	if err == nil {
		return nil, ErrPaymentExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	slot := booking.Schedule
	pay := models.Payment{
		BookingID:     bookingID,
		Amount:        CalculateAmount(slot.Tutor.HourlyRate, slot.StartTime, slot.EndTime),
		PaymentMethod: method,
		Status:        models.PaymentPending,
	}
	if err := l.db.Create(&pay).Error; err != nil {
		return nil, err
	}
	return &pay, nil
}

// Process runs the charge through the gateway. Success marks the row
// completed and stamps paid_at; a gateway failure marks it failed without
// paid_at. A failed payment may be resubmitted and reuses the same row.
func (l *Ledger) Process(paymentID uint, method string) (*models.Payment, error) {
	if !RecognizedMethod(method) {
		return nil, ErrInvalidMethod
	}

	var pay models.Payment
	if err := l.db.First(&pay, paymentID).Error; err != nil {
		return nil, err
	}
	if pay.Status == models.PaymentCompleted {
		return nil, ErrAlreadyCompleted
	}

	reference := uuid.New().String()
	chargeErr := l.gateway.Charge(reference, method, pay.Amount)

	updates := map[string]interface{}{
		"payment_method": method,
		"reference":      reference,
	}
	if chargeErr != nil {
		updates["status"] = models.PaymentFailed
	} else {
		now := l.now()
		updates["status"] = models.PaymentCompleted
		updates["paid_at"] = &now
	}

	if err := l.db.Model(&pay).Updates(updates).Error; err != nil {
		return nil, err
	}

	var updated models.Payment
	if err := l.db.First(&updated, pay.ID).Error; err != nil {
		return nil, err
	}
	return &updated, nil
}

func (l *Ledger) GetByID(paymentID uint) (*models.Payment, error) {
	var pay models.Payment
	if err := l.db.First(&pay, paymentID).Error; err != nil {
		return nil, err
	}
	return &pay, nil
}

func (l *Ledger) GetByBooking(bookingID uint) (*models.Payment, error) {
	var pay models.Payment
	if err := l.db.Where("booking_id = ?", bookingID).First(&pay).Error; err != nil {
		return nil, err
	}
	return &pay, nil
}

// GetByStudent lists a student's payments, newest first.
func (l *Ledger) GetByStudent(studentID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := l.db.
		Joins("JOIN bookings ON bookings.id = payments.booking_id").
		Where("bookings.student_id = ?", studentID).
		Order("payments.created_at DESC").
		Preload("Booking").Preload("Booking.Schedule").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// GetByTutor lists payments against a tutor's slots, newest first.
func (l *Ledger) GetByTutor(tutorID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := l.db.
		Joins("JOIN bookings ON bookings.id = payments.booking_id").
		Joins("JOIN schedules ON schedules.id = bookings.schedule_id").
		Where("schedules.tutor_id = ?", tutorID).
		Order("payments.created_at DESC").
		Preload("Booking").Preload("Booking.Student").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
