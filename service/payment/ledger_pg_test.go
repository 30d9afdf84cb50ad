package payment

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/tutorlink/tutorlink-server/cmd/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}

	tables := []interface{}{
		&models.Payment{}, &models.Review{}, &models.Booking{},
		&models.Schedule{}, &models.Tutor{}, &models.User{},
	}
	for _, table := range tables {
		if err := db.Migrator().DropTable(table); err != nil {
			t.Fatalf("dropping table %T: %v", table, err)
		}
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Tutor{}, &models.Schedule{},
		&models.Booking{}, &models.Review{}, &models.Payment{},
	); err != nil {
		t.Fatalf("migrating test schema: %v", err)
	}

	return db
}

// seedBooking creates a student, a tutor at the given rate, a one hour slot
// and a booking in the given status.
func seedBooking(t *testing.T, db *gorm.DB, rate float64, status string) models.Booking {
	t.Helper()

	student := models.User{FullName: "Student A", Email: "student-a@example.com", PasswordHash: "x", Role: models.RoleStudent}
	if err := db.Create(&student).Error; err != nil {
		t.Fatalf("seeding student: %v", err)
	}
	tutorUser := models.User{FullName: "Tutor T", Email: "tutor-t@example.com", PasswordHash: "x", Role: models.RoleTutor}
	if err := db.Create(&tutorUser).Error; err != nil {
		t.Fatalf("seeding tutor user: %v", err)
	}
	tutor := models.Tutor{UserID: tutorUser.ID, Subject: "Math", HourlyRate: rate}
	if err := db.Create(&tutor).Error; err != nil {
		t.Fatalf("seeding tutor: %v", err)
	}

	slot := models.Schedule{
		TutorID:   tutor.ID,
		Date:      time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		StartTime: time.Date(0, 1, 1, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(0, 1, 1, 10, 0, 0, 0, time.UTC),
		IsBooked:  true,
	}
	if err := db.Create(&slot).Error; err != nil {
		t.Fatalf("seeding slot: %v", err)
	}

	booking := models.Booking{StudentID: student.ID, ScheduleID: slot.ID, Status: status}
	if err := db.Create(&booking).Error; err != nil {
		t.Fatalf("seeding booking: %v", err)
	}
	return booking
}

func TestCreatePaymentOncePerBooking(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db)

	booking := seedBooking(t, db, 20.00, models.BookingConfirmed)

	pay, err := ledger.Create(booking.ID, "bank_transfer")
	if err != nil {
		t.Fatalf("creating payment: %v", err)
	}
	if pay.Amount != 20.00 {
		t.Errorf("amount = %v, want 20.00", pay.Amount)
	}
	if pay.Status != models.PaymentPending {
		t.Errorf("status = %q, want %q", pay.Status, models.PaymentPending)
	}

	if _, err := ledger.Create(booking.ID, "gopay"); !errors.Is(err, ErrPaymentExists) {
		t.Errorf("second create error = %v, want ErrPaymentExists", err)
	}
}

func TestCreatePaymentRequiresConfirmedBooking(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db)

	booking := seedBooking(t, db, 15.00, models.BookingPending)

	if _, err := ledger.Create(booking.ID, "dana"); !errors.Is(err, ErrNotConfirmed) {
		t.Errorf("create error = %v, want ErrNotConfirmed", err)
	}
}

func TestProcessCompletesPayment(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db)

	booking := seedBooking(t, db, 20.00, models.BookingConfirmed)

	pay, err := ledger.Create(booking.ID, "bank_transfer")
	if err != nil {
		t.Fatalf("creating payment: %v", err)
	}

	processed, err := ledger.Process(pay.ID, "bank_transfer")
	if err != nil {
		t.Fatalf("processing payment: %v", err)
	}
	if processed.Status != models.PaymentCompleted {
		t.Errorf("status = %q, want %q", processed.Status, models.PaymentCompleted)
	}
	if processed.PaidAt == nil {
		t.Error("paid_at not set on completed payment")
	}

	if _, err := ledger.Process(pay.ID, "bank_transfer"); !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("reprocess error = %v, want ErrAlreadyCompleted", err)
	}
}

type flakyGateway struct {
	failures int
}

func (g *flakyGateway) Charge(reference, method string, amount float64) error {
	if g.failures > 0 {
		g.failures--
		return errors.New("gateway declined")
	}
	return nil
}

func TestFailedPaymentCanBeResubmitted(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerWithGateway(db, &flakyGateway{failures: 1})

	booking := seedBooking(t, db, 20.00, models.BookingConfirmed)

	pay, err := ledger.Create(booking.ID, "gopay")
	if err != nil {
		t.Fatalf("creating payment: %v", err)
	}

	failed, err := ledger.Process(pay.ID, "gopay")
	if err != nil {
		t.Fatalf("processing payment: %v", err)
	}
	if failed.Status != models.PaymentFailed {
		t.Errorf("status = %q, want %q", failed.Status, models.PaymentFailed)
	}
	if failed.PaidAt != nil {
		t.Error("paid_at set on failed payment")
	}

	// resubmission reuses the same row, no second payment appears
	retried, err := ledger.Process(pay.ID, "bank_transfer")
	if err != nil {
		t.Fatalf("resubmitting payment: %v", err)
	}
	if retried.Status != models.PaymentCompleted {
		t.Errorf("status after retry = %q, want %q", retried.Status, models.PaymentCompleted)
	}

	var count int64
	db.Model(&models.Payment{}).Where("booking_id = ?", booking.ID).Count(&count)
	if count != 1 {
		t.Errorf("payment rows for booking = %d, want 1", count)
	}
}
