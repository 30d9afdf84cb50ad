package booking

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/tutorlink/tutorlink-server/cmd/models"
	storage "github.com/tutorlink/tutorlink-server/db"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB connects to the database named by TEST_DATABASE_URL and
// recreates the schema. Tests are skipped when the variable is unset.
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
	if err := storage.EnsureIndexes(db); err != nil {
		t.Fatalf("creating test indexes: %v", err)
	}

	return db
}

func seedSlot(t *testing.T, db *gorm.DB, rate float64) (student models.User, tutor models.Tutor, slot models.Schedule) {
	t.Helper()

	student = models.User{FullName: "Student A", Email: "student-a@example.com", PasswordHash: "x", Role: models.RoleStudent}
	if err := db.Create(&student).Error; err != nil {
		t.Fatalf("seeding student: %v", err)
	}

	tutorUser := models.User{FullName: "Tutor T", Email: "tutor-t@example.com", PasswordHash: "x", Role: models.RoleTutor}
	if err := db.Create(&tutorUser).Error; err != nil {
		t.Fatalf("seeding tutor user: %v", err)
	}
	tutor = models.Tutor{UserID: tutorUser.ID, Subject: "Math", HourlyRate: rate}
	if err := db.Create(&tutor).Error; err != nil {
		t.Fatalf("seeding tutor: %v", err)
	}

	slot = models.Schedule{
		TutorID:   tutor.ID,
		Date:      time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		StartTime: time.Date(0, 1, 1, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(0, 1, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := db.Create(&slot).Error; err != nil {
		t.Fatalf("seeding slot: %v", err)
	}
	return student, tutor, slot
}

func TestCreateRejectsSecondBooking(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)

	studentA, _, slot := seedSlot(t, db, 10.00)
	studentB := models.User{FullName: "Student B", Email: "student-b@example.com", PasswordHash: "x", Role: models.RoleStudent}
	if err := db.Create(&studentB).Error; err != nil {
		t.Fatalf("seeding student B: %v", err)
	}

	booking, err := engine.Create(studentA.ID, slot.ID)
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if booking.Status != models.BookingPending {
		t.Errorf("first booking status = %q, want %q", booking.Status, models.BookingPending)
	}

	var reloaded models.Schedule
	if err := db.First(&reloaded, slot.ID).Error; err != nil {
		t.Fatalf("reloading slot: %v", err)
	}
	if !reloaded.IsBooked {
		t.Error("slot not marked booked after booking")
	}

	if _, err := engine.Create(studentB.ID, slot.ID); !errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("second booking error = %v, want ErrSlotUnavailable", err)
	}
}

func TestConcurrentCreateOneWinner(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)

	student, _, slot := seedSlot(t, db, 10.00)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Create(student.ID, slot.ID)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrSlotUnavailable):
		default:
			t.Errorf("unexpected racer error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}

	var count int64
	db.Model(&models.Booking{}).Where("schedule_id = ? AND status != ?", slot.ID, models.BookingCancelled).Count(&count)
	if count != 1 {
		t.Errorf("active bookings for slot = %d, want 1", count)
	}
}

func TestCancelFreesSlotForRebooking(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)

	studentA, _, slot := seedSlot(t, db, 10.00)
	studentB := models.User{FullName: "Student B", Email: "student-b@example.com", PasswordHash: "x", Role: models.RoleStudent}
	if err := db.Create(&studentB).Error; err != nil {
		t.Fatalf("seeding student B: %v", err)
	}

	booking, err := engine.Create(studentA.ID, slot.ID)
	if err != nil {
		t.Fatalf("booking: %v", err)
	}

	if err := engine.UpdateStatus(booking.ID, models.BookingCancelled); err != nil {
		t.Fatalf("cancelling: %v", err)
	}

	var reloaded models.Schedule
	if err := db.First(&reloaded, slot.ID).Error; err != nil {
		t.Fatalf("reloading slot: %v", err)
	}
	if reloaded.IsBooked {
		t.Error("slot still marked booked after cancellation")
	}

	if _, err := engine.Create(studentB.ID, slot.ID); err != nil {
		t.Errorf("rebooking freed slot: %v", err)
	}
}

func TestActiveSlotIndexBlocksDirectInsert(t *testing.T) {
	db := setupTestDB(t)

	studentA, _, slot := seedSlot(t, db, 10.00)
	studentB := models.User{FullName: "Student B", Email: "student-b@example.com", PasswordHash: "x", Role: models.RoleStudent}
	if err := db.Create(&studentB).Error; err != nil {
		t.Fatalf("seeding student B: %v", err)
	}

	// Writes that bypass the engine's row lock must still hit the
	// partial unique index on bookings.schedule_id.
	first := models.Booking{StudentID: studentA.ID, ScheduleID: slot.ID, Status: models.BookingPending}
	if err := db.Create(&first).Error; err != nil {
		t.Fatalf("first direct insert: %v", err)
	}

	second := models.Booking{StudentID: studentB.ID, ScheduleID: slot.ID, Status: models.BookingConfirmed}
	if err := db.Create(&second).Error; err == nil {
		t.Error("second non-cancelled booking for the slot was accepted")
	}

	// A cancelled row does not occupy the slot.
	cancelled := models.Booking{StudentID: studentB.ID, ScheduleID: slot.ID, Status: models.BookingCancelled}
	if err := db.Create(&cancelled).Error; err != nil {
		t.Errorf("cancelled booking insert: %v", err)
	}
}

func TestUpdateStatusEnforcesStateMachine(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db)

	student, _, slot := seedSlot(t, db, 10.00)

	booking, err := engine.Create(student.ID, slot.ID)
	if err != nil {
		t.Fatalf("booking: %v", err)
	}

	if err := engine.UpdateStatus(booking.ID, models.BookingConfirmed); err != nil {
		t.Fatalf("confirming: %v", err)
	}
	// confirming must not free the slot
	var reloaded models.Schedule
	if err := db.First(&reloaded, slot.ID).Error; err != nil {
		t.Fatalf("reloading slot: %v", err)
	}
	if !reloaded.IsBooked {
		t.Error("slot released by confirmation")
	}

	if err := engine.UpdateStatus(booking.ID, models.BookingPending); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("confirmed->pending error = %v, want ErrIllegalTransition", err)
	}

	if err := engine.UpdateStatus(booking.ID, models.BookingCancelled); err != nil {
		t.Fatalf("cancelling confirmed booking: %v", err)
	}

	if err := engine.UpdateStatus(booking.ID, models.BookingConfirmed); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("cancelled->confirmed error = %v, want ErrIllegalTransition", err)
	}

	if err := engine.UpdateStatus(booking.ID, "refunded"); !errors.Is(err, ErrUnknownStatus) {
		t.Errorf("unknown status error = %v, want ErrUnknownStatus", err)
	}
}
