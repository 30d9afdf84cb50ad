package schedule

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

// fixedStore pins the store clock so past-date validation is deterministic.
func fixedStore(db *gorm.DB) *Store {
	store := NewStore(db)
	store.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return store
}

func seedTutor(t *testing.T, db *gorm.DB) models.Tutor {
	t.Helper()

	user := models.User{FullName: "Tutor T", Email: "tutor-t@example.com", PasswordHash: "x", Role: models.RoleTutor}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seeding tutor user: %v", err)
	}
	tutor := models.Tutor{UserID: user.ID, Subject: "Math", HourlyRate: 10.00}
	if err := db.Create(&tutor).Error; err != nil {
		t.Fatalf("seeding tutor: %v", err)
	}
	return tutor
}

func clockTime(hour, min int) time.Time {
	return time.Date(0, 1, 1, hour, min, 0, 0, time.UTC)
}

func TestCreateRecurringBestEffort(t *testing.T) {
	db := setupTestDB(t)
	store := fixedStore(db)
	tutor := seedTutor(t, db)

	// 2025-06-02 is a Monday; two weeks of Mondays and Wednesdays
	result, err := store.CreateRecurring(
		tutor.ID,
		time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		[]time.Weekday{time.Monday, time.Wednesday},
		clockTime(9, 0), clockTime(10, 0),
	)
	if err != nil {
		t.Fatalf("recurring create: %v", err)
	}
	if result.Created != 4 || result.Failed != 0 {
		t.Errorf("result = %+v, want 4 created, 0 failed", result)
	}

	slots, err := store.GetAvailable(tutor.ID, nil)
	if err != nil {
		t.Fatalf("listing slots: %v", err)
	}
	if len(slots) != 4 {
		t.Fatalf("slots = %d, want 4", len(slots))
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].Date.Before(slots[i-1].Date) {
			t.Errorf("slots not ordered by date: %v before %v", slots[i].Date, slots[i-1].Date)
		}
	}
}

func TestCreateRecurringCountsPastDatesAsFailures(t *testing.T) {
	db := setupTestDB(t)
	store := fixedStore(db)
	tutor := seedTutor(t, db)

	// range straddles the pinned clock: 2025-05-30 (Fri) is in the past,
	// 2025-06-06 (Fri) is not
	result, err := store.CreateRecurring(
		tutor.ID,
		time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC),
		[]time.Weekday{time.Friday},
		clockTime(9, 0), clockTime(10, 0),
	)
	if err != nil {
		t.Fatalf("recurring create: %v", err)
	}
	if result.Created != 1 || result.Failed != 1 {
		t.Errorf("result = %+v, want 1 created, 1 failed", result)
	}
}

func TestBookedSlotIsImmutable(t *testing.T) {
	db := setupTestDB(t)
	store := fixedStore(db)
	tutor := seedTutor(t, db)

	slot, err := store.Create(tutor.ID, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), clockTime(9, 0), clockTime(10, 0))
	if err != nil {
		t.Fatalf("creating slot: %v", err)
	}

	if err := db.Model(&models.Schedule{}).Where("id = ?", slot.ID).Update("is_booked", true).Error; err != nil {
		t.Fatalf("marking slot booked: %v", err)
	}

	err = store.Update(slot.ID, time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC), clockTime(9, 0), clockTime(10, 0))
	if !errors.Is(err, ErrSlotBooked) {
		t.Errorf("update error = %v, want ErrSlotBooked", err)
	}

	if err := store.Delete(slot.ID); !errors.Is(err, ErrSlotBooked) {
		t.Errorf("delete error = %v, want ErrSlotBooked", err)
	}

	available, err := store.IsAvailable(slot.ID)
	if err != nil {
		t.Fatalf("availability check: %v", err)
	}
	if available {
		t.Error("booked slot reported available")
	}
}
