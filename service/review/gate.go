package review

import (
	"errors"
	"time"

	"github.com/tutorlink/tutorlink-server/cmd/models"
	"gorm.io/gorm"
)

var (
	ErrNotConfirmed    = errors.New("booking is not confirmed")
	ErrAlreadyReviewed = errors.New("booking already has a review")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
	ErrWindowClosed    = errors.New("review is no longer editable")
)

// EditWindow is how long a review stays mutable after creation.
const EditWindow = 24 * time.Hour

// EditableAt reports whether a review created at createdAt may still be
// edited at now. Evaluated lazily on each call, no timer involved.
func EditableAt(createdAt, now time.Time) bool {
	return now.Sub(createdAt) < EditWindow
}

// RemainingEditHours returns max(0, 24 - whole hours elapsed), for display.
func RemainingEditHours(createdAt, now time.Time) int {
	elapsed := int(now.Sub(createdAt).Hours())
	remaining := int(EditWindow.Hours()) - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Gate enforces review eligibility: one review per confirmed booking,
// rating 1..5, edits only inside the window.
type Gate struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGate(db *gorm.DB) *Gate {
	return &Gate{db: db, now: time.Now}
}

func (g *Gate) Add(bookingID uint, rating int, comment string) (*models.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	var booking models.Booking
	if err := g.db.First(&booking, bookingID).Error; err != nil {
		return nil, err
	}
	if booking.Status != models.BookingConfirmed {
		return nil, ErrNotConfirmed
	}

	var existing models.Review
	err := g.db.Where("booking_id = ?", bookingID).First(&existing).Error
	if err == nil {
		return nil, ErrAlreadyReviewed
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	review := models.Review{
		BookingID: bookingID,
		Rating:    rating,
		Comment:   comment,
	}
	// the unique index on booking_id backstops the existence check above
	if err := g.db.Create(&review).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

func (g *Gate) IsEditable(reviewID uint) (bool, error) {
	var review models.Review
	if err := g.db.First(&review, reviewID).Error; err != nil {
		return false, err
	}
	return EditableAt(review.CreatedAt, g.now()), nil
}

// Update overwrites rating and comment while the window is open. CreatedAt
// is never touched so the window cannot be extended by editing.
func (g *Gate) Update(reviewID uint, rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}

	var review models.Review
	if err := g.db.First(&review, reviewID).Error; err != nil {
		return err
	}
	if !EditableAt(review.CreatedAt, g.now()) {
		return ErrWindowClosed
	}

	return g.db.Model(&review).Updates(map[string]interface{}{
		"rating":  rating,
		"comment": comment,
	}).Error
}

func (g *Gate) RemainingHours(reviewID uint) (int, error) {
	var review models.Review
	if err := g.db.First(&review, reviewID).Error; err != nil {
		return 0, err
	}
	return RemainingEditHours(review.CreatedAt, g.now()), nil
}

func (g *Gate) GetByBooking(bookingID uint) (*models.Review, error) {
	var review models.Review
	if err := g.db.Where("booking_id = ?", bookingID).First(&review).Error; err != nil {
		return nil, err
	}
	return &review, nil
}
