package review

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/tutorlink/tutorlink-server/cmd/models"
	"github.com/tutorlink/tutorlink-server/cmd/utils"
	"gorm.io/gorm"
)

type ReviewHandler struct {
	db   *gorm.DB
	gate *Gate
}

func NewReviewHandler(db *gorm.DB) *ReviewHandler {
	return &ReviewHandler{db: db, gate: NewGate(db)}
}

func (h *ReviewHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/bookings/{bookingId}/review", h.AddReview).Methods("POST")
	router.HandleFunc("/bookings/{bookingId}/review", h.GetReview).Methods("GET")
	router.HandleFunc("/reviews/{id}", h.UpdateReview).Methods("PUT")
	router.HandleFunc("/reviews/{id}/editable", h.GetEditable).Methods("GET")
}

// ownsBooking verifies the caller is the student who made the booking.
func (h *ReviewHandler) ownsBooking(r *http.Request, bookingID uint) bool {
	identity, err := utils.GetIdentityFromContext(r)
	if err != nil {
		return false
	}
	var booking models.Booking
	if err := h.db.First(&booking, bookingID).Error; err != nil {
		return false
	}
	return booking.StudentID == identity.UserID
}

func (h *ReviewHandler) AddReview(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bookingID, err := strconv.ParseUint(vars["bookingId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid booking ID", http.StatusBadRequest)
		return
	}

	if !h.ownsBooking(r, uint(bookingID)) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	review, err := h.gate.Add(uint(bookingID), req.Rating, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRating):
			http.Error(w, "Rating must be between 1 and 5", http.StatusBadRequest)
		case errors.Is(err, ErrNotConfirmed):
			http.Error(w, "Only confirmed bookings can be reviewed", http.StatusConflict)
		case errors.Is(err, ErrAlreadyReviewed):
			http.Error(w, "Booking already has a review", http.StatusConflict)
		case errors.Is(err, gorm.ErrRecordNotFound):
			http.Error(w, "Booking not found", http.StatusNotFound)
		default:
			http.Error(w, "Error creating review", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(review)
}

func (h *ReviewHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bookingID, err := strconv.ParseUint(vars["bookingId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid booking ID", http.StatusBadRequest)
		return
	}

	review, err := h.gate.GetByBooking(uint(bookingID))
	if err != nil {
		http.Error(w, "Review not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(review)
}

func (h *ReviewHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	reviewID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid review ID", http.StatusBadRequest)
		return
	}

	var review models.Review
	if err := h.db.First(&review, reviewID).Error; err != nil {
		http.Error(w, "Review not found", http.StatusNotFound)
		return
	}
	if !h.ownsBooking(r, review.BookingID) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.gate.Update(uint(reviewID), req.Rating, req.Comment); err != nil {
		switch {
		case errors.Is(err, ErrInvalidRating):
			http.Error(w, "Rating must be between 1 and 5", http.StatusBadRequest)
		case errors.Is(err, ErrWindowClosed):
			http.Error(w, "Review is no longer editable", http.StatusConflict)
		case errors.Is(err, gorm.ErrRecordNotFound):
			http.Error(w, "Review not found", http.StatusNotFound)
		default:
			http.Error(w, "Error updating review", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Review updated successfully",
	})
}

func (h *ReviewHandler) GetEditable(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	reviewID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid review ID", http.StatusBadRequest)
		return
	}

	editable, err := h.gate.IsEditable(uint(reviewID))
	if err != nil {
		http.Error(w, "Review not found", http.StatusNotFound)
		return
	}
	remaining, err := h.gate.RemainingHours(uint(reviewID))
	if err != nil {
		http.Error(w, "Review not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"editable":        editable,
		"remaining_hours": remaining,
	})
}
