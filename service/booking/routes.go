package booking

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

type BookingHandler struct {
	db     *gorm.DB
	engine *Engine
}

func NewBookingHandler(db *gorm.DB) *BookingHandler {
	return &BookingHandler{db: db, engine: NewEngine(db)}
}

func (h *BookingHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/bookings/book", h.BookSlot).Methods("POST")
	router.HandleFunc("/bookings/stats", h.GetStats).Methods("GET")
	router.HandleFunc("/bookings/{id}", h.GetBooking).Methods("GET")
	router.HandleFunc("/bookings/{id}/status", h.UpdateStatus).Methods("PATCH")
	router.HandleFunc("/bookings/student/{studentId}", h.GetStudentBookings).Methods("GET")
	router.HandleFunc("/bookings/tutor/{tutorId}", h.GetTutorBookings).Methods("GET")
}

// tutorOwns reports whether the authenticated tutor owns the given tutor
// record.
func (h *BookingHandler) tutorOwns(identity utils.Identity, tutorID uint) bool {
	if identity.Role != models.RoleTutor {
		return false
	}
	var tutor models.Tutor
	if err := h.db.First(&tutor, tutorID).Error; err != nil {
		return false
	}
	return tutor.UserID == identity.UserID
}

// partyToBooking reports whether the caller is the booking's student or the
// tutor owning the booked slot.
func (h *BookingHandler) partyToBooking(identity utils.Identity, booking *models.Booking) bool {
	if booking.StudentID == identity.UserID {
		return true
	}
	if booking.Schedule != nil {
		return h.tutorOwns(identity, booking.Schedule.TutorID)
	}
	var slot models.Schedule
	if err := h.db.First(&slot, booking.ScheduleID).Error; err != nil {
		return false
	}
	return h.tutorOwns(identity, slot.TutorID)
}

func (h *BookingHandler) BookSlot(w http.ResponseWriter, r *http.Request) {
	identity, err := utils.GetIdentityFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if identity.Role != models.RoleStudent {
		http.Error(w, "Only students can book sessions", http.StatusForbidden)
		return
	}

	var bookingRequest struct {
		ScheduleID uint `json:"schedule_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&bookingRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	booking, err := h.engine.Create(identity.UserID, bookingRequest.ScheduleID)
	if err != nil {
		switch {
		case errors.Is(err, ErrSlotUnavailable):
			http.Error(w, "Time slot already booked", http.StatusConflict)
		case errors.Is(err, gorm.ErrRecordNotFound):
			http.Error(w, "Time slot not found", http.StatusNotFound)
		default:
			http.Error(w, "Error creating booking", http.StatusInternalServerError)
		}
		return
	}

	created, err := h.engine.GetByID(booking.ID)
	if err != nil {
		http.Error(w, "Error retrieving booking", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bookingID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid booking ID", http.StatusBadRequest)
		return
	}

	identity, err := utils.GetIdentityFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var statusUpdate struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&statusUpdate); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	booking, err := h.engine.GetByID(uint(bookingID))
	if err != nil {
		http.Error(w, "Booking not found", http.StatusNotFound)
		return
	}
	if !h.partyToBooking(identity, booking) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	// only the tutor accepts a booking
	if statusUpdate.Status == models.BookingConfirmed && identity.Role != models.RoleTutor {
		http.Error(w, "Only the tutor can confirm a booking", http.StatusForbidden)
		return
	}

	if err := h.engine.UpdateStatus(uint(bookingID), statusUpdate.Status); err != nil {
		switch {
		case errors.Is(err, ErrUnknownStatus):
			http.Error(w, "Unknown booking status", http.StatusBadRequest)
		case errors.Is(err, ErrIllegalTransition):
			http.Error(w, "Status change not permitted", http.StatusConflict)
		case errors.Is(err, gorm.ErrRecordNotFound):
			http.Error(w, "Booking not found", http.StatusNotFound)
		default:
			http.Error(w, "Error updating booking", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Booking status updated successfully",
	})
}

func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bookingID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid booking ID", http.StatusBadRequest)
		return
	}

	identity, err := utils.GetIdentityFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	booking, err := h.engine.GetByID(uint(bookingID))
	if err != nil {
		http.Error(w, "Booking not found", http.StatusNotFound)
		return
	}
	if !h.partyToBooking(identity, booking) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(booking)
}

func (h *BookingHandler) GetStudentBookings(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	studentID, err := strconv.ParseUint(vars["studentId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid student ID", http.StatusBadRequest)
		return
	}

	identity, err := utils.GetIdentityFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if identity.UserID != uint(studentID) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	bookings, err := h.engine.GetByStudent(uint(studentID))
	if err != nil {
		http.Error(w, "Error retrieving bookings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"bookings": bookings,
		"total":    len(bookings),
	})
}

func (h *BookingHandler) GetTutorBookings(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tutorID, err := strconv.ParseUint(vars["tutorId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid tutor ID", http.StatusBadRequest)
		return
	}

	identity, err := utils.GetIdentityFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.tutorOwns(identity, uint(tutorID)) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	bookings, err := h.engine.GetByTutor(uint(tutorID))
	if err != nil {
		http.Error(w, "Error retrieving bookings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"bookings": bookings,
		"total":    len(bookings),
	})
}

func (h *BookingHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	total, err := h.engine.CountTotal()
	if err != nil {
		http.Error(w, "Error retrieving stats", http.StatusInternalServerError)
		return
	}

	counts := map[string]int64{}
	for _, status := range []string{models.BookingPending, models.BookingConfirmed, models.BookingCancelled} {
		count, err := h.engine.CountByStatus(status)
		if err != nil {
			http.Error(w, "Error retrieving stats", http.StatusInternalServerError)
			return
		}
		counts[status] = count
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"total":     total,
		"by_status": counts,
	})
}
