package payment

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

type PaymentHandler struct {
	db     *gorm.DB
	ledger *Ledger
}

func NewPaymentHandler(db *gorm.DB) *PaymentHandler {
	return &PaymentHandler{db: db, ledger: NewLedger(db)}
}

func (h *PaymentHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/bookings/{bookingId}/payment", h.CreatePayment).Methods("POST")
	router.HandleFunc("/bookings/{bookingId}/payment", h.GetBookingPayment).Methods("GET")
	router.HandleFunc("/payments/{id}/process", h.ProcessPayment).Methods("POST")
	router.HandleFunc("/payments/{id}", h.GetPayment).Methods("GET")
	router.HandleFunc("/payments/student/{studentId}", h.GetStudentPayments).Methods("GET")
	router.HandleFunc("/payments/tutor/{tutorId}", h.GetTutorPayments).Methods("GET")
}

// ownsBooking verifies the caller is the student who made the booking.
func (h *PaymentHandler) ownsBooking(r *http.Request, bookingID uint) bool {
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

func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
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
		PaymentMethod string `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	pay, err := h.ledger.Create(uint(bookingID), req.PaymentMethod)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidMethod):
			http.Error(w, "Unrecognized payment method", http.StatusBadRequest)
		case errors.Is(err, ErrNotConfirmed):
			http.Error(w, "Only confirmed bookings can be paid", http.StatusConflict)
		case errors.Is(err, ErrPaymentExists):
			http.Error(w, "Payment already exists for this booking", http.StatusConflict)
		case errors.Is(err, gorm.ErrRecordNotFound):
			http.Error(w, "Booking not found", http.StatusNotFound)
		default:
			http.Error(w, "Error creating payment", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(pay)
}

func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	paymentID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid payment ID", http.StatusBadRequest)
		return
	}

	existing, err := h.ledger.GetByID(uint(paymentID))
	if err != nil {
		http.Error(w, "Payment not found", http.StatusNotFound)
		return
	}
	if !h.ownsBooking(r, existing.BookingID) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req struct {
		PaymentMethod string `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	pay, err := h.ledger.Process(uint(paymentID), req.PaymentMethod)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidMethod):
			http.Error(w, "Unrecognized payment method", http.StatusBadRequest)
		case errors.Is(err, ErrAlreadyCompleted):
			http.Error(w, "Payment already completed", http.StatusConflict)
		case errors.Is(err, gorm.ErrRecordNotFound):
			http.Error(w, "Payment not found", http.StatusNotFound)
		default:
			http.Error(w, "Error processing payment", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pay)
}

func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	paymentID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid payment ID", http.StatusBadRequest)
		return
	}

	pay, err := h.ledger.GetByID(uint(paymentID))
	if err != nil {
		http.Error(w, "Payment not found", http.StatusNotFound)
		return
	}
	if !h.ownsBooking(r, pay.BookingID) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pay)
}

func (h *PaymentHandler) GetBookingPayment(w http.ResponseWriter, r *http.Request) {
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

	pay, err := h.ledger.GetByBooking(uint(bookingID))
	if err != nil {
		http.Error(w, "Payment not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pay)
}

func (h *PaymentHandler) GetStudentPayments(w http.ResponseWriter, r *http.Request) {
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

	payments, err := h.ledger.GetByStudent(uint(studentID))
	if err != nil {
		http.Error(w, "Error retrieving payments", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"payments": payments,
		"total":    len(payments),
	})
}

func (h *PaymentHandler) GetTutorPayments(w http.ResponseWriter, r *http.Request) {
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
	var tutor models.Tutor
	if err := h.db.First(&tutor, tutorID).Error; err != nil {
		http.Error(w, "Tutor not found", http.StatusNotFound)
		return
	}
	if identity.Role != models.RoleTutor || tutor.UserID != identity.UserID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	payments, err := h.ledger.GetByTutor(uint(tutorID))
	if err != nil {
		http.Error(w, "Error retrieving payments", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"payments": payments,
		"total":    len(payments),
	})
}
