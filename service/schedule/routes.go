package schedule

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/tutorlink/tutorlink-server/cmd/models"
	"github.com/tutorlink/tutorlink-server/cmd/utils"
	"gorm.io/gorm"
)

type ScheduleHandler struct {
	db    *gorm.DB
	store *Store
}

func NewScheduleHandler(db *gorm.DB) *ScheduleHandler {
	return &ScheduleHandler{db: db, store: NewStore(db)}
}

func (h *ScheduleHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tutors/{tutorId}/schedules", h.CreateSchedule).Methods("POST")
	router.HandleFunc("/tutors/{tutorId}/schedules/recurring", h.CreateRecurringSchedules).Methods("POST")
	router.HandleFunc("/tutors/{tutorId}/schedules", h.GetSchedules).Methods("GET")
	router.HandleFunc("/tutors/{tutorId}/schedules/available", h.GetAvailableSchedules).Methods("GET")
	router.HandleFunc("/schedules/{id}", h.GetSchedule).Methods("GET")
	router.HandleFunc("/schedules/{id}", h.UpdateSchedule).Methods("PUT")
	router.HandleFunc("/schedules/{id}", h.DeleteSchedule).Methods("DELETE")
}

type scheduleRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func parseSlotTimes(req scheduleRequest) (date, start, end time.Time, err error) {
	date, err = time.Parse("2006-01-02", req.Date)
	if err != nil {
		return
	}
	start, err = time.Parse("15:04", req.StartTime)
	if err != nil {
		return
	}
	end, err = time.Parse("15:04", req.EndTime)
	return
}

// ownsTutor verifies the authenticated user is the tutor in the path.
func (h *ScheduleHandler) ownsTutor(r *http.Request, tutorID uint) bool {
	identity, err := utils.GetIdentityFromContext(r)
	if err != nil || identity.Role != models.RoleTutor {
		return false
	}
	var tutor models.Tutor
	if err := h.db.First(&tutor, tutorID).Error; err != nil {
		return false
	}
	return tutor.UserID == identity.UserID
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEndBeforeStart),
		errors.Is(err, ErrTooShort),
		errors.Is(err, ErrPastDate),
		errors.Is(err, ErrNoWeekdays),
		errors.Is(err, ErrBadDateRange):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrSlotBooked):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, gorm.ErrRecordNotFound):
		http.Error(w, "Schedule not found", http.StatusNotFound)
	default:
		http.Error(w, "Database error", http.StatusInternalServerError)
	}
}

func (h *ScheduleHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tutorID, err := strconv.ParseUint(vars["tutorId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid tutor ID", http.StatusBadRequest)
		return
	}

	if !h.ownsTutor(r, uint(tutorID)) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	date, start, end, err := parseSlotTimes(req)
	if err != nil {
		http.Error(w, "Invalid date/time format. Use YYYY-MM-DD and HH:MM", http.StatusBadRequest)
		return
	}

	slot, err := h.store.Create(uint(tutorID), date, start, end)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(slot)
}

func (h *ScheduleHandler) CreateRecurringSchedules(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tutorID, err := strconv.ParseUint(vars["tutorId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid tutor ID", http.StatusBadRequest)
		return
	}

	if !h.ownsTutor(r, uint(tutorID)) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req struct {
		StartDate  string `json:"start_date"`
		EndDate    string `json:"end_date"`
		DaysOfWeek []int  `json:"days_of_week"`
		StartTime  string `json:"start_time"`
		EndTime    string `json:"end_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		http.Error(w, "Invalid date format. Use YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	endDate, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		http.Error(w, "Invalid date format. Use YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	start, err := time.Parse("15:04", req.StartTime)
	if err != nil {
		http.Error(w, "Invalid time format. Use HH:MM", http.StatusBadRequest)
		return
	}
	end, err := time.Parse("15:04", req.EndTime)
	if err != nil {
		http.Error(w, "Invalid time format. Use HH:MM", http.StatusBadRequest)
		return
	}

	weekdays := make([]time.Weekday, 0, len(req.DaysOfWeek))
	for _, day := range req.DaysOfWeek {
		if day < 0 || day > 6 {
			http.Error(w, "Days of week must be 0 (Sunday) to 6 (Saturday)", http.StatusBadRequest)
			return
		}
		weekdays = append(weekdays, time.Weekday(day))
	}

	result, err := h.store.CreateRecurring(uint(tutorID), startDate, endDate, weekdays, start, end)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

func (h *ScheduleHandler) GetSchedules(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tutorID, err := strconv.ParseUint(vars["tutorId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid tutor ID", http.StatusBadRequest)
		return
	}

	fromDate, ok := parseFromDate(w, r)
	if !ok {
		return
	}

	slots, err := h.store.GetByTutor(uint(tutorID), fromDate)
	if err != nil {
		http.Error(w, "Error retrieving schedules", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"schedules": slots,
		"total":     len(slots),
	})
}

func (h *ScheduleHandler) GetAvailableSchedules(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tutorID, err := strconv.ParseUint(vars["tutorId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid tutor ID", http.StatusBadRequest)
		return
	}

	fromDate, ok := parseFromDate(w, r)
	if !ok {
		return
	}

	slots, err := h.store.GetAvailable(uint(tutorID), fromDate)
	if err != nil {
		http.Error(w, "Error retrieving schedules", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"schedules": slots,
		"total":     len(slots),
	})
}

func parseFromDate(w http.ResponseWriter, r *http.Request) (*time.Time, bool) {
	fromStr := r.URL.Query().Get("from_date")
	if fromStr == "" {
		return nil, true
	}
	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		http.Error(w, "Invalid date format. Use YYYY-MM-DD", http.StatusBadRequest)
		return nil, false
	}
	return &from, true
}

func (h *ScheduleHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	scheduleID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid schedule ID", http.StatusBadRequest)
		return
	}

	slot, err := h.store.GetByID(uint(scheduleID))
	if err != nil {
		http.Error(w, "Schedule not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(slot)
}

func (h *ScheduleHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	scheduleID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid schedule ID", http.StatusBadRequest)
		return
	}

	slot, err := h.store.GetByID(uint(scheduleID))
	if err != nil {
		http.Error(w, "Schedule not found", http.StatusNotFound)
		return
	}
	if !h.ownsTutor(r, slot.TutorID) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	date, start, end, err := parseSlotTimes(req)
	if err != nil {
		http.Error(w, "Invalid date/time format. Use YYYY-MM-DD and HH:MM", http.StatusBadRequest)
		return
	}

	if err := h.store.Update(uint(scheduleID), date, start, end); err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Schedule updated successfully",
	})
}

func (h *ScheduleHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	scheduleID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid schedule ID", http.StatusBadRequest)
		return
	}

	slot, err := h.store.GetByID(uint(scheduleID))
	if err != nil {
		http.Error(w, "Schedule not found", http.StatusNotFound)
		return
	}
	if !h.ownsTutor(r, slot.TutorID) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if err := h.store.Delete(uint(scheduleID)); err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Schedule deleted successfully",
	})
}
