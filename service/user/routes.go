package user

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/tutorlink/tutorlink-server/cmd/models"
	"github.com/tutorlink/tutorlink-server/cmd/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// RegisterRoutes mounts the endpoints that need no authentication.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/login", h.handleLogin).Methods("POST")
	router.HandleFunc("/register", h.HandleRegister).Methods("POST")
	router.HandleFunc("/refresh", h.handleRefreshToken).Methods("POST")
	router.HandleFunc("/users/{id}", h.GetUser).Methods("GET")
	router.HandleFunc("/tutors", h.GetTutors).Methods("GET")
	router.HandleFunc("/tutors/search", h.SearchTutors).Methods("GET")
	router.HandleFunc("/tutors/{id}", h.GetTutor).Methods("GET")
}

// RegisterProtectedRoutes mounts the endpoints that require an
// authenticated identity.
func (h *Handler) RegisterProtectedRoutes(router *mux.Router) {
	router.HandleFunc("/tutors/{id}", h.UpdateTutor).Methods("PUT")
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&loginRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var user models.User
	result := h.db.Where("email = ?", loginRequest.Email).First(&user)
	if result.Error != nil {
		http.Error(w, "User not found", http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(loginRequest.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	accessToken, err := generateJWT(user.ID, user.Role, 7500)
	if err != nil {
		http.Error(w, "Error generating access token", http.StatusInternalServerError)
		return
	}

	refreshToken, err := generateRefreshToken(user.ID, user.Role)
	if err != nil {
		http.Error(w, "Error generating refresh token", http.StatusInternalServerError)
		return
	}

	if err := saveRefreshToken(h.db, user.ID, refreshToken); err != nil {
		http.Error(w, "Error saving refresh token", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"message":       "Login successful",
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"user_id":       user.ID,
		"role":          user.Role,
	}

	if user.Role == models.RoleTutor {
		var tutor models.Tutor
		result := h.db.Where("user_id = ?", user.ID).First(&tutor)
		if result.Error == nil {
			response["tutor_id"] = tutor.ID
		} else if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			http.Error(w, "Error fetching tutor profile", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var registerRequest struct {
		FullName   string  `json:"full_name"`
		Email      string  `json:"email"`
		Password   string  `json:"password"`
		Role       string  `json:"role"`
		Bio        string  `json:"bio"`
		Subject    string  `json:"subject"`
		HourlyRate float64 `json:"hourly_rate"`
	}

	if err := json.NewDecoder(r.Body).Decode(&registerRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if registerRequest.FullName == "" || registerRequest.Email == "" || registerRequest.Password == "" {
		http.Error(w, "Name, email and password are required", http.StatusBadRequest)
		return
	}
	if registerRequest.Role != models.RoleStudent && registerRequest.Role != models.RoleTutor {
		http.Error(w, "Role must be student or tutor", http.StatusBadRequest)
		return
	}
	if registerRequest.Role == models.RoleTutor {
		if registerRequest.Subject == "" || registerRequest.HourlyRate <= 0 {
			http.Error(w, "Tutors must provide a subject and a positive hourly rate", http.StatusBadRequest)
			return
		}
	}

	var existing models.User
	if err := h.db.Where("email = ?", registerRequest.Email).First(&existing).Error; err == nil {
		http.Error(w, "Email already registered", http.StatusConflict)
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(registerRequest.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}

	user := models.User{
		FullName:     registerRequest.FullName,
		Email:        registerRequest.Email,
		PasswordHash: string(passwordHash),
		Role:         registerRequest.Role,
	}

	tx := h.db.Begin()
	if err := tx.Create(&user).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error creating user", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"message": "Registration successful",
		"user_id": user.ID,
	}

	if registerRequest.Role == models.RoleTutor {
		tutor := models.Tutor{
			UserID:     user.ID,
			Bio:        registerRequest.Bio,
			Subject:    registerRequest.Subject,
			HourlyRate: registerRequest.HourlyRate,
		}
		if err := tx.Create(&tutor).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error creating tutor profile", http.StatusInternalServerError)
			return
		}
		response["tutor_id"] = tutor.ID
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error completing registration", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

func (h *Handler) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var refreshRequest struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&refreshRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	claims := &utils.Claims{}
	token, err := jwt.ParseWithClaims(refreshRequest.RefreshToken, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(os.Getenv("SECRET_KEY")), nil
	})
	if err != nil || !token.Valid {
		http.Error(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID in token", http.StatusUnauthorized)
		return
	}

	var user models.User
	if err := h.db.First(&user, uint(userID)).Error; err != nil {
		http.Error(w, "User not found", http.StatusUnauthorized)
		return
	}
	if user.Refresh != refreshRequest.RefreshToken || time.Now().After(user.RefreshTokenExpiredAt) {
		http.Error(w, "Refresh token expired or revoked", http.StatusUnauthorized)
		return
	}

	accessToken, err := generateJWT(user.ID, user.Role, 7500)
	if err != nil {
		http.Error(w, "Error generating access token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": accessToken,
	})
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.Preload("Tutor").First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// attachRatings fills the review aggregates on the given tutors. Reviews
// reach a tutor through their booking's schedule; the average is rounded
// to one decimal place.
func (h *Handler) attachRatings(tutors ...*models.Tutor) error {
	if len(tutors) == 0 {
		return nil
	}
	ids := make([]uint, len(tutors))
	for i, tut := range tutors {
		ids[i] = tut.ID
	}

	var rows []struct {
		TutorID       uint
		AverageRating float64
		ReviewCount   int64
	}
	err := h.db.Model(&models.Review{}).
		Select("schedules.tutor_id AS tutor_id, AVG(reviews.rating) AS average_rating, COUNT(reviews.id) AS review_count").
		Joins("JOIN bookings ON bookings.id = reviews.booking_id").
		Joins("JOIN schedules ON schedules.id = bookings.schedule_id").
		Where("schedules.tutor_id IN ?", ids).
		Group("schedules.tutor_id").
		Scan(&rows).Error
	if err != nil {
		return err
	}

	type aggregate struct {
		average float64
		count   int64
	}
	byTutor := make(map[uint]aggregate, len(rows))
	for _, row := range rows {
		byTutor[row.TutorID] = aggregate{
			average: math.Round(row.AverageRating*10) / 10,
			count:   row.ReviewCount,
		}
	}

	for _, tut := range tutors {
		agg := byTutor[tut.ID]
		tut.AverageRating = agg.average
		tut.ReviewCount = agg.count
	}
	return nil
}

func (h *Handler) GetTutors(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 10

	query := h.db.Model(&models.Tutor{}).Preload("User")

	if subject := r.URL.Query().Get("subject"); subject != "" {
		query = query.Where("subject ILIKE ?", "%"+subject+"%")
	}

	var total int64
	query.Count(&total)

	var tutors []models.Tutor
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).Find(&tutors).Error; err != nil {
		http.Error(w, "Error retrieving tutors", http.StatusInternalServerError)
		return
	}

	refs := make([]*models.Tutor, len(tutors))
	for i := range tutors {
		refs[i] = &tutors[i]
	}
	if err := h.attachRatings(refs...); err != nil {
		http.Error(w, "Error aggregating ratings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tutors":      tutors,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

func (h *Handler) SearchTutors(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		http.Error(w, "Search term is required", http.StatusBadRequest)
		return
	}

	var tutors []models.Tutor
	err := h.db.
		Joins("JOIN users ON users.id = tutors.user_id").
		Where("users.full_name ILIKE ? OR tutors.subject ILIKE ?", "%"+term+"%", "%"+term+"%").
		Preload("User").
		Find(&tutors).Error
	if err != nil {
		http.Error(w, "Error searching tutors", http.StatusInternalServerError)
		return
	}

	refs := make([]*models.Tutor, len(tutors))
	for i := range tutors {
		refs[i] = &tutors[i]
	}
	if err := h.attachRatings(refs...); err != nil {
		http.Error(w, "Error aggregating ratings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tutors": tutors,
		"total":  len(tutors),
	})
}

func (h *Handler) GetTutor(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tutorID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid tutor ID", http.StatusBadRequest)
		return
	}

	var tutor models.Tutor
	if err := h.db.Preload("User").First(&tutor, tutorID).Error; err != nil {
		http.Error(w, "Tutor not found", http.StatusNotFound)
		return
	}

	if err := h.attachRatings(&tutor); err != nil {
		http.Error(w, "Error aggregating ratings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tutor)
}

func (h *Handler) UpdateTutor(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tutorID, err := strconv.ParseUint(vars["id"], 10, 64)
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
	if tutor.UserID != identity.UserID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var updateData struct {
		Bio        string  `json:"bio"`
		Subject    string  `json:"subject"`
		HourlyRate float64 `json:"hourly_rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&updateData); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if updateData.Subject == "" || updateData.HourlyRate <= 0 {
		http.Error(w, "Subject and a positive hourly rate are required", http.StatusBadRequest)
		return
	}

	tutor.Bio = updateData.Bio
	tutor.Subject = updateData.Subject
	tutor.HourlyRate = updateData.HourlyRate

	if err := h.db.Save(&tutor).Error; err != nil {
		http.Error(w, "Error updating tutor", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tutor)
}

func generateJWT(userID uint, role string, expiryMinutes int) (string, error) {
	claims := utils.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(expiryMinutes) * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("SECRET_KEY")))
}

func generateRefreshToken(userID uint, role string) (string, error) {
	claims := utils.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(30 * 24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("SECRET_KEY")))
}

func saveRefreshToken(db *gorm.DB, userID uint, refreshToken string) error {
	return db.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"refresh_token":            refreshToken,
		"refresh_token_expired_at": time.Now().Add(30 * 24 * time.Hour),
	}).Error
}
