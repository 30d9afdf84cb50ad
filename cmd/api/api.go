package api

import (
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/tutorlink/tutorlink-server/cmd/utils"
	"github.com/tutorlink/tutorlink-server/service/booking"
	"github.com/tutorlink/tutorlink-server/service/payment"
	"github.com/tutorlink/tutorlink-server/service/review"
	"github.com/tutorlink/tutorlink-server/service/schedule"
	"github.com/tutorlink/tutorlink-server/service/user"
	"gorm.io/gorm"
)

type APIServer struct {
	address string
	db      *gorm.DB
}

func NewApiServer(address string, db *gorm.DB) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
	}
}

func (s *APIServer) Run() error {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()

	protected := router.PathPrefix("/api/v1").Subrouter()
	protected.Use(utils.AuthMiddleware)

	userHandler := user.NewHandler(s.db)
	userHandler.RegisterRoutes(subrouter)
	userHandler.RegisterProtectedRoutes(protected)

	scheduleHandler := schedule.NewScheduleHandler(s.db)
	scheduleHandler.RegisterRoutes(protected)

	bookingHandler := booking.NewBookingHandler(s.db)
	bookingHandler.RegisterRoutes(protected)

	reviewHandler := review.NewReviewHandler(s.db)
	reviewHandler.RegisterRoutes(protected)

	paymentHandler := payment.NewPaymentHandler(s.db)
	paymentHandler.RegisterRoutes(protected)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	log.Println("Server running at", s.address)
	return http.ListenAndServe(s.address, cors(router))
}
