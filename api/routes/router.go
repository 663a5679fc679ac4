package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/librisforge/libris-backend/api/controllers"
	"github.com/librisforge/libris-backend/api/middleware"
	"github.com/librisforge/libris-backend/internal/circulation"
	"github.com/librisforge/libris-backend/internal/inventory"
	"github.com/librisforge/libris-backend/internal/notifications"
	"github.com/librisforge/libris-backend/pkg/config"
	"github.com/librisforge/libris-backend/pkg/db"
	"github.com/librisforge/libris-backend/pkg/logger"
	"github.com/librisforge/libris-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	circulationService circulation.Service,
	inventoryService inventory.Service,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/loans", func(r chi.Router) {
			r.Post("/", controllers.CheckoutLoan(circulationService, logg))
			r.Post("/{loanId}/return", controllers.ReturnLoan(circulationService, logg))
			r.Get("/{loanId}/fine", controllers.LoanFine(circulationService, logg))
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", controllers.CreateReservation(circulationService, logg))
			r.Delete("/{reservationId}", controllers.CancelReservation(circulationService, logg))
		})

		r.Route("/books/{bookId}", func(r chi.Router) {
			r.Get("/availability", controllers.BookAvailability(inventoryService, logg))
			r.Put("/inventory", controllers.SetBookInventory(inventoryService, logg))
			r.Post("/copies", controllers.AddBookCopies(inventoryService, logg))
		})

		r.Route("/members/{memberId}", func(r chi.Router) {
			r.Get("/loans", controllers.MemberLoans(circulationService, logg))
			r.Get("/fines", controllers.MemberFines(circulationService, logg))

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(notificationsService, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
			})
		})
	})

	return r
}
