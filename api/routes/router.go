package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mateoalvarez/carhive-backend/api/controllers"
	webhookcontrollers "github.com/mateoalvarez/carhive-backend/api/controllers/webhooks"
	"github.com/mateoalvarez/carhive-backend/api/middleware"
	"github.com/mateoalvarez/carhive-backend/internal/analytics"
	"github.com/mateoalvarez/carhive-backend/internal/auth"
	"github.com/mateoalvarez/carhive-backend/internal/bookings"
	"github.com/mateoalvarez/carhive-backend/internal/fleet"
	"github.com/mateoalvarez/carhive-backend/internal/payments"
	"github.com/mateoalvarez/carhive-backend/internal/users"
	stripewebhook "github.com/mateoalvarez/carhive-backend/internal/webhooks/stripe"
	"github.com/mateoalvarez/carhive-backend/pkg/config"
	"github.com/mateoalvarez/carhive-backend/pkg/db"
	"github.com/mateoalvarez/carhive-backend/pkg/logger"
	"github.com/mateoalvarez/carhive-backend/pkg/redis"
	"github.com/mateoalvarez/carhive-backend/pkg/stripe"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        db.Pinger
	Redis     *redis.Client
	Stripe    *stripe.Client
	Gatherer  prometheus.Gatherer
	Auth      auth.Service
	Users     users.Service
	Fleet     fleet.Service
	Bookings  bookings.Service
	Payments  payments.Service
	Analytics analytics.Service
	Webhooks  *stripewebhook.Service
	Guard     *stripewebhook.IdempotencyGuard
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.DB, d.Redis))
	})

	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(d.Webhooks, d.Stripe, d.Guard, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", controllers.AuthRegister(d.Auth, logg))
		r.Post("/login", controllers.AuthLogin(d.Auth, logg))
	})

	r.Route("/api/v1/cars", func(r chi.Router) {
		r.Get("/", controllers.ListCars(d.Fleet, logg))
		r.Get("/{carId}", controllers.GetCar(d.Fleet, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/users", func(r chi.Router) {
			r.Get("/me", controllers.UserProfile(d.Users, logg))
			r.Put("/me/driver-info", controllers.UpdateDriverInfo(d.Users, logg))
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", controllers.CreateBooking(d.Bookings, logg))
			r.Get("/", controllers.ListMyBookings(d.Bookings, logg))
			r.Get("/{bookingId}", controllers.GetBooking(d.Bookings, logg))
			r.Patch("/{bookingId}/status", controllers.UpdateBookingStatus(d.Bookings, logg))
			r.Post("/{bookingId}/cancel", controllers.CancelBooking(d.Bookings, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/intent", controllers.CreatePaymentIntent(d.Payments, logg))
			r.Post("/confirm", controllers.ConfirmPayment(d.Payments, logg))
			r.Get("/", controllers.PaymentHistory(d.Payments, logg))
			r.Get("/{paymentId}", controllers.GetPayment(d.Payments, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))

		r.Route("/cars", func(r chi.Router) {
			r.Post("/", controllers.AdminCreateCar(d.Fleet, logg))
			r.Patch("/{carId}", controllers.AdminUpdateCar(d.Fleet, logg))
			r.Delete("/{carId}", controllers.AdminDeactivateCar(d.Fleet, logg))
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", controllers.AdminListBookings(d.Bookings, logg))
			r.Patch("/{bookingId}/status", controllers.UpdateBookingStatus(d.Bookings, logg))
			r.Post("/{bookingId}/refund", controllers.AdminRefundBooking(d.Payments, logg))
		})

		r.Get("/stats", controllers.AdminStats(d.Analytics, logg))
	})

	return r
}
