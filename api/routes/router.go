package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/drinkrun-backend/api/controllers"
	"github.com/angelmondragon/drinkrun-backend/api/middleware"
	"github.com/angelmondragon/drinkrun-backend/internal/assignment"
	"github.com/angelmondragon/drinkrun-backend/internal/ledger"
	"github.com/angelmondragon/drinkrun-backend/internal/orders"
	"github.com/angelmondragon/drinkrun-backend/internal/payments"
	"github.com/angelmondragon/drinkrun-backend/pkg/config"
	"github.com/angelmondragon/drinkrun-backend/pkg/db"
	"github.com/angelmondragon/drinkrun-backend/pkg/logger"
)

type redisPinger interface {
	Ping(ctx context.Context) error
}

// Deps collects the services the router exposes over HTTP.
type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         db.Pinger
	Redis      redisPinger
	Orders     orders.Service
	Payments   payments.Service
	Assignment assignment.Service
	Ledger     ledger.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", controllers.PaymentWebhook(deps.Payments, logg))
	})

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Post("/", controllers.CreateOrder(deps.Orders, logg))
		r.Get("/", controllers.ListOrders(deps.Orders, logg))
		r.Route("/{orderId}", func(r chi.Router) {
			r.Get("/", controllers.OrderDetail(deps.Orders, logg))
			r.Post("/status", controllers.TransitionOrder(deps.Orders, logg))
			r.Post("/cancel", controllers.CancelOrder(deps.Orders, logg))
			r.Post("/payment-status", controllers.UpdateOrderPaymentStatus(deps.Orders, logg))
			r.Post("/driver-response", controllers.DriverOrderResponse(deps.Orders, logg))
			r.Post("/branch", controllers.AssignBranch(deps.Assignment, logg))
			r.Post("/driver", controllers.AssignDriver(deps.Assignment, logg))
			r.Get("/transactions", controllers.OrderTransactions(deps.Ledger, logg))
		})
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Post("/push", controllers.InitiatePayment(deps.Payments, logg))
		r.Post("/cash", controllers.RecordCashPayment(deps.Payments, logg))
		r.Post("/{transactionId}/verify", controllers.PollPayment(deps.Payments, logg))
	})

	return r
}
