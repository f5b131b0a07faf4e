package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dishpatch/api/internal/config"
	"github.com/dishpatch/api/internal/database"
	"github.com/dishpatch/api/internal/enum"
	"github.com/dishpatch/api/internal/handler"
	mw "github.com/dishpatch/api/internal/middleware"
	"github.com/dishpatch/api/internal/processor"
	"github.com/dishpatch/api/internal/service"
	"github.com/dishpatch/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication and role-based middleware as needed.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub, proc processor.Client) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "https://app.dishpatch.io"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(
		queries,
		pool,
		func(db database.DBTX) handler.AuthStore { return database.New(db) },
		cfg.JWTSecret,
	)
	authHandler.RegisterRoutes(r)

	// Menu catalog (public, read-only)
	menuItemHandler := handler.NewMenuItemHandler(queries)
	r.Route("/menu-items", menuItemHandler.RegisterRoutes)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/restaurants/{rid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Services
	orderService := service.NewOrderService(
		queries,
		pool,
		func(db database.DBTX) service.OrderStore { return database.New(db) },
	)
	paymentService := service.NewPaymentService(
		queries,
		pool,
		func(db database.DBTX) service.PaymentStore { return database.New(db) },
		proc,
	)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		orderHandler := handler.NewOrderHandler(orderService, hub, cfg.Development())
		r.Route("/orders", orderHandler.RegisterRoutes)

		paymentHandler := handler.NewPaymentHandler(paymentService, queries, hub, cfg.Development())
		r.Route("/payments", func(r chi.Router) {
			r.Get("/order/{orderId}", paymentHandler.GetByOrder)

			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.RoleCustomer, enum.RoleAdmin))
				r.Post("/create-intent", paymentHandler.CreateIntent)
				r.Post("/confirm-intent", paymentHandler.ConfirmIntent)
			})

			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.RoleRestaurant, enum.RoleAdmin))
				r.Post("/refund/{orderId}", paymentHandler.Refund)
			})

			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.RoleAdmin))
				r.Get("/", paymentHandler.List)
			})
		})
	})

	return r
}
