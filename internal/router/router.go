package router

import (
	"net/http"
	"time"

	"merchant-admin/internal/handlers"
	"merchant-admin/internal/metrics"
	"merchant-admin/internal/middleware"
	"merchant-admin/internal/models"
	"merchant-admin/internal/services"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Dependencies is everything the HTTP layer is built from.
type Dependencies struct {
	Store     handlers.LiveStore
	Merchants handlers.MerchantDirectory
	Audit     handlers.AuditTrail
	Operators handlers.OperatorDirectory
	Auth      *services.AuthService
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer

	PageSize  int
	PageWait  time.Duration
	RateLimit float64
	RateBurst int
}

func SetupRouter(deps Dependencies, logger zerolog.Logger) *mux.Router {
	authHandler := handlers.NewAuthHandler(deps.Operators, deps.Auth, logger)
	merchantHandler := handlers.NewMerchantHandler(deps.Store, deps.Merchants, deps.Audit, deps.PageSize, logger)
	pageHandler := handlers.NewPageHandler(deps.Store, deps.Merchants, deps.Operators, deps.Auth, deps.PageSize, deps.PageWait, logger)
	liveHandler := handlers.NewLiveHandler(deps.Store, deps.Metrics, logger)

	admin := string(models.RoleAdmin)
	authenticate := middleware.Authentication(deps.Auth, logger)

	r := mux.NewRouter()

	rateLimiter := middleware.NewRateLimiter(rate.Limit(deps.RateLimit), deps.RateBurst)

	r.Use(middleware.ErrorHandling(logger))
	r.Use(middleware.PerformanceMonitoring(deps.Metrics, logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	r.Use(rateLimiter.Middleware())

	api := r.PathPrefix("/api/v1").Subrouter()

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", authHandler.Register).Methods("POST")
	auth.HandleFunc("/login", authHandler.Login).Methods("POST")

	protectedAuth := auth.PathPrefix("").Subrouter()
	protectedAuth.Use(authenticate)
	protectedAuth.HandleFunc("/refresh", authHandler.Refresh).Methods("POST")

	merchants := api.PathPrefix("/merchants").Subrouter()
	merchants.Use(authenticate)
	merchants.Use(middleware.RequireRoleForWrites(admin))
	merchants.Use(middleware.RequestValidation())
	merchants.HandleFunc("", merchantHandler.ListMerchants).Methods("GET")
	merchants.HandleFunc("", merchantHandler.CreateMerchant).Methods("POST")
	merchants.HandleFunc("/{id}", merchantHandler.GetMerchant).Methods("GET")
	merchants.HandleFunc("/{id}", merchantHandler.UpdateMerchant).Methods("PATCH")
	merchants.HandleFunc("/{id}", merchantHandler.DeleteMerchant).Methods("DELETE")
	merchants.HandleFunc("/{id}/bids", merchantHandler.AddBid).Methods("POST")
	merchants.HandleFunc("/{id}/bids/{bidId}", merchantHandler.RemoveBid).Methods("DELETE")
	merchants.HandleFunc("/{id}/audit", merchantHandler.GetAuditLog).Methods("GET")

	r.Handle("/ws/merchants", authenticate(liveHandler)).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})).Methods("GET")

	r.HandleFunc("/login", pageHandler.LoginForm).Methods("GET")
	r.HandleFunc("/login", pageHandler.Login).Methods("POST")
	r.HandleFunc("/logout", pageHandler.Logout).Methods("POST")

	pages := r.NewRoute().Subrouter()
	pages.Use(middleware.SessionAuthentication(deps.Auth, logger))
	pages.Use(middleware.RequireRoleForWrites(admin))
	pages.HandleFunc("/", pageHandler.Index).Methods("GET")
	pages.HandleFunc("/page/{page:[0-9]+}", pageHandler.List).Methods("GET")
	pages.HandleFunc("/merchants/{id}", pageHandler.Detail).Methods("GET")
	pages.HandleFunc("/merchants/{id}/fields/{field}", pageHandler.UpdateField).Methods("POST")
	pages.HandleFunc("/merchants/{id}/premium", pageHandler.SetPremium).Methods("POST")
	pages.HandleFunc("/merchants/{id}/bids", pageHandler.AddBid).Methods("POST")
	pages.HandleFunc("/merchants/{id}/bids/{bidId}/remove", pageHandler.RemoveBid).Methods("POST")
	pages.HandleFunc("/merchants/{id}/delete", pageHandler.Delete).Methods("POST")

	return r
}
