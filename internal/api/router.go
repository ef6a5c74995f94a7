package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/fineprint/internal/api/middleware"
	"github.com/kiranshivaraju/fineprint/internal/api/response"
	"github.com/kiranshivaraju/fineprint/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit // nil disables rate limiting

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	SubmitURLList http.HandlerFunc
	SubmitSession http.HandlerFunc
	ListJobs      http.HandlerFunc
	GetJob        http.HandlerFunc
	CancelJob     http.HandlerFunc
	DeleteJob     http.HandlerFunc
	ExportJob     http.HandlerFunc

	ReplaceTabs http.HandlerFunc
	ListTabs    http.HandlerFunc

	RecordCost      http.HandlerFunc
	CostReport      http.HandlerFunc
	Recommendations http.HandlerFunc
	UserCost        http.HandlerFunc
	CostExport      http.HandlerFunc
	ListAlerts      http.HandlerFunc
	ResetAlerts     http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Route("/api/v1/jobs", func(r chi.Router) {
			r.Post("/", orNotImplemented(deps.SubmitURLList))
			r.Get("/", orNotImplemented(deps.ListJobs))
			r.Post("/session", orNotImplemented(deps.SubmitSession))
			r.Get("/{jobID}", orNotImplemented(deps.GetJob))
			r.Delete("/{jobID}", orNotImplemented(deps.DeleteJob))
			r.Post("/{jobID}/cancel", orNotImplemented(deps.CancelJob))
			r.Get("/{jobID}/export", orNotImplemented(deps.ExportJob))
		})

		r.Put("/api/v1/tabs", orNotImplemented(deps.ReplaceTabs))
		r.Get("/api/v1/tabs", orNotImplemented(deps.ListTabs))

		r.Route("/api/v1/costs", func(r chi.Router) {
			r.Post("/events", orNotImplemented(deps.RecordCost))
			r.Get("/report", orNotImplemented(deps.CostReport))
			r.Get("/recommendations", orNotImplemented(deps.Recommendations))
			r.Get("/users/{userID}", orNotImplemented(deps.UserCost))
			r.Get("/export", orNotImplemented(deps.CostExport))
			r.Get("/alerts", orNotImplemented(deps.ListAlerts))

			// Admin routes
			r.With(deps.Auth.RequireScope(models.ScopeAdmin)).
				Post("/alerts/reset", orNotImplemented(deps.ResetAlerts))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
