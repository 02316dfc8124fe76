// Package rest assembles the HTTP surface of the service.
package rest

import (
	"net/http"
	"time"

	"opsbrain/infrastructure/config"
	"opsbrain/interfaces/http/rest/handlers"
	"opsbrain/interfaces/http/rest/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Handlers bundles everything the router mounts
type Handlers struct {
	Agent     *handlers.AgentHandler
	Knowledge *handlers.KnowledgeHandler
	Proposal  *handlers.ProposalHandler
	Workflow  *handlers.WorkflowHandler
	Schedule  *handlers.ScheduleHandler
	Health    *handlers.HealthHandler
}

// NewRouter builds the chi router with the standard middleware stack
func NewRouter(cfg *config.Config, h Handlers, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.Logging(logger))

	if cfg.EnableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret, cfg.JWTIssuer))

		r.Post("/agents/call", h.Agent.CallAgent)

		r.Route("/knowledge", func(r chi.Router) {
			r.Post("/chunks", h.Knowledge.Ingest)
			r.Post("/retrieve", h.Knowledge.Retrieve)
			r.Post("/links", h.Knowledge.Link)
			r.Get("/chunks/{chunkID}/related", h.Knowledge.Related)
			r.Delete("/chunks/{chunkID}", h.Knowledge.Delete)
		})

		r.Route("/proposals", func(r chi.Router) {
			r.Get("/", h.Proposal.List)
			r.Get("/{name}", h.Proposal.Get)
			r.Post("/{name}/approve", h.Proposal.Approve)
			r.Post("/{name}/reject", h.Proposal.Reject)
			r.Post("/{name}/deploy", h.Proposal.Deploy)
		})

		r.Route("/workflows", func(r chi.Router) {
			r.Post("/execute", h.Workflow.Execute)
			r.Get("/metrics", h.Workflow.AggregateMetrics)
			r.Get("/{workflowID}/metrics", h.Workflow.GetMetrics)
			r.Get("/{workflowID}/executions", h.Workflow.ListExecutions)
		})
		r.Get("/executions/{executionID}", h.Workflow.GetExecution)

		r.Route("/schedules", func(r chi.Router) {
			r.Post("/", h.Schedule.Create)
			r.Get("/", h.Schedule.List)
			r.Get("/{scheduleID}", h.Schedule.Get)
			r.Post("/{scheduleID}/pause", h.Schedule.Pause)
			r.Post("/{scheduleID}/resume", h.Schedule.Resume)
			r.Post("/{scheduleID}/trigger", h.Schedule.Trigger)
			r.Delete("/{scheduleID}", h.Schedule.Delete)
		})
	})

	return r
}
