/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging (zap)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/users/{id}/*     Scores, events, breaks, profile
  /api/rates            Active rate table
  /api/admin/*          Admin operations
  /api/scenarios/*      Demo scenarios
  /healthz              Liveness

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/harmindex/serve.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured. An empty
// origins list falls back to localhost.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/rates", h.GetRates)

		r.Route("/users/{id}", func(r chi.Router) {
			// Scores
			r.Get("/score", h.GetScore)
			r.Get("/score/all-time", h.GetAllTimeScore)
			r.Get("/score/at", h.GetScoreAt)
			r.Get("/history", h.GetHistory)
			r.Get("/snapshots", h.ListSnapshots)
			r.Post("/recompute", h.Recompute)

			// Substance events
			r.Post("/substances", h.LogSubstance)
			r.Post("/substances/preview", h.PreviewSubstance)
			r.Put("/substances/{eid}", h.UpdateSubstance)
			r.Delete("/substances/{eid}", h.DeleteSubstance)

			// Interventions
			r.Post("/interventions", h.LogIntervention)
			r.Delete("/interventions/{eid}", h.DeleteIntervention)

			// Breaks
			r.Post("/breaks", h.StartBreak)
			r.Post("/breaks/{bid}/complete", h.CompleteBreak)
			r.Post("/breaks/{bid}/end-early", h.EndBreakEarly)
			r.Delete("/breaks/{bid}", h.DeleteBreak)

			r.Put("/risk-profile", h.SetRiskProfile)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/recompute", h.RecomputeAll)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// requestLogger logs one line per request through zap.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("took", time.Since(start)))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
