package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes assembles the chi router with spec §4.8's fixed middleware
// pipeline: ErrorHandler, RequestLog, SecurityHeaders, TenantResolver,
// Authentication, RateLimit, ResponseCache, PerformanceMonitor, CORS,
// Router. ErrorHandler is chi's stock Recoverer (the teacher's router.go
// uses the same for its outermost panic guard); CORS is go-chi/cors,
// matching the teacher's dependency rather than a hand-rolled header
// writer.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(CorrelationMiddleware)
	r.Use(RequestLog)
	r.Use(SecurityHeaders)

	r.Get("/health", s.Health)
	r.Get("/ready", s.Ready)
	r.Get("/live", s.Live)

	verifyTenantClaim := func(bearer string) (string, bool) {
		claims, err := s.Tokens.VerifyAccess(bearer, nil)
		if err != nil {
			return "", false
		}
		return claims.TenantID, true
	}

	r.Group(func(r chi.Router) {
		r.Use(TenantResolver(s.TenantResolver, verifyTenantClaim))
		r.Use(OptionalTenantBinding)
		r.Use(RateLimitMiddleware(s.Cache, s.RateLimit, "auth"))
		r.Use(ResponseCache)
		r.Use(PerformanceMonitor)
		r.Use(corsMiddleware(s.CORSOrigins))

		r.Post("/auth/register", s.Register)
		r.Post("/auth/login", s.Login)
		r.Post("/auth/refresh", s.Refresh)
		r.Post("/auth/logout", s.Logout)
	})

	r.Group(func(r chi.Router) {
		r.Use(TenantResolver(s.TenantResolver, verifyTenantClaim))
		r.Use(Authentication(s))
		r.Use(RateLimitMiddleware(s.Cache, s.RateLimit, "authenticated"))
		r.Use(ResponseCache)
		r.Use(PerformanceMonitor)
		r.Use(corsMiddleware(s.CORSOrigins))

		r.Post("/auth/mfa/enable", s.EnableMFA)
		r.Post("/auth/mfa/verify", s.VerifyMFA)
		r.Post("/auth/mfa/disable", s.DisableMFA)

		r.Get("/tasks/reports/statistics", s.TaskStatistics)
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.ListTasks)
			r.Post("/", s.CreateTask)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.GetTask)
				r.Put("/", s.UpdateTask)
				r.Delete("/", s.DeleteTask)
				r.Patch("/assign", s.AssignTask)
				r.Patch("/status", s.ChangeTaskStatus)
				r.Post("/comments", s.AddTaskComment)
			})
		})
	})

	return r
}

// corsMiddleware mirrors the teacher's CORS posture (restrict to a
// configured origin allow-list, permit the standard verb/header set used
// by the rest of this API) via go-chi/cors rather than a hand-rolled
// header writer.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Tenant-ID", "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
