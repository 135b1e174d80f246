// Package api exposes the booking engine over a JSON HTTP interface.
package api

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ovenbook/internal/access"
	"ovenbook/internal/audit"
	"ovenbook/internal/booking"
	"ovenbook/internal/clock"
	"ovenbook/internal/directory"
	"ovenbook/internal/metrics"
)

const (
	headerAPIKey = "X-Api-Key"
	headerActor  = "X-Actor-ID"
)

// Sweeper runs the opportunistic auto-complete sweep.
type Sweeper interface {
	Trigger(ctx context.Context) (int, error)
}

// Exporter writes the audit workbook.
type Exporter interface {
	Export(ctx context.Context, w io.Writer) (audit.Report, error)
}

// HealthChecker reports store readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Deps struct {
	Engine   *booking.Service
	Access   *access.Service
	Ovens    *directory.Directory
	Sweeper  Sweeper
	Exporter Exporter
	Health   HealthChecker
	Clock    clock.Clock
	APIKey   string
}

type Server struct {
	engine   *booking.Service
	access   *access.Service
	ovens    *directory.Directory
	sweeper  Sweeper
	exporter Exporter
	health   HealthChecker
	clock    clock.Clock
	apiKey   string
	tracer   trace.Tracer
	logger   zerolog.Logger
}

func NewServer(deps Deps, logger zerolog.Logger) *Server {
	clk := deps.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &Server{
		engine:   deps.Engine,
		access:   deps.Access,
		ovens:    deps.Ovens,
		sweeper:  deps.Sweeper,
		exporter: deps.Exporter,
		health:   deps.Health,
		clock:    clk,
		apiKey:   deps.APIKey,
		tracer:   otel.Tracer("ovenbook/api"),
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/users", s.handleRegister)

		r.Group(func(r chi.Router) {
			r.Use(s.resolveActor)

			r.Get("/me", s.handleMe)
			r.Get("/dashboard", s.handleDashboard)

			r.Get("/ovens", s.handleListOvens)
			r.Get("/ovens/{ovenID}", s.handleGetOven)
			r.Post("/ovens", s.handleCreateOven)
			r.Put("/ovens/{ovenID}", s.handleUpdateOven)
			r.Delete("/ovens/{ovenID}", s.handleDeleteOven)
			r.Post("/ovens/{ovenID}/maintenance", s.handleSetMaintenance)
			r.Delete("/ovens/{ovenID}/maintenance", s.handleClearMaintenance)

			r.Get("/bookings", s.handleListBookings)
			r.Post("/bookings", s.handleCreateBooking)
			r.Get("/bookings/{bookingID}", s.handleGetBooking)
			r.Put("/bookings/{bookingID}", s.handleEditBooking)
			r.Delete("/bookings/{bookingID}", s.handleRemoveBooking)
			r.Post("/bookings/{bookingID}/cancel", s.handleCancelBooking)
			r.Post("/bookings/{bookingID}/complete", s.handleCompleteBooking)
			r.Get("/bookings/{bookingID}/events", s.handleBookingHistory)

			r.Group(func(r chi.Router) {
				r.Use(s.adminOnly)
				r.Get("/users", s.handleListUsers)
				r.Post("/users/{userID}/approve", s.handleApproveUser)
				r.Post("/users/{userID}/reject", s.handleRejectUser)
				r.Put("/users/{userID}/role", s.handleSetRole)
				r.Get("/export", s.handleExport)
			})
		})
	})
	return r
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = r.Method + " " + rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		span.SetAttributes(attribute.String("http.route", route), attribute.Int("http.status_code", status))
		metrics.IncHTTP(route, strconv.Itoa(status))

		s.logger.Debug().
			Str("route", route).
			Int("status", status).
			Dur("took", time.Since(started)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request served")
	})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			got := r.Header.Get(headerAPIKey)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type actorKey struct{}

func (s *Server) resolveActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.access.ResolveActor(r.Context(), r.Header.Get(headerActor))
		if err != nil {
			if access.IsAccessDenied(err) {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			s.logger.Error().Err(err).Msg("resolve actor")
			writeError(w, http.StatusInternalServerError, booking.GenericFailure)
			return
		}
		ctx := context.WithValue(r.Context(), actorKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !actorFrom(r).IsAdmin() {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actorFrom(r *http.Request) booking.Actor {
	actor, _ := r.Context().Value(actorKey{}).(booking.Actor)
	return actor
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.HealthCheck(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
