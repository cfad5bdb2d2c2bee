// Package http exposes the edutracker REST API on the standard library
// ServeMux.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edutracker/edutracker/internal/application/command"
	"github.com/edutracker/edutracker/internal/application/query"
	"github.com/edutracker/edutracker/internal/interface/http/handlers"
	"github.com/edutracker/edutracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RequestTimeout bounds the handler context. Zero disables it.
	RequestTimeout time.Duration

	// MaxRequestBytes bounds request bodies.
	MaxRequestBytes int64

	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		RequestTimeout:  10 * time.Second,
		MaxRequestBytes: 1 << 20,
		Version:         "v1",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains the command and query handlers behind the routes.
type Dependencies struct {
	// Commands
	EnrollStudent    *command.EnrollStudentHandler
	DeleteStudent    *command.DeleteStudentHandler
	RecordEvaluation *command.RecordEvaluationHandler
	ClassEvaluations *command.RecordClassEvaluationsHandler
	CreateGroup      *command.CreateGroupHandler
	UpdateGroup      *command.UpdateGroupHandler
	DeleteGroup      *command.DeleteGroupHandler
	RecordAttendance *command.RecordAttendanceHandler
	Discharge        *command.DischargeStudentHandler
	RemoveFromRoster *command.RemoveFromRosterHandler
	Resync           *command.ResyncHandler
	SaveCompetency   *command.SaveCompetencyHandler
	SaveClass        *command.SaveClassHandler
	Invites          *command.InviteHandler

	// Queries
	Progress         *query.StudentProgressHandler
	Candidates       *query.CandidatesHandler
	AttendanceRate   *query.GetAttendanceRateHandler
	GroupAttendance  *query.GroupAttendanceHandler
	DischargeHistory *query.DischargeHistoryHandler
	Dashboard        *query.DashboardHandler
	SyncStatus       *query.SyncStatusHandler
	Catalog          *query.CatalogHandler

	Health handlers.HealthChecker
	Logger *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	handler    http.Handler
	logger     *slog.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	def := DefaultConfig()
	if config.MaxRequestBytes <= 0 {
		config.MaxRequestBytes = def.MaxRequestBytes
	}
	if config.Version == "" {
		config.Version = def.Version
	}
	if deps.Health == nil {
		deps.Health = handlers.NewCompositeHealthChecker(config.Version)
	}

	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		logger: logger.OrDefault(deps.Logger).With(logger.Component("http")),
	}

	s.setupRoutes()
	s.handler = s.buildMiddlewareChain(s.router)

	s.httpServer = &http.Server{
		Addr:              config.Address(),
		Handler:           s.handler,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}
	return s
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /{$}", s.handleRoot)

	// ─────────────────────────────────────────────────────────────────────────
	// Students & evaluations
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /api/v1/options", s.handleOptions)
	s.router.HandleFunc("GET /api/v1/standing", s.handleDeriveStanding)
	s.router.HandleFunc("GET /api/v1/students", s.handleListStudents)
	s.router.HandleFunc("POST /api/v1/students", s.handleEnrollStudent)
	s.router.HandleFunc("GET /api/v1/students/{id}", s.handleGetStudent)
	s.router.HandleFunc("DELETE /api/v1/students/{id}", s.handleDeleteStudent)
	s.router.HandleFunc("POST /api/v1/students/{id}/evaluations", s.handleRecordEvaluation)
	s.router.HandleFunc("POST /api/v1/classes/{id}/evaluations", s.handleClassEvaluations)

	// ─────────────────────────────────────────────────────────────────────────
	// Reinforcement
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /api/v1/groups", s.handleListGroups)
	s.router.HandleFunc("POST /api/v1/groups", s.handleCreateGroup)
	s.router.HandleFunc("GET /api/v1/groups/{id}", s.handleGetGroup)
	s.router.HandleFunc("PATCH /api/v1/groups/{id}", s.handleUpdateGroup)
	s.router.HandleFunc("DELETE /api/v1/groups/{id}", s.handleDeleteGroup)
	s.router.HandleFunc("GET /api/v1/groups/{id}/attendance", s.handleGroupAttendance)
	s.router.HandleFunc("PUT /api/v1/groups/{id}/attendance/{date}", s.handleRecordAttendance)
	s.router.HandleFunc("GET /api/v1/groups/{id}/attendance/rate/{studentId}", s.handleAttendanceRate)
	s.router.HandleFunc("POST /api/v1/groups/{id}/discharges", s.handleDischarge)
	s.router.HandleFunc("DELETE /api/v1/groups/{id}/members/{studentId}", s.handleRemoveFromRoster)
	s.router.HandleFunc("GET /api/v1/reinforcement/candidates", s.handleCandidates)
	s.router.HandleFunc("GET /api/v1/history", s.handleHistory)
	s.router.HandleFunc("GET /api/v1/dashboard", s.handleDashboard)

	// ─────────────────────────────────────────────────────────────────────────
	// Catalog & staff
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /api/v1/competencies", s.handleListCompetencies)
	s.router.HandleFunc("POST /api/v1/competencies", s.handleSaveCompetency)
	s.router.HandleFunc("GET /api/v1/classes", s.handleListClasses)
	s.router.HandleFunc("POST /api/v1/classes", s.handleSaveClass)
	s.router.HandleFunc("GET /api/v1/invites", s.handleListInvites)
	s.router.HandleFunc("POST /api/v1/invites", s.handleCreateInvite)
	s.router.HandleFunc("POST /api/v1/invites/{id}/accept", s.handleAcceptInvite)
	s.router.HandleFunc("DELETE /api/v1/invites/{id}", s.handleDeleteInvite)

	// ─────────────────────────────────────────────────────────────────────────
	// Sync
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /api/v1/sync/status", s.handleSyncStatus)
	s.router.HandleFunc("GET /api/v1/sync/failed", s.handleFailedTasks)
	s.router.HandleFunc("POST /api/v1/sync/resync", s.handleResync)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) buildMiddlewareChain(h http.Handler) http.Handler {
	return handlers.ChainHandler(h,
		s.requestIDMiddleware,
		s.recoveryMiddleware,
		s.loggingMiddleware,
		handlers.SecurityHeadersMiddleware,
		handlers.NoCacheMiddleware,
		handlers.TimeoutMiddleware(s.config.RequestTimeout),
		handlers.RequestSizeLimitMiddleware(s.config.MaxRequestBytes),
	)
}

// requestIDMiddleware tags the request and attaches a request-scoped logger.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		ctx = logger.WithContext(ctx, logger.WithRequestID(s.logger, requestID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		level := slog.LevelInfo
		if rw.statusCode >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.FromContext(r.Context()).LogAttrs(r.Context(), level, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.statusCode),
			logger.Latency(time.Since(start)),
		)
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.FromContext(r.Context()).Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
					slog.String("path", r.URL.Path),
				)
				writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "an unexpected error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", slog.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER TYPES
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	wrote      bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wrote {
		rw.statusCode = code
		rw.wrote = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wrote = true
	return rw.ResponseWriter.Write(b)
}

func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}
