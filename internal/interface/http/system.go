package http

import (
	"net/http"
	"time"

	"github.com/edutracker/edutracker/internal/domain/student"
	"github.com/edutracker/edutracker/internal/interface/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"service": "edutracker",
		"version": s.config.Version,
		"time":    time.Now().UTC(),
	})
}

// handleHealth reports liveness and the individual dependency checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	if !status.Ready {
		writeJSONError(w, r, http.StatusServiceUnavailable, "not_ready", status.Message, nil)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"ready": true})
}

// ══════════════════════════════════════════════════════════════════════════════
// REFERENCE DATA
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, presenter.Options())
}

// handleDeriveStanding maps ?level= to its standing.
func (s *Server) handleDeriveStanding(w http.ResponseWriter, r *http.Request) {
	level, err := student.ParseLevel(r.URL.Query().Get("level"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, presenter.Standing(level, student.DeriveStanding(level)))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Dashboard.Handle(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}
