package http

import (
	"errors"
	"net/http"

	"github.com/edutracker/edutracker/internal/application/command"
	"github.com/edutracker/edutracker/internal/application/query"
	"github.com/edutracker/edutracker/internal/interface/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// REINFORCEMENT GROUPS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.deps.Catalog.Groups(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, groups)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var cmd command.CreateGroupCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}
	g, err := s.deps.CreateGroup.Handle(r.Context(), cmd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, g)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.deps.Catalog.Group(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, g)
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	var cmd command.UpdateGroupCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}
	cmd.GroupID = r.PathValue("id")

	g, err := s.deps.UpdateGroup.Handle(r.Context(), cmd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, g)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.DeleteGroup.Handle(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// ── Attendance ──────────────────────────────────────────────────────────────

// handleRecordAttendance replaces the session for {date}. The body carries
// only present_ids.
func (s *Server) handleRecordAttendance(w http.ResponseWriter, r *http.Request) {
	var cmd command.RecordAttendanceCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}
	cmd.GroupID = r.PathValue("id")
	cmd.Date = r.PathValue("date")

	res, err := s.deps.RecordAttendance.Handle(r.Context(), cmd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Replaced {
		status = http.StatusOK
	}
	writeJSON(w, r, status, res)
}

func (s *Server) handleAttendanceRate(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.AttendanceRate.Handle(r.Context(), query.GetAttendanceRateQuery{
		GroupID:   r.PathValue("id"),
		StudentID: r.PathValue("studentId"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

func (s *Server) handleGroupAttendance(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GroupAttendance.Handle(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// ── Discharge ───────────────────────────────────────────────────────────────

// dischargeAccepted is the 202 body for a discharge whose roster update is
// still pending.
type dischargeAccepted struct {
	*command.DischargeResult
	Pending string `json:"pending"`
	Retry   string `json:"retry"`
}

func (s *Server) handleDischarge(w http.ResponseWriter, r *http.Request) {
	var cmd command.DischargeStudentCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}
	cmd.GroupID = r.PathValue("id")

	res, err := s.deps.Discharge.Handle(r.Context(), cmd)
	switch {
	case err == nil:
		writeJSON(w, r, http.StatusCreated, res)
	case errors.Is(err, command.ErrRosterRemovalPending) && res != nil:
		writeJSON(w, r, http.StatusAccepted, dischargeAccepted{
			DischargeResult: res,
			Pending:         "roster_removal",
			Retry:           "DELETE /api/v1/groups/" + cmd.GroupID + "/members/" + cmd.StudentID,
		})
	default:
		writeError(w, r, err)
	}
}

// handleRemoveFromRoster retries a pending roster removal. It is idempotent.
func (s *Server) handleRemoveFromRoster(w http.ResponseWriter, r *http.Request) {
	removed, err := s.deps.RemoveFromRoster.Handle(r.Context(), r.PathValue("id"), r.PathValue("studentId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"removed": removed})
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORTS
// ══════════════════════════════════════════════════════════════════════════════

// handleCandidates lists students needing reinforcement outside any group.
func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Candidates.Handle(r.Context(), r.URL.Query().Get("class_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, presenter.Students(list))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.DischargeHistory.Handle(r.Context(), query.DischargeHistoryQuery{
		StudentID: r.URL.Query().Get("student_id"),
		GroupID:   r.URL.Query().Get("group_id"),
		Limit:     getQueryInt(r, "limit", 0),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, entries)
}
