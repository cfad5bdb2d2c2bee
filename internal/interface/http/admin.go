package http

import (
	"net/http"

	"github.com/edutracker/edutracker/internal/application/command"
	"github.com/edutracker/edutracker/internal/interface/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListCompetencies(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Catalog.Competencies(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, list)
}

func (s *Server) handleSaveCompetency(w http.ResponseWriter, r *http.Request) {
	var cmd command.SaveCompetencyCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}
	c, err := s.deps.SaveCompetency.Handle(r.Context(), cmd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

func (s *Server) handleListClasses(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Catalog.Classes(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, list)
}

func (s *Server) handleSaveClass(w http.ResponseWriter, r *http.Request) {
	var cmd command.SaveClassCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}
	c, err := s.deps.SaveClass.Handle(r.Context(), cmd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

// ══════════════════════════════════════════════════════════════════════════════
// INVITES
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListInvites(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Catalog.Invites(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, presenter.Invites(list))
}

// handleCreateInvite returns the one-time token. It is never shown again.
func (s *Server) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	var cmd command.CreateInviteCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}
	res, err := s.deps.Invites.Create(r.Context(), cmd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, presenter.CreatedInvite(res))
}

func (s *Server) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	var cmd command.AcceptInviteCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}
	cmd.InviteID = r.PathValue("id")

	inv, err := s.deps.Invites.Accept(r.Context(), cmd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, presenter.Invite(inv))
}

func (s *Server) handleDeleteInvite(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Invites.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════════════════════
// SYNC
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.SyncStatus == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "sync_disabled", "remote sync is not configured", nil)
		return
	}
	st, err := s.deps.SyncStatus.Handle(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

func (s *Server) handleFailedTasks(w http.ResponseWriter, r *http.Request) {
	if s.deps.SyncStatus == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "sync_disabled", "remote sync is not configured", nil)
		return
	}
	tasks, err := s.deps.SyncStatus.FailedTasks(r.Context(), getQueryInt(r, "limit", 50))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, tasks)
}

// handleResync pulls every collection from the remote. An empty body uses
// the configured mode.
func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Resync == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "sync_disabled", "remote sync is not configured", nil)
		return
	}
	var cmd command.ResyncCommand
	if r.ContentLength != 0 && !decodeJSON(w, r, &cmd) {
		return
	}
	res, err := s.deps.Resync.Handle(r.Context(), cmd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}
