package http

import (
	"net/http"

	"github.com/edutracker/edutracker/internal/application/command"
	"github.com/edutracker/edutracker/internal/application/query"
	"github.com/edutracker/edutracker/internal/domain/student"
	"github.com/edutracker/edutracker/internal/interface/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

// handleListStudents supports ?class_id= and ?standing= filters.
func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	q := query.ListStudentsQuery{
		ClassID:  r.URL.Query().Get("class_id"),
		Standing: student.Standing(r.URL.Query().Get("standing")),
	}
	list, err := s.deps.Progress.List(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, presenter.Students(list))
}

func (s *Server) handleEnrollStudent(w http.ResponseWriter, r *http.Request) {
	var cmd command.EnrollStudentCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}
	st, err := s.deps.EnrollStudent.Handle(r.Context(), cmd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, presenter.Student(st))
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Progress.Handle(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, presenter.Progress(dto))
}

func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.DeleteStudent.Handle(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATIONS
// ══════════════════════════════════════════════════════════════════════════════

// handleRecordEvaluation records one evaluation. The path id wins over any
// student_id in the body.
func (s *Server) handleRecordEvaluation(w http.ResponseWriter, r *http.Request) {
	var cmd command.RecordEvaluationCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}
	cmd.StudentID = r.PathValue("id")

	res, err := s.deps.RecordEvaluation.Handle(r.Context(), cmd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Overwritten {
		status = http.StatusOK
	}
	writeJSON(w, r, status, presenter.EvaluationResult(res))
}

func (s *Server) handleClassEvaluations(w http.ResponseWriter, r *http.Request) {
	var cmd command.RecordClassEvaluationsCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}
	cmd.ClassID = r.PathValue("id")

	res, err := s.deps.ClassEvaluations.Handle(r.Context(), cmd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}
