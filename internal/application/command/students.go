package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/edutracker/edutracker/internal/domain/reinforcement"
	"github.com/edutracker/edutracker/internal/domain/school"
	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/internal/domain/student"
	"github.com/edutracker/edutracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLL STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// EnrollStudentCommand enrolls a student with the default standing.
type EnrollStudentCommand struct {
	// ID is generated when empty.
	ID      string `json:"id"`
	Name    string `json:"name" validate:"required,max=200"`
	Age     int    `json:"age" validate:"gte=0,lte=120"`
	Grade   string `json:"grade" validate:"max=50"`
	ClassID string `json:"class_id"`
}

// EnrollStudentHandler handles EnrollStudentCommand.
type EnrollStudentHandler struct {
	students student.Repository
	classes  school.ClassRepository
}

// NewEnrollStudentHandler creates the handler. classes may be nil, which
// skips the class check.
func NewEnrollStudentHandler(students student.Repository, classes school.ClassRepository) *EnrollStudentHandler {
	return &EnrollStudentHandler{students: students, classes: classes}
}

// Handle enrolls the student.
func (h *EnrollStudentHandler) Handle(ctx context.Context, cmd EnrollStudentCommand) (*student.Student, error) {
	if err := validateStruct("enroll_student", cmd); err != nil {
		return nil, err
	}
	if cmd.ClassID != "" && h.classes != nil {
		if _, err := h.classes.GetByID(ctx, cmd.ClassID); err != nil {
			return nil, fmt.Errorf("enroll_student: %w", err)
		}
	}

	id := cmd.ID
	if id == "" {
		id = uuid.NewString()
	}
	s, err := student.NewStudent(student.NewStudentParams{
		ID:      id,
		Name:    cmd.Name,
		Age:     cmd.Age,
		Grade:   cmd.Grade,
		ClassID: cmd.ClassID,
	})
	if err != nil {
		return nil, err
	}
	if err := h.students.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("enroll_student: save: %w", err)
	}
	return s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DELETE STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// DeleteStudentHandler removes a student and takes them off every roster.
// Discharge history and past attendance keep referencing the ID.
type DeleteStudentHandler struct {
	students student.Repository
	groups   reinforcement.GroupRepository
	logger   *slog.Logger
}

// NewDeleteStudentHandler creates the handler.
func NewDeleteStudentHandler(students student.Repository, groups reinforcement.GroupRepository, l *slog.Logger) *DeleteStudentHandler {
	return &DeleteStudentHandler{students: students, groups: groups, logger: logger.OrDefault(l)}
}

// Handle deletes the student. Roster cleanup failures are logged only.
func (h *DeleteStudentHandler) Handle(ctx context.Context, studentID string) error {
	if studentID == "" {
		return shared.NewDomainError("student", "Delete", shared.ErrInvalidID, "student id is required")
	}
	if err := h.students.Delete(ctx, studentID); err != nil {
		return err
	}

	groups, err := h.groups.List(ctx)
	if err != nil {
		h.logger.Warn("roster cleanup skipped", logger.StudentID(studentID), logger.Err(err))
		return nil
	}
	for _, g := range groups {
		if !g.RemoveMember(studentID) {
			continue
		}
		if err := h.groups.Save(ctx, g); err != nil {
			h.logger.Warn("roster cleanup failed",
				logger.StudentID(studentID), logger.GroupID(g.ID), logger.Err(err))
		}
	}
	return nil
}
