package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/edutracker/edutracker/internal/domain/catalog"
	"github.com/edutracker/edutracker/internal/domain/school"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPETENCIES
// ══════════════════════════════════════════════════════════════════════════════

// SaveCompetencyCommand creates or replaces a catalog entry.
type SaveCompetencyCommand struct {
	// ID is generated when empty.
	ID          string `json:"id"`
	Code        string `json:"code" validate:"required"`
	Name        string `json:"name" validate:"required,max=300"`
	Subject     string `json:"subject" validate:"max=100"`
	Description string `json:"description" validate:"max=2000"`
	Grade       string `json:"grade" validate:"max=50"`
}

// SaveCompetencyHandler handles SaveCompetencyCommand.
type SaveCompetencyHandler struct {
	competencies catalog.Repository
}

// NewSaveCompetencyHandler creates the handler.
func NewSaveCompetencyHandler(competencies catalog.Repository) *SaveCompetencyHandler {
	return &SaveCompetencyHandler{competencies: competencies}
}

// Handle validates the BNCC code and saves the entry.
func (h *SaveCompetencyHandler) Handle(ctx context.Context, cmd SaveCompetencyCommand) (*catalog.Competency, error) {
	if err := validateStruct("save_competency", cmd); err != nil {
		return nil, err
	}
	id := cmd.ID
	if id == "" {
		id = uuid.NewString()
	}
	c, err := catalog.NewCompetency(catalog.NewCompetencyParams{
		ID:          id,
		Code:        cmd.Code,
		Name:        cmd.Name,
		Subject:     cmd.Subject,
		Description: cmd.Description,
		Grade:       cmd.Grade,
	})
	if err != nil {
		return nil, err
	}
	if err := h.competencies.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("save_competency: %w", err)
	}
	return c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CLASSES
// ══════════════════════════════════════════════════════════════════════════════

// SaveClassCommand creates or replaces a class.
type SaveClassCommand struct {
	ID        string `json:"id"`
	Name      string `json:"name" validate:"required,max=100"`
	Grade     string `json:"grade" validate:"max=50"`
	Shift     string `json:"shift" validate:"omitempty,oneof=morning afternoon"`
	TeacherID string `json:"teacher_id"`
}

// SaveClassHandler handles SaveClassCommand.
type SaveClassHandler struct {
	classes school.ClassRepository
}

// NewSaveClassHandler creates the handler.
func NewSaveClassHandler(classes school.ClassRepository) *SaveClassHandler {
	return &SaveClassHandler{classes: classes}
}

// Handle saves the class.
func (h *SaveClassHandler) Handle(ctx context.Context, cmd SaveClassCommand) (*school.ClassRoom, error) {
	if err := validateStruct("save_class", cmd); err != nil {
		return nil, err
	}
	id := cmd.ID
	if id == "" {
		id = uuid.NewString()
	}
	c, err := school.NewClassRoom(id, cmd.Name, cmd.Grade, school.Shift(cmd.Shift), cmd.TeacherID)
	if err != nil {
		return nil, err
	}
	if err := h.classes.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("save_class: %w", err)
	}
	return c, nil
}
