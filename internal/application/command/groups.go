package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/edutracker/edutracker/internal/domain/reinforcement"
	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/internal/domain/student"
	"github.com/edutracker/edutracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE GROUP
// ══════════════════════════════════════════════════════════════════════════════

// CreateGroupCommand creates a reinforcement group.
type CreateGroupCommand struct {
	Name            string   `json:"name" validate:"required,max=200"`
	Subject         string   `json:"subject" validate:"required,max=100"`
	CompetencyIDs   []string `json:"competency_ids"`
	MemberIDs       []string `json:"member_ids" validate:"required,min=1"`
	Schedule        string   `json:"schedule" validate:"max=200"`
	StartDate       string   `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	ExpectedEndDate string   `json:"expected_end_date" validate:"omitempty,datetime=2006-01-02"`
}

// CreateGroupHandler handles CreateGroupCommand.
type CreateGroupHandler struct {
	groups    reinforcement.GroupRepository
	students  student.Repository
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewCreateGroupHandler creates the handler. students may be nil, which
// skips the member existence check.
func NewCreateGroupHandler(groups reinforcement.GroupRepository, students student.Repository, publisher shared.EventPublisher, l *slog.Logger) *CreateGroupHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &CreateGroupHandler{groups: groups, students: students, publisher: publisher, logger: logger.OrDefault(l)}
}

// Handle creates the group with a generated ID.
func (h *CreateGroupHandler) Handle(ctx context.Context, cmd CreateGroupCommand) (*reinforcement.Group, error) {
	const op = "create_group"
	if err := validateStruct(op, cmd); err != nil {
		return nil, err
	}
	start, err := optionalDate(cmd.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := optionalDate(cmd.ExpectedEndDate)
	if err != nil {
		return nil, err
	}

	g, err := reinforcement.NewGroup(reinforcement.NewGroupParams{
		ID:              uuid.NewString(),
		Name:            cmd.Name,
		Subject:         cmd.Subject,
		CompetencyIDs:   cmd.CompetencyIDs,
		MemberIDs:       cmd.MemberIDs,
		Schedule:        cmd.Schedule,
		StartDate:       start,
		ExpectedEndDate: end,
	})
	if err != nil {
		return nil, err
	}
	if err := checkMembers(ctx, h.students, op, g.MemberIDs); err != nil {
		return nil, err
	}

	if err := h.groups.Save(ctx, g); err != nil {
		return nil, fmt.Errorf("%s: save: %w", op, err)
	}
	publishAll(h.publisher, h.logger,
		shared.NewGroupChangedEvent(shared.EventGroupCreated, g.ID, g.Name, len(g.MemberIDs)))
	return g, nil
}

// checkMembers rejects rosters naming unknown students.
func checkMembers(ctx context.Context, students student.Repository, op string, ids []string) error {
	if students == nil {
		return nil
	}
	found, err := students.List(ctx, student.ListFilter{IDs: ids})
	if err != nil {
		return err
	}
	if len(found) == len(ids) {
		return nil
	}
	known := make(map[string]bool, len(found))
	for _, s := range found {
		known[s.ID] = true
	}
	for _, id := range ids {
		if !known[id] {
			return shared.WrapError("group", op, shared.ErrValidation,
				fmt.Sprintf("student %s does not exist", id), shared.ErrStaleReference)
		}
	}
	return nil
}

func optionalDate(s string) (shared.Date, error) {
	if s == "" {
		return shared.Date{}, nil
	}
	return shared.ParseDate(s)
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE GROUP
// ══════════════════════════════════════════════════════════════════════════════

// UpdateGroupCommand is a partial edit. Nil fields are left unchanged.
type UpdateGroupCommand struct {
	GroupID         string    `json:"-" validate:"required"`
	Name            *string   `json:"name" validate:"omitempty,max=200"`
	Subject         *string   `json:"subject" validate:"omitempty,max=100"`
	CompetencyIDs   *[]string `json:"competency_ids"`
	MemberIDs       *[]string `json:"member_ids"`
	Schedule        *string   `json:"schedule" validate:"omitempty,max=200"`
	StartDate       *string   `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	ExpectedEndDate *string   `json:"expected_end_date" validate:"omitempty,datetime=2006-01-02"`
}

func (c UpdateGroupCommand) patch() (reinforcement.Patch, error) {
	p := reinforcement.Patch{
		Name:          c.Name,
		Subject:       c.Subject,
		CompetencyIDs: c.CompetencyIDs,
		MemberIDs:     c.MemberIDs,
		Schedule:      c.Schedule,
	}
	if c.StartDate != nil {
		d, err := optionalDate(*c.StartDate)
		if err != nil {
			return p, err
		}
		p.StartDate = &d
	}
	if c.ExpectedEndDate != nil {
		d, err := optionalDate(*c.ExpectedEndDate)
		if err != nil {
			return p, err
		}
		p.ExpectedEndDate = &d
	}
	return p, nil
}

// UpdateGroupHandler handles UpdateGroupCommand.
type UpdateGroupHandler struct {
	groups    reinforcement.GroupRepository
	students  student.Repository
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewUpdateGroupHandler creates the handler.
func NewUpdateGroupHandler(groups reinforcement.GroupRepository, students student.Repository, publisher shared.EventPublisher, l *slog.Logger) *UpdateGroupHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &UpdateGroupHandler{groups: groups, students: students, publisher: publisher, logger: logger.OrDefault(l)}
}

// Handle applies the edit. An edit that empties the roster is rejected.
func (h *UpdateGroupHandler) Handle(ctx context.Context, cmd UpdateGroupCommand) (*reinforcement.Group, error) {
	const op = "update_group"
	if err := validateStruct(op, cmd); err != nil {
		return nil, err
	}
	p, err := cmd.patch()
	if err != nil {
		return nil, err
	}

	g, err := h.groups.GetByID(ctx, cmd.GroupID)
	if err != nil {
		return nil, err
	}
	if err := g.Apply(p); err != nil {
		return nil, err
	}
	if p.MemberIDs != nil {
		if err := checkMembers(ctx, h.students, op, g.MemberIDs); err != nil {
			return nil, err
		}
	}

	if err := h.groups.Save(ctx, g); err != nil {
		return nil, fmt.Errorf("%s: save: %w", op, err)
	}
	publishAll(h.publisher, h.logger,
		shared.NewGroupChangedEvent(shared.EventGroupUpdated, g.ID, g.Name, len(g.MemberIDs)))
	return g, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DELETE GROUP
// ══════════════════════════════════════════════════════════════════════════════

// DeleteGroupResult reports what a group deletion removed.
type DeleteGroupResult struct {
	GroupID           string `json:"group_id"`
	AttendanceRemoved int    `json:"attendance_removed"`
}

// DeleteGroupHandler deletes a group and its attendance. Discharge history
// is kept.
type DeleteGroupHandler struct {
	groups     reinforcement.GroupRepository
	attendance reinforcement.AttendanceRepository
	publisher  shared.EventPublisher
	logger     *slog.Logger
}

// NewDeleteGroupHandler creates the handler.
func NewDeleteGroupHandler(groups reinforcement.GroupRepository, attendance reinforcement.AttendanceRepository, publisher shared.EventPublisher, l *slog.Logger) *DeleteGroupHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &DeleteGroupHandler{groups: groups, attendance: attendance, publisher: publisher, logger: logger.OrDefault(l)}
}

// Handle deletes the group, then its attendance records.
func (h *DeleteGroupHandler) Handle(ctx context.Context, groupID string) (*DeleteGroupResult, error) {
	const op = "delete_group"
	g, err := h.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := h.groups.Delete(ctx, groupID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	removed, err := h.attendance.DeleteByGroup(ctx, groupID)
	if err != nil {
		return nil, shared.WrapError("group", op, shared.ErrPartialFailure,
			"group deleted but attendance cleanup failed", err)
	}

	h.logger.Info("group deleted", logger.GroupID(groupID), slog.Int("attendance_removed", removed))
	publishAll(h.publisher, h.logger,
		shared.NewGroupChangedEvent(shared.EventGroupDeleted, g.ID, g.Name, len(g.MemberIDs)))
	return &DeleteGroupResult{GroupID: groupID, AttendanceRemoved: removed}, nil
}
