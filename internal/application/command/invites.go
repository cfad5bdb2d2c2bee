package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edutracker/edutracker/internal/domain/school"
)

// CreateInviteCommand invites a staff member.
type CreateInviteCommand struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=teacher coordinator principal"`
}

// CreateInviteResult carries the plain token. It is not stored and cannot be
// shown again.
type CreateInviteResult struct {
	Invite *school.Invite `json:"invite"`
	Token  string         `json:"token"`
}

// AcceptInviteCommand redeems an invite.
type AcceptInviteCommand struct {
	InviteID string `json:"-" validate:"required"`
	Token    string `json:"token" validate:"required"`
}

// InviteHandler creates, accepts and deletes invites.
type InviteHandler struct {
	invites school.InviteRepository
	now     func() time.Time
}

// NewInviteHandler creates the handler.
func NewInviteHandler(invites school.InviteRepository) *InviteHandler {
	return &InviteHandler{invites: invites, now: time.Now}
}

// Create stores a pending invite and returns its one-time token.
func (h *InviteHandler) Create(ctx context.Context, cmd CreateInviteCommand) (*CreateInviteResult, error) {
	if err := validateStruct("create_invite", cmd); err != nil {
		return nil, err
	}
	inv, token, err := school.NewInvite(uuid.NewString(), cmd.Email, school.Role(cmd.Role))
	if err != nil {
		return nil, err
	}
	if err := h.invites.Save(ctx, inv); err != nil {
		return nil, fmt.Errorf("create_invite: %w", err)
	}
	return &CreateInviteResult{Invite: inv, Token: token}, nil
}

// Accept verifies the token and marks the invite accepted.
func (h *InviteHandler) Accept(ctx context.Context, cmd AcceptInviteCommand) (*school.Invite, error) {
	if err := validateStruct("accept_invite", cmd); err != nil {
		return nil, err
	}
	inv, err := h.invites.GetByID(ctx, cmd.InviteID)
	if err != nil {
		return nil, err
	}
	if err := inv.Accept(cmd.Token, h.now()); err != nil {
		return nil, err
	}
	if err := h.invites.Save(ctx, inv); err != nil {
		return nil, fmt.Errorf("accept_invite: %w", err)
	}
	return inv, nil
}

// Delete removes an invite.
func (h *InviteHandler) Delete(ctx context.Context, id string) error {
	return h.invites.Delete(ctx, id)
}
