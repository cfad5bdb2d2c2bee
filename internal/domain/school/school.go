// Package school holds classes and staff invites.
package school

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/edutracker/edutracker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLASSROOM
// ══════════════════════════════════════════════════════════════════════════════

// Shift is the period a class meets in.
type Shift string

const (
	ShiftMorning   Shift = "morning"
	ShiftAfternoon Shift = "afternoon"
)

// IsValid checks the shift.
func (s Shift) IsValid() bool {
	return s == ShiftMorning || s == ShiftAfternoon
}

// ClassRoom is a class of students with a responsible teacher.
type ClassRoom struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Grade     string    `json:"grade"`
	Shift     Shift     `json:"shift"`
	TeacherID string    `json:"teacher_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewClassRoom validates a class.
func NewClassRoom(id, name, grade string, shift Shift, teacherID string) (*ClassRoom, error) {
	if strings.TrimSpace(id) == "" {
		return nil, shared.NewDomainError("school", "NewClassRoom", shared.ErrInvalidID, "class id is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewValidationError("school", "NewClassRoom", "name is required")
	}
	if shift == "" {
		shift = ShiftMorning
	}
	if !shift.IsValid() {
		return nil, shared.NewValidationError("school", "NewClassRoom", "unknown shift")
	}
	return &ClassRoom{
		ID:        id,
		Name:      strings.TrimSpace(name),
		Grade:     strings.TrimSpace(grade),
		Shift:     shift,
		TeacherID: teacherID,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// ClassRepository persists classes.
type ClassRepository interface {
	GetByID(ctx context.Context, id string) (*ClassRoom, error)
	List(ctx context.Context) ([]*ClassRoom, error)
	Save(ctx context.Context, c *ClassRoom) error
	Delete(ctx context.Context, id string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// INVITE
// ══════════════════════════════════════════════════════════════════════════════

// Role is a staff role.
type Role string

const (
	RoleTeacher     Role = "teacher"
	RoleCoordinator Role = "coordinator"
	RolePrincipal   Role = "principal"
)

// IsValid checks the role.
func (r Role) IsValid() bool {
	switch r {
	case RoleTeacher, RoleCoordinator, RolePrincipal:
		return true
	default:
		return false
	}
}

// InviteStatus tracks whether an invite was used.
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
)

// Invite lets a staff member join. Only the bcrypt hash of its token is kept.
type Invite struct {
	ID         string       `json:"id"`
	Email      shared.Email `json:"email"`
	Role       Role         `json:"role"`
	Status     InviteStatus `json:"status"`
	TokenHash  string       `json:"token_hash"`
	CreatedAt  time.Time    `json:"created_at"`
	AcceptedAt *time.Time   `json:"accepted_at,omitempty"`
}

// NewInvite creates a pending invite and returns the plain token once.
func NewInvite(id, email string, role Role) (*Invite, string, error) {
	if strings.TrimSpace(id) == "" {
		return nil, "", shared.NewDomainError("school", "NewInvite", shared.ErrInvalidID, "invite id is required")
	}
	addr, err := shared.NewEmail(email)
	if err != nil {
		return nil, "", err
	}
	if !role.IsValid() {
		return nil, "", shared.NewValidationError("school", "NewInvite", "unknown role")
	}

	token, err := newToken()
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	return &Invite{
		ID:        id,
		Email:     addr,
		Role:      role,
		Status:    InvitePending,
		TokenHash: string(hash),
		CreatedAt: time.Now().UTC(),
	}, token, nil
}

// Accept verifies the token and marks the invite accepted.
func (i *Invite) Accept(token string, at time.Time) error {
	if i.Status == InviteAccepted {
		return shared.ErrInviteAccepted
	}
	if err := bcrypt.CompareHashAndPassword([]byte(i.TokenHash), []byte(token)); err != nil {
		return shared.ErrInviteTokenInvalid
	}
	accepted := at.UTC()
	i.Status = InviteAccepted
	i.AcceptedAt = &accepted
	return nil
}

func newToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// InviteRepository persists invites.
type InviteRepository interface {
	GetByID(ctx context.Context, id string) (*Invite, error)
	List(ctx context.Context) ([]*Invite, error)
	Save(ctx context.Context, i *Invite) error
	Delete(ctx context.Context, id string) error
}
