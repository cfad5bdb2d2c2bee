package presenter

import (
	"time"

	"github.com/edutracker/edutracker/internal/application/command"
	"github.com/edutracker/edutracker/internal/application/query"
	"github.com/edutracker/edutracker/internal/domain/school"
	"github.com/edutracker/edutracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT VIEWS
// ══════════════════════════════════════════════════════════════════════════════

// EvaluationView is an evaluation with its labels.
type EvaluationView struct {
	query.EvaluationView
	LevelLabel    string `json:"level_label"`
	BimesterLabel string `json:"bimester_label"`
	KindLabel     string `json:"kind_label"`
}

// StudentView is a student with the standing label.
type StudentView struct {
	*student.Student
	StandingLabel string `json:"standing_label"`
}

// ProgressView is the student progress page.
type ProgressView struct {
	*query.StudentProgressDTO
	StandingLabel string           `json:"standing_label"`
	Evaluations   []EvaluationView `json:"evaluations"`
}

// Student labels a student.
func Student(s *student.Student) StudentView {
	return StudentView{Student: s, StandingLabel: StandingLabel(s.Standing)}
}

// Students labels a student list.
func Students(list []*student.Student) []StudentView {
	out := make([]StudentView, len(list))
	for i, s := range list {
		out[i] = Student(s)
	}
	return out
}

// Progress labels a progress DTO.
func Progress(dto *query.StudentProgressDTO) ProgressView {
	v := ProgressView{
		StudentProgressDTO: dto,
		StandingLabel:      StandingLabel(dto.Standing),
		Evaluations:        make([]EvaluationView, len(dto.Evaluations)),
	}
	for i, e := range dto.Evaluations {
		v.Evaluations[i] = EvaluationView{
			EvaluationView: e,
			LevelLabel:     LevelLabel(e.Level),
			BimesterLabel:  BimesterLabel(e.Bimester),
			KindLabel:      KindLabel(e.Kind),
		}
	}
	return v
}

// StandingView is the result of a standing derivation.
type StandingView struct {
	Level         student.Level    `json:"level"`
	Standing      student.Standing `json:"standing"`
	StandingLabel string           `json:"standing_label"`
}

// Standing labels a derived standing.
func Standing(l student.Level, s student.Standing) StandingView {
	return StandingView{Level: l, Standing: s, StandingLabel: StandingLabel(s)}
}

// EvaluationResultView labels a recorded evaluation.
type EvaluationResultView struct {
	*command.RecordEvaluationResult
	StandingLabel   string `json:"standing_label"`
	StandingChanged bool   `json:"standing_changed"`
}

// EvaluationResult labels a recorded evaluation.
func EvaluationResult(r *command.RecordEvaluationResult) EvaluationResultView {
	return EvaluationResultView{
		RecordEvaluationResult: r,
		StandingLabel:          StandingLabel(r.Standing),
		StandingChanged:        r.StandingChanged(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// INVITE VIEWS
// ══════════════════════════════════════════════════════════════════════════════

// InviteView is an invite without its token hash.
type InviteView struct {
	ID         string              `json:"id"`
	Email      string              `json:"email"`
	Role       school.Role         `json:"role"`
	RoleLabel  string              `json:"role_label"`
	Status     school.InviteStatus `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
	AcceptedAt *time.Time          `json:"accepted_at,omitempty"`
}

// Invite strips the token hash.
func Invite(inv *school.Invite) InviteView {
	return InviteView{
		ID:         inv.ID,
		Email:      string(inv.Email),
		Role:       inv.Role,
		RoleLabel:  RoleLabel(inv.Role),
		Status:     inv.Status,
		CreatedAt:  inv.CreatedAt,
		AcceptedAt: inv.AcceptedAt,
	}
}

// Invites strips the token hash from every invite.
func Invites(list []*school.Invite) []InviteView {
	out := make([]InviteView, len(list))
	for i, inv := range list {
		out[i] = Invite(inv)
	}
	return out
}

// CreatedInviteView carries the one-time plain token.
type CreatedInviteView struct {
	Invite InviteView `json:"invite"`
	Token  string     `json:"token"`
}

// CreatedInvite shapes a fresh invite.
func CreatedInvite(r *command.CreateInviteResult) CreatedInviteView {
	return CreatedInviteView{Invite: Invite(r.Invite), Token: r.Token}
}
