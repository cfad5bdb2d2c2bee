// Package presenter maps domain values to the Brazilian Portuguese labels
// shown to school staff, and shapes API views that must not leak internals.
package presenter

import (
	"github.com/edutracker/edutracker/internal/domain/school"
	"github.com/edutracker/edutracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// LABELS
// ══════════════════════════════════════════════════════════════════════════════

var standingLabels = map[student.Standing]string{
	student.StandingAdequate:           "Adequado",
	student.StandingDeveloping:         "Em desenvolvimento",
	student.StandingNeedsReinforcement: "Precisa de reforço",
}

var levelLabels = map[student.Level]string{
	student.LevelNotAchieved: "Não atingiu",
	student.LevelDeveloping:  "Em desenvolvimento",
	student.LevelAchieved:    "Atingiu",
	student.LevelExceeded:    "Superou",
}

var bimesterLabels = map[student.Bimester]string{
	student.B1: "1º Bimestre",
	student.B2: "2º Bimestre",
	student.B3: "3º Bimestre",
	student.B4: "4º Bimestre",
}

var kindLabels = map[student.AssessmentKind]string{
	student.KindTest:          "Prova",
	student.KindProject:       "Trabalho",
	student.KindParticipation: "Participação",
	student.KindClasswork:     "Exercício em Sala",
	student.KindOther:         "Outros",
}

var roleLabels = map[school.Role]string{
	school.RoleTeacher:     "Professor",
	school.RoleCoordinator: "Coordenador Pedagógico",
	school.RolePrincipal:   "Gestor Escolar",
}

var shiftLabels = map[school.Shift]string{
	school.ShiftMorning:   "Manhã",
	school.ShiftAfternoon: "Tarde",
}

// Unknown values are shown raw so a bad record is still visible.
func label[K ~string](m map[K]string, k K) string {
	if l, ok := m[k]; ok {
		return l
	}
	return string(k)
}

// StandingLabel returns the display label of a standing.
func StandingLabel(s student.Standing) string { return label(standingLabels, s) }

// LevelLabel returns the display label of a level.
func LevelLabel(l student.Level) string { return label(levelLabels, l) }

// BimesterLabel returns the display label of a bimester.
func BimesterLabel(b student.Bimester) string { return label(bimesterLabels, b) }

// KindLabel returns the display label of an assessment kind.
func KindLabel(k student.AssessmentKind) string { return label(kindLabels, k) }

// RoleLabel returns the display label of a staff role.
func RoleLabel(r school.Role) string { return label(roleLabels, r) }

// ShiftLabel returns the display label of a class shift.
func ShiftLabel(s school.Shift) string { return label(shiftLabels, s) }

// Option is one selectable enum value.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Options lists the selectable values of every enum, in display order.
func Options() map[string][]Option {
	out := map[string][]Option{}
	for _, s := range student.AllStandings() {
		out["standings"] = append(out["standings"], Option{string(s), StandingLabel(s)})
	}
	for _, l := range student.AllLevels() {
		out["levels"] = append(out["levels"], Option{string(l), LevelLabel(l)})
	}
	for _, b := range []student.Bimester{student.B1, student.B2, student.B3, student.B4} {
		out["bimesters"] = append(out["bimesters"], Option{string(b), BimesterLabel(b)})
	}
	for _, k := range []student.AssessmentKind{
		student.KindTest, student.KindProject, student.KindParticipation, student.KindClasswork, student.KindOther,
	} {
		out["kinds"] = append(out["kinds"], Option{string(k), KindLabel(k)})
	}
	for _, r := range []school.Role{school.RoleTeacher, school.RoleCoordinator, school.RolePrincipal} {
		out["roles"] = append(out["roles"], Option{string(r), RoleLabel(r)})
	}
	for _, s := range []school.Shift{school.ShiftMorning, school.ShiftAfternoon} {
		out["shifts"] = append(out["shifts"], Option{string(s), ShiftLabel(s)})
	}
	return out
}
