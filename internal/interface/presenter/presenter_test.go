package presenter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutracker/edutracker/internal/application/query"
	"github.com/edutracker/edutracker/internal/domain/school"
	"github.com/edutracker/edutracker/internal/domain/student"
)

func TestLabels(t *testing.T) {
	assert.Equal(t, "Precisa de reforço", StandingLabel(student.StandingNeedsReinforcement))
	assert.Equal(t, "Superou", LevelLabel(student.LevelExceeded))
	assert.Equal(t, "3º Bimestre", BimesterLabel(student.B3))
	assert.Equal(t, "Exercício em Sala", KindLabel(student.KindClasswork))
	assert.Equal(t, "Gestor Escolar", RoleLabel(school.RolePrincipal))
	assert.Equal(t, "Tarde", ShiftLabel(school.ShiftAfternoon))

	assert.Equal(t, "mystery", StandingLabel(student.Standing("mystery")))
}

func TestOptions_CoverEveryValue(t *testing.T) {
	opts := Options()
	assert.Len(t, opts["standings"], len(student.AllStandings()))
	assert.Len(t, opts["levels"], len(student.AllLevels()))
	assert.Len(t, opts["bimesters"], 4)
	assert.Len(t, opts["kinds"], 5)
	assert.Equal(t, Option{Value: "not_achieved", Label: "Não atingiu"}, opts["levels"][0])
}

func TestInviteView_OmitsTokenHash(t *testing.T) {
	inv := &school.Invite{
		ID:        "inv-1",
		Email:     "prof@escola.br",
		Role:      school.RoleTeacher,
		Status:    school.InvitePending,
		TokenHash: "$2a$10$secret",
		CreatedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}

	raw, err := json.Marshal(Invites([]*school.Invite{inv}))
	require.NoError(t, err)

	assert.NotContains(t, string(raw), "token_hash")
	assert.NotContains(t, string(raw), "secret")
	assert.Contains(t, string(raw), `"role_label":"Professor"`)
}

func TestProgressView_LabelsEvaluations(t *testing.T) {
	dto := &query.StudentProgressDTO{
		ID:       "s1",
		Name:     "Ana",
		Standing: student.StandingDeveloping,
		Evaluations: []query.EvaluationView{{
			Evaluation: student.Evaluation{
				ID:       "e1",
				Level:    student.LevelDeveloping,
				Bimester: student.B1,
				Kind:     student.KindTest,
			},
			CompetencyCode: "EF05MA01",
		}},
	}

	raw, err := json.Marshal(Progress(dto))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "Em desenvolvimento", decoded["standing_label"])

	evals := decoded["evaluations"].([]any)
	require.Len(t, evals, 1)
	first := evals[0].(map[string]any)
	assert.Equal(t, "1º Bimestre", first["bimester_label"])
	assert.Equal(t, "Prova", first["kind_label"])
	assert.Equal(t, "EF05MA01", first["competency_code"])
}
