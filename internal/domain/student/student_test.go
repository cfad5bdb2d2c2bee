package student

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutracker/edutracker/internal/domain/shared"
)

func ptr(f float64) *float64 { return &f }

func newTestStudent(t *testing.T) *Student {
	t.Helper()
	s, err := NewStudent(NewStudentParams{ID: "s1", Name: "Ana Souza", Age: 10, Grade: "5º ano", ClassID: "c1"})
	require.NoError(t, err)
	return s
}

func TestDeriveStanding_Mapping(t *testing.T) {
	tests := []struct {
		level Level
		want  Standing
	}{
		{LevelNotAchieved, StandingNeedsReinforcement},
		{LevelDeveloping, StandingDeveloping},
		{LevelAchieved, StandingAdequate},
		{LevelExceeded, StandingAdequate},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStanding(tt.level))
			// pure: same input, same output
			assert.Equal(t, DeriveStanding(tt.level), DeriveStanding(tt.level))
		})
	}
}

func TestDischargeStanding_NotAchievedMapsToDeveloping(t *testing.T) {
	assert.Equal(t, StandingAdequate, DischargeStanding(LevelAchieved))
	assert.Equal(t, StandingAdequate, DischargeStanding(LevelExceeded))
	assert.Equal(t, StandingDeveloping, DischargeStanding(LevelDeveloping))
	assert.Equal(t, StandingDeveloping, DischargeStanding(LevelNotAchieved))
}

func TestNewStudent_DefaultsToAdequate(t *testing.T) {
	s := newTestStudent(t)
	assert.Equal(t, StandingAdequate, s.Standing)
	assert.Empty(t, s.Evaluations)

	_, err := NewStudent(NewStudentParams{ID: "", Name: "x"})
	assert.True(t, shared.IsValidation(err))

	_, err = NewStudent(NewStudentParams{ID: "s2", Name: "  "})
	assert.True(t, shared.IsValidation(err))
}

func TestApplyEvaluation_SameSlotOverwrites(t *testing.T) {
	s := newTestStudent(t)

	first, err := NewEvaluation(NewEvaluationParams{
		StudentID: s.ID, CompetencyID: "EF05MA03", Level: LevelNotAchieved, Bimester: B1,
	})
	require.NoError(t, err)
	prev, overwritten := s.ApplyEvaluation(first)
	assert.Equal(t, StandingAdequate, prev)
	assert.False(t, overwritten)
	assert.Equal(t, StandingNeedsReinforcement, s.Standing)

	second, err := NewEvaluation(NewEvaluationParams{
		StudentID: s.ID, CompetencyID: "EF05MA03", Level: LevelAchieved, Bimester: B1, Feedback: "melhorou",
	})
	require.NoError(t, err)
	_, overwritten = s.ApplyEvaluation(second)
	assert.True(t, overwritten)

	require.Len(t, s.Evaluations, 1)
	assert.Equal(t, second, s.Evaluations[0])
	assert.Equal(t, first.ID, s.Evaluations[0].ID)
	assert.Equal(t, StandingAdequate, s.Standing)
}

func TestApplyEvaluation_LastWriteWinsAcrossCompetencies(t *testing.T) {
	s := newTestStudent(t)

	for _, e := range []NewEvaluationParams{
		{StudentID: s.ID, CompetencyID: "EF05MA03", Level: LevelExceeded, Bimester: B2},
		{StudentID: s.ID, CompetencyID: "EF05LP01", Level: LevelDeveloping, Bimester: B2},
	} {
		eval, err := NewEvaluation(e)
		require.NoError(t, err)
		s.ApplyEvaluation(eval)
	}

	assert.Len(t, s.Evaluations, 2)
	assert.Equal(t, StandingDeveloping, s.Standing)
}

func TestNewEvaluation_Validation(t *testing.T) {
	base := NewEvaluationParams{StudentID: "s1", CompetencyID: "EF05MA03", Level: LevelAchieved, Bimester: B1}

	tests := []struct {
		name   string
		mutate func(p *NewEvaluationParams)
	}{
		{"missing student", func(p *NewEvaluationParams) { p.StudentID = "" }},
		{"missing competency", func(p *NewEvaluationParams) { p.CompetencyID = " " }},
		{"unknown level", func(p *NewEvaluationParams) { p.Level = "great" }},
		{"unknown bimester", func(p *NewEvaluationParams) { p.Bimester = "B5" }},
		{"unknown kind", func(p *NewEvaluationParams) { p.Kind = "quiz" }},
		{"score above max", func(p *NewEvaluationParams) { p.Score, p.MaxScore = ptr(11), ptr(10) }},
		{"negative score", func(p *NewEvaluationParams) { p.Score = ptr(-1) }},
		{"zero max", func(p *NewEvaluationParams) { p.MaxScore = ptr(0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			_, err := NewEvaluation(p)
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err), "got %v", err)
		})
	}
}

func TestNewEvaluation_ScoreAtMaxAccepted(t *testing.T) {
	e, err := NewEvaluation(NewEvaluationParams{
		StudentID: "s1", CompetencyID: "c", Level: LevelExceeded, Bimester: B4,
		Score: ptr(10), MaxScore: ptr(10), Kind: KindTest,
	})
	require.NoError(t, err)
	assert.Equal(t, 10.0, *e.Score)
	assert.ErrorIs(t, validateScore(ptr(10.5), ptr(10)), shared.ErrScoreAboveMax)
}

func TestNewEvaluation_Defaults(t *testing.T) {
	e, err := NewEvaluation(NewEvaluationParams{
		StudentID: "s1", CompetencyID: "c", Level: LevelDeveloping,
		Date: shared.MustParseDate("2024-08-15"),
	})
	require.NoError(t, err)
	assert.Equal(t, B3, e.Bimester)
	assert.Equal(t, KindOther, e.Kind)
	assert.Equal(t, EvaluationID("s1", "c", B3), e.ID)
}

func TestBimesterFor(t *testing.T) {
	tests := map[time.Month]Bimester{
		time.January: B1, time.April: B1,
		time.May: B2, time.July: B2,
		time.August: B3, time.September: B3,
		time.October: B4, time.December: B4,
	}
	for month, want := range tests {
		assert.Equal(t, want, BimesterFor(time.Date(2024, month, 10, 0, 0, 0, 0, time.UTC)), month.String())
	}
}

func TestApplyDischarge(t *testing.T) {
	s := newTestStudent(t)
	s.Standing = StandingNeedsReinforcement

	e, err := NewEvaluation(NewEvaluationParams{
		StudentID: s.ID, CompetencyID: DischargeCompetencyID, Level: LevelNotAchieved, Bimester: B2,
	})
	require.NoError(t, err)
	assert.True(t, e.IsDischarge())

	prev := s.ApplyDischarge(e)
	assert.Equal(t, StandingNeedsReinforcement, prev)
	assert.Equal(t, StandingDeveloping, s.Standing)
}

func TestDischargeCompetencyFor(t *testing.T) {
	assert.Equal(t, "discharge:g1", DischargeCompetencyFor("g1"))
	assert.Equal(t, DischargeCompetencyID, DischargeCompetencyFor(""))

	assert.True(t, Evaluation{CompetencyID: DischargeCompetencyFor("g1")}.IsDischarge())
	assert.False(t, Evaluation{CompetencyID: "discharged-topic"}.IsDischarge())

	a := Evaluation{CompetencyID: DischargeCompetencyFor("g1"), Bimester: B2}
	b := Evaluation{CompetencyID: DischargeCompetencyFor("g2"), Bimester: B2}
	assert.False(t, a.sameSlot(b))
}

func TestListFilter(t *testing.T) {
	s := newTestStudent(t)
	assert.True(t, ListFilter{}.Matches(s))
	assert.True(t, ListFilter{ClassID: "c1", Standing: StandingAdequate}.Matches(s))
	assert.False(t, ListFilter{ClassID: "c2"}.Matches(s))
	assert.False(t, ListFilter{IDs: []string{"other"}}.Matches(s))
	assert.True(t, ListFilter{IDs: []string{"other", "s1"}}.Matches(s))
}

func TestClone_IsDeep(t *testing.T) {
	s := newTestStudent(t)
	e, err := NewEvaluation(NewEvaluationParams{StudentID: s.ID, CompetencyID: "c", Level: LevelAchieved, Bimester: B1})
	require.NoError(t, err)
	s.ApplyEvaluation(e)

	c := s.Clone()
	c.Evaluations[0].Level = LevelNotAchieved
	assert.Equal(t, LevelAchieved, s.Evaluations[0].Level)
}
