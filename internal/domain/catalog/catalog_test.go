package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutracker/edutracker/internal/domain/shared"
)

func TestParseCode(t *testing.T) {
	tests := []struct {
		raw      string
		from, to int
		comp     string
	}{
		{"EF05MA03", 5, 5, "MA"},
		{"ef01lp01", 1, 1, "LP"},
		{"EF12LP04", 1, 2, "LP"},
		{"EF15AR01", 1, 5, "AR"},
		{"EF35LP10", 3, 5, "LP"},
		{"EF67EF01", 6, 7, "EF"},
		{"EF69LP44", 6, 9, "LP"},
		{"EF89LP01", 8, 9, "LP"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			code, err := ParseCode(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, StageFundamental, code.Stage)
			assert.Equal(t, tt.from, code.FromYear)
			assert.Equal(t, tt.to, code.ToYear)
			assert.Equal(t, tt.comp, code.Component)
		})
	}
}

func TestParseCode_EnsinoMedio(t *testing.T) {
	code, err := ParseCode("EM13MAT101")
	require.NoError(t, err)
	assert.Equal(t, StageMedio, code.Stage)
	assert.Equal(t, "Matemática", code.ComponentName())
}

func TestParseCode_Invalid(t *testing.T) {
	for _, raw := range []string{"", "EF5MA03", "EF00MA01", "EF51MA01", "EF05XX01", "EF05MA00", "EM13ABC101", "XX05MA01"} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseCode(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrInvalidBNCCCode)
			assert.True(t, shared.IsValidation(err))
		})
	}
}

func TestGradeYear(t *testing.T) {
	y, ok := GradeYear("5º ano")
	assert.True(t, ok)
	assert.Equal(t, 5, y)

	_, ok = GradeYear("Infantil")
	assert.False(t, ok)
}

func TestNewCompetency_GradeMustFallInSpan(t *testing.T) {
	c, err := NewCompetency(NewCompetencyParams{ID: "k1", Code: "ef35lp10", Name: "Leitura", Grade: "4º ano"})
	require.NoError(t, err)
	assert.Equal(t, "EF35LP10", c.Code)
	assert.Equal(t, "Língua Portuguesa", c.Subject)

	_, err = NewCompetency(NewCompetencyParams{ID: "k2", Code: "EF35LP10", Name: "Leitura", Grade: "7º ano"})
	assert.ErrorIs(t, err, shared.ErrInvalidBNCCCode)

	_, err = NewCompetency(NewCompetencyParams{ID: "k3", Code: "EF05MA03", Name: ""})
	assert.True(t, shared.IsValidation(err))
}
