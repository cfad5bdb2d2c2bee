package reinforcement

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutracker/edutracker/internal/domain/shared"
)

func newTestGroup(t *testing.T, members ...string) *Group {
	t.Helper()
	g, err := NewGroup(NewGroupParams{
		ID:        "g1",
		Name:      "Reforço Matemática",
		Subject:   "Matemática",
		MemberIDs: members,
		StartDate: shared.MustParseDate("2024-03-01"),
	})
	require.NoError(t, err)
	return g
}

func TestNewGroup_EmptyRosterRejected(t *testing.T) {
	for _, members := range [][]string{nil, {}, {" ", ""}} {
		g, err := NewGroup(NewGroupParams{ID: "g1", Name: "G", Subject: "Math", MemberIDs: members})
		assert.Nil(t, g)
		assert.ErrorIs(t, err, shared.ErrEmptyRoster)
		assert.True(t, shared.IsValidation(err))
	}
}

func TestNewGroup_DeduplicatesMembers(t *testing.T) {
	g := newTestGroup(t, "s1", "s2", "s1", " s3 ")
	assert.Equal(t, []string{"s1", "s2", "s3"}, g.MemberIDs)
	assert.Equal(t, DefaultSchedule, g.Schedule)
}

func TestNewGroup_EndBeforeStartRejected(t *testing.T) {
	_, err := NewGroup(NewGroupParams{
		ID: "g1", Name: "G", Subject: "Math", MemberIDs: []string{"s1"},
		StartDate:       shared.MustParseDate("2024-05-01"),
		ExpectedEndDate: shared.MustParseDate("2024-04-01"),
	})
	assert.True(t, shared.IsValidation(err))
}

func TestGroup_Apply(t *testing.T) {
	g := newTestGroup(t, "s1", "s2")

	name := "Reforço Leitura"
	members := []string{"s2", "s4"}
	require.NoError(t, g.Apply(Patch{Name: &name, MemberIDs: &members}))
	assert.Equal(t, "Reforço Leitura", g.Name)
	assert.Equal(t, []string{"s2", "s4"}, g.MemberIDs)
	assert.Equal(t, "Matemática", g.Subject)

	empty := []string{}
	err := g.Apply(Patch{MemberIDs: &empty})
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, []string{"s2", "s4"}, g.MemberIDs, "failed patch leaves group unchanged")
}

func TestGroup_RemoveMemberIsIdempotent(t *testing.T) {
	g := newTestGroup(t, "s1", "s2", "s3")

	assert.True(t, g.RemoveMember("s2"))
	assert.Equal(t, []string{"s1", "s3"}, g.MemberIDs)
	assert.False(t, g.RemoveMember("s2"))
	assert.Equal(t, []string{"s1", "s3"}, g.MemberIDs)
}

func TestGroup_CloneDoesNotAlias(t *testing.T) {
	g := newTestGroup(t, "s1", "s2")
	c := g.Clone()
	c.RemoveMember("s1")
	assert.Equal(t, []string{"s1", "s2"}, g.MemberIDs)
}

func TestNewAttendanceRecord(t *testing.T) {
	g := newTestGroup(t, "s1", "s2")
	date := shared.MustParseDate("2024-03-04")

	rec, err := NewAttendanceRecord(g, date, []string{"s1", "s1"})
	require.NoError(t, err)
	assert.Equal(t, "att-g1-2024-03-04", rec.ID)
	assert.Equal(t, []string{"s1"}, rec.PresentIDs)
	assert.True(t, rec.WasPresent("s1"))
	assert.False(t, rec.WasPresent("s2"))
}

func TestNewAttendanceRecord_StaleMemberRejected(t *testing.T) {
	g := newTestGroup(t, "s1", "s2")
	g.RemoveMember("s2")

	_, err := NewAttendanceRecord(g, shared.MustParseDate("2024-03-05"), []string{"s1", "s2"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrStaleAttendees))
	assert.True(t, shared.IsValidation(err))
}

func TestNewAttendanceRecord_EmptyPresenceAllowed(t *testing.T) {
	g := newTestGroup(t, "s1")
	rec, err := NewAttendanceRecord(g, shared.MustParseDate("2024-03-05"), nil)
	require.NoError(t, err)
	assert.Empty(t, rec.PresentIDs)
}

func TestAttendanceRate(t *testing.T) {
	g := newTestGroup(t, "s1", "s2")
	mk := func(date string, present ...string) *AttendanceRecord {
		r, err := NewAttendanceRecord(g, shared.MustParseDate(date), present)
		require.NoError(t, err)
		return r
	}

	assert.Equal(t, shared.Percentage(100), AttendanceRate(nil, "s1"), "no sessions, no penalty")

	records := []*AttendanceRecord{
		mk("2024-03-01", "s1"),
		mk("2024-03-02", "s1", "s2"),
		mk("2024-03-03"),
	}
	assert.Equal(t, shared.Percentage(67), AttendanceRate(records, "s1"))
	assert.Equal(t, shared.Percentage(33), AttendanceRate(records, "s2"))
	assert.Equal(t, shared.Percentage(0), AttendanceRate(records, "s9"))

	assert.True(t, IsAtRisk(AttendanceRate(records, "s2")))
	assert.False(t, IsAtRisk(shared.Percentage(50)))
}

func TestAttendanceRate_MatchesFormula(t *testing.T) {
	g := newTestGroup(t, "s1")
	var records []*AttendanceRecord
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	present := 0
	for i := 0; i < 7; i++ {
		var ids []string
		if i%3 != 0 {
			ids = []string{"s1"}
			present++
		}
		r, err := NewAttendanceRecord(g, shared.NewDate(start.AddDate(0, 0, i)), ids)
		require.NoError(t, err)
		records = append(records, r)

		want := shared.NewPercentage(present, len(records), 100)
		assert.Equal(t, want, AttendanceRate(records, "s1"))
		assert.GreaterOrEqual(t, want.Int(), 0)
		assert.LessOrEqual(t, want.Int(), 100)
	}
}

func TestNewHistoryEntry_SnapshotsGroup(t *testing.T) {
	g := newTestGroup(t, "s1")
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	e := NewHistoryEntry("h1", "s1", "Ana", g, "achieved", at)
	assert.Equal(t, "Reforço Matemática", e.GroupName)
	assert.Equal(t, "Matemática", e.Subject)
	assert.Equal(t, g.StartDate, e.StartDate)
	assert.Equal(t, at, e.CompletedAt)
}
