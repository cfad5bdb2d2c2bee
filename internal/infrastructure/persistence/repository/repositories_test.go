package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutracker/edutracker/internal/domain/reinforcement"
	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/internal/domain/student"
	"github.com/edutracker/edutracker/internal/infrastructure/persistence/memory"
)

func TestStudentRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewStudentRepository(memory.NewStore())

	_, err := repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
	assert.True(t, shared.IsNotFound(err))

	for _, p := range []student.NewStudentParams{
		{ID: "s1", Name: "Carla", ClassID: "c1"},
		{ID: "s2", Name: "ana", ClassID: "c1"},
		{ID: "s3", Name: "Bruno", ClassID: "c2"},
	} {
		s, err := student.NewStudent(p)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, s))
	}

	got, err := repo.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Carla", got.Name)
	assert.Equal(t, student.StandingAdequate, got.Standing)

	list, err := repo.List(ctx, student.ListFilter{ClassID: "c1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ana", list[0].Name)

	require.NoError(t, repo.Delete(ctx, "s1"))
	assert.ErrorIs(t, repo.Delete(ctx, "s1"), shared.ErrStudentNotFound)
}

func TestStudentRepository_ListCollatesPortugueseNames(t *testing.T) {
	ctx := context.Background()
	repo := NewStudentRepository(memory.NewStore())
	for i, name := range []string{"Zeca", "Érica", "bruno", "Ágata", "Eduardo"} {
		s, err := student.NewStudent(student.NewStudentParams{ID: string(rune('a' + i)), Name: name})
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, s))
	}

	list, err := repo.List(ctx, student.ListFilter{})
	require.NoError(t, err)
	names := make([]string, len(list))
	for i, s := range list {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"Ágata", "bruno", "Eduardo", "Érica", "Zeca"}, names)
}

func TestAttendanceRepository_UpsertAndCascade(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	repo := NewAttendanceRepository(store)

	g, err := reinforcement.NewGroup(reinforcement.NewGroupParams{ID: "g1", Name: "G", Subject: "LP", MemberIDs: []string{"s1"}})
	require.NoError(t, err)
	other, err := reinforcement.NewGroup(reinforcement.NewGroupParams{ID: "g2", Name: "H", Subject: "LP", MemberIDs: []string{"s1"}})
	require.NoError(t, err)

	save := func(g *reinforcement.Group, date string, present ...string) bool {
		rec, err := reinforcement.NewAttendanceRecord(g, shared.MustParseDate(date), present)
		require.NoError(t, err)
		replaced, err := repo.Save(ctx, rec)
		require.NoError(t, err)
		return replaced
	}

	assert.False(t, save(g, "2024-03-02", "s1"))
	assert.False(t, save(g, "2024-03-01"))
	assert.True(t, save(g, "2024-03-02"), "same date replaces")
	save(other, "2024-03-01", "s1")

	records, err := repo.ListByGroup(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2024-03-01", records[0].Date.String())
	assert.Empty(t, records[1].PresentIDs)

	n, err := repo.DeleteByGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records, err = repo.ListByGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = repo.ListByGroup(ctx, "g2")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestHistoryRepository_AppendOnly(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository(memory.NewStore())

	g, err := reinforcement.NewGroup(reinforcement.NewGroupParams{ID: "g1", Name: "G", Subject: "MA", MemberIDs: []string{"s1"}})
	require.NoError(t, err)

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Append(ctx, reinforcement.NewHistoryEntry("h1", "s1", "Ana", g, "achieved", base)))
	require.NoError(t, repo.Append(ctx, reinforcement.NewHistoryEntry("h2", "s2", "Bia", g, "exceeded", base.Add(time.Hour))))

	err = repo.Append(ctx, reinforcement.NewHistoryEntry("h1", "s1", "Ana", g, "achieved", base))
	assert.True(t, shared.IsAlreadyExists(err))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "h2", list[0].ID, "newest first")
}
