package school

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutracker/edutracker/internal/domain/shared"
)

func TestNewClassRoom(t *testing.T) {
	c, err := NewClassRoom("c1", " 5º A ", "5º ano", "", "t1")
	require.NoError(t, err)
	assert.Equal(t, "5º A", c.Name)
	assert.Equal(t, ShiftMorning, c.Shift)

	_, err = NewClassRoom("c1", "5º A", "5º ano", "night", "t1")
	assert.True(t, shared.IsValidation(err))
}

func TestInvite_AcceptFlow(t *testing.T) {
	inv, token, err := NewInvite("i1", " Prof@Escola.br ", RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, shared.Email("prof@escola.br"), inv.Email)
	assert.Equal(t, InvitePending, inv.Status)
	assert.NotEmpty(t, token)
	assert.False(t, strings.Contains(inv.TokenHash, token))

	assert.ErrorIs(t, inv.Accept("wrong", time.Now()), shared.ErrInviteTokenInvalid)
	assert.Equal(t, InvitePending, inv.Status)

	require.NoError(t, inv.Accept(token, time.Now()))
	assert.Equal(t, InviteAccepted, inv.Status)
	require.NotNil(t, inv.AcceptedAt)

	assert.ErrorIs(t, inv.Accept(token, time.Now()), shared.ErrInviteAccepted)
}

func TestNewInvite_Validation(t *testing.T) {
	_, _, err := NewInvite("i1", "not-an-email", RoleTeacher)
	assert.True(t, shared.IsValidation(err))

	_, _, err = NewInvite("i1", "a@b.co", "janitor")
	assert.True(t, shared.IsValidation(err))
}
