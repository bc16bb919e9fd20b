package auth

import (
	"context"
	"errors"
	"testing"

	"git.handmade.network/hmn/discuss/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleAllows(t *testing.T) {
	allActions := []models.Action{
		models.ActionReply,
		models.ActionVote,
		models.ActionModerate,
		models.ActionHardDelete,
		models.ActionMarkSolution,
		models.ActionLock,
		models.ActionPin,
	}

	for _, action := range allActions {
		assert.True(t, RoleAllows(models.RoleAdmin, action), "admin: %s", action)
		assert.True(t, RoleAllows(models.RoleModerator, action), "moderator: %s", action)
		assert.False(t, RoleAllows(models.RoleBanned, action), "banned: %s", action)
		assert.False(t, RoleAllows("", action))
	}

	assert.True(t, RoleAllows(models.RoleMember, models.ActionReply))
	assert.True(t, RoleAllows(models.RoleMember, models.ActionVote))
	assert.False(t, RoleAllows(models.RoleMember, models.ActionModerate))
	assert.False(t, RoleAllows(models.RoleMember, models.ActionHardDelete))
	assert.False(t, RoleAllows(models.RoleMember, models.ActionLock))
}

type brokenRoles struct{}

func (brokenRoles) UserRole(ctx context.Context, userID int) (models.Role, error) {
	return "", errors.New("connection reset")
}

func TestCheckPermission(t *testing.T) {
	ctx := context.Background()
	roles := NewStaticRoles(map[int]models.Role{
		1: models.RoleMember,
		2: models.RoleModerator,
	})
	a := NewRoleAuthorizer(roles)

	ok, err := a.CheckPermission(ctx, 1, models.ActionReply, 10)
	require.Nil(t, err)
	assert.True(t, ok)

	ok, err = a.CheckPermission(ctx, 1, models.ActionLock, 10)
	require.Nil(t, err)
	assert.False(t, ok)

	ok, err = a.CheckPermission(ctx, 2, models.ActionLock, 10)
	require.Nil(t, err)
	assert.True(t, ok)

	t.Run("unknown users are denied", func(t *testing.T) {
		ok, err := a.CheckPermission(ctx, 404, models.ActionReply, 10)
		require.Nil(t, err)
		assert.False(t, ok)
	})
	t.Run("banning takes effect immediately", func(t *testing.T) {
		roles.Set(1, models.RoleBanned)
		ok, err := a.CheckPermission(ctx, 1, models.ActionReply, 10)
		require.Nil(t, err)
		assert.False(t, ok)
	})
	t.Run("lookup failures are errors", func(t *testing.T) {
		_, err := NewRoleAuthorizer(brokenRoles{}).CheckPermission(ctx, 1, models.ActionReply, 10)
		assert.NotNil(t, err)
	})
}
