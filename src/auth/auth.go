/*
Package auth decides what users may do. Authentication is not handled here; by
the time a request reaches the engine, the acting user id is already trusted.
*/
package auth

import (
	"context"
	"errors"

	"git.handmade.network/hmn/discuss/src/models"
	"git.handmade.network/hmn/discuss/src/oops"
)

// Where a user's role comes from. Unknown users return models.ErrNotFound.
type RoleSource interface {
	UserRole(ctx context.Context, userID int) (models.Role, error)
}

var memberActions = map[models.Action]bool{
	models.ActionReply: true,
	models.ActionVote:  true,
}

var moderatorActions = map[models.Action]bool{
	models.ActionReply:        true,
	models.ActionVote:         true,
	models.ActionModerate:     true,
	models.ActionHardDelete:   true,
	models.ActionMarkSolution: true,
	models.ActionLock:         true,
	models.ActionPin:          true,
}

/*
Grants actions by site role. Members may reply and vote, moderators and
admins may do everything, and banned or unknown users may do nothing.

Rules that depend on who wrote what (authors editing their own replies, topic
authors marking solutions) are applied by the caller, which still asks for
ActionReply on the author's behalf.
*/
type RoleAuthorizer struct {
	Roles RoleSource
}

func NewRoleAuthorizer(roles RoleSource) *RoleAuthorizer {
	return &RoleAuthorizer{Roles: roles}
}

func (a *RoleAuthorizer) CheckPermission(ctx context.Context, userID int, action models.Action, topicID int) (bool, error) {
	role, err := a.Roles.UserRole(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, oops.New(err, "failed to look up role for user %d", userID)
	}
	return RoleAllows(role, action), nil
}

func RoleAllows(role models.Role, action models.Action) bool {
	switch role {
	case models.RoleMember:
		return memberActions[action]
	case models.RoleModerator, models.RoleAdmin:
		return moderatorActions[action]
	}
	return false
}
