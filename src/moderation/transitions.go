/*
Package moderation holds the topic and reply state rules: locking, pinning,
solution marking, and which deletion states a reply may move between.
*/
package moderation

import (
	"fmt"

	"git.handmade.network/hmn/discuss/src/models"
)

/*
Returns the status a topic moves to when (un)locked. Locking is reversible
between open and locked; archived topics are frozen. changed is false when the
topic already has the requested status.
*/
func NextLockStatus(current models.TopicStatus, locked bool) (next models.TopicStatus, changed bool, err error) {
	switch current {
	case models.TopicStatusArchived:
		return current, false, fmt.Errorf("%w: topic is archived", models.ErrInvalidTransition)
	case models.TopicStatusOpen:
		if locked {
			return models.TopicStatusLocked, true, nil
		}
		return current, false, nil
	case models.TopicStatusLocked:
		if !locked {
			return models.TopicStatusOpen, true, nil
		}
		return current, false, nil
	}
	return current, false, fmt.Errorf("%w: unknown topic status %q", models.ErrInvalidTransition, current)
}

/*
Checks a reply deletion transition. Deletion only moves forward, from none to
soft to hard; there is no way back. A moderator may skip straight from none
to hard.
*/
func CanTransitionReply(from, to models.DeletionKind) error {
	if from == models.DeletionHard {
		return models.ErrAlreadyHardDeleted
	}
	switch to {
	case models.DeletionSoft:
		if from == models.DeletionSoft {
			return models.ErrAlreadySoftDeleted
		}
		return nil
	case models.DeletionHard:
		return nil
	}
	return fmt.Errorf("%w: reply cannot go from %s to %s", models.ErrInvalidTransition, from, to)
}

// The deletion state of a reply, treating legacy rows without a kind as active.
func DeletionState(reply *models.Reply) models.DeletionKind {
	if !reply.IsDeleted {
		return models.DeletionNone
	}
	if reply.DeletionKind == "" || reply.DeletionKind == models.DeletionNone {
		return models.DeletionSoft
	}
	return reply.DeletionKind
}
