package models

import "errors"

// Errors returned by discussion operations. Callers match them with errors.Is;
// they are usually wrapped with more detail.
var (
	ErrNotFound                = errors.New("not found")
	ErrForbidden               = errors.New("forbidden")
	ErrDepthExceeded           = errors.New("reply depth limit exceeded")
	ErrAlreadySoftDeleted      = errors.New("reply is already deleted")
	ErrAlreadyHardDeleted      = errors.New("reply was permanently deleted")
	ErrDuplicateSolution       = errors.New("topic would have more than one solution")
	ErrSelfVote                = errors.New("cannot vote on your own reply")
	ErrTopicLocked             = errors.New("topic is locked")
	ErrStructuralInconsistency = errors.New("reply tree is structurally inconsistent")

	ErrReplyDeleted      = errors.New("reply is deleted")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidArgument   = errors.New("invalid argument")
)
