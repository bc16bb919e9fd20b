package models

// Something a user may or may not be allowed to do in a topic.
type Action string

const (
	ActionReply        Action = "reply"
	ActionVote         Action = "vote"
	ActionModerate     Action = "moderate" // edit or soft delete other people's replies
	ActionHardDelete   Action = "hard_delete"
	ActionMarkSolution Action = "mark_solution"
	ActionLock         Action = "lock"
	ActionPin          Action = "pin"
)
