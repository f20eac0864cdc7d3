package models

// GroupMember is one row of a group's member list.
type GroupMember struct {
	UserID   string `json:"user_id"`
	IsLeader bool   `json:"is_leader"`
	JoinedAt int64  `json:"joined_at"`
}
