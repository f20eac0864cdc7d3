package models

// GroupEventType names a committed lifecycle transition.
type GroupEventType string

const (
	EventGroupCreated       GroupEventType = "created"
	EventJoinRequested      GroupEventType = "join_requested"
	EventJoinApproved       GroupEventType = "join_approved"
	EventJoinRejected       GroupEventType = "join_rejected"
	EventRequestCancelled   GroupEventType = "request_cancelled"
	EventMemberLeft         GroupEventType = "member_left"
	EventMemberKicked       GroupEventType = "member_kicked"
	EventLeadershipTransfer GroupEventType = "leadership_transferred"
	EventSettingsUpdated    GroupEventType = "settings_updated"
	EventLogoUpdated        GroupEventType = "logo_updated"
	EventGroupDissolved     GroupEventType = "dissolved"
)

// GroupEvent is published after a lifecycle transaction commits.
type GroupEvent struct {
	Type     GroupEventType `json:"type"`
	Kind     GroupKind      `json:"kind"`
	GroupID  string         `json:"group_id"`
	ActorID  string         `json:"actor_id"`
	TargetID string         `json:"target_id,omitempty"`
	At       int64          `json:"at"`
}
