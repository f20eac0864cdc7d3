package models

type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestApproved JoinRequestStatus = "approved"
	JoinRequestRejected JoinRequestStatus = "rejected"
)

// GroupJoinRequest is a requester's intent to join a group.
type GroupJoinRequest struct {
	ID          string            `json:"id"`
	GroupID     string            `json:"group_id"`
	RequesterID string            `json:"requester_id"`
	Status      JoinRequestStatus `json:"status"`
	CreatedAt   int64             `json:"created_at"`
	ProcessedAt int64             `json:"processed_at,omitempty"`
	ProcessedBy string            `json:"processed_by,omitempty"`
}

// OutgoingJoinRequest is a caller's own pending request with the target group's public fields.
type OutgoingJoinRequest struct {
	GroupJoinRequest
	GroupName string `json:"group_name"`
	GroupCode string `json:"group_code"`
}
