package models

// DefaultMaxMembers is the capacity of a freshly created group.
const DefaultMaxMembers = 25

// Group is one gang or family instance.
type Group struct {
	ID          string    `json:"id"`
	Kind        GroupKind `json:"kind"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	LeaderID    string    `json:"leader_id"`
	MemberCount int       `json:"member_count"`
	MaxMembers  int       `json:"max_members"`
	LogoURL     string    `json:"logo_url,omitempty"`
	MOTD        string    `json:"motd,omitempty"`
	CreatedAt   int64     `json:"created_at"`
	UpdatedAt   int64     `json:"updated_at"`
}

func (g Group) IsFull() bool {
	return g.MemberCount >= g.MaxMembers
}
