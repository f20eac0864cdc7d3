package models

// Membership is the per-user ledger slot. At most one of GangID and FamilyID
// is set at any time.
type Membership struct {
	UserID              string `json:"user_id"`
	GangID              string `json:"gang_id,omitempty"`
	FamilyID            string `json:"family_id,omitempty"`
	GangJoinedAt        int64  `json:"gang_joined_at,omitempty"`
	FamilyJoinedAt      int64  `json:"family_joined_at,omitempty"`
	GangCooldownUntil   int64  `json:"gang_cooldown_until,omitempty"`
	FamilyCooldownUntil int64  `json:"family_cooldown_until,omitempty"`
}

func (m Membership) GroupID(kind GroupKind) string {
	if kind == KindFamily {
		return m.FamilyID
	}
	return m.GangID
}

func (m Membership) CooldownUntil(kind GroupKind) int64 {
	if kind == KindFamily {
		return m.FamilyCooldownUntil
	}
	return m.GangCooldownUntil
}

// InAnyGroup reports whether the user belongs to a group of either kind.
func (m Membership) InAnyGroup() bool {
	return m.GangID != "" || m.FamilyID != ""
}
