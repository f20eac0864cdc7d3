package services

import "time"

const (
	LeaderCooldown = 7 * 24 * time.Hour
	MemberCooldown = 3 * 24 * time.Hour
)

// CooldownScheduler computes re-creation penalties after a dissolution.
type CooldownScheduler struct {
	Leader time.Duration
	Member time.Duration
}

func NewCooldownScheduler() CooldownScheduler {
	return CooldownScheduler{Leader: LeaderCooldown, Member: MemberCooldown}
}

// Schedule returns the unix second until which the outgoing leader and the
// former members are blocked from creating a group of the same kind.
func (c CooldownScheduler) Schedule(dissolvedAt time.Time) (leaderUntil, memberUntil int64) {
	return dissolvedAt.Add(c.Leader).Unix(), dissolvedAt.Add(c.Member).Unix()
}

// CooldownActive reports whether a cooldown ending at until still applies at now.
// Zero means no cooldown was ever set.
func CooldownActive(until int64, now time.Time) bool {
	return until > 0 && now.Unix() < until
}
