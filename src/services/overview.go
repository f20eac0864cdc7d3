package services

import (
	"context"

	"crewhall/src/models"
	"crewhall/src/storage"
)

// Overview is what a caller sees for one kind: their group, or their own
// pending requests and cooldown while groupless.
type Overview struct {
	Kind             models.GroupKind             `json:"kind"`
	Group            *GroupView                   `json:"group,omitempty"`
	IsLeader         bool                         `json:"is_leader"`
	OutgoingRequests []models.OutgoingJoinRequest `json:"outgoing_requests,omitempty"`
	CooldownUntil    int64                        `json:"cooldown_until,omitempty"`
}

func (l *Lifecycle) Overview(ctx context.Context, userID string, kind models.GroupKind) (Overview, error) {
	if err := checkCaller(userID, kind); err != nil {
		return Overview{}, err
	}

	now := l.now()
	out := Overview{Kind: kind}
	err := l.store.InTx(ctx, func(tx *storage.Tx) error {
		m, err := tx.Memberships.Get(ctx, userID)
		if err != nil {
			return err
		}

		if groupID := m.GroupID(kind); groupID != "" {
			group, err := tx.Groups.GetGroup(ctx, groupID)
			if err != nil && !storage.IsNotFound(err) {
				return err
			}
			if err == nil {
				members, err := tx.Memberships.ListMembers(ctx, kind, group.ID, group.LeaderID)
				if err != nil {
					return err
				}
				view := &GroupView{Group: group, Members: members}
				out.IsLeader = group.LeaderID == userID
				if out.IsLeader {
					view.PendingRequests, err = tx.JoinRequests.ListPendingForGroup(ctx, group.ID)
					if err != nil {
						return err
					}
				}
				out.Group = view
				return nil
			}
		}

		if until := m.CooldownUntil(kind); CooldownActive(until, now) {
			out.CooldownUntil = until
		}
		out.OutgoingRequests, err = tx.JoinRequests.ListPendingForRequester(ctx, kind, userID)
		return err
	})
	if err != nil {
		l.logger.Error("load group overview failed", "kind", kind, "error", err)
		return Overview{}, ErrInternal
	}
	return out, nil
}
