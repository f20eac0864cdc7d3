package services

import (
	"context"

	"crewhall/src/storage"
)

// ReserveSeat claims one seat in the group with a single conditional update.
// The update also takes the group row lock, so concurrent approvals on the
// last seat serialise here and exactly one of them wins.
func ReserveSeat(ctx context.Context, tx *storage.Tx, groupID string, now int64) error {
	ok, err := tx.Groups.IncrementMemberCount(ctx, groupID, now)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	if _, err := tx.Groups.GetGroup(ctx, groupID); err != nil {
		if storage.IsNotFound(err) {
			return ErrGroupNotFound
		}
		return err
	}
	return ErrGroupFull
}
