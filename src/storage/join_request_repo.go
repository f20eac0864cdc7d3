package storage

import (
	"context"
	"fmt"

	"crewhall/src/models"
)

const joinRequestColumns = `id, group_id, requester_id, status, created_at, processed_at, processed_by`

type JoinRequestRepo struct {
	db Querier
}

func NewJoinRequestRepo(db Querier) *JoinRequestRepo {
	return &JoinRequestRepo{db: db}
}

// InsertPending adds a pending request. A second pending row for the same
// (group, requester) pair fails on join_requests_one_pending_idx.
func (r *JoinRequestRepo) InsertPending(ctx context.Context, req models.GroupJoinRequest) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO join_requests (id, group_id, requester_id, status, created_at)
		VALUES ($1, $2, $3, 'pending', $4)
	`, req.ID, req.GroupID, req.RequesterID, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert join request: %w", err)
	}
	return nil
}

func (r *JoinRequestRepo) HasPending(ctx context.Context, groupID, requesterID string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM join_requests
			WHERE group_id = $1 AND requester_id = $2 AND status = 'pending'
		)
	`, groupID, requesterID).Scan(&exists); err != nil {
		return false, fmt.Errorf("scan pending request existence: %w", err)
	}
	return exists, nil
}

func (r *JoinRequestRepo) GetRequest(ctx context.Context, requestID string) (models.GroupJoinRequest, error) {
	var req models.GroupJoinRequest
	var status string
	if err := r.db.QueryRow(ctx, `
		SELECT `+joinRequestColumns+` FROM join_requests WHERE id = $1
	`, requestID).Scan(&req.ID, &req.GroupID, &req.RequesterID, &status,
		&req.CreatedAt, &req.ProcessedAt, &req.ProcessedBy); err != nil {
		return models.GroupJoinRequest{}, fmt.Errorf("get join request: %w", err)
	}
	req.Status = models.JoinRequestStatus(status)
	return req, nil
}

// Resolve moves a pending request to approved or rejected. It reports false
// when the request was no longer pending.
func (r *JoinRequestRepo) Resolve(ctx context.Context, requestID string, status models.JoinRequestStatus, processedAt int64, processedBy string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE join_requests
		SET status = $2, processed_at = $3, processed_by = $4
		WHERE id = $1 AND status = 'pending'
	`, requestID, string(status), processedAt, processedBy)
	if err != nil {
		return false, fmt.Errorf("resolve join request: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PurgeResolved drops approved and rejected history for the pair.
func (r *JoinRequestRepo) PurgeResolved(ctx context.Context, groupID, requesterID string) error {
	if _, err := r.db.Exec(ctx, `
		DELETE FROM join_requests
		WHERE group_id = $1 AND requester_id = $2 AND status <> 'pending'
	`, groupID, requesterID); err != nil {
		return fmt.Errorf("purge resolved join requests: %w", err)
	}
	return nil
}

// DeletePending removes the requester's pending request for the group.
func (r *JoinRequestRepo) DeletePending(ctx context.Context, groupID, requesterID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM join_requests
		WHERE group_id = $1 AND requester_id = $2 AND status = 'pending'
	`, groupID, requesterID)
	if err != nil {
		return false, fmt.Errorf("delete pending join request: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// WithdrawPending deletes every pending request of the requester except keepID.
func (r *JoinRequestRepo) WithdrawPending(ctx context.Context, requesterID, keepID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM join_requests
		WHERE requester_id = $1 AND status = 'pending' AND id <> $2
	`, requesterID, keepID)
	if err != nil {
		return 0, fmt.Errorf("withdraw pending join requests: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListPendingForGroup returns the group's pending requests, oldest first.
func (r *JoinRequestRepo) ListPendingForGroup(ctx context.Context, groupID string) ([]models.GroupJoinRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+joinRequestColumns+`
		FROM join_requests
		WHERE group_id = $1 AND status = 'pending'
		ORDER BY created_at ASC, id ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query pending join requests: %w", err)
	}
	defer rows.Close()

	requests := make([]models.GroupJoinRequest, 0)
	for rows.Next() {
		var req models.GroupJoinRequest
		var status string
		if err := rows.Scan(&req.ID, &req.GroupID, &req.RequesterID, &status,
			&req.CreatedAt, &req.ProcessedAt, &req.ProcessedBy); err != nil {
			return nil, fmt.Errorf("scan join request row: %w", err)
		}
		req.Status = models.JoinRequestStatus(status)
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate join requests: %w", err)
	}
	return requests, nil
}

// ListPendingForRequester returns the requester's pending requests to groups of kind, oldest first.
func (r *JoinRequestRepo) ListPendingForRequester(ctx context.Context, kind models.GroupKind, requesterID string) ([]models.OutgoingJoinRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT jr.id, jr.group_id, jr.requester_id, jr.status, jr.created_at,
			jr.processed_at, jr.processed_by, g.name, g.code
		FROM join_requests jr
		JOIN groups g ON g.id = jr.group_id
		WHERE jr.requester_id = $1 AND jr.status = 'pending' AND g.kind = $2
		ORDER BY jr.created_at ASC, jr.id ASC
	`, requesterID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query outgoing join requests: %w", err)
	}
	defer rows.Close()

	requests := make([]models.OutgoingJoinRequest, 0)
	for rows.Next() {
		var req models.OutgoingJoinRequest
		var status string
		if err := rows.Scan(&req.ID, &req.GroupID, &req.RequesterID, &status,
			&req.CreatedAt, &req.ProcessedAt, &req.ProcessedBy, &req.GroupName, &req.GroupCode); err != nil {
			return nil, fmt.Errorf("scan outgoing join request row: %w", err)
		}
		req.Status = models.JoinRequestStatus(status)
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outgoing join requests: %w", err)
	}
	return requests, nil
}

// PurgeProcessedBefore deletes approved and rejected requests processed before cutoff.
func (r *JoinRequestRepo) PurgeProcessedBefore(ctx context.Context, cutoff int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM join_requests
		WHERE status <> 'pending' AND processed_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge processed join requests: %w", err)
	}
	return tag.RowsAffected(), nil
}
