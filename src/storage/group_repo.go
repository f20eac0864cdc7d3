package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"crewhall/src/models"
)

const groupColumns = `id, kind, name, code, leader_id, member_count, max_members, logo_url, motd, created_at, updated_at`

type GroupRepo struct {
	db Querier
}

func NewGroupRepo(db Querier) *GroupRepo {
	return &GroupRepo{db: db}
}

func (r *GroupRepo) InsertGroup(ctx context.Context, group models.Group) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO groups (
			id, kind, name, code, leader_id, member_count, max_members,
			logo_url, motd, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		group.ID, string(group.Kind), group.Name, group.Code, group.LeaderID,
		group.MemberCount, group.MaxMembers, group.LogoURL, group.MOTD,
		group.CreatedAt, group.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

// GetGroup returns pgx.ErrNoRows (wrapped) when the group does not exist.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID string) (models.Group, error) {
	row := r.db.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1`, groupID)
	group, err := scanGroup(row)
	if err != nil {
		return models.Group{}, fmt.Errorf("get group: %w", err)
	}
	return group, nil
}

// GetGroupForUpdate loads the group and locks its row until the transaction ends.
func (r *GroupRepo) GetGroupForUpdate(ctx context.Context, groupID string) (models.Group, error) {
	row := r.db.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1 FOR UPDATE`, groupID)
	group, err := scanGroup(row)
	if err != nil {
		return models.Group{}, fmt.Errorf("lock group: %w", err)
	}
	return group, nil
}

// GetGroupByCodeForShare resolves an invite code and takes a share lock on the
// group row, so callers may lock membership rows afterwards in the usual order.
func (r *GroupRepo) GetGroupByCodeForShare(ctx context.Context, kind models.GroupKind, code string) (models.Group, error) {
	row := r.db.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE kind = $1 AND code = $2 FOR SHARE`, string(kind), code)
	group, err := scanGroup(row)
	if err != nil {
		return models.Group{}, fmt.Errorf("get group by code: %w", err)
	}
	return group, nil
}

func (r *GroupRepo) CodeExists(ctx context.Context, kind models.GroupKind, code string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM groups WHERE kind = $1 AND code = $2)
	`, string(kind), code).Scan(&exists); err != nil {
		return false, fmt.Errorf("scan code existence: %w", err)
	}
	return exists, nil
}

// IncrementMemberCount adds one member only while the group is below capacity.
// The check and the write are a single statement, so concurrent callers racing
// for the last slot cannot both succeed. It reports false when no row changed.
func (r *GroupRepo) IncrementMemberCount(ctx context.Context, groupID string, updatedAt int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE groups
		SET member_count = member_count + 1,
			updated_at = $2
		WHERE id = $1 AND member_count < max_members
	`, groupID, updatedAt)
	if err != nil {
		return false, fmt.Errorf("increment member count: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ResyncMemberCount recomputes member_count from the membership ledger.
func (r *GroupRepo) ResyncMemberCount(ctx context.Context, kind models.GroupKind, groupID string, updatedAt int64) (int, error) {
	cols, err := membershipColumnsFor(kind)
	if err != nil {
		return 0, err
	}

	var count int
	if err := r.db.QueryRow(ctx, fmt.Sprintf(`
		UPDATE groups
		SET member_count = (SELECT COUNT(*) FROM memberships WHERE %s = $1),
			updated_at = $2
		WHERE id = $1
		RETURNING member_count
	`, cols.group), groupID, updatedAt).Scan(&count); err != nil {
		return 0, fmt.Errorf("resync member count: %w", err)
	}
	return count, nil
}

func (r *GroupRepo) SetLeader(ctx context.Context, groupID, leaderID string, updatedAt int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE groups SET leader_id = $2, updated_at = $3 WHERE id = $1
	`, groupID, leaderID, updatedAt)
	if err != nil {
		return fmt.Errorf("set group leader: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set group leader: %w", pgx.ErrNoRows)
	}
	return nil
}

func (r *GroupRepo) UpdateSettings(ctx context.Context, groupID, name, motd string, updatedAt int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE groups SET name = $2, motd = $3, updated_at = $4 WHERE id = $1
	`, groupID, name, motd, updatedAt)
	if err != nil {
		return fmt.Errorf("update group settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update group settings: %w", pgx.ErrNoRows)
	}
	return nil
}

func (r *GroupRepo) UpdateLogo(ctx context.Context, groupID, logoURL string, updatedAt int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE groups SET logo_url = $2, updated_at = $3 WHERE id = $1
	`, groupID, logoURL, updatedAt)
	if err != nil {
		return fmt.Errorf("update group logo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update group logo: %w", pgx.ErrNoRows)
	}
	return nil
}

// DeleteGroup removes the group; its join requests cascade.
func (r *GroupRepo) DeleteGroup(ctx context.Context, groupID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM groups WHERE id = $1`, groupID); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return nil
}

func scanGroup(row pgx.Row) (models.Group, error) {
	var group models.Group
	var kind string
	if err := row.Scan(&group.ID, &kind, &group.Name, &group.Code, &group.LeaderID,
		&group.MemberCount, &group.MaxMembers, &group.LogoURL, &group.MOTD,
		&group.CreatedAt, &group.UpdatedAt); err != nil {
		return models.Group{}, err
	}
	group.Kind = models.GroupKind(kind)
	return group, nil
}

// IsNotFound reports whether err came from a lookup that matched no row.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
