package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"crewhall/src/models"
)

const membershipColumns = `
	user_id,
	COALESCE(gang_id, ''),
	COALESCE(family_id, ''),
	gang_joined_at,
	family_joined_at,
	gang_cooldown_until,
	family_cooldown_until
`

type kindColumns struct {
	group    string
	joined   string
	cooldown string
}

func membershipColumnsFor(kind models.GroupKind) (kindColumns, error) {
	switch kind {
	case models.KindGang:
		return kindColumns{group: "gang_id", joined: "gang_joined_at", cooldown: "gang_cooldown_until"}, nil
	case models.KindFamily:
		return kindColumns{group: "family_id", joined: "family_joined_at", cooldown: "family_cooldown_until"}, nil
	default:
		return kindColumns{}, fmt.Errorf("unknown group kind %q", kind)
	}
}

// MembershipRepo is the ledger mapping each user to at most one group.
type MembershipRepo struct {
	db Querier
}

func NewMembershipRepo(db Querier) *MembershipRepo {
	return &MembershipRepo{db: db}
}

// Get returns the user's slot. Users without a row get an empty slot.
func (r *MembershipRepo) Get(ctx context.Context, userID string) (models.Membership, error) {
	row := r.db.QueryRow(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE user_id = $1`, userID)
	m, err := scanMembership(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Membership{UserID: userID}, nil
	}
	if err != nil {
		return models.Membership{}, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

// Lock creates the user's slot if needed and locks it until the transaction ends.
func (r *MembershipRepo) Lock(ctx context.Context, userID string) (models.Membership, error) {
	if _, err := r.db.Exec(ctx, `
		INSERT INTO memberships (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return models.Membership{}, fmt.Errorf("ensure membership: %w", err)
	}

	row := r.db.QueryRow(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE user_id = $1 FOR UPDATE`, userID)
	m, err := scanMembership(row)
	if err != nil {
		return models.Membership{}, fmt.Errorf("lock membership: %w", err)
	}
	return m, nil
}

// SetGroup points the user's slot for kind at groupID. The slot must be locked.
func (r *MembershipRepo) SetGroup(ctx context.Context, kind models.GroupKind, userID, groupID string, joinedAt int64) error {
	cols, err := membershipColumnsFor(kind)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, fmt.Sprintf(`
		UPDATE memberships
		SET %s = $2, %s = $3, updated_at = $3
		WHERE user_id = $1
	`, cols.group, cols.joined), userID, groupID, joinedAt)
	if err != nil {
		return fmt.Errorf("set membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set membership: %w", pgx.ErrNoRows)
	}
	return nil
}

// ClearGroup empties the user's slot for kind if it still points at groupID.
func (r *MembershipRepo) ClearGroup(ctx context.Context, kind models.GroupKind, userID, groupID string, updatedAt int64) (bool, error) {
	cols, err := membershipColumnsFor(kind)
	if err != nil {
		return false, err
	}
	tag, err := r.db.Exec(ctx, fmt.Sprintf(`
		UPDATE memberships
		SET %s = NULL, %s = 0, updated_at = $3
		WHERE user_id = $1 AND %s = $2
	`, cols.group, cols.joined, cols.group), userID, groupID, updatedAt)
	if err != nil {
		return false, fmt.Errorf("clear membership: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListMembers returns the group's members, oldest first.
func (r *MembershipRepo) ListMembers(ctx context.Context, kind models.GroupKind, groupID, leaderID string) ([]models.GroupMember, error) {
	cols, err := membershipColumnsFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT user_id, %s
		FROM memberships
		WHERE %s = $1
		ORDER BY %s ASC, user_id ASC
	`, cols.joined, cols.group, cols.joined), groupID)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer rows.Close()

	members := make([]models.GroupMember, 0)
	for rows.Next() {
		var member models.GroupMember
		if err := rows.Scan(&member.UserID, &member.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan group member row: %w", err)
		}
		member.IsLeader = member.UserID == leaderID
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group members: %w", err)
	}
	return members, nil
}

// Dissolve empties every slot pointing at groupID and stamps the kind's
// cooldown: leaderUntil for the leader, memberUntil for everyone else.
func (r *MembershipRepo) Dissolve(ctx context.Context, kind models.GroupKind, groupID, leaderID string, leaderUntil, memberUntil, updatedAt int64) (int64, error) {
	cols, err := membershipColumnsFor(kind)
	if err != nil {
		return 0, err
	}
	tag, err := r.db.Exec(ctx, fmt.Sprintf(`
		UPDATE memberships
		SET %s = NULL,
			%s = 0,
			%s = CASE WHEN user_id = $2 THEN $3::BIGINT ELSE $4::BIGINT END,
			updated_at = $5
		WHERE %s = $1
	`, cols.group, cols.joined, cols.cooldown, cols.group),
		groupID, leaderID, leaderUntil, memberUntil, updatedAt)
	if err != nil {
		return 0, fmt.Errorf("dissolve memberships: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanMembership(row pgx.Row) (models.Membership, error) {
	var m models.Membership
	if err := row.Scan(&m.UserID, &m.GangID, &m.FamilyID, &m.GangJoinedAt, &m.FamilyJoinedAt,
		&m.GangCooldownUntil, &m.FamilyCooldownUntil); err != nil {
		return models.Membership{}, err
	}
	return m, nil
}
