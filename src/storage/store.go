package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Tx bundles the repositories bound to one open transaction.
type Tx struct {
	Groups       *GroupRepo
	Memberships  *MembershipRepo
	JoinRequests *JoinRequestRepo
}

func newTx(q Querier) *Tx {
	return &Tx{
		Groups:       NewGroupRepo(q),
		Memberships:  NewMembershipRepo(q),
		JoinRequests: NewJoinRequestRepo(q),
	}
}

// Store owns the connection pool and opens transactions on it.
type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

// InTx runs fn inside a transaction. The transaction commits only when fn
// returns nil; any error or panic rolls it back.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	pgTx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	done := false
	defer func() {
		if done {
			return
		}
		_ = pgTx.Rollback(ctx)
		if p := recover(); p != nil {
			panic(p)
		}
	}()

	if err := fn(newTx(pgTx)); err != nil {
		done = true
		if rbErr := pgTx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}

	done = true
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// JoinRequests returns a repository bound to the pool for work outside a transaction.
func (s *Store) JoinRequests() *JoinRequestRepo {
	return NewJoinRequestRepo(s.db)
}

// UniqueViolation reports whether err is a unique violation and, if so, on which constraint.
func UniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

const (
	ConstraintGroupCode       = "groups_code_key"
	ConstraintGroupLeader     = "groups_leader_id_key"
	ConstraintOnePendingIndex = "join_requests_one_pending_idx"
)
