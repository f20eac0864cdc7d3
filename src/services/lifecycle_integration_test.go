package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewhall/src/models"
	"crewhall/src/storage"
)

type integrationEnv struct {
	lifecycle *Lifecycle
	store     *storage.Store
	events    *recordingEvents
	now       time.Time
}

func newIntegrationEnv(t *testing.T, maxMembers int) *integrationEnv {
	t.Helper()
	pool := openIntegrationPool(t)
	env := &integrationEnv{
		store:  storage.NewStore(pool),
		events: &recordingEvents{},
		now:    testNow,
	}
	env.lifecycle = NewLifecycle(LifecycleDeps{
		Store:      env.store,
		Events:     env.events,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		MaxMembers: maxMembers,
		Now:        func() time.Time { return env.now },
	})
	return env
}

func (e *integrationEnv) membership(t *testing.T, userID string) models.Membership {
	t.Helper()
	var m models.Membership
	require.NoError(t, e.store.InTx(context.Background(), func(tx *storage.Tx) error {
		var err error
		m, err = tx.Memberships.Get(context.Background(), userID)
		return err
	}))
	return m
}

func (e *integrationEnv) group(t *testing.T, groupID string) models.Group {
	t.Helper()
	var g models.Group
	require.NoError(t, e.store.InTx(context.Background(), func(tx *storage.Tx) error {
		var err error
		g, err = tx.Groups.GetGroup(context.Background(), groupID)
		return err
	}))
	return g
}

func (e *integrationEnv) pending(t *testing.T, userID string, kind models.GroupKind) []models.OutgoingJoinRequest {
	t.Helper()
	requests, err := e.store.JoinRequests().ListPendingForRequester(context.Background(), kind, userID)
	require.NoError(t, err)
	return requests
}

func (e *integrationEnv) admit(t *testing.T, leaderID string, kind models.GroupKind, code, userID string) {
	t.Helper()
	ctx := context.Background()
	req, err := e.lifecycle.Join(ctx, userID, kind, code)
	require.NoError(t, err)
	_, err = e.lifecycle.ApproveJoin(ctx, leaderID, kind, req.ID)
	require.NoError(t, err)
}

func TestIntegrationConcurrentApprovalsOnLastSeat(t *testing.T) {
	env := newIntegrationEnv(t, 2)
	ctx := context.Background()

	view, err := env.lifecycle.Create(ctx, "leader", models.KindGang, "Peaky Blinders", "")
	require.NoError(t, err)

	var requestIDs []string
	for _, user := range []string{"u-1", "u-2", "u-3"} {
		req, err := env.lifecycle.Join(ctx, user, models.KindGang, view.Group.Code)
		require.NoError(t, err)
		requestIDs = append(requestIDs, req.ID)
	}

	errs := make([]error, len(requestIDs))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, id := range requestIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			<-start
			_, errs[i] = env.lifecycle.ApproveJoin(ctx, "leader", models.KindGang, id)
		}(i, id)
	}
	close(start)
	wg.Wait()

	approved, full := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			approved++
		case errors.Is(err, ErrGroupFull):
			full++
		default:
			t.Fatalf("unexpected approval error: %v", err)
		}
	}
	assert.Equal(t, 1, approved)
	assert.Equal(t, 2, full)
	assert.Equal(t, 2, env.group(t, view.Group.ID).MemberCount)
}

func TestIntegrationJoinRacingApprovalLeavesNoPendingRequest(t *testing.T) {
	env := newIntegrationEnv(t, 0)
	ctx := context.Background()

	first, err := env.lifecycle.Create(ctx, "first-boss", models.KindGang, "First Crew", "")
	require.NoError(t, err)
	second, err := env.lifecycle.Create(ctx, "second-boss", models.KindGang, "Second Crew", "")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		user := fmt.Sprintf("drifter-%d", i)
		req, err := env.lifecycle.Join(ctx, user, models.KindGang, first.Group.Code)
		require.NoError(t, err)

		var approveErr, joinErr error
		var wg sync.WaitGroup
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, approveErr = env.lifecycle.ApproveJoin(ctx, "first-boss", models.KindGang, req.ID)
		}()
		go func() {
			defer wg.Done()
			<-start
			_, joinErr = env.lifecycle.Join(ctx, user, models.KindGang, second.Group.Code)
		}()
		close(start)
		wg.Wait()

		require.NoError(t, approveErr)
		if joinErr != nil {
			require.ErrorIs(t, joinErr, ErrAlreadyInGroup)
		}
		assert.Equal(t, first.Group.ID, env.membership(t, user).GangID)
		assert.Empty(t, env.pending(t, user, models.KindGang), "%s keeps no pending request after joining", user)
	}

	secondView, err := env.lifecycle.Overview(ctx, "second-boss", models.KindGang)
	require.NoError(t, err)
	assert.Empty(t, secondView.Group.PendingRequests)
}

func TestIntegrationDissolveStampsCooldowns(t *testing.T) {
	env := newIntegrationEnv(t, 0)
	ctx := context.Background()

	view, err := env.lifecycle.Create(ctx, "leader", models.KindGang, "Shelby Company", "")
	require.NoError(t, err)
	env.admit(t, "leader", models.KindGang, view.Group.Code, "member")
	_, err = env.lifecycle.Join(ctx, "applicant", models.KindGang, view.Group.Code)
	require.NoError(t, err)

	result, err := env.lifecycle.Dissolve(ctx, "leader", models.KindGang)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.ReleasedMembers)

	err = env.store.InTx(ctx, func(tx *storage.Tx) error {
		_, err := tx.Groups.GetGroup(ctx, view.Group.ID)
		return err
	})
	assert.True(t, storage.IsNotFound(err), "group row is gone, got %v", err)
	assert.Empty(t, env.pending(t, "applicant", models.KindGang), "join requests cascade with the group")
	err = env.lifecycle.CancelRequest(ctx, "applicant", models.KindGang, view.Group.ID)
	assert.ErrorIs(t, err, ErrRequestNotFound)

	leader := env.membership(t, "leader")
	member := env.membership(t, "member")
	assert.Empty(t, leader.GangID)
	assert.Empty(t, member.GangID)
	assert.Equal(t, testNow.Add(LeaderCooldown).Unix(), leader.GangCooldownUntil)
	assert.Equal(t, testNow.Add(MemberCooldown).Unix(), member.GangCooldownUntil)

	_, err = env.lifecycle.Create(ctx, "member", models.KindGang, "Second Try", "")
	assert.ErrorIs(t, err, ErrCooldownActive)

	_, err = env.lifecycle.Create(ctx, "member", models.KindFamily, "Other Kind", "")
	assert.NoError(t, err)

	env.now = testNow.Add(MemberCooldown)
	_, err = env.lifecycle.Create(ctx, "leader", models.KindGang, "Too Soon", "")
	assert.ErrorIs(t, err, ErrCooldownActive)

	env.now = testNow.Add(LeaderCooldown)
	_, err = env.lifecycle.Create(ctx, "leader", models.KindGang, "Back Again", "")
	assert.NoError(t, err)
}

func TestIntegrationTransferLeadershipThenLeave(t *testing.T) {
	env := newIntegrationEnv(t, 0)
	ctx := context.Background()

	view, err := env.lifecycle.Create(ctx, "leader", models.KindFamily, "Corleone", "")
	require.NoError(t, err)
	env.admit(t, "leader", models.KindFamily, view.Group.Code, "heir")

	_, err = env.lifecycle.TransferLeadership(ctx, "leader", models.KindFamily, "stranger")
	assert.ErrorIs(t, err, ErrTargetNotMember)

	group, err := env.lifecycle.TransferLeadership(ctx, "leader", models.KindFamily, "heir")
	require.NoError(t, err)
	assert.Equal(t, "heir", group.LeaderID)

	_, err = env.lifecycle.UpdateSettings(ctx, "leader", models.KindFamily, "Old Guard", "")
	assert.ErrorIs(t, err, ErrNotLeader)
	err = env.lifecycle.KickMember(ctx, "leader", models.KindFamily, "heir")
	assert.ErrorIs(t, err, ErrNotLeader)
	_, err = env.lifecycle.Dissolve(ctx, "leader", models.KindFamily)
	assert.ErrorIs(t, err, ErrNotLeader)

	renamed, err := env.lifecycle.UpdateSettings(ctx, "heir", models.KindFamily, "Corleone Heirs", "new era")
	require.NoError(t, err)
	assert.Equal(t, "Corleone Heirs", renamed.Name)

	req, err := env.lifecycle.Join(ctx, "cousin", models.KindFamily, view.Group.Code)
	require.NoError(t, err)
	_, err = env.lifecycle.ApproveJoin(ctx, "leader", models.KindFamily, req.ID)
	assert.ErrorIs(t, err, ErrNotLeader)
	_, err = env.lifecycle.ApproveJoin(ctx, "heir", models.KindFamily, req.ID)
	require.NoError(t, err)
	require.NoError(t, env.lifecycle.KickMember(ctx, "heir", models.KindFamily, "cousin"))

	require.NoError(t, env.lifecycle.Leave(ctx, "leader", models.KindFamily))
	assert.Equal(t, 1, env.group(t, view.Group.ID).MemberCount)

	err = env.lifecycle.Leave(ctx, "heir", models.KindFamily)
	assert.ErrorIs(t, err, ErrLeaderCannotLeave)
}

func TestIntegrationJoinRequestLifecycle(t *testing.T) {
	env := newIntegrationEnv(t, 0)
	ctx := context.Background()

	gang, err := env.lifecycle.Create(ctx, "gang-boss", models.KindGang, "Gang One", "")
	require.NoError(t, err)
	other, err := env.lifecycle.Create(ctx, "other-boss", models.KindGang, "Gang Two", "")
	require.NoError(t, err)

	_, err = env.lifecycle.Join(ctx, "recruit", models.KindGang, gang.Group.Code)
	require.NoError(t, err)
	_, err = env.lifecycle.Join(ctx, "recruit", models.KindGang, gang.Group.Code)
	assert.ErrorIs(t, err, ErrDuplicateRequest)

	require.NoError(t, env.lifecycle.CancelRequest(ctx, "recruit", models.KindGang, gang.Group.ID))
	err = env.lifecycle.CancelRequest(ctx, "recruit", models.KindGang, gang.Group.ID)
	assert.ErrorIs(t, err, ErrRequestNotFound)

	first, err := env.lifecycle.Join(ctx, "recruit", models.KindGang, gang.Group.Code)
	require.NoError(t, err)
	env.now = testNow.Add(time.Second)
	_, err = env.lifecycle.Join(ctx, "recruit", models.KindGang, other.Group.Code)
	require.NoError(t, err)

	overview, err := env.lifecycle.Overview(ctx, "recruit", models.KindGang)
	require.NoError(t, err)
	require.Len(t, overview.OutgoingRequests, 2)
	assert.Equal(t, first.ID, overview.OutgoingRequests[0].ID)

	_, err = env.lifecycle.ApproveJoin(ctx, "gang-boss", models.KindGang, first.ID)
	require.NoError(t, err)

	// Approval withdraws the recruit's other pending requests.
	otherView, err := env.lifecycle.Overview(ctx, "other-boss", models.KindGang)
	require.NoError(t, err)
	assert.Empty(t, otherView.Group.PendingRequests)

	gangView, err := env.lifecycle.Overview(ctx, "gang-boss", models.KindGang)
	require.NoError(t, err)
	assert.Len(t, gangView.Group.Members, 2)
	assert.Equal(t, 2, gangView.Group.Group.MemberCount)

	err = env.lifecycle.KickMember(ctx, "gang-boss", models.KindGang, "recruit")
	require.NoError(t, err)
	assert.Equal(t, 1, env.group(t, gang.Group.ID).MemberCount)
	assert.Empty(t, env.membership(t, "recruit").GangID)
}

func TestIntegrationOneGroupAcrossKinds(t *testing.T) {
	env := newIntegrationEnv(t, 0)
	ctx := context.Background()

	family, err := env.lifecycle.Create(ctx, "don", models.KindFamily, "Family One", "")
	require.NoError(t, err)
	_, err = env.lifecycle.Create(ctx, "boss", models.KindGang, "Gang One", "")
	require.NoError(t, err)

	_, err = env.lifecycle.Create(ctx, "don", models.KindGang, "Gang Two", "")
	assert.ErrorIs(t, err, ErrAlreadyInGroup)

	_, err = env.lifecycle.Join(ctx, "boss", models.KindFamily, family.Group.Code)
	assert.ErrorIs(t, err, ErrAlreadyInGroup)
}
