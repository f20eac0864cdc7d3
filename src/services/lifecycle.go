package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"crewhall/src/lib"
	"crewhall/src/models"
	"crewhall/src/storage"
)

// LifecycleDeps wires a Lifecycle. Zero-valued optional fields get defaults.
type LifecycleDeps struct {
	Store      *storage.Store
	Codes      *InviteCodeGenerator
	Cooldowns  CooldownScheduler
	Logos      LogoValidator
	Events     EventPublisher
	Metrics    *lib.Metrics
	Logger     *slog.Logger
	MaxMembers int
	Now        func() time.Time
	NewID      func() string
}

// Lifecycle runs every group state transition inside one transaction.
type Lifecycle struct {
	store      *storage.Store
	codes      *InviteCodeGenerator
	cooldowns  CooldownScheduler
	logos      LogoValidator
	events     EventPublisher
	metrics    *lib.Metrics
	logger     *slog.Logger
	maxMembers int
	now        func() time.Time
	newID      func() string
}

func NewLifecycle(deps LifecycleDeps) *Lifecycle {
	l := &Lifecycle{
		store:      deps.Store,
		codes:      deps.Codes,
		cooldowns:  deps.Cooldowns,
		logos:      deps.Logos,
		events:     deps.Events,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		maxMembers: deps.MaxMembers,
		now:        deps.Now,
		newID:      deps.NewID,
	}
	if l.codes == nil {
		l.codes = NewInviteCodeGenerator()
	}
	if l.cooldowns == (CooldownScheduler{}) {
		l.cooldowns = NewCooldownScheduler()
	}
	if l.logos == nil {
		l.logos = NewHostAllowList(nil)
	}
	if l.events == nil {
		l.events = NopPublisher{}
	}
	if l.metrics == nil {
		l.metrics = lib.NewMetrics()
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.maxMembers < 2 {
		l.maxMembers = models.DefaultMaxMembers
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.newID == nil {
		l.newID = uuid.NewString
	}
	return l
}

// GroupView is a group with its members, plus pending requests when the
// viewer leads it.
type GroupView struct {
	Group           models.Group              `json:"group"`
	Members         []models.GroupMember      `json:"members"`
	PendingRequests []models.GroupJoinRequest `json:"pending_requests,omitempty"`
}

// DissolveResult reports what a dissolution released.
type DissolveResult struct {
	GroupID             string `json:"group_id"`
	ReleasedMembers     int64  `json:"released_members"`
	LeaderCooldownUntil int64  `json:"leader_cooldown_until"`
	MemberCooldownUntil int64  `json:"member_cooldown_until"`
}

func (l *Lifecycle) Create(ctx context.Context, userID string, kind models.GroupKind, name, logoURL string) (GroupView, error) {
	if err := checkCaller(userID, kind); err != nil {
		return GroupView{}, err
	}
	name, err := ValidateName(name)
	if err != nil {
		return GroupView{}, err
	}
	logoURL = strings.TrimSpace(logoURL)
	if logoURL != "" {
		if err := l.logos.ValidateLogo(ctx, logoURL); err != nil {
			return GroupView{}, err
		}
	}

	now := l.now()
	var view GroupView
	err = l.run(ctx, "create", func(tx *storage.Tx) error {
		m, err := tx.Memberships.Lock(ctx, userID)
		if err != nil {
			return err
		}
		if m.InAnyGroup() {
			return ErrAlreadyInGroup
		}
		if until := m.CooldownUntil(kind); CooldownActive(until, now) {
			return ErrCooldownActive.Withf("you can create a new %s after %s",
				kind, time.Unix(until, 0).UTC().Format(time.RFC3339))
		}

		code, err := l.codes.Generate(ctx, kind, func(ctx context.Context, code string) (bool, error) {
			return tx.Groups.CodeExists(ctx, kind, code)
		})
		if err != nil {
			return err
		}

		group := models.Group{
			ID:          l.newID(),
			Kind:        kind,
			Name:        name,
			Code:        code,
			LeaderID:    userID,
			MemberCount: 1,
			MaxMembers:  l.maxMembers,
			LogoURL:     logoURL,
			CreatedAt:   now.Unix(),
			UpdatedAt:   now.Unix(),
		}
		if err := tx.Groups.InsertGroup(ctx, group); err != nil {
			if constraint, ok := storage.UniqueViolation(err); ok {
				switch constraint {
				case storage.ConstraintGroupCode:
					return ErrCodeGenerationExhausted
				case storage.ConstraintGroupLeader:
					return ErrAlreadyInGroup
				}
			}
			return err
		}
		if err := tx.Memberships.SetGroup(ctx, kind, userID, group.ID, now.Unix()); err != nil {
			return err
		}
		if _, err := tx.JoinRequests.WithdrawPending(ctx, userID, ""); err != nil {
			return err
		}

		view = GroupView{
			Group:   group,
			Members: []models.GroupMember{{UserID: userID, IsLeader: true, JoinedAt: now.Unix()}},
		}
		return nil
	})
	if err != nil {
		return GroupView{}, err
	}

	l.publish(ctx, models.GroupEvent{Type: models.EventGroupCreated, Kind: kind, GroupID: view.Group.ID, ActorID: userID, At: now.Unix()})
	return view, nil
}

func (l *Lifecycle) Join(ctx context.Context, userID string, kind models.GroupKind, inviteCode string) (models.GroupJoinRequest, error) {
	if err := checkCaller(userID, kind); err != nil {
		return models.GroupJoinRequest{}, err
	}
	code := NormalizeInviteCode(inviteCode)
	if code == "" {
		return models.GroupJoinRequest{}, ErrMissingField.Withf("invite code is required")
	}
	if !ValidInviteCode(kind, code) {
		return models.GroupJoinRequest{}, ErrGroupNotFound.Withf("no %s uses invite code %s", kind, code)
	}

	now := l.now()
	var req models.GroupJoinRequest
	err := l.run(ctx, "join", func(tx *storage.Tx) error {
		m, err := tx.Memberships.Get(ctx, userID)
		if err != nil {
			return err
		}
		if m.InAnyGroup() {
			return ErrAlreadyInGroup
		}

		group, err := tx.Groups.GetGroupByCodeForShare(ctx, kind, code)
		if err != nil {
			if storage.IsNotFound(err) {
				return ErrGroupNotFound.Withf("no %s uses invite code %s", kind, code)
			}
			return err
		}
		if group.IsFull() {
			return ErrGroupFull
		}

		// Create and ApproveJoin withdraw pending requests while holding this
		// row, so the request below cannot outlive the caller becoming a member.
		m, err = tx.Memberships.Lock(ctx, userID)
		if err != nil {
			return err
		}
		if m.InAnyGroup() {
			return ErrAlreadyInGroup
		}

		pending, err := tx.JoinRequests.HasPending(ctx, group.ID, userID)
		if err != nil {
			return err
		}
		if pending {
			return ErrDuplicateRequest
		}

		req = models.GroupJoinRequest{
			ID:          l.newID(),
			GroupID:     group.ID,
			RequesterID: userID,
			Status:      models.JoinRequestPending,
			CreatedAt:   now.Unix(),
		}
		if err := tx.JoinRequests.InsertPending(ctx, req); err != nil {
			if constraint, ok := storage.UniqueViolation(err); ok && constraint == storage.ConstraintOnePendingIndex {
				return ErrDuplicateRequest
			}
			return err
		}
		return nil
	})
	if err != nil {
		return models.GroupJoinRequest{}, err
	}

	l.publish(ctx, models.GroupEvent{Type: models.EventJoinRequested, Kind: kind, GroupID: req.GroupID, ActorID: userID, At: now.Unix()})
	return req, nil
}

// ApproveJoin admits the requester. The capacity guard runs before any
// membership row is locked, keeping the group-then-membership lock order.
func (l *Lifecycle) ApproveJoin(ctx context.Context, userID string, kind models.GroupKind, requestID string) (models.GroupJoinRequest, error) {
	if err := checkCaller(userID, kind); err != nil {
		return models.GroupJoinRequest{}, err
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return models.GroupJoinRequest{}, ErrMissingField.Withf("request id is required")
	}

	now := l.now()
	var req models.GroupJoinRequest
	err := l.run(ctx, "approve_join", func(tx *storage.Tx) error {
		var err error
		req, err = l.requestForLeader(ctx, tx, userID, kind, requestID)
		if err != nil {
			return err
		}

		requester, err := tx.Memberships.Get(ctx, req.RequesterID)
		if err != nil {
			return err
		}
		if requester.InAnyGroup() {
			return ErrRequesterInGroup
		}

		if err := ReserveSeat(ctx, tx, req.GroupID, now.Unix()); err != nil {
			return err
		}
		// The seat update holds the group row now; re-check what the
		// unlocked read saw.
		group, err := tx.Groups.GetGroupForUpdate(ctx, req.GroupID)
		if err != nil {
			return err
		}
		if group.LeaderID != userID {
			return ErrNotLeader
		}

		requester, err = tx.Memberships.Lock(ctx, req.RequesterID)
		if err != nil {
			return err
		}
		if requester.InAnyGroup() {
			return ErrRequesterInGroup
		}

		if err := tx.JoinRequests.PurgeResolved(ctx, req.GroupID, req.RequesterID); err != nil {
			return err
		}
		resolved, err := tx.JoinRequests.Resolve(ctx, req.ID, models.JoinRequestApproved, now.Unix(), userID)
		if err != nil {
			return err
		}
		if !resolved {
			return ErrRequestNotFound.Withf("join request is no longer pending")
		}
		if err := tx.Memberships.SetGroup(ctx, kind, req.RequesterID, req.GroupID, now.Unix()); err != nil {
			return err
		}
		if _, err := tx.JoinRequests.WithdrawPending(ctx, req.RequesterID, req.ID); err != nil {
			return err
		}

		req.Status = models.JoinRequestApproved
		req.ProcessedAt = now.Unix()
		req.ProcessedBy = userID
		return nil
	})
	if err != nil {
		return models.GroupJoinRequest{}, err
	}

	l.publish(ctx, models.GroupEvent{Type: models.EventJoinApproved, Kind: kind, GroupID: req.GroupID, ActorID: userID, TargetID: req.RequesterID, At: now.Unix()})
	return req, nil
}

func (l *Lifecycle) RejectJoin(ctx context.Context, userID string, kind models.GroupKind, requestID string) (models.GroupJoinRequest, error) {
	if err := checkCaller(userID, kind); err != nil {
		return models.GroupJoinRequest{}, err
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return models.GroupJoinRequest{}, ErrMissingField.Withf("request id is required")
	}

	now := l.now()
	var req models.GroupJoinRequest
	err := l.run(ctx, "reject_join", func(tx *storage.Tx) error {
		var err error
		req, err = l.requestForLeader(ctx, tx, userID, kind, requestID)
		if err != nil {
			return err
		}

		resolved, err := tx.JoinRequests.Resolve(ctx, req.ID, models.JoinRequestRejected, now.Unix(), userID)
		if err != nil {
			return err
		}
		if !resolved {
			return ErrRequestNotFound.Withf("join request is no longer pending")
		}

		req.Status = models.JoinRequestRejected
		req.ProcessedAt = now.Unix()
		req.ProcessedBy = userID
		return nil
	})
	if err != nil {
		return models.GroupJoinRequest{}, err
	}

	l.publish(ctx, models.GroupEvent{Type: models.EventJoinRejected, Kind: kind, GroupID: req.GroupID, ActorID: userID, TargetID: req.RequesterID, At: now.Unix()})
	return req, nil
}

// CancelRequest withdraws the caller's own pending request to groupID.
func (l *Lifecycle) CancelRequest(ctx context.Context, userID string, kind models.GroupKind, groupID string) error {
	if err := checkCaller(userID, kind); err != nil {
		return err
	}
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return ErrMissingField.Withf("group id is required")
	}

	now := l.now()
	err := l.run(ctx, "cancel_request", func(tx *storage.Tx) error {
		group, err := tx.Groups.GetGroup(ctx, groupID)
		if err != nil {
			if storage.IsNotFound(err) {
				return ErrRequestNotFound
			}
			return err
		}
		if group.Kind != kind {
			return ErrRequestNotFound
		}

		deleted, err := tx.JoinRequests.DeletePending(ctx, groupID, userID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrRequestNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.publish(ctx, models.GroupEvent{Type: models.EventRequestCancelled, Kind: kind, GroupID: groupID, ActorID: userID, At: now.Unix()})
	return nil
}

func (l *Lifecycle) Leave(ctx context.Context, userID string, kind models.GroupKind) error {
	if err := checkCaller(userID, kind); err != nil {
		return err
	}

	now := l.now()
	var groupID string
	err := l.run(ctx, "leave", func(tx *storage.Tx) error {
		group, err := l.callerGroup(ctx, tx, userID, kind)
		if err != nil {
			return err
		}
		if group.LeaderID == userID {
			return ErrLeaderCannotLeave
		}
		groupID = group.ID

		cleared, err := tx.Memberships.ClearGroup(ctx, kind, userID, group.ID, now.Unix())
		if err != nil {
			return err
		}
		if !cleared {
			return ErrNotInGroup
		}
		_, err = tx.Groups.ResyncMemberCount(ctx, kind, group.ID, now.Unix())
		return err
	})
	if err != nil {
		return err
	}

	l.publish(ctx, models.GroupEvent{Type: models.EventMemberLeft, Kind: kind, GroupID: groupID, ActorID: userID, At: now.Unix()})
	return nil
}

// KickMember checks, in order: caller leads the group, target is not the
// caller, target belongs to the group.
func (l *Lifecycle) KickMember(ctx context.Context, userID string, kind models.GroupKind, targetUserID string) error {
	if err := checkCaller(userID, kind); err != nil {
		return err
	}
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		return ErrMissingField.Withf("target user id is required")
	}

	now := l.now()
	var groupID string
	err := l.run(ctx, "kick_member", func(tx *storage.Tx) error {
		group, err := l.leaderGroup(ctx, tx, userID, kind)
		if err != nil {
			return err
		}
		if targetUserID == userID {
			return ErrCannotKickSelf
		}
		groupID = group.ID

		cleared, err := tx.Memberships.ClearGroup(ctx, kind, targetUserID, group.ID, now.Unix())
		if err != nil {
			return err
		}
		if !cleared {
			return ErrTargetNotMember
		}
		_, err = tx.Groups.ResyncMemberCount(ctx, kind, group.ID, now.Unix())
		return err
	})
	if err != nil {
		return err
	}

	l.publish(ctx, models.GroupEvent{Type: models.EventMemberKicked, Kind: kind, GroupID: groupID, ActorID: userID, TargetID: targetUserID, At: now.Unix()})
	return nil
}

func (l *Lifecycle) TransferLeadership(ctx context.Context, userID string, kind models.GroupKind, targetUserID string) (models.Group, error) {
	if err := checkCaller(userID, kind); err != nil {
		return models.Group{}, err
	}
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		return models.Group{}, ErrMissingField.Withf("target user id is required")
	}

	now := l.now()
	var group models.Group
	err := l.run(ctx, "transfer_leadership", func(tx *storage.Tx) error {
		var err error
		group, err = l.leaderGroup(ctx, tx, userID, kind)
		if err != nil {
			return err
		}
		if targetUserID == userID {
			return ErrCannotTransferToSelf
		}

		target, err := tx.Memberships.Lock(ctx, targetUserID)
		if err != nil {
			return err
		}
		if target.GroupID(kind) != group.ID {
			return ErrTargetNotMember
		}

		if err := tx.Groups.SetLeader(ctx, group.ID, targetUserID, now.Unix()); err != nil {
			return err
		}
		group.LeaderID = targetUserID
		group.UpdatedAt = now.Unix()
		return nil
	})
	if err != nil {
		return models.Group{}, err
	}

	l.publish(ctx, models.GroupEvent{Type: models.EventLeadershipTransfer, Kind: kind, GroupID: group.ID, ActorID: userID, TargetID: targetUserID, At: now.Unix()})
	return group, nil
}

// UpdateSettings renames the group and sets its MOTD. Leadership is checked
// before the new name is validated.
func (l *Lifecycle) UpdateSettings(ctx context.Context, userID string, kind models.GroupKind, name, motd string) (models.Group, error) {
	if err := checkCaller(userID, kind); err != nil {
		return models.Group{}, err
	}
	motd = SanitizeMOTD(motd)

	now := l.now()
	var group models.Group
	err := l.run(ctx, "update_settings", func(tx *storage.Tx) error {
		var err error
		group, err = l.leaderGroup(ctx, tx, userID, kind)
		if err != nil {
			return err
		}
		if name, err = ValidateName(name); err != nil {
			return err
		}
		if err := tx.Groups.UpdateSettings(ctx, group.ID, name, motd, now.Unix()); err != nil {
			return err
		}
		group.Name = name
		group.MOTD = motd
		group.UpdatedAt = now.Unix()
		return nil
	})
	if err != nil {
		return models.Group{}, err
	}

	l.publish(ctx, models.GroupEvent{Type: models.EventSettingsUpdated, Kind: kind, GroupID: group.ID, ActorID: userID, At: now.Unix()})
	return group, nil
}

// UpdateLogo stores logoURL on the caller's group. An empty URL clears the logo.
func (l *Lifecycle) UpdateLogo(ctx context.Context, userID string, kind models.GroupKind, logoURL string) (models.Group, error) {
	if err := checkCaller(userID, kind); err != nil {
		return models.Group{}, err
	}
	logoURL = strings.TrimSpace(logoURL)

	now := l.now()
	var group models.Group
	err := l.run(ctx, "update_logo", func(tx *storage.Tx) error {
		var err error
		group, err = l.leaderGroup(ctx, tx, userID, kind)
		if err != nil {
			return err
		}
		if logoURL != "" {
			if err := l.logos.ValidateLogo(ctx, logoURL); err != nil {
				return err
			}
		}
		if err := tx.Groups.UpdateLogo(ctx, group.ID, logoURL, now.Unix()); err != nil {
			return err
		}
		group.LogoURL = logoURL
		group.UpdatedAt = now.Unix()
		return nil
	})
	if err != nil {
		return models.Group{}, err
	}

	l.publish(ctx, models.GroupEvent{Type: models.EventLogoUpdated, Kind: kind, GroupID: group.ID, ActorID: userID, At: now.Unix()})
	return group, nil
}

// Dissolve releases every member, stamps cooldowns and deletes the group.
func (l *Lifecycle) Dissolve(ctx context.Context, userID string, kind models.GroupKind) (DissolveResult, error) {
	if err := checkCaller(userID, kind); err != nil {
		return DissolveResult{}, err
	}

	now := l.now()
	var result DissolveResult
	err := l.run(ctx, "dissolve", func(tx *storage.Tx) error {
		group, err := l.leaderGroup(ctx, tx, userID, kind)
		if err != nil {
			return err
		}

		leaderUntil, memberUntil := l.cooldowns.Schedule(now)
		released, err := tx.Memberships.Dissolve(ctx, kind, group.ID, userID, leaderUntil, memberUntil, now.Unix())
		if err != nil {
			return err
		}
		if err := tx.Groups.DeleteGroup(ctx, group.ID); err != nil {
			return err
		}

		result = DissolveResult{
			GroupID:             group.ID,
			ReleasedMembers:     released,
			LeaderCooldownUntil: leaderUntil,
			MemberCooldownUntil: memberUntil,
		}
		return nil
	})
	if err != nil {
		return DissolveResult{}, err
	}

	l.publish(ctx, models.GroupEvent{Type: models.EventGroupDissolved, Kind: kind, GroupID: result.GroupID, ActorID: userID, At: now.Unix()})
	return result, nil
}

// callerGroup locks and returns the group of kind the caller belongs to.
func (l *Lifecycle) callerGroup(ctx context.Context, tx *storage.Tx, userID string, kind models.GroupKind) (models.Group, error) {
	m, err := tx.Memberships.Get(ctx, userID)
	if err != nil {
		return models.Group{}, err
	}
	groupID := m.GroupID(kind)
	if groupID == "" {
		return models.Group{}, ErrNotInGroup
	}

	group, err := tx.Groups.GetGroupForUpdate(ctx, groupID)
	if err != nil {
		if storage.IsNotFound(err) {
			return models.Group{}, ErrNotInGroup
		}
		return models.Group{}, err
	}
	return group, nil
}

func (l *Lifecycle) leaderGroup(ctx context.Context, tx *storage.Tx, userID string, kind models.GroupKind) (models.Group, error) {
	group, err := l.callerGroup(ctx, tx, userID, kind)
	if err != nil {
		return models.Group{}, err
	}
	if group.LeaderID != userID {
		return models.Group{}, ErrNotLeader
	}
	return group, nil
}

// requestForLeader loads a pending request and checks that the caller leads,
// and belongs to, the group it targets.
func (l *Lifecycle) requestForLeader(ctx context.Context, tx *storage.Tx, userID string, kind models.GroupKind, requestID string) (models.GroupJoinRequest, error) {
	req, err := tx.JoinRequests.GetRequest(ctx, requestID)
	if err != nil {
		if storage.IsNotFound(err) {
			return models.GroupJoinRequest{}, ErrRequestNotFound
		}
		return models.GroupJoinRequest{}, err
	}

	group, err := tx.Groups.GetGroup(ctx, req.GroupID)
	if err != nil {
		if storage.IsNotFound(err) {
			return models.GroupJoinRequest{}, ErrRequestNotFound
		}
		return models.GroupJoinRequest{}, err
	}
	if group.Kind != kind {
		return models.GroupJoinRequest{}, ErrRequestNotFound
	}
	if group.LeaderID != userID {
		return models.GroupJoinRequest{}, ErrNotLeader
	}

	caller, err := tx.Memberships.Get(ctx, userID)
	if err != nil {
		return models.GroupJoinRequest{}, err
	}
	if caller.GroupID(kind) != group.ID {
		return models.GroupJoinRequest{}, ErrNotInGroup
	}

	if req.Status != models.JoinRequestPending {
		return models.GroupJoinRequest{}, ErrRequestNotFound.Withf("join request is no longer pending")
	}
	return req, nil
}

// run executes fn in a transaction. Rule violations come back unchanged;
// anything else is logged and reported as ErrInternal.
func (l *Lifecycle) run(ctx context.Context, op string, fn func(tx *storage.Tx) error) error {
	err := l.store.InTx(ctx, fn)
	if err == nil {
		l.metrics.Inc("group_" + op + "_total")
		return nil
	}

	var svcErr *Error
	if errors.As(err, &svcErr) {
		l.metrics.Inc("group_" + op + "_rejected_total")
		return svcErr
	}

	l.metrics.Inc("group_" + op + "_failed_total")
	l.logger.Error("group operation failed", "op", op, "error", err)
	return ErrInternal
}

func (l *Lifecycle) publish(ctx context.Context, event models.GroupEvent) {
	if err := l.events.Publish(ctx, event); err != nil {
		l.logger.Warn("publish group event failed", "type", event.Type, "group_id", event.GroupID, "error", err)
	}
}

func checkCaller(userID string, kind models.GroupKind) error {
	if !kind.Valid() {
		return ErrInvalidKind
	}
	if strings.TrimSpace(userID) == "" {
		return ErrMissingField.Withf("user id is required")
	}
	return nil
}
