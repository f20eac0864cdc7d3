package services

import (
	"errors"
	"fmt"
)

// ErrorKind groups failures by how a caller should react to them.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindStateConflict     ErrorKind = "state_conflict"
	KindNotFound          ErrorKind = "not_found"
	KindCapacityExceeded  ErrorKind = "capacity_exceeded"
	KindResourceExhausted ErrorKind = "resource_exhausted"
	KindInternal          ErrorKind = "internal"
)

// Error is a user-facing failure. Two errors match under errors.Is when their
// codes are equal, so messages can be specialised per call site.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Withf returns a copy of e carrying a formatted message.
func (e *Error) Withf(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrInvalidName   = newError(KindValidation, "invalid_name", "name must be 3-20 letters, digits or spaces")
	ErrInvalidKind   = newError(KindValidation, "invalid_kind", "group kind must be gang or family")
	ErrMissingField  = newError(KindValidation, "missing_field", "a required field is missing")
	ErrInvalidLogo   = newError(KindValidation, "invalid_logo", "logo url is not allowed")
	ErrUnknownAction = newError(KindValidation, "unknown_action", "unknown action")

	ErrAlreadyInGroup       = newError(KindStateConflict, "already_in_group", "you already belong to a gang or family")
	ErrCooldownActive       = newError(KindStateConflict, "cooldown_active", "you cannot create a new group yet")
	ErrNotLeader            = newError(KindStateConflict, "not_leader", "only the leader can do that")
	ErrNotInGroup           = newError(KindStateConflict, "not_in_group", "you are not in a group of this kind")
	ErrLeaderCannotLeave    = newError(KindStateConflict, "leader_cannot_leave", "the leader must transfer leadership or dissolve the group")
	ErrCannotKickSelf       = newError(KindStateConflict, "cannot_kick_self", "you cannot kick yourself")
	ErrTargetNotMember      = newError(KindStateConflict, "target_not_member", "that user is not a member of your group")
	ErrCannotTransferToSelf = newError(KindStateConflict, "cannot_transfer_to_self", "you are already the leader")
	ErrDuplicateRequest     = newError(KindStateConflict, "duplicate_request", "you already have a pending request for this group")
	ErrRequesterInGroup     = newError(KindStateConflict, "requester_in_group", "the requester already belongs to a gang or family")

	ErrGroupNotFound   = newError(KindNotFound, "group_not_found", "group not found")
	ErrRequestNotFound = newError(KindNotFound, "request_not_found", "join request not found")

	ErrGroupFull = newError(KindCapacityExceeded, "group_full", "the group is full")

	ErrCodeGenerationExhausted = newError(KindResourceExhausted, "code_generation_exhausted", "could not allocate an invite code, please try again")

	ErrInternal = newError(KindInternal, "internal", "internal error")
)

// AsError extracts the user-facing error from err. Anything that is not an
// *Error is reported as ErrInternal.
func AsError(err error) *Error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return ErrInternal
}
