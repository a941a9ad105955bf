package moderation

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDuration is returned for text that is not <int><s|m|h|d>, or is zero.
	ErrInvalidDuration = errors.New("invalid duration format")
	// ErrDurationTooLong is returned when a duration exceeds the caller's maximum.
	ErrDurationTooLong = errors.New("duration exceeds maximum")
	// ErrPermissionDenied matches every *PermissionDeniedError via errors.Is.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrTimerLost marks a pending reversion whose in-process timer no longer existed when it came due.
	ErrTimerLost = errors.New("scheduled reversion lost its timer")
	// ErrNotFound is returned by stores for unknown ids.
	ErrNotFound = errors.New("record not found")
)

// DenialReason is a stable, translatable code for why a request was refused.
type DenialReason string

const (
	DenialNone              DenialReason = ""
	DenialNotPrivileged     DenialReason = "not_privileged"
	DenialSelf              DenialReason = "self_action"
	DenialTargetOwner       DenialReason = "target_owner"
	DenialTargetRank        DenialReason = "target_rank"
	DenialTargetBot         DenialReason = "target_bot"
	DenialBotRank           DenialReason = "bot_rank"
	DenialBotMissingPerm    DenialReason = "bot_missing_permission"
	DenialInvalidDuration   DenialReason = "invalid_duration"
	DenialDurationTooLong   DenialReason = "duration_too_long"
	DenialAlreadyMuted      DenialReason = "already_muted"
	DenialNotMuted          DenialReason = "not_muted"
	DenialAlreadyLocked     DenialReason = "already_locked"
	DenialNotLocked         DenialReason = "not_locked"
	DenialNotBanned         DenialReason = "not_banned"
	DenialUnknownWarning    DenialReason = "unknown_warning"
	DenialUnsupportedLang   DenialReason = "unsupported_language"
	DenialInvalidRequest    DenialReason = "invalid_request"
	DenialPlatform          DenialReason = "platform_error"
	DenialPlatformForbidden DenialReason = "platform_forbidden"
	DenialPersistence       DenialReason = "persistence_error"
	DenialInternal          DenialReason = "internal_error"
)

// PermissionDeniedError is returned by the evaluator. Missing is set when the
// bot lacks a capability.
type PermissionDeniedError struct {
	Reason  DenialReason
	Missing Capability
}

func (e *PermissionDeniedError) Error() string {
	if e.Missing != 0 {
		return fmt.Sprintf("permission denied: %s (missing %s)", e.Reason, e.Missing)
	}
	return fmt.Sprintf("permission denied: %s", e.Reason)
}

func (e *PermissionDeniedError) Is(target error) bool { return target == ErrPermissionDenied }

func deny(reason DenialReason) error { return &PermissionDeniedError{Reason: reason} }

// PersistenceError wraps a storage failure. When returned after a platform
// mutation, the effect happened but the audit trail may be incomplete.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persistence %s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// Discord JSON error codes the lifecycle reacts to.
const (
	CodeUnknownChannel     = 10003
	CodeUnknownMember      = 10007
	CodeUnknownRole        = 10011
	CodeUnknownUser        = 10013
	CodeUnknownBan         = 10026
	CodeMissingAccess      = 50001
	CodeMissingPermissions = 50013
)

// PlatformError carries the chat platform's rejection of a mutation.
type PlatformError struct {
	Op      string
	Code    int
	Status  int
	Message string
	Err     error
}

func (e *PlatformError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("platform %s failed (code %d): %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("platform %s failed: %s", e.Op, e.Message)
}

func (e *PlatformError) Unwrap() error { return e.Err }

// IsPlatformCode reports whether err carries the given platform error code.
func IsPlatformCode(err error, code int) bool {
	var pe *PlatformError
	return errors.As(err, &pe) && pe.Code == code
}

// ReasonFor maps an error from the lifecycle onto the denial reason shown to the requester.
func ReasonFor(err error) DenialReason {
	if err == nil {
		return DenialNone
	}
	var pd *PermissionDeniedError
	if errors.As(err, &pd) {
		return pd.Reason
	}
	switch {
	case errors.Is(err, ErrInvalidDuration):
		return DenialInvalidDuration
	case errors.Is(err, ErrDurationTooLong):
		return DenialDurationTooLong
	}
	var pe *PlatformError
	if errors.As(err, &pe) {
		if pe.Code == CodeMissingPermissions || pe.Code == CodeMissingAccess {
			return DenialPlatformForbidden
		}
		return DenialPlatform
	}
	var se *PersistenceError
	if errors.As(err, &se) {
		return DenialPersistence
	}
	return DenialInternal
}
