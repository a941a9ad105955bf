package moderation

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxReasonLength bounds stored reasons, in runes.
const MaxReasonLength = 1000

// TruncateReason trims reason to MaxReasonLength runes.
func TruncateReason(reason string) string {
	if utf8.RuneCountInString(reason) <= MaxReasonLength {
		return reason
	}
	runes := []rune(reason)
	return string(runes[:MaxReasonLength])
}

// Sanction is one entry of the append-only moderation journal. Only Active
// changes after creation.
type Sanction struct {
	ID        int64
	GuildID   string
	TargetID  string
	ActorID   string
	Kind      ActionKind
	Reason    string
	Duration  time.Duration
	ExpiresAt *time.Time
	Active    bool
	Metadata  map[string]string
	CreatedAt time.Time
}

// NewSanction builds a normalized sanction: ExpiresAt is set exactly when
// duration is positive and the reason is truncated.
func NewSanction(guildID, targetID, actorID string, kind ActionKind, reason string, duration time.Duration, now time.Time) Sanction {
	s := Sanction{
		GuildID:   guildID,
		TargetID:  targetID,
		ActorID:   actorID,
		Kind:      kind,
		Reason:    TruncateReason(reason),
		Active:    true,
		CreatedAt: now.UTC(),
	}
	if duration > 0 {
		exp := s.CreatedAt.Add(duration)
		s.Duration = duration
		s.ExpiresAt = &exp
	}
	return s
}

// Permanent reports whether the sanction has no expiry.
func (s Sanction) Permanent() bool { return s.ExpiresAt == nil }

// Warning is a single warning; removal keeps the row and records who removed it.
type Warning struct {
	ID           string
	GuildID      string
	TargetID     string
	ActorID      string
	Reason       string
	Active       bool
	CreatedAt    time.Time
	RemovedAt    *time.Time
	RemovedBy    string
	RemoveReason string
}

// NewWarningID returns warn_<unix-ms>_<8 hex chars>.
func NewWarningID(now time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("warn_%d_%x", now.UnixMilli(), id[:4])
}

// ReversionState tracks a scheduled reversion through its lifecycle. Only
// pending rows can transition, and each transition happens once.
type ReversionState string

const (
	ReversionPending    ReversionState = "pending"
	ReversionReverted   ReversionState = "reverted"
	ReversionSuperseded ReversionState = "superseded"
	ReversionCancelled  ReversionState = "cancelled"
	ReversionFailed     ReversionState = "failed"
)

// ChannelOverwrite is the @everyone overwrite of a channel before it was locked.
type ChannelOverwrite struct {
	Exists bool  `json:"exists"`
	Allow  int64 `json:"allow,string"`
	Deny   int64 `json:"deny,string"`
}

// RevertPayload holds what the inverse action needs.
type RevertPayload struct {
	MuteRoleID string            `json:"mute_role_id,omitempty"`
	ChannelID  string            `json:"channel_id,omitempty"`
	Original   *ChannelOverwrite `json:"original,omitempty"`
}

// Reversion is a persisted request to undo a temporary sanction at DueAt.
type Reversion struct {
	SanctionID int64
	GuildID    string
	TargetID   string
	Kind       ActionKind
	DueAt      time.Time
	State      ReversionState
	Payload    RevertPayload
	Attempts   int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Key is the per-target serialization key used by the scheduler and service.
func (r Reversion) Key() string { return TargetKey(r.GuildID, r.TargetID) }

// TargetKey identifies a (guild, target) pair.
func TargetKey(guildID, targetID string) string { return guildID + ":" + targetID }

// PurgeResult reports a bulk message deletion.
type PurgeResult struct {
	Deleted int
	Skipped int
}
