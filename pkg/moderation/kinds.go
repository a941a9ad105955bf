// Package moderation implements the moderation-action lifecycle: privilege and
// hierarchy checks, sanction bookkeeping, warning escalation and the persisted
// scheduler that reverts temporary actions.
package moderation

import "strings"

// ActionKind names a moderation action as stored in the sanctions table.
type ActionKind string

const (
	KindBan     ActionKind = "ban"
	KindUnban   ActionKind = "unban"
	KindKick    ActionKind = "kick"
	KindMute    ActionKind = "mute"
	KindUnmute  ActionKind = "unmute"
	KindWarn    ActionKind = "warn"
	KindUnwarn  ActionKind = "unwarn"
	KindClear   ActionKind = "clear"
	KindLock    ActionKind = "lock"
	KindUnlock  ActionKind = "unlock"
	KindSetLang ActionKind = "setlang"
)

var allKinds = []ActionKind{
	KindBan, KindUnban, KindKick, KindMute, KindUnmute, KindWarn,
	KindUnwarn, KindClear, KindLock, KindUnlock, KindSetLang,
}

// Kinds returns every known action kind.
func Kinds() []ActionKind {
	out := make([]ActionKind, len(allKinds))
	copy(out, allKinds)
	return out
}

// ParseKind accepts a kind name case-insensitively.
func ParseKind(s string) (ActionKind, bool) {
	k := ActionKind(strings.ToLower(strings.TrimSpace(s)))
	return k, k.Valid()
}

func (k ActionKind) Valid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k ActionKind) String() string { return string(k) }

// NeedsHierarchy reports whether the action targets a member and must pass the
// rank comparison. Unban targets a user who is no longer a member.
func (k ActionKind) NeedsHierarchy() bool {
	switch k {
	case KindBan, KindKick, KindMute, KindUnmute, KindWarn:
		return true
	}
	return false
}

// Temporary reports whether the action accepts a duration and can be armed for reversion.
func (k ActionKind) Temporary() bool {
	return k == KindMute || k == KindLock
}

// Inverse returns the action that undoes k.
func (k ActionKind) Inverse() (ActionKind, bool) {
	switch k {
	case KindBan:
		return KindUnban, true
	case KindMute:
		return KindUnmute, true
	case KindLock:
		return KindUnlock, true
	case KindWarn:
		return KindUnwarn, true
	}
	return "", false
}

// ChannelTarget is the target id recorded for channel-scoped sanctions.
func ChannelTarget(channelID string) string {
	return "channel_" + channelID
}

// BulkTarget is the target id recorded for a /clear without a user filter.
const BulkTarget = "bulk"
