package moderation

import (
	"context"
	"time"
)

// DefaultHistoryLimit is used when a history query passes limit <= 0.
const DefaultHistoryLimit = 50

// SanctionFilter narrows ActiveSanctions; empty fields match everything.
type SanctionFilter struct {
	TargetID string
	Kind     ActionKind
}

// SanctionStore is the append-only sanction journal.
type SanctionStore interface {
	CreateSanction(ctx context.Context, s Sanction) (int64, error)
	Sanction(ctx context.Context, id int64) (Sanction, error)
	// ActiveSanctions returns newest first.
	ActiveSanctions(ctx context.Context, guildID string, filter SanctionFilter) ([]Sanction, error)
	// ExpiredSanctions returns active sanctions whose expiry is at or before now.
	ExpiredSanctions(ctx context.Context, now time.Time) ([]Sanction, error)
	// DeactivateSanction is idempotent: an already inactive sanction is left
	// as is and nil is returned. Unknown ids return ErrNotFound.
	DeactivateSanction(ctx context.Context, id int64) error
	// SanctionHistory returns newest first, at most limit rows.
	SanctionHistory(ctx context.Context, guildID, targetID string, limit int) ([]Sanction, error)
}

// WarningStore keeps warnings; removal is a soft delete.
type WarningStore interface {
	CreateWarning(ctx context.Context, w Warning) error
	Warning(ctx context.Context, guildID, id string) (Warning, error)
	ActiveWarnings(ctx context.Context, guildID, targetID string) ([]Warning, error)
	CountActiveWarnings(ctx context.Context, guildID, targetID string) (int, error)
	// DeactivateWarning returns the updated warning and whether it was active before.
	DeactivateWarning(ctx context.Context, guildID, id, removedBy, reason string, at time.Time) (Warning, bool, error)
	DeactivateWarningsFor(ctx context.Context, guildID, targetID, removedBy, reason string, at time.Time) (int, error)
}

// ReversionStore persists armed reversions so they survive restarts.
type ReversionStore interface {
	SaveReversion(ctx context.Context, r Reversion) error
	Reversion(ctx context.Context, sanctionID int64) (Reversion, error)
	PendingReversions(ctx context.Context) ([]Reversion, error)
	PendingReversionsFor(ctx context.Context, guildID, targetID string, kind ActionKind) ([]Reversion, error)
	// TransitionReversion moves a pending row to state and reports whether it
	// was still pending. Rows in any other state are left untouched.
	TransitionReversion(ctx context.Context, sanctionID int64, state ReversionState, note string, at time.Time) (bool, error)
}

// PolicyStore keeps one GuildPolicy per guild, created on first read.
type PolicyStore interface {
	GuildPolicy(ctx context.Context, guildID string) (GuildPolicy, error)
	UpdateGuildPolicy(ctx context.Context, guildID string, u PolicyUpdate) (GuildPolicy, error)
}

// Store is everything the lifecycle persists.
type Store interface {
	SanctionStore
	WarningStore
	ReversionStore
	PolicyStore
}
