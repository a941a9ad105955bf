package moderation

import (
	"context"
	"errors"
	"time"
)

// Thresholds drive automatic escalation on active warning counts.
type Thresholds struct {
	Mute         int
	Ban          int
	MuteDuration time.Duration
}

// DefaultThresholds mutes for an hour at three warnings and bans at five.
func DefaultThresholds() Thresholds {
	return Thresholds{Mute: 3, Ban: 5, MuteDuration: time.Hour}
}

// Escalation returns the automatic action for count, if any. Ban wins over mute.
func (t Thresholds) Escalation(count int) (ActionKind, time.Duration, bool) {
	if t.Ban > 0 && count >= t.Ban {
		return KindBan, 0, true
	}
	if t.Mute > 0 && count >= t.Mute {
		return KindMute, t.MuteDuration, true
	}
	return "", 0, false
}

// Accumulator records warnings and counts the active ones per member.
type Accumulator struct {
	store      Store
	clock      Clock
	thresholds Thresholds
	newID      func(time.Time) string
}

// NewAccumulator uses SystemClock when clock is nil.
func NewAccumulator(store Store, clock Clock, thresholds Thresholds) *Accumulator {
	if clock == nil {
		clock = SystemClock
	}
	return &Accumulator{store: store, clock: clock, thresholds: thresholds, newID: NewWarningID}
}

// Thresholds returns the escalation thresholds in use.
func (a *Accumulator) Thresholds() Thresholds { return a.thresholds }

// Add stores a warning together with its journal entry and returns the new
// active count. The journal entry is best effort once the warning exists.
func (a *Accumulator) Add(ctx context.Context, guildID, targetID, actorID, reason string) (Warning, Sanction, int, error) {
	now := a.clock.Now().UTC()
	w := Warning{
		ID:        a.newID(now),
		GuildID:   guildID,
		TargetID:  targetID,
		ActorID:   actorID,
		Reason:    TruncateReason(reason),
		Active:    true,
		CreatedAt: now,
	}
	if err := a.store.CreateWarning(ctx, w); err != nil {
		return Warning{}, Sanction{}, 0, &PersistenceError{Op: "create warning", Err: err}
	}

	var errs []error
	sanction := NewSanction(guildID, targetID, actorID, KindWarn, w.Reason, 0, now)
	sanction.Metadata = map[string]string{"warning_id": w.ID}
	id, err := a.store.CreateSanction(ctx, sanction)
	if err != nil {
		errs = append(errs, &PersistenceError{Op: "create sanction", Err: err})
	} else {
		sanction.ID = id
	}

	count, err := a.store.CountActiveWarnings(ctx, guildID, targetID)
	if err != nil {
		errs = append(errs, &PersistenceError{Op: "count warnings", Err: err})
	}
	return w, sanction, count, errors.Join(errs...)
}

// CountActive returns the active warning count for a member.
func (a *Accumulator) CountActive(ctx context.Context, guildID, targetID string) (int, error) {
	n, err := a.store.CountActiveWarnings(ctx, guildID, targetID)
	if err != nil {
		return 0, &PersistenceError{Op: "count warnings", Err: err}
	}
	return n, nil
}

// Active lists a member's active warnings, newest first.
func (a *Accumulator) Active(ctx context.Context, guildID, targetID string) ([]Warning, error) {
	ws, err := a.store.ActiveWarnings(ctx, guildID, targetID)
	if err != nil {
		return nil, &PersistenceError{Op: "list warnings", Err: err}
	}
	return ws, nil
}

// Remove deactivates one warning. Unknown or already removed warnings return ErrNotFound.
func (a *Accumulator) Remove(ctx context.Context, guildID, warningID, removedBy, reason string) (Warning, error) {
	w, wasActive, err := a.store.DeactivateWarning(ctx, guildID, warningID, removedBy, TruncateReason(reason), a.clock.Now().UTC())
	if errors.Is(err, ErrNotFound) {
		return Warning{}, ErrNotFound
	}
	if err != nil {
		return Warning{}, &PersistenceError{Op: "remove warning", Err: err}
	}
	if !wasActive {
		return w, ErrNotFound
	}
	return w, nil
}

// ClearFor deactivates every active warning of a member, e.g. when they leave.
func (a *Accumulator) ClearFor(ctx context.Context, guildID, targetID, removedBy, reason string) (int, error) {
	n, err := a.store.DeactivateWarningsFor(ctx, guildID, targetID, removedBy, TruncateReason(reason), a.clock.Now().UTC())
	if err != nil {
		return 0, &PersistenceError{Op: "clear warnings", Err: err}
	}
	return n, nil
}
