package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/small-frappuccino/modcore/pkg/log"
	"github.com/small-frappuccino/modcore/pkg/moderation"
)

type reversionRow struct {
	SanctionID int64  `db:"sanction_id"`
	GuildID    string `db:"guild_id"`
	TargetID   string `db:"target_id"`
	Kind       string `db:"kind"`
	DueAt      int64  `db:"due_at"`
	State      string `db:"state"`
	Payload    string `db:"payload"`
	Attempts   int    `db:"attempts"`
	LastError  string `db:"last_error"`
	CreatedAt  int64  `db:"created_at"`
	UpdatedAt  int64  `db:"updated_at"`
}

const reversionColumns = `sanction_id, guild_id, target_id, kind, due_at, state, payload, attempts, last_error, created_at, updated_at`

func (r reversionRow) toReversion() (moderation.Reversion, error) {
	rev := moderation.Reversion{
		SanctionID: r.SanctionID,
		GuildID:    r.GuildID,
		TargetID:   r.TargetID,
		Kind:       moderation.ActionKind(r.Kind),
		DueAt:      fromMS(r.DueAt),
		State:      moderation.ReversionState(r.State),
		Attempts:   r.Attempts,
		LastError:  r.LastError,
		CreatedAt:  fromMS(r.CreatedAt),
		UpdatedAt:  fromMS(r.UpdatedAt),
	}
	if r.Payload != "" {
		if err := json.Unmarshal([]byte(r.Payload), &rev.Payload); err != nil {
			return rev, fmt.Errorf("reversion %d: decode payload: %w", r.SanctionID, err)
		}
	}
	return rev, nil
}

// toReversions skips rows whose payload cannot be decoded. Such a row stays
// pending in the table and is reported on every listing.
func toReversions(rows []reversionRow) []moderation.Reversion {
	out := make([]moderation.Reversion, 0, len(rows))
	for _, r := range rows {
		rev, err := r.toReversion()
		if err != nil {
			log.DatabaseLogger().Error("Skipping reversion with corrupt payload", "sanctionID", r.SanctionID, "error", err)
			continue
		}
		out = append(out, rev)
	}
	return out
}

// SaveReversion inserts or replaces the reversion row of a sanction.
func (s *Store) SaveReversion(ctx context.Context, r moderation.Reversion) error {
	if r.SanctionID <= 0 {
		return fmt.Errorf("save reversion: missing sanction id")
	}
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Errorf("save reversion: encode payload: %w", err)
	}
	state := r.State
	if state == "" {
		state = moderation.ReversionPending
	}
	now := s.now()
	created, updated := r.CreatedAt, r.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = created
	}
	return s.exec("save_reversion", func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO pending_reversions (sanction_id, guild_id, target_id, kind, due_at, state, payload, attempts, last_error, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(sanction_id) DO UPDATE SET
			   due_at     = excluded.due_at,
			   state      = excluded.state,
			   payload    = excluded.payload,
			   attempts   = excluded.attempts,
			   last_error = excluded.last_error,
			   updated_at = excluded.updated_at`,
			r.SanctionID, r.GuildID, r.TargetID, string(r.Kind), ms(r.DueAt), string(state),
			string(payload), r.Attempts, r.LastError, ms(created), ms(updated),
		)
		return err
	})
}

// Reversion loads the reversion row of a sanction.
func (s *Store) Reversion(ctx context.Context, sanctionID int64) (moderation.Reversion, error) {
	var row reversionRow
	found, err := s.getOne(ctx, "get_reversion", &row,
		`SELECT `+reversionColumns+` FROM pending_reversions WHERE sanction_id = ?`, sanctionID)
	if err != nil {
		return moderation.Reversion{}, err
	}
	if !found {
		return moderation.Reversion{}, fmt.Errorf("reversion %d: %w", sanctionID, moderation.ErrNotFound)
	}
	return row.toReversion()
}

// PendingReversions lists every pending row by due time.
func (s *Store) PendingReversions(ctx context.Context) ([]moderation.Reversion, error) {
	var rows []reversionRow
	err := s.exec("pending_reversions", func() error {
		return s.db.SelectContext(ctx, &rows,
			`SELECT `+reversionColumns+` FROM pending_reversions
			 WHERE state = ? ORDER BY due_at ASC, sanction_id ASC`, string(moderation.ReversionPending))
	})
	if err != nil {
		return nil, err
	}
	return toReversions(rows), nil
}

// PendingReversionsFor lists pending rows for one target and kind.
func (s *Store) PendingReversionsFor(ctx context.Context, guildID, targetID string, kind moderation.ActionKind) ([]moderation.Reversion, error) {
	var rows []reversionRow
	err := s.exec("pending_reversions_for", func() error {
		return s.db.SelectContext(ctx, &rows,
			`SELECT `+reversionColumns+` FROM pending_reversions
			 WHERE guild_id = ? AND target_id = ? AND kind = ? AND state = ?
			 ORDER BY due_at ASC, sanction_id ASC`,
			guildID, targetID, string(kind), string(moderation.ReversionPending))
	})
	if err != nil {
		return nil, err
	}
	return toReversions(rows), nil
}

// TransitionReversion moves a pending row to state. It reports false when the
// row was no longer pending, so concurrent resolvers transition it once.
func (s *Store) TransitionReversion(ctx context.Context, sanctionID int64, state moderation.ReversionState, note string, at time.Time) (bool, error) {
	var n int64
	err := s.exec("transition_reversion", func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE pending_reversions
			 SET state = ?, last_error = ?, attempts = attempts + 1, updated_at = ?
			 WHERE sanction_id = ? AND state = ?`,
			string(state), note, ms(at), sanctionID, string(moderation.ReversionPending))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n > 0, err
}
