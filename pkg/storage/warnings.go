package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/small-frappuccino/modcore/pkg/moderation"
)

type warningRow struct {
	ID           string        `db:"id"`
	GuildID      string        `db:"guild_id"`
	TargetID     string        `db:"target_id"`
	ActorID      string        `db:"actor_id"`
	Reason       string        `db:"reason"`
	Active       bool          `db:"active"`
	CreatedAt    int64         `db:"created_at"`
	RemovedAt    sql.NullInt64 `db:"removed_at"`
	RemovedBy    string        `db:"removed_by"`
	RemoveReason string        `db:"remove_reason"`
}

const warningColumns = `id, guild_id, target_id, actor_id, reason, active, created_at, removed_at, removed_by, remove_reason`

func (r warningRow) toWarning() moderation.Warning {
	return moderation.Warning{
		ID:           r.ID,
		GuildID:      r.GuildID,
		TargetID:     r.TargetID,
		ActorID:      r.ActorID,
		Reason:       r.Reason,
		Active:       r.Active,
		CreatedAt:    fromMS(r.CreatedAt),
		RemovedAt:    fromNullMS(r.RemovedAt),
		RemovedBy:    r.RemovedBy,
		RemoveReason: r.RemoveReason,
	}
}

// CreateWarning inserts a new active warning.
func (s *Store) CreateWarning(ctx context.Context, w moderation.Warning) error {
	if w.ID == "" || w.GuildID == "" || w.TargetID == "" {
		return fmt.Errorf("create warning: id, guild and target are required")
	}
	created := w.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	return s.exec("create_warning", func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO warnings (id, guild_id, target_id, actor_id, reason, active, created_at)
			 VALUES (?, ?, ?, ?, ?, 1, ?)`,
			w.ID, w.GuildID, w.TargetID, w.ActorID, moderation.TruncateReason(w.Reason), ms(created),
		)
		return err
	})
}

// Warning loads a warning of guildID by id, active or not.
func (s *Store) Warning(ctx context.Context, guildID, id string) (moderation.Warning, error) {
	var row warningRow
	found, err := s.getOne(ctx, "get_warning", &row,
		`SELECT `+warningColumns+` FROM warnings WHERE guild_id = ? AND id = ?`, guildID, id)
	if err != nil {
		return moderation.Warning{}, err
	}
	if !found {
		return moderation.Warning{}, fmt.Errorf("warning %s: %w", id, moderation.ErrNotFound)
	}
	return row.toWarning(), nil
}

// ActiveWarnings lists a member's active warnings, oldest first.
func (s *Store) ActiveWarnings(ctx context.Context, guildID, targetID string) ([]moderation.Warning, error) {
	var rows []warningRow
	err := s.exec("active_warnings", func() error {
		return s.db.SelectContext(ctx, &rows,
			`SELECT `+warningColumns+` FROM warnings
			 WHERE guild_id = ? AND target_id = ? AND active = 1
			 ORDER BY created_at ASC, id ASC`, guildID, targetID)
	})
	if err != nil {
		return nil, err
	}
	out := make([]moderation.Warning, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toWarning())
	}
	return out, nil
}

// CountActiveWarnings counts a member's active warnings.
func (s *Store) CountActiveWarnings(ctx context.Context, guildID, targetID string) (int, error) {
	var n int
	err := s.exec("count_warnings", func() error {
		return s.db.GetContext(ctx, &n,
			`SELECT COUNT(*) FROM warnings WHERE guild_id = ? AND target_id = ? AND active = 1`, guildID, targetID)
	})
	return n, err
}

// DeactivateWarning soft-deletes a warning and reports whether it was active.
// Removing an inactive warning leaves the original removal details intact.
func (s *Store) DeactivateWarning(ctx context.Context, guildID, id, removedBy, reason string, at time.Time) (moderation.Warning, bool, error) {
	var (
		row       warningRow
		found     bool
		wasActive bool
	)
	err := s.exec("deactivate_warning", func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`UPDATE warnings SET active = 0, removed_at = ?, removed_by = ?, remove_reason = ?
			 WHERE guild_id = ? AND id = ? AND active = 1`,
			ms(at), removedBy, moderation.TruncateReason(reason), guildID, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		wasActive = n > 0

		err = tx.GetContext(ctx, &row, `SELECT `+warningColumns+` FROM warnings WHERE guild_id = ? AND id = ?`, guildID, id)
		switch {
		case err == sql.ErrNoRows:
			return nil
		case err != nil:
			return err
		}
		found = true
		return tx.Commit()
	})
	if err != nil {
		return moderation.Warning{}, false, err
	}
	if !found {
		return moderation.Warning{}, false, fmt.Errorf("warning %s: %w", id, moderation.ErrNotFound)
	}
	return row.toWarning(), wasActive, nil
}

// DeactivateWarningsFor soft-deletes every active warning of a member.
func (s *Store) DeactivateWarningsFor(ctx context.Context, guildID, targetID, removedBy, reason string, at time.Time) (int, error) {
	var n int64
	err := s.exec("deactivate_warnings_for", func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE warnings SET active = 0, removed_at = ?, removed_by = ?, remove_reason = ?
			 WHERE guild_id = ? AND target_id = ? AND active = 1`,
			ms(at), removedBy, moderation.TruncateReason(reason), guildID, targetID)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}
