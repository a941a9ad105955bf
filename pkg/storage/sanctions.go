package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/small-frappuccino/modcore/pkg/moderation"
)

type sanctionRow struct {
	ID         int64          `db:"id"`
	GuildID    string         `db:"guild_id"`
	TargetID   string         `db:"target_id"`
	ActorID    string         `db:"actor_id"`
	Kind       string         `db:"kind"`
	Reason     string         `db:"reason"`
	DurationMS sql.NullInt64  `db:"duration_ms"`
	ExpiresAt  sql.NullInt64  `db:"expires_at"`
	Active     bool           `db:"active"`
	Metadata   sql.NullString `db:"metadata"`
	CreatedAt  int64          `db:"created_at"`
}

const sanctionColumns = `id, guild_id, target_id, actor_id, kind, reason, duration_ms, expires_at, active, metadata, created_at`

func (r sanctionRow) toSanction() moderation.Sanction {
	s := moderation.Sanction{
		ID:        r.ID,
		GuildID:   r.GuildID,
		TargetID:  r.TargetID,
		ActorID:   r.ActorID,
		Kind:      moderation.ActionKind(r.Kind),
		Reason:    r.Reason,
		ExpiresAt: fromNullMS(r.ExpiresAt),
		Active:    r.Active,
		CreatedAt: fromMS(r.CreatedAt),
	}
	if r.DurationMS.Valid {
		s.Duration = time.Duration(r.DurationMS.Int64) * time.Millisecond
	}
	if r.Metadata.Valid && r.Metadata.String != "" && r.Metadata.String != "{}" {
		var md map[string]string
		if err := json.Unmarshal([]byte(r.Metadata.String), &md); err == nil && len(md) > 0 {
			s.Metadata = md
		}
	}
	return s
}

func toSanctions(rows []sanctionRow) []moderation.Sanction {
	out := make([]moderation.Sanction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toSanction())
	}
	return out
}

// CreateSanction appends s to the journal and returns its id. Expiry and
// duration are stored together or not at all.
func (s *Store) CreateSanction(ctx context.Context, sn moderation.Sanction) (int64, error) {
	if sn.GuildID == "" || sn.TargetID == "" || !sn.Kind.Valid() {
		return 0, fmt.Errorf("create sanction: invalid sanction %q/%q/%q", sn.GuildID, sn.TargetID, sn.Kind)
	}
	md := "{}"
	if len(sn.Metadata) > 0 {
		b, err := json.Marshal(sn.Metadata)
		if err != nil {
			return 0, fmt.Errorf("create sanction: encode metadata: %w", err)
		}
		md = string(b)
	}
	var duration, expires sql.NullInt64
	if sn.ExpiresAt != nil && sn.Duration > 0 {
		duration = sql.NullInt64{Int64: sn.Duration.Milliseconds(), Valid: true}
		expires = nullMS(sn.ExpiresAt)
	}
	created := sn.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	var id int64
	err := s.exec("create_sanction", func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO sanctions (guild_id, target_id, actor_id, kind, reason, duration_ms, expires_at, active, metadata, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			sn.GuildID, sn.TargetID, sn.ActorID, string(sn.Kind), moderation.TruncateReason(sn.Reason),
			duration, expires, md, ms(created),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// Sanction loads one journal entry.
func (s *Store) Sanction(ctx context.Context, id int64) (moderation.Sanction, error) {
	var row sanctionRow
	found, err := s.getOne(ctx, "get_sanction", &row,
		`SELECT `+sanctionColumns+` FROM sanctions WHERE id = ?`, id)
	if err != nil {
		return moderation.Sanction{}, err
	}
	if !found {
		return moderation.Sanction{}, fmt.Errorf("sanction %d: %w", id, moderation.ErrNotFound)
	}
	return row.toSanction(), nil
}

// ActiveSanctions lists active sanctions of a guild, newest first.
func (s *Store) ActiveSanctions(ctx context.Context, guildID string, filter moderation.SanctionFilter) ([]moderation.Sanction, error) {
	query := `SELECT ` + sanctionColumns + ` FROM sanctions WHERE guild_id = ? AND active = 1`
	args := []any{guildID}
	if filter.TargetID != "" {
		query += ` AND target_id = ?`
		args = append(args, filter.TargetID)
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	query += ` ORDER BY id DESC`

	var rows []sanctionRow
	err := s.exec("active_sanctions", func() error {
		return s.db.SelectContext(ctx, &rows, query, args...)
	})
	if err != nil {
		return nil, err
	}
	return toSanctions(rows), nil
}

// ExpiredSanctions returns active temporary sanctions whose expiry is at or before now.
func (s *Store) ExpiredSanctions(ctx context.Context, now time.Time) ([]moderation.Sanction, error) {
	var rows []sanctionRow
	err := s.exec("expired_sanctions", func() error {
		return s.db.SelectContext(ctx, &rows,
			`SELECT `+sanctionColumns+` FROM sanctions
			 WHERE active = 1 AND expires_at IS NOT NULL AND expires_at <= ?
			 ORDER BY expires_at ASC, id ASC`, ms(now))
	})
	if err != nil {
		return nil, err
	}
	return toSanctions(rows), nil
}

// DeactivateSanction marks a sanction inactive. Deactivating twice is a no-op.
func (s *Store) DeactivateSanction(ctx context.Context, id int64) error {
	var affected int64
	err := s.exec("deactivate_sanction", func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE sanctions SET active = 0 WHERE id = ? AND active = 1`, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	var exists int
	found, err := s.getOne(ctx, "deactivate_sanction_lookup", &exists, `SELECT 1 FROM sanctions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("sanction %d: %w", id, moderation.ErrNotFound)
	}
	return nil
}

// SanctionHistory returns a member's journal entries newest first.
func (s *Store) SanctionHistory(ctx context.Context, guildID, targetID string, limit int) ([]moderation.Sanction, error) {
	if limit <= 0 {
		limit = moderation.DefaultHistoryLimit
	}
	var rows []sanctionRow
	err := s.exec("sanction_history", func() error {
		return s.db.SelectContext(ctx, &rows,
			`SELECT `+sanctionColumns+` FROM sanctions
			 WHERE guild_id = ? AND target_id = ?
			 ORDER BY created_at DESC, id DESC LIMIT ?`, guildID, targetID, limit)
	})
	if err != nil {
		return nil, err
	}
	return toSanctions(rows), nil
}

// getOne scans a single row into dest. A missing row is reported as found=false
// and is not logged as a failure.
func (s *Store) getOne(ctx context.Context, op string, dest any, query string, args ...any) (bool, error) {
	found := true
	err := s.exec(op, func() error {
		err := s.db.GetContext(ctx, dest, query, args...)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		return err
	})
	if err != nil {
		return false, err
	}
	return found, nil
}
