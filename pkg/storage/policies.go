package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/small-frappuccino/modcore/pkg/moderation"
)

type policyRow struct {
	GuildID          string `db:"guild_id"`
	Language         string `db:"language"`
	LogChannelID     string `db:"log_channel_id"`
	MuteRoleID       string `db:"mute_role_id"`
	AdminRoles       string `db:"admin_roles"`
	ModeratorRoles   string `db:"moderator_roles"`
	WelcomeEnabled   bool   `db:"welcome_enabled"`
	WelcomeChannelID string `db:"welcome_channel_id"`
	WelcomeMessage   string `db:"welcome_message"`
	CreatedAt        int64  `db:"created_at"`
	UpdatedAt        int64  `db:"updated_at"`
}

const policyColumns = `guild_id, language, log_channel_id, mute_role_id, admin_roles, moderator_roles,
  welcome_enabled, welcome_channel_id, welcome_message, created_at, updated_at`

func (r policyRow) toPolicy() moderation.GuildPolicy {
	return moderation.GuildPolicy{
		GuildID:          r.GuildID,
		Language:         r.Language,
		LogChannelID:     r.LogChannelID,
		MuteRoleID:       r.MuteRoleID,
		AdminRoles:       decodeRoles(r.AdminRoles),
		ModeratorRoles:   decodeRoles(r.ModeratorRoles),
		WelcomeEnabled:   r.WelcomeEnabled,
		WelcomeChannelID: r.WelcomeChannelID,
		WelcomeMessage:   r.WelcomeMessage,
		CreatedAt:        fromMS(r.CreatedAt),
		UpdatedAt:        fromMS(r.UpdatedAt),
	}
}

func decodeRoles(raw string) []string {
	var roles []string
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &roles); err != nil || len(roles) == 0 {
		return nil
	}
	return roles
}

func encodeRoles(roles []string) string {
	if len(roles) == 0 {
		return "[]"
	}
	b, err := json.Marshal(roles)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// GuildPolicy returns the policy of a guild, creating the default one on first read.
func (s *Store) GuildPolicy(ctx context.Context, guildID string) (moderation.GuildPolicy, error) {
	p, _, err := s.EnsureGuildPolicy(ctx, guildID, s.defaultLanguage)
	return p, err
}

// EnsureGuildPolicy returns the policy of a guild and reports whether it was
// created by this call with lang as its language.
func (s *Store) EnsureGuildPolicy(ctx context.Context, guildID, lang string) (moderation.GuildPolicy, bool, error) {
	if guildID == "" {
		return moderation.GuildPolicy{}, false, fmt.Errorf("guild policy: empty guild id")
	}
	var (
		row     policyRow
		created bool
	)
	err := s.exec("ensure_guild_policy", func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		def := moderation.DefaultPolicy(guildID, lang)
		now := ms(s.now())
		res, err := tx.ExecContext(ctx,
			`INSERT INTO guild_policies (guild_id, language, welcome_message, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(guild_id) DO NOTHING`,
			guildID, def.Language, def.WelcomeMessage, now, now)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			created = true
		}
		if err := tx.GetContext(ctx, &row, `SELECT `+policyColumns+` FROM guild_policies WHERE guild_id = ?`, guildID); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return moderation.GuildPolicy{}, false, err
	}
	return row.toPolicy(), created, nil
}

// UpdateGuildPolicy applies a partial update and returns the stored result.
func (s *Store) UpdateGuildPolicy(ctx context.Context, guildID string, u moderation.PolicyUpdate) (moderation.GuildPolicy, error) {
	if u.Language != nil {
		lang, ok := moderation.NormalizeLanguage(*u.Language)
		if !ok {
			return moderation.GuildPolicy{}, fmt.Errorf("update guild policy: unsupported language %q", *u.Language)
		}
		u.Language = &lang
	}
	current, err := s.GuildPolicy(ctx, guildID)
	if err != nil {
		return moderation.GuildPolicy{}, err
	}
	if u.Empty() {
		return current, nil
	}
	next := current.Apply(u)
	next.UpdatedAt = s.now().UTC()

	var row policyRow
	err = s.exec("update_guild_policy", func() error {
		return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx,
				`UPDATE guild_policies SET
				   language = ?, log_channel_id = ?, mute_role_id = ?, admin_roles = ?, moderator_roles = ?,
				   welcome_enabled = ?, welcome_channel_id = ?, welcome_message = ?, updated_at = ?
				 WHERE guild_id = ?`,
				next.Language, next.LogChannelID, next.MuteRoleID,
				encodeRoles(next.AdminRoles), encodeRoles(next.ModeratorRoles),
				boolInt(next.WelcomeEnabled), next.WelcomeChannelID, next.WelcomeMessage,
				ms(next.UpdatedAt), guildID,
			); err != nil {
				return err
			}
			return tx.GetContext(ctx, &row, `SELECT `+policyColumns+` FROM guild_policies WHERE guild_id = ?`, guildID)
		})
	})
	if err != nil {
		return moderation.GuildPolicy{}, err
	}
	return row.toPolicy(), nil
}

// GuildPolicies lists every stored policy.
func (s *Store) GuildPolicies(ctx context.Context) ([]moderation.GuildPolicy, error) {
	var rows []policyRow
	err := s.exec("list_guild_policies", func() error {
		return s.db.SelectContext(ctx, &rows, `SELECT `+policyColumns+` FROM guild_policies ORDER BY guild_id`)
	})
	if err != nil {
		return nil, err
	}
	out := make([]moderation.GuildPolicy, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toPolicy())
	}
	return out, nil
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
