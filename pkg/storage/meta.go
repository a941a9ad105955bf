package storage

import (
	"context"
	"database/sql"
	"time"
)

const (
	metaHeartbeat = "heartbeat"
	metaLastEvent = "last_event"
	metaStarted   = "started"
)

// SetBotSince records when the bot joined a guild, keeping the earliest time.
func (s *Store) SetBotSince(ctx context.Context, guildID string, t time.Time) error {
	if t.IsZero() {
		t = s.now()
	}
	v := ms(t)
	return s.exec("set_bot_since", func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO guild_meta (guild_id, bot_since)
			 VALUES (?, ?)
			 ON CONFLICT(guild_id) DO UPDATE SET
			   bot_since = CASE
			     WHEN guild_meta.bot_since IS NULL OR ? < guild_meta.bot_since THEN ?
			     ELSE guild_meta.bot_since
			   END`,
			guildID, v, v, v,
		)
		return err
	})
}

// BotSince returns when the bot was first seen in a guild, if known.
func (s *Store) BotSince(ctx context.Context, guildID string) (time.Time, bool, error) {
	var v sql.NullInt64
	found, err := s.getOne(ctx, "get_bot_since", &v, `SELECT bot_since FROM guild_meta WHERE guild_id = ?`, guildID)
	if err != nil || !found || !v.Valid {
		return time.Time{}, false, err
	}
	return fromMS(v.Int64), true, nil
}

// SetGuildOwnerID caches the owner of a guild.
func (s *Store) SetGuildOwnerID(ctx context.Context, guildID, ownerID string) error {
	return s.exec("set_guild_owner", func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO guild_meta (guild_id, owner_id) VALUES (?, ?)
			 ON CONFLICT(guild_id) DO UPDATE SET owner_id = excluded.owner_id`,
			guildID, ownerID,
		)
		return err
	})
}

// GuildOwnerID returns the cached owner of a guild.
func (s *Store) GuildOwnerID(ctx context.Context, guildID string) (string, bool, error) {
	var owner string
	found, err := s.getOne(ctx, "get_guild_owner", &owner, `SELECT owner_id FROM guild_meta WHERE guild_id = ?`, guildID)
	if err != nil || !found || owner == "" {
		return "", false, err
	}
	return owner, true, nil
}

func (s *Store) setRuntime(ctx context.Context, key string, t time.Time) error {
	return s.exec("set_runtime_"+key, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO runtime_meta (key, ts) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET ts = excluded.ts`,
			key, ms(t),
		)
		return err
	})
}

func (s *Store) runtime(ctx context.Context, key string) (time.Time, bool, error) {
	var v int64
	found, err := s.getOne(ctx, "get_runtime_"+key, &v, `SELECT ts FROM runtime_meta WHERE key = ?`, key)
	if err != nil || !found {
		return time.Time{}, false, err
	}
	return fromMS(v), true, nil
}

// SetHeartbeat records the last-known "bot is running" timestamp.
func (s *Store) SetHeartbeat(ctx context.Context, t time.Time) error {
	return s.setRuntime(ctx, metaHeartbeat, t)
}

// Heartbeat returns the last recorded heartbeat.
func (s *Store) Heartbeat(ctx context.Context) (time.Time, bool, error) {
	return s.runtime(ctx, metaHeartbeat)
}

// SetLastEvent records when the last gateway event was handled.
func (s *Store) SetLastEvent(ctx context.Context, t time.Time) error {
	return s.setRuntime(ctx, metaLastEvent, t)
}

// LastEvent returns when the last gateway event was handled.
func (s *Store) LastEvent(ctx context.Context) (time.Time, bool, error) {
	return s.runtime(ctx, metaLastEvent)
}

// SetStartedAt records the process start time.
func (s *Store) SetStartedAt(ctx context.Context, t time.Time) error {
	return s.setRuntime(ctx, metaStarted, t)
}

// StartedAt returns the recorded process start time.
func (s *Store) StartedAt(ctx context.Context) (time.Time, bool, error) {
	return s.runtime(ctx, metaStarted)
}
