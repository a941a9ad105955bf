package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store := NewStore(dbPath)
	if err := store.Init(); err != nil {
		t.Fatalf("init store: %v", err)
	}
	store.now = func() time.Time { return t0 }
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSchemaInitialized(t *testing.T) {
	store := newTempStore(t)
	rows, err := store.db.Query(`SELECT name FROM sqlite_master WHERE type IN ('table', 'trigger')`)
	if err != nil {
		t.Fatalf("query schema: %v", err)
	}
	defer rows.Close()

	required := map[string]bool{
		"sanctions":                 false,
		"warnings":                  false,
		"pending_reversions":        false,
		"guild_policies":            false,
		"guild_meta":                false,
		"runtime_meta":              false,
		"sanctions_append_only":     false,
		"sanctions_no_reactivation": false,
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if _, ok := required[name]; ok {
			required[name] = true
		}
	}
	for k, ok := range required {
		if !ok {
			t.Fatalf("expected %s to exist", k)
		}
	}
}

func TestInitIsIdempotentAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "modcore.db")
	first := NewStore(dbPath)
	if err := first.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := first.SetHeartbeat(context.Background(), t0); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	_ = first.Close()

	second := NewStore(dbPath)
	if err := second.Init(); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	got, ok, err := second.Heartbeat(context.Background())
	if err != nil || !ok || !got.Equal(t0) {
		t.Fatalf("heartbeat after reopen = %v %v %v", got, ok, err)
	}
}

func TestUninitializedStoreFails(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "x.db"))
	if _, err := store.CountActiveWarnings(context.Background(), "g", "u"); err == nil {
		t.Fatal("expected error from uninitialized store")
	}
	if err := store.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error from uninitialized store")
	}
}

func TestMetaBotSinceKeepsEarliest(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()
	if err := store.SetBotSince(ctx, "g", t0.Add(time.Hour)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.SetBotSince(ctx, "g", t0); err != nil {
		t.Fatalf("set earlier: %v", err)
	}
	if err := store.SetBotSince(ctx, "g", t0.Add(48*time.Hour)); err != nil {
		t.Fatalf("set later: %v", err)
	}
	got, ok, err := store.BotSince(ctx, "g")
	if err != nil || !ok || !got.Equal(t0) {
		t.Fatalf("bot since = %v %v %v", got, ok, err)
	}
	if err := store.SetGuildOwnerID(ctx, "g", "owner"); err != nil {
		t.Fatalf("owner: %v", err)
	}
	owner, ok, err := store.GuildOwnerID(ctx, "g")
	if err != nil || !ok || owner != "owner" {
		t.Fatalf("owner = %q %v %v", owner, ok, err)
	}
	if _, ok, _ := store.BotSince(ctx, "missing"); ok {
		t.Fatal("unknown guild should have no bot_since")
	}
}
