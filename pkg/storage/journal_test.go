package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/small-frappuccino/modcore/pkg/moderation"
	"github.com/stretchr/testify/require"
)

func TestSanctionRoundTripAndHistory(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()

	mute := moderation.NewSanction("g", "alice", "mod", moderation.KindMute, "spam", 90*time.Minute, t0)
	mute.Metadata = map[string]string{"role_id": "r1"}
	muteID, err := store.CreateSanction(ctx, mute)
	require.NoError(t, err)

	ban := moderation.NewSanction("g", "alice", "mod", moderation.KindBan, "raid", 0, t0.Add(time.Minute))
	banID, err := store.CreateSanction(ctx, ban)
	require.NoError(t, err)
	require.Greater(t, banID, muteID)

	got, err := store.Sanction(ctx, muteID)
	require.NoError(t, err)
	require.Equal(t, 90*time.Minute, got.Duration)
	require.NotNil(t, got.ExpiresAt)
	require.True(t, got.ExpiresAt.Equal(t0.Add(90*time.Minute)))
	require.True(t, got.Active)
	require.Equal(t, "r1", got.Metadata["role_id"])

	perm, err := store.Sanction(ctx, banID)
	require.NoError(t, err)
	require.True(t, perm.Permanent())
	require.Zero(t, perm.Duration)

	history, err := store.SanctionHistory(ctx, "g", "alice", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, moderation.KindBan, history[0].Kind)

	limited, err := store.SanctionHistory(ctx, "g", "alice", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	_, err = store.Sanction(ctx, 9999)
	require.ErrorIs(t, err, moderation.ErrNotFound)
}

func TestSanctionFiltersAndExpiry(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()

	short, err := store.CreateSanction(ctx, moderation.NewSanction("g", "alice", "mod", moderation.KindMute, "", time.Minute, t0))
	require.NoError(t, err)
	_, err = store.CreateSanction(ctx, moderation.NewSanction("g", "bob", "mod", moderation.KindMute, "", time.Hour, t0))
	require.NoError(t, err)
	_, err = store.CreateSanction(ctx, moderation.NewSanction("g", "alice", "mod", moderation.KindWarn, "", 0, t0))
	require.NoError(t, err)
	_, err = store.CreateSanction(ctx, moderation.NewSanction("other", "alice", "mod", moderation.KindMute, "", time.Minute, t0))
	require.NoError(t, err)

	all, err := store.ActiveSanctions(ctx, "g", moderation.SanctionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	mutes, err := store.ActiveSanctions(ctx, "g", moderation.SanctionFilter{TargetID: "alice", Kind: moderation.KindMute})
	require.NoError(t, err)
	require.Len(t, mutes, 1)
	require.Equal(t, short, mutes[0].ID)

	expired, err := store.ExpiredSanctions(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 2, "expiry at exactly now counts as expired")

	require.NoError(t, store.DeactivateSanction(ctx, short))
	require.NoError(t, store.DeactivateSanction(ctx, short), "deactivation is idempotent")
	require.ErrorIs(t, store.DeactivateSanction(ctx, 4242), moderation.ErrNotFound)

	expired, err = store.ExpiredSanctions(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
}

func TestSanctionsAreAppendOnly(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()
	id, err := store.CreateSanction(ctx, moderation.NewSanction("g", "alice", "mod", moderation.KindKick, "", 0, t0))
	require.NoError(t, err)

	_, err = store.db.Exec(`DELETE FROM sanctions WHERE id = ?`, id)
	require.Error(t, err)

	require.NoError(t, store.DeactivateSanction(ctx, id))
	_, err = store.db.Exec(`UPDATE sanctions SET active = 1 WHERE id = ?`, id)
	require.Error(t, err, "inactive sanctions cannot be reactivated")

	_, err = store.db.Exec(`INSERT INTO sanctions (guild_id, target_id, actor_id, kind, duration_ms, created_at) VALUES ('g','u','m','mute',60000,0)`)
	require.Error(t, err, "duration without expiry violates the check constraint")
}

func TestCreateSanctionRejectsInvalid(t *testing.T) {
	store := newTempStore(t)
	_, err := store.CreateSanction(context.Background(), moderation.Sanction{GuildID: "g", TargetID: "u", Kind: "nuke"})
	require.Error(t, err)
}

func TestWarningLifecycle(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()

	for i, id := range []string{"w1", "w2", "w3"} {
		require.NoError(t, store.CreateWarning(ctx, moderation.Warning{
			ID: id, GuildID: "g", TargetID: "alice", ActorID: "mod", Reason: "r", CreatedAt: t0.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, store.CreateWarning(ctx, moderation.Warning{ID: "w4", GuildID: "g", TargetID: "bob", ActorID: "mod"}))

	n, err := store.CountActiveWarnings(ctx, "g", "alice")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	w, wasActive, err := store.DeactivateWarning(ctx, "g", "w2", "mod2", "mistake", t0.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, wasActive)
	require.False(t, w.Active)
	require.Equal(t, "mod2", w.RemovedBy)
	require.NotNil(t, w.RemovedAt)

	again, wasActive, err := store.DeactivateWarning(ctx, "g", "w2", "mod3", "again", t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.False(t, wasActive)
	require.Equal(t, "mod2", again.RemovedBy, "second removal keeps the first remover")

	_, _, err = store.DeactivateWarning(ctx, "g", "nope", "mod", "", t0)
	require.True(t, errors.Is(err, moderation.ErrNotFound))
	_, _, err = store.DeactivateWarning(ctx, "other", "w1", "mod", "", t0)
	require.ErrorIs(t, err, moderation.ErrNotFound, "warnings are scoped to their guild")

	active, err := store.ActiveWarnings(ctx, "g", "alice")
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, "w1", active[0].ID)

	cleared, err := store.DeactivateWarningsFor(ctx, "g", "alice", "system", "member left", t0)
	require.NoError(t, err)
	require.Equal(t, 2, cleared)

	n, err = store.CountActiveWarnings(ctx, "g", "bob")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	kept, err := store.Warning(ctx, "g", "w1")
	require.NoError(t, err)
	require.Equal(t, "member left", kept.RemoveReason)
}

func TestReversionTransitionsOnce(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()

	id, err := store.CreateSanction(ctx, moderation.NewSanction("g", "channel_c1", "mod", moderation.KindLock, "", time.Hour, t0))
	require.NoError(t, err)
	payload := moderation.RevertPayload{ChannelID: "c1", Original: &moderation.ChannelOverwrite{Exists: true, Allow: 1 << 40, Deny: 2048}}
	require.NoError(t, store.SaveReversion(ctx, moderation.Reversion{
		SanctionID: id, GuildID: "g", TargetID: "channel_c1", Kind: moderation.KindLock,
		DueAt: t0.Add(time.Hour), Payload: payload,
	}))

	pending, err := store.PendingReversions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, moderation.ReversionPending, pending[0].State)
	require.Equal(t, payload, pending[0].Payload)

	forTarget, err := store.PendingReversionsFor(ctx, "g", "channel_c1", moderation.KindLock)
	require.NoError(t, err)
	require.Len(t, forTarget, 1)
	none, err := store.PendingReversionsFor(ctx, "g", "channel_c1", moderation.KindMute)
	require.NoError(t, err)
	require.Empty(t, none)

	ok, err := store.TransitionReversion(ctx, id, moderation.ReversionReverted, "", t0.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.TransitionReversion(ctx, id, moderation.ReversionCancelled, "late", t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.False(t, ok)

	r, err := store.Reversion(ctx, id)
	require.NoError(t, err)
	require.Equal(t, moderation.ReversionReverted, r.State)
	require.Equal(t, 1, r.Attempts)

	_, err = store.Reversion(ctx, id+1)
	require.ErrorIs(t, err, moderation.ErrNotFound)

	require.Error(t, store.SaveReversion(ctx, moderation.Reversion{SanctionID: 9999, GuildID: "g", TargetID: "x", Kind: moderation.KindMute, DueAt: t0}),
		"reversions reference an existing sanction")
}

func TestReversionWithCorruptPayload(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()

	id, err := store.CreateSanction(ctx, moderation.NewSanction("g", "channel_c1", "mod", moderation.KindLock, "", time.Hour, t0))
	require.NoError(t, err)
	require.NoError(t, store.SaveReversion(ctx, moderation.Reversion{
		SanctionID: id, GuildID: "g", TargetID: "channel_c1", Kind: moderation.KindLock,
		DueAt: t0.Add(time.Hour), Payload: moderation.RevertPayload{ChannelID: "c1"},
	}))
	_, err = store.db.ExecContext(ctx, `UPDATE pending_reversions SET payload = ? WHERE sanction_id = ?`, `{"channel_id":`, id)
	require.NoError(t, err)

	_, err = store.Reversion(ctx, id)
	require.ErrorContains(t, err, "decode payload")

	pending, err := store.PendingReversions(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestGuildPolicyCreatedOnReadAndUpdated(t *testing.T) {
	store := newTempStore(t)
	store.SetDefaultLanguage("FR")
	ctx := context.Background()

	p, err := store.GuildPolicy(ctx, "g")
	require.NoError(t, err)
	require.Equal(t, moderation.LanguageFrench, p.Language)
	require.Equal(t, moderation.DefaultWelcomeMessage, p.WelcomeMessage)
	require.Empty(t, p.ModeratorRoles)

	_, created, err := store.EnsureGuildPolicy(ctx, "g", "es")
	require.NoError(t, err)
	require.False(t, created, "existing policy is not recreated")

	fresh, created, err := store.EnsureGuildPolicy(ctx, "h", "es")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, moderation.LanguageSpanish, fresh.Language)

	lang := "EN"
	logs := "c-logs"
	mods := []string{"r1", "r2"}
	enabled := true
	updated, err := store.UpdateGuildPolicy(ctx, "g", moderation.PolicyUpdate{
		Language: &lang, LogChannelID: &logs, ModeratorRoles: &mods, WelcomeEnabled: &enabled,
	})
	require.NoError(t, err)
	require.Equal(t, "en", updated.Language)
	require.Equal(t, "c-logs", updated.LogChannelID)
	require.Equal(t, []string{"r1", "r2"}, updated.ModeratorRoles)
	require.True(t, updated.WelcomeEnabled)

	mute := "muted"
	again, err := store.UpdateGuildPolicy(ctx, "g", moderation.PolicyUpdate{MuteRoleID: &mute})
	require.NoError(t, err)
	require.Equal(t, "c-logs", again.LogChannelID, "partial update keeps other fields")
	require.Equal(t, "muted", again.MuteRoleID)

	bad := "de"
	_, err = store.UpdateGuildPolicy(ctx, "g", moderation.PolicyUpdate{Language: &bad})
	require.Error(t, err)

	all, err := store.GuildPolicies(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, st.Guilds)
}
