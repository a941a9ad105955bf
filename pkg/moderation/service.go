package moderation

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/small-frappuccino/modcore/pkg/log"
)

// Limits bound request parameters.
type Limits struct {
	MaxMute              time.Duration
	MaxLock              time.Duration
	MaxDeleteMessageDays int
	MaxClear             int
}

// DefaultLimits caps temporary actions at 30 days.
func DefaultLimits() Limits {
	return Limits{
		MaxMute:              30 * 24 * time.Hour,
		MaxLock:              30 * 24 * time.Hour,
		MaxDeleteMessageDays: 7,
		MaxClear:             100,
	}
}

func (l Limits) maxFor(kind ActionKind) time.Duration {
	if kind == KindLock {
		return l.MaxLock
	}
	return l.MaxMute
}

// Request is one moderation command after argument parsing. Target is the
// resolved member for member-scoped kinds; for unban only Target.ID is needed
// and for clear it optionally filters by author.
type Request struct {
	GuildID           string
	ChannelID         string
	Kind              ActionKind
	Actor             Principal
	Target            Principal
	Reason            string
	Duration          string
	DeleteMessageDays int
	Count             int
	Language          string
	WarningID         string
}

// Escalation is the outcome of an automatic action triggered by warnings.
type Escalation struct {
	Kind     ActionKind
	Duration time.Duration
	Applied  bool
	Reason   DenialReason
	Err      error
	Sanction *Sanction
}

// Result is the outcome of Execute. Approved with a non-nil Err means the
// platform effect happened but bookkeeping failed.
type Result struct {
	Kind         ActionKind
	Approved     bool
	Reason       DenialReason
	Err          error
	Sanction     *Sanction
	RevertAt     *time.Time
	Warning      *Warning
	WarningCount int
	Escalation   *Escalation
	Purge        *PurgeResult
	Cancelled    int
	Policy       GuildPolicy
}

func (r Result) outcome() string {
	switch {
	case r.Approved && r.Err != nil:
		return "approved_with_error"
	case r.Approved:
		return "approved"
	case r.Reason == DenialInternal:
		return "error"
	}
	return "denied"
}

// ServiceOptions are optional collaborators; zero values select defaults.
type ServiceOptions struct {
	Clock      Clock
	Metrics    *Metrics
	Notifier   Notifier
	Limits     Limits
	Thresholds Thresholds
}

// Service turns requests into platform effects and journal entries.
type Service struct {
	store     Store
	platform  Platform
	scheduler *Scheduler
	warnings  *Accumulator
	clock     Clock
	metrics   *Metrics
	notifier  Notifier
	limits    Limits
}

// NewService wires the lifecycle around an existing scheduler.
func NewService(store Store, platform Platform, scheduler *Scheduler, opts ServiceOptions) *Service {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Limits == (Limits{}) {
		opts.Limits = DefaultLimits()
	}
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	return &Service{
		store:     store,
		platform:  platform,
		scheduler: scheduler,
		warnings:  NewAccumulator(store, opts.Clock, opts.Thresholds),
		clock:     opts.Clock,
		metrics:   opts.Metrics,
		notifier:  opts.Notifier,
		limits:    opts.Limits,
	}
}

func (s *Service) Scheduler() *Scheduler  { return s.scheduler }
func (s *Service) Warnings() *Accumulator { return s.warnings }
func (s *Service) Store() Store           { return s.store }
func (s *Service) Platform() Platform     { return s.platform }
func (s *Service) Limits() Limits         { return s.limits }

// action is a validated request.
type action struct {
	Request
	policy   GuildPolicy
	actorID  string
	targetID string
	duration time.Duration
}

func denied(kind ActionKind, policy GuildPolicy, err error) Result {
	return Result{Kind: kind, Reason: ReasonFor(err), Err: err, Policy: policy}
}

func deniedWith(kind ActionKind, policy GuildPolicy, reason DenialReason, err error) Result {
	return Result{Kind: kind, Reason: reason, Err: err, Policy: policy}
}

// Execute evaluates and applies req. It never panics; an unexpected failure
// denies the request.
func (s *Service) Execute(ctx context.Context, req Request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.ErrorLoggerRaw().Error("Moderation request panicked",
				"kind", string(req.Kind),
				"guild_id", req.GuildID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			res = Result{Kind: req.Kind, Reason: DenialInternal, Err: fmt.Errorf("moderation %s panicked: %v", req.Kind, r), Policy: res.Policy}
		}
		s.metrics.action(req.Kind, res.outcome())
	}()

	if !req.Kind.Valid() || req.GuildID == "" || req.Actor.ID == "" {
		return deniedWith(req.Kind, GuildPolicy{}, DenialInvalidRequest, fmt.Errorf("invalid request: kind=%q guild=%q actor=%q", req.Kind, req.GuildID, req.Actor.ID))
	}
	req.Reason = TruncateReason(strings.TrimSpace(req.Reason))

	policy, err := s.store.GuildPolicy(ctx, req.GuildID)
	if err != nil {
		return denied(req.Kind, GuildPolicy{}, &PersistenceError{Op: "load policy", Err: err})
	}

	if IsPrivileged(req.Actor, policy) < RequiredPrivilege(req.Kind) {
		return denied(req.Kind, policy, deny(DenialNotPrivileged))
	}
	if req.Kind.NeedsHierarchy() {
		if req.Target.ID == "" {
			return deniedWith(req.Kind, policy, DenialInvalidRequest, errors.New("missing target"))
		}
		if err := CanActOn(req.Actor, req.Target, policy); err != nil {
			return denied(req.Kind, policy, err)
		}
	}

	system, err := s.platform.SystemPrincipal(ctx, req.GuildID)
	if err != nil {
		return denied(req.Kind, policy, err)
	}
	if err := SystemCanActOn(system, req.Target, req.Kind); err != nil {
		return denied(req.Kind, policy, err)
	}

	a, res, ok := s.prepare(req, policy)
	if !ok {
		return res
	}
	a.actorID = req.Actor.ID

	if req.Kind == KindUnwarn {
		return s.unwarn(ctx, a)
	}

	s.scheduler.Exclusive(req.GuildID, a.targetID, func() {
		res = s.apply(ctx, a)
	})

	if req.Kind == KindWarn && res.Approved && res.WarningCount > 0 {
		res.Escalation = s.escalate(ctx, req.GuildID, req.Target, res.WarningCount)
	}
	return res
}

// prepare validates kind-specific arguments and resolves the target id.
func (s *Service) prepare(req Request, policy GuildPolicy) (action, Result, bool) {
	a := action{Request: req, policy: policy, targetID: req.Target.ID}
	fail := func(reason DenialReason, err error) (action, Result, bool) {
		return a, deniedWith(req.Kind, policy, reason, err), false
	}

	if req.Kind.Temporary() {
		d, err := ParseTemporaryDuration(req.Duration, s.limits.maxFor(req.Kind))
		if err != nil {
			return fail(ReasonFor(err), err)
		}
		a.duration = d
	}

	switch req.Kind {
	case KindUnban:
		if req.Target.ID == "" {
			return fail(DenialInvalidRequest, errors.New("missing target"))
		}
	case KindLock, KindUnlock:
		if req.ChannelID == "" {
			return fail(DenialInvalidRequest, errors.New("missing channel"))
		}
		a.targetID = ChannelTarget(req.ChannelID)
	case KindClear:
		if req.ChannelID == "" {
			return fail(DenialInvalidRequest, errors.New("missing channel"))
		}
		if req.Count < 1 || req.Count > s.limits.MaxClear {
			return fail(DenialInvalidRequest, fmt.Errorf("count must be between 1 and %d", s.limits.MaxClear))
		}
		if a.targetID == "" {
			a.targetID = BulkTarget
		}
	case KindSetLang:
		lang, ok := NormalizeLanguage(req.Language)
		if !ok {
			return fail(DenialUnsupportedLang, fmt.Errorf("unsupported language %q", req.Language))
		}
		a.Language = lang
		a.targetID = req.GuildID
	case KindUnwarn:
		if strings.TrimSpace(req.WarningID) == "" {
			return fail(DenialInvalidRequest, errors.New("missing warning id"))
		}
	case KindBan:
		a.DeleteMessageDays = min(max(req.DeleteMessageDays, 0), s.limits.MaxDeleteMessageDays)
	}
	return a, Result{}, true
}

func (s *Service) apply(ctx context.Context, a action) Result {
	switch a.Kind {
	case KindBan:
		return s.ban(ctx, a)
	case KindUnban:
		return s.unban(ctx, a)
	case KindKick:
		return s.kick(ctx, a)
	case KindMute:
		return s.mute(ctx, a)
	case KindUnmute:
		return s.unmute(ctx, a)
	case KindWarn:
		return s.warn(ctx, a)
	case KindClear:
		return s.clear(ctx, a)
	case KindLock:
		return s.lock(ctx, a)
	case KindUnlock:
		return s.unlock(ctx, a)
	case KindSetLang:
		return s.setLang(ctx, a)
	}
	return deniedWith(a.Kind, a.policy, DenialInvalidRequest, fmt.Errorf("unsupported kind %q", a.Kind))
}

func (s *Service) approved(a action) Result {
	return Result{Kind: a.Kind, Approved: true, Policy: a.policy}
}

// record journals the sanction. A storage failure is attached to res without
// undoing the platform effect.
func (s *Service) record(ctx context.Context, res *Result, a action, sanction Sanction) {
	id, err := s.store.CreateSanction(ctx, sanction)
	if err != nil {
		s.attachPersistenceError(res, "create sanction", err)
	} else {
		sanction.ID = id
	}
	res.Sanction = &sanction
	log.ApplicationLogger().Info("Moderation action applied",
		"guild_id", sanction.GuildID,
		"kind", string(sanction.Kind),
		"actor_id", sanction.ActorID,
		"target_id", sanction.TargetID,
		"sanction_id", sanction.ID,
	)
	s.notifier.SanctionApplied(ctx, sanction, a.policy)
}

func (s *Service) attachPersistenceError(res *Result, op string, err error) {
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		err = &PersistenceError{Op: op, Err: err}
	}
	s.metrics.persistenceFailure(op)
	log.ErrorLoggerRaw().Error("Moderation bookkeeping failed after platform effect", "op", op, "err", err)
	res.Err = errors.Join(res.Err, err)
}

func (s *Service) newSanction(a action, kind ActionKind, duration time.Duration) Sanction {
	return NewSanction(a.GuildID, a.targetID, a.actorID, kind, a.Reason, duration, s.clock.Now())
}

// deactivateActive closes every active sanction of kind on the action's target.
func (s *Service) deactivateActive(ctx context.Context, res *Result, a action, kind ActionKind) {
	active, err := s.store.ActiveSanctions(ctx, a.GuildID, SanctionFilter{TargetID: a.targetID, Kind: kind})
	if err != nil {
		s.attachPersistenceError(res, "list active sanctions", err)
		return
	}
	for _, sanction := range active {
		if err := s.store.DeactivateSanction(ctx, sanction.ID); err != nil {
			s.attachPersistenceError(res, "deactivate sanction", err)
		}
	}
}

func (s *Service) ban(ctx context.Context, a action) Result {
	if err := s.platform.Ban(ctx, a.GuildID, a.targetID, a.Reason, a.DeleteMessageDays); err != nil {
		return denied(a.Kind, a.policy, err)
	}
	res := s.approved(a)
	sanction := s.newSanction(a, KindBan, 0)
	if a.DeleteMessageDays > 0 {
		sanction.Metadata = map[string]string{"delete_message_days": strconv.Itoa(a.DeleteMessageDays)}
	}
	s.record(ctx, &res, a, sanction)
	return res
}

func (s *Service) unban(ctx context.Context, a action) Result {
	if err := s.platform.Unban(ctx, a.GuildID, a.targetID, a.Reason); err != nil {
		if IsPlatformCode(err, CodeUnknownBan) {
			return deniedWith(a.Kind, a.policy, DenialNotBanned, err)
		}
		return denied(a.Kind, a.policy, err)
	}
	res := s.approved(a)
	s.deactivateActive(ctx, &res, a, KindBan)
	s.record(ctx, &res, a, s.newSanction(a, KindUnban, 0))
	return res
}

func (s *Service) kick(ctx context.Context, a action) Result {
	if err := s.platform.Kick(ctx, a.GuildID, a.targetID, a.Reason); err != nil {
		return denied(a.Kind, a.policy, err)
	}
	res := s.approved(a)
	s.record(ctx, &res, a, s.newSanction(a, KindKick, 0))
	return res
}

func (s *Service) mute(ctx context.Context, a action) Result {
	roleID, err := s.platform.EnsureMuteRole(ctx, a.GuildID, a.policy.MuteRoleID)
	if err != nil {
		return denied(a.Kind, a.policy, err)
	}
	if roleID != a.policy.MuteRoleID {
		if updated, err := s.store.UpdateGuildPolicy(ctx, a.GuildID, PolicyUpdate{MuteRoleID: &roleID}); err != nil {
			log.ErrorLoggerRaw().Warn("Failed to remember mute role", "guild_id", a.GuildID, "role_id", roleID, "err", err)
			a.policy.MuteRoleID = roleID
		} else {
			a.policy = updated
		}
	}

	muted, err := s.platform.IsMuted(ctx, a.GuildID, a.targetID, roleID)
	if err != nil {
		return denied(a.Kind, a.policy, err)
	}
	if muted {
		return deniedWith(a.Kind, a.policy, DenialAlreadyMuted, fmt.Errorf("%s is already muted", a.targetID))
	}

	sanction := s.newSanction(a, KindMute, a.duration)
	if err := s.platform.Mute(ctx, a.GuildID, a.targetID, roleID, sanction.ExpiresAt, a.Reason); err != nil {
		return denied(a.Kind, a.policy, err)
	}
	res := s.approved(a)
	sanction.Metadata = map[string]string{"mute_role_id": roleID}
	s.record(ctx, &res, a, sanction)
	if sanction.ExpiresAt != nil {
		s.armReversion(ctx, &res, Reversion{
			GuildID:  a.GuildID,
			TargetID: a.targetID,
			Kind:     KindMute,
			DueAt:    *sanction.ExpiresAt,
			Payload:  RevertPayload{MuteRoleID: roleID},
		})
	}
	return res
}

// armReversion schedules the inverse once the sanction has an id. Without one
// there is nothing to key the reversion on and the failure is reported.
func (s *Service) armReversion(ctx context.Context, res *Result, r Reversion) {
	if res.Sanction == nil || res.Sanction.ID == 0 {
		s.attachPersistenceError(res, "arm reversion", errors.New("sanction was not persisted"))
		return
	}
	r.SanctionID = res.Sanction.ID
	h, err := s.scheduler.Arm(ctx, r)
	if err != nil {
		s.attachPersistenceError(res, "arm reversion", err)
		return
	}
	due := h.DueAt
	res.RevertAt = &due
}

func (s *Service) unmute(ctx context.Context, a action) Result {
	muted, err := s.platform.IsMuted(ctx, a.GuildID, a.targetID, a.policy.MuteRoleID)
	if err != nil {
		return denied(a.Kind, a.policy, err)
	}
	if !muted {
		res := deniedWith(a.Kind, a.policy, DenialNotMuted, fmt.Errorf("%s is not muted", a.targetID))
		res.Cancelled, _ = s.scheduler.CancelFor(ctx, a.GuildID, a.targetID, KindMute)
		s.deactivateActive(ctx, &res, a, KindMute)
		return res
	}
	// The timed reversion stays armed until the platform call succeeds.
	if err := s.platform.Unmute(ctx, a.GuildID, a.targetID, a.policy.MuteRoleID, a.Reason); err != nil {
		return denied(a.Kind, a.policy, err)
	}
	cancelled, cerr := s.scheduler.CancelFor(ctx, a.GuildID, a.targetID, KindMute)
	res := s.approved(a)
	res.Cancelled = cancelled
	if cerr != nil {
		s.attachPersistenceError(&res, "cancel reversion", cerr)
	}
	s.deactivateActive(ctx, &res, a, KindMute)
	s.record(ctx, &res, a, s.newSanction(a, KindUnmute, 0))
	return res
}

func (s *Service) warn(ctx context.Context, a action) Result {
	w, sanction, count, err := s.warnings.Add(ctx, a.GuildID, a.targetID, a.actorID, a.Reason)
	if w.ID == "" {
		return denied(a.Kind, a.policy, err)
	}
	res := s.approved(a)
	res.Warning = &w
	res.WarningCount = count
	res.Sanction = &sanction
	if err != nil {
		s.attachPersistenceError(&res, "warn", err)
	}
	log.ApplicationLogger().Info("Warning added", "guild_id", a.GuildID, "target_id", a.targetID, "warning_id", w.ID, "count", count)
	s.notifier.SanctionApplied(ctx, sanction, a.policy)
	return res
}

func (s *Service) unwarn(ctx context.Context, a action) Result {
	w, err := s.store.Warning(ctx, a.GuildID, a.WarningID)
	if errors.Is(err, ErrNotFound) {
		return deniedWith(a.Kind, a.policy, DenialUnknownWarning, err)
	}
	if err != nil {
		return denied(a.Kind, a.policy, &PersistenceError{Op: "load warning", Err: err})
	}
	a.targetID = w.TargetID

	var res Result
	s.scheduler.Exclusive(a.GuildID, a.targetID, func() {
		removed, err := s.warnings.Remove(ctx, a.GuildID, a.WarningID, a.actorID, a.Reason)
		if errors.Is(err, ErrNotFound) {
			res = deniedWith(a.Kind, a.policy, DenialUnknownWarning, err)
			return
		}
		if err != nil {
			res = denied(a.Kind, a.policy, err)
			return
		}
		res = s.approved(a)
		res.Warning = &removed
		sanction := s.newSanction(a, KindUnwarn, 0)
		sanction.Metadata = map[string]string{"warning_id": removed.ID}
		s.record(ctx, &res, a, sanction)
		if n, err := s.warnings.CountActive(ctx, a.GuildID, a.targetID); err == nil {
			res.WarningCount = n
		}
	})
	return res
}

func (s *Service) clear(ctx context.Context, a action) Result {
	purge, err := s.platform.PurgeMessages(ctx, a.ChannelID, a.Count, a.Target.ID)
	if err != nil {
		return denied(a.Kind, a.policy, err)
	}
	res := s.approved(a)
	res.Purge = &purge
	sanction := s.newSanction(a, KindClear, 0)
	sanction.Metadata = map[string]string{
		"channel_id": a.ChannelID,
		"requested":  strconv.Itoa(a.Count),
		"deleted":    strconv.Itoa(purge.Deleted),
		"skipped":    strconv.Itoa(purge.Skipped),
	}
	s.record(ctx, &res, a, sanction)
	return res
}

func (s *Service) lock(ctx context.Context, a action) Result {
	locked, err := s.platform.IsLocked(ctx, a.GuildID, a.ChannelID)
	if err != nil {
		return denied(a.Kind, a.policy, err)
	}
	if locked {
		return deniedWith(a.Kind, a.policy, DenialAlreadyLocked, fmt.Errorf("channel %s is already locked", a.ChannelID))
	}
	original, err := s.platform.LockChannel(ctx, a.GuildID, a.ChannelID, a.Reason)
	if err != nil {
		return denied(a.Kind, a.policy, err)
	}
	res := s.approved(a)
	sanction := s.newSanction(a, KindLock, a.duration)
	sanction.Metadata = overwriteMetadata(a.ChannelID, original)
	s.record(ctx, &res, a, sanction)
	if sanction.ExpiresAt != nil {
		s.armReversion(ctx, &res, Reversion{
			GuildID:  a.GuildID,
			TargetID: a.targetID,
			Kind:     KindLock,
			DueAt:    *sanction.ExpiresAt,
			Payload:  RevertPayload{ChannelID: a.ChannelID, Original: &original},
		})
	}
	return res
}

func (s *Service) unlock(ctx context.Context, a action) Result {
	locked, err := s.platform.IsLocked(ctx, a.GuildID, a.ChannelID)
	if err != nil {
		return denied(a.Kind, a.policy, err)
	}
	original := s.lockedOverwrite(ctx, a)
	if !locked {
		res := deniedWith(a.Kind, a.policy, DenialNotLocked, fmt.Errorf("channel %s is not locked", a.ChannelID))
		res.Cancelled, _ = s.scheduler.CancelFor(ctx, a.GuildID, a.targetID, KindLock)
		s.deactivateActive(ctx, &res, a, KindLock)
		return res
	}
	if err := s.platform.UnlockChannel(ctx, a.GuildID, a.ChannelID, original, a.Reason); err != nil {
		return denied(a.Kind, a.policy, err)
	}
	cancelled, cerr := s.scheduler.CancelFor(ctx, a.GuildID, a.targetID, KindLock)
	res := s.approved(a)
	res.Cancelled = cancelled
	if cerr != nil {
		s.attachPersistenceError(&res, "cancel reversion", cerr)
	}
	s.deactivateActive(ctx, &res, a, KindLock)
	sanction := s.newSanction(a, KindUnlock, 0)
	sanction.Metadata = map[string]string{"channel_id": a.ChannelID}
	s.record(ctx, &res, a, sanction)
	return res
}

// lockedOverwrite recovers the overwrite saved by the newest active lock.
func (s *Service) lockedOverwrite(ctx context.Context, a action) *ChannelOverwrite {
	active, err := s.store.ActiveSanctions(ctx, a.GuildID, SanctionFilter{TargetID: a.targetID, Kind: KindLock})
	if err != nil || len(active) == 0 {
		return nil
	}
	return overwriteFromMetadata(active[0].Metadata)
}

func (s *Service) setLang(ctx context.Context, a action) Result {
	lang := a.Language
	policy, err := s.store.UpdateGuildPolicy(ctx, a.GuildID, PolicyUpdate{Language: &lang})
	if err != nil {
		return denied(a.Kind, a.policy, &PersistenceError{Op: "update policy", Err: err})
	}
	a.policy = policy
	res := s.approved(a)
	sanction := s.newSanction(a, KindSetLang, 0)
	sanction.Metadata = map[string]string{"language": lang}
	s.record(ctx, &res, a, sanction)
	return res
}

// escalate runs the automatic action for count as the bot itself. It is best
// effort and never undoes the warning.
func (s *Service) escalate(ctx context.Context, guildID string, target Principal, count int) *Escalation {
	kind, d, ok := s.warnings.Thresholds().Escalation(count)
	if !ok {
		return nil
	}
	esc := &Escalation{Kind: kind, Duration: d}
	defer func() {
		outcome := "applied"
		if !esc.Applied {
			outcome = "skipped"
			log.ApplicationLogger().Warn("Automatic escalation not applied",
				"guild_id", guildID,
				"target_id", target.ID,
				"kind", string(kind),
				"warnings", count,
				"reason", string(esc.Reason),
				"err", esc.Err,
			)
		}
		s.metrics.escalation(kind, outcome)
	}()

	policy, err := s.store.GuildPolicy(ctx, guildID)
	if err != nil {
		esc.Err = &PersistenceError{Op: "load policy", Err: err}
		esc.Reason = DenialPersistence
		return esc
	}
	system, err := s.platform.SystemPrincipal(ctx, guildID)
	if err == nil {
		err = SystemCanActOn(system, target, kind)
	}
	if err != nil {
		esc.Err = err
		esc.Reason = ReasonFor(err)
		return esc
	}

	a := action{
		Request: Request{
			GuildID: guildID,
			Kind:    kind,
			Actor:   system,
			Target:  target,
			Reason:  fmt.Sprintf("automatic %s after %d warnings", kind, count),
		},
		policy:   policy,
		actorID:  system.ID,
		targetID: target.ID,
		duration: d,
	}
	var res Result
	s.scheduler.Exclusive(guildID, target.ID, func() {
		res = s.apply(ctx, a)
	})
	esc.Applied = res.Approved
	esc.Reason = res.Reason
	esc.Err = res.Err
	esc.Sanction = res.Sanction
	return esc
}

// History returns the journal for a target, newest first.
func (s *Service) History(ctx context.Context, guildID, targetID string, limit int) ([]Sanction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	out, err := s.store.SanctionHistory(ctx, guildID, targetID, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "history", Err: err}
	}
	return out, nil
}

// MemberLeft clears the member's active warnings.
func (s *Service) MemberLeft(ctx context.Context, guildID, userID string) (int, error) {
	var (
		n   int
		err error
	)
	s.scheduler.Exclusive(guildID, userID, func() {
		n, err = s.warnings.ClearFor(ctx, guildID, userID, SystemActorID, "member left")
	})
	return n, err
}

func overwriteMetadata(channelID string, o ChannelOverwrite) map[string]string {
	return map[string]string{
		"channel_id":      channelID,
		"original_exists": strconv.FormatBool(o.Exists),
		"original_allow":  strconv.FormatInt(o.Allow, 10),
		"original_deny":   strconv.FormatInt(o.Deny, 10),
	}
}

func overwriteFromMetadata(md map[string]string) *ChannelOverwrite {
	exists, err := strconv.ParseBool(md["original_exists"])
	if err != nil {
		return nil
	}
	allow, err1 := strconv.ParseInt(md["original_allow"], 10, 64)
	denyBits, err2 := strconv.ParseInt(md["original_deny"], 10, 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &ChannelOverwrite{Exists: exists, Allow: allow, Deny: denyBits}
}
