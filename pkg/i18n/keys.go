package i18n

// Key identifies a translated message.
type Key string

const (
	CommonNoReason        Key = "common.no_reason"
	CommonPermanent       Key = "common.permanent"
	CommonGuildOnly       Key = "common.guild_only"
	CommonAuditIncomplete Key = "common.audit_incomplete"
	CommonCooldown        Key = "common.cooldown"
	CommonUnknownUser     Key = "common.unknown_user"

	BanSuccess           Key = "ban.success"
	UnbanSuccess         Key = "unban.success"
	KickSuccess          Key = "kick.success"
	MuteSuccess          Key = "mute.success"
	MuteSuccessPermanent Key = "mute.success_permanent"
	UnmuteSuccess        Key = "unmute.success"
	WarnSuccess          Key = "warn.success"
	WarnEscalatedMute    Key = "warn.escalated_mute"
	WarnEscalatedBan     Key = "warn.escalated_ban"
	WarnEscalationFailed Key = "warn.escalation_failed"
	UnwarnSuccess        Key = "unwarn.success"
	WarningsNone         Key = "warnings.none"
	WarningsHeader       Key = "warnings.header"
	WarningsLine         Key = "warnings.line"
	ClearSuccess         Key = "clear.success"
	LockSuccess          Key = "lock.success"
	LockSuccessTimed     Key = "lock.success_timed"
	UnlockSuccess        Key = "unlock.success"
	HistoryNone          Key = "history.none"
	HistoryHeader        Key = "history.header"
	HistoryLine          Key = "history.line"
	HistoryActive        Key = "history.active"
	HistoryInactive      Key = "history.inactive"

	SetLangSuccess   Key = "setlang.success"
	SetLogsSuccess   Key = "setlogs.success"
	SetLogsMissing   Key = "setlogs.missing_permissions"
	MuteRoleSet      Key = "muterole.set"
	MuteRoleCreated  Key = "muterole.created"
	ModRolesAdded    Key = "modroles.added"
	ModRolesRemoved  Key = "modroles.removed"
	ModRolesList     Key = "modroles.list"
	ModRolesNone     Key = "modroles.none"
	WelcomeUpdated   Key = "welcome.updated"
	ConfigTitle      Key = "config.title"
	ConfigLanguage   Key = "config.language"
	ConfigLogChannel Key = "config.log_channel"
	ConfigMuteRole   Key = "config.mute_role"
	ConfigAdminRoles Key = "config.admin_roles"
	ConfigModRoles   Key = "config.moderator_roles"
	ConfigWelcome    Key = "config.welcome"
	ConfigNotSet     Key = "config.not_set"
	ConfigEnabled    Key = "config.enabled"
	ConfigDisabled   Key = "config.disabled"

	LogTitle           Key = "log.title"
	LogTarget          Key = "log.target"
	LogActor           Key = "log.actor"
	LogReason          Key = "log.reason"
	LogDuration        Key = "log.duration"
	LogExpires         Key = "log.expires"
	LogReverted        Key = "log.reverted"
	LogSuperseded      Key = "log.superseded"
	LogReversionFailed Key = "log.reversion_failed"

	NoticeMuteExpired Key = "notice.mute_expired"

	BotInfoTitle      Key = "botinfo.title"
	BotInfoUptime     Key = "botinfo.uptime"
	BotInfoGuilds     Key = "botinfo.guilds"
	BotInfoCPU        Key = "botinfo.cpu"
	BotInfoMemory     Key = "botinfo.memory"
	BotInfoGoroutines Key = "botinfo.goroutines"
	BotInfoSanctions  Key = "botinfo.sanctions"
	BotInfoReversions Key = "botinfo.reversions"

	DenyNotPrivileged     Key = "deny.not_privileged"
	DenySelf              Key = "deny.self_action"
	DenyTargetOwner       Key = "deny.target_owner"
	DenyTargetRank        Key = "deny.target_rank"
	DenyTargetBot         Key = "deny.target_bot"
	DenyBotRank           Key = "deny.bot_rank"
	DenyBotMissingPerm    Key = "deny.bot_missing_permission"
	DenyInvalidDuration   Key = "deny.invalid_duration"
	DenyDurationTooLong   Key = "deny.duration_too_long"
	DenyAlreadyMuted      Key = "deny.already_muted"
	DenyNotMuted          Key = "deny.not_muted"
	DenyAlreadyLocked     Key = "deny.already_locked"
	DenyNotLocked         Key = "deny.not_locked"
	DenyNotBanned         Key = "deny.not_banned"
	DenyUnknownWarning    Key = "deny.unknown_warning"
	DenyUnsupportedLang   Key = "deny.unsupported_language"
	DenyInvalidRequest    Key = "deny.invalid_request"
	DenyPlatform          Key = "deny.platform_error"
	DenyPlatformForbidden Key = "deny.platform_forbidden"
	DenyPersistence       Key = "deny.persistence_error"
	DenyInternal          Key = "deny.internal_error"
)

// Keys lists every key a catalog must define.
func Keys() []Key {
	return []Key{
		CommonNoReason, CommonPermanent, CommonGuildOnly, CommonAuditIncomplete, CommonCooldown, CommonUnknownUser,
		BanSuccess, UnbanSuccess, KickSuccess, MuteSuccess, MuteSuccessPermanent, UnmuteSuccess,
		WarnSuccess, WarnEscalatedMute, WarnEscalatedBan, WarnEscalationFailed, UnwarnSuccess,
		WarningsNone, WarningsHeader, WarningsLine, ClearSuccess, LockSuccess, LockSuccessTimed, UnlockSuccess,
		HistoryNone, HistoryHeader, HistoryLine, HistoryActive, HistoryInactive,
		SetLangSuccess, SetLogsSuccess, SetLogsMissing, MuteRoleSet, MuteRoleCreated,
		ModRolesAdded, ModRolesRemoved, ModRolesList, ModRolesNone, WelcomeUpdated,
		ConfigTitle, ConfigLanguage, ConfigLogChannel, ConfigMuteRole, ConfigAdminRoles, ConfigModRoles,
		ConfigWelcome, ConfigNotSet, ConfigEnabled, ConfigDisabled,
		LogTitle, LogTarget, LogActor, LogReason, LogDuration, LogExpires, LogReverted, LogSuperseded, LogReversionFailed,
		NoticeMuteExpired,
		BotInfoTitle, BotInfoUptime, BotInfoGuilds, BotInfoCPU, BotInfoMemory, BotInfoGoroutines, BotInfoSanctions, BotInfoReversions,
		DenyNotPrivileged, DenySelf, DenyTargetOwner, DenyTargetRank, DenyTargetBot, DenyBotRank, DenyBotMissingPerm,
		DenyInvalidDuration, DenyDurationTooLong, DenyAlreadyMuted, DenyNotMuted, DenyAlreadyLocked, DenyNotLocked,
		DenyNotBanned, DenyUnknownWarning, DenyUnsupportedLang, DenyInvalidRequest, DenyPlatform, DenyPlatformForbidden,
		DenyPersistence, DenyInternal,
	}
}

// DenialKey maps a moderation denial code to its message key.
func DenialKey(reason string) Key {
	if reason == "" {
		return DenyInternal
	}
	return Key("deny." + reason)
}
