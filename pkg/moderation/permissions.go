package moderation

import (
	"strings"
)

// Capability is a platform permission the bot must hold to perform an action.
type Capability uint32

const (
	CapBanMembers Capability = 1 << iota
	CapKickMembers
	CapModerateMembers
	CapManageRoles
	CapManageMessages
	CapManageChannels
	CapManageGuild
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{CapBanMembers, "BanMembers"},
	{CapKickMembers, "KickMembers"},
	{CapModerateMembers, "ModerateMembers"},
	{CapManageRoles, "ManageRoles"},
	{CapManageMessages, "ManageMessages"},
	{CapManageChannels, "ManageChannels"},
	{CapManageGuild, "ManageGuild"},
}

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	var names []string
	for _, n := range capabilityNames {
		if c&n.c != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// RequiredCapabilities lists what the bot needs to carry out kind. The bot
// must hold every bit of all and, when anyOf is set, at least one bit of it.
func RequiredCapabilities(kind ActionKind) (all, anyOf Capability) {
	switch kind {
	case KindBan, KindUnban:
		return CapBanMembers, 0
	case KindKick:
		return CapKickMembers, 0
	case KindMute, KindUnmute:
		// A timeout needs ModerateMembers, the mute role needs ManageRoles.
		return 0, CapModerateMembers | CapManageRoles
	case KindClear:
		return CapManageMessages, 0
	case KindLock, KindUnlock:
		return CapManageChannels, 0
	}
	return 0, 0
}

// Principal is a resolved guild member, the bot included. Rank is the position
// of the member's highest role; owners carry OwnerRank.
type Principal struct {
	ID            string
	Username      string
	Rank          int
	Owner         bool
	Bot           bool
	Administrator bool
	Capabilities  Capability
	RoleIDs       []string
	RoleNames     []string
}

// OwnerRank outranks any role position.
const OwnerRank = 1 << 30

// Has reports whether p holds every capability in c. Administrators hold all.
func (p Principal) Has(c Capability) bool {
	return p.Administrator || p.Capabilities&c == c
}

// HasAny reports whether p holds at least one capability in c.
func (p Principal) HasAny(c Capability) bool {
	return p.Administrator || p.Capabilities&c != 0
}

// Privilege is the moderation tier of a principal within a guild.
type Privilege int

const (
	PrivilegeNone Privilege = iota
	PrivilegeModerator
	PrivilegeAdministrator
)

func (p Privilege) String() string {
	switch p {
	case PrivilegeModerator:
		return "moderator"
	case PrivilegeAdministrator:
		return "administrator"
	}
	return "none"
}

// Role names recognized in every guild, alongside the configured role ids.
var (
	fallbackAdminRoles     = []string{"admin", "administrator", "administrateur", "administrador"}
	fallbackModeratorRoles = []string{"mod", "moderator", "moderateur", "modérateur", "moderador", "staff"}
)

// IsPrivileged classifies p against the guild policy. A configured role id
// and a recognized role name each grant the tier on their own.
func IsPrivileged(p Principal, policy GuildPolicy) Privilege {
	switch {
	case p.Owner, p.Administrator,
		anyRoleIn(p.RoleIDs, policy.AdminRoles),
		anyNameIn(p.RoleNames, fallbackAdminRoles):
		return PrivilegeAdministrator
	case p.HasAny(CapBanMembers | CapKickMembers | CapModerateMembers),
		anyRoleIn(p.RoleIDs, policy.ModeratorRoles),
		anyNameIn(p.RoleNames, fallbackModeratorRoles):
		return PrivilegeModerator
	}
	return PrivilegeNone
}

// RequiredPrivilege is the tier an actor needs to request kind.
func RequiredPrivilege(kind ActionKind) Privilege {
	if kind == KindSetLang {
		return PrivilegeAdministrator
	}
	return PrivilegeModerator
}

// CanActOn applies the member hierarchy rules in order: self, owner, rank,
// then bots unless the actor holds the platform administrator flag or owns
// the guild. Owners pass the rank rule through OwnerRank.
func CanActOn(actor, target Principal, _ GuildPolicy) error {
	if actor.ID == target.ID {
		return deny(DenialSelf)
	}
	if target.Owner {
		return deny(DenialTargetOwner)
	}
	if target.Rank >= actor.Rank {
		return deny(DenialTargetRank)
	}
	if target.Bot && !actor.Administrator && !actor.Owner {
		return deny(DenialTargetBot)
	}
	return nil
}

// SystemCanActOn checks the bot itself. Hierarchy is skipped for actions that
// do not target a member; capabilities are always checked.
func SystemCanActOn(system, target Principal, kind ActionKind) error {
	if kind.NeedsHierarchy() && target.ID != "" {
		if target.ID == system.ID {
			return deny(DenialSelf)
		}
		if target.Owner {
			return deny(DenialTargetOwner)
		}
		if target.Rank >= system.Rank {
			return deny(DenialBotRank)
		}
	}
	all, anyOf := RequiredCapabilities(kind)
	if all != 0 && !system.Has(all) {
		return &PermissionDeniedError{Reason: DenialBotMissingPerm, Missing: all &^ system.Capabilities}
	}
	if anyOf != 0 && !system.HasAny(anyOf) {
		return &PermissionDeniedError{Reason: DenialBotMissingPerm, Missing: anyOf}
	}
	return nil
}

func anyRoleIn(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func anyNameIn(have, want []string) bool {
	for _, h := range have {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}
