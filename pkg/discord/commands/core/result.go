package core

import (
	"github.com/small-frappuccino/modcore/pkg/i18n"
	"github.com/small-frappuccino/modcore/pkg/moderation"
)

// DenialMessage localizes the reason a request was refused.
func (c *Context) DenialMessage(res moderation.Result) string {
	return c.T(i18n.DenialKey(string(res.Reason)))
}

// RespondResult answers a moderation request. Denials are ephemeral; an
// approved request whose bookkeeping failed still reports success and warns
// that the audit trail may be incomplete.
func (c *Context) RespondResult(res moderation.Result, success string) error {
	if res.Policy.Language != "" {
		c.Language = res.Policy.Language
	}
	if !res.Approved {
		if res.Err != nil {
			c.Logger.Info("Moderation request denied", "kind", string(res.Kind), "reason", string(res.Reason), "error", res.Err)
		}
		return NewCommandError(c.DenialMessage(res), true)
	}
	if res.Err != nil {
		c.Logger.Error("Moderation action applied without a complete record", "kind", string(res.Kind), "error", res.Err)
		success += "\n" + c.T(i18n.CommonAuditIncomplete)
		return NewResponseBuilder(c.Session).Warning(c.Interaction, success)
	}
	return NewResponseBuilder(c.Session).Success(c.Interaction, success)
}

// Reason returns reason, or the localized placeholder when it is empty.
func (c *Context) Reason(reason string) string {
	if reason == "" {
		return c.T(i18n.CommonNoReason)
	}
	return reason
}
