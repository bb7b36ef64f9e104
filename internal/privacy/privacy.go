// Package privacy implements the channel-to-sensitivity admissibility
// rules and secret detection/redaction used by ingestion and every read
// path. All functions here are pure: no I/O, no error returns, equal
// inputs always yield equal outputs.
package privacy

import (
	"regexp"

	"github.com/acbmem/agentmem/internal/model"
)

// secretPatterns is the fixed set of regexes ingestion scans content
// fields against. Patterns are intentionally conservative; false
// positives are preferable to leaking a credential.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]{10,}`),
	regexp.MustCompile(`(?i)password\s*[:=]\s*\S+`),
	regexp.MustCompile(`(?i)api[_-]?key\s*[:=]\s*\S+`),
	regexp.MustCompile(`ghp_[A-Za-z0-9]{30,}`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
}

// RedactedSentinel replaces every matched secret substring.
const RedactedSentinel = "[SECRET_REDACTED]"

// AllowedSensitivity maps a channel to the set of sensitivities a reader
// on that channel may see.
func AllowedSensitivity(channel model.Channel) map[model.Sensitivity]bool {
	switch channel {
	case model.ChannelPublic:
		return set(model.SensitivityNone, model.SensitivityLow)
	case model.ChannelPrivate, model.ChannelTeam:
		return set(model.SensitivityNone, model.SensitivityLow, model.SensitivityHigh)
	case model.ChannelAgent:
		return set(model.SensitivityNone, model.SensitivityLow)
	default:
		return set(model.SensitivityNone)
	}
}

func set(vals ...model.Sensitivity) map[model.Sensitivity]bool {
	m := make(map[model.Sensitivity]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

// ContainsSecrets reports whether text matches any fixed secret pattern.
func ContainsSecrets(text string) bool {
	for _, p := range secretPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// RedactSecrets replaces every matched secret substring with the
// sentinel, leaving the rest of the text untouched.
func RedactSecrets(text string) string {
	for _, p := range secretPatterns {
		text = p.ReplaceAllString(text, RedactedSentinel)
	}
	return text
}

// RedactContent walks the string fields of a Content payload and
// redacts secrets in-place, reporting whether anything was redacted.
func RedactContent(c *model.Content) bool {
	redacted := false
	redactField := func(s string) string {
		if ContainsSecrets(s) {
			redacted = true
			return RedactSecrets(s)
		}
		return s
	}

	c.Text = redactField(c.Text)
	c.ExcerptText = redactField(c.ExcerptText)
	c.Decision = redactField(c.Decision)
	c.Title = redactField(c.Title)
	c.Details = redactField(c.Details)
	for i, r := range c.Rationale {
		c.Rationale[i] = redactField(r)
	}
	for k, v := range c.Extra {
		if s, ok := v.(string); ok {
			c.Extra[k] = redactField(s)
		}
	}
	return redacted
}

// ContentContainsSecrets reports whether any string field of a Content
// payload matches a secret pattern, without mutating it.
func ContentContainsSecrets(c model.Content) bool {
	if ContainsSecrets(c.Text) || ContainsSecrets(c.ExcerptText) ||
		ContainsSecrets(c.Decision) || ContainsSecrets(c.Title) || ContainsSecrets(c.Details) {
		return true
	}
	for _, r := range c.Rationale {
		if ContainsSecrets(r) {
			return true
		}
	}
	for _, v := range c.Extra {
		if s, ok := v.(string); ok && ContainsSecrets(s) {
			return true
		}
	}
	return false
}
