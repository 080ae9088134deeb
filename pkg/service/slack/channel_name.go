package slack

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxChannelNameLength = 80

	// maxSectionTextBytes is Slack's limit for a section block text.
	maxSectionTextBytes = 3000
)

var prohibitedRunes = []rune{
	'。', '、', '!', '?', '/', '\\', '.', ',', '!', '?',
	'@', '#', '$', '%', '^', '&', '*', '(', ')', '[', ']',
	'{', '}', '<', '>', '|', '~', '`', '\'', '"', ';', ':',
	'+', '=',
}

// NormalizeChannelName converts name into a valid Slack channel name:
// lowercase, spaces as hyphens, no ASCII symbols except "-" and "_".
func NormalizeChannelName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), " ", "-")

	var result strings.Builder
	result.Grow(len(name))
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_':
			result.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			result.WriteRune(unicode.ToLower(r))
		case r > 127 && !slices.Contains(prohibitedRunes, r):
			result.WriteRune(r)
		}
	}
	return result.String()
}

// AgentChannelName is the conventional channel for one agent:
// "{prefix}-{agent id}", at most 80 characters.
func AgentChannelName(prefix, agentID string) string {
	name := NormalizeChannelName(agentID)
	if p := NormalizeChannelName(prefix); p != "" {
		name = p + "-" + name
	}
	name = truncateToMaxBytes(name, maxChannelNameLength)
	return strings.TrimRight(name, "-")
}

// truncateToMaxBytes cuts s to at most n bytes without splitting a rune.
func truncateToMaxBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
