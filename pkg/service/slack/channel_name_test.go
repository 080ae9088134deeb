package slack_test

import (
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/anemone/pkg/service/slack"
)

func TestNormalizeChannelName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "basic pattern",
			input: "Coral Reef",
			want:  "coral-reef",
		},
		{
			name:  "multiple spaces",
			input: "multiple   spaces",
			want:  "multiple---spaces",
		},
		{
			name:  "symbols removed",
			input: "coral.bot/v2!",
			want:  "coralbotv2",
		},
		{
			name:  "non-ASCII preserved",
			input: "イソギンチャク",
			want:  "イソギンチャク",
		},
		{
			name:  "full-width punctuation removed",
			input: "テスト。、！",
			want:  "テスト",
		},
		{
			name:  "underscore and hyphen kept",
			input: "sea_anemone-01",
			want:  "sea_anemone-01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Value(t, slack.NormalizeChannelName(tt.input)).Equal(tt.want)
		})
	}
}

func TestAgentChannelName(t *testing.T) {
	t.Run("prefix and agent id", func(t *testing.T) {
		gt.Value(t, slack.AgentChannelName("Anemone", "coral")).Equal("anemone-coral")
	})

	t.Run("no prefix", func(t *testing.T) {
		gt.Value(t, slack.AgentChannelName("", "coral")).Equal("coral")
	})

	t.Run("truncated to 80 bytes without trailing hyphen", func(t *testing.T) {
		got := slack.AgentChannelName("anemone", strings.Repeat("a", 71)+"-tail")
		gt.Number(t, len(got)).LessOrEqual(80)
		gt.Bool(t, strings.HasSuffix(got, "-")).False()
		gt.Bool(t, strings.HasPrefix(got, "anemone-aaaa")).True()
	})

	t.Run("multi-byte runes are not split", func(t *testing.T) {
		got := slack.AgentChannelName("", strings.Repeat("あ", 30))
		gt.Value(t, got).Equal(strings.Repeat("あ", 26))
	})
}
