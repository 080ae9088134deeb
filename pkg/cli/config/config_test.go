package config_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/anemone/pkg/cli/config"
)

func TestSearch_Configure(t *testing.T) {
	t.Run("disabled without API key", func(t *testing.T) {
		gt.Value(t, config.NewSearchForTest("", "").Configure()).Nil()
	})

	t.Run("enabled with API key", func(t *testing.T) {
		gt.Value(t, config.NewSearchForTest("ollama-key", "http://127.0.0.1:1/api/web_search").Configure()).NotNil()
	})

	t.Run("returns flags", func(t *testing.T) {
		gt.Array(t, config.NewSearchForTest("", "").Flags()).Length(2)
	})
}

func TestSlack_Configure(t *testing.T) {
	t.Run("disabled without bot token", func(t *testing.T) {
		sidecar, err := config.NewSlackForTest("", "tidepool", "", "").Configure()
		gt.NoError(t, err)
		gt.Bool(t, sidecar == nil).True()
	})

	t.Run("channel is required", func(t *testing.T) {
		_, err := config.NewSlackForTest("xoxb-test", "", "", "").Configure()
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})

	t.Run("enabled with token and channel", func(t *testing.T) {
		sidecar, err := config.NewSlackForTest("xoxb-test", "tidepool", "", "").Configure()
		gt.NoError(t, err)
		gt.Bool(t, sidecar != nil).True()
	})

	t.Run("channel per agent", func(t *testing.T) {
		cfg := config.NewSlackForTest("xoxb-test", "", "anemone", "")
		gt.Value(t, cfg.ChannelFor("coral")).Equal("anemone-coral")

		shared := config.NewSlackForTest("xoxb-test", "tidepool", "anemone", "")
		gt.Value(t, shared.ChannelFor("coral")).Equal("tidepool")
	})
}

func TestSentry_Configure(t *testing.T) {
	t.Run("disabled without DSN", func(t *testing.T) {
		flush, err := config.NewSentryForTest("").Configure("dev")
		gt.NoError(t, err)
		flush()
	})

	t.Run("invalid DSN", func(t *testing.T) {
		_, err := config.NewSentryForTest("not a dsn").Configure("dev")
		gt.Error(t, err)
	})
}

func TestStorage_Configure(t *testing.T) {
	t.Run("bucket is required", func(t *testing.T) {
		_, err := config.NewStorageForTest("", "anemone", "").Configure(t.Context())
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})

	t.Run("custom endpoint", func(t *testing.T) {
		gcs, err := config.NewStorageForTest("boxes", "anemone", "http://127.0.0.1:1/storage/v1/").Configure(t.Context())
		gt.NoError(t, err).Required()
		gt.NoError(t, gcs.Close())
		gt.Value(t, config.NewStorageForTest("boxes", "anemone", "").Prefix()).Equal("anemone")
	})
}

func TestConfigErrors_SentinelIdentification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"ErrConfigNotFound", goerr.Wrap(config.ErrConfigNotFound, "failed to load"), config.ErrConfigNotFound},
		{"ErrInvalidConfig", goerr.Wrap(config.ErrInvalidConfig, "validation failed"), config.ErrInvalidConfig},
		{"ErrUnknownProvider", goerr.Wrap(config.ErrUnknownProvider, "bad provider"), config.ErrUnknownProvider},
		{"ErrMissingAPIKey", goerr.Wrap(config.ErrMissingAPIKey, "no key"), config.ErrMissingAPIKey},
		{"ErrUnsupportedFormat", goerr.Wrap(config.ErrUnsupportedFormat, "json"), config.ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Error(t, tt.err).Is(tt.sentinel)
			gt.Bool(t, errors.Is(tt.err, config.ErrInvalidConfig) == (tt.sentinel == config.ErrInvalidConfig)).True()
		})
	}
}
