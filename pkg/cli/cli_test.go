package cli_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/anemone/pkg/cli"
	"github.com/secmon-lab/anemone/pkg/service/identity"
)

func run(t *testing.T, ctx context.Context, args ...string) error {
	t.Helper()
	return cli.Run(ctx, append([]string{"anemone", "--log-level", "error"}, args...), "test")
}

func TestHatch(t *testing.T) {
	root := t.TempDir()

	gt.NoError(t, run(t, t.Context(), "hatch", "--root", root, "--random", "Coral", "Reef")).Required()

	dir := identity.BoxDir(root, "coral-reef")
	ident, err := identity.Load(dir)
	gt.NoError(t, err).Required()
	gt.Value(t, ident.Name).Equal("Coral Reef")
	gt.Array(t, ident.Domains).Length(3)

	t.Run("existing box is never overwritten", func(t *testing.T) {
		err := run(t, t.Context(), "hatch", "--root", root, "--random", "Coral", "Reef")
		gt.Error(t, err).Is(identity.ErrBoxExists)

		again, err := identity.Load(dir)
		gt.NoError(t, err).Required()
		gt.Value(t, again.Genome).Equal(ident.Genome)
	})

	t.Run("explicit id", func(t *testing.T) {
		gt.NoError(t, run(t, t.Context(), "hatch", "--root", root, "--random", "--id", "kelp", "Big Kelp"))
		_, err := os.Stat(filepath.Join(root, "kelp_box", identity.FileName))
		gt.NoError(t, err)
	})

	t.Run("invalid id", func(t *testing.T) {
		err := run(t, t.Context(), "hatch", "--root", root, "--random", "--id", "Not Valid", "Urchin")
		gt.Error(t, err).Is(identity.ErrInvalidAgentID)
	})

	t.Run("name is required", func(t *testing.T) {
		gt.Error(t, run(t, t.Context(), "hatch", "--root", root, "--random"))
	})
}

func TestList(t *testing.T) {
	root := t.TempDir()
	gt.NoError(t, run(t, t.Context(), "hatch", "--root", root, "--random", "Coral")).Required()

	gt.NoError(t, run(t, t.Context(), "list", "--root", root))
	gt.Error(t, run(t, t.Context(), "list", "--root", filepath.Join(root, "missing")))
}

func TestBackup(t *testing.T) {
	root := t.TempDir()
	gt.NoError(t, run(t, t.Context(), "hatch", "--root", root, "--random", "Coral")).Required()

	t.Run("bucket is required", func(t *testing.T) {
		gt.Error(t, run(t, t.Context(), "backup", "--root", root))
	})

	t.Run("unknown agent", func(t *testing.T) {
		gt.Error(t, run(t, t.Context(), "backup", "--root", root, "--bucket", "boxes", "--agent", "kelp"))
	})

	t.Run("empty root", func(t *testing.T) {
		gt.Error(t, run(t, t.Context(), "backup", "--root", t.TempDir(), "--bucket", "boxes"))
	})
}

func TestRun(t *testing.T) {
	t.Run("stops when the context is done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		gt.NoError(t, run(t, ctx, "run", "--root", t.TempDir(), "--addr", "", "--rediscover", ""))
	})

	t.Run("broken settings file", func(t *testing.T) {
		root := t.TempDir()
		gt.NoError(t, os.WriteFile(filepath.Join(root, "anemone.toml"), []byte(`provider = "parrot"`), 0o600)).Required()
		gt.Error(t, run(t, t.Context(), "run", "--root", root, "--addr", ""))
	})

	t.Run("invalid log level", func(t *testing.T) {
		err := cli.Run(t.Context(), []string{"anemone", "--log-level", "loud", "list"}, "test")
		gt.Error(t, err)
	})
}
