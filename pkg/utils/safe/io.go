package safe

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
)

// Close closes closer and logs any error. A nil closer is ignored.
func Close(ctx context.Context, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.From(ctx).Error("Failed to close", slog.Any("error", err))
	}
}

// WriteFile replaces path with data via a temporary file in the same
// directory, fsync and rename, so readers never observe a partial file.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return goerr.Wrap(err, "failed to create temp file", goerr.V("path", path))
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return goerr.Wrap(err, "failed to write temp file", goerr.V("path", path))
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return goerr.Wrap(err, "failed to sync temp file", goerr.V("path", path))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "failed to close temp file", goerr.V("path", path))
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return goerr.Wrap(err, "failed to chmod temp file", goerr.V("path", path))
	}
	if err := os.Rename(tmpName, path); err != nil {
		return goerr.Wrap(err, "failed to rename temp file", goerr.V("path", path))
	}
	return nil
}

// AppendFile appends data to path, creating it if needed, and syncs before
// returning.
func AppendFile(path string, data []byte, perm os.FileMode) error {
	// #nosec G304 - path is derived from the agent's own box
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, perm)
	if err != nil {
		return goerr.Wrap(err, "failed to open file for append", goerr.V("path", path))
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return goerr.Wrap(err, "failed to append", goerr.V("path", path))
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return goerr.Wrap(err, "failed to sync", goerr.V("path", path))
	}
	return f.Close()
}
