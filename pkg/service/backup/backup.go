package backup

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/service/identity"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
	"github.com/secmon-lab/anemone/pkg/utils/safe"
)

// Uploader stores one object.
type Uploader interface {
	Upload(ctx context.Context, object string, r io.Reader) error
}

// Result summarizes one box backup.
type Result struct {
	AgentID string
	Prefix  string
	Objects []string
	Bytes   int64
}

// Box uploads every visible file of a box under
// "{prefix}/{agent id}/{20060102-150405}/". Hidden files and directories are
// skipped. The memory stream and identity are included.
func Box(ctx context.Context, up Uploader, boxDir, prefix string, now time.Time) (*Result, error) {
	agentID := identity.AgentIDFromBox(boxDir)
	if agentID == "" {
		agentID = filepath.Base(boxDir)
	}
	base := path.Join(strings.Trim(prefix, "/"), agentID, now.UTC().Format("20060102-150405"))
	result := &Result{AgentID: agentID, Prefix: base}
	logger := logging.From(ctx).With("agent_id", agentID)

	err := filepath.WalkDir(boxDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == boxDir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(boxDir, p)
		if err != nil {
			return goerr.Wrap(err, "failed to resolve box path", goerr.V("path", p))
		}
		object := path.Join(base, filepath.ToSlash(rel))

		n, err := uploadFile(ctx, up, p, object)
		if err != nil {
			return err
		}
		result.Objects = append(result.Objects, object)
		result.Bytes += n
		logger.Debug("uploaded", "object", object, "bytes", n)
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(err, "box does not exist", goerr.V("box", boxDir))
		}
		return result, goerr.Wrap(err, "backup failed", goerr.V("box", boxDir))
	}

	logger.Info("box backed up", "prefix", base, "objects", len(result.Objects), "bytes", result.Bytes)
	return result, nil
}

func uploadFile(ctx context.Context, up Uploader, p, object string) (int64, error) {
	// #nosec G304 - p was found by walking the box
	f, err := os.Open(p)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to open file", goerr.V("path", p))
	}
	defer safe.Close(ctx, f)

	counter := &countingReader{r: f}
	if err := up.Upload(ctx, object, counter); err != nil {
		return 0, err
	}
	return counter.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func contentType(object string) string {
	switch path.Ext(object) {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".json":
		return "application/json"
	case ".jsonl":
		return "application/x-ndjson"
	case ".txt", ".log":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
