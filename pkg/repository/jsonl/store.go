package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/domain/interfaces"
	"github.com/secmon-lab/anemone/pkg/domain/model"
	"github.com/secmon-lab/anemone/pkg/repository/memory"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
)

// FileName is the memory stream file inside a box.
const FileName = "memory_stream.jsonl"

// Store is the durable memory stream of one agent: one JSON record per line,
// appended and fsynced before Append returns.
type Store struct {
	path  string
	index *memory.Store

	mu     sync.Mutex
	file   *os.File
	closed bool
}

var _ interfaces.MemoryStore = &Store{}

// Open replays path (creating it if missing) and returns a store positioned
// for appends. A trailing partial line left by a crash is dropped.
func Open(ctx context.Context, path string, opts ...memory.Option) (*Store, error) {
	entries, validSize, err := replay(ctx, path)
	if err != nil {
		return nil, err
	}

	// #nosec G304 - path is the agent's own memory stream
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open memory stream", goerr.V("path", path))
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, goerr.Wrap(err, "failed to stat memory stream", goerr.V("path", path))
	}
	if info.Size() > validSize {
		logging.From(ctx).Warn("truncating partial record at end of memory stream",
			"path", path, "size", info.Size(), "valid_size", validSize)
		if err := f.Truncate(validSize); err != nil {
			_ = f.Close()
			return nil, goerr.Wrap(err, "failed to truncate memory stream", goerr.V("path", path))
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return nil, goerr.Wrap(err, "failed to sync memory stream", goerr.V("path", path))
		}
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		_ = f.Close()
		return nil, goerr.Wrap(err, "failed to seek memory stream", goerr.V("path", path))
	}

	index := memory.New(opts...)
	if err := index.Load(entries); err != nil {
		_ = f.Close()
		return nil, goerr.Wrap(err, "corrupt memory stream", goerr.V("path", path))
	}

	return &Store{path: path, index: index, file: f}, nil
}

// OpenBox opens the memory stream inside boxDir.
func OpenBox(ctx context.Context, boxDir string, opts ...memory.Option) (*Store, error) {
	return Open(ctx, filepath.Join(boxDir, FileName), opts...)
}

// replay reads all complete records. It returns the byte length of the valid
// prefix so a torn final line can be cut off.
func replay(ctx context.Context, path string) ([]*model.MemoryEntry, int64, error) {
	// #nosec G304 - path is the agent's own memory stream
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, goerr.Wrap(err, "failed to read memory stream", goerr.V("path", path))
	}

	var (
		entries []*model.MemoryEntry
		offset  int64
		lineNo  int
	)
	reader := bufio.NewReader(bytes.NewReader(data))
	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			if len(bytes.TrimSpace(line)) > 0 {
				// no newline: the last write never completed
				logging.From(ctx).Warn("ignoring incomplete final record", "path", path, "line", lineNo+1)
			}
			break
		}
		if err != nil {
			return nil, 0, goerr.Wrap(err, "failed to scan memory stream", goerr.V("path", path))
		}
		lineNo++

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			var e model.MemoryEntry
			if err := json.Unmarshal(trimmed, &e); err != nil {
				if int64(len(data)) == offset+int64(len(line)) {
					logging.From(ctx).Warn("ignoring malformed final record", "path", path, "line", lineNo)
					break
				}
				return nil, 0, goerr.Wrap(err, "malformed memory record", goerr.V("path", path), goerr.V("line", lineNo))
			}
			entries = append(entries, &e)
		}
		offset += int64(len(line))
	}

	return entries, offset, nil
}

func (s *Store) persist(e *model.MemoryEntry) error {
	if s.closed {
		return goerr.New("memory stream is closed", goerr.V("path", s.path))
	}

	line, err := json.Marshal(e)
	if err != nil {
		return goerr.Wrap(err, "failed to encode memory entry", goerr.V("id", e.ID))
	}
	line = append(line, '\n')

	if _, err := s.file.Write(line); err != nil {
		return goerr.Wrap(err, "failed to write memory entry", goerr.V("id", e.ID), goerr.V("path", s.path))
	}
	if err := s.file.Sync(); err != nil {
		return goerr.Wrap(err, "failed to sync memory stream", goerr.V("id", e.ID), goerr.V("path", s.path))
	}
	return nil
}

func (s *Store) Append(ctx context.Context, entry *model.MemoryEntry) (*model.MemoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.index.AppendWith(ctx, entry, s.persist)
	if err != nil {
		return nil, err
	}
	logging.From(ctx).Debug("memory appended",
		"id", stored.ID.String(),
		"kind", stored.Kind,
		"importance", stored.Importance,
		"depth", stored.Depth,
		"has_embedding", stored.HasEmbedding(),
	)
	return stored, nil
}

func (s *Store) Get(ctx context.Context, id model.MemoryID) (*model.MemoryEntry, error) {
	return s.index.Get(ctx, id)
}

func (s *Store) GetMany(ctx context.Context, ids []model.MemoryID) ([]*model.MemoryEntry, error) {
	return s.index.GetMany(ctx, ids)
}

func (s *Store) ListSince(ctx context.Context, since time.Time) ([]*model.MemoryEntry, error) {
	return s.index.ListSince(ctx, since)
}

func (s *Store) Recent(ctx context.Context, n int) ([]*model.MemoryEntry, error) {
	return s.index.Recent(ctx, n)
}

func (s *Store) All(ctx context.Context) ([]*model.MemoryEntry, error) {
	return s.index.All(ctx)
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Close waits for any in-flight append and closes the file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.file.Close(); err != nil {
		return goerr.Wrap(err, "failed to close memory stream", goerr.V("path", s.path))
	}
	return nil
}
