package inbox

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/domain/model"
	"github.com/secmon-lab/anemone/pkg/utils/strutil"
)

// PreviewLimit is the maximum number of characters shown of a new text file.
const PreviewLimit = 2000

var (
	// ignoredFiles are managed by the runtime and never reported.
	ignoredFiles = []string{
		"memory_stream.jsonl",
		"identity.json",
		"anemone.toml",
		"anemone.yaml",
		"anemone.yml",
	}

	// internalRootFiles are written by the agent's own planning.
	internalRootFiles = []string{"projects.md"}

	textExts  = []string{".txt", ".md", ".py", ".json", ".csv", ".yaml", ".yml", ".toml", ".js", ".ts", ".html", ".css", ".sh", ".log", ".go"}
	imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}
)

// Ignored reports whether rel (slash separated, relative to the box) is never
// part of the inbox.
func Ignored(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return slices.Contains(ignoredFiles, filepath.Base(rel))
}

// Scanner detects files that appeared in a box since the previous scan.
// It is owned by a single loop and is not safe for concurrent use.
type Scanner struct {
	dir  string
	seen map[string]struct{}
}

func NewScanner(dir string) *Scanner {
	return &Scanner{dir: dir, seen: map[string]struct{}{}}
}

// Files returns every visible file in the box, relative and slash separated.
func (x *Scanner) Files() (map[string]struct{}, error) {
	files := map[string]struct{}{}
	err := filepath.WalkDir(x.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if path == x.dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(x.dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !Ignored(rel) {
			files[rel] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to scan box", goerr.V("dir", x.dir))
	}
	return files, nil
}

// List returns the visible files sorted by name.
func (x *Scanner) List() ([]string, error) {
	files, err := x.Files()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Prime records the starting state. Files in subdirectories and the agent's
// own root files are treated as already seen; other root-level files stay
// unseen so the first Scan reports them.
func (x *Scanner) Prime() error {
	files, err := x.Files()
	if err != nil {
		return err
	}
	x.seen = map[string]struct{}{}
	for name := range files {
		if strings.Contains(name, "/") || slices.Contains(internalRootFiles, name) {
			x.seen[name] = struct{}{}
		}
	}
	return nil
}

// Reset marks everything currently in the box as seen.
func (x *Scanner) Reset() error {
	files, err := x.Files()
	if err != nil {
		return err
	}
	x.seen = files
	return nil
}

// MarkSeen records files the agent wrote itself.
func (x *Scanner) MarkSeen(names ...string) {
	for _, name := range names {
		x.seen[filepath.ToSlash(name)] = struct{}{}
	}
}

// IsNew reports whether rel exists and has not been seen.
func (x *Scanner) IsNew(rel string) bool {
	rel = filepath.ToSlash(rel)
	if Ignored(rel) {
		return false
	}
	if _, ok := x.seen[rel]; ok {
		return false
	}
	info, err := os.Stat(filepath.Join(x.dir, filepath.FromSlash(rel)))
	return err == nil && info.Mode().IsRegular()
}

// Scan returns the files that are new since the last scan, with previews,
// sorted by name. Afterwards the current box contents count as seen.
func (x *Scanner) Scan() ([]model.InboxFile, error) {
	current, err := x.Files()
	if err != nil {
		return nil, err
	}

	var names []string
	for name := range current {
		if _, ok := x.seen[name]; !ok {
			names = append(names, name)
		}
	}
	x.seen = current
	slices.Sort(names)

	files := make([]model.InboxFile, 0, len(names))
	for _, name := range names {
		files = append(files, model.InboxFile{
			Name:    name,
			Preview: x.preview(name),
		})
	}
	return files, nil
}

func (x *Scanner) preview(rel string) string {
	ext := strings.ToLower(filepath.Ext(rel))
	switch {
	case slices.Contains(textExts, ext):
		// #nosec G304 - rel was found by walking the box
		data, err := os.ReadFile(filepath.Join(x.dir, filepath.FromSlash(rel)))
		if err != nil {
			return "(could not read file)"
		}
		return strutil.Truncate(string(data), PreviewLimit)
	case slices.Contains(imageExts, ext):
		return "(image file: " + rel + ")"
	default:
		return "(binary file: " + rel + ")"
	}
}
