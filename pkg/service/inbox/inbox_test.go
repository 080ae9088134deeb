package inbox_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/anemone/pkg/service/inbox"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	gt.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750)).Required()
	gt.NoError(t, os.WriteFile(path, []byte(content), 0o600)).Required()
}

func TestIgnored(t *testing.T) {
	gt.Bool(t, inbox.Ignored("memory_stream.jsonl")).True()
	gt.Bool(t, inbox.Ignored("identity.json")).True()
	gt.Bool(t, inbox.Ignored("anemone.toml")).True()
	gt.Bool(t, inbox.Ignored(".hidden")).True()
	gt.Bool(t, inbox.Ignored(".venv/bin/python")).True()
	gt.Bool(t, inbox.Ignored("notes/today.md")).False()
	gt.Bool(t, inbox.Ignored("gift.txt")).False()
}

func TestScanner_Prime(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "identity.json", "{}")
	writeFile(t, dir, "memory_stream.jsonl", "")
	writeFile(t, dir, "projects.md", "# Current focus\nfungi")
	writeFile(t, dir, "research/spores.md", "old notes")
	writeFile(t, dir, "gift.txt", "a letter")
	writeFile(t, dir, ".secret", "x")

	s := inbox.NewScanner(dir)
	gt.NoError(t, s.Prime()).Required()

	files, err := s.Scan()
	gt.NoError(t, err).Required()
	gt.Array(t, files).Length(1).Required()
	gt.Value(t, files[0].Name).Equal("gift.txt")
	gt.Value(t, files[0].Preview).Equal("a letter")

	again, err := s.Scan()
	gt.NoError(t, err).Required()
	gt.Array(t, again).Length(0)
}

func TestScanner_Scan(t *testing.T) {
	dir := t.TempDir()
	s := inbox.NewScanner(dir)
	gt.NoError(t, s.Reset()).Required()

	t.Run("previews are bounded", func(t *testing.T) {
		writeFile(t, dir, "long.md", strings.Repeat("x", inbox.PreviewLimit+500))
		writeFile(t, dir, "photo.png", "\x89PNG")
		writeFile(t, dir, "blob.bin", "\x00\x01")

		files, err := s.Scan()
		gt.NoError(t, err).Required()
		gt.Array(t, files).Length(3).Required()

		gt.Value(t, files[0].Name).Equal("blob.bin")
		gt.String(t, files[0].Preview).Contains("binary file")
		gt.Value(t, files[1].Name).Equal("long.md")
		gt.Number(t, len(files[1].Preview)).Equal(inbox.PreviewLimit)
		gt.String(t, files[2].Preview).Contains("image file")
	})

	t.Run("own files are not reported", func(t *testing.T) {
		writeFile(t, dir, "notes/mine.md", "written by the agent")
		gt.Bool(t, s.IsNew("notes/mine.md")).True()
		s.MarkSeen("notes/mine.md")
		gt.Bool(t, s.IsNew("notes/mine.md")).False()

		files, err := s.Scan()
		gt.NoError(t, err).Required()
		gt.Array(t, files).Length(0)
	})

	t.Run("list is sorted", func(t *testing.T) {
		names, err := s.List()
		gt.NoError(t, err).Required()
		gt.Value(t, names).Equal([]string{"blob.bin", "long.md", "notes/mine.md", "photo.png"})
	})
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	w, err := inbox.NewWatcher(dir)
	gt.NoError(t, err).Required()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	writeFile(t, dir, "memory_stream.jsonl", "ignored")
	writeFile(t, dir, "drop.txt", "hello")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case rel := <-w.Changes():
			gt.Value(t, rel).NotEqual("memory_stream.jsonl")
			if rel == "drop.txt" {
				return
			}
		case <-deadline:
			t.Fatal("no change notification for drop.txt")
		}
	}
}
