package identity

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/domain/model"
	"github.com/secmon-lab/anemone/pkg/utils/safe"
)

const (
	// FileName is the identity file inside a box.
	FileName = "identity.json"

	// BoxSuffix marks a directory as an agent box.
	BoxSuffix = "_box"
)

var (
	ErrNoIdentity     = goerr.New("box has no identity")
	ErrBoxExists      = goerr.New("box already exists")
	ErrInvalidAgentID = goerr.New("invalid agent id")
)

var agentIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// ValidateAgentID accepts lowercase letters, digits, '-' and '_'.
func ValidateAgentID(id string) error {
	if !agentIDPattern.MatchString(id) || strings.HasSuffix(id, BoxSuffix) {
		return goerr.Wrap(ErrInvalidAgentID, "agent id must be lowercase alphanumeric", goerr.V("id", id))
	}
	return nil
}

// AgentIDFromName derives a default agent id from a display name.
func AgentIDFromName(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		case r == ' ':
			sb.WriteRune('-')
		}
	}
	return strings.Trim(sb.String(), "-_")
}

// BoxDir returns the box directory of agentID under root.
func BoxDir(root, agentID string) string {
	return filepath.Join(root, agentID+BoxSuffix)
}

// AgentIDFromBox returns the agent id for a box directory, or "" when dir is
// not named like a box.
func AgentIDFromBox(dir string) string {
	base := filepath.Base(dir)
	if !strings.HasSuffix(base, BoxSuffix) || base == BoxSuffix {
		return ""
	}
	return strings.TrimSuffix(base, BoxSuffix)
}

// Load reads identity.json from boxDir. It wraps ErrNoIdentity when the file
// is missing.
func Load(boxDir string) (*model.Identity, error) {
	path := filepath.Join(boxDir, FileName)
	// #nosec G304 - box paths come from discovery under the configured root
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, goerr.Wrap(ErrNoIdentity, "identity.json not found", goerr.V("box", boxDir))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read identity", goerr.V("path", path))
	}

	var id model.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, goerr.Wrap(err, "failed to decode identity", goerr.V("path", path))
	}
	if err := id.Validate(); err != nil {
		return nil, goerr.Wrap(err, "identity is incomplete", goerr.V("path", path))
	}
	return &id, nil
}

// Save writes identity.json into boxDir, creating the directory.
func Save(boxDir string, id *model.Identity) error {
	if err := id.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(boxDir, 0o750); err != nil {
		return goerr.Wrap(err, "failed to create box", goerr.V("box", boxDir))
	}

	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to encode identity")
	}
	if err := safe.WriteFile(filepath.Join(boxDir, FileName), append(data, '\n'), 0o600); err != nil {
		return goerr.Wrap(err, "failed to write identity", goerr.V("box", boxDir))
	}
	return nil
}

// Hatch creates a new box for agentID under root. An existing box is never
// overwritten.
func Hatch(root, agentID string, id *model.Identity) (string, error) {
	if err := ValidateAgentID(agentID); err != nil {
		return "", err
	}

	dir := BoxDir(root, agentID)
	if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
		return "", goerr.Wrap(ErrBoxExists, "agent already hatched", goerr.V("box", dir))
	}

	if err := Save(dir, id); err != nil {
		return "", err
	}
	return dir, nil
}
