package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// MemoryID is a per-agent monotonic identifier. It is persisted as "m_0001".
type MemoryID int64

const memoryIDPrefix = "m_"

func (x MemoryID) String() string {
	return fmt.Sprintf("%s%04d", memoryIDPrefix, int64(x))
}

// ParseMemoryID parses the persisted "m_0001" form.
func ParseMemoryID(s string) (MemoryID, error) {
	num, ok := strings.CutPrefix(s, memoryIDPrefix)
	if !ok {
		return 0, goerr.Wrap(ErrInvalidMemoryID, "missing prefix", goerr.V("id", s))
	}
	v, err := strconv.ParseInt(num, 10, 64)
	if err != nil || v <= 0 {
		return 0, goerr.Wrap(ErrInvalidMemoryID, "not a positive integer", goerr.V("id", s))
	}
	return MemoryID(v), nil
}

func (x MemoryID) MarshalJSON() ([]byte, error) {
	return json.Marshal(x.String())
}

func (x *MemoryID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return goerr.Wrap(err, "memory id must be a string")
	}
	id, err := ParseMemoryID(s)
	if err != nil {
		return err
	}
	*x = id
	return nil
}

// MemoryKind classifies a MemoryEntry.
type MemoryKind string

const (
	MemoryKindThought    MemoryKind = "thought"
	MemoryKindReflection MemoryKind = "reflection"
	MemoryKindPlanning   MemoryKind = "planning"
)

func (k MemoryKind) Validate() error {
	switch k {
	case MemoryKindThought, MemoryKindReflection, MemoryKindPlanning:
		return nil
	default:
		return goerr.Wrap(ErrInvalidMemoryKind, "unknown memory kind", goerr.V("kind", string(k)))
	}
}

const (
	MinImportance     = 1
	MaxImportance     = 10
	DefaultImportance = 5
)

// ClampImportance forces v into [MinImportance, MaxImportance].
func ClampImportance(v int) int {
	return max(MinImportance, min(MaxImportance, v))
}

// MemoryEntry is one immutable record of an agent's memory stream.
type MemoryEntry struct {
	ID         MemoryID   `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	Kind       MemoryKind `json:"kind"`
	Content    string     `json:"content"`
	Importance int        `json:"importance"`
	Depth      int        `json:"depth"`
	References []MemoryID `json:"references"`
	Embedding  []float64  `json:"embedding"`
}

// Copy returns a deep copy so stores never hand out aliased slices.
func (e *MemoryEntry) Copy() *MemoryEntry {
	copied := *e
	copied.References = slices.Clone(e.References)
	if copied.References == nil {
		copied.References = []MemoryID{}
	}
	copied.Embedding = slices.Clone(e.Embedding)
	return &copied
}

// HasEmbedding reports whether the entry can take part in relevance scoring.
func (e *MemoryEntry) HasEmbedding() bool {
	return len(e.Embedding) > 0
}

// Seal validates draft against the already stored entries and returns the
// entry that should be persisted with the given id and timestamp. Depth is
// always derived here: 0 for thoughts, 1 + max(depth of references) otherwise.
// lookup must return entries that were stored before id.
func Seal(draft *MemoryEntry, id MemoryID, ts time.Time, lookup func(MemoryID) (*MemoryEntry, bool)) (*MemoryEntry, error) {
	if err := draft.Kind.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(draft.Content) == "" {
		return nil, goerr.Wrap(ErrEmptyContent, "memory content is empty", goerr.V("kind", draft.Kind))
	}

	sealed := draft.Copy()
	sealed.ID = id
	sealed.Timestamp = ts
	sealed.Importance = ClampImportance(draft.Importance)

	if sealed.Kind == MemoryKindThought {
		if len(sealed.References) > 0 {
			return nil, goerr.Wrap(ErrInvalidReference, "thought must not reference other entries", goerr.V("references", sealed.References))
		}
		sealed.Depth = 0
		return sealed, nil
	}

	if len(sealed.References) == 0 {
		return nil, goerr.Wrap(ErrInvalidReference, "derived memory requires references", goerr.V("kind", sealed.Kind))
	}

	maxDepth := 0
	seen := make(map[MemoryID]struct{}, len(sealed.References))
	refs := make([]MemoryID, 0, len(sealed.References))
	for _, ref := range sealed.References {
		if ref >= id {
			return nil, goerr.Wrap(ErrInvalidReference, "reference must point to an earlier entry", goerr.V("id", id), goerr.V("reference", ref))
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}

		parent, ok := lookup(ref)
		if !ok {
			return nil, goerr.Wrap(ErrInvalidReference, "reference not found", goerr.V("reference", ref))
		}
		maxDepth = max(maxDepth, parent.Depth)
		refs = append(refs, ref)
	}
	sealed.References = refs
	sealed.Depth = maxDepth + 1

	return sealed, nil
}

// FormatForPrompt renders the entry as "[kind] (importance N): content".
func (e *MemoryEntry) FormatForPrompt() string {
	return fmt.Sprintf("[%s] (importance %d): %s", e.Kind, e.Importance, e.Content)
}
