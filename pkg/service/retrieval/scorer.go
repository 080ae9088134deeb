package retrieval

import (
	"math"
	"sort"
	"time"

	"github.com/secmon-lab/anemone/pkg/domain/model"
)

// DefaultDecayRate is the per-hour retention factor for recency.
const DefaultDecayRate = 0.995

// Scorer ranks memories by recency + importance + relevance, each in [0,1].
type Scorer struct {
	DecayRate float64
}

func NewScorer(decayRate float64) Scorer {
	if decayRate <= 0 || decayRate > 1 {
		decayRate = DefaultDecayRate
	}
	return Scorer{DecayRate: decayRate}
}

// Score is the breakdown of one entry's retrieval score.
type Score struct {
	Entry      *model.MemoryEntry
	Recency    float64
	Importance float64
	Relevance  float64
}

func (s Score) Total() float64 {
	return s.Recency + s.Importance + s.Relevance
}

// Recency is exp(-(1-decay) * hours since ts). Entries from the future are
// treated as brand new.
func (x Scorer) Recency(ts, now time.Time) float64 {
	hours := now.Sub(ts).Hours()
	if hours <= 0 {
		return 1.0
	}
	return math.Exp(-(1 - x.DecayRate) * hours)
}

func (x Scorer) Score(e *model.MemoryEntry, query []float64, now time.Time) Score {
	s := Score{
		Entry:      e,
		Recency:    x.Recency(e.Timestamp, now),
		Importance: float64(e.Importance) / float64(model.MaxImportance),
	}
	if e.HasEmbedding() && len(query) > 0 {
		s.Relevance = max(0, CosineSimilarity(e.Embedding, query))
	}
	return s
}

// Rank scores entries and returns the top k by descending total. Ties go to
// the more recent entry, then to the higher id, so the output depends only on
// the arguments.
func (x Scorer) Rank(entries []*model.MemoryEntry, query []float64, now time.Time, k int) []Score {
	if k <= 0 || len(entries) == 0 {
		return []Score{}
	}

	scores := make([]Score, len(entries))
	for i, e := range entries {
		scores[i] = x.Score(e, query, now)
	}

	sort.SliceStable(scores, func(i, j int) bool {
		ti, tj := scores[i].Total(), scores[j].Total()
		if ti != tj {
			return ti > tj
		}
		ei, ej := scores[i].Entry, scores[j].Entry
		if !ei.Timestamp.Equal(ej.Timestamp) {
			return ei.Timestamp.After(ej.Timestamp)
		}
		return ei.ID > ej.ID
	})

	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k]
}

// CosineSimilarity returns 0 for mismatched lengths or zero vectors.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
