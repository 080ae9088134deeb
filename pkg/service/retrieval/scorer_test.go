package retrieval_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/anemone/pkg/domain/model"
	"github.com/secmon-lab/anemone/pkg/repository/memory"
	"github.com/secmon-lab/anemone/pkg/service/retrieval"
)

var now = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

func TestScorer_Recency(t *testing.T) {
	s := retrieval.NewScorer(retrieval.DefaultDecayRate)

	t.Run("zero hours is exactly one", func(t *testing.T) {
		gt.Value(t, s.Recency(now, now)).Equal(1.0)
	})

	t.Run("strictly decreasing with age", func(t *testing.T) {
		prev := s.Recency(now, now)
		for _, h := range []float64{0.5, 1, 2, 24, 24 * 30, 24 * 365} {
			ts := now.Add(-time.Duration(h * float64(time.Hour)))
			r := s.Recency(ts, now)
			gt.Bool(t, r < prev).True()
			gt.Bool(t, r > 0).True()
			prev = r
		}
	})

	t.Run("matches exponential decay", func(t *testing.T) {
		r := s.Recency(now.Add(-10*time.Hour), now)
		gt.Bool(t, math.Abs(r-math.Exp(-0.005*10)) < 1e-12).True()
	})

	t.Run("future timestamps count as new", func(t *testing.T) {
		gt.Value(t, s.Recency(now.Add(time.Hour), now)).Equal(1.0)
	})

	t.Run("invalid decay falls back to default", func(t *testing.T) {
		gt.Value(t, retrieval.NewScorer(0).DecayRate).Equal(retrieval.DefaultDecayRate)
		gt.Value(t, retrieval.NewScorer(1.5).DecayRate).Equal(retrieval.DefaultDecayRate)
	})
}

func TestScorer_Score(t *testing.T) {
	s := retrieval.NewScorer(retrieval.DefaultDecayRate)

	t.Run("components are normalized", func(t *testing.T) {
		e := &model.MemoryEntry{ID: 1, Timestamp: now, Importance: 7, Embedding: []float64{1, 0}}
		sc := s.Score(e, []float64{1, 0}, now)
		gt.Value(t, sc.Recency).Equal(1.0)
		gt.Value(t, sc.Importance).Equal(0.7)
		gt.Value(t, sc.Relevance).Equal(1.0)
		gt.Value(t, sc.Total()).Equal(2.7)
	})

	t.Run("negative cosine is clamped to zero", func(t *testing.T) {
		e := &model.MemoryEntry{ID: 1, Timestamp: now, Importance: 1, Embedding: []float64{-1, 0}}
		gt.Value(t, s.Score(e, []float64{1, 0}, now).Relevance).Equal(0.0)
	})

	t.Run("missing embedding has no relevance", func(t *testing.T) {
		e := &model.MemoryEntry{ID: 1, Timestamp: now, Importance: 10}
		sc := s.Score(e, []float64{1, 0}, now)
		gt.Value(t, sc.Relevance).Equal(0.0)
		gt.Value(t, sc.Total()).Equal(2.0)
	})

	t.Run("dimension mismatch has no relevance", func(t *testing.T) {
		e := &model.MemoryEntry{ID: 1, Timestamp: now, Importance: 5, Embedding: []float64{1, 0, 0}}
		gt.Value(t, s.Score(e, []float64{1, 0}, now).Relevance).Equal(0.0)
	})
}

func TestScorer_Rank(t *testing.T) {
	s := retrieval.NewScorer(retrieval.DefaultDecayRate)
	entries := []*model.MemoryEntry{
		{ID: 1, Timestamp: now.Add(-48 * time.Hour), Importance: 9, Embedding: []float64{1, 0}},
		{ID: 2, Timestamp: now.Add(-2 * time.Hour), Importance: 3, Embedding: []float64{0, 1}},
		{ID: 3, Timestamp: now.Add(-1 * time.Hour), Importance: 5},
		{ID: 4, Timestamp: now.Add(-1 * time.Hour), Importance: 5},
		{ID: 5, Timestamp: now, Importance: 2, Embedding: []float64{0.7, 0.7}},
	}
	query := []float64{1, 0}

	t.Run("descending by total", func(t *testing.T) {
		ranked := s.Rank(entries, query, now, len(entries))
		gt.Array(t, ranked).Length(5).Required()
		for i := 1; i < len(ranked); i++ {
			gt.Bool(t, ranked[i-1].Total() >= ranked[i].Total()).True()
		}
		gt.Value(t, ranked[0].Entry.ID).Equal(model.MemoryID(1))
	})

	t.Run("ties prefer newer then higher id", func(t *testing.T) {
		tied := []*model.MemoryEntry{
			{ID: 1, Timestamp: now, Importance: 5},
			{ID: 2, Timestamp: now, Importance: 5},
		}
		ranked := s.Rank(tied, nil, now, 2)
		gt.Value(t, ranked[0].Entry.ID).Equal(model.MemoryID(2))

		older := []*model.MemoryEntry{
			{ID: 7, Timestamp: now.Add(-time.Second), Importance: 5},
			{ID: 3, Timestamp: now, Importance: 5},
		}
		// recency differs only marginally; force an exact tie with decay 1
		flat := retrieval.Scorer{DecayRate: 1}
		ranked = flat.Rank(older, nil, now, 2)
		gt.Value(t, ranked[0].Entry.ID).Equal(model.MemoryID(3))
	})

	t.Run("deterministic across calls and input order", func(t *testing.T) {
		first := s.Rank(entries, query, now, 3)
		reversed := make([]*model.MemoryEntry, len(entries))
		for i, e := range entries {
			reversed[len(entries)-1-i] = e
		}
		for range 10 {
			again := s.Rank(reversed, query, now, 3)
			gt.Array(t, again).Length(3).Required()
			for i := range again {
				gt.Value(t, again[i].Entry.ID).Equal(first[i].Entry.ID)
				gt.Value(t, again[i].Total()).Equal(first[i].Total())
			}
		}
	})

	t.Run("k bounds", func(t *testing.T) {
		gt.Array(t, s.Rank(entries, query, now, 0)).Length(0)
		gt.Array(t, s.Rank(entries, query, now, 100)).Length(5)
	})
}

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float64, error)
	calls   int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	m.calls++
	return m.embedFn(ctx, text)
}

func TestRetriever(t *testing.T) {
	ctx := context.Background()
	store := memory.New(memory.WithClock(func() time.Time { return now }))
	for _, e := range []*model.MemoryEntry{
		{Kind: model.MemoryKindThought, Content: "tides", Importance: 4, Embedding: []float64{1, 0}},
		{Kind: model.MemoryKindThought, Content: "fungi", Importance: 4, Embedding: []float64{0, 1}},
	} {
		_, err := store.Append(ctx, e)
		gt.NoError(t, err).Required()
	}

	t.Run("embeds query once and ranks by relevance", func(t *testing.T) {
		emb := &mockEmbedder{embedFn: func(ctx context.Context, text string) ([]float64, error) {
			return []float64{0, 1}, nil
		}}
		r := retrieval.NewRetriever(store, emb, retrieval.NewScorer(0.995), retrieval.WithClock(func() time.Time { return now }))

		got, err := r.Retrieve(ctx, "mushrooms", 1)
		gt.NoError(t, err).Required()
		gt.Array(t, got).Length(1).Required()
		gt.Value(t, got[0].Entry.Content).Equal("fungi")
		gt.Value(t, emb.calls).Equal(1)
	})

	t.Run("embedding failure falls back to recency and importance", func(t *testing.T) {
		emb := &mockEmbedder{embedFn: func(ctx context.Context, text string) ([]float64, error) {
			return nil, errors.New("rate limited")
		}}
		r := retrieval.NewRetriever(store, emb, retrieval.NewScorer(0.995), retrieval.WithClock(func() time.Time { return now }))

		got, err := r.Retrieve(ctx, "anything", 2)
		gt.NoError(t, err).Required()
		gt.Array(t, got).Length(2).Required()
		gt.Value(t, got[0].Relevance).Equal(0.0)
		gt.Value(t, got[0].Entry.ID).Equal(model.MemoryID(2))
	})
}
