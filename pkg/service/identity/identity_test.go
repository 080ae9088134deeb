package identity_test

import (
	"crypto/sha512"
	"encoding/hex"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/anemone/pkg/domain/model"
	"github.com/secmon-lab/anemone/pkg/service/identity"
)

var birthday = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func sampleKeys() []identity.Keystroke {
	return []identity.Keystroke{
		{Char: 'h', Interval: 0},
		{Char: 'é', Interval: 180 * time.Millisecond},
		{Char: 'l', Interval: 95 * time.Millisecond},
		{Char: 'o', Interval: 240 * time.Millisecond},
	}
}

func TestSerializeEntropy(t *testing.T) {
	got := identity.SerializeEntropy([]identity.Keystroke{
		{Char: 'a', Interval: 1},
		{Char: 'é', Interval: 256},
	})
	want := []byte{
		'a', 0, 0, 0, 0, 0, 0, 0, 1,
		0xc3, 0xa9, 0, 0, 0, 0, 0, 0, 1, 0,
	}
	gt.Value(t, got).Equal(want)
}

func TestGenerate(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a, err := identity.Generate("Coral", sampleKeys(), birthday)
		gt.NoError(t, err).Required()
		b, err := identity.Generate("Coral", sampleKeys(), birthday)
		gt.NoError(t, err).Required()

		gt.Value(t, a.Genome).Equal(b.Genome)
		gt.Value(t, a.Domains).Equal(b.Domains)
		gt.Value(t, a.Styles).Equal(b.Styles)
		gt.Value(t, a.Temperament).Equal(b.Temperament)
		gt.NoError(t, a.Validate())
	})

	t.Run("genome is hex of sha512", func(t *testing.T) {
		id, err := identity.Generate("Coral", sampleKeys(), birthday)
		gt.NoError(t, err).Required()
		sum := sha512.Sum512(identity.SerializeEntropy(sampleKeys()))
		gt.Value(t, id.Genome).Equal(hex.EncodeToString(sum[:]))
		gt.Number(t, len(id.Genome)).Equal(128)
	})

	t.Run("timing changes the genome", func(t *testing.T) {
		keys := sampleKeys()
		keys[2].Interval++
		a, err := identity.Generate("Coral", sampleKeys(), birthday)
		gt.NoError(t, err).Required()
		b, err := identity.Generate("Coral", keys, birthday)
		gt.NoError(t, err).Required()
		gt.Value(t, a.Genome).NotEqual(b.Genome)
	})

	t.Run("requires entropy and name", func(t *testing.T) {
		_, err := identity.Generate("Coral", nil, birthday)
		gt.Error(t, err).Is(model.ErrInvalidIdentity)
		_, err = identity.Generate("", sampleKeys(), birthday)
		gt.Error(t, err).Is(model.ErrInvalidIdentity)
	})
}

func TestDeriveTraits(t *testing.T) {
	t.Run("picks are distinct and from the pools", func(t *testing.T) {
		for i := range 200 {
			seed := sha512.Sum512([]byte{byte(i), byte(i >> 8)})
			traits := identity.DeriveTraits(seed)

			gt.Array(t, traits.Domains).Length(model.DomainCount).Required()
			gt.Array(t, traits.Styles).Length(model.StyleCount).Required()
			for _, d := range traits.Domains {
				gt.Bool(t, slices.Contains(model.Domains, d)).True()
			}
			for _, s := range traits.Styles {
				gt.Bool(t, slices.Contains(model.ThinkingStyles, s)).True()
			}
			gt.Bool(t, slices.Contains(model.Temperaments, traits.Temperament)).True()

			gt.Value(t, traits.Domains[0]).NotEqual(traits.Domains[1])
			gt.Value(t, traits.Domains[0]).NotEqual(traits.Domains[2])
			gt.Value(t, traits.Domains[1]).NotEqual(traits.Domains[2])
			gt.Value(t, traits.Styles[0]).NotEqual(traits.Styles[1])
		}
	})

	t.Run("zero seed takes the first of each pool", func(t *testing.T) {
		var seed [sha512.Size]byte
		traits := identity.DeriveTraits(seed)
		gt.Value(t, traits.Domains).Equal(model.Domains[:3])
		gt.Value(t, traits.Styles).Equal(model.ThinkingStyles[:2])
		gt.Value(t, traits.Temperament).Equal(model.Temperaments[0])
	})

	t.Run("first word selects the first domain", func(t *testing.T) {
		var seed [sha512.Size]byte
		seed[3] = 7 // word 0 = 7
		traits := identity.DeriveTraits(seed)
		gt.Value(t, traits.Domains[0]).Equal(model.Domains[7])
		// position 7 now holds the original first entry, position 1 is untouched
		gt.Value(t, traits.Domains[1]).Equal(model.Domains[1])
	})
}

func TestCollectEntropy(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick*tick) * time.Millisecond)
	}

	keys, err := identity.CollectEntropy(strings.NewReader("abc\nignored"), clock, 0)
	gt.NoError(t, err).Required()
	gt.Array(t, keys).Length(3).Required()
	gt.Value(t, keys[0].Char).Equal('a')
	gt.Value(t, keys[0].Interval).Equal(3 * time.Millisecond)
	gt.Value(t, keys[1].Interval).Equal(5 * time.Millisecond)

	limited, err := identity.CollectEntropy(strings.NewReader("abcdef"), clock, 2)
	gt.NoError(t, err).Required()
	gt.Array(t, limited).Length(2)
}

func TestBox(t *testing.T) {
	root := t.TempDir()
	id, err := identity.Generate("Coral", sampleKeys(), birthday)
	gt.NoError(t, err).Required()

	t.Run("hatch then load", func(t *testing.T) {
		dir, err := identity.Hatch(root, "coral", id)
		gt.NoError(t, err).Required()
		gt.Value(t, dir).Equal(filepath.Join(root, "coral_box"))
		gt.Value(t, identity.AgentIDFromBox(dir)).Equal("coral")

		loaded, err := identity.Load(dir)
		gt.NoError(t, err).Required()
		gt.Value(t, loaded.Genome).Equal(id.Genome)
		gt.Value(t, loaded.Domains).Equal(id.Domains)
		gt.Bool(t, loaded.Birthday.Equal(birthday)).True()
	})

	t.Run("hatch refuses existing box", func(t *testing.T) {
		_, err := identity.Hatch(root, "coral", id)
		gt.Error(t, err).Is(identity.ErrBoxExists)
	})

	t.Run("invalid agent id", func(t *testing.T) {
		_, err := identity.Hatch(root, "../escape", id)
		gt.Error(t, err).Is(identity.ErrInvalidAgentID)
	})

	t.Run("missing identity", func(t *testing.T) {
		_, err := identity.Load(t.TempDir())
		gt.Error(t, err).Is(identity.ErrNoIdentity)
	})

	t.Run("legacy layout loads", func(t *testing.T) {
		dir := t.TempDir()
		legacy := `{"name":"Old","genome":"abcd","traits":{"domains":["sonar","origami","erosion"],"thinking_styles":["inverting assumptions","sketching out taxonomies"],"temperament":"quiet and observational"},"born":"2025-06-01 10:00:00"}`
		gt.NoError(t, os.WriteFile(filepath.Join(dir, identity.FileName), []byte(legacy), 0o600)).Required()

		loaded, err := identity.Load(dir)
		gt.NoError(t, err).Required()
		gt.Value(t, loaded.Styles).Equal([]string{"inverting assumptions", "sketching out taxonomies"})
		gt.Value(t, loaded.Birthday.Year()).Equal(2025)
	})

	t.Run("agent id from name", func(t *testing.T) {
		gt.Value(t, identity.AgentIDFromName("Deep Sea Coral!")).Equal("deep-sea-coral")
		gt.NoError(t, identity.ValidateAgentID("deep-sea-coral"))
	})
}
