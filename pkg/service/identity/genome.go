package identity

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/domain/model"
)

// Keystroke is one typed character and the time since the previous one.
type Keystroke struct {
	Char     rune
	Interval time.Duration
}

// SerializeEntropy encodes keystrokes as the UTF-8 bytes of each char followed
// by its interval in nanoseconds as an 8-byte big-endian integer.
func SerializeEntropy(keys []Keystroke) []byte {
	buf := make([]byte, 0, len(keys)*(utf8.UTFMax+8))
	for _, k := range keys {
		buf = utf8.AppendRune(buf, k.Char)
		buf = binary.BigEndian.AppendUint64(buf, uint64(k.Interval.Nanoseconds()))
	}
	return buf
}

// Traits is the part of an identity derived from the seed.
type Traits struct {
	Domains     []string
	Styles      []string
	Temperament string
}

// DeriveTraits maps a SHA-512 seed onto the trait pools. The seed is read as
// sixteen big-endian uint32 words consumed in order: three for domains, two
// for styles and one for temperament. Each category is a partial Fisher-Yates
// shuffle of its index pool, so picks within a category never repeat.
func DeriveTraits(seed [sha512.Size]byte) Traits {
	words := make([]uint32, sha512.Size/4)
	for i := range words {
		words[i] = binary.BigEndian.Uint32(seed[i*4:])
	}

	next := 0
	sample := func(pool []string, k int) []string {
		idx := make([]int, len(pool))
		for i := range idx {
			idx[i] = i
		}
		out := make([]string, k)
		for i := 0; i < k; i++ {
			j := i + int(words[next]%uint32(len(pool)-i))
			next++
			idx[i], idx[j] = idx[j], idx[i]
			out[i] = pool[idx[i]]
		}
		return out
	}

	domains := sample(model.Domains, model.DomainCount)
	styles := sample(model.ThinkingStyles, model.StyleCount)
	temperament := sample(model.Temperaments, 1)[0]

	return Traits{Domains: domains, Styles: styles, Temperament: temperament}
}

// Generate derives an identity from keystroke entropy. It is pure: the same
// name, keystrokes and birthday always give the same identity.
func Generate(name string, keys []Keystroke, birthday time.Time) (*model.Identity, error) {
	if name == "" {
		return nil, goerr.Wrap(model.ErrInvalidIdentity, "name is required")
	}
	if len(keys) == 0 {
		return nil, goerr.Wrap(model.ErrInvalidIdentity, "entropy is required", goerr.V("name", name))
	}
	return fromSeed(name, sha512.Sum512(SerializeEntropy(keys)), birthday), nil
}

// GenerateRandom derives an identity from system randomness, for agents
// hatched without a terminal.
func GenerateRandom(name string, birthday time.Time) (*model.Identity, error) {
	if name == "" {
		return nil, goerr.Wrap(model.ErrInvalidIdentity, "name is required")
	}
	var entropy [64]byte
	if _, err := rand.Read(entropy[:]); err != nil {
		return nil, goerr.Wrap(err, "failed to read random entropy")
	}
	return fromSeed(name, sha512.Sum512(entropy[:]), birthday), nil
}

func fromSeed(name string, seed [sha512.Size]byte, birthday time.Time) *model.Identity {
	traits := DeriveTraits(seed)
	return &model.Identity{
		Name:        name,
		Genome:      hex.EncodeToString(seed[:]),
		Domains:     traits.Domains,
		Styles:      traits.Styles,
		Temperament: traits.Temperament,
		Birthday:    birthday.UTC().Truncate(time.Second),
	}
}
