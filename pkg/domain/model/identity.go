package model

import (
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Curated trait pools. Their order is part of the genome contract: changing
// it changes which traits an existing genome maps to.
var (
	Domains = []string{
		"mycology", "orbital mechanics", "fermentation", "cartography", "origami",
		"tidal patterns", "cryptography", "bioluminescence", "typography", "sonar",
		"geologic strata", "knot theory", "permaculture", "glassblowing", "semaphore",
		"circadian rhythms", "folk etymology", "tessellation", "foraging", "acoustics",
		"celestial navigation", "pigment chemistry", "murmuration", "bookbinding", "erosion",
		"signal processing", "mycelial networks", "letterpress", "thermodynamics", "tidepool ecology",
		"radio astronomy", "psychoacoustics", "weaving patterns", "volcanic geology", "ciphers",
		"birdsong", "fractal geometry", "archival science", "hydrology", "clockwork",
		"seed dispersal", "morse code", "cloud formation", "metalwork", "braille systems",
		"stellar nucleosynthesis", "composting", "map projection", "wind patterns", "amber preservation",
	}

	ThinkingStyles = []string{
		"connecting disparate ideas",
		"following chains of cause and effect",
		"finding patterns in noise",
		"deconstructing systems into parts",
		"building mental models",
		"tracing things back to first principles",
		"mapping relationships between concepts",
		"looking for what's missing",
		"inverting assumptions",
		"layering details into bigger pictures",
		"noticing what others overlook",
		"asking why something works at all",
		"translating between domains",
		"following the smallest thread",
		"collecting and comparing examples",
		"sketching out taxonomies",
	}

	Temperaments = []string{
		"patient and methodical",
		"restless and wide-ranging",
		"meticulous and detail-oriented",
		"playful and associative",
		"intense and focused",
		"wandering and serendipitous",
		"quiet and observational",
		"energetic and prolific",
	}
)

const (
	DomainCount = 3
	StyleCount  = 2

	birthdayLayout = "2006-01-02 15:04:05"
)

// Identity is the immutable personality of one agent.
type Identity struct {
	Name        string
	Genome      string
	Domains     []string
	Styles      []string
	Temperament string
	Birthday    time.Time
}

// Validate checks the trait counts and pool membership.
func (x *Identity) Validate() error {
	if x.Name == "" {
		return goerr.Wrap(ErrInvalidIdentity, "name is required")
	}
	if x.Genome == "" {
		return goerr.Wrap(ErrInvalidIdentity, "genome is required", goerr.V("name", x.Name))
	}
	if len(x.Domains) != DomainCount {
		return goerr.Wrap(ErrInvalidIdentity, "unexpected domain count", goerr.V("count", len(x.Domains)))
	}
	if len(x.Styles) != StyleCount {
		return goerr.Wrap(ErrInvalidIdentity, "unexpected style count", goerr.V("count", len(x.Styles)))
	}
	if x.Temperament == "" {
		return goerr.Wrap(ErrInvalidIdentity, "temperament is required", goerr.V("name", x.Name))
	}
	return nil
}

type identityJSON struct {
	Name        string   `json:"name"`
	Genome      string   `json:"genome"`
	Domains     []string `json:"domains"`
	Styles      []string `json:"styles"`
	Temperament string   `json:"temperament"`
	Birthday    string   `json:"birthday"`

	// legacy layout
	Traits *struct {
		Domains        []string `json:"domains"`
		ThinkingStyles []string `json:"thinking_styles"`
		Temperament    string   `json:"temperament"`
	} `json:"traits,omitempty"`
	Born string `json:"born,omitempty"`
}

func (x Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(identityJSON{
		Name:        x.Name,
		Genome:      x.Genome,
		Domains:     x.Domains,
		Styles:      x.Styles,
		Temperament: x.Temperament,
		Birthday:    x.Birthday.UTC().Format(birthdayLayout),
	})
}

func (x *Identity) UnmarshalJSON(data []byte) error {
	var raw identityJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return goerr.Wrap(err, "failed to decode identity")
	}

	x.Name = raw.Name
	x.Genome = raw.Genome
	x.Domains = raw.Domains
	x.Styles = raw.Styles
	x.Temperament = raw.Temperament
	birthday := raw.Birthday

	if raw.Traits != nil {
		if len(x.Domains) == 0 {
			x.Domains = raw.Traits.Domains
		}
		if len(x.Styles) == 0 {
			x.Styles = raw.Traits.ThinkingStyles
		}
		if x.Temperament == "" {
			x.Temperament = raw.Traits.Temperament
		}
	}
	if birthday == "" {
		birthday = raw.Born
	}

	if birthday != "" {
		t, err := time.ParseInLocation(birthdayLayout, birthday, time.UTC)
		if err != nil {
			return goerr.Wrap(err, "invalid birthday", goerr.V("birthday", birthday))
		}
		x.Birthday = t
	}

	return nil
}
