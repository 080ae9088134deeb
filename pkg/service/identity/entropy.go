package identity

import (
	"bufio"
	"errors"
	"io"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// CollectEntropy reads keystrokes from r until a newline, EOF or max
// keystrokes, recording the time between them with clock. The terminal is
// expected to be in a mode that delivers characters as they are typed.
func CollectEntropy(r io.Reader, clock func() time.Time, maxKeys int) ([]Keystroke, error) {
	if clock == nil {
		clock = time.Now
	}
	reader := bufio.NewReader(r)

	var keys []Keystroke
	last := clock()
	for maxKeys <= 0 || len(keys) < maxKeys {
		ch, _, err := reader.ReadRune()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read keystroke")
		}
		if ch == '\n' || ch == '\r' {
			break
		}

		now := clock()
		keys = append(keys, Keystroke{Char: ch, Interval: now.Sub(last)})
		last = now
	}

	return keys, nil
}
