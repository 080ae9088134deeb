package strutil_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/anemone/pkg/utils/strutil"
)

func TestTruncate(t *testing.T) {
	gt.Value(t, strutil.Truncate("hello", 10)).Equal("hello")
	gt.Value(t, strutil.Truncate("hello", 3)).Equal("hel")
	gt.Value(t, strutil.Truncate("海の底で", 2)).Equal("海の")
	gt.Value(t, strutil.Truncate("abc", 0)).Equal("")
	gt.Value(t, strutil.TruncateWithMarker("abcdef", 3, "...")).Equal("abc...")
	gt.Value(t, strutil.TruncateWithMarker("abc", 3, "...")).Equal("abc")
}
