package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDayWindowSeconds(t *testing.T) {
	start, end, err := DayWindowSeconds("20260115")
	assert.NoError(t, err)
	// 2026-01-15T00:00:00Z
	assert.Equal(t, int64(1768435200), start)
	assert.Equal(t, start+86399, end)
}

func TestDayWindowSecondsInvalid(t *testing.T) {
	for _, day := range []string{"", "2026-01-15", "20261345", "notaday"} {
		_, _, err := DayWindowSeconds(day)
		assert.Error(t, err, "day %q should be rejected", day)
	}
}

func TestSecondsWindowToMillis(t *testing.T) {
	startMs, endMs := SecondsWindowToMillis(1000, 1000+86399)

	assert.Equal(t, int64(1000_000), startMs)
	// The upper bound must cover every millisecond of the final second:
	// truncating to endSec*1000 would drop entries in the last 999ms.
	assert.Equal(t, int64((1000+86400)*1000-1), endMs)
	assert.Equal(t, int64(86400_000-1), endMs-startMs)
}
