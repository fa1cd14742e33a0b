package timestamp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	ms := ToUnixMs(now)
	assert.Equal(t, now.UnixMilli(), ms)
	assert.True(t, FromUnixMs(ms).Equal(now))
}

func TestZeroValues(t *testing.T) {
	assert.Equal(t, int64(0), ToUnixMs(time.Time{}))
	assert.True(t, FromUnixMs(0).IsZero())
	assert.Equal(t, "", Format(0))
}

func TestFormat(t *testing.T) {
	ms := int64(1672574400000) // 2023-01-01T12:00:00Z
	assert.Equal(t, "2023-01-01T12:00:00Z", Format(ms))
}

func TestParse(t *testing.T) {
	assert.Equal(t, int64(1672574400000), Parse(int64(1672574400000)))
	assert.Equal(t, int64(1672574400000), Parse(int64(1672574400)))      // seconds
	assert.Equal(t, int64(1672574400000), Parse(float64(1672574400000))) // json numbers
	assert.Equal(t, int64(1672574400000), Parse("1672574400"))
	assert.Equal(t, int64(1672574400000), Parse("2023-01-01T12:00:00Z"))
	assert.Equal(t, int64(0), Parse("not a time"))
	assert.Equal(t, int64(0), Parse(nil))
	assert.Equal(t, int64(0), Parse(int64(-5)))
}
