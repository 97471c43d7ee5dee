package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureReplyPrefix(t *testing.T) {
	assert.Equal(t, "Re: Invoice #42", EnsureReplyPrefix("Invoice #42"))
	assert.Equal(t, "Re: Invoice #42", EnsureReplyPrefix("Re: Invoice #42"))
	assert.Equal(t, "RE: hello", EnsureReplyPrefix("RE: hello"))
	assert.Equal(t, "Re: ", EnsureReplyPrefix(""))
}

func TestParseClockTime(t *testing.T) {
	tests := []struct {
		in      string
		minutes int
		ok      bool
	}{
		{"09:00", 540, true},
		{"17:30", 1050, true},
		{"00:00", 0, true},
		{"23:59", 1439, true},
		{"24:00", 0, false},
		{"12:60", 0, false},
		{"nine", 0, false},
		{"", 0, false},
		{"9", 0, false},
	}
	for _, tc := range tests {
		m, ok := ParseClockTime(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		if ok {
			assert.Equal(t, tc.minutes, m, "input %q", tc.in)
		}
	}
}

func TestSenderName(t *testing.T) {
	assert.Equal(t, "Jane Doe", SenderName(`"Jane Doe" <jane@example.com>`))
	assert.Equal(t, "jane", SenderName("jane@example.com"))
	assert.Equal(t, "billing", SenderName("<billing@acme.com>"))
	assert.Equal(t, "", SenderName(""))
}

func TestExtractAddress(t *testing.T) {
	assert.Equal(t, "jane@example.com", ExtractAddress("Jane <jane@example.com>"))
	assert.Equal(t, "jane@example.com", ExtractAddress("jane@example.com"))
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("14d")
	assert.NoError(t, err)
	assert.Equal(t, 14*24.0, d.Hours())

	d, err = ParseDuration("90s")
	assert.NoError(t, err)
	assert.Equal(t, 90.0, d.Seconds())

	_, err = ParseDuration("")
	assert.Error(t, err)
	_, err = ParseDuration("fortnight")
	assert.Error(t, err)
}
