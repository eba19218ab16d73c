package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"31/12/2018", "2018-12-31"},
		{"1/2/2024", "2024-02-01"},
		{"05/03/18", "2018-03-05"},
		{"31/12/18", "2018-12-31"},
		{"12/31/18", "2018-12-31"},
		{"2024-03-05", "2024-03-05"},
		{"05-03-2024", "2024-03-05"},
		{"2024-03-05 14:22:01", "2024-03-05"},
		{"2024-03-05T14:22:01Z", "2024-03-05"},
		{"45356", "2024-03-05"},
		{" 31/12/2018 ", "2018-12-31"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in, time.UTC)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Format(time.DateOnly))
			assert.Zero(t, got.Hour())
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseDateInvalid(t *testing.T) {
	for _, in := range []string{"", "not a date", "32/13/2024", "0"} {
		_, err := ParseDate(in, time.UTC)
		assert.Error(t, err, in)
	}
}

func TestParseDateNilLocation(t *testing.T) {
	got, err := ParseDate("2024-03-05", nil)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, got.Location())
}
