package timecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSeconds(t *testing.T) {
	tests := []struct {
		name string
		tc   string
		fps  int
		want float64
	}{
		{name: "zero", tc: "00:00:00:00", fps: 24, want: 0},
		{name: "whole seconds", tc: "01:02:03:00", fps: 24, want: 3723.0},
		{name: "one hour ten seconds", tc: "01:00:10:00", fps: 24, want: 3610.0},
		{name: "half second at 24", tc: "00:00:00:12", fps: 24, want: 0.5},
		{name: "frames at 30", tc: "00:00:01:15", fps: 30, want: 1.5},
		{name: "single digit fields", tc: "1:2:3:0", fps: 24, want: 3723.0},
		{name: "frames beyond rate add through", tc: "00:00:00:48", fps: 24, want: 2.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToSeconds(tc.tc, tc.fps)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestToSeconds_Malformed(t *testing.T) {
	inputs := []string{
		"",
		"01:02:03",
		"01:02:03:04:05",
		"aa:00:00:00",
		"00:00:00:",
		"-1:00:00:00",
		"00:00:00:+1",
		"00;00;00;00",
		" 00:00:00:00",
		"00:00:00:00 ",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := ToSeconds(in, 24)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestToSeconds_InvalidFrameRate(t *testing.T) {
	_, err := ToSeconds("00:00:01:00", 0)
	require.ErrorIs(t, err, ErrInvalidFrameRate)

	_, err = ToSeconds("00:00:01:00", -24)
	require.ErrorIs(t, err, ErrInvalidFrameRate)
}

func TestToSeconds_Monotonic(t *testing.T) {
	base, err := ToSeconds("01:01:01:01", 24)
	require.NoError(t, err)

	for _, bumped := range []string{"02:01:01:01", "01:02:01:01", "01:01:02:01", "01:01:01:02"} {
		got, err := ToSeconds(bumped, 24)
		require.NoError(t, err)
		assert.Greater(t, got, base, "bumping a field in %s should increase the offset", bumped)
	}
}

func TestFromSeconds(t *testing.T) {
	assert.Equal(t, "00:00:00:00", FromSeconds(0, 24))
	assert.Equal(t, "01:00:10:00", FromSeconds(3610, 24))
	assert.Equal(t, "00:00:01:15", FromSeconds(1.5, 30))
	assert.Equal(t, "00:00:00:00", FromSeconds(-3, 24))
}

func TestFromSeconds_RoundTrip(t *testing.T) {
	for _, tc := range []string{"00:00:00:00", "00:12:34:05", "10:59:59:23"} {
		secs, err := ToSeconds(tc, 24)
		require.NoError(t, err)
		assert.Equal(t, tc, FromSeconds(secs, 24))
	}
}
