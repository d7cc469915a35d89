// Package timecode converts HH:MM:SS:FF edit timecodes to and from
// fractional-second offsets at a fixed, non-drop frame rate.
package timecode

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrMalformed is returned when a timecode is not four colon-separated
	// non-negative integers.
	ErrMalformed = errors.New("malformed timecode")
	// ErrInvalidFrameRate is returned for a frame rate that is zero or negative.
	ErrInvalidFrameRate = errors.New("invalid frame rate")
)

// ToSeconds converts tc to seconds. The frame component is divided by
// frameRate as-is; the source's real rate is never consulted, so a mismatched
// rate shifts the offset instead of failing.
func ToSeconds(tc string, frameRate int) (float64, error) {
	if frameRate <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidFrameRate, frameRate)
	}

	parts := strings.Split(tc, ":")
	if len(parts) != 4 {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, tc)
	}

	var fields [4]int
	for i, p := range parts {
		if !isDigits(p) {
			return 0, fmt.Errorf("%w: %q", ErrMalformed, tc)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrMalformed, tc, err)
		}
		fields[i] = n
	}

	h, m, s, f := fields[0], fields[1], fields[2], fields[3]
	return float64(h*3600+m*60+s) + float64(f)/float64(frameRate), nil
}

// FromSeconds formats seconds as HH:MM:SS:FF, rounding to the nearest frame.
func FromSeconds(seconds float64, frameRate int) string {
	if frameRate <= 0 {
		frameRate = 24
	}
	if seconds < 0 {
		seconds = 0
	}

	totalFrames := int(math.Round(seconds * float64(frameRate)))
	frames := totalFrames % frameRate
	totalSeconds := totalFrames / frameRate
	secs := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, secs, frames)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
