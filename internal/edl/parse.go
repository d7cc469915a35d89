package edl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/heimdex/edl-indexer/internal/timecode"
)

// ClipNameMarker starts the comment line that names the clip of an event.
const ClipNameMarker = "*FROM CLIP NAME:"

// eventLine matches a video cut event: event number, reel, "V", "C" and four
// timecodes. The third timecode is captured loosely (any token with a colon)
// so that a corrupt value surfaces as a conversion error rather than as a
// silently ignored line.
var eventLine = regexp.MustCompile(
	`^\d+\s+\S+\s+V\s+C\s+\d+:\d+:\d+:\d+\s+\d+:\d+:\d+:\d+\s+(\S*:\S*)\s+\d+:\d+:\d+:\d+`,
)

// State carries the pending clip name and in-point between lines. A nil
// field is unset.
type State struct {
	PendingName    *string
	PendingInPoint *float64
}

// Empty reports whether neither field is pending.
func (s State) Empty() bool {
	return s.PendingName == nil && s.PendingInPoint == nil
}

// Step applies one line to the state. When the line completes a clip the
// record is returned and the state is cleared. A later clip name or in-point
// overwrites an unconsumed one.
func (s State) Step(line string, frameRate int) (State, *ClipRecord, error) {
	if strings.HasPrefix(line, ClipNameMarker) {
		name := strings.TrimSpace(line[len(ClipNameMarker):])
		if name == "" {
			s.PendingName = nil
		} else {
			s.PendingName = &name
		}
	} else if m := eventLine.FindStringSubmatch(line); m != nil {
		secs, err := timecode.ToSeconds(m[1], frameRate)
		if err != nil {
			return s, nil, err
		}
		s.PendingInPoint = &secs
	}

	if s.PendingName != nil && s.PendingInPoint != nil {
		rec := &ClipRecord{Name: *s.PendingName, InPoint: *s.PendingInPoint}
		return State{}, rec, nil
	}
	return s, nil, nil
}

// Parse scans text line by line and returns the clip records in the order
// they were completed. A malformed timecode on an event line aborts the parse
// and no records are returned.
func Parse(text string, frameRate int) ([]ClipRecord, error) {
	var (
		state   State
		records []ClipRecord
		lineNo  int
	)
	for line := range strings.Lines(text) {
		lineNo++
		next, rec, err := state.Step(strings.TrimRight(line, "\r\n"), frameRate)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Err: err}
		}
		state = next
		if rec != nil {
			records = append(records, *rec)
		}
	}

	return records, nil
}

// ParseError locates a fatal parse failure.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("edl line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
