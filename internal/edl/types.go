// Package edl reads and writes the single-video-track subset of CMX 3600
// edit decision lists used to build clip frame indexes.
package edl

// ClipRecord is one clip recovered from an EDL: the clip's name and the
// playback offset, in seconds, of the event that introduced it.
type ClipRecord struct {
	Name    string  `json:"name"`
	InPoint float64 `json:"in_point_seconds"`
}

// EventClip describes one event written by Generate.
type EventClip struct {
	ClipName  string
	MediaPath string
	StartMs   int
	EndMs     int
}
