package edl

import (
	"fmt"
	"math"
	"strings"

	"github.com/heimdex/edl-indexer/internal/timecode"
)

// generatedReel is the source reel written for every generated event.
const generatedReel = "AX"

// Generate writes clips as a CMX 3600 list in the shape Parse understands:
// one V/C event per clip followed by its clip name comment. Events are laid
// end to end on the record side starting at zero.
func Generate(clips []EventClip, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 24
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n", title)
	if dropFrame(frameRate) {
		b.WriteString("FCM: DROP FRAME\n")
	} else {
		b.WriteString("FCM: NON-DROP FRAME\n")
	}

	tc := func(ms int) string { return timecode.FromSeconds(float64(ms)/1000, fps) }

	record := 0
	for i, c := range clips {
		length := c.EndMs - c.StartMs
		b.WriteString("\n")
		fmt.Fprintf(&b, "%03d  %-8s %-5s C        %s %s %s %s\n",
			i+1, generatedReel, "V", tc(c.StartMs), tc(c.EndMs), tc(record), tc(record+length))
		fmt.Fprintf(&b, "%s %s\n", ClipNameMarker, c.ClipName)
		if c.MediaPath != "" {
			fmt.Fprintf(&b, "* MEDIA PATH:  %s\n", c.MediaPath)
		}
		record += length
	}

	return b.String()
}

// dropFrame reports whether rate is one of the NTSC drop-frame rates.
func dropFrame(rate float64) bool {
	for _, r := range []float64{29.97, 59.94} {
		if math.Abs(rate-r) < 0.01 {
			return true
		}
	}
	return false
}
