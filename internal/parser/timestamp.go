package parser

import (
	"strings"
	"time"
)

const (
	// timestampMarker identifies the banner line cluster-smi prints before
	// every redraw.
	timestampMarker = "http://github.com/patwie/cluster-smi"
	clearScreen     = "\x1b[2J"
	// timestampLayout matches e.g. "Sat Feb 15 21:53:41 2025".
	timestampLayout = "Mon Jan _2 15:04:05 2006"
)

func isTimestampLine(line string) bool { return strings.Contains(line, timestampMarker) }

// parseTimestampLine parses a banner such as
// "\x1b[2JSat Feb 15 21:55:04 2025 (http://github.com/patwie/cluster-smi)".
func parseTimestampLine(line string, loc *time.Location) (time.Time, error) {
	s := strings.Replace(line, clearScreen, "", 1)
	s = strings.Replace(s, "("+timestampMarker+")", "", 1)
	return time.ParseInLocation(timestampLayout, strings.TrimSpace(s), loc)
}
