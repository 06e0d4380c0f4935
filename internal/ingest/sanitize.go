package ingest

import (
	"regexp"
	"strings"
)

var reItemPrefix = regexp.MustCompile(`(?i)^item\d+\.+`)

// SanitizeStats counts the line repairs made by Sanitize.
type SanitizeStats struct {
	Repaired int
	Dropped  int
}

// Sanitize repairs line shapes that strict parsers reject:
//
//	item1.EMAIL:x      -> EMAIL:x
//	item1..EMAIL:x     -> EMAIL:x
//	.EMAIL:x           -> EMAIL:x
//	item1.X-ABLabel:x  -> (dropped)
//	.X-ABLabel:x       -> (dropped)
//
// Folded continuation lines follow their parent line. Output uses CRLF.
func Sanitize(text string) (string, SanitizeStats) {
	var (
		stats    SanitizeStats
		out      []string
		dropping bool
	)

	text = strings.TrimPrefix(text, "\ufeff")
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")

		if line != "" && (line[0] == ' ' || line[0] == '\t') {
			if !dropping {
				out = append(out, line)
			}
			continue
		}
		dropping = false

		rest, prefixed := stripGroupPrefix(line)
		if prefixed {
			if hasExtensionName(rest) {
				stats.Dropped++
				dropping = true
				continue
			}
			stats.Repaired++
			line = rest
		}
		out = append(out, line)
	}

	return strings.Join(out, "\r\n"), stats
}

func stripGroupPrefix(line string) (string, bool) {
	if loc := reItemPrefix.FindStringIndex(line); loc != nil {
		return line[loc[1]:], true
	}
	if strings.HasPrefix(line, ".") {
		return strings.TrimLeft(line, "."), true
	}
	return line, false
}

func hasExtensionName(line string) bool {
	return len(line) >= 2 && strings.EqualFold(line[:2], "X-")
}
