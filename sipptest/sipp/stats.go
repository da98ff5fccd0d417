package sipp

import "strings"

// Statistic keys.
const (
	StatTotalMessages = "total_messages"
	StatErrors        = "errors"
	StatFailures      = "failures"
)

// statKeywords maps the word SIPp prints after a count
// to its statistic key. Order matters: a part is
// matched against the first keyword it contains.
var statKeywords = []struct {
	word string
	key  string
}{
	{"Messages", StatTotalMessages},
	{"Errors", StatErrors},
	{"Failures", StatFailures},
}

// ParseStatistics scans SIPp output for summary lines
// such as "Total: 1 Messages, 0 Errors, 0 Failures" and
// returns the counts by key. Lines that do not contain
// both "Total" and "Messages" are ignored; no match
// yields an empty map. A later line overwrites an
// earlier one.
func ParseStatistics(output string) map[string]string {
	stats := make(map[string]string)

	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "Total") ||
			!strings.Contains(line, "Messages") {
			continue
		}

		for _, part := range strings.Split(line, ",") {
			for _, kw := range statKeywords {
				if !strings.Contains(part, kw.word) {
					continue
				}

				if v := countBefore(part, kw.word); v != "" {
					stats[kw.key] = v
				}

				break
			}
		}
	}

	return stats
}

// countBefore returns the whitespace-delimited token
// preceding the field containing word, or the first
// field when word leads the part.
func countBefore(part, word string) string {
	fields := strings.Fields(part)

	for i, f := range fields {
		if strings.Contains(f, word) {
			if i > 0 {
				return fields[i-1]
			}

			break
		}
	}

	if len(fields) == 0 {
		return ""
	}

	return fields[0]
}
