package textcheck

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// OverflowPolicy decides what happens to a segment longer than the cap.
type OverflowPolicy string

const (
	OverflowTruncate OverflowPolicy = "truncate"
	OverflowDrop     OverflowPolicy = "drop"
)

// Ellipsis marks a truncated segment.
const Ellipsis = "…"

var segmentExpr = regexp.MustCompile(`(?i)^\**\s*(?:segment|tweet)\s+(\d+)\s*\**\s*[:.)-]\s*\**\s*(.*)$`)

// SegmentRules configures ParseSegments.
type SegmentRules struct {
	Cap       int
	MinRunes  int
	MinCount  int
	Policy    OverflowPolicy
	Forbidden *unicode.RangeTable
}

// DefaultSegmentRules matches a 280 character thread with at least three posts.
func DefaultSegmentRules() SegmentRules {
	return SegmentRules{Cap: 280, MinRunes: 10, MinCount: 3, Policy: OverflowTruncate, Forbidden: Arabic}
}

// SegmentStats counts what happened to the parsed segments.
type SegmentStats struct {
	Found     int
	Truncated int
	Dropped   int
}

// ParseSegments extracts "SEGMENT N:" lines (or the "TWEET N:" alias) from text.
// Segments with forbidden runes or no more than MinRunes runes are dropped and oversized
// ones are truncated or dropped per Policy. Fewer than MinCount survivors is an error.
func ParseSegments(text string, rules SegmentRules) ([]string, SegmentStats, error) {
	var (
		out   []string
		stats SegmentStats
	)

	for _, line := range strings.Split(text, "\n") {
		m := segmentExpr.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		stats.Found++

		segment := strings.TrimSpace(strings.Trim(m[2], "*"))
		if rules.Forbidden != nil && ContainsScript(segment, rules.Forbidden) {
			stats.Dropped++
			continue
		}

		if rules.Cap > 0 && utf8.RuneCountInString(segment) > rules.Cap {
			if rules.Policy == OverflowDrop {
				stats.Dropped++
				continue
			}
			segment = Truncate(segment, rules.Cap)
			stats.Truncated++
		}

		if utf8.RuneCountInString(segment) <= rules.MinRunes {
			stats.Dropped++
			continue
		}
		out = append(out, segment)
	}

	if len(out) < rules.MinCount {
		return nil, stats, fmt.Errorf("only %d usable segments, need %d", len(out), rules.MinCount)
	}
	return out, stats, nil
}

// Truncate shortens text to at most limit runes, ending with Ellipsis when cut.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	keep := limit - utf8.RuneCountInString(Ellipsis)
	if keep < 0 {
		keep = 0
	}
	return strings.TrimRightFunc(string(runes[:keep]), unicode.IsSpace) + Ellipsis
}
