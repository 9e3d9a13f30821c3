package tools

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Protocol-Lattice/meeting-agent/pkg/docstore"
)

const (
	// DefaultPageSize is the number of meetings shown at once.
	DefaultPageSize = 5
	// NoDocuments is returned when a search matches nothing.
	NoDocuments = "No documents found."
)

var (
	urlPattern = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"')\]]+`)

	hiddenColumns = map[string]bool{
		"combined_score": true,
		"similarity":     true,
		"score":          true,
		"rank":           true,
		"rrf_score":      true,
	}

	linkSegments = map[string]bool{"url": true, "urls": true, "uri": true, "link": true, "links": true, "href": true}

	dateColumns = []string{"start_date", "start_time", "meeting_date", "date", "start", "created_at"}

	leadingColumns = []string{"title", "meeting_title", "start_date", "start_time", "meeting_date", "date", "duration", "organization", "summary", "decisions", "key_decisions"}

	dateLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.999999-07",
		"2006-01-02 15:04:05-07",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
)

// StripURLs removes hyperlinks from s.
func StripURLs(s string) string {
	if !urlPattern.MatchString(s) {
		return s
	}
	out := urlPattern.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(out), " ")
}

func hiddenColumn(key string) bool {
	k := strings.ToLower(key)
	if hiddenColumns[k] {
		return true
	}
	if strings.Contains(k, "embedding") {
		return true
	}
	// Only whole name segments count: recording_url hides, hourly_rate stays.
	for _, seg := range strings.FieldsFunc(k, func(r rune) bool { return r == '_' || r == '-' || r == ' ' || r == '.' }) {
		if linkSegments[seg] {
			return true
		}
	}
	return false
}

// StartDate returns the meeting start time of rec if it has one.
func StartDate(rec docstore.Record) (time.Time, bool) {
	for _, col := range dateColumns {
		v, ok := rec[col]
		if !ok || v == nil {
			continue
		}
		switch d := v.(type) {
		case time.Time:
			return d, true
		case string:
			s := strings.TrimSpace(d)
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return t, true
				}
			}
		}
	}
	return time.Time{}, false
}

// SortByStartDate orders records newest first; undated records go last.
func SortByStartDate(records []docstore.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, aok := StartDate(records[i])
		b, bok := StartDate(records[j])
		if aok != bok {
			return aok
		}
		return a.After(b)
	})
}

// FormatMeetings sorts records and renders the page starting at offset. When
// more records remain an invitation to ask for more is appended.
func FormatMeetings(records []docstore.Record, offset, pageSize int) string {
	if len(records) == 0 {
		return NoDocuments
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return fmt.Sprintf("No more documents found. All %d matching meetings have been shown.", len(records))
	}

	sorted := append([]docstore.Record(nil), records...)
	SortByStartDate(sorted)

	end := offset + pageSize
	if end > len(sorted) {
		end = len(sorted)
	}

	blocks := make([]string, 0, end-offset)
	for i := offset; i < end; i++ {
		blocks = append(blocks, formatRecord(i+1, sorted[i]))
	}
	out := strings.Join(blocks, "\n\n")

	if remaining := len(sorted) - end; remaining > 0 {
		out += fmt.Sprintf("\n\nShowing meetings %d-%d of %d. %d more available: ask the user whether they would like to see more, and call this capability again with offset=%d to continue.",
			offset+1, end, len(sorted), remaining, end)
	}
	return out
}

func formatRecord(n int, rec docstore.Record) string {
	lines := []string{fmt.Sprintf("Document %d:", n)}
	for _, key := range orderedKeys(rec) {
		value := StripURLs(formatValue(rec[key]))
		lines = append(lines, fmt.Sprintf("  %s: %s", key, value))
	}
	return strings.Join(lines, "\n")
}

func orderedKeys(rec docstore.Record) []string {
	seen := make(map[string]bool, len(rec))
	keys := make([]string, 0, len(rec))
	for _, k := range leadingColumns {
		if _, ok := rec[k]; ok && !hiddenColumn(k) {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range rec {
		if !seen[k] && !hiddenColumn(k) {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	case []any, map[string]any, []string:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
