package trial

import (
	"html"
	"regexp"
	"strings"
	"time"
)

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]+>`)
	multiSpacePattern = regexp.MustCompile(`[ \t]+`)
	multiLinePattern  = regexp.MustCompile(`\n\s*\n`)
)

// medicalAbbreviations expands dosing shorthand common in eligibility text
// so the embedding model sees full words.
var medicalAbbreviations = []struct{ abbr, expansion string }{
	{"e.g.", "for example"},
	{"i.e.", "that is"},
	{"vs.", "versus"},
	{"w/o", "without"},
	{"q.d.", "once daily"},
	{"b.i.d.", "twice daily"},
	{"t.i.d.", "three times daily"},
	{"q.i.d.", "four times daily"},
	{"p.o.", "by mouth"},
	{"i.v.", "intravenous"},
	{"i.m.", "intramuscular"},
	{"s.c.", "subcutaneous"},
	{"p.r.n.", "as needed"},
}

// CleanText normalizes a free-text registry field: HTML entities and tags
// removed, whitespace collapsed, dosing abbreviations expanded.
func CleanText(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = html.UnescapeString(text)
	text = htmlTagPattern.ReplaceAllString(text, " ")
	for _, entry := range medicalAbbreviations {
		text = strings.ReplaceAll(text, entry.abbr, entry.expansion)
	}
	text = multiSpacePattern.ReplaceAllString(text, " ")
	text = multiLinePattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// FormatDate renders a registry date for display. The registry emits either
// full dates (2024-03-15) or year-month (2024-03); anything else passes
// through unchanged.
func FormatDate(date string) string {
	date = strings.TrimSpace(date)
	if date == "" {
		return ""
	}
	if parsed, err := time.Parse("2006-01-02", date); err == nil {
		return parsed.Format("January 2, 2006")
	}
	if parsed, err := time.Parse("2006-01", date); err == nil {
		return parsed.Format("January 2006")
	}
	return date
}
