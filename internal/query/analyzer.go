package query

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Filters are the structured constraints extracted from a query. Dates are
// ISO strings comparable against TrialDocument.StartDate.
type Filters struct {
	Statuses    []string `json:"statuses,omitempty"`
	Phases      []string `json:"phases,omitempty"`
	NCTIDs      []string `json:"nct_ids,omitempty"`
	StartAfter  string   `json:"start_after,omitempty"`
	StartBefore string   `json:"start_before,omitempty"`
}

// IsZero reports whether no filter was extracted.
func (f Filters) IsZero() bool {
	return len(f.Statuses) == 0 && len(f.Phases) == 0 && len(f.NCTIDs) == 0 &&
		f.StartAfter == "" && f.StartBefore == ""
}

// Intent is the analyzed form of a raw query: the residual question text
// plus any structured filters. An intent with zero filters is open-ended.
type Intent struct {
	Question string  `json:"question"`
	Topic    string  `json:"topic"`
	Filters  Filters `json:"filters"`
}

// Filtered reports whether structured filters were detected.
func (i Intent) Filtered() bool {
	return !i.Filters.IsZero()
}

var statusTerms = []struct{ phrase, status string }{
	{"not yet recruiting", "NOT_YET_RECRUITING"},
	{"enrolling by invitation", "ENROLLING_BY_INVITATION"},
	{"active, not recruiting", "ACTIVE_NOT_RECRUITING"},
	{"recruiting", "RECRUITING"},
	{"completed", "COMPLETED"},
	{"terminated", "TERMINATED"},
	{"suspended", "SUSPENDED"},
	{"withdrawn", "WITHDRAWN"},
}

var (
	nctPattern        = regexp.MustCompile(`\bNCT\d{8}\b`)
	earlyPhasePattern = regexp.MustCompile(`(?i)\bearly[ -]phase\s*1\b`)
	phasePattern      = regexp.MustCompile(`(?i)\bphase\s*(1|2|3|4|i{1,3}|iv)\b`)
	betweenPattern    = regexp.MustCompile(`(?i)\bbetween\s+(\d{4})\s+and\s+(\d{4})\b`)
	afterPattern      = regexp.MustCompile(`(?i)\b(?:since|after|from|starting)\s+((?:january|february|march|april|may|june|july|august|september|october|november|december)\s+)?(\d{4})\b`)
	beforePattern     = regexp.MustCompile(`(?i)\b(?:before|until|prior to)\s+((?:january|february|march|april|may|june|july|august|september|october|november|december)\s+)?(\d{4})\b`)
)

var topicPatterns = []struct {
	topic   string
	pattern *regexp.Regexp
}{
	{"status", regexp.MustCompile(`(?i)\b(status|stage|current state|recruiting|completed|terminated|suspended|enrolling)\b`)},
	{"eligibility", regexp.MustCompile(`(?i)\b(eligible|eligibility|criteria|requirements|inclusion|exclusion|age|gender)\b`)},
	{"intervention", regexp.MustCompile(`(?i)\b(intervention|treatment|drug|therapy|medication|dose|dosage|administration)\b`)},
	{"outcome", regexp.MustCompile(`(?i)\b(outcome|result|endpoint|measure|assessment|evaluation|primary|secondary)\b`)},
}

var fillerWords = map[string]struct{}{
	"what": {}, "which": {}, "are": {}, "is": {}, "the": {}, "a": {}, "an": {},
	"for": {}, "of": {}, "in": {}, "on": {}, "about": {}, "that": {}, "there": {},
	"trial": {}, "trials": {}, "study": {}, "studies": {}, "find": {}, "show": {},
	"me": {}, "list": {}, "any": {}, "all": {}, "currently": {},
}

// Analyze classifies a raw query. Structured filter terms (status names,
// phase numbers, date expressions, NCT ids) are extracted and removed from
// the question; when nothing matches the query degrades to an open intent
// with the original text untouched. Analyze never fails.
func Analyze(raw string) Intent {
	original := strings.TrimSpace(raw)
	intent := Intent{Question: original, Topic: classifyTopic(original)}
	if original == "" {
		return intent
	}
	residual := original

	for _, id := range nctPattern.FindAllString(residual, -1) {
		intent.Filters.NCTIDs = append(intent.Filters.NCTIDs, id)
	}
	residual = nctPattern.ReplaceAllString(residual, " ")

	if earlyPhasePattern.MatchString(residual) {
		intent.Filters.Phases = append(intent.Filters.Phases, "EARLY_PHASE1")
		residual = earlyPhasePattern.ReplaceAllString(residual, " ")
	}
	for _, match := range phasePattern.FindAllStringSubmatch(residual, -1) {
		if phase := canonicalPhase(match[1]); phase != "" {
			intent.Filters.Phases = appendUnique(intent.Filters.Phases, phase)
		}
	}
	residual = phasePattern.ReplaceAllString(residual, " ")

	lowered := strings.ToLower(residual)
	for _, term := range statusTerms {
		if strings.Contains(lowered, term.phrase) {
			intent.Filters.Statuses = appendUnique(intent.Filters.Statuses, term.status)
			lowered = strings.ReplaceAll(lowered, term.phrase, " ")
		}
	}
	residual = lowered

	if match := betweenPattern.FindStringSubmatch(residual); match != nil {
		intent.Filters.StartAfter = match[1] + "-01-01"
		intent.Filters.StartBefore = fmt.Sprintf("%s-12-31", match[2])
		residual = betweenPattern.ReplaceAllString(residual, " ")
	}
	if match := afterPattern.FindStringSubmatch(residual); match != nil {
		intent.Filters.StartAfter = yearMonthISO(match[1], match[2])
		residual = afterPattern.ReplaceAllString(residual, " ")
	}
	if match := beforePattern.FindStringSubmatch(residual); match != nil {
		intent.Filters.StartBefore = yearMonthISO(match[1], match[2])
		residual = beforePattern.ReplaceAllString(residual, " ")
	}

	if intent.Filters.IsZero() {
		return intent
	}
	if question := stripFiller(residual); question != "" {
		intent.Question = question
	}
	return intent
}

func classifyTopic(query string) string {
	for _, entry := range topicPatterns {
		if entry.pattern.MatchString(query) {
			return entry.topic
		}
	}
	return "general"
}

func canonicalPhase(token string) string {
	switch strings.ToLower(token) {
	case "1", "i":
		return "PHASE1"
	case "2", "ii":
		return "PHASE2"
	case "3", "iii":
		return "PHASE3"
	case "4", "iv":
		return "PHASE4"
	}
	return ""
}

var monthNumbers = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

func yearMonthISO(month, year string) string {
	number, ok := monthNumbers[strings.ToLower(strings.TrimSpace(month))]
	if !ok {
		return year + "-01-01"
	}
	return fmt.Sprintf("%s-%02d-01", year, int(number))
}

func stripFiller(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '?', '!', '.', ',', ';', ':':
			return ' '
		}
		return r
	}, text)
	var kept []string
	for _, token := range strings.Fields(cleaned) {
		if _, filler := fillerWords[strings.ToLower(token)]; filler {
			continue
		}
		kept = append(kept, token)
	}
	return strings.Join(kept, " ")
}

func appendUnique(values []string, value string) []string {
	for _, existing := range values {
		if existing == value {
			return values
		}
	}
	return append(values, value)
}
