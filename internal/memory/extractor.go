// Package memory derives environment-memory observations from chat replies
// and formats them for re-submission to the chat backend.
package memory

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sdgteacher/sdgchat/internal/profile"
)

const summarySeparator = " | "

var bulletLine = regexp.MustCompile(`^\s*([-*•]|\d+[.)])\s+`)

// Extractor applies a Rules table. The zero value is not usable; use New.
type Extractor struct {
	rules *Rules
}

// New returns an Extractor for rules. A nil rules uses DefaultRules. Zero
// limits take the built-in defaults. rules is copied, so later changes to it
// have no effect.
func New(rules *Rules) *Extractor {
	if rules == nil {
		return &Extractor{rules: DefaultRules()}
	}
	r := &Rules{
		Categories:      rules.Categories,
		TourLength:      rules.TourLength,
		MaxSummaryLines: rules.MaxSummaryLines,
	}
	if r.TourLength <= 0 {
		r.TourLength = DefaultTourLength
	}
	if r.MaxSummaryLines <= 0 {
		r.MaxSummaryLines = DefaultMaxSummaryLines
	}
	r.compile()
	return &Extractor{rules: r}
}

var defaultExtractor = New(nil)

// DetectTour applies the built-in rules. See (*Extractor).DetectTour.
func DetectTour(userMessage, response string) bool {
	return defaultExtractor.DetectTour(userMessage, response)
}

// Summarize applies the built-in rules.
func Summarize(response string) string { return defaultExtractor.Summarize(response) }

// ExtractItems applies the built-in rules.
func ExtractItems(response string) []string { return defaultExtractor.ExtractItems(response) }

// DetectTour reports whether an exchange looks like a comprehensive room or
// item scan. It is a heuristic: the user asked for one, the reply says it is
// one, or the reply is longer than TourLength characters.
func (e *Extractor) DetectTour(userMessage, response string) bool {
	if e.rules.containsAny(CategoryTourKeywords, userMessage) {
		return true
	}
	if e.rules.containsAny(CategoryTourMarkers, response) {
		return true
	}
	return utf8.RuneCountInString(response) > e.rules.TourLength
}

// Summarize keeps marker lines, list items and substantive lines from
// response, up to the configured line cap, joined with " | ".
func (e *Extractor) Summarize(response string) string {
	var kept []string
	for _, line := range strings.Split(response, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if e.keepLine(line, trimmed) {
			kept = append(kept, trimmed)
			if len(kept) == e.rules.MaxSummaryLines {
				break
			}
		}
	}
	return strings.Join(kept, summarySeparator)
}

func (e *Extractor) keepLine(raw, trimmed string) bool {
	if e.rules.containsAny(CategorySummary, trimmed) {
		return true
	}
	if bulletLine.MatchString(raw) {
		return true
	}
	n := len([]rune(trimmed))
	return n >= 30 && n <= 150
}

// ExtractItems returns the vocabulary items mentioned in response,
// lower-cased and deduplicated, in order of first appearance.
func (e *Extractor) ExtractItems(response string) []string {
	type hit struct {
		pos  int
		name string
	}
	var hits []hit
	for i, re := range e.rules.items {
		if loc := re.FindStringIndex(response); loc != nil {
			hits = append(hits, hit{pos: loc[0], name: e.rules.names[i]})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	items := make([]string, 0, len(hits))
	for _, h := range hits {
		items = append(items, h.name)
	}
	return items
}

// Extract builds the Observation for one exchange.
func (e *Extractor) Extract(mediaType, userMessage, response string, at time.Time) profile.Observation {
	o := profile.Observation{
		Type:         mediaType,
		IsTour:       e.DetectTour(userMessage, response),
		UserMessage:  userMessage,
		FullResponse: response,
		Summary:      e.Summarize(response),
		Items:        e.ExtractItems(response),
	}
	o.Stamp(at)
	return o
}
