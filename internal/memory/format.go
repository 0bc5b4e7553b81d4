package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sdgteacher/sdgchat/internal/profile"
)

// ExcerptLength bounds the response text sent for non-tour observations.
const ExcerptLength = 500

// Ordered returns a copy of memory with tour observations first, each group
// ordered newest first.
func Ordered(memory []profile.Observation) []profile.Observation {
	out := make([]profile.Observation, len(memory))
	copy(out, memory)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsTour != out[j].IsTour {
			return out[i].IsTour
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// FormatForBackend renders memory as context lines for the chat backend,
// in Ordered order, with timestamps labelled relative to now.
func FormatForBackend(memory []profile.Observation, now time.Time) []string {
	ordered := Ordered(memory)
	lines := make([]string, 0, len(ordered))
	for _, o := range ordered {
		lines = append(lines, formatObservation(o, now))
	}
	return lines
}

func formatObservation(o profile.Observation, now time.Time) string {
	var b strings.Builder
	if o.IsTour {
		b.WriteString("[TOUR] ")
	}
	fmt.Fprintf(&b, "%s (%s)", RelativeLabel(o.Timestamp, now), o.Type)

	if o.UserMessage != "" {
		fmt.Fprintf(&b, ": User: %q", o.UserMessage)
	} else {
		b.WriteString(":")
	}

	text := o.FullResponse
	if text == "" {
		text = o.Summary
	}
	if !o.IsTour {
		text = excerpt(text, ExcerptLength)
	}
	if text != "" {
		b.WriteString(" | ")
		b.WriteString(text)
	}

	if len(o.Items) > 0 {
		b.WriteString(" | Items: ")
		b.WriteString(strings.Join(o.Items, ", "))
	}
	return b.String()
}

// RelativeLabel renders t as "Today at 15:04", "Yesterday at 15:04" or
// "Monday, January 2, 2006 at 15:04", in now's location.
func RelativeLabel(t, now time.Time) string {
	t = t.In(now.Location())
	clock := t.Format("15:04")

	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()
	day := time.Date(ty, tm, td, 0, 0, 0, 0, now.Location())
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, now.Location())

	switch {
	case day.Equal(today):
		return "Today at " + clock
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday at " + clock
	default:
		return t.Format("Monday, January 2, 2006") + " at " + clock
	}
}

// excerpt truncates s to at most n runes, ending in "..." when cut.
func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
