package router

import (
	"regexp"
	"strings"
	"unicode"
)

var meetingCue = regexp.MustCompile(`(?i)\b(?:meeting|meet|call|sync|stand-?up|interview|appointment|zoom|demo|huddle|webinar)\b|\b1:1\b|\bcatch[ -]?up\b|\bone[- ]on[- ]one\b`)

var (
	clockRe    = regexp.MustCompile(`(?i)\b(\d{1,2})(?::([0-5]\d))?\s*([ap])\.?m\b\.?`)
	h24Re      = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	noonRe     = regexp.MustCompile(`(?i)\b(noon|midnight)\b`)
	relDayRe   = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|tmrw|tmr)\b`)
	weekdayRe  = regexp.MustCompile(`(?i)\b(?:(next|this)\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	nextWeekRe = regexp.MustCompile(`(?i)\bnext\s+week\b`)
	numDateRe  = regexp.MustCompile(`\b(1[0-2]|0?[1-9])/(3[01]|[12]\d|0?[1-9])\b`)
	monthDayRe = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
)

// timeExprs is the strip order; clock forms with am/pm go before 24h.
var timeExprs = []*regexp.Regexp{nextWeekRe, weekdayRe, monthDayRe, numDateRe, clockRe, h24Re, noonRe, relDayRe}

var clauseSplit = regexp.MustCompile(`[,;!?]\s*|\.\s+|\s+(?:also|then|plus)\s+|\s+-\s+`)

// edgeFiller is dropped from the ends of a title once time words are gone.
var edgeFiller = map[string]bool{
	"at": true, "on": true, "@": true, "by": true, "from": true, "for": true, "this": true,
	"next": true, "the": true, "in": true, "around": true, "-": true, "and": true, "with": true,
}

// HasMeetingCue reports whether s mentions a meeting or call.
func HasMeetingCue(s string) bool { return meetingCue.MatchString(s) }

// HasTimeExpression reports whether s contains a concrete time or day.
func HasTimeExpression(s string) bool {
	for _, re := range timeExprs {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// clauses splits a summary into its comma/sentence-level parts.
func clauses(s string) []string {
	var out []string
	for _, c := range clauseSplit.Split(s, -1) {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// meetingClause returns the first clause carrying a meeting cue.
func meetingClause(summary string) string {
	for _, c := range clauses(summary) {
		if HasMeetingCue(c) {
			return c
		}
	}
	return summary
}

func stripTimeWords(s string) string {
	for _, re := range timeExprs {
		s = re.ReplaceAllString(s, " ")
	}
	return s
}

// EventTitle derives a calendar title from the meeting clause of summary.
func EventTitle(summary string) string {
	words := strings.Fields(stripTimeWords(meetingClause(summary)))
	for len(words) > 0 && edgeFiller[strings.ToLower(words[0])] {
		words = words[1:]
	}
	for len(words) > 0 && edgeFiller[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	title := strings.Trim(strings.Join(words, " "), " .,:;-")
	if title == "" {
		return "Meeting"
	}
	return capitalize(title)
}

// meetingVerbs only say what to do with a meeting, never what it is about.
var meetingVerbs = map[string]bool{
	"attend": true, "join": true, "schedule": true, "reschedule": true, "book": true, "confirm": true,
	"set": true, "up": true, "go": true, "to": true, "a": true, "an": true, "of": true, "about": true,
}

// significant returns the lowercased words of s that are neither time
// expressions, meeting cues nor filler.
func significant(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(meetingCue.ReplaceAllString(stripTimeWords(s), " ")) {
		w = strings.ToLower(strings.Trim(w, ".,:;!?()\"'"))
		if w == "" || edgeFiller[w] || meetingVerbs[w] {
			continue
		}
		out[w] = true
	}
	return out
}

// meetingRelated reports whether an actionable item is about the event
// titled title: it names nothing beyond the meeting itself, or it shares a
// significant word with the title. Mentioning some other call or demo does
// not make an item related.
func meetingRelated(item, title string) bool {
	words := significant(item)
	if len(words) == 0 {
		return true
	}
	for w := range significant(title) {
		if words[w] {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	for i, r := range s {
		return string(unicode.ToUpper(r)) + s[i+len(string(r)):]
	}
	return s
}

func matchedTimeText(s string) string {
	var parts []string
	seen := map[string]bool{}
	rest := s
	for _, re := range timeExprs {
		for _, m := range re.FindAllString(rest, -1) {
			m = strings.TrimSpace(m)
			if !seen[strings.ToLower(m)] {
				seen[strings.ToLower(m)] = true
				parts = append(parts, m)
			}
		}
		rest = re.ReplaceAllString(rest, " ")
	}
	return strings.Join(parts, " ")
}
