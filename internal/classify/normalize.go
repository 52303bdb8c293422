package classify

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mohammad-safakhou/lifeos/internal/capture"
)

const (
	// MaxItems bounds actionable items per capture.
	MaxItems        = 5
	maxItemRunes    = 80
	maxSummaryRunes = 200
	maxTags         = 10
	defaultPriority = 3
)

var domainAliases = map[string]capture.Domain{
	"career": capture.DomainWork, "job": capture.DomainWork, "business": capture.DomainWork,
	"fitness": capture.DomainHealth, "medical": capture.DomainHealth, "wellness": capture.DomainHealth,
	"money": capture.DomainFinance, "finances": capture.DomainFinance,
	"education": capture.DomainLearning, "study": capture.DomainLearning,
	"family": capture.DomainSocial, "friends": capture.DomainSocial, "relationships": capture.DomainSocial,
	"household": capture.DomainHome, "errands": capture.DomainHome,
	"trip": capture.DomainTravel, "shop": capture.DomainShopping,
}

var intentAliases = map[string]capture.Intent{
	"meeting": capture.IntentEvent, "appointment": capture.IntentEvent, "calendar": capture.IntentEvent,
	"todo": capture.IntentTask, "reminder": capture.IntentTask, "action": capture.IntentTask,
	"buy": capture.IntentPurchase, "shopping": capture.IntentPurchase,
	"note": capture.IntentReference, "info": capture.IntentReference, "information": capture.IntentReference,
	"study": capture.IntentLearning, "research": capture.IntentLearning,
}

// ParseDomain maps a model value onto the closed domain set.
func ParseDomain(s string) capture.Domain {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, d := range capture.Domains {
		if s == string(d) {
			return d
		}
	}
	if d, ok := domainAliases[s]; ok {
		return d
	}
	return capture.DomainUnknown
}

// ParseIntent maps a model value onto the closed intent set.
func ParseIntent(s string) capture.Intent {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, i := range capture.Intents {
		if s == string(i) {
			return i
		}
	}
	if i, ok := intentAliases[s]; ok {
		return i
	}
	return capture.IntentUnknown
}

// ClampPriority coerces n into 1..5, defaulting to 3.
func ClampPriority(n json.Number) int {
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) {
		return defaultPriority
	}
	p := int(math.Round(f))
	switch {
	case p < 1:
		return 1
	case p > 5:
		return 5
	}
	return p
}

// NormalizeTags lowercases, dedupes and caps tags.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#")))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

var (
	bulletRE = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)]|\[[ xX]?\])\s*`)
	fillers  = []string{
		"please ", "pls ", "remember to ", "don't forget to ", "dont forget to ", "do not forget to ",
		"i need to ", "i have to ", "i must ", "i should ", "need to ", "have to ", "should ",
		"also ", "and ", "then ", "to ",
	}
	trailingFiller = []string{" asap", " please", " pls"}
)

// NormalizeItem makes an actionable item verb-led and bounded. It returns ""
// when nothing is left.
func NormalizeItem(s string) string {
	s = collapseSpace(bulletRE.ReplaceAllString(s, ""))
	for changed := true; changed; {
		changed = false
		lower := strings.ToLower(s)
		for _, f := range fillers {
			if lower == strings.TrimSpace(f) {
				return ""
			}
			if strings.HasPrefix(lower, f) {
				s = strings.TrimSpace(s[len(f):])
				changed = true
				break
			}
		}
	}
	for _, f := range trailingFiller {
		if strings.HasSuffix(strings.ToLower(s), f) {
			s = strings.TrimSpace(s[:len(s)-len(f)])
		}
	}
	s = strings.TrimRight(s, " .;,!")
	s = truncate(s, maxItemRunes)
	if s == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// NormalizeItems normalizes, dedupes and caps items at MaxItems.
func NormalizeItems(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]bool{}
	for _, it := range items {
		n := NormalizeItem(it)
		key := strings.ToLower(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
		if len(out) == MaxItems {
			break
		}
	}
	return out
}

func collapseSpace(s string) string { return strings.Join(strings.Fields(s), " ") }

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
