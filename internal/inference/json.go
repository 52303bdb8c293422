package inference

import "strings"

// ExtractJSON strips markdown code fences and surrounding prose, returning
// the outermost {...} span. It returns the trimmed input when no object is found.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			// drop the language tag line (```json)
			if tag := strings.TrimSpace(s[:nl]); !strings.HasPrefix(tag, "{") {
				s = s[nl+1:]
			}
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
