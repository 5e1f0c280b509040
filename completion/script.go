package completion

import (
	"regexp"
	"strings"
)

var scriptLabel = regexp.MustCompile(`(?i)^[\s*_#>"]*script\s*[:\-–]\s*[*_]*\s*`)

// promotionalPrefixes start the closing offers models tend to append.
var promotionalPrefixes = []string{
	"would you like",
	"do you want",
	"shall i",
	"should i",
	"let me know",
	"is there anything else",
	"can i help",
	"need any",
	"want me to",
	"feel free to",
}

const decorativeSymbols = "*#_~=•✨★☆✔✅🙂😊👍🚀"

// CleanScript normalizes generated script text: a leading "Script:" label and
// trailing promotional questions are removed, whitespace is collapsed and
// trailing decorative symbols are stripped.
func CleanScript(s string) string {
	s = strings.TrimSpace(s)
	s = scriptLabel.ReplaceAllString(s, "")
	s = stripPromotional(s)
	s = strings.Join(strings.Fields(s), " ")
	s = trimDecoration(s)
	return strings.TrimSpace(s)
}

func stripPromotional(s string) string {
	for {
		s = trimDecoration(s)
		if s == "" {
			return s
		}
		start := lastSentenceStart(s)
		if !isPromotional(s[start:]) {
			return s
		}
		s = s[:start]
	}
}

// lastSentenceStart returns the offset of the final sentence or line in s.
func lastSentenceStart(s string) int {
	for i := len(s) - 2; i >= 0; i-- {
		switch s[i] {
		case '\n':
			return i + 1
		case '.', '!', '?':
			if s[i+1] == ' ' || s[i+1] == '\t' || s[i+1] == '\n' {
				return i + 1
			}
		}
	}
	return 0
}

func isPromotional(sentence string) bool {
	sentence = strings.ToLower(strings.TrimLeft(sentence, decorativeSymbols+" \t\r\n"))
	for _, p := range promotionalPrefixes {
		if strings.HasPrefix(sentence, p) {
			return true
		}
	}
	return false
}

func trimDecoration(s string) string {
	return strings.TrimRight(s, decorativeSymbols+" \t\r\n")
}
