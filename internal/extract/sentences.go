package extract

import (
	"strings"
	"unicode"
)

// Sentences splits text into sentences. A sentence ends at whitespace that
// follows '.', '?' or '!', unless the period closes an abbreviation such as
// "e.g." or "Mr.". Line breaks always end a sentence. Sentences shorter
// than minChars (after trimming) are dropped; minChars <= 0 keeps all.
func Sentences(text string, minChars int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		for _, s := range splitLine(line) {
			s = strings.TrimSpace(s)
			if s == "" || len([]rune(s)) < minChars {
				continue
			}
			out = append(out, s)
		}
	}
	return out
}

func splitLine(line string) []string {
	r := []rune(line)
	var out []string
	start := 0
	for i := 1; i < len(r); i++ {
		if !unicode.IsSpace(r[i]) {
			continue
		}
		prev := r[i-1]
		if prev != '.' && prev != '?' && prev != '!' {
			continue
		}
		if prev == '.' && isAbbreviation(r[:i]) {
			continue
		}
		out = append(out, string(r[start:i]))
		start = i + 1
	}
	if start < len(r) {
		out = append(out, string(r[start:]))
	}
	return out
}

// isAbbreviation reports whether r ends with "x.y." or "Ab." (the period
// is the last rune).
func isAbbreviation(r []rune) bool {
	n := len(r)
	if n >= 4 && isWord(r[n-4]) && r[n-3] == '.' && isWord(r[n-2]) {
		return true
	}
	if n >= 3 && unicode.IsUpper(r[n-3]) && unicode.IsLower(r[n-2]) {
		if n == 3 || !isWord(r[n-4]) {
			return true
		}
	}
	return false
}

func isWord(c rune) bool {
	return c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c)
}
