package lexical

import "strings"

// tokenize splits text into lowercase word tokens on any run of non
// alphanumeric runes, the same coarse boundary the teacher's name splitter
// starts from before it layers camelCase/snake_case splitting on top. This
// index only needs the coarse split: camelCase handling is the fuzzy
// matcher's job at query time, not the postings' job at index time.
func tokenize(text string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, strings.ToLower(b.String()))
			b.Reset()
		}
	}
	for _, r := range text {
		if isWordRune(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		return true
	default:
		return false
	}
}
