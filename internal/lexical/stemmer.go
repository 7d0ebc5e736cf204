package lexical

import "github.com/surgebase/porter2"

// stemmer normalizes tokens so "resolve", "resolved", and "resolving" land
// on one posting list. Grounded on the teacher's Stemmer, trimmed to this
// package's needs: no exclusion dictionary, no disable switch (the Lexical
// Index always stems, it has no config surface of its own), a fixed
// minimum word length below which stemming is skipped since short tokens
// stem unstably ("as" -> "as", "is" -> "i").
const stemMinLength = 4

func stem(word string) string {
	if len(word) < stemMinLength {
		return word
	}
	return porter2.Stem(word)
}

func stemAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = stem(w)
	}
	return out
}
