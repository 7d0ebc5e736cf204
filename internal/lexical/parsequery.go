package lexical

import (
	"errors"
	"strings"
)

// queryTerm is one parsed piece of a query string: either a bare word
// (matched against stemmed postings) or a "quoted phrase" (matched as a
// literal substring of the unstemmed content).
type queryTerm struct {
	text   string
	phrase bool
}

// parseQuery splits a query into its terms. Whitespace separates bare
// words; double quotes delimit a phrase that may itself contain whitespace.
// An unterminated quote is the one syntax error this parser recognizes, and
// is what triggers Search/SearchSymbols' literal-content fallback.
func parseQuery(q string) ([]queryTerm, error) {
	var terms []queryTerm
	var b strings.Builder
	inQuote := false

	flush := func(phrase bool) {
		if b.Len() > 0 {
			terms = append(terms, queryTerm{text: b.String(), phrase: phrase})
			b.Reset()
		}
	}

	for _, r := range q {
		switch {
		case r == '"':
			if inQuote {
				flush(true)
			} else {
				flush(false)
			}
			inQuote = !inQuote
		case r == ' ' || r == '\t' || r == '\n':
			if inQuote {
				b.WriteRune(r)
			} else {
				flush(false)
			}
		default:
			b.WriteRune(r)
		}
	}

	if inQuote {
		return nil, errors.New("unterminated quoted phrase")
	}
	flush(false)
	return terms, nil
}
