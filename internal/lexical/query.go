package lexical

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/codeplane-dev/codeplane/internal/types"
)

// Result is the response envelope for Search and SearchSymbols. FallbackReason
// is non-empty exactly when query failed to parse as a structured query and
// the index instead matched query literally against raw content, per spec
// §4.6.
type Result struct {
	Hits           []Hit
	FallbackReason string
}

const snippetRadius = 40

// Search runs query against indexed file content. Supported syntax is a
// whitespace-separated list of required terms, any of which may be a
// "quoted phrase" matched as a contiguous substring; an unterminated quote
// is a syntax error and triggers the literal-content fallback named above.
func (idx *Index) Search(query string, limit int, contextID *types.ContextID) Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	terms, err := parseQuery(query)
	if err != nil {
		return idx.literalFallback(query, limit, contextID, err)
	}
	if len(terms) == 0 {
		return Result{}
	}

	candidates, ok := idx.candidatesForTerms(terms, idx.contentPostings)
	if !ok {
		return Result{}
	}

	var hits []Hit
	for _, path := range applyContextFilter(candidates, idx, contextID) {
		entry := idx.docs[path]
		if !phrasesMatch(terms, entry.doc.Content) {
			continue
		}
		hits = append(hits, Hit{
			FilePath: path,
			Score:    scoreTerms(terms, entry.contentTokens),
			Snippet:  snippet(entry.doc.Content, terms),
		})
	}

	sortHits(hits)
	return Result{Hits: hits[:clampLimit(len(hits), limit)]}
}

// SearchSymbols runs query against indexed symbol names. When no term
// matches any posting exactly, it falls back to Jaro-Winkler fuzzy matching
// against each document's raw symbol list, mirroring the teacher's
// exact-before-fuzzy matcher ordering.
func (idx *Index) SearchSymbols(query string, limit int, contextID *types.ContextID) Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	terms, err := parseQuery(query)
	if err != nil {
		return idx.literalFallback(query, limit, contextID, err)
	}
	if len(terms) == 0 {
		return Result{}
	}

	candidates, ok := idx.candidatesForTerms(terms, idx.symbolPostings)
	if ok && len(candidates) > 0 {
		var hits []Hit
		for _, path := range applyContextFilter(candidates, idx, contextID) {
			entry := idx.docs[path]
			hits = append(hits, Hit{
				FilePath: path,
				Score:    scoreTerms(terms, entry.symbolTokens),
				Snippet:  strings.Join(entry.doc.Symbols, " "),
			})
		}
		sortHits(hits)
		return Result{Hits: hits[:clampLimit(len(hits), limit)]}
	}

	// No exact posting hit: fall back to fuzzy matching symbol names
	// one-by-one against the raw (unstemmed) query.
	var hits []Hit
	queryJoined := strings.Join(collapsePhrases(terms), " ")
	for path, entry := range idx.docs {
		if contextID != nil && entry.doc.ContextID != *contextID {
			continue
		}
		best := 0.0
		for _, sym := range entry.doc.Symbols {
			if s := fuzzyScore(strings.ToLower(queryJoined), strings.ToLower(sym)); s > best {
				best = s
			}
		}
		if best >= fuzzyThreshold {
			hits = append(hits, Hit{FilePath: path, Score: best, Snippet: strings.Join(entry.doc.Symbols, " ")})
		}
	}
	sortHits(hits)
	return Result{Hits: hits[:clampLimit(len(hits), limit)]}
}

// SearchPath glob-matches pattern (doublestar syntax) against every indexed
// path.
func (idx *Index) SearchPath(pattern string, limit int, contextID *types.ContextID) Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var hits []Hit
	for path, entry := range idx.docs {
		if contextID != nil && entry.doc.ContextID != *contextID {
			continue
		}
		ok, err := doublestar.Match(pattern, path)
		if err != nil {
			return Result{FallbackReason: fmt.Sprintf("invalid path pattern: %v", err)}
		}
		if ok {
			hits = append(hits, Hit{FilePath: path, Score: 1.0, Snippet: path})
		}
	}
	sortHits(hits)
	return Result{Hits: hits[:clampLimit(len(hits), limit)]}
}

func (idx *Index) literalFallback(query string, limit int, contextID *types.ContextID, cause error) Result {
	needle := strings.ToLower(query)
	var hits []Hit
	for path, entry := range idx.docs {
		if contextID != nil && entry.doc.ContextID != *contextID {
			continue
		}
		if strings.Contains(strings.ToLower(entry.doc.Content), needle) {
			hits = append(hits, Hit{FilePath: path, Score: 1.0, Snippet: snippet(entry.doc.Content, nil)})
		}
	}
	sortHits(hits)
	return Result{
		Hits:           hits[:clampLimit(len(hits), limit)],
		FallbackReason: fmt.Sprintf("query syntax error, matched literally: %v", cause),
	}
}

// candidatesForTerms intersects the posting lists for every single-word term
// in terms. ok is false when no single-word term produced a posting list
// (so candidates has no meaning and callers should fall back to scanning).
func (idx *Index) candidatesForTerms(terms []queryTerm, postings map[string]map[string]struct{}) (map[string]struct{}, bool) {
	var result map[string]struct{}
	any := false
	for _, t := range terms {
		if t.phrase {
			continue
		}
		any = true
		set := postings[stem(strings.ToLower(t.text))]
		if result == nil {
			result = copySet(set)
			continue
		}
		for p := range result {
			if _, ok := set[p]; !ok {
				delete(result, p)
			}
		}
	}
	if !any {
		// Every term was a phrase: candidate set is every committed doc.
		result = make(map[string]struct{}, len(idx.docs))
		for p := range idx.docs {
			result[p] = struct{}{}
		}
		return result, true
	}
	return result, true
}

func copySet(set map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(set))
	for k := range set {
		out[k] = struct{}{}
	}
	return out
}

func phrasesMatch(terms []queryTerm, content string) bool {
	lower := strings.ToLower(content)
	for _, t := range terms {
		if t.phrase && !strings.Contains(lower, strings.ToLower(t.text)) {
			return false
		}
	}
	return true
}

func scoreTerms(terms []queryTerm, docTokens []string) float64 {
	counts := make(map[string]int, len(docTokens))
	for _, tok := range docTokens {
		counts[tok]++
	}
	var score float64
	for _, t := range terms {
		if t.phrase {
			score += 2.0
			continue
		}
		score += float64(counts[stem(strings.ToLower(t.text))])
	}
	return score
}

func snippet(content string, terms []queryTerm) string {
	lower := strings.ToLower(content)
	idxPos := -1
	for _, t := range terms {
		if p := strings.Index(lower, strings.ToLower(t.text)); p >= 0 {
			idxPos = p
			break
		}
	}
	if idxPos < 0 {
		if len(content) > snippetRadius*2 {
			return content[:snippetRadius*2]
		}
		return content
	}
	start := idxPos - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idxPos + snippetRadius
	if end > len(content) {
		end = len(content)
	}
	return content[start:end]
}

func collapsePhrases(terms []queryTerm) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.text
	}
	return out
}
