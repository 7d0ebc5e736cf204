package lexical

import "github.com/codeplane-dev/codeplane/internal/types"

// Document is one row of the Lexical Index's schema: path (raw), content
// (tokenized), symbols (tokenized, space-joined names), context_id and
// file_id (both indexed integers carried through unchanged so a caller can
// narrow a query to one Context or join back to the Storage Layer).
type Document struct {
	Path      string
	Content   string
	Symbols   []string
	ContextID types.ContextID
	FileID    types.FileID
}

// Hit is one search result: the matched file, its score (descending order
// across a result set), and a short snippet of the matched content.
type Hit struct {
	FilePath string
	Score    float64
	Snippet  string
}
