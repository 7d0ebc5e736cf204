package types

import "time"

// File is the indexing engine's record of one repository-relative path.
// A File is created on first observation, updated in place when
// ContentHash changes, and removed when the path disappears from disk.
type File struct {
	ID          FileID         `json:"id"`
	Path        string         `json:"path"` // repo-relative, forward-slash separated
	Language    LanguageFamily `json:"language_family"`
	ContentHash string         `json:"content_hash"` // hex SHA-256 of the bytes last fed to the extractor
	IndexedAt   time.Time      `json:"indexed_at"`

	// DeclaredModule holds the module/package path a file declares about
	// itself (a Go "package" clause's import path, a Python package's
	// __init__ chain, ...). Nil when the language has no such declaration
	// or it could not be determined. Consulted by the import-chain
	// resolver alongside direct module-path candidates.
	DeclaredModule *string `json:"declared_module,omitempty"`
}

// IsIndexed reports whether the file has ever completed extraction.
func (f *File) IsIndexed() bool {
	return !f.IndexedAt.IsZero()
}
