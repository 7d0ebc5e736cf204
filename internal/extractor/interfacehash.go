package extractor

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/codeplane-dev/codeplane/internal/types"
)

// interfaceHash is the SHA-256 of a canonical rendering of every definition
// in a file, nested ones included (kind, lexical path, name — in a fixed
// sort order so extraction order never perturbs the hash). It is returned
// in FileResult.InterfaceHash and FileOutcome.InterfaceHash; it is not
// stored, and no code path in this repository uses it to decide whether
// dependent files need re-resolving.
func interfaceHash(defs []types.DefFact) string {
	rendered := make([]string, 0, len(defs))
	for _, d := range defs {
		rendered = append(rendered, string(d.Kind)+"\x00"+d.LexicalPath+"\x00"+d.Name)
	}
	sort.Strings(rendered)

	h := sha256.New()
	for _, r := range rendered {
		h.Write([]byte(r))
		h.Write([]byte{0x1e}) // record separator
	}
	return hex.EncodeToString(h.Sum(nil))
}
