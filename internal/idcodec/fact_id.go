package idcodec

import (
	"crypto/sha256"
	"encoding/hex"
)

// DefUID computes the content-addressed identifier for a definition fact.
// It is the hex-encoded SHA-256 of the tuple that makes a definition unique
// within a repo: file path, qualified name, and kind. Two defs with the same
// tuple collapse to the same def_uid across re-extraction, which is what
// lets the resolver and the lexical index agree on identity without a
// shared in-memory symbol table.
func DefUID(relPath, qualifiedName, kind string) string {
	h := sha256.New()
	h.Write([]byte(relPath))
	h.Write([]byte{0})
	h.Write([]byte(qualifiedName))
	h.Write([]byte{0})
	h.Write([]byte(kind))
	return hex.EncodeToString(h.Sum(nil))
}

// ImportUID computes the content-addressed identifier for an import fact,
// keyed by the importing file and the raw import specifier as written.
func ImportUID(relPath, rawSpecifier string) string {
	h := sha256.New()
	h.Write([]byte(relPath))
	h.Write([]byte{0})
	h.Write([]byte(rawSpecifier))
	return hex.EncodeToString(h.Sum(nil))
}

// ShortID returns a compact base-63 display form of a uid's leading 8 bytes,
// for log lines and CLI output where the full 64-char hex id is unwieldy.
func ShortID(uid string) string {
	if len(uid) < 16 {
		return uid
	}
	raw, err := hex.DecodeString(uid[:16])
	if err != nil {
		return uid
	}
	var v uint64
	for _, b := range raw {
		v = v<<8 | uint64(b)
	}
	return Encode(v)
}

// FileID returns the base-63 encoding of hash. Fact rows do not use it:
// they reference files by the integer files.id that storage assigns.
func FileID(hash uint64) string {
	return Encode(hash)
}
