// Package lexical is the Lexical Index: a full-text index over file paths,
// raw content, and declared symbol names, kept independent of the relational
// Storage Layer and the structural fact tables. It answers fuzzy,
// token-level queries that the Storage Layer's exact-match SQL cannot —
// "something named roughly like thisHandler" rather than "the def named
// exactly thisHandler".
//
// Writes are staged until Reload is called: Search, SearchSymbols, and
// SearchPath only ever see the index as of the last Reload, matching the
// reader/writer split a segment-based full-text engine gives you for free.
// On-disk state lives under a tantivy/ directory as an append-only segment
// log plus a small manifest; there is no tantivy or bleve dependency in this
// repo's corpus, so the segment format below is this package's own.
package lexical
