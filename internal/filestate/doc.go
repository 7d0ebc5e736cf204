// Package filestate implements the File State Service: computing
// (freshness, certainty) for a file within a context, and the mutation
// gate that keys off of it. Freshness answers whether the stored index
// still matches what's on disk; certainty answers whether extraction or
// resolution left anything ambiguous for that file.
package filestate
