package server

import (
	"github.com/codeplane-dev/codeplane/internal/coordinator"
	"github.com/codeplane-dev/codeplane/internal/filestate"
	"github.com/codeplane-dev/codeplane/internal/query"
	"github.com/codeplane-dev/codeplane/internal/types"
)

// RPC request/response types for client-server communication over the
// unix-socket JSON transport.

// PingResponse confirms the server is alive.
type PingResponse struct {
	Uptime  float64 `json:"uptime_seconds"`
	Version string  `json:"version"`
}

// StatusResponse reports the coordinator's current readiness.
type StatusResponse struct {
	Ready    bool   `json:"ready"`
	Contexts int    `json:"contexts"`
	Warning  string `json:"warning,omitempty"`
}

// ShutdownRequest requests a graceful server shutdown.
type ShutdownRequest struct {
	Force bool `json:"force,omitempty"`
}

// ShutdownResponse confirms shutdown has begun.
type ShutdownResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// InitializeResponse wraps coordinator.InitResult with an error string for
// clients that can't deserialize a Go error value.
type InitializeResponse struct {
	coordinator.InitResult
	Error string `json:"error,omitempty"`
}

// ReindexIncrementalRequest names the paths to reindex.
type ReindexIncrementalRequest struct {
	Paths []string `json:"paths"`
}

// IndexStatsResponse wraps coordinator.IndexStats with an error string.
type IndexStatsResponse struct {
	coordinator.IndexStats
	Error string `json:"error,omitempty"`
}

// SearchRequest is a search() call per spec §4.14/§6.
type SearchRequest struct {
	Query     string           `json:"query"`
	Mode      query.SearchMode `json:"mode"`
	Limit     int              `json:"limit,omitempty"`
	ContextID *types.ContextID `json:"context_id,omitempty"`
}

// SearchResponseEnvelope wraps query.SearchResponse with an error string.
type SearchResponseEnvelope struct {
	query.SearchResponse
	Error string `json:"error,omitempty"`
}

// MapRepoRequest is a map_repo() call per spec §4.14/§6.
type MapRepoRequest struct {
	Include      []query.MapRepoInclude `json:"include,omitempty"`
	Depth        int                    `json:"depth,omitempty"`
	Limit        int                    `json:"limit,omitempty"`
	IncludeGlobs []string               `json:"include_globs,omitempty"`
	ExcludeGlobs []string               `json:"exclude_globs,omitempty"`
}

// MapRepoResponseEnvelope wraps query.MapRepoResult with an error string.
type MapRepoResponseEnvelope struct {
	query.MapRepoResult
	Error string `json:"error,omitempty"`
}

// coordinatorMapRepoOptions converts the wire request into the query
// package's options struct.
func coordinatorMapRepoOptions(req MapRepoRequest) query.MapRepoOptions {
	return query.MapRepoOptions{
		Include:      req.Include,
		Depth:        req.Depth,
		Limit:        req.Limit,
		IncludeGlobs: req.IncludeGlobs,
		ExcludeGlobs: req.ExcludeGlobs,
	}
}

// ReadScopeRequest is the scope-aware read call per spec §4.14.
type ReadScopeRequest struct {
	FileID     types.FileID    `json:"file_id"`
	Line       int             `json:"line"`
	Preference types.ScopeKind `json:"preference,omitempty"`
	Radius     int             `json:"radius,omitempty"`
}

// ReadScopeResponseEnvelope wraps query.ScopeReadResult with an error string.
type ReadScopeResponseEnvelope struct {
	query.ScopeReadResult
	Error string `json:"error,omitempty"`
}

// GetFileStateRequest is a get_file_state() call per spec §4.9/§6.
type GetFileStateRequest struct {
	FileID    types.FileID    `json:"file_id"`
	ContextID types.ContextID `json:"context_id"`
}

// GetFileStateResponse wraps types.FileState with an error string.
type GetFileStateResponse struct {
	types.FileState
	Error string `json:"error,omitempty"`
}

// CheckMutationGateRequest is a check_mutation_gate() call per spec §4.9/§6.
type CheckMutationGateRequest struct {
	FileIDs   []types.FileID  `json:"file_ids"`
	ContextID types.ContextID `json:"context_id"`
}

// CheckMutationGateResponse wraps filestate.GateResult with an error string.
type CheckMutationGateResponse struct {
	filestate.GateResult
	Error string `json:"error,omitempty"`
}

// CurrentEpochResponse is get_current_epoch()'s response.
type CurrentEpochResponse struct {
	Epoch int64  `json:"epoch"`
	Error string `json:"error,omitempty"`
}

// AwaitEpochRequest is an await_epoch() call per spec §4.12/§6.
type AwaitEpochRequest struct {
	Target     int64   `json:"target"`
	TimeoutSec float64 `json:"timeout_sec"`
}

// AwaitEpochResponse reports whether the target epoch was reached.
type AwaitEpochResponse struct {
	Reached bool   `json:"reached"`
	Error   string `json:"error,omitempty"`
}
