// Package mcpserver exposes the Coordinator's tool-facing API as MCP tools,
// the way an agent (not an RPC client) drives codeplaned.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeplane-dev/codeplane/internal/coordinator"
	"github.com/codeplane-dev/codeplane/internal/debug"
	"github.com/codeplane-dev/codeplane/internal/query"
	"github.com/codeplane-dev/codeplane/internal/types"
	"github.com/codeplane-dev/codeplane/internal/version"
)

// Server registers codeplane's operations as MCP tools over stdio.
type Server struct {
	coord  *coordinator.Coordinator
	server *mcp.Server
}

// New builds an MCP server around coord and registers every tool.
func New(coord *coordinator.Coordinator) *Server {
	s := &Server{
		coord: coord,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "codeplane-mcp-server",
			Version: version.Version,
		}, nil),
	}
	s.registerTools()
	return s
}

// Run serves tool calls over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	debug.LogMCP("starting codeplane MCP server over stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "initialize",
		Description: "Discover repository Contexts and run the first full index pass.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleInitialize)

	s.server.AddTool(&mcp.Tool{
		Name:        "reindex_incremental",
		Description: "Reindex exactly the given repo-relative paths.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"paths": {Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "Repo-relative file paths to reindex"},
			},
			Required: []string{"paths"},
		},
	}, s.handleReindexIncremental)

	s.server.AddTool(&mcp.Tool{
		Name:        "reindex_full",
		Description: "Re-run discovery and reindex the whole repository.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleReindexFull)

	s.server.AddTool(&mcp.Tool{
		Name:        "search",
		Description: "Search the code index. Modes: definitions, references, symbol, lexical.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query":      {Type: "string", Description: "Search text"},
				"mode":       {Type: "string", Description: "definitions, references, symbol, or lexical"},
				"limit":      {Type: "integer", Description: "Maximum results"},
				"context_id": {Type: "integer", Description: "Restrict to one Context id"},
			},
			Required: []string{"query", "mode"},
		},
	}, s.handleSearch)

	s.server.AddTool(&mcp.Tool{
		Name:        "map_repo",
		Description: "Get a structural overview of the repository: directory tree, languages, dependencies, test layout, entry points, public API.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"include":       {Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "Sections to include; empty means all"},
				"depth":         {Type: "integer", Description: "Directory tree depth, 0 means unbounded"},
				"limit":         {Type: "integer", Description: "Max entries per section, 0 means unbounded"},
				"include_globs": {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
				"exclude_globs": {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			},
		},
	}, s.handleMapRepo)

	s.server.AddTool(&mcp.Tool{
		Name:        "read_scope",
		Description: "Read the smallest enclosing scope (function, class, block) around a line.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"file_id":    {Type: "integer"},
				"line":       {Type: "integer"},
				"preference": {Type: "string", Description: "Preferred scope kind, e.g. function"},
				"radius":     {Type: "integer", Description: "Fallback window radius in lines"},
			},
			Required: []string{"file_id", "line"},
		},
	}, s.handleReadScope)

	s.server.AddTool(&mcp.Tool{
		Name:        "get_file_state",
		Description: "Get a file's freshness and certainty relative to one Context.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"file_id":    {Type: "integer"},
				"context_id": {Type: "integer"},
			},
			Required: []string{"file_id", "context_id"},
		},
	}, s.handleGetFileState)

	s.server.AddTool(&mcp.Tool{
		Name:        "check_mutation_gate",
		Description: "Check whether files are safe for an agent to mutate right now.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"file_ids":   {Type: "array", Items: &jsonschema.Schema{Type: "integer"}},
				"context_id": {Type: "integer"},
			},
			Required: []string{"file_ids", "context_id"},
		},
	}, s.handleCheckMutationGate)

	s.server.AddTool(&mcp.Tool{
		Name:        "get_current_epoch",
		Description: "Get the latest published snapshot epoch id.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleGetCurrentEpoch)

	s.server.AddTool(&mcp.Tool{
		Name:        "await_epoch",
		Description: "Block until a target epoch publishes or a timeout elapses.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"target":      {Type: "integer"},
				"timeout_sec": {Type: "number"},
			},
			Required: []string{"target"},
		},
	}, s.handleAwaitEpoch)
}

func jsonResult(data any) (*mcp.CallToolResult, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(encoded)}}}, nil
}

func errorResult(op string, err error) (*mcp.CallToolResult, error) {
	encoded, _ := json.Marshal(map[string]any{"error": err.Error()})
	debug.LogMCP("%s failed: %v", op, err)
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(encoded)}}, IsError: true}, nil
}

func (s *Server) handleInitialize(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.coord.Initialize(ctx)
	if err != nil {
		return errorResult("initialize", err)
	}
	return jsonResult(result)
}

func (s *Server) handleReindexFull(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.coord.ReindexFull(ctx)
	if err != nil {
		return errorResult("reindex_full", err)
	}
	return jsonResult(stats)
}

type reindexIncrementalArgs struct {
	Paths []string `json:"paths"`
}

func (s *Server) handleReindexIncremental(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args reindexIncrementalArgs
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return errorResult("reindex_incremental", fmt.Errorf("invalid arguments: %w", err))
	}
	stats, err := s.coord.ReindexIncremental(ctx, args.Paths)
	if err != nil {
		return errorResult("reindex_incremental", err)
	}
	return jsonResult(stats)
}

type searchArgs struct {
	Query     string           `json:"query"`
	Mode      query.SearchMode `json:"mode"`
	Limit     int              `json:"limit"`
	ContextID *types.ContextID `json:"context_id,omitempty"`
}

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args searchArgs
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return errorResult("search", fmt.Errorf("invalid arguments: %w", err))
	}
	resp, err := s.coord.Search(ctx, args.Query, args.Mode, args.Limit, args.ContextID)
	if err != nil {
		return errorResult("search", err)
	}
	return jsonResult(resp)
}

type mapRepoArgs struct {
	Include      []query.MapRepoInclude `json:"include"`
	Depth        int                    `json:"depth"`
	Limit        int                    `json:"limit"`
	IncludeGlobs []string               `json:"include_globs"`
	ExcludeGlobs []string               `json:"exclude_globs"`
}

func (s *Server) handleMapRepo(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args mapRepoArgs
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return errorResult("map_repo", fmt.Errorf("invalid arguments: %w", err))
		}
	}
	result, err := s.coord.MapRepo(ctx, query.MapRepoOptions{
		Include:      args.Include,
		Depth:        args.Depth,
		Limit:        args.Limit,
		IncludeGlobs: args.IncludeGlobs,
		ExcludeGlobs: args.ExcludeGlobs,
	})
	if err != nil {
		return errorResult("map_repo", err)
	}
	return jsonResult(result)
}

type readScopeArgs struct {
	FileID     types.FileID    `json:"file_id"`
	Line       int             `json:"line"`
	Preference types.ScopeKind `json:"preference"`
	Radius     int             `json:"radius"`
}

func (s *Server) handleReadScope(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args readScopeArgs
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return errorResult("read_scope", fmt.Errorf("invalid arguments: %w", err))
	}
	result, err := s.coord.ReadScope(ctx, args.FileID, args.Line, args.Preference, args.Radius)
	if err != nil {
		return errorResult("read_scope", err)
	}
	return jsonResult(result)
}

type fileStateArgs struct {
	FileID    types.FileID    `json:"file_id"`
	ContextID types.ContextID `json:"context_id"`
}

func (s *Server) handleGetFileState(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args fileStateArgs
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return errorResult("get_file_state", fmt.Errorf("invalid arguments: %w", err))
	}
	state, err := s.coord.GetFileState(ctx, args.FileID, args.ContextID)
	if err != nil {
		return errorResult("get_file_state", err)
	}
	return jsonResult(state)
}

type mutationGateArgs struct {
	FileIDs   []types.FileID  `json:"file_ids"`
	ContextID types.ContextID `json:"context_id"`
}

func (s *Server) handleCheckMutationGate(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args mutationGateArgs
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return errorResult("check_mutation_gate", fmt.Errorf("invalid arguments: %w", err))
	}
	gate, err := s.coord.CheckMutationGate(ctx, args.FileIDs, args.ContextID)
	if err != nil {
		return errorResult("check_mutation_gate", err)
	}
	return jsonResult(gate)
}

func (s *Server) handleGetCurrentEpoch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	epoch, err := s.coord.GetCurrentEpoch(ctx)
	if err != nil {
		return errorResult("get_current_epoch", err)
	}
	return jsonResult(map[string]int64{"epoch": epoch})
}

type awaitEpochArgs struct {
	Target     int64   `json:"target"`
	TimeoutSec float64 `json:"timeout_sec"`
}

func (s *Server) handleAwaitEpoch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args awaitEpochArgs
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return errorResult("await_epoch", fmt.Errorf("invalid arguments: %w", err))
	}
	reached, err := s.coord.AwaitEpoch(ctx, args.Target, time.Duration(args.TimeoutSec*float64(time.Second)))
	if err != nil {
		return errorResult("await_epoch", err)
	}
	return jsonResult(map[string]bool{"reached": reached})
}
