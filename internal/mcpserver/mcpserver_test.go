package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/codeplane-dev/codeplane/internal/config"
	"github.com/codeplane-dev/codeplane/internal/coordinator"
)

func newTestServer(t *testing.T, repoRoot string) *Server {
	t.Helper()
	cfg := &config.Config{
		Project: config.Project{Root: repoRoot},
		Index:   config.Index{IndexPath: filepath.Join(".codeplane", "index.db")},
	}
	coord, err := coordinator.New(cfg)
	require.NoError(t, err)
	t.Cleanup(coord.Stop)
	return New(coord)
}

func writeRepo(t *testing.T, repoRoot string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		abs := filepath.Join(repoRoot, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
}

func TestHandleInitializeThenSearch(t *testing.T) {
	repoRoot := t.TempDir()
	writeRepo(t, repoRoot, map[string]string{
		"go.mod":  "module example.com/demo\n\ngo 1.21\n",
		"main.go": "package main\n\nfunc Hello() string { return \"hi\" }\n",
	})
	s := newTestServer(t, repoRoot)

	initResult, err := s.handleInitialize(context.Background(), &mcp.CallToolRequest{})
	require.NoError(t, err)
	require.False(t, initResult.IsError)

	searchArgsJSON, err := json.Marshal(searchArgs{Query: "Hello", Mode: "definitions", Limit: 10})
	require.NoError(t, err)
	searchResult, err := s.handleSearch(context.Background(), &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Arguments: searchArgsJSON},
	})
	require.NoError(t, err)
	require.False(t, searchResult.IsError)

	text := searchResult.Content[0].(*mcp.TextContent).Text
	require.Contains(t, text, "main.go")
}

func TestHandleReindexIncrementalRejectsBadArguments(t *testing.T) {
	repoRoot := t.TempDir()
	writeRepo(t, repoRoot, map[string]string{
		"go.mod":  "module example.com/demo\n\ngo 1.21\n",
		"main.go": "package main\n\nfunc Hello() string { return \"hi\" }\n",
	})
	s := newTestServer(t, repoRoot)

	_, err := s.handleInitialize(context.Background(), &mcp.CallToolRequest{})
	require.NoError(t, err)

	result, err := s.handleReindexIncremental(context.Background(), &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(`not json`)},
	})
	require.NoError(t, err)
	require.True(t, result.IsError)
}
