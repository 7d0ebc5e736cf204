package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeplane-dev/codeplane/internal/config"
	"github.com/codeplane-dev/codeplane/internal/coordinator"
	"github.com/codeplane-dev/codeplane/internal/query"
)

func startTestServer(t *testing.T, repoRoot string) *Client {
	t.Helper()
	cfg := &config.Config{
		Project: config.Project{Root: repoRoot},
		Index:   config.Index{IndexPath: filepath.Join(".codeplane", "index.db")},
	}
	coord, err := coordinator.New(cfg)
	require.NoError(t, err)

	srv := New(coord)
	srv.SetSocketPath(filepath.Join(t.TempDir(), "codeplaned.sock"))
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	return NewClient(srv.socketPath)
}

func writeTestRepo(t *testing.T, repoRoot string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		abs := filepath.Join(repoRoot, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
}

func TestServer_PingAndStatus(t *testing.T) {
	repoRoot := t.TempDir()
	client := startTestServer(t, repoRoot)

	ping, err := client.Ping(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, ping.Version)

	status, err := client.Status(context.Background())
	require.NoError(t, err)
	require.True(t, status.Ready)
}

func TestServer_InitializeThenSearch(t *testing.T) {
	repoRoot := t.TempDir()
	writeTestRepo(t, repoRoot, map[string]string{
		"go.mod":  "module example.com/demo\n\ngo 1.21\n",
		"main.go": "package main\n\nfunc Hello() string { return \"hi\" }\n",
	})
	client := startTestServer(t, repoRoot)

	initResp, err := client.Initialize(context.Background())
	require.NoError(t, err)
	require.Empty(t, initResp.Error)
	require.Equal(t, 1, initResp.FilesIndexed)

	searchResp, err := client.Search(context.Background(), SearchRequest{
		Query: "Hello",
		Mode:  query.ModeDefinitions,
		Limit: 10,
	})
	require.NoError(t, err)
	require.Empty(t, searchResp.Error)
	require.Len(t, searchResp.Results, 1)
}

func TestServer_ReindexIncrementalReportsOnlyNamedPath(t *testing.T) {
	repoRoot := t.TempDir()
	writeTestRepo(t, repoRoot, map[string]string{
		"go.mod":  "module example.com/demo\n\ngo 1.21\n",
		"main.go": "package main\n\nfunc Hello() string { return \"hi\" }\n",
	})
	client := startTestServer(t, repoRoot)

	_, err := client.Initialize(context.Background())
	require.NoError(t, err)

	writeTestRepo(t, repoRoot, map[string]string{
		"extra.go": "package main\n\nfunc Extra() int { return 2 }\n",
	})
	stats, err := client.ReindexIncremental(context.Background(), []string{"extra.go"})
	require.NoError(t, err)
	require.Empty(t, stats.Error)
	require.Equal(t, 1, stats.FilesAdded)
}

func TestServer_AwaitEpochReturnsAfterInitialize(t *testing.T) {
	repoRoot := t.TempDir()
	writeTestRepo(t, repoRoot, map[string]string{
		"go.mod":  "module example.com/demo\n\ngo 1.21\n",
		"main.go": "package main\n\nfunc Hello() string { return \"hi\" }\n",
	})
	client := startTestServer(t, repoRoot)

	_, err := client.Initialize(context.Background())
	require.NoError(t, err)

	resp, err := client.AwaitEpoch(context.Background(), AwaitEpochRequest{Target: 1, TimeoutSec: 2})
	require.NoError(t, err)
	require.True(t, resp.Reached)
}

func TestServer_ShutdownUnblocksWait(t *testing.T) {
	repoRoot := t.TempDir()
	cfg := &config.Config{
		Project: config.Project{Root: repoRoot},
		Index:   config.Index{IndexPath: filepath.Join(".codeplane", "index.db")},
	}
	coord, err := coordinator.New(cfg)
	require.NoError(t, err)

	srv := New(coord)
	srv.SetSocketPath(filepath.Join(t.TempDir(), "codeplaned.sock"))
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	done := make(chan struct{})
	go func() {
		srv.Wait()
		close(done)
	}()

	client := NewClient(srv.socketPath)
	_, err = client.Shutdown(context.Background(), false)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
