package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Client talks to a running codeplaned over its unix socket. Used by the CLI
// and by tests that want to exercise the wire format rather than calling the
// Coordinator directly.
type Client struct {
	httpClient *http.Client
}

// NewClient dials socketPath for every request, the way an http.Transport's
// DialContext substitutes a unix connection for a TCP one.
func NewClient(socketPath string) *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) post(ctx context.Context, path string, req, resp any) error {
	var body io.Reader
	if req != nil {
		encoded, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://unix"+path, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("%s: server returned %d: %s", path, httpResp.StatusCode, string(raw))
	}
	return json.NewDecoder(httpResp.Body).Decode(resp)
}

// Ping checks whether the daemon is reachable.
func (c *Client) Ping(ctx context.Context) (PingResponse, error) {
	var resp PingResponse
	err := c.post(ctx, "/ping", nil, &resp)
	return resp, err
}

// Status reports readiness and how many Contexts are currently routed.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.post(ctx, "/status", nil, &resp)
	return resp, err
}

// Shutdown asks the daemon to stop.
func (c *Client) Shutdown(ctx context.Context, force bool) (ShutdownResponse, error) {
	var resp ShutdownResponse
	err := c.post(ctx, "/shutdown", ShutdownRequest{Force: force}, &resp)
	return resp, err
}

// Initialize runs the daemon's first discovery-and-index pass.
func (c *Client) Initialize(ctx context.Context) (InitializeResponse, error) {
	var resp InitializeResponse
	err := c.post(ctx, "/initialize", nil, &resp)
	return resp, err
}

// ReindexIncremental reindexes exactly the named paths.
func (c *Client) ReindexIncremental(ctx context.Context, paths []string) (IndexStatsResponse, error) {
	var resp IndexStatsResponse
	err := c.post(ctx, "/reindex_incremental", ReindexIncrementalRequest{Paths: paths}, &resp)
	return resp, err
}

// ReindexFull re-discovers Contexts and reindexes the whole repository.
func (c *Client) ReindexFull(ctx context.Context) (IndexStatsResponse, error) {
	var resp IndexStatsResponse
	err := c.post(ctx, "/reindex_full", nil, &resp)
	return resp, err
}

// Search runs a query against the lexical/structural index.
func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchResponseEnvelope, error) {
	var resp SearchResponseEnvelope
	err := c.post(ctx, "/search", req, &resp)
	return resp, err
}

// MapRepo asks for the repository's structural overview.
func (c *Client) MapRepo(ctx context.Context, req MapRepoRequest) (MapRepoResponseEnvelope, error) {
	var resp MapRepoResponseEnvelope
	err := c.post(ctx, "/map_repo", req, &resp)
	return resp, err
}

// ReadScope fetches the smallest enclosing scope around a line.
func (c *Client) ReadScope(ctx context.Context, req ReadScopeRequest) (ReadScopeResponseEnvelope, error) {
	var resp ReadScopeResponseEnvelope
	err := c.post(ctx, "/read_scope", req, &resp)
	return resp, err
}

// GetFileState fetches one file's freshness and certainty per Context.
func (c *Client) GetFileState(ctx context.Context, req GetFileStateRequest) (GetFileStateResponse, error) {
	var resp GetFileStateResponse
	err := c.post(ctx, "/get_file_state", req, &resp)
	return resp, err
}

// CheckMutationGate asks whether files are safe for an agent to mutate.
func (c *Client) CheckMutationGate(ctx context.Context, req CheckMutationGateRequest) (CheckMutationGateResponse, error) {
	var resp CheckMutationGateResponse
	err := c.post(ctx, "/check_mutation_gate", req, &resp)
	return resp, err
}

// GetCurrentEpoch fetches the latest published epoch id.
func (c *Client) GetCurrentEpoch(ctx context.Context) (CurrentEpochResponse, error) {
	var resp CurrentEpochResponse
	err := c.post(ctx, "/get_current_epoch", nil, &resp)
	return resp, err
}

// AwaitEpoch blocks server-side until target epoch publishes or the timeout
// elapses.
func (c *Client) AwaitEpoch(ctx context.Context, req AwaitEpochRequest) (AwaitEpochResponse, error) {
	var resp AwaitEpochResponse
	err := c.post(ctx, "/await_epoch", req, &resp)
	return resp, err
}
