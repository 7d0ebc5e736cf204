// Package server implements the daemon's unix-socket JSON-over-HTTP RPC
// surface: one listener, one ServeMux, one handler per spec §6 tool-facing
// operation, all delegating to a single internal/coordinator.Coordinator.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codeplane-dev/codeplane/internal/coordinator"
	"github.com/codeplane-dev/codeplane/internal/debug"
	"github.com/codeplane-dev/codeplane/internal/version"
)

// Server wraps a Coordinator with the unix-socket transport.
type Server struct {
	coord      *coordinator.Coordinator
	startTime  time.Time
	listener   net.Listener
	httpServer *http.Server
	socketPath string

	mu           sync.RWMutex
	running      bool
	shutdownChan chan struct{}
	wg           sync.WaitGroup
}

// New builds a Server around an already-constructed Coordinator.
func New(coord *coordinator.Coordinator) *Server {
	return &Server{
		coord:        coord,
		startTime:    time.Now(),
		shutdownChan: make(chan struct{}),
	}
}

// SocketPathForRoot derives a deterministic per-repository socket path, the
// way multiple daemons for different repos avoid colliding on one default
// path.
func SocketPathForRoot(root string) string {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}
	var hash uint32
	for _, c := range absRoot {
		hash = hash*31 + uint32(c)
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("codeplaned-%08x.sock", hash))
}

// SetSocketPath overrides the socket path Start binds to (tests use this to
// avoid colliding on the default).
func (s *Server) SetSocketPath(path string) {
	s.socketPath = path
}

// Start binds the unix socket, starts the Coordinator's watcher, and begins
// serving. It does not block; call Wait to block until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	socketPath := s.socketPath
	if socketPath == "" {
		socketPath = SocketPathForRoot(".")
	}
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	s.listener = listener
	os.Chmod(socketPath, 0o600)

	mux := http.NewServeMux()
	s.registerHandlers(mux)
	s.httpServer = &http.Server{Handler: mux}

	if err := s.coord.Start(ctx); err != nil {
		listener.Close()
		return fmt.Errorf("start coordinator: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			debug.Log("server", "serve error: %v", err)
		}
	}()

	debug.Log("server", "codeplaned listening on %s (pid %d)", socketPath, os.Getpid())
	return nil
}

// Wait blocks until Shutdown (or a /shutdown request) closes the server.
func (s *Server) Wait() {
	<-s.shutdownChan
}

// Shutdown stops serving, stops the Coordinator, and removes the socket
// file.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("shut down http server: %w", err)
		}
	}
	s.wg.Wait()
	s.coord.Stop()

	if s.listener != nil {
		s.listener.Close()
	}
	if s.socketPath != "" {
		os.Remove(s.socketPath)
	}
	return nil
}

func (s *Server) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/shutdown", s.handleShutdown)
	mux.HandleFunc("/initialize", s.handleInitialize)
	mux.HandleFunc("/reindex_incremental", s.handleReindexIncremental)
	mux.HandleFunc("/reindex_full", s.handleReindexFull)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/map_repo", s.handleMapRepo)
	mux.HandleFunc("/read_scope", s.handleReadScope)
	mux.HandleFunc("/get_file_state", s.handleGetFileState)
	mux.HandleFunc("/check_mutation_gate", s.handleCheckMutationGate)
	mux.HandleFunc("/get_current_epoch", s.handleGetCurrentEpoch)
	mux.HandleFunc("/await_epoch", s.handleAwaitEpoch)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, PingResponse{Uptime: time.Since(s.startTime).Seconds(), Version: version.Version})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	warning, _ := s.coord.PopPendingWarning()
	writeJSON(w, StatusResponse{Ready: true, Contexts: len(s.coord.Contexts()), Warning: warning})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ShutdownResponse{Success: true, Message: "codeplaned shutting down"})
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(s.shutdownChan)
	}()
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	result, err := s.coord.Initialize(r.Context())
	resp := InitializeResponse{InitResult: result}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, resp)
}

func (s *Server) handleReindexIncremental(w http.ResponseWriter, r *http.Request) {
	var req ReindexIncrementalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	stats, err := s.coord.ReindexIncremental(r.Context(), req.Paths)
	resp := IndexStatsResponse{IndexStats: stats}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, resp)
}

func (s *Server) handleReindexFull(w http.ResponseWriter, r *http.Request) {
	stats, err := s.coord.ReindexFull(r.Context())
	resp := IndexStatsResponse{IndexStats: stats}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.coord.Search(r.Context(), req.Query, req.Mode, req.Limit, req.ContextID)
	resp := SearchResponseEnvelope{SearchResponse: res}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, resp)
}

func (s *Server) handleMapRepo(w http.ResponseWriter, r *http.Request) {
	var req MapRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	opts := coordinatorMapRepoOptions(req)
	result, err := s.coord.MapRepo(r.Context(), opts)
	resp := MapRepoResponseEnvelope{MapRepoResult: result}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, resp)
}

func (s *Server) handleReadScope(w http.ResponseWriter, r *http.Request) {
	var req ReadScopeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := s.coord.ReadScope(r.Context(), req.FileID, req.Line, req.Preference, req.Radius)
	resp := ReadScopeResponseEnvelope{ScopeReadResult: result}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, resp)
}

func (s *Server) handleGetFileState(w http.ResponseWriter, r *http.Request) {
	var req GetFileStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	state, err := s.coord.GetFileState(r.Context(), req.FileID, req.ContextID)
	resp := GetFileStateResponse{FileState: state}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, resp)
}

func (s *Server) handleCheckMutationGate(w http.ResponseWriter, r *http.Request) {
	var req CheckMutationGateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	gate, err := s.coord.CheckMutationGate(r.Context(), req.FileIDs, req.ContextID)
	resp := CheckMutationGateResponse{GateResult: gate}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, resp)
}

func (s *Server) handleGetCurrentEpoch(w http.ResponseWriter, r *http.Request) {
	epoch, err := s.coord.GetCurrentEpoch(r.Context())
	resp := CurrentEpochResponse{Epoch: epoch}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, resp)
}

func (s *Server) handleAwaitEpoch(w http.ResponseWriter, r *http.Request) {
	var req AwaitEpochRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	reached, err := s.coord.AwaitEpoch(r.Context(), req.Target, time.Duration(req.TimeoutSec*float64(time.Second)))
	resp := AwaitEpochResponse{Reached: reached}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
