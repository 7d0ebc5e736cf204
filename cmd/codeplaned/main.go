// Command codeplaned is the CodePlane daemon: discovers repository Contexts,
// indexes them, watches for changes, and serves the query surface over a
// unix socket and over MCP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/codeplane-dev/codeplane/internal/config"
	"github.com/codeplane-dev/codeplane/internal/coordinator"
	"github.com/codeplane-dev/codeplane/internal/debug"
	"github.com/codeplane-dev/codeplane/internal/mcpserver"
	"github.com/codeplane-dev/codeplane/internal/query"
	"github.com/codeplane-dev/codeplane/internal/server"
	"github.com/codeplane-dev/codeplane/internal/version"
)

func loadConfig(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	cfg, err := config.LoadWithRoot("", root)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.NewValidator().ValidateAndSetDefaults(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func rootFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "root",
		Aliases: []string{"r"},
		Usage:   "Project root directory (overrides config)",
	}
}

func main() {
	app := &cli.App{
		Name:    "codeplaned",
		Usage:   "Repository-local control plane and code index for coding agents",
		Version: version.Version,
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the daemon: discover Contexts, index, watch, and serve the unix-socket RPC surface",
				Flags: []cli.Flag{rootFlag()},
				Action: func(c *cli.Context) error {
					return serveCommand(c, false)
				},
			},
			{
				Name:  "mcp",
				Usage: "Run the daemon and serve its tools over MCP stdio instead of (or alongside) the unix socket",
				Flags: []cli.Flag{rootFlag()},
				Action: func(c *cli.Context) error {
					return serveCommand(c, true)
				},
			},
			{
				Name:  "reindex",
				Usage: "Connect to a running daemon and run a full reindex",
				Flags: []cli.Flag{rootFlag()},
				Action: reindexCommand,
			},
			{
				Name:      "search",
				Usage:     "Connect to a running daemon and search the index",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					rootFlag(),
					&cli.StringFlag{Name: "mode", Value: "definitions", Usage: "definitions, references, symbol, or lexical"},
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: searchCommand,
			},
			{
				Name:  "status",
				Usage: "Connect to a running daemon and print its readiness",
				Flags: []cli.Flag{rootFlag()},
				Action: statusCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		debug.FatalAndExit("%v", err)
	}
}

func socketPathForCLI(c *cli.Context) string {
	root := c.String("root")
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	return server.SocketPathForRoot(abs)
}

func serveCommand(c *cli.Context, mcp bool) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	coord, err := coordinator.New(cfg)
	if err != nil {
		return fmt.Errorf("build coordinator: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := server.New(coord)
	srv.SetSocketPath(server.SocketPathForRoot(cfg.Project.Root))
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	if _, err := coord.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	debug.Log("codeplaned", "initialized %d contexts", len(coord.Contexts()))

	if mcp {
		debug.SetMCPMode(true)
		mcpSrv := mcpserver.New(coord)
		errChan := make(chan error, 1)
		go func() { errChan <- mcpSrv.Run(ctx) }()
		return waitForSignalOrError(errChan)
	}

	waitCh := make(chan struct{})
	go func() {
		srv.Wait()
		close(waitCh)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		debug.Log("codeplaned", "received shutdown signal")
	case <-waitCh:
	}
	return nil
}

func waitForSignalOrError(errChan chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errChan:
		return err
	case <-sigChan:
		return nil
	}
}

func reindexCommand(c *cli.Context) error {
	client := server.NewClient(socketPathForCLI(c))
	resp, err := client.ReindexFull(context.Background())
	if err != nil {
		return fmt.Errorf("reindex_full: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("reindex_full: %s", resp.Error)
	}
	fmt.Printf("processed=%d added=%d updated=%d removed=%d symbols=%d duration=%.2fs\n",
		resp.FilesProcessed, resp.FilesAdded, resp.FilesUpdated, resp.FilesRemoved, resp.SymbolsIndexed, resp.DurationSeconds)
	return nil
}

func searchCommand(c *cli.Context) error {
	q := c.Args().First()
	if q == "" {
		return fmt.Errorf("search requires a query argument")
	}
	client := server.NewClient(socketPathForCLI(c))
	resp, err := client.Search(context.Background(), server.SearchRequest{
		Query: q,
		Mode:  query.SearchMode(c.String("mode")),
		Limit: c.Int("limit"),
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("search: %s", resp.Error)
	}
	for _, r := range resp.Results {
		fmt.Printf("%s:%d: %s\n", r.Path, r.Line, r.Snippet)
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	client := server.NewClient(socketPathForCLI(c))
	resp, err := client.Status(context.Background())
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	fmt.Printf("ready=%v contexts=%d\n", resp.Ready, resp.Contexts)
	return nil
}
