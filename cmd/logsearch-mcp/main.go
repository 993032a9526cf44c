package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/logsearch-mcp/internal/config"
	"github.com/standardbeagle/logsearch-mcp/internal/debug"
	"github.com/standardbeagle/logsearch-mcp/internal/engine"
	"github.com/standardbeagle/logsearch-mcp/internal/httpserver"
	"github.com/standardbeagle/logsearch-mcp/internal/model"
	"github.com/standardbeagle/logsearch-mcp/internal/reader"
	"github.com/standardbeagle/logsearch-mcp/internal/rpcserver"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "logsearch-mcp",
		Usage:   "Structured, paginated log search over local log files",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Project config file path",
				Value:   ".logsearch-mcp.kdl",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the service, serving stdio and/or HTTP per config.server.mode",
				Action: serveCommand,
			},
			{
				Name:   "list",
				Usage:  "List files that would be searched under a root directory",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "root", Aliases: []string{"r"}, Usage: "Root directory to scan"},
					&cli.StringSliceFlag{Name: "include", Usage: "Include glob patterns"},
					&cli.StringSliceFlag{Name: "exclude", Usage: "Exclude glob patterns"},
				},
				Action: listCommand,
			},
			{
				Name:   "inspect",
				Usage:  "Report encoding, compression, and sample timestamps for a file",
				Action: inspectCommand,
			},
		},
		Action: func(c *cli.Context) error {
			return cli.ShowAppHelp(c)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "logsearch-mcp: %v\n", err)
		os.Exit(1)
	}
}

func loadStore(c *cli.Context) (*config.Store, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return config.NewStore(cfg, path), nil
}

func serveCommand(c *cli.Context) error {
	store, err := loadStore(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	store.WatchReload(ctx)

	snapshot := store.Snapshot()
	eng := engine.New(store)
	rd := reader.New(snapshot.Search.BufferSize)

	errCh := make(chan error, 2)

	switch snapshot.Server.Mode {
	case config.ServerModeStdio, config.ServerModeBoth:
		debug.SetStdioMode(true)
		debug.InitDebugLogFile()
		go func() {
			srv := rpcserver.New(eng, rd)
			errCh <- srv.Run(ctx, os.Stdin, os.Stdout)
		}()
	}

	switch snapshot.Server.Mode {
	case config.ServerModeHTTP, config.ServerModeBoth:
		addr := fmt.Sprintf("%s:%d", snapshot.Server.HTTPAddr, snapshot.Server.HTTPPort)
		httpSrv := &http.Server{Addr: addr, Handler: httpserver.New(eng, rd)}
		go func() {
			debug.LogRPC("http transport listening on %s", addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			httpSrv.Shutdown(shutdownCtx)
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

func listCommand(c *cli.Context) error {
	store, err := loadStore(c)
	if err != nil {
		return err
	}
	eng := engine.New(store)

	files, err := eng.ListFiles(model.FileScanConfig{
		RootPath:     c.String("root"),
		IncludeGlobs: c.StringSlice("include"),
		ExcludeGlobs: c.StringSlice("exclude"),
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(files)
}

func inspectCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New("usage: logsearch-mcp inspect <path>")
	}
	store, err := loadStore(c)
	if err != nil {
		return err
	}
	snapshot := store.Snapshot()
	rd := reader.New(snapshot.Search.BufferSize)

	info, err := rd.Inspect(context.Background(), c.Args().First())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}
