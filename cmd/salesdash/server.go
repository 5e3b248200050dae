package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/salesdash/internal/aggregate"
	"github.com/kalambet/salesdash/internal/analytics"
	"github.com/kalambet/salesdash/internal/api"
	"github.com/kalambet/salesdash/internal/config"
	"github.com/kalambet/salesdash/internal/daterange"
	"github.com/kalambet/salesdash/internal/forecast"
	"github.com/kalambet/salesdash/internal/ingest"
	"github.com/kalambet/salesdash/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and data status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "salesdash.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func openStore(cfg config.Config) (*storage.Store, error) {
	store, err := storage.Open(storage.Config{
		Driver:   cfg.Storage.Driver,
		DataDir:  cfg.Storage.DataDir,
		DSN:      cfg.Storage.DSN,
		MaxConns: cfg.Storage.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

// newService builds the analytics service over an open store.
func newService(cfg config.Config, store *storage.Store, logger *slog.Logger) *analytics.Service {
	repo := aggregate.NewRepository(store.DB(), store.Dialect())
	resolver := daterange.NewResolver(daterange.SystemClock{}, cfg.Dates.LenientCustomRange)
	engine := forecast.NewEngine(forecast.Config{
		Method:     cfg.Forecast.Method,
		Densify:    cfg.Forecast.Densify,
		PeakWindow: cfg.Forecast.PeakWindow,
		MaxEvents:  cfg.Forecast.MaxEvents,
		Z:          cfg.Forecast.ConfidenceZ,
	})
	return analytics.NewService(repo, resolver, engine, analytics.Config{
		TopLimit:      cfg.Query.TopLimit,
		Workers:       cfg.Forecast.Workers,
		DensifySeries: cfg.TimeSeries.Densify,
	}, logger)
}

// loadOnStartup seeds an empty store from the configured file. Failures are
// logged; the server starts either way.
func loadOnStartup(ctx context.Context, cfg config.Config, store *storage.Store, loader *ingest.Loader) {
	if !cfg.Load.OnStartup || cfg.Load.CSVPath == "" {
		return
	}
	if _, err := os.Stat(cfg.Load.CSVPath); err != nil {
		slog.Warn("sales file not found, starting with existing data", "path", cfg.Load.CSVPath)
		return
	}
	stats, loaded, err := ingest.LoadIfEmpty(ctx, store, loader, cfg.Load.CSVPath)
	switch {
	case err != nil:
		slog.Error("startup load failed", "path", cfg.Load.CSVPath, "error", err)
	case loaded:
		slog.Info("startup load complete", "rows", stats.Rows, "skipped", stats.Skipped)
	default:
		slog.Debug("sales table already populated, skipping startup load")
	}
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "salesdash version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()})))

	// Refuse to start twice on the same address.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(serverURL(cfg) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("salesdash is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("salesdash is already running on %s", cfg.Addr())
		return fmt.Errorf("server already running on %s", cfg.Addr())
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()
	slog.Info("storage ready", "driver", store.Dialect().Name())

	loader := ingest.NewLoader(store)
	loadOnStartup(ctx, cfg, store, loader)

	svc := newService(cfg, store, slog.Default())

	handler := api.NewHandler(api.Deps{
		Service:        svc,
		Jobs:           store,
		Store:          store,
		CSVPath:        cfg.Load.CSVPath,
		Version:        version,
		DefaultHorizon: cfg.Forecast.Horizon,
		RequestTimeout: cfg.RequestTimeout(),
		Logger:         slog.Default(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// The worker is the only writer to the sales table while serving.
	worker := ingest.NewWorker(store, loader, 500*time.Millisecond)
	go worker.Run(ctx)

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Service:        svc,
			Version:        version,
			DefaultHorizon: cfg.Forecast.Horizon,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "salesdash listening on %s\n", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("salesdash is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop salesdash (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to salesdash (PID %d)", pid)
	return nil
}

type healthView struct {
	Status string `json:"status"`
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &apiClient{baseURL: serverURL(cfg), httpClient: &http.Client{Timeout: 2 * time.Second}}
	ctx := context.Background()

	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		var h healthView
		if err := decodeJSON(resp, &h); err != nil {
			printStatus("Server", "error (%v)", err)
		} else {
			printStatus("Server", "%s on %s", h.Status, cfg.Addr())
		}
	}

	printStatus("Storage", "%s", cfg.Storage.Driver)
	if cfg.Storage.Driver == "sqlite" {
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
	}
	printStatus("Sales file", "%s", cfg.Load.CSVPath)

	store, err := openStore(cfg)
	if err != nil {
		printStatus("Rows", "unavailable (%v)", err)
		return nil
	}
	defer store.Close()

	n, err := store.CountSales(ctx)
	if err != nil {
		printStatus("Rows", "unavailable (%v)", err)
		return nil
	}
	printStatus("Rows", "%d", n)
	if first, last, ok, err := store.DateBounds(ctx); err == nil && ok {
		printStatus("Orders", "%s to %s", first.Format("2006-01-02"), last.Format("2006-01-02"))
	}
	return nil
}
