// Command rowserver serves row-range slices of a large delimited text
// file over a websocket transport, backed by a sparse on-disk row index.
// Modeled on the teacher's cmd/edrmount/main.go: bootstrap config, load
// config, validate, construct dependent services, serve.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tkim90/billion-row-table/internal/config"
	"github.com/tkim90/billion-row-table/internal/dispatch"
	"github.com/tkim90/billion-row-table/internal/health"
	"github.com/tkim90/billion-row-table/internal/rowindex"
	"github.com/tkim90/billion-row-table/internal/slicer"
	"github.com/tkim90/billion-row-table/internal/transport"
	"github.com/tkim90/billion-row-table/internal/workerpool"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("rowserver: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:   "rowserver",
		Short: "Serve row-range slices of a large delimited text file.",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "/config/rowserver.json", "path to config file (json)")

	root.AddCommand(newServeCmd(&cfgPath))
	root.AddCommand(newBuildIndexCmd(&cfgPath))
	return root
}

func loadConfig(cfgPath string) (config.Config, error) {
	if err := config.EnsureConfigFile(cfgPath); err != nil {
		return config.Config{}, fmt.Errorf("config bootstrap: %w", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("config validate: %w", err)
	}
	return cfg, nil
}

func newBuildIndexCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "build-index",
		Short: "Force a fresh scan of the data file and persist the index.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			idx, err := rowindex.Build(cmd.Context(), cfg.FilePath, uint64(cfg.Index.Granularity))
			if err != nil {
				return err
			}
			return rowindex.Save(cfg.Index.Path, idx)
		},
	}
}

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load/build the index and start serving slice requests.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	audit, err := health.NewRecorder(auditPathFor(cfg.Index.Path))
	if err != nil {
		log.Printf("rowserver: audit trail disabled: %v", err)
		audit, _ = health.NewRecorder("")
	}
	defer audit.Close()

	buildStart := time.Now()
	idx, err := rowindex.LoadOrBuild(ctx, cfg.FilePath, cfg.Index.Path, uint64(cfg.Index.Granularity), audit)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	log.Printf("rowserver: index ready rows=%d anchors=%d elapsed=%s", idx.TotalRows, len(idx.Offsets), time.Since(buildStart))

	s, err := slicer.New(cfg.FilePath, idx, cfg.Table.NumCols(), cfg.Table.FieldSepByte())
	if err != nil {
		return fmt.Errorf("slicer: %w", err)
	}
	defer s.Close()

	d := dispatch.New(s)
	pool := workerpool.New(64)

	mux := http.NewServeMux()
	mux.Handle("/", transport.Handler(d, pool))
	healthMux := health.Handler(s)
	mux.Handle("/live", healthMux)
	mux.Handle("/healthz", healthMux)

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("rowserver: listening on %s", cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// auditPathFor derives a sqlite audit-log path alongside the index file,
// so the two are managed together without needing a separate config key.
func auditPathFor(indexPath string) string {
	if indexPath == "" {
		return ""
	}
	return indexPath + ".audit.db"
}
