package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-folio/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the Face Folio HTTP API.
Runs are started with POST /api/v1/runs/sort or /api/v1/runs/discover and
report progress as server-sent events. Discovered portraits can be listed,
viewed and tagged over the API before resuming the run.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default from WEB_PORT or 8085)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from WEB_HOST or 0.0.0.0)")
	serveCmd.Flags().StringSlice("allowed-origin", nil, "Allowed CORS origin, repeatable (default from WEB_ALLOWED_ORIGINS)")
	addMatchingFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	if origins := mustGetStringSlice(cmd, "allowed-origin"); len(origins) > 0 {
		cfg.Web.AllowedOrigins = origins
	}

	server := web.NewServer(cfg, newSorter(cfg), slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Folio API on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Printf("Embedding service: %s\n", cfg.Embedding.URL)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
