package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tsarna/resocket/pkg/resocket/config"
	"github.com/tsarna/resocket/pkg/resocket/otel"
	"github.com/tsarna/resocket/pkg/resocket/websockets/server"
	"go.uber.org/zap"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a WebSocket echo server",
	Long: `Run a WebSocket server that sends every message back to its sender.
It is useful for trying out sockets, request matching and reconnection.

On SIGINT or SIGTERM every client is closed with status 1001 (going away),
so connected resocket clients reconnect.

Examples:
  resocket serve --addr :8080
  resocket serve --addr :8080 --ping-interval 10s
  resocket serve --config server.hcl --server echo`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveAddr         string
	servePath         string
	servePingInterval time.Duration
	serveConfigPaths  []string
	serveName         string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", config.DefaultListenAddress, "address to listen on")
	serveCmd.Flags().StringVar(&servePath, "path", "/", "HTTP path of the WebSocket endpoint")
	serveCmd.Flags().DurationVar(&servePingInterval, "ping-interval", 0, "interval between pings to clients (0 disables)")
	serveCmd.Flags().StringSliceVarP(&serveConfigPaths, "config", "c", nil, "configuration files or directories")
	serveCmd.Flags().StringVar(&serveName, "server", "", "server block to use from the configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	addr := serveAddr
	builder := server.NewListener().
		WithLogger(logger).
		WithPingInterval(servePingInterval)

	if len(serveConfigPaths) > 0 {
		cfg, diags := config.NewConfig().
			WithLogger(logger).
			WithSources(stringSliceToAnySlice(serveConfigPaths)...).
			Build()
		if diags.HasErrors() {
			return diags
		}

		sc, err := cfg.Server(serveName)
		if err != nil {
			return err
		}

		builder = sc.NewListenerBuilder(logger)
		if !cmd.Flags().Changed("addr") {
			addr = sc.Listen
		}
	}

	listener, err := builder.
		WithMetrics(otel.NewProvider("resocket", Version)).
		Build()
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(servePath, listener)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting echo server", zap.String("addr", addr), zap.String("path", servePath))
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)

	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := listener.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Error closing WebSocket connections", zap.Error(err))
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	logger.Info("Shutdown complete")
	return nil
}
