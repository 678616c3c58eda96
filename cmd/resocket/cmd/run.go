package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tsarna/resocket/pkg/resocket/config"
	"github.com/tsarna/resocket/pkg/resocket/observers"
	"github.com/tsarna/resocket/pkg/resocket/otel"
	"github.com/tsarna/resocket/pkg/resocket/socket"
	"go.uber.org/zap"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [config-files-or-directories...]",
	Short: "Send scheduled requests from a configuration",
	Long: `Load the configuration and send every request block that has a schedule
over its socket, printing each reply as "<request>\t<reply>".

Sockets connect on first use and reconnect on their own afterwards.

Examples:
  resocket run device.hcl
  resocket run ./configs/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting scheduler", zap.Strings("config-paths", args))

	cfg, diags := config.NewConfig().
		WithLogger(logger).
		WithSources(stringSliceToAnySlice(args)...).
		Build()
	if diags.HasErrors() {
		logger.Error("Failed to build config", zap.Any("diags", diags))
		return diags
	}

	provider := otel.NewProvider("resocket", Version)
	sockets := make(map[string]*socket.Socket)

	resolve := func(name string) (*socket.Socket, error) {
		if s, ok := sockets[name]; ok {
			return s, nil
		}

		builder, err := cfg.NewSocketBuilder(name)
		if err != nil {
			return nil, err
		}

		s, err := builder.
			WithMetrics(provider).
			WithTracing(provider).
			WithObserver(observers.NewNamedLoggingObserver(nil, logger, zap.DebugLevel, name)).
			Build()
		if err != nil {
			return nil, err
		}

		sockets[name] = s
		return s, nil
	}

	out := cmd.OutOrStdout()
	var outMu sync.Mutex

	scheduler, err := cfg.NewScheduler(resolve, func(request string, reply any, err error) {
		if err != nil {
			return
		}
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(out, "%s\t%s\n", request, formatMessage(reply))
	})
	if err != nil {
		return err
	}

	if len(scheduler.Entries()) == 0 {
		return fmt.Errorf("no scheduled requests in configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	scheduler.Start()
	logger.Info("Scheduler running... (Press Ctrl+C to exit)", zap.Int("requests", len(scheduler.Entries())))

	<-ctx.Done()
	logger.Debug("Signal received, exiting")

	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	for name, s := range sockets {
		if err := s.Disconnect(shutdownCtx); err != nil {
			logger.Warn("Error during disconnect", zap.String("socket", name), zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")
	return nil
}
