package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avast/retry-go"
	"github.com/spf13/cobra"
	"github.com/tsarna/resocket/pkg/resocket/observers"
	"go.uber.org/zap"
)

// listenCmd represents the listen command
var listenCmd = &cobra.Command{
	Use:   "listen [websocket-url]",
	Short: "Print every message received on a socket",
	Long: `Connect to a WebSocket server and print every inbound message to stdout,
one per line, until interrupted. Lost connections are re-established with
exponential backoff; the command exits when the socket gives up.

Examples:
  resocket listen ws://localhost:8080/
  resocket listen ws://localhost:8080/ --retries 5 --heartbeat 30s
  resocket listen --config device.hcl --socket device`,
	Args: cobra.MaximumNArgs(1),
	RunE: runListen,
}

var (
	listenOptions socketOptions
	listenRetries uint
	listenDelay   time.Duration
)

func init() {
	rootCmd.AddCommand(listenCmd)

	listenOptions.addFlags(listenCmd)
	listenCmd.Flags().UintVar(&listenRetries, "retries", 0, "extra attempts for the initial connection")
	listenCmd.Flags().DurationVar(&listenDelay, "retry-delay", time.Second, "base delay between initial connection attempts")
}

func runListen(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := listenOptions.loadConfig(logger)
	if err != nil {
		return err
	}

	var url string
	if len(args) > 0 {
		url = args[0]
	}

	builder, _, err := listenOptions.builder(logger, cfg, url)
	if err != nil {
		return err
	}

	channel := observers.NewChannelObserver(1000)

	s, err := builder.
		WithObserver(channel).
		WithObserver(observers.NewLoggingObserver(nil, logger, zap.InfoLevel)).
		Build()
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = retry.Do(
		func() error {
			if ctx.Err() != nil {
				return retry.Unrecoverable(ctx.Err())
			}
			return s.Connect(ctx)
		},
		retry.Attempts(listenRetries+1),
		retry.Delay(listenDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Connection attempt failed", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	// The first failed attempt already reported a disconnect.
	drainDisconnects(channel)

	logger.Info("Listening for messages... (Press Ctrl+C to exit)")

	out := cmd.OutOrStdout()

	for {
		select {
		case message := <-channel.Messages():
			fmt.Fprintln(out, formatMessage(message))

		case err := <-channel.Disconnects():
			if dropped := channel.Dropped(); dropped > 0 {
				logger.Warn("Messages dropped", zap.Int64("count", dropped))
			}
			if err != nil {
				return fmt.Errorf("socket closed: %w", err)
			}
			return nil

		case <-ctx.Done():
			logger.Debug("Signal received, exiting")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()

			if err := s.Disconnect(shutdownCtx); err != nil {
				logger.Warn("Error during disconnect", zap.Error(err))
			}

			logger.Info("Shutdown complete")
			return nil
		}
	}
}

func drainDisconnects(channel *observers.ChannelObserver) {
	for {
		select {
		case <-channel.Disconnects():
		default:
			return
		}
	}
}
