package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [websocket-url] [payload]",
	Short: "Send one message and print the reply",
	Long: `Connect, send one payload, wait for the matching reply and print it.

Without --config the first argument is the WebSocket URL and the second the
payload. With --config the socket comes from the configuration and the only
argument is the payload, or --request names a request block to send.

JSON payloads are parsed before encoding; anything else is sent as a string.

Examples:
  resocket send ws://localhost:8080/ '{"op":"ping"}' --request-id id --match-field id
  resocket send ws://localhost:8080/ hello --codec raw
  resocket send --config device.hcl --socket device '{"op":"status"}'
  resocket send --config device.hcl --request status`,
	Args: cobra.RangeArgs(0, 2),
	RunE: runSend,
}

var (
	sendOptions socketOptions
	sendRequest string
)

func init() {
	rootCmd.AddCommand(sendCmd)

	sendOptions.addFlags(sendCmd)
	sendCmd.Flags().StringVarP(&sendRequest, "request", "r", "", "request block to send from the configuration")
}

func runSend(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := sendOptions.loadConfig(logger)
	if err != nil {
		return err
	}

	var (
		url        string
		payloadArg *string
		payload    any
		timeout    time.Duration
	)

	if cmd.Flags().Changed("timeout") {
		timeout = sendOptions.sendTimeout
	}

	switch {
	case cfg == nil && len(args) == 2:
		url, payloadArg = args[0], &args[1]
	case cfg == nil:
		return fmt.Errorf("expected a URL and a payload")
	case sendRequest != "":
		if len(args) != 0 {
			return fmt.Errorf("--request takes no payload argument")
		}
		req, err := cfg.Request(sendRequest)
		if err != nil {
			return err
		}
		if sendOptions.socketName == "" {
			sendOptions.socketName = req.Socket
		}
		payload = req.Payload
		if timeout == 0 {
			timeout = req.Timeout
		}
	case len(args) == 1:
		payloadArg = &args[0]
	default:
		return fmt.Errorf("expected a payload or --request")
	}

	builder, cdc, err := sendOptions.builder(logger, cfg, url)
	if err != nil {
		return err
	}

	s, err := builder.Build()
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}

	if payloadArg != nil {
		payload = parsePayload(cdc, *payloadArg)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	defer func() {
		if err := s.Disconnect(context.Background()); err != nil {
			logger.Warn("Error during disconnect", zap.Error(err))
		}
	}()

	logger.Debug("Sending message", zap.String("socket", s.Name()), zap.Any("payload", payload))

	reply, err := s.SendWithTimeout(ctx, payload, timeout)
	if err != nil {
		return fmt.Errorf("send failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), formatMessage(reply))

	return nil
}
