package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/pipe-chat/internal/config"
	"github.com/gosuda/pipe-chat/internal/logging"
	"github.com/gosuda/pipe-chat/internal/plain"
	"github.com/gosuda/pipe-chat/internal/transport"
	"github.com/gosuda/pipe-chat/internal/tui"
)

var rootCmd = &cobra.Command{
	Use:   "chat-client",
	Short: "Terminal client for the pipe-framed websocket chat",
	RunE:  runClient,
}

var (
	cfg    config.Client
	envErr error
)

func init() {
	cfg, envErr = config.LoadClient()

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfg.Username, "username", "u", cfg.Username, "username to join as (env PIPECHAT_USERNAME)")
	flags.StringVarP(&cfg.Server, "server", "s", cfg.Server, "server address host:port (env PIPECHAT_SERVER)")
	flags.StringVar(&cfg.Wire, "wire", cfg.Wire, "preferred wire format: pipe or json (env PIPECHAT_WIRE)")
	flags.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "websocket handshake timeout, 0 for none (env PIPECHAT_HANDSHAKE_TIMEOUT)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (env PIPECHAT_LOG_LEVEL)")
	flags.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "append logs to this file (env PIPECHAT_LOG_FILE)")
	flags.BoolVar(&cfg.Plain, "plain", cfg.Plain, "line mode instead of the full-screen interface (env PIPECHAT_PLAIN)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute chat-client command")
	}
}

func runClient(cmd *cobra.Command, args []string) error {
	if envErr != nil {
		return envErr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	codec, err := cfg.Codec()
	if err != nil {
		return err
	}

	// The full-screen interface owns the terminal, so it only logs to a file.
	logOut, closeLog, err := logging.OpenFile(cfg.LogFile)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	if cfg.Plain && cfg.LogFile == "" {
		logOut = os.Stderr
	}
	if err := logging.Setup(cfg.LogLevel, logOut); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialer := transport.Dialer{Codec: codec, HandshakeTimeout: cfg.HandshakeTimeout}
	log.Debug().Str("server", cfg.Server).Str("wire", codec.Name()).Bool("plain", cfg.Plain).Msg("[chat] starting client")

	if cfg.Plain {
		return plain.Run(ctx, os.Stdin, os.Stdout, dialer.DialFunc(), cfg.Username, cfg.Server)
	}
	return tui.Run(ctx, tui.New(dialer.DialFunc(), cfg.Username, cfg.Server))
}
