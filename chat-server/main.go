package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gosuda.org/portal/portal/core/cryptoops"
	"gosuda.org/portal/sdk"

	"github.com/gosuda/pipe-chat/internal/config"
	"github.com/gosuda/pipe-chat/internal/logging"
	"github.com/gosuda/pipe-chat/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "chat-server",
	Short: "Pipe-framed websocket chat server",
	RunE:  runServer,
}

var (
	cfg    config.Server
	envErr error
)

func init() {
	cfg, envErr = config.LoadServer()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.Listen, "listen", cfg.Listen, "local listen address, empty to disable (env PIPECHAT_LISTEN)")
	flags.StringVar(&cfg.Name, "name", cfg.Name, "backend display name (env PIPECHAT_NAME)")
	flags.StringSliceVar(&cfg.RelayURLs, "relay-url", cfg.RelayURLs, "relayserver base URL(s); repeat or comma-separated (env RELAY)")
	flags.StringVar(&cfg.CredKey, "cred-key", cfg.CredKey, "optional credential key for relay listeners, base64 encoded (env PIPECHAT_CRED_KEY)")
	flags.IntVar(&cfg.MaxMessage, "max-message", cfg.MaxMessage, "maximum chat text length in runes (env PIPECHAT_MAX_MESSAGE)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (env PIPECHAT_LOG_LEVEL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute chat-server command")
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	if envErr != nil {
		return envErr
	}
	if err := logging.Setup(cfg.LogLevel, os.Stderr); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := server.NewHub(server.Config{MaxMessage: cfg.MaxMessage})
	handler := server.NewHandler(cfg.Name, hub)

	clients, listeners, err := listenRelays(cfg)
	if err != nil {
		return err
	}
	for i, ln := range listeners {
		idx := i
		go func() {
			if err := http.Serve(ln, handler); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
				log.Error().Err(err).Int("listener", idx).Msg("[chat] relay http error")
			}
		}()
	}

	var httpSrv *http.Server
	if cfg.Listen != "" {
		httpSrv = &http.Server{Addr: cfg.Listen, Handler: handler, ReadHeaderTimeout: 5 * time.Second, IdleTimeout: 60 * time.Second}
		log.Info().Str("addr", cfg.Listen).Msg("[chat] serving locally")
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("[chat] local http stopped")
				stop()
			}
		}()
	}

	<-ctx.Done()
	// Stop accepting before closing peers; the hub also refuses late upgrades.
	for _, ln := range listeners {
		_ = ln.Close()
	}
	for _, c := range clients {
		_ = c.Close()
	}
	if httpSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpSrv.Shutdown(sctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("[chat] http server shutdown error")
		}
		cancel()
	}
	hub.CloseAll()
	hub.Wait()
	log.Info().Msg("[chat] shutdown complete")
	return nil
}

// listenRelays opens one relay listener per configured relay URL, all
// sharing a single credential.
func listenRelays(cfg config.Server) ([]*sdk.RDClient, []net.Listener, error) {
	relays := cfg.Relays()
	if len(relays) == 0 {
		log.Info().Msg("[chat] relay disabled; running local mode only")
		return nil, nil, nil
	}

	cred := sdk.NewCredential()
	if cfg.CredKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.CredKey)
		if err != nil {
			return nil, nil, fmt.Errorf("decode cred key: %w", err)
		}
		cred2, err := cryptoops.NewCredentialFromPrivateKey(key)
		if err != nil {
			return nil, nil, fmt.Errorf("new credential from private key: %w", err)
		}
		cred = cred2
	}

	var (
		clients   []*sdk.RDClient
		listeners []net.Listener
	)
	for _, u := range relays {
		client, err := sdk.NewClient(func(c *sdk.RDClientConfig) { c.BootstrapServers = []string{u} })
		if err != nil {
			log.Error().Err(err).Str("url", u).Msg("[chat] new relay client failed")
			continue
		}
		clients = append(clients, client)
		ln, err := client.Listen(cred, cfg.Name, []string{"http/1.1"})
		if err != nil {
			for _, c := range clients {
				_ = c.Close()
			}
			return nil, nil, fmt.Errorf("listen (%s): %w", u, err)
		}
		listeners = append(listeners, ln)
		log.Info().Str("url", u).Msg("[chat] relay listener enabled")
	}
	if len(listeners) == 0 && cfg.Listen == "" {
		return nil, nil, fmt.Errorf("no relay listener could be opened and local listen is disabled")
	}
	return clients, listeners, nil
}
