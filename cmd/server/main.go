// Command server runs the relay: every message a client sends is forwarded
// to all connected clients.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/omochice/relay-chat/internal/chat"
	"github.com/omochice/relay-chat/internal/config"
	"github.com/omochice/relay-chat/internal/logging"
	"github.com/omochice/relay-chat/internal/transport/ws"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Run the chat relay server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.ListenAddr = addr
			}
			logger, err := logging.New(cfg.LogLevel, verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg.ListenAddr, logger)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&addr, "addr", "", "address to listen on (e.g. 127.0.0.1:8080)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func serve(ctx context.Context, addr string, logger *zap.Logger) error {
	srv := ws.New(addr, chat.NewHub(logger), logger)
	if err := srv.Listen(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() { errChan <- srv.Serve() }()

	select {
	case err := <-errChan:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
		srv.Stop()
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		srv.Stop()
	}

	logger.Info("relay server stopped")
	return nil
}
