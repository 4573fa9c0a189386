// Command client is an interactive terminal chat client for the relay server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/omochice/relay-chat/internal/chatlog"
	"github.com/omochice/relay-chat/internal/client"
	"github.com/omochice/relay-chat/internal/client/ws"
	"github.com/omochice/relay-chat/internal/config"
	"github.com/omochice/relay-chat/internal/logging"
	"github.com/omochice/relay-chat/internal/session"
	"github.com/omochice/relay-chat/pkg/protocol"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type flags struct {
	configPath string
	serverURL  string
	transport  string
	mode       string
	target     string
	verbose    bool
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:          "client",
		Short:        "Chat through a relay server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, f)
		},
	}
	cmd.Flags().StringVar(&f.configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&f.serverURL, "server", "", "relay server URL (e.g. ws://127.0.0.1:8080/ws)")
	cmd.Flags().StringVar(&f.transport, "transport", "", "WebSocket library: nhooyr or gorilla")
	cmd.Flags().StringVar(&f.mode, "mode", "private", "initial chat mode: private or group")
	cmd.Flags().StringVar(&f.target, "to", "", "initial recipient or group ID")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func loadConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("server") {
		cfg.ServerURL = f.serverURL
	}
	if cmd.Flags().Changed("transport") {
		cfg.Transport = f.transport
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newDialer(transport string) client.Dialer {
	if transport == config.TransportGorilla {
		return client.NewGorillaDialer()
	}
	return ws.New()
}

func run(parent context.Context, cfg *config.Config, f flags) error {
	mode, err := protocol.ParseChatMode(f.mode)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, f.verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn := client.New(cfg.ServerURL, newDialer(cfg.Transport), client.Options{
		ReconnectDelay: cfg.ReconnectDelay,
		DialTimeout:    cfg.DialTimeout,
		Logger:         logger,
	})
	runErr := make(chan error, 1)
	go func() { runErr <- conn.Run(ctx) }()
	defer func() {
		conn.Close()
		if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("connection loop ended", zap.Error(err))
		}
	}()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
	})
	if err != nil {
		return fmt.Errorf("failed to open terminal: %w", err)
	}
	defer rl.Close()
	out := rl.Stdout()

	sess := session.Open(conn, session.Options{
		Logger:   logger,
		OnNotice: func(n session.Notice) { printNotice(out, n) },
	})
	// Released before the connection is torn down.
	defer sess.Close()

	sess.SetMode(mode)
	sess.SetTarget(f.target)

	cancelStatus := sess.Tracker().Watch(func(s string) {
		fmt.Fprintf(out, "* connection status: %s\n", s)
	})
	defer cancelStatus()
	cancelLog := sess.Log().Watch(func(e chatlog.Entry) {
		fmt.Fprintln(out, e.String())
	})
	defer cancelLog()

	r := &repl{sess: sess, out: out, sendTimeout: cfg.SendTimeout}
	fmt.Fprintln(out, "Type /help for commands.")

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	for {
		rl.SetPrompt(r.prompt())
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if r.handleLine(ctx, line) {
			return nil
		}
	}
}
