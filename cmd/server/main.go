// Command server runs the CollabBoard real-time whiteboard broker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/collabboard/server/internal/logging"
	"github.com/collabboard/server/internal/server"
)

const shutdownTimeout = 10 * time.Second

var (
	flagPort     string
	flagConfig   string
	flagLogLevel string
)

func main() {
	root := &cobra.Command{
		Use:   "server [port]",
		Short: "Real-time collaborative whiteboard server",
		Long: `CollabBoard server accepts WebSocket connections and relays drawing,
cursor, and presence events between the members of a room.

The listen port is taken from the positional argument, then the --port
flag, then the PORT environment variable, then the default 8080.`,
		Args:          cobra.MaximumNArgs(1),
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.Flags().StringVarP(&flagPort, "port", "p", "", "listen port, e.g. 8080 or :8080")
	root.Flags().StringVarP(&flagConfig, "config", "c", "", "path to a YAML config file")
	root.Flags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn, error, or silent")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(_ *cobra.Command, args []string) error {
	if err := logging.Initialize(flagLogLevel); err != nil {
		return err
	}
	defer logging.Sync()

	cfg := server.NewConfigFromEnv()
	if flagConfig != "" {
		if err := server.LoadConfigFile(cfg, flagConfig); err != nil {
			return err
		}
	}
	if flagPort != "" {
		cfg.Port = server.NormalizePort(flagPort)
	}
	if len(args) > 0 {
		cfg.Port = server.NormalizePort(args[0])
	}

	srv := server.New(cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case s := <-sig:
		logging.Info("shutdown signal received", zap.String("signal", s.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
