package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-qsession/internal/app"
)

var (
	serveAddr     string
	serveName     string
	serveHostname string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a single listener",
	Long: `Run a single listener until interrupted.

The listener generates a fresh self-signed certificate on every start and
prints its fingerprint and PEM to stdout. Initiators must trust that exact
certificate before connecting.

Examples:
  qsession serve
  qsession serve --addr 127.0.0.1:7000 --name alpha
  qsession --config qsession.yaml serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (host:port)")
	serveCmd.Flags().StringVar(&serveName, "name", "", "listener name used in the greeting")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "hostname bound into the certificate")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Listener.Addr = serveAddr
	}
	if cmd.Flags().Changed("name") {
		cfg.Listener.Name = serveName
	}
	if cmd.Flags().Changed("hostname") {
		cfg.Identity.Hostname = serveHostname
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.ServeSingle(ctx, cfg, cmd.OutOrStdout(), verbose)
}
