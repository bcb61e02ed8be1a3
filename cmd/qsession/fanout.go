package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/dep2p/go-qsession/internal/app"
	"github.com/dep2p/go-qsession/pkg/lib/log"
)

var (
	fanoutListeners  int
	fanoutInitiators int
	fanoutBasePort   int
	fanoutHost       string
)

var fanoutCmd = &cobra.Command{
	Use:   "fanout",
	Short: "Run the many-to-many scenario",
	Long: `Start N listeners on consecutive ports and M initiators. Every initiator
trusts every listener certificate, connects to every listener and exchanges
one greeting per connection. All exchanges run concurrently.

Examples:
  qsession fanout
  qsession fanout --listeners 3 --initiators 5 --base-port 7000
  qsession fanout --base-port 0   # random ports`,
	RunE: runFanout,
}

func init() {
	fanoutCmd.Flags().IntVar(&fanoutListeners, "listeners", 0, "number of listeners (default 10)")
	fanoutCmd.Flags().IntVar(&fanoutInitiators, "initiators", 0, "number of initiators (default 10)")
	fanoutCmd.Flags().IntVar(&fanoutBasePort, "base-port", 0, "first listener port, 0 for random ports (default 6666)")
	fanoutCmd.Flags().StringVar(&fanoutHost, "host", "", "listener host (default 127.0.0.1)")
	rootCmd.AddCommand(fanoutCmd)
}

func runFanout(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("listeners") {
		cfg.Fanout.Listeners = fanoutListeners
	}
	if flags.Changed("initiators") {
		cfg.Fanout.Initiators = fanoutInitiators
	}
	if flags.Changed("base-port") {
		cfg.Fanout.BasePort = fanoutBasePort
	}
	if flags.Changed("host") {
		cfg.Fanout.Host = fanoutHost
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runner *app.Runner
	fxApp := app.NewApp(cfg, verbose, fx.Populate(&runner))
	if err := fxApp.Err(); err != nil {
		return err
	}
	startCtx, cancel := context.WithTimeout(ctx, fxApp.StartTimeout())
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), fxApp.StopTimeout())
		defer cancel()
		if err := fxApp.Stop(stopCtx); err != nil {
			logger.Warn("停止应用失败", "error", err)
		}
	}()

	report, err := runner.RunFanout(ctx, cfg.Fanout)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, l := range report.Listeners {
		fmt.Fprintf(out, "listener %s on %s (%s)\n", l.Name, l.Addr, log.TruncateID(l.Fingerprint, 16))
	}
	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Fprintf(out, "client %d -> server %d: error: %v\n", res.Initiator, res.Listener, res.Err)
			continue
		}
		fmt.Fprintf(out, "client %d <- server %d: %s\n", res.Initiator, res.Listener, res.Response)
	}
	fmt.Fprintf(out, "%d/%d exchanges succeeded\n", report.Succeeded(), len(report.Results))
	return report.Err()
}
