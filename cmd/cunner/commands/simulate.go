package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/cmwaters/cunner/simulation"
	"github.com/spf13/cobra"
)

type simulateConfig struct {
	Simulation simulation.Config `mapstructure:",squash"`

	// Settle runs the network to quiescence without waiting between injections
	Settle   bool   `mapstructure:"settle"`
	LogLevel string `mapstructure:"log-level"`
}

// NewSimulateCmd returns the command that runs an in process avalanche network
func NewSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate an avalanche network in process",
		RunE:  runSimulate,
	}
	cfg := simulation.DefaultConfig()
	fs := cmd.Flags()
	fs.Int("nodes", cfg.Nodes, "Size of the network")
	fs.Int("transactions", cfg.Transactions, "Transactions to inject (0 runs until interrupted)")
	fs.Duration("interval", cfg.Interval, "Time between injections")
	fs.Int64("seed", cfg.Seed, "Seed for transactions and peer sampling")
	fs.Bool("settle", false, "Inject everything at once and drain the network without real time")
	addAvalancheFlags(fs, cfg.Params)
	return cmd
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg := simulateConfig{Simulation: simulation.DefaultConfig(), LogLevel: "info"}
	if err := bindFlagsLoadViper(cmd, &cfg); err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	driver, err := simulation.New(cfg.Simulation, logger)
	if err != nil {
		return err
	}

	var report *simulation.Report
	if cfg.Settle {
		report, err = driver.Settle()
	} else {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		report, err = driver.Run(ctx)
	}
	if err != nil {
		return err
	}
	report.Log(logger)
	if cfg.Simulation.Transactions > 0 && !report.Complete() {
		return errors.New("simulation ended before every node decided on every transaction")
	}
	return nil
}
