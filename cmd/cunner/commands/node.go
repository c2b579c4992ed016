package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cmwaters/cunner"
	"github.com/cmwaters/cunner/consensus/avalanche"
	"github.com/cmwaters/cunner/p2p"
	"github.com/cmwaters/cunner/store"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const metricsNamespace = "cunner"

// NewNodeCmd returns the command that starts a cunner node
func NewNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Start a single cunner node",
		RunE:  runNode,
	}
	addNodeFlags(cmd)
	return cmd
}

func addNodeFlags(cmd *cobra.Command) {
	cfg := cunner.DefaultConfig()
	fs := cmd.Flags()
	fs.String("engine", cfg.Engine, "Consensus engine to use: solo or avalanche")
	fs.Int("port", cfg.Port, "TCP port to listen on (0 picks a free port)")
	fs.String("key", cfg.Key, "Private key of the node, see keygen (empty generates one)")
	fs.String("data-dir", cfg.DataDir, "Directory to persist decisions and blocks in (empty keeps them in memory)")
	fs.String("namespace", cfg.Namespace, "Gossip topic shared by the network")
	fs.Duration("emit-interval", cfg.EmitInterval, "Time between locally created transactions (0 disables)")
	fs.Duration("block-interval", cfg.BlockInterval, "Time between blocks of the solo engine")
	fs.Int("nodes", cfg.Nodes, "Voting nodes run locally by the avalanche engine")
	fs.String("metrics-addr", cfg.MetricsAddr, "Address to serve prometheus metrics on (empty disables)")
	addAvalancheFlags(fs, cfg.Avalanche)
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg := cunner.DefaultConfig()
	if err := bindFlagsLoadViper(cmd, &cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	key, err := p2p.DecodeKey(cfg.Key)
	if err != nil {
		return err
	}
	host, err := p2p.NewHost(cfg.Port, key)
	if err != nil {
		return err
	}
	defer host.Close()
	for _, addr := range host.Addrs() {
		logger.Info().Stringer("addr", addr).Stringer("peer", host.ID()).Msg("listening")
	}

	ps, err := pubsub.NewGossipSub(ctx, host)
	if err != nil {
		return err
	}
	discovery, err := p2p.StartDiscovery(host, logger.With().Str("module", "discovery").Logger())
	if err != nil {
		return err
	}
	defer discovery.Close()

	gossip, err := p2p.NewNetwork(ps).Gossip([]byte(cfg.Namespace))
	if err != nil {
		return err
	}
	st, err := openStore(cfg, logger)
	if err != nil {
		gossip.Close()
		return err
	}

	opts := []cunner.Option{cunner.WithLogger(logger)}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics, err := avalanche.NewMetrics(metricsNamespace, reg)
		if err != nil {
			return err
		}
		opts = append(opts, cunner.WithMetrics(metrics))
		stop := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer stop()
	}

	peer, err := cunner.NewPeer(cfg, gossip, st, opts...)
	if err != nil {
		return errors.Join(err, gossip.Close(), st.Close())
	}
	defer func() {
		if err := peer.Close(); err != nil {
			logger.Error().Err(err).Msg("closing peer")
		}
	}()
	return peer.Run(ctx)
}

func openStore(cfg cunner.Config, logger zerolog.Logger) (store.Store, error) {
	if cfg.DataDir == "" {
		logger.Info().Msg("no data directory, keeping decisions and blocks in memory")
		return store.NewMemStore(), nil
	}
	return store.NewBadgerStore(cfg.DataDir, logger)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("serving metrics")
		}
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
