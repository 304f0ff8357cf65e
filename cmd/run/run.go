package run

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bridgeval/engine/internal/config"
	"github.com/bridgeval/engine/internal/p2p"
	"github.com/bridgeval/engine/internal/statechain"
	"github.com/bridgeval/engine/pkg/ceremony"
	"github.com/bridgeval/engine/pkg/keystore"
	"github.com/bridgeval/engine/pkg/party"
	"github.com/bridgeval/engine/pkg/pool"
	"github.com/bridgeval/engine/pkg/witness"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	inboundBuffer  = 1024
	requestBuffer  = 64
	shutdownWindow = 5 * time.Second
)

// New returns the command starting the engine.
func New(configPath *string) *cobra.Command {
	var (
		stageDurationMs int
		logLevel        string
		metricsAddr     string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the ceremony engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Resolve(*configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("stage-duration-ms") {
				cfg.StageDurationMs = stageDurationMs
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log.Logger = cfg.Logger()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, cfg, log.Logger)
		},
	}
	cmd.Flags().IntVar(&stageDurationMs, "stage-duration-ms", 0, "Time allowed for each ceremony stage")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Listen address of the metrics and health endpoints")
	return cmd
}

// Run starts every component of the engine and blocks until ctx is done or one of them fails.
func Run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	self, err := cfg.Self()
	if err != nil {
		return err
	}
	logger = logger.With().Str("self", self.Short()).Logger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := keystore.NewFileStore(cfg.KeystorePath, cfg.Passphrase(), logger)
	if err != nil {
		return err
	}
	identity, err := p2p.LoadIdentity(cfg.IdentityKeyPath)
	if err != nil {
		return err
	}
	peers := make([]p2p.Peer, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		id, err := party.ParseAccountID(p.AccountID)
		if err != nil {
			return err
		}
		if id == self {
			continue
		}
		peers = append(peers, p2p.Peer{AccountID: id, Address: p.Address})
	}

	inbound := make(chan ceremony.InboundFrame, inboundBuffer)
	requests := make(chan ceremony.Request, requestBuffer)

	transport, err := p2p.New(p2p.Config{
		Listen:   []string{cfg.TransportEndpoint},
		Identity: identity,
		Peers:    peers,
	}, inbound, reg, logger)
	if err != nil {
		return err
	}
	client, err := statechain.Dial(ctx, cfg.StateChainEndpoint, self, logger)
	if err != nil {
		return err
	}

	pl := pool.NewPool(cfg.Workers)
	defer pl.TearDown()

	manager, err := ceremony.NewManager(ceremony.Config{
		Self:                   self,
		StageDuration:          cfg.StageDuration(),
		TerminalCacheSize:      cfg.TerminalCacheSize,
		MaxUnauthorizedPerPeer: cfg.MaxUnauthorizedPerPeer,
		Transport:              transport,
		Keys:                   store,
		Reporter:               client,
		Pool:                   pl,
		Metrics:                ceremony.NewMetrics(reg),
		Logger:                 logger,
	})
	if err != nil {
		return err
	}
	adapter, err := witness.NewAdapter(self, requests, client, logger)
	if err != nil {
		return err
	}

	logger.Info().Int("peers", len(peers)).Dur("stage_duration", cfg.StageDuration()).Msg("Starting engine")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return transport.Run(ctx) })
	g.Go(func() error { return client.Run(ctx) })
	g.Go(func() error {
		if _, err := client.Subscribe(ctx); err != nil {
			return err
		}
		return adapter.Run(ctx, client.Events(), client.Observations())
	})
	g.Go(func() error {
		return errors.Wrap(manager.Run(ctx, inbound, requests, cfg.TickInterval()), "ceremony manager")
	})
	g.Go(func() error { return serveMetrics(ctx, cfg.MetricsAddr, reg, logger) })

	err = g.Wait()
	logger.Info().Err(err).Msg("Engine stopped")
	return err
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger zerolog.Logger) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWindow)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "metrics server")
	}
	return nil
}
