package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/subhub"
	audithook "github.com/xraph/subhub/audit_hook"
	"github.com/xraph/subhub/clock"
	"github.com/xraph/subhub/keeper"
	"github.com/xraph/subhub/observability"
	"github.com/xraph/subhub/store/memory"
	tokenmem "github.com/xraph/subhub/token/memory"
	"github.com/xraph/subhub/types"
)

const metricsShutdownTimeout = 5 * time.Second

var configPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a devnet node with a keeper loop",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runNode(ctx, cfg, logger)
	},
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to subhubd.yaml")
}

func runNode(ctx context.Context, cfg nodeConfig, logger *slog.Logger) error {
	hubCfg, err := cfg.Hub.HubConfig()
	if err != nil {
		return err
	}

	tokens := tokenmem.New()
	if err := seedDevnet(tokens, cfg.Devnet, logger); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	audit := audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
		logger.LogAttrs(ctx, slog.LevelInfo, "audit",
			slog.String("action", evt.Action),
			slog.String("resource_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
			slog.Any("metadata", evt.Metadata),
		)
		return nil
	}), audithook.WithLogger(logger))

	hub, err := subhub.New(hubCfg, memory.New(), tokens,
		subhub.WithLogger(logger),
		subhub.WithClock(clock.NewWall(time.Now(), cfg.Hub.TimeStep)),
		subhub.WithPlugin(metrics),
		subhub.WithPlugin(audit),
	)
	if err != nil {
		return err
	}
	if err := hub.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := hub.Stop(); err != nil {
			logger.Warn("hub stop failed", "error", err)
		}
	}()

	g, ctx := errgroup.WithContext(ctx)

	if !cfg.Hub.DisableKeeper {
		k := keeper.New(hub,
			keeper.WithLogger(logger.With("component", "keeper")),
			keeper.WithInterval(cfg.Hub.KeeperInterval),
		)
		g.Go(func() error { return k.Run(ctx) })
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      metricsMux(reg, hub),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  30 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics endpoint listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("subhubd running",
		"version", Version,
		"custody", hubCfg.Custody.Hex(),
		"time_step", cfg.Hub.TimeStep.String(),
	)

	return g.Wait()
}

func metricsMux(reg *prometheus.Registry, hub *subhub.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := hub.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, "ok %d\n", hub.Now())
	})
	return mux
}

// seedDevnet mints the configured amount of the devnet asset to every
// listed account.
func seedDevnet(tokens *tokenmem.Ledger, cfg devnetConfig, logger *slog.Logger) error {
	if len(cfg.Accounts) == 0 {
		return nil
	}
	if !common.IsHexAddress(cfg.Asset) {
		return fmt.Errorf("devnet asset %q is not a hex address", cfg.Asset)
	}
	amount, err := types.ParseUnits(cfg.Mint, 18)
	if err != nil {
		return fmt.Errorf("devnet mint: %w", err)
	}

	asset := common.HexToAddress(cfg.Asset)
	for _, raw := range cfg.Accounts {
		if !common.IsHexAddress(raw) {
			return fmt.Errorf("devnet account %q is not a hex address", raw)
		}
		account := common.HexToAddress(raw)
		if err := tokens.Mint(asset, account, amount); err != nil {
			return err
		}
		logger.Info("devnet account funded", "account", account.Hex(), "asset", asset.Hex(), "amount", cfg.Mint)
	}
	return nil
}
