package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/alerts"
	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/api"
	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/config"
	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/metrics"
	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/model"
	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/notify"
	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/store"
	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("alerterd starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"metrics_endpoint", cfg.Metrics.Endpoint,
		"evaluate_interval", cfg.Alerts.EvaluateInterval,
		"retention", cfg.Alerts.Retention,
		"rules", len(cfg.Alerts.Rules),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Alert store with background retention cleanup.
	st := store.New(cfg.Alerts.Retention)
	go st.Run(ctx, cfg.Alerts.CleanupInterval)

	// Delivery channels come from the environment, read once at start.
	channels := notify.ChannelsFromEnv()
	for _, ch := range channels {
		slog.Info("notification channel enabled", "channel", ch.Name, "type", ch.Type)
	}
	if len(channels) == 0 {
		slog.Warn("no notification channels configured — alerts will only be stored")
	}
	notifier := notify.New(channels)

	// Metrics source polling the workflow application.
	source := metrics.NewClient(cfg.Metrics.Endpoint,
		metrics.WithTimeout(cfg.Metrics.ScrapeTimeout),
		metrics.WithCounters(cfg.Metrics.Counters),
		metrics.WithHostMemory(cfg.Metrics.HostMemory),
	)

	// Rule evaluator, re-seeded from config on every start.
	eval := alerts.New(source, st, notifier, cfg.Alerts.EvaluateInterval)
	seedRules(eval, cfg.Alerts.Rules)
	go eval.Run(ctx)

	// Hot-reload replaces the rule set; cadence and channels stay fixed for
	// the process lifetime.
	go func() {
		err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			rules := make([]model.Rule, 0, len(updated.Alerts.Rules))
			for _, rc := range updated.Alerts.Rules {
				rules = append(rules, rc.Rule())
			}
			eval.ReplaceRules(rules)
		})
		if err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// WebSocket hub — broadcasts the live alert feed.
	hub := ws.New(st, eval, cfg.Server.BroadcastInterval)
	go hub.Run(ctx)

	// Combined HTTP server: REST API + WebSocket stream.
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.APIKeyMiddleware(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
		api.New(st, eval),
	))
	httpMux.Handle("/ws/alerts", hub)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("alerterd shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
}

// seedRules registers the configured default rule set.
func seedRules(eval *alerts.Evaluator, rules []config.RuleConfig) {
	for _, rc := range rules {
		if err := eval.Register(rc.Rule()); err != nil {
			slog.Error("skipping rule from config", "rule", rc.ID, "err", err)
		}
	}
}
