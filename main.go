package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	alarmapp "vesselwatch/internal/alarms/application"
	alarmrepo "vesselwatch/internal/alarms/infrastructure/postgres"
	alarmhttp "vesselwatch/internal/alarms/interfaces/http"
	alarmnotify "vesselwatch/internal/alarms/notify"
	"vesselwatch/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := alarmapp.LoadConfig()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	metrics.Init()

	var storeOpts []alarmapp.StoreOption
	var historyOpts []alarmapp.HistoryOption
	storeOpts = append(storeOpts, alarmapp.WithStoreLogger(logger))
	historyOpts = append(historyOpts, alarmapp.WithHistoryLogger(logger))
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		storeOpts = append(storeOpts, alarmapp.WithRepository(alarmrepo.NewAlarmRepository(db)))
		historyOpts = append(historyOpts, alarmapp.WithHistoryRepository(alarmrepo.NewHistoryRepository(db)))
	}

	store := alarmapp.NewAlarmStore(storeOpts...)

	registry := alarmnotify.NewRegistry()
	registry.Register("log", alarmnotify.NewLogChannel(logger))
	defaultChannels := []string{"log"}
	if cfg.WebhookURL != "" {
		webhookOpts := []alarmnotify.WebhookOption{}
		if cfg.WebhookSecret != "" {
			webhookOpts = append(webhookOpts, alarmnotify.WithSigningSecret([]byte(cfg.WebhookSecret)))
		}
		webhook, err := alarmnotify.NewWebhookChannel(cfg.WebhookURL, webhookOpts...)
		if err != nil {
			logger.Fatalf("webhook channel error: %v", err)
		}
		registry.Register("webhook", webhook)
		defaultChannels = append(defaultChannels, "webhook")
	}
	notifyOpts := []alarmnotify.Option{
		alarmnotify.WithLogger(logger),
		alarmnotify.WithDefaultChannels(defaultChannels...),
	}
	if cfg.NotifyCooldownSeconds > 0 {
		notifyOpts = append(notifyOpts, alarmnotify.WithCooldown(time.Duration(cfg.NotifyCooldownSeconds)*time.Second))
	}
	if cfg.NotifyDedupeSeconds > 0 {
		notifyOpts = append(notifyOpts, alarmnotify.WithDedupeWindow(time.Duration(cfg.NotifyDedupeSeconds)*time.Second))
	}
	notifier, err := alarmnotify.NewNotifier(registry, nil, notifyOpts...)
	if err != nil {
		logger.Fatalf("notifier error: %v", err)
	}

	ruleEngine, err := alarmapp.NewRuleEngine(store, alarmapp.WithRuleEngineLogger(logger))
	if err != nil {
		logger.Fatalf("rule engine error: %v", err)
	}
	history, err := alarmapp.NewHistoryService(store, historyOpts...)
	if err != nil {
		logger.Fatalf("history service error: %v", err)
	}
	escalation, err := alarmapp.NewEscalationEngine(store,
		alarmapp.WithEscalationTick(time.Duration(cfg.EscalationTickSeconds)*time.Second),
		alarmapp.WithDispatchBudget(time.Duration(cfg.DispatchBudgetSeconds)*time.Second),
		alarmapp.WithEscalationNotifier(notifier),
		alarmapp.WithEscalationRecorder(history),
		alarmapp.WithEscalationLogger(logger),
	)
	if err != nil {
		logger.Fatalf("escalation engine error: %v", err)
	}
	grouping, err := alarmapp.NewGroupingEngine(store,
		alarmapp.WithGroupingRecorder(history),
		alarmapp.WithGroupingLogger(logger),
	)
	if err != nil {
		logger.Fatalf("grouping engine error: %v", err)
	}

	service, err := alarmapp.NewService(store, ruleEngine, escalation, grouping, history,
		alarmapp.WithServiceLogger(logger))
	if err != nil {
		logger.Fatalf("service error: %v", err)
	}
	store.Subscribe(notifier)

	rules, err := alarmapp.LoadRules(cfg.RulesPath)
	if err != nil {
		logger.Fatalf("rules load error: %v", err)
	}
	for _, rule := range rules {
		if err := service.RegisterRule(rule); err != nil {
			logger.Printf("rule %s rejected: %v", rule.ID, err)
		}
	}
	logger.Printf("loaded %d rules from %s", len(rules), cfg.RulesPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go escalation.Run(ctx)

	apiHandler, err := alarmhttp.NewHandler(service)
	if err != nil {
		logger.Fatalf("http handler error: %v", err)
	}
	apiMux := http.NewServeMux()
	apiMux.Handle("/api/v1/", apiHandler)
	apiMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	apiServer := &http.Server{Addr: cfg.HTTPAddr, Handler: apiMux}
	go func() {
		logger.Printf("api listening on %s", cfg.HTTPAddr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("api http error: %v", err)
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		logger.Printf("metrics listening on %s", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("metrics http error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	logger.Printf("shutdown complete")
}
