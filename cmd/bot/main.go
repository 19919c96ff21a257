package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"BitcoinSentinel/internal/config"
	"BitcoinSentinel/internal/exchange"
	"BitcoinSentinel/internal/indicator"
	"BitcoinSentinel/internal/ledger"
	"BitcoinSentinel/internal/notifier"
	"BitcoinSentinel/internal/safety"
	"BitcoinSentinel/internal/scheduler"

	"github.com/rs/zerolog"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config validation")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}
	log.Info().Bool("dry_run", cfg.Trading.DryRun).Msg("BitcoinSentinel starting")

	scenarios, err := config.LoadScenarios(cfg.ScenariosPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load scenarios")
	}
	profile, err := cfg.Profile()
	if err != nil {
		log.Fatal().Err(err).Msg("resolve risk profile")
	}

	// Data sources
	var macro indicator.MacroSource
	var chain indicator.ChainSource
	if cfg.Sources.Static {
		static := indicator.NewStaticSource()
		macro, chain = static, static
	} else {
		macro = indicator.NewFREDSource(cfg.Sources.FRED.BaseURL, cfg.Sources.FRED.APIKey)
		chain = indicator.NewRESTChainSource(cfg.Sources.Chain.BaseURL, cfg.Sources.Chain.APIKey)
	}
	gw := indicator.NewGateway(macro, chain, log)
	log.Info().Str("macro", macro.Name()).Str("chain", chain.Name()).Msg("data sources ready")

	// Ledger
	l, err := ledger.Open(cfg.Database.LedgerPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open ledger")
	}
	defer l.Close()

	// Safety manager
	sm, err := safety.NewManager(l, safety.Limits{
		DailyLossLimit:       cfg.Trading.DailyLossLimit,
		ConsecutiveLossLimit: cfg.Trading.ConsecutiveLossLimit,
		MaxExposure:          profile.Max,
		SafetyMargin:         cfg.Trading.SafetyMargin,
		SlippageTolerance:    cfg.Trading.SlippageTolerance,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init safety manager")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Exchange adapter
	var ex exchange.Adapter
	if cfg.Trading.DryRun {
		ex = exchange.NewSimulated(cfg.Trading.PortfolioValue, gw.ReferencePrice)
	} else {
		ex = exchange.NewRESTAdapter(cfg.Exchange.BaseURL, cfg.Exchange.APIKey)
	}
	log.Info().Str("exchange", ex.Name()).Msg("exchange adapter ready")

	// Notifier
	var n notifier.Notifier = notifier.Noop{}
	var tg *notifier.Telegram
	if cfg.Telegram.BotToken != "" {
		tg = notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		n = tg
	}

	// Scheduler
	sched := scheduler.New(ctx, gw, scenarios, sm, l, ex, n, scheduler.Config{
		AnalysisCron:     cfg.Schedule.AnalysisCron,
		ScanCron:         cfg.Schedule.ScanCron,
		RolloverCron:     cfg.Schedule.RolloverCron,
		OrderTimeout:     cfg.Trading.OrderTimeout.Std(),
		MaxRetries:       cfg.Trading.MaxRetries,
		DryRun:           cfg.Trading.DryRun,
		PortfolioValue:   cfg.Trading.PortfolioValue,
		MinOrderNotional: cfg.Trading.MinOrderNotional,
		Profile:          profile,
	}, log)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("start scheduler")
	}
	defer sched.Stop()

	if tg != nil {
		go tg.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	if os.Getenv("RUN_ON_START") == "true" {
		log.Info().Msg("RUN_ON_START enabled, running analysis now")
		go sched.RunAnalysisNow()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown signal received, stopping")
	cancel()
	log.Info().Msg("BitcoinSentinel stopped")
}
