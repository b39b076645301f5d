package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"AegisVault/internal/api"
	"AegisVault/internal/auth"
	"AegisVault/internal/config"
	"AegisVault/internal/custody"
	"AegisVault/internal/events"
	"AegisVault/internal/logger"
	"AegisVault/internal/metrics"
	"AegisVault/internal/notifier"
	"AegisVault/internal/oracle"
	"AegisVault/internal/pricefeed"
	"AegisVault/internal/recorder"
	"AegisVault/internal/scheduler"
	"AegisVault/internal/store"
	"AegisVault/internal/vault"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	defaultPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultPath = v
	}
	cfgPath := flag.String("config", defaultPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("aegis vault stopped with error", zap.Error(err))
	}
	log.Info("aegis vault stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("aegis vault starting",
		zap.String("owner", cfg.OwnerAddress().Hex()),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("oracle", cfg.Oracle.Provider))

	st, err := openStore(cfg, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	snap, err := st.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	book := custody.NewBook(!cfg.Custody.Strict)
	for addr, amount := range cfg.Custody.Grants {
		v, ok := sdkmath.NewIntFromString(amount)
		if !ok {
			return fmt.Errorf("custody grant %s: invalid amount %q", addr, amount)
		}
		if err := book.Credit(common.HexToAddress(addr), v); err != nil {
			return fmt.Errorf("custody grant %s: %w", addr, err)
		}
	}

	bus := events.NewBus(cfg.Events.Buffer, log.Named("events"))

	minTVL, _ := cfg.MinTVL()
	opts := vault.Options{
		Owner:            cfg.OwnerAddress(),
		AnalysisInterval: cfg.Vault.AnalysisInterval,
		MinTVLToAnalyze:  minTVL,
		Limits:           vault.Limits{MinInterval: cfg.Vault.MinInterval, MaxInterval: cfg.Vault.MaxInterval},
		Seed:             vault.SeedModel{Version: cfg.Vault.SeedModelVersion, Accuracy: uint8(cfg.Vault.SeedModelAccuracy)},
		Store:            st,
		Custodian:        book,
		Publisher:        bus,
		Logger:           log.Named("vault"),
	}
	v, err := vault.New(ctx, opts, snap)
	if err != nil {
		return fmt.Errorf("init vault: %w", err)
	}

	// Journal
	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Journal.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Journal.SQLitePath, log.Named("journal"))
		if err != nil {
			log.Warn("init sqlite journal failed, using noop", zap.Error(err))
		} else {
			rec = sr
		}
	}
	defer rec.Close()
	bus.Subscribe(recorder.Sink{Recorder: rec})

	// Redis fan-out
	if cfg.Redis.Addr != "" {
		rp := events.NewRedisPublisher(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Channel, cfg.Redis.ListKey, cfg.Redis.ListSize)
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		err := rp.Ping(pingCtx)
		pingCancel()
		if err != nil {
			log.Warn("redis unreachable, observations not published", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = rp.Close()
		} else {
			defer rp.Close()
			bus.Subscribe(rp)
		}
	}

	m := metrics.New(v, bus, cfg.Vault.AssetDecimals)
	bus.Subscribe(m)

	feed, err := newFeed(cfg)
	if err != nil {
		return fmt.Errorf("price feed: %w", err)
	}
	valuer := pricefeed.NewValuer(feed, log.Named("pricefeed"))
	log.Info("price feed ready", zap.String("feed", feed.Name()))

	var wg sync.WaitGroup
	goRun := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	// Oracle
	if advisor := newAdvisor(cfg, feed, log); advisor != nil {
		d := oracle.NewDispatcher(v, advisor, oracle.DispatcherOptions{
			RatePerMinute: cfg.Oracle.RatePerMinute,
			Timeout:       cfg.Oracle.Timeout,
			Workers:       cfg.Oracle.Workers,
		}, log.Named("oracle"))
		bus.Subscribe(d)
		goRun(func() { d.Run(ctx) })
	} else {
		log.Info("no in-process advisor, waiting for oracle callbacks")
	}

	// Telegram
	var sender scheduler.Sender
	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log.Named("telegram"))
		sender = tn
		bus.Subscribe(notifier.Sink{Notifier: tn, Symbol: cfg.Vault.AssetSymbol, Decimals: cfg.Vault.AssetDecimals, MaxRetries: 2})
	}

	goRun(func() { bus.Run(ctx) })

	sched := scheduler.NewScheduler(ctx, v, valuer, sender, scheduler.Options{
		Keeper:         cfg.KeeperAddress(),
		AssetType:      cfg.Keeper.AssetType,
		RiskProfile:    cfg.Keeper.RiskProfile,
		RequestTimeout: cfg.Vault.RequestTimeout,
		Symbol:         cfg.Vault.AssetSymbol,
		Decimals:       cfg.Vault.AssetDecimals,
	}, log.Named("scheduler"))
	if err := sched.RegisterAll(cfg.Schedule.UpkeepCron, cfg.Schedule.ExpiryCron, reportCron(cfg)); err != nil {
		return fmt.Errorf("register cron tasks: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		goRun(func() { tn.StartPolling(ctx, sched.HandleCommand) })
		log.Info("telegram polling started")
	}

	if os.Getenv("RUN_ON_START") == "true" {
		log.Info("RUN_ON_START enabled, executing upkeep now")
		goRun(sched.RunUpkeepNow)
	}

	srv := api.NewServer(api.Deps{
		Vault:   v,
		Custody: book,
		Journal: rec,
		Valuer:  valuer,
		Metrics: m.Handler(),
		JWT: auth.JWT{
			Secret:   []byte(cfg.Auth.JWTSecret),
			TokenTTL: cfg.Auth.TokenTTL,
			Issuer:   cfg.Auth.Issuer,
		},
		RequestTimeout: cfg.Vault.RequestTimeout,
		Logger:         log.Named("api"),
	})
	apiErr := make(chan error, 1)
	goRun(func() {
		apiErr <- srv.Run(ctx, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
	})

	log.Info("aegis vault is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case runErr = <-apiErr:
		log.Error("api server failed", zap.Error(runErr))
	}

	cancel()
	wg.Wait()
	return runErr
}

func openStore(cfg *config.Config, log *zap.Logger) (store.Store, error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		return store.NewSQLiteStore(cfg.Storage.SQLitePath, log.Named("store"))
	case "file":
		return store.NewFileStore(cfg.Storage.StateFile)
	default:
		log.Warn("memory storage selected, state is lost on restart")
		return store.NewNoopStore(), nil
	}
}

func newFeed(cfg *config.Config) (pricefeed.Feed, error) {
	switch cfg.PriceFeed.Provider {
	case "http":
		return pricefeed.NewHTTPFeed(cfg.PriceFeed.BaseURL, cfg.PriceFeed.APIKey, cfg.PriceFeed.Symbol, cfg.Proxy), nil
	case "yahoo":
		return pricefeed.NewYahooFeed(cfg.PriceFeed.Symbol, cfg.Proxy), nil
	default:
		return pricefeed.NewStaticFeed(cfg.PriceFeed.Symbol, cfg.PriceFeed.StaticPrice)
	}
}

func newAdvisor(cfg *config.Config, feed pricefeed.Feed, log *zap.Logger) oracle.Advisor {
	switch cfg.Oracle.Provider {
	case "openai":
		return oracle.NewOpenAIAdvisor(cfg.Oracle.APIKey, cfg.Oracle.BaseURL, cfg.Oracle.Model)
	case "signal":
		return oracle.NewSignalAdvisor(feed, log.Named("signal"))
	default:
		return nil
	}
}

func reportCron(cfg *config.Config) string {
	if cfg.Telegram.BotToken == "" {
		return ""
	}
	return cfg.Schedule.ReportCron
}
