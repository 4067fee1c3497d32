package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"liraexchange/internal/api"
	"liraexchange/internal/api/middleware"
	"liraexchange/internal/chain"
	"liraexchange/internal/config"
	"liraexchange/internal/market"
	"liraexchange/internal/repository"
	"liraexchange/internal/service"
	"liraexchange/internal/worker"
	"liraexchange/pkg/crypto"
	"liraexchange/pkg/retry"
	"liraexchange/pkg/utils"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
	log.Info("server exited")
}

func run(cfg *config.Config, log *utils.Logger) error {
	// Инициализация базы данных
	db, err := initDatabase(cfg, log)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		version, err := repository.Migrate(db, cfg.Database.Name)
		if err != nil {
			return err
		}
		log.Info("database schema ready", zap.Uint("version", version))
	}

	// Инициализация репозиториев
	rateRepo := repository.NewRateRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	exchangeRepo := repository.NewExchangeRepository(db)

	// Шифрование секретов и доступ к сети TON
	box, err := crypto.NewKeyring([]byte(cfg.Security.EncryptionKey), cfg.Security.SecretBoxAlgorithm)
	if err != nil {
		return fmt.Errorf("init secret box: %w", err)
	}

	toncenter := chain.NewToncenter(chain.ToncenterConfig{
		BaseURL: cfg.Chain.TonAPIURL,
		APIKey:  cfg.Chain.TonAPIKey,
		Testnet: cfg.Chain.Testnet,
		Timeout: cfg.Chain.Timeout,
	})
	keys := chain.NewKeyGenerator(cfg.Chain.Testnet)

	pricing := market.NewGuarded(
		market.NewBybit(market.BybitConfig{
			BaseURL: cfg.Market.BybitBaseURL,
			Timeout: cfg.Market.Timeout,
		}),
		cfg.Market.BreakerErrors,
		cfg.Market.BreakerTimeout,
	)

	// Инициализация сервисов
	rateService := service.NewRateService(rateRepo)
	walletService := service.NewWalletService(walletRepo, keys, box, toncenter, cfg.Wallet.BalanceRecheck, log)
	exchangeService := service.NewExchangeService(exchangeRepo, rateService, walletService, cfg.Exchange.FeePercentage, log)

	// Фоновые задачи
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updater := worker.NewRateUpdater(rateService, pricing, worker.RateUpdaterConfig{
		Interval: cfg.Rates.UpdateInterval,
		CacheTTL: cfg.Rates.CacheTTL,
		Markup:   cfg.Rates.Markup,
		Pairs:    cfg.Rates.Pairs,
	}, log)
	updater.Start(rootCtx)
	defer updater.Stop()

	if cfg.Processor.Enabled {
		governor := worker.NewGovernor(worker.Policy{
			MaxConcurrentPasses: int64(cfg.Processor.MaxConcurrentPasses),
			MinPassInterval:     cfg.Processor.MinPassInterval,
			ItemDelay:           cfg.Processor.ItemDelay,
			ErrorThreshold:      cfg.Processor.ErrorThreshold,
			Cooldown:            cfg.Processor.Cooldown,
		})
		processor := worker.NewProcessor(exchangeRepo, walletService, governor, worker.ProcessorConfig{
			Interval:  cfg.Processor.Interval,
			BatchSize: cfg.Processor.BatchSize,
		}, log)
		processor.Start(rootCtx)
		defer processor.Stop()
	} else {
		log.Warn("payment processor disabled, exchanges advance only through admin endpoints")
	}

	// Настройка HTTP роутера
	router := api.SetupRoutes(&api.Dependencies{
		Rates:          rateService,
		Exchanges:      exchangeService,
		Wallets:        walletService,
		CachedRates:    updater,
		Logger:         log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimiter:    middleware.NewRateLimiter(cfg.Server.RateLimitPerMinute, cfg.Server.RateLimitBurst),
	})

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", server.Addr), zap.Bool("https", cfg.Server.UseHTTPS))
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Фоновые задачи останавливаются отложенными Stop: текущий проход
	// обработчика доводится до конца
	return nil
}

// initDatabase создает подключение к базе данных и ждёт её готовности
func initDatabase(cfg *config.Config, log *utils.Logger) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := sql.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения: при старте в docker-compose БД может подняться позже сервиса
	retryCfg := retry.StartupConfig()
	retryCfg.RetryIf = func(error) bool { return true } // таймаут ping тоже повторяем
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("database not ready", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	}

	err = retry.Do(context.Background(), func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return db.PingContext(ctx)
	}, retryCfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("connected to database", zap.String("host", cfg.Database.Host), zap.String("name", cfg.Database.Name))
	return db, nil
}
