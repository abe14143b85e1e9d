package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/spotledger/internal/idempotency"
	"github.com/wyfcoding/spotledger/internal/outbox"
	"github.com/wyfcoding/spotledger/internal/wallet/application"
	"github.com/wyfcoding/spotledger/internal/wallet/domain"
	"github.com/wyfcoding/spotledger/internal/wallet/infrastructure/messaging"
	"github.com/wyfcoding/spotledger/internal/wallet/infrastructure/persistence"
	"github.com/wyfcoding/spotledger/internal/wallet/infrastructure/persistence/mysql"
	persistenceredis "github.com/wyfcoding/spotledger/internal/wallet/infrastructure/persistence/redis"
	"github.com/wyfcoding/spotledger/internal/wallet/interfaces/consumer"
	httpserver "github.com/wyfcoding/spotledger/internal/wallet/interfaces/http"
	"github.com/wyfcoding/spotledger/pkg/cache"
	"github.com/wyfcoding/spotledger/pkg/config"
	"github.com/wyfcoding/spotledger/pkg/db"
	"github.com/wyfcoding/spotledger/pkg/eventbus"
	"github.com/wyfcoding/spotledger/pkg/idgen"
	"github.com/wyfcoding/spotledger/pkg/logger"
	"github.com/wyfcoding/spotledger/pkg/metrics"
	"github.com/wyfcoding/spotledger/pkg/mq"
	"github.com/wyfcoding/spotledger/pkg/ratelimit"
)

var configPath = flag.String("config", "configs/wallet/config.toml", "config file path")

// idempotencyScope 钱包管理面的幂等作用域
const idempotencyScope = "wallet.adjust"

func main() {
	flag.Parse()

	// 1. 初始化配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. 初始化日志
	if err := logger.Init(logger.Config{
		Service:    cfg.ServiceName,
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
	}); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 初始化 ID 生成器与指标
	if err := idgen.Init(1); err != nil {
		logger.Fatal(ctx, "failed to init id generator", "error", err)
	}

	m := metrics.New("wallet")
	if err := m.Register(); err != nil {
		logger.Fatal(ctx, "failed to register metrics", "error", err)
	}
	if cfg.Metrics.Enabled {
		metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	// 4. 初始化基础设施
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to connect database", "error", err)
	}
	defer database.Close()

	// Auto Migrate (仅用于开发方便)
	if cfg.Environment == "dev" {
		if err := database.AutoMigrate(
			&domain.Balance{},
			&domain.Reservation{},
			&domain.LedgerEntry{},
			&outbox.Record{},
			&idempotency.Record{},
		); err != nil {
			logger.Error(ctx, "failed to migrate database", "error", err)
		}
	}

	redisCache, err := cache.New(cache.Config{
		Host:        cfg.Redis.Host,
		Port:        cfg.Redis.Port,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		MaxPoolSize: cfg.Redis.MaxPoolSize,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init redis", "error", err)
	}
	defer redisCache.Close()

	// 5. 初始化仓储
	balanceMySQL := mysql.NewBalanceRepository(database.DB)
	balanceCache := persistenceredis.NewBalanceCache(redisCache, time.Duration(cfg.Redis.CacheTTL)*time.Second)
	balanceRepo := persistence.NewCompositeBalanceRepository(balanceMySQL, balanceCache)
	reservationRepo := mysql.NewReservationRepository(database.DB)
	ledgerRepo := mysql.NewLedgerRepository(database.DB)
	txManager := mysql.NewTxManager(database.DB)

	outboxStore := outbox.NewStore(database.DB)
	eventPublisher := messaging.NewOutboxEventPublisher(outboxStore)

	idempotencyStore := idempotency.NewStore(database.DB)
	guard := idempotency.NewGuard(idempotencyStore, time.Duration(cfg.Idempotency.TTL)*time.Second)

	// 6. 初始化应用服务
	walletService := application.NewWalletService(txManager, balanceRepo, reservationRepo, ledgerRepo, eventPublisher, m)
	queryService := application.NewWalletQueryService(balanceRepo, reservationRepo, ledgerRepo)

	// 7. 初始化接口层
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpserver.CorrelationMiddleware())
	router.Use(httpserver.MetricsMiddleware(m))
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewRedisLimiter(redisCache.Client())
		router.Use(httpserver.RateLimitMiddleware(limiter, cfg.RateLimit.QPS, cfg.RateLimit.Burst))
	}

	handler := httpserver.NewWalletHandler(walletService, queryService)
	handler.RegisterRoutes(router, httpserver.IdempotencyMiddleware(guard, idempotencyScope))

	// 入站消费：订单终态驱动预留释放/消耗
	mqCfg := mq.Config{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.GroupID,
		SessionTimeout: cfg.Kafka.SessionTimeout,
		MaxRetries:     cfg.Kafka.MaxRetries,
		RetryBackoff:   cfg.Kafka.RetryBackoff,
	}
	producer := mq.NewProducer(mqCfg)
	defer producer.Close()

	submittedConsumer, err := mq.NewConsumer(mqCfg, eventbus.TopicOrdersSubmitted)
	if err != nil {
		logger.Fatal(ctx, "failed to create order submitted consumer", "error", err)
	}
	defer submittedConsumer.Close()

	updatedConsumer, err := mq.NewConsumer(mqCfg, eventbus.TopicOrdersUpdatedV3)
	if err != nil {
		logger.Fatal(ctx, "failed to create order updated consumer", "error", err)
	}
	defer updatedConsumer.Close()

	dlq := mq.NewDeadLetterQueue(producer, cfg.Consumer.DLQStripPayload)
	policy := mq.RetryPolicy{
		MaxAttempts: cfg.Consumer.MaxAttempts,
		Backoff: mq.Backoff{
			Base:       time.Duration(cfg.Consumer.BackoffBase) * time.Millisecond,
			Multiplier: cfg.Consumer.BackoffMultiplier,
			Cap:        time.Duration(cfg.Consumer.BackoffCap) * time.Millisecond,
		},
	}

	submittedAdapter, err := consumer.NewOrderSubmittedAdapter(
		consumer.NewOrderSubmittedHandler(walletService), policy, dlq, m)
	if err != nil {
		logger.Fatal(ctx, "failed to create order submitted adapter", "error", err)
	}
	updatedAdapter, err := consumer.NewOrderUpdatedAdapter(
		consumer.NewOrderEventHandler(walletService), policy, dlq, m)
	if err != nil {
		logger.Fatal(ctx, "failed to create order updated adapter", "error", err)
	}

	// 8. 启动服务
	g, ctx := errgroup.WithContext(ctx)

	httpAddr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := &http.Server{
		Addr:         httpAddr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	g.Go(func() error {
		logger.Info(ctx, "HTTP server starting", "addr", httpAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.Info(ctx, "order submitted consumer starting", "topic", eventbus.TopicOrdersSubmitted)
		return submittedConsumer.Run(ctx, submittedAdapter.Handle)
	})

	g.Go(func() error {
		logger.Info(ctx, "order updated consumer starting", "topic", eventbus.TopicOrdersUpdatedV3)
		return updatedConsumer.Run(ctx, updatedAdapter.Handle)
	})

	// 9. 优雅关闭
	g.Go(func() error {
		<-ctx.Done()
		logger.Info(context.Background(), "shutting down wallet service...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error(context.Background(), "server exited with error", "error", err)
		os.Exit(1)
	}
}
