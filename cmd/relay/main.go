package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/spotledger/internal/outbox"
	"github.com/wyfcoding/spotledger/pkg/config"
	"github.com/wyfcoding/spotledger/pkg/db"
	"github.com/wyfcoding/spotledger/pkg/logger"
	"github.com/wyfcoding/spotledger/pkg/metrics"
	"github.com/wyfcoding/spotledger/pkg/mq"
)

var configPath = flag.String("config", "configs/wallet/config.toml", "config file path")

func main() {
	flag.Parse()

	// 1. 初始化配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. 初始化日志
	if err := logger.Init(logger.Config{
		Service:    cfg.ServiceName + "-relay",
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

	// 3. 初始化指标
	m := metrics.New("relay")
	if err := m.Register(); err != nil {
		logger.Fatal(ctx, "failed to register metrics", "error", err)
	}
	if cfg.Metrics.Enabled {
		metrics.StartHTTPServer(cfg.Metrics.Port+1, cfg.Metrics.Path)
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

	producer := mq.NewProducer(mq.Config{
		Brokers:      cfg.Kafka.Brokers,
		MaxRetries:   cfg.Kafka.MaxRetries,
		RetryBackoff: cfg.Kafka.RetryBackoff,
	})
	defer producer.Close()

	// 5. 初始化中继
	relay := outbox.NewRelay(outbox.NewStore(database.DB), producer, outbox.RelayConfig{
		BatchSize:    cfg.Outbox.BatchSize,
		PollInterval: time.Duration(cfg.Outbox.PollInterval) * time.Millisecond,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
		Backoff: mq.Backoff{
			Base:   time.Duration(cfg.Outbox.BackoffBase) * time.Millisecond,
			Cap:    time.Duration(cfg.Outbox.BackoffCap) * time.Millisecond,
			Jitter: cfg.Outbox.BackoffJitter,
		},
		StaleAfter: time.Duration(cfg.Outbox.StaleAfter) * time.Second,
		Producer:   cfg.ServiceName,
	}, m)

	// 6. 运行，直到收到退出信号
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relay.Run(ctx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error(context.Background(), "relay exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info(context.Background(), "relay stopped")
}
