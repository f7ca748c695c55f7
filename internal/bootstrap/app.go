package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"leftear-ai/internal/config"
	"leftear-ai/internal/model"
	mysqlClient "leftear-ai/internal/platform/mysql"
	rabbitmqClient "leftear-ai/internal/platform/rabbitmq"
	redisClient "leftear-ai/internal/platform/redis"
	"leftear-ai/internal/repository"
	"leftear-ai/internal/worker"
)

type App struct {
	Config    *config.Config
	MySQL     *gorm.DB
	Redis     *redis.Client
	MQConn    *amqp.Connection
	LogWorker *worker.ExchangeLogWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(
		&model.User{},
		&model.Session{},
		&model.Message{},
		&model.Preset{},
		&model.Usage{},
		&model.ExchangeLog{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	if err := seedPresets(mysqlDB); err != nil {
		return nil, err
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	exchangeLogRepo := repository.NewExchangeLogRepository(mysqlDB)
	logWorker := worker.NewExchangeLogWorker(mqConn, exchangeLogRepo, cfg.RabbitMQ.ExchangeLogQueue)
	if err := logWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start exchange log worker failed: %w", err)
	}

	return &App{
		Config:    cfg,
		MySQL:     mysqlDB,
		Redis:     redisCli,
		MQConn:    mqConn,
		LogWorker: logWorker,
		StartedAt: time.Now(),
	}, nil
}

// seedPresets inserts a starter preset on an empty table so the instance is
// usable right after first boot. Admins replace it with real upstreams.
func seedPresets(db *gorm.DB) error {
	presetRepo := repository.NewPresetRepository(db)
	n, err := presetRepo.Count()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	starter := &model.Preset{
		Name:         "Default",
		Description:  "Starter preset, replace the base URL and key before use",
		Icon:         "⚡",
		BaseURL:      "https://api.openai.com",
		APIKey:       "sk-replace-me",
		ModelID:      "gpt-4o-mini",
		SystemPrompt: "You are a helpful assistant.",
	}
	if err := presetRepo.Create(starter); err != nil {
		return fmt.Errorf("seed default preset failed: %w", err)
	}
	log.Printf("seeded default preset id=%d", starter.ID)
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.LogWorker != nil {
		a.LogWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
