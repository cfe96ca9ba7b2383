package app

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/lib/pq"

	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/config"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/db"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/logger"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/redis"
)

type Infra struct {
	DB    *sql.DB
	Redis *redis.Client // nil when REDIS_ADDR is unset
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	if cfg.DatabaseDSN == "" {
		return nil, errors.New("DATABASE_DSN is required")
	}

	sqlDB, err := sql.Open("postgres", cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := db.RunKeystoneMigration(ctx, sqlDB); err != nil {
		return nil, err
	}

	logger.Info("database ready", nil)

	infra := &Infra{DB: sqlDB}

	// Redis is optional: without it, OAuth state is enforced by cookie
	// equality alone rather than single-use server-side consumption.
	if cfg.RedisAddr != "" {
		redisClient, err := redis.New(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		infra.Redis = redisClient
		logger.Info("redis ready", nil)
	}

	return infra, nil
}
