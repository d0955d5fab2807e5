package redis

import (
	"context"
	"fmt"
	"time"

	"settlement-engine/config"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	healthProbeKey = "health:probe"
	healthProbeTTL = 10 * time.Second
)

// NewClient connects to Redis and fails fast when it is unreachable; the
// engine cannot serialise initiations or dedupe callbacks without it.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr(), err)
	}

	log.Debug().Str("addr", cfg.Addr()).Int("db", cfg.DB).Msg("Redis client ready")
	return client, nil
}

// HealthCheck reports Redis healthy only when it accepts writes; a read-only
// replica would answer PING but reject lock acquisition.
type HealthCheck struct {
	client *goredis.Client
}

func NewHealthCheck(client *goredis.Client) *HealthCheck {
	return &HealthCheck{client: client}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	if err := h.client.Set(ctx, healthProbeKey, time.Now().Unix(), healthProbeTTL).Err(); err != nil {
		return fmt.Errorf("redis write probe: %w", err)
	}
	return nil
}

func (h *HealthCheck) Name() string { return "redis" }
