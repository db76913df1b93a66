package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vinetrail/vinetrail-backend/logger"
	"github.com/vinetrail/vinetrail-backend/types"
)

// Pinger is the part of a database pool the health check needs. *pgxpool.Pool
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolState reports the notification worker pool.
type PoolState interface {
	IsRunning() bool
	QueueDepth() int
}

type HealthService struct {
	db          Pinger
	redisClient *redis.Client
	workers     PoolState
	version     string
	startTime   time.Time
	log         *zap.SugaredLogger
}

// NewHealthService creates a health service. redisClient and workers may be nil
// when those dependencies are not in use.
func NewHealthService(db Pinger, redisClient *redis.Client, workers PoolState, version string) *HealthService {
	return &HealthService{
		db:          db,
		redisClient: redisClient,
		workers:     workers,
		version:     version,
		startTime:   time.Now(),
		log:         logger.GetLogger().Named("health"),
	}
}

func (h *HealthService) CheckHealth(ctx context.Context) types.HealthCheck {
	components := make(map[string]types.HealthComponent)
	overallStatus := types.HealthStatusUp

	merge := func(name string, c types.HealthComponent) {
		components[name] = c
		switch {
		case c.Status == types.HealthStatusDown:
			overallStatus = types.HealthStatusDown
		case c.Status == types.HealthStatusDegraded && overallStatus != types.HealthStatusDown:
			overallStatus = types.HealthStatusDegraded
		}
	}

	merge("database", h.checkDatabase(ctx))
	if h.redisClient != nil {
		merge("redis", h.checkRedis(ctx))
	}
	if h.workers != nil {
		merge("worker_pool", h.checkWorkers())
	}

	return types.HealthCheck{
		Status:     overallStatus,
		Components: components,
		Version:    h.version,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
	}
}

// Ready reports whether the service can take traffic: the database must answer.
func (h *HealthService) Ready(ctx context.Context) bool {
	return h.checkDatabase(ctx).Status != types.HealthStatusDown
}

func (h *HealthService) checkDatabase(ctx context.Context) types.HealthComponent {
	start := time.Now()
	if err := h.db.Ping(ctx); err != nil {
		h.log.Errorw("Database health check failed", "error", err)
		return types.HealthComponent{
			Status:  types.HealthStatusDown,
			Details: "Database connection failed",
		}
	}
	latency := time.Since(start).String()

	// Check connection pool metrics
	if pool, ok := h.db.(*pgxpool.Pool); ok {
		stat := pool.Stat()
		if stat.MaxConns() > 0 && float64(stat.AcquiredConns())/float64(stat.MaxConns()) > 0.8 {
			return types.HealthComponent{
				Status:  types.HealthStatusDegraded,
				Details: "Connection pool near capacity",
				Latency: latency,
			}
		}
	}

	return types.HealthComponent{
		Status:  types.HealthStatusUp,
		Latency: latency,
	}
}

func (h *HealthService) checkRedis(ctx context.Context) types.HealthComponent {
	start := time.Now()
	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		h.log.Errorw("Redis health check failed", "error", err)
		// Only rate limiting depends on Redis.
		return types.HealthComponent{
			Status:  types.HealthStatusDegraded,
			Details: "Redis connection failed",
		}
	}

	return types.HealthComponent{
		Status:  types.HealthStatusUp,
		Latency: time.Since(start).String(),
	}
}

func (h *HealthService) checkWorkers() types.HealthComponent {
	if !h.workers.IsRunning() {
		return types.HealthComponent{
			Status:  types.HealthStatusDegraded,
			Details: "Notification workers are not running",
		}
	}
	return types.HealthComponent{
		Status:  types.HealthStatusUp,
		Details: fmt.Sprintf("%d queued", h.workers.QueueDepth()),
	}
}
