package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/genflow/workflow"
)

// HealthChecker is implemented by stores that can report backend health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Backend names accepted by New.
const (
	BackendMemory   = "memory"
	BackendDatabase = "database"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
)

// Deps carries the connections a backend may need.
type Deps struct {
	DB *gorm.DB
	// Tx optionally wraps DB transactions, e.g. with retries.
	Tx    TxRunner
	Redis *redis.Client
	Mongo *mongo.Database
	// MongoTTL 为 0 时不建 TTL 索引
	MongoTTL time.Duration
	Logger   *zap.Logger
}

// New returns the store for the named backend.
func New(backend string, deps Deps, redisOpts ...RedisOption) (workflow.Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendDatabase:
		if deps.DB == nil {
			return nil, fmt.Errorf("store backend %q requires a database connection", backend)
		}
		return NewGormStore(deps.DB, deps.Logger, WithTxRunner(deps.Tx)), nil
	case BackendRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("store backend %q requires a redis client", backend)
		}
		return NewRedisStore(deps.Redis, append([]RedisOption{WithRedisLogger(deps.Logger)}, redisOpts...)...), nil
	case BackendMongo:
		if deps.Mongo == nil {
			return nil, fmt.Errorf("store backend %q requires a mongo database", backend)
		}
		return NewMongoStore(deps.Mongo, deps.MongoTTL, deps.Logger), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
