package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/wes-io-live/peer-relay/pkg/database"
)

// Drivers accepted by New.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverGorm   = "gorm"
)

// Config selects and configures a directory backend.
type Config struct {
	Driver    string          `mapstructure:"driver"`
	MaxUsers  int             `mapstructure:"max_users"` // memory only
	Retention time.Duration   `mapstructure:"-"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  database.Config `mapstructure:"database"`
}

// Pruner is implemented by backends that can drop stale records on demand.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// New builds the backend named by cfg.Driver.
func New(cfg Config, opts ...Option) (Directory, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryDirectory(cfg.MaxUsers, opts...), nil

	case DriverRedis:
		rc := cfg.Redis
		if rc.Retention <= 0 {
			rc.Retention = cfg.Retention
		}
		return NewRedisDirectory(rc, opts...)

	case DriverGorm:
		db, err := database.New(&cfg.Database)
		if err != nil {
			return nil, err
		}
		d, err := NewGormDirectory(db, opts...)
		if err != nil {
			database.Close(db)
			return nil, err
		}
		return d, nil

	default:
		return nil, fmt.Errorf("unsupported directory driver: %q", cfg.Driver)
	}
}
