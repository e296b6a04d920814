package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lodging/internal/shared/config"
	applogger "lodging/pkg/logger"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const connectTimeout = 5 * time.Second

// DB holds the PostgreSQL store and the optional Redis cache. Redis is nil
// when it is not required and could not be reached at startup.
type DB struct {
	PostgreSQL *gorm.DB
	Redis      *redis.Client
}

// InitDB connects PostgreSQL, runs migrations when enabled, then Redis.
// Availability and sync only need PostgreSQL, so an unreachable Redis is
// fatal only with REDIS_REQUIRED=true.
func InitDB(cfg *config.Config) (*DB, error) {
	pg, err := openPostgreSQL(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := Migrate(pg); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	db := &DB{PostgreSQL: pg}
	rdb, err := openRedis(cfg.Redis)
	switch {
	case err == nil:
		db.Redis = rdb
	case cfg.Redis.Required:
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	default:
		applogger.GetDefault().WithError(err).Warn("Redis unavailable, running without cache and rate limiting")
	}
	return db, nil
}

func openPostgreSQL(cfg *config.Config) (*gorm.DB, error) {
	level := gormlogger.Warn
	if cfg.IsDevelopment() {
		level = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		Logger: gormlogger.New(slowQueryWriter{}, gormlogger.Config{
			SlowThreshold:             cfg.Database.SlowQueryThreshold,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
		// Stay dates are stored as DATE; keep timestamps in UTC so the two agree.
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		PrepareStmt:                              true,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	applogger.GetDefault().Info("PostgreSQL connected",
		"host", cfg.Database.Host,
		"database", cfg.Database.Name,
		"max_open_conns", cfg.Database.MaxOpenConns,
	)
	return db, nil
}

func openRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  connectTimeout,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	applogger.GetDefault().Info("Redis connected", "addr", cfg.Addr)
	return rdb, nil
}

// slowQueryWriter routes gorm's own log lines through the application logger.
type slowQueryWriter struct{}

func (slowQueryWriter) Printf(format string, args ...interface{}) {
	applogger.GetDefault().Warn("gorm", "detail", fmt.Sprintf(format, args...))
}

func (db *DB) Close() error {
	var errs []error
	if db.PostgreSQL != nil {
		if sqlDB, err := db.PostgreSQL.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close PostgreSQL: %w", err))
			}
		}
	}
	if db.Redis != nil {
		if err := db.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	applogger.GetDefault().Info("database connections closed")
	return nil
}

const (
	ComponentUp       = "up"
	ComponentDown     = "down"
	ComponentDisabled = "disabled"
)

// HealthReport is the per-component outcome of Check.
type HealthReport struct {
	PostgreSQL string `json:"postgresql"`
	Redis      string `json:"redis"`
	Error      string `json:"error,omitempty"`
}

// Healthy reports whether the store the service cannot work without is up.
// A down Redis only costs caching and rate limiting.
func (r HealthReport) Healthy() bool {
	return r.PostgreSQL == ComponentUp
}

// Check pings every configured connection.
func (db *DB) Check(ctx context.Context) HealthReport {
	report := HealthReport{PostgreSQL: ComponentDown, Redis: ComponentDisabled}
	var errs []error

	if db.PostgreSQL != nil {
		sqlDB, err := db.PostgreSQL.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("postgresql: %w", err))
		} else {
			report.PostgreSQL = ComponentUp
		}
	}

	if db.Redis != nil {
		if err := db.Redis.Ping(ctx).Err(); err != nil {
			report.Redis = ComponentDown
			errs = append(errs, fmt.Errorf("redis: %w", err))
		} else {
			report.Redis = ComponentUp
		}
	}

	if err := errors.Join(errs...); err != nil {
		report.Error = err.Error()
	}
	return report
}
