package data

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/peerrank/peerrank/internal/conf"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewRatingRepo,
	NewAggregateRepo,
)

// Data encapsulates database and cache connections
type Data struct {
	db  *gorm.DB
	rdb *redis.Client
	log *log.Helper
}

// NewData creates Data instance with database and Redis connections
func NewData(c *conf.Data, logger log.Logger) (*Data, func(), error) {
	l := log.NewHelper(logger)

	// TranslateError maps driver-level unique violations onto
	// gorm.ErrDuplicatedKey, which the rating repo relies on.
	db, err := gorm.Open(postgres.Open(c.Database.Source), &gorm.Config{TranslateError: true})
	if err != nil {
		l.Errorf("failed to connect to database: %v", err)
		return nil, nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		l.Errorf("failed to get database instance: %v", err)
		return nil, nil, err
	}

	// Configure connection pool
	maxIdle := c.Database.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 10
	}
	maxOpen := c.Database.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 100
	}
	maxLife := time.Duration(c.Database.ConnMaxLifeSecs) * time.Second
	if maxLife <= 0 {
		maxLife = time.Hour
	}
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(maxLife)

	if err := db.AutoMigrate(&Rating{}, &UserRatingAggregate{}); err != nil {
		l.Errorf("failed to migrate schema: %v", err)
		return nil, nil, err
	}

	l.Info("database connected successfully")

	// Initialize Redis connection
	var rdb *redis.Client
	if c.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:         c.Redis.Addr,
			ReadTimeout:  c.Redis.ReadTimeout(),
			WriteTimeout: c.Redis.WriteTimeout(),
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := rdb.Ping(ctx).Err(); err != nil {
			l.Warnf("failed to connect to redis: %v", err)
			// Redis is optional, continue without it
			rdb = nil
		} else {
			l.Info("redis connected successfully")
		}
	}

	data := &Data{
		db:  db,
		rdb: rdb,
		log: l,
	}

	cleanup := func() {
		l.Info("closing data resources")
		if data.rdb != nil {
			if err := data.rdb.Close(); err != nil {
				l.Errorf("failed to close redis: %v", err)
			}
		}
		if sqlDB != nil {
			if err := sqlDB.Close(); err != nil {
				l.Errorf("failed to close database: %v", err)
			}
		}
	}

	return data, cleanup, nil
}
