package container

import (
	"context"
	"fmt"

	"visitor-counter/internal/config"
	"visitor-counter/internal/repository"
	"visitor-counter/internal/repository/sqlite"
	"visitor-counter/internal/service"
	"visitor-counter/pkg/database"
	"visitor-counter/pkg/logger"
	"visitor-counter/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *logger.Logger
	Backend      database.Kind
	Postgres     *database.PostgresDB // set when Backend is KindPostgres
	SQLite       *database.SQLiteDB   // set when Backend is KindSQLite
	RedisClient  *redis.Client
	Repositories *repository.Repositories
	Services     *service.Services
}

// New creates a new dependency injection container. The store backend is
// chosen from the DATABASE_URL scheme; Redis is optional.
func New(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	if err := c.openStore(ctx); err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := c.Migrate(ctx); err != nil {
			c.Close()
			return nil, err
		}
		logger.WithField("backend", c.Backend).Info("Database schema is up to date")
	}

	// Initialize Redis client if Redis URL is configured
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, logger.Logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize Redis client, proceeding without rate limiting")
		} else {
			c.RedisClient = client
			logger.Info("Redis client initialized successfully")
		}
	} else {
		logger.Info("Redis URL not configured, proceeding without rate limiting")
	}

	c.Services = &service.Services{
		Counter:     service.NewCounterService(c.Repositories, logger),
		Tracker:     service.NewTrackerService(c.Repositories.Sessions, logger),
		Maintenance: service.NewMaintenanceService(c.Repositories.Sessions, logger),
		RateLimiter: service.NewRateLimiter(c.RedisClient, cfg.TrackRateLimit, logger),
	}

	return c, nil
}

func (c *Container) openStore(ctx context.Context) error {
	kind, dsn := database.ParseURL(c.Config.DatabaseURL)
	c.Backend = kind

	switch kind {
	case database.KindPostgres:
		db, err := database.NewPostgresDB(ctx, dsn, c.Config.DatabaseReadURL)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		c.Postgres = db
		c.Repositories = repository.NewPostgresRepositories(db)
	default:
		db, err := database.NewSQLiteDB(ctx, dsn)
		if err != nil {
			return fmt.Errorf("failed to open SQLite database: %w", err)
		}
		c.SQLite = db
		c.Repositories = sqlite.NewRepositories(db)
	}

	c.Logger.WithField("backend", kind).Info("Database connection established")
	return nil
}

// Migrate applies the schema for the selected backend
func (c *Container) Migrate(ctx context.Context) error {
	var err error
	if c.Postgres != nil {
		err = c.Postgres.Migrate(ctx)
	} else {
		err = c.SQLite.Migrate(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to migrate %s schema: %w", c.Backend, err)
	}
	return nil
}

// Health checks the store connection
func (c *Container) Health(ctx context.Context) error {
	if c.Postgres != nil {
		return c.Postgres.Health(ctx)
	}
	return c.SQLite.Health(ctx)
}

// Close releases Redis and the store
func (c *Container) Close() error {
	var firstErr error
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			firstErr = fmt.Errorf("redis close: %w", err)
		}
		c.RedisClient = nil
	}
	if c.Postgres != nil {
		c.Postgres.Close()
		c.Postgres = nil
	}
	if c.SQLite != nil {
		if err := c.SQLite.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sqlite close: %w", err)
		}
		c.SQLite = nil
	}
	return firstErr
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client (may be nil if not configured)
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}

// GetServices returns the service set
func (c *Container) GetServices() *service.Services {
	return c.Services
}
