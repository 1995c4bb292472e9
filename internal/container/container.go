package container

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	database "github.com/yisivlay/account-service/app/db"
	"github.com/yisivlay/account-service/config"
	"github.com/yisivlay/account-service/internal/api/auth"
	"github.com/yisivlay/account-service/internal/api/mail"
	"github.com/yisivlay/account-service/internal/api/user"
)

// Container holds all application dependencies.
type Container struct {
	Config      *config.Config
	Logger      *slog.Logger
	Pool        *pgxpool.Pool
	TokenIssuer *auth.TokenIssuer
	AuthHandler *auth.HandlerImpl
	UserHandler *user.HandlerImpl
}

// NewContainer initializes and returns a new dependency container.
func NewContainer(cfg *config.Config, logger *slog.Logger) (*Container, error) {
	dbConfig, err := database.NewDatabaseConfig(cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		return nil, err
	}

	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		return nil, err
	}

	issuer := auth.NewTokenIssuer(cfg.JWT)
	sender := mail.NewSMTPSender(cfg.SMTP, logger)

	authRepo := auth.NewPostgresAuthRepo(pool, logger)
	authService := auth.NewAuthService(authRepo, issuer, sender, cfg, logger)
	authHandler := auth.NewHandlerImpl(authService, logger)

	userRepo := user.NewPostgresUserRepo(pool, logger)
	userService := user.NewUserService(userRepo, logger)
	userHandler := user.NewHandlerImpl(userService, logger)

	return &Container{
		Config:      cfg,
		Logger:      logger,
		Pool:        pool,
		TokenIssuer: issuer,
		AuthHandler: authHandler,
		UserHandler: userHandler,
	}, nil
}

// Close releases all resources held by the container.
func (c *Container) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// WaitForDB waits for the database to be ready.
func (c *Container) WaitForDB(ctx context.Context) bool {
	return database.WaitForDB(ctx, c.Pool, c.Logger)
}

// RunMigrations runs database migrations.
func (c *Container) RunMigrations(connectionURL string) error {
	return database.RunMigrations(connectionURL, c.Logger)
}
