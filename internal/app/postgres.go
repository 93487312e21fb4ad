package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dftm/dftm-calendar/internal/config"
	"github.com/dftm/dftm-calendar/internal/models"
	"github.com/dftm/dftm-calendar/internal/services"
)

var globalPostgresPool *pgxpool.Pool

func MustConnectPostgres() {
	cfg := config.Global().Postgres
	connURL := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Username, cfg.Password, cfg.Host,
		cfg.Port, cfg.Database, cfg.SSLMode)

	poolCfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		globalLogger.Error().
			Err(err).
			Msg("failed to parse postgres config")
		panic(err)
	}
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	globalPostgresPool, err = pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		globalLogger.Error().
			Err(err).
			Msg("failed to connect to postgres")
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()

	err = globalPostgresPool.Ping(ctx)
	if err != nil {
		globalLogger.Error().
			Err(err).
			Msg("failed to ping postgres")
		panic(err)
	}
	globalLogger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Msg("connected to postgres")
}

func MustMigratePostgres() {
	err := services.Migrate(context.Background(), globalPostgresPool)
	if err != nil {
		globalLogger.Error().
			Err(err).
			Msg("failed to migrate postgres")
		panic(err)
	}
	globalLogger.Info().Msg("migrated postgres")
}

// MustSeedAdmin creates the configured SUPERADMIN unless an
// account with that email already exists.
func MustSeedAdmin() {
	cfg := config.Global()
	if cfg.Admin.Email == "" {
		return
	}

	ctx := context.Background()
	users := services.NewUserService(globalLogger, globalPostgresPool)

	_, err := users.GetUserByEmail(ctx, cfg.Admin.Email)
	if err == nil {
		globalLogger.Debug().
			Str("email", cfg.Admin.Email).
			Msg("admin already exists")
		return
	} else if !errors.Is(err, services.ErrUserNotFound) {
		globalLogger.Error().
			Err(err).
			Msg("failed to look up admin")
		panic(err)
	}

	if len(cfg.Admin.Password) < 6 {
		err = errors.New("admin password must be at least 6 characters")
		globalLogger.Error().
			Err(err).
			Msg("failed to seed admin")
		panic(err)
	}

	lang, ok := models.ParseLanguage(cfg.Locale.DefaultLanguage)
	if !ok {
		lang = models.DefaultLanguage
	}
	_, err = users.CreateUser(ctx, services.CreateUserParams{
		Email:    cfg.Admin.Email,
		Password: cfg.Admin.Password,
		Role:     models.RoleSuperAdmin,
		Language: lang,
	})
	if err != nil && !errors.Is(err, services.ErrUserAlreadyExists) {
		globalLogger.Error().
			Err(err).
			Msg("failed to seed admin")
		panic(err)
	}
	globalLogger.Info().
		Str("email", cfg.Admin.Email).
		Msg("seeded admin")
}

func DisconnectPostgres() {
	globalPostgresPool.Close()
	globalLogger.Info().Msg("disconnected from postgres")
}
