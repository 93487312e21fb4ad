package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/dftm/dftm-calendar/internal/config"
	"github.com/dftm/dftm-calendar/internal/delivery/http/v1"
	"github.com/dftm/dftm-calendar/internal/gcal"
	"github.com/dftm/dftm-calendar/internal/i18n"
	"github.com/dftm/dftm-calendar/internal/models"
	"github.com/dftm/dftm-calendar/internal/services"
)

func MustListenAndServeHTTP() {
	cfg := config.Global()
	if cfg.Env != config.EnvLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	httpCfg := cfg.HTTP

	router := gin.New()
	router.Use(requestLogger())
	router.Use(gin.Recovery())
	v1.RegisterRoutes(router, mustNewV1Handler(cfg))

	server := &http.Server{
		Addr:    net.JoinHostPort(httpCfg.Host, httpCfg.Port),
		Handler: router,
	}

	go func() {
		globalLogger.Info().
			Str("host", httpCfg.Host).
			Str("port", httpCfg.Port).
			Msg("setting up http server")
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			globalLogger.Error().
				Err(err).
				Msg("failed to listen and serve http")
			panic(err)
		}
	}()

	// kill (no params) sends SIGTERM, kill -2 sends SIGINT.
	// SIGKILL can't be caught.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	globalLogger.Info().
		Msg("shutting down http server")

	ctx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
	defer cancel()

	err := server.Shutdown(ctx)
	if err != nil {
		globalLogger.Error().
			Err(err).
			Msg("failed to shutdown http server")
		panic(err)
	}
	globalLogger.Info().Msg("shut down http server")
}

func mustNewV1Handler(cfg *config.Config) v1.Handler {
	lang, ok := models.ParseLanguage(cfg.Locale.DefaultLanguage)
	if !ok {
		globalLogger.Warn().
			Str("language", cfg.Locale.DefaultLanguage).
			Msg("unsupported default language, using built-in default")
		lang = models.DefaultLanguage
	}

	translator, err := i18n.New(lang)
	if err != nil {
		globalLogger.Error().
			Err(err).
			Msg("failed to load translations")
		panic(err)
	}

	// Validated in MustReadEnv.
	loc, _ := cfg.Locale.Location()

	var publisher v1.CalendarPublisher
	if cfg.Google.Enabled {
		publisher = mustNewCalendarPublisher(cfg.Google, lang)
	}

	return v1.New(
		globalLogger,
		services.NewAuthService(
			globalLogger,
			globalPostgresPool,
			cfg.JWT.Issuer,
			[]byte(cfg.JWT.SigningKey),
			cfg.JWT.AccessTokenTTL,
		),
		services.NewUserService(globalLogger, globalPostgresPool),
		services.NewTaskService(globalLogger, globalPostgresPool),
		services.NewCommentService(globalLogger, globalPostgresPool),
		translator,
		publisher,
		loc,
	)
}

func mustNewCalendarPublisher(cfg config.GoogleConfig, lang models.Language) *gcal.Publisher {
	srv, err := gcal.NewService(context.Background(), cfg.CredentialsFile)
	if err != nil {
		globalLogger.Error().
			Err(err).
			Str("credentials_file", cfg.CredentialsFile).
			Msg("failed to create google calendar service")
		panic(err)
	}

	globalLogger.Info().
		Str("calendar_id", cfg.CalendarID).
		Msg("google calendar export enabled")
	return gcal.NewPublisher(globalLogger, gcal.NewEventStore(srv, cfg.CalendarID), lang)
}
