package app

import (
	_ "github.com/joho/godotenv/autoload"

	"github.com/dftm/dftm-calendar/internal/config"
)

func MustReadEnv() {
	cfg, err := config.NewReader().Read()
	if err != nil {
		globalLogger.Error().
			Err(err).
			Msg("failed to read config")
		panic(err)
	}

	if _, err = cfg.Locale.Location(); err != nil {
		globalLogger.Error().
			Err(err).
			Str("timezone", cfg.Locale.Timezone).
			Msg("invalid locale config")
		panic(err)
	}

	globalLogger.Info().
		Str("env", cfg.Env).
		Str("timezone", cfg.Locale.Timezone).
		Bool("google_calendar", cfg.Google.Enabled).
		Msg("read config")

	config.SetGlobal(cfg)
}
