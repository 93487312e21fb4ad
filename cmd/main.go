package main

import "github.com/dftm/dftm-calendar/internal/app"

func main() {
	app.InitDefaultLogger()
	app.MustReadEnv()
	app.MustInitApplicationLogger()

	app.MustConnectPostgres()
	defer app.DisconnectPostgres()
	app.MustMigratePostgres()
	app.MustSeedAdmin()

	app.MustListenAndServeHTTP()
}
