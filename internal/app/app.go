// Package app wires the process together: database, migrations, owner
// channel, notifier, gateway and HTTP handler. Construction is explicit
// so tests and the CLI can assemble the same pieces with substitutions.
package app

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"

	"botfleet/internal/config"
	"botfleet/internal/db"
	"botfleet/internal/gateway"
	"botfleet/internal/migrate"
	"botfleet/internal/notify"
	"botfleet/internal/repo"
	"botfleet/internal/server"
)

type App struct {
	Config   *config.Config
	DB       *sql.DB
	Repo     repo.Repo
	Notifier *notify.Notifier
	Gateway  gateway.Gateway
	Handler  http.Handler
}

// New opens the workspace database, applies pending migrations and builds
// the full stack described by cfg.
func New(workdir string, cfg *config.Config) (*App, error) {
	sqlDB, err := db.Open(db.Config{Workspace: workdir})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	owner, err := notify.ChannelFromConfig(cfg.Owner)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("owner channel: %w", err)
	}
	r := repo.Repo{DB: sqlDB}
	notifier := notify.New(r, owner, cfg.Owner.RatePerSecond, log.Default())
	gw := gateway.New(sqlDB, notifier)
	handler, err := server.New(server.Config{
		Gateway:  gw,
		BasePath: cfg.Server.BasePath,
		Auth:     server.AuthConfig{JWTSecret: cfg.Auth.JWTSecret},
	})
	if err != nil {
		notifier.Close()
		sqlDB.Close()
		return nil, err
	}
	return &App{
		Config:   cfg,
		DB:       sqlDB,
		Repo:     r,
		Notifier: notifier,
		Gateway:  gw,
		Handler:  handler,
	}, nil
}

// Close flushes the owner forward queue and releases the database.
func (a *App) Close() error {
	a.Notifier.Close()
	return a.DB.Close()
}
