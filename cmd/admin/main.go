package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"

	"github.com/panelkit/simple-admin/migrations"
	"github.com/panelkit/simple-admin/pkg/audit"
	"github.com/panelkit/simple-admin/pkg/config"
	"github.com/panelkit/simple-admin/pkg/iam"
	"github.com/panelkit/simple-admin/pkg/login"
	"github.com/panelkit/simple-admin/pkg/notice"
	"github.com/panelkit/simple-admin/pkg/reset"
	"github.com/panelkit/simple-admin/pkg/session"
)

type Config struct {
	DatabaseConfig config.DatabaseConfig
	EmailConfig    config.EmailConfig
	SessionConfig  config.SessionConfig
	SiteConfig     config.SiteConfig
	AppConfig      app.AppConfig
}

func main() {
	cfg := Config{}
	cleanenv.ReadEnv(&cfg)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	dbConfig := cfg.DatabaseConfig.ToDbConfig()
	pool, err := dbutils.NewDbPool(context.Background(), dbConfig)
	if err != nil {
		// No session can be trusted without the store
		slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
		os.Exit(-1)
	}

	if err := runMigrations(context.Background(), cfg.DatabaseConfig.ToDatabaseURL()); err != nil {
		slog.Error("Failed running migrations", "err", err)
		os.Exit(-1)
	}

	notificationManager, err := notice.NewNotificationManager(cfg.EmailConfig.ToSMTPConfig(), cfg.SiteConfig.BaseURL)
	if err != nil {
		slog.Error("Failed creating notification manager", "err", err)
		os.Exit(-1)
	}

	auditRecorder := audit.NewRecorder(slog.Default())

	sessionRepo := session.NewInMemoryRepository()
	sessionManager := session.NewManager(sessionRepo, cfg.SessionConfig.ToSessionConfig())

	iamRepo := iam.NewPostgresRepository(pool)
	iamService := iam.NewService(iamRepo, auditRecorder, notificationManager)

	loginService := login.NewService(iamRepo, sessionRepo, login.NewPolicy(), auditRecorder)
	csrfManager := login.NewCsrfManager(sessionRepo, auditRecorder)
	gate := login.NewGate(loginService, sessionManager, cfg.SiteConfig.LoginPath)

	resetRepo := reset.NewPostgresRepository(pool)
	resetService := reset.NewService(iamRepo, resetRepo, notificationManager, auditRecorder)

	handle := NewHandle(loginService, iamService, resetService, csrfManager, sessionManager, gate)
	handle.Routes(server.R)

	server.Run()
}

func runMigrations(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}
