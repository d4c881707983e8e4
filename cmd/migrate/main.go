package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/beatvault/beatvault-backend/pkg/config"
	"github.com/beatvault/beatvault-backend/pkg/db"
	"github.com/beatvault/beatvault-backend/pkg/logger"
	"github.com/beatvault/beatvault-backend/pkg/migrate"
)

const usage = `usage: migrate [flags] <command>

commands:
  up | down | redo | reset | status   goose commands against the configured database
  to -version=YYYYMMDDHHMMSS          migrate up or down to a version
  create -name=<name>                 write a new SQL migration
  validate                            check migration files without a database
`

func main() {
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name for create")
	version := flag.String("version", "", "target version for to")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}

	switch cmd {
	case "create":
		path, err := migrate.CreateSQLMigration(*dir, *name)
		exitIf(err, "create migration")
		fmt.Println("created", path)
		return
	case "validate":
		exitIf(migrate.ValidateDir(*dir), "validate migrations")
		fmt.Println("migrations ok")
		return
	case "up", "down", "redo", "reset", "status", "to":
	default:
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	exitIf(err, "load config")

	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": cmd,
		"dir": *dir,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitIf(err, "connect database")
	defer func() { _ = dbClient.Close() }()

	sqlDB, err := dbClient.SQL()
	exitIf(err, "extract sql.DB")

	var target int64
	if cmd == "to" {
		target, err = migrate.ParseVersion(*version)
		exitIf(err, "parse -version")
	}

	migrator, err := migrate.New(sqlDB, *dir, logg)
	exitIf(err, "load migrations")

	if err := migrator.Apply(ctx, cmd, target); err != nil {
		logg.Error(ctx, "migration failed", err)
		_ = dbClient.Close()
		os.Exit(1)
	}
	logg.Info(ctx, "migration finished")
}

func exitIf(err error, step string) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
	os.Exit(1)
}
