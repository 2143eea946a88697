package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"torashaout/internal/config"
	"torashaout/internal/database"
	"torashaout/internal/database/migrations"
	"torashaout/internal/logger"
)

func main() {
	down := flag.Bool("down", false, "roll back every migration")
	seed := flag.Bool("seed", false, "also apply the seed migrations")
	reset := flag.Bool("reset", false, "drop and recreate the schema from the models (development only)")
	dir := flag.String("dir", "", "migrations directory (default MIGRATIONS_DIR)")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	if *dir != "" {
		cfg.Database.MigrationsDir = *dir
	}

	if *reset {
		if err := resetSchema(cfg.Database, log); err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
		log.Info("MIGRATE", "schema recreated")
		return
	}

	sqlDB, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("open database: %v", err))
	}

	opts := migrations.DefaultOptions()
	opts.MigrationsDir = cfg.Database.MigrationsDir
	opts.SeedData = *seed
	runner := migrations.NewRunner(sqlDB, opts, log)
	defer runner.Close()

	if *down {
		err = runner.MigrateDown()
	} else {
		err = runner.RunMigrations()
	}
	if err != nil {
		log.Error("MIGRATE", err.Error())
		runner.Close()
		os.Exit(1)
	}
	log.Info("MIGRATE", "done")
}

func resetSchema(cfg config.DatabaseConfig, log *logger.Logger) error {
	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.DropSchema(ctx, db); err != nil {
		return err
	}
	return database.CreateSchema(ctx, db)
}
