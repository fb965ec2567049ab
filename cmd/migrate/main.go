package main

import (
	"context"
	"flag"
	"os"

	"github.com/eventcard/backend/internal/database"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func main() {
	command := flag.String("command", "up", "goose command: up, down, status, redo, version")
	flag.Parse()

	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	ctx := context.Background()
	db, err := database.InitDB(ctx, database.GetConfig())
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, *command); err != nil {
		log.Errorf("Migration failed: %v", err)
		db.Close()
		os.Exit(1)
	}

	log.WithField("command", *command).Info("Migrations finished")
}
