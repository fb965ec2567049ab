package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/eventcard/backend/docs"
	"github.com/eventcard/backend/internal/config"
	"github.com/eventcard/backend/internal/database"
	"github.com/eventcard/backend/internal/handlers"
	mW "github.com/eventcard/backend/internal/middleware"
	"github.com/eventcard/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Event Card Ledger API
// @version 1.0
// @description Stored-value NFC card ledger for event terminals
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledgerCfg := config.LoadLedgerConfig()

	// Initialize Swagger docs
	docs.SwaggerInfo.Host = viper.GetString("server.public_host")
	docs.SwaggerInfo.BasePath = "/api/v1"

	store, catalog, db := openStore(ctx, ledgerCfg)
	if db != nil {
		defer db.Close()
	}

	publisher, closePublisher := openPublisher(ctx, ledgerCfg)
	defer closePublisher()

	audit := services.NewAuditLogger(log.StandardLogger())
	engine := services.NewTransactionService(store, catalog, publisher, audit, ledgerCfg)
	ledger := services.NewLedgerService(store, ledgerCfg.HistoryLimit)
	receipts := services.NewReceiptService(store)

	transactionHandler := handlers.NewTransactionHandler(engine, ledger, receipts)
	cardHandler := handlers.NewCardHandler(engine, ledger)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "healthy", "store": viper.GetString("store.driver")}
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				status["status"] = "degraded"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mW.AuthMiddleware)
		handlers.RegisterRoutes(r, transactionHandler, cardHandler)
	})

	server := &http.Server{
		Addr:         ":" + viper.GetString("server.port"),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}

func loadConfig() {
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("nats.url", "NATS_URL")
	viper.BindEnv("nats.token", "NATS_TOKEN")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("store.driver", "STORE_DRIVER")
	viper.BindEnv("events.provider", "EVENTS_PROVIDER")
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("server.public_host", "PUBLIC_HOST")
	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("log.format", "LOG_FORMAT")

	viper.SetDefault("store.driver", "postgres")
	viper.SetDefault("events.provider", "none")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.public_host", "localhost:8080")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	if viper.GetString("log.format") == "text" {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}
	if level, err := log.ParseLevel(viper.GetString("log.level")); err == nil {
		log.SetLevel(level)
	}

	if viper.GetString("jwt.secret_key") == "" {
		log.Fatal("JWT_SECRET_KEY is required")
	}
}

func openStore(ctx context.Context, cfg *config.LedgerConfig) (services.Store, services.ProductCatalog, *sql.DB) {
	switch driver := viper.GetString("store.driver"); driver {
	case "memory":
		log.Warn("[STORE] using in-memory store, balances are lost on restart")
		return services.NewMemoryStore(cfg.LockTimeout), services.NewMemoryCatalog(), nil
	case "postgres":
		db, err := database.InitDB(ctx, database.GetConfig())
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		return services.NewPostgresStore(db, cfg.LockTimeout), services.NewPostgresCatalog(db), db
	default:
		log.Fatalf("Unknown store driver %q", driver)
		return nil, nil, nil
	}
}

func openPublisher(ctx context.Context, cfg *config.LedgerConfig) (services.Publisher, func()) {
	switch provider := viper.GetString("events.provider"); provider {
	case "redis":
		client := database.InitRedis(ctx)
		if client == nil {
			return services.NopPublisher{}, func() {}
		}
		return services.NewRedisQueuePublisher(client, cfg.EventsQueue), func() { client.Close() }
	case "nats":
		conn, err := database.InitNats()
		if err != nil {
			log.Printf("NATS connection failed, continuing without events: %v", err)
			return services.NopPublisher{}, func() {}
		}
		return services.NewNatsPublisher(conn, cfg.EventsSubject), func() { drain(conn) }
	case "none", "":
		return services.NopPublisher{}, func() {}
	default:
		log.Fatalf("Unknown events provider %q", provider)
		return nil, nil
	}
}

func drain(conn *nats.Conn) {
	if err := conn.Drain(); err != nil {
		log.Printf("Failed to drain NATS connection: %v", err)
	}
}
