package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/ec-shop-core/internal/api"
	"github.com/example/ec-shop-core/internal/auth"
	"github.com/example/ec-shop-core/internal/authz"
	"github.com/example/ec-shop-core/internal/config"
	"github.com/example/ec-shop-core/internal/domain/cart"
	"github.com/example/ec-shop-core/internal/domain/category"
	"github.com/example/ec-shop-core/internal/domain/order"
	"github.com/example/ec-shop-core/internal/domain/product"
	"github.com/example/ec-shop-core/internal/domain/user"
	"github.com/example/ec-shop-core/internal/event"
	"github.com/example/ec-shop-core/internal/identity"
	"github.com/example/ec-shop-core/internal/infrastructure/cache"
	"github.com/example/ec-shop-core/internal/infrastructure/kafka"
	"github.com/example/ec-shop-core/internal/infrastructure/store"
	"github.com/example/ec-shop-core/internal/session"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.ValidateJWT()
	}
	if err != nil {
		log.Fatalf("[API] Invalid configuration: %v", err)
	}

	log.Println("[API] ========================================")
	log.Println("[API] EC Shop")
	log.Println("[API] ========================================")

	// Persistence
	var st store.Store
	if cfg.DatabaseURL != "" {
		db, err := store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("[API] Failed to connect to PostgreSQL: %v", err)
		}
		defer db.Close()
		if err := store.RunMigrations(db, cfg.MigrationsDir); err != nil {
			log.Fatalf("[API] Failed to run migrations: %v", err)
		}
		st = store.NewPostgresStore(db)
		log.Println("[API] Store: PostgreSQL")
	} else {
		st = store.NewMemoryStore()
		log.Println("[API] Store: in-memory (DATABASE_URL not set)")
	}

	// Sessions and cart cache
	var sessions session.Store
	var cartCache cache.CartCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("[API] Failed to connect to Redis: %v", err)
		}
		sessions = session.NewRedisStore(rdb, cfg.SessionTTL)
		cartCache = cache.NewRedisCartCache(rdb, cfg.CartCacheTTL)
		log.Printf("[API] Sessions and cart cache: Redis %s", cfg.RedisAddr)
	} else {
		sessions = session.NewMemoryStore(cfg.SessionTTL)
		log.Println("[API] Sessions: in-memory, cart cache disabled (REDIS_ADDR not set)")
	}

	// Events
	var publisher event.Publisher = event.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		publisher = kafka.NewBreakerPublisher(producer, kafka.DefaultBreakerSettings())
		log.Printf("[API] Kafka: %v topic %s", cfg.KafkaBrokers, cfg.KafkaTopic)
	} else {
		log.Println("[API] Kafka: disabled (KAFKA_BROKERS not set)")
	}
	emitter := event.NewEmitter(publisher)

	// Domain services
	engine := authz.NewEngine()
	productSvc := product.NewService(st, engine, emitter)
	categorySvc := category.NewService(st, engine, emitter)
	cartSvc := cart.NewService(st, sessions, cartCache, emitter)
	orderSvc := order.NewService(st, engine, cartSvc, emitter)
	userSvc := user.NewService(st, engine, emitter)
	resolver := identity.NewResolver(sessions)

	if cfg.AdminEmail != "" {
		if _, created, err := userSvc.EnsureAdmin(context.Background(), cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Fatalf("[API] Failed to bootstrap admin: %v", err)
		} else if created {
			log.Printf("[API] Created admin account %s", cfg.AdminEmail)
		}
	}

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	handlers := api.NewHandlers(productSvc, categorySvc, cartSvc, orderSvc, resolver, cfg.SessionTTL)
	authHandlers := api.NewAuthHandlers(userSvc, cartSvc, resolver, jwtService)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewRouter(handlers, authHandlers, jwtService, cfg.RequestTimeout),
	}

	go func() {
		log.Printf("[API] Server started on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[API] Shutdown error: %v", err)
	}
}
