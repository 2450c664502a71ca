package app

import (
	"context"
	"fmt"
	"livesession/internal/cache"
	"livesession/internal/config"
	"livesession/internal/repository"
	"livesession/internal/service"
	"livesession/internal/transport/media"
	"livesession/internal/transport/rest"
	"livesession/internal/transport/ws"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// App is the wired service: stores, caches, gateway and HTTP handler
type App struct {
	Mongo       *mongo.Client
	Redis       *redis.Client
	SessionRepo repository.SessionRepo
	Enrollments repository.EnrollmentRepo
	AuthService *service.AuthService
	Gateway     *service.SessionGateway
	WSHub       *ws.Hub
	Handler     http.Handler
}

// New connects to MongoDB and Redis and wires everything on top
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		mongoClient.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	log.Println("Connected to MongoDB")

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		rdb.Close()
		mongoClient.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	log.Println("Connected to Redis")

	db := mongoClient.Database(cfg.MongoDB)

	a := Wire(cfg, repository.NewSessionRepo(db), repository.NewEnrollmentRepo(db))
	a.Mongo = mongoClient
	a.Redis = rdb
	a.Gateway.SetCaches(cache.NewSessionCache(rdb, cfg.CacheTTL), cache.NewPresenceCache(rdb))
	return a, nil
}

// Wire builds the service graph over the given stores without touching
// the network. Caches are left off.
func Wire(cfg *config.Config, sessions repository.SessionRepo, enrollments repository.EnrollmentRepo) *App {
	hub := ws.NewHub()
	authSvc := service.NewAuthService(cfg.JWTSecret)

	var transport service.Transport = ws.NewProvider(hub, authSvc)
	if cfg.MediaURL != "" {
		transport = media.NewClient(cfg.MediaURL, cfg.MediaAPIKey)
		log.Printf("Using media provider at %s", cfg.MediaURL)
	}

	gateway := service.NewSessionGateway(sessions, enrollments, transport, service.Options{
		JoinWindow:       cfg.JoinWindow,
		PreviewLimit:     cfg.PreviewLimit,
		LockoutAfter:     cfg.LockoutAfter,
		LockoutFor:       cfg.LockoutFor,
		TransportTimeout: cfg.TransportTimeout,
	})
	// hub implements service.Broadcaster
	gateway.SetBroadcaster(hub)

	handler := rest.NewRouter(&rest.Container{
		AuthService: authSvc,
		Gateway:     gateway,
		WSHub:       hub,
		CORSOrigin:  cfg.CORSOrigin,
	})

	return &App{
		SessionRepo: sessions,
		Enrollments: enrollments,
		AuthService: authSvc,
		Gateway:     gateway,
		WSHub:       hub,
		Handler:     handler,
	}
}

// Close releases the store connections
func (a *App) Close(ctx context.Context) {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Mongo != nil {
		a.Mongo.Disconnect(ctx)
	}
}
