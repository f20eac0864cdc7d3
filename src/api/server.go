package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"crewhall/src/lib"
	"crewhall/src/messaging"
	"crewhall/src/services"
	"crewhall/src/storage"
)

// Server wires the group service and its HTTP handlers.
type Server struct {
	cfg        lib.Config
	logger     *slog.Logger
	metrics    *lib.Metrics
	db         *pgxpool.Pool
	redis      *redis.Client
	publisher  *messaging.NatsPublisher
	cron       *cron.Cron
	httpServer *http.Server
}

func NewServer(ctx context.Context, cfg lib.Config) (*Server, error) {
	logger := lib.NewLogger(cfg.LogLevel)
	metrics := lib.NewMetrics()

	if err := storage.Migrate(cfg.DatabaseURL); err != nil {
		return nil, err
	}

	db, err := storage.NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg, logger: logger, metrics: metrics, db: db}

	var events services.EventPublisher = services.NopPublisher{}
	if cfg.NatsURL != "" {
		s.publisher, err = messaging.Connect(cfg.NatsURL, "crewhall")
		if err != nil {
			s.close()
			return nil, err
		}
		events = s.publisher
	}

	var limiter RateLimiter = NewTokenBucketLimiter(cfg.RateLimitBurst, cfg.RateLimitPerMinute)
	if cfg.RedisURL != "" {
		s.redis, err = NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			s.close()
			return nil, err
		}
		limiter = NewRedisLimiter(s.redis, cfg.RateLimitPerMinute)
	}

	store := storage.NewStore(db)
	lifecycle := services.NewLifecycle(services.LifecycleDeps{
		Store:      store,
		Logos:      services.NewHostAllowList(cfg.LogoAllowedHosts),
		Events:     events,
		Metrics:    metrics,
		Logger:     logger,
		MaxMembers: cfg.MaxMembers,
	})

	housekeeper := services.NewHousekeeper(store.JoinRequests(), cfg.JoinRequestRetention, metrics, logger)
	s.cron = cron.New()
	if _, err := housekeeper.Schedule(s.cron, cfg.HousekeepingSchedule); err != nil {
		s.close()
		return nil, err
	}

	mux := http.NewServeMux()
	RegisterGroupRoutes(mux, GroupRoutes{
		Groups:  lifecycle,
		Limiter: limiter,
		Auth:    NewAuthenticator(cfg.JWTSecret),
		Metrics: metrics,
		Logger:  logger,
	})
	RegisterOpsRoutes(mux, OpsRoutes{DB: db, Metrics: metrics})

	s.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

func (s *Server) Start() error {
	s.cron.Start()
	s.logger.Info("crewhall server starting", "addr", s.cfg.HTTPAddr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	defer s.close()
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) close() {
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	s.db.Close()
}
