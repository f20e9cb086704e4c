package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"classroll/internal/attendance"
	"classroll/internal/auth"
	"classroll/internal/config"
	"classroll/internal/directory"
	"classroll/internal/faceclient"
	"classroll/internal/handler"
	"classroll/internal/httpmiddleware"
	"classroll/internal/logger"
	"classroll/internal/metrics"
	"classroll/internal/pending"
	"classroll/internal/report"
	"classroll/internal/session"
	"classroll/internal/store"
	"classroll/internal/totem"
)

func main() {
	// A local .env is optional; real deployments set the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, lg); err != nil {
		lg.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, lg *zap.Logger) error {
	ctx := context.Background()

	db, err := store.NewDB(ctx, cfg.DatabaseURL, cfg.StoreTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if err := store.Migrate(db.Client, lg); err != nil {
		return err
	}

	var (
		redisClient  *store.Redis
		pendingStore pending.Store
	)
	switch cfg.PendingBackend {
	case "memory":
		pendingStore = pending.NewMemoryStore(cfg.PendingTTL)
		lg.Warn("pending attendance kept in memory; entries are lost on restart")
	default:
		redisClient = store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer func() { _ = redisClient.Close() }()
		pendingStore = pending.NewRedisStore(redisClient.Client, cfg.PendingTTL)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mtr := metrics.New(reg)

	dir := directory.NewRepository(db.Client)
	sessions := session.NewManager(session.NewRepository(db.Client), lg)
	records := attendance.NewRepository(db.Client)
	marker := attendance.NewService(attendance.Deps{
		Records:  records,
		Sessions: sessions,
		Students: dir,
		Teachers: dir,
		Pending:  pendingStore,
		Observer: mtr,
		Logger:   lg,
	})
	totems := totem.NewService(totem.NewRepository(db.Client), lg)
	faces := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)

	h := handler.New(handler.Deps{
		Marker:       marker,
		Sessions:     sessions,
		Reports:      report.NewAggregator(sessions, records, dir),
		Totems:       totems,
		Faces:        faces,
		Authz:        attendance.NewAuthorizer(dir),
		Classes:      dir,
		Logger:       lg,
		StoreTimeout: cfg.StoreTimeout,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.AccessLog(lg, "/healthz", "/metrics"))
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(mtr.Middleware())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).Middleware(nil))

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	checks := map[string]handler.Check{
		"db": db.Healthy,
		"face": func(ctx context.Context) bool {
			return faces.Health(ctx) == nil
		},
	}
	if redisClient != nil {
		checks["redis"] = redisClient.Healthy
	}
	r.GET("/healthz", handler.Health(checks))

	h.Register(r, auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer))

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("starting server", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	lg.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("server forced shutdown", zap.Error(err))
	}
	lg.Info("server exited")
	return nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", auth.TotemHeader},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
