package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"nowplaying/internal/config"
	cronrunner "nowplaying/internal/cron"
	"nowplaying/internal/db"
	"nowplaying/internal/fetch"
	"nowplaying/internal/handler"
	"nowplaying/internal/logger"
	"nowplaying/internal/models"
	"nowplaying/internal/poll"
	"nowplaying/internal/repository"
	gormrepository "nowplaying/internal/repository/gorm"

	_ "nowplaying/docs"
)

func main() {
	cfgPath := os.Getenv("NP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("NP_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	fetcher := fetch.NewClient(cfg.Engine.UserAgent)
	recorder := &poll.Recorder{
		Repo:  store,
		Log:   logger,
		Dedup: cfg.Engine.DedupEvents,
	}
	scheduler := poll.NewScheduler(store, fetcher, recorder, logger, poll.Options{
		ReconcileInterval: cfg.Engine.ReconcileInterval,
		FetchTimeout:      cfg.Engine.FetchTimeout,
		WSPersistent:      cfg.Engine.WSPersistent,
	})
	tester := &poll.Tester{
		Repo:          store,
		Fetcher:       fetcher,
		Log:           logger,
		Timeout:       cfg.Engine.FetchTimeout,
		PersistStatus: cfg.Engine.TestPersists,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	stationHandler := &handler.StationHandler{Repo: store}
	stationHandler.Register(engine)
	mappingHandler := &handler.MappingHandler{Repo: store}
	mappingHandler.Register(engine)
	connectionHandler := &handler.ConnectionHandler{
		Repo:      store,
		Tester:    tester,
		Scheduler: scheduler,
	}
	connectionHandler.Register(engine)
	eventHandler := &handler.EventHandler{Repo: store}
	eventHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schedulerDone := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(schedulerDone)
	}()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		if cfg.Engine.EventRetention > 0 {
			retention := cfg.Engine.EventRetention
			_, err := cronRunner.Add(cfg.Cron.RetentionSweep, func(ctx context.Context) {
				cutoff := time.Now().UTC().Add(-retention)
				n, err := store.DeleteEventsBefore(ctx, cutoff)
				if err != nil {
					logger.Warn("retention sweep failed", zap.Error(err))
					return
				}
				if n > 0 {
					logger.Info("retention sweep removed events",
						zap.Int64("count", n),
						zap.Time("cutoff", cutoff))
				}
			})
			if err != nil {
				logger.Warn("cron register retention sweep failed", zap.Error(err))
			}
		}

		_, err := cronRunner.Add(cfg.Cron.StatsLog, func(ctx context.Context) {
			logStats(ctx, store, logger)
		})
		if err != nil {
			logger.Warn("cron register stats log failed", zap.Error(err))
		}

		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	select {
	case <-schedulerDone:
	case <-time.After(10 * time.Second):
		logger.Warn("scheduler did not stop in time")
	}
}

func logStats(ctx context.Context, store repository.Repository, logger *zap.Logger) {
	conns, err := store.ListEnabledConnections(ctx)
	if err != nil {
		logger.Warn("stats: list connections failed", zap.Error(err))
		return
	}
	total, err := store.CountEvents(ctx, repository.ListEventsParams{})
	if err != nil {
		logger.Warn("stats: count events failed", zap.Error(err))
		return
	}
	errored := 0
	for _, conn := range conns {
		if conn.LastStatus != nil && *conn.LastStatus == models.StatusError {
			errored++
		}
	}
	logger.Info("engine stats",
		zap.Int("enabled_connections", len(conns)),
		zap.Int("connections_in_error", errored),
		zap.Int64("stored_events", total))
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
