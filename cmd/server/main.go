// CarScout crawler API
// @title CarScout API
// @version 1.0
// @description Crawls CarGurus.ca listings, makes and models behind a stealth browser and streams progress events
// @host localhost:8080
// @BasePath /

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/time/rate"

	_ "carscout/docs"
	"carscout/internal/behavior"
	"carscout/internal/browser"
	"carscout/internal/cache"
	"carscout/internal/challenge"
	"carscout/internal/config"
	"carscout/internal/crawl"
	"carscout/internal/database"
	"carscout/internal/events"
	"carscout/internal/handlers"
	"carscout/internal/janitor"
	"carscout/internal/logger"
	"carscout/internal/metrics"
	"carscout/internal/middleware"
	"carscout/internal/pagestate"
	"carscout/internal/siteconfig"
)

func main() {
	cfg := config.Load()
	log := logger.Init(os.Stderr, cfg.LogLevel)

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	site, err := siteconfig.Load()
	if err != nil {
		log.Error("Failed to load site configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, err := database.NewDatabase(cfg.DBPath)
	if err != nil {
		log.Error("Failed to open database", slog.String("path", cfg.DBPath), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	m := metrics.Default()
	deadLinks, closeDeadLinks := openDeadLinks(cfg, log)
	defer closeDeadLinks()

	sinks := []events.Sink{events.LogSink{Logger: log}}
	if len(cfg.KafkaBrokers) > 0 {
		kafka := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		defer kafka.Close()
		sinks = append(sinks, kafka)
		log.Info("Publishing crawl events to Kafka", slog.String("topic", cfg.KafkaTopic))
	}

	sessions := browser.NewManager(&browser.RodDriver{
		ChromeBin: cfg.ChromeBin,
		Headless:  cfg.Headless,
		Logger:    log,
	}, browser.Options{
		ProfileDir:  cfg.ProfileDir,
		NavTimeout:  cfg.NavTimeout,
		RatePerMin:  cfg.NavRatePerMin,
		Burst:       cfg.NavBurst,
		SnapshotDir: filepath.Join(cfg.DataDir, "snapshots"),
	}, log, m)

	seed := cfg.BehaviorSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	synth := behavior.NewSeeded(seed, behavior.WithLogger(log))
	challenges := challenge.New(pagestate.New().WithLogger(log), synth, challenge.Options{
		BaseDelay: cfg.RetryBaseDelay,
		MaxDelay:  cfg.RetryMaxDelay,
	}, log, m)

	coord, err := crawl.New(crawl.Deps{
		Sessions:   sessions,
		Site:       site,
		Challenges: challenges,
		Behavior:   synth,
		Events:     events.Multi(sinks...),
		DeadLinks:  deadLinks,
		Metrics:    m,
		Logger:     log,
	}, crawl.Policy{
		MaxAttempts:       cfg.MaxAttempts,
		BaseDelay:         cfg.RetryBaseDelay,
		MaxDelay:          cfg.RetryMaxDelay,
		ChallengeAttempts: cfg.ChallengeAttempts,
		Timeout:           cfg.OperationTimeout,
		ProfilePrefix:     cfg.ProfilePrefix,
		Radius:            cfg.DefaultRadius,
	})
	if err != nil {
		log.Error("Failed to create crawler", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go janitor.New(db, sessions, janitor.Options{
		Interval:      cfg.JanitorInterval,
		ProfileMaxAge: cfg.ProfileMaxAge,
		ListingMaxAge: cfg.ListingMaxAge,
	}, log).Run(ctx)

	r := gin.New()
	r.Use(gin.Recovery())

	// Configure trusted proxies for Docker and private networks
	r.SetTrustedProxies([]string{
		"127.0.0.1",
		"::1",
		"172.16.0.0/12",
		"10.0.0.0/8",
		"192.168.0.0/16",
	})

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Admin-Key"}
	r.Use(cors.New(corsConfig))

	limiter := middleware.NewRateLimiter(rate.Every(time.Second), 10)
	r.Use(
		middleware.RequestLogger(log),
		middleware.Metrics(m),
		middleware.SecurityHeaders(),
		middleware.SecurityScanDetection(),
		middleware.HTTPMethodFilter([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		middleware.RateLimitMiddleware(limiter),
	)

	crawlHandler := handlers.NewCrawlHandler(coord, db, site, log)
	adminHandler := handlers.NewAdminHandler(deadLinks, site)

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/health", handlers.Health(db))
		api.GET("/runs/:id", crawlHandler.GetRun)
		api.GET("/stats", crawlHandler.Stats)

		crawls := api.Group("", middleware.UserAgentFilter(), middleware.CrawlSlots(cfg.MaxCrawls))
		crawls.POST("/search", crawlHandler.Search)
		crawls.GET("/brands", crawlHandler.Brands)
		crawls.GET("/brands/:brand/models", crawlHandler.Models)

		admin := api.Group("/admin", middleware.AdminKeyMiddleware(cfg.AdminKey))
		admin.GET("/dead-links", adminHandler.ListDeadLinks)
		admin.POST("/dead-links", adminHandler.MarkDeadLinks)
		admin.DELETE("/dead-links", adminHandler.RemoveDeadLinks)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", slog.String("error", err.Error()))
	}
}

// openDeadLinks uses Redis when REDIS_ADDR is set and reachable, the JSON
// file store otherwise.
func openDeadLinks(cfg config.Config, log *slog.Logger) (cache.DeadLinks, func()) {
	if cfg.RedisAddr != "" {
		store := cache.NewRedisStore(cfg.RedisAddr, 0, log)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		err := store.Ping(ctx)
		if err == nil {
			log.Info("Using Redis for dead links", slog.String("addr", cfg.RedisAddr))
			return store, func() { _ = store.Close() }
		}
		log.Warn("Redis unreachable, falling back to file store", slog.String("error", err.Error()))
		_ = store.Close()
	}
	return cache.NewFileStore(cfg.DataDir, 0, log), func() {}
}
