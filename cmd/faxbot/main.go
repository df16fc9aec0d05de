package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/libraryaddict/KolFaxBot/internal/cache"
	"github.com/libraryaddict/KolFaxBot/internal/config"
	"github.com/libraryaddict/KolFaxBot/internal/handler"
	"github.com/libraryaddict/KolFaxBot/internal/kol"
	"github.com/libraryaddict/KolFaxBot/internal/middleware"
	"github.com/libraryaddict/KolFaxBot/internal/repository"
	"github.com/libraryaddict/KolFaxBot/internal/router"
	"github.com/libraryaddict/KolFaxBot/internal/service"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting KolFaxBot...")

	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	if err := cfg.Bot.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	store, err := repository.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite: %v", err)
	}
	defer store.Close()
	log.Println("SQLite store initialized")

	// The fax log can live in MySQL when several bots share one history.
	var faxLog repository.FaxLogRepository = store

	switch cfg.Database.FaxLogType {
	case "mysql":
		mysqlLog, err := repository.NewMySQLFaxLogRepository(cfg.Database.MySQLDSN())
		if err != nil {
			log.Fatalf("Failed to initialize MySQL fax log: %v", err)
		}
		defer mysqlLog.Close()
		faxLog = mysqlLog
		log.Println("MySQL fax log initialized")
	default: // sqlite
	}

	// Report cache: redis when configured and reachable, memory otherwise.
	var reportCache cache.Cache

	if cfg.Cache.Type == "redis" {
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			log.Printf("Warning: Redis connection failed, using memory cache: %v", err)
		} else {
			reportCache = redisCache
			log.Println("Redis report cache initialized")
		}
	}

	if reportCache == nil {
		reportCache = cache.NewMemoryCache()
	}
	defer reportCache.Close()

	session := kol.NewClient(cfg.Bot.Username, cfg.Bot.Password)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 2*time.Minute)

	if err := session.LogIn(startCtx); err != nil {
		log.Printf("Warning: initial login failed, will keep retrying: %v", err)
	}

	registry := service.NewClanRegistry(store, service.PickPolicy(cfg.Bot.SourcePickPolicy))

	if err := registry.Load(startCtx); err != nil {
		log.Fatalf("Failed to load clans: %v", err)
	}

	catalog := service.NewMonsterCatalog(store, nil)

	if err := catalog.Load(startCtx); err != nil {
		log.Fatalf("Failed to load monsters: %v", err)
	}
	cancelStart()

	admin := service.NewAdministration(session, registry, catalog, cfg.Bot)
	engine := service.NewFaxEngine(session, registry, catalog, admin, faxLog, cfg.Bot)
	admin.AttachEngine(engine)

	dispatcher := service.NewDispatcher(session, engine, admin, cfg.Bot)
	rollover := service.NewRolloverTask(session, registry, catalog, engine, cfg.Bot)
	scheduler := service.NewScheduler(session, engine, admin, registry, catalog,
		dispatcher, rollover, cfg.Bot)

	reports := middleware.NewReportCache(reportCache, cfg.Cache.TTL)
	registry.SetOnChange(reports.Invalidate)
	catalog.SetOnChange(reports.Invalidate)

	reportHandler := handler.NewReportHandler(session, registry, catalog, admin, faxLog)

	r := router.New(router.Config{
		ReportHandler: reportHandler,
		ReportCache:   reports,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Report server listening on %s", cfg.Server.Address())

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	runCtx, stopScheduler := context.WithCancel(context.Background())

	go scheduler.Run(runCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	stopScheduler()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Goodbye!")
}
