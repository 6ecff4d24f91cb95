package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"botcore/internal/api"
	"botcore/internal/events"
	"botcore/internal/lock"
	"botcore/internal/reconciler"
	"botcore/internal/scheduler"
	"botcore/internal/strategy"
	"botcore/internal/worker"
	"botcore/pkg/config"
	"botcore/pkg/db"
	"botcore/pkg/exchange"
	"botcore/pkg/ident"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}
	log.Printf("database ready at %s", cfg.DBPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SeedPath != "" {
		entries, err := db.LoadSeed(cfg.SeedPath)
		if err != nil {
			log.Fatalf("load subscription seed: %v", err)
		}
		if err := database.SyncSeed(ctx, entries, time.Now().UTC()); err != nil {
			log.Fatalf("sync subscription seed: %v", err)
		}
		log.Printf("synced %d seed subscriptions from %s", len(entries), cfg.SeedPath)
	}

	registry := strategy.NewRegistry()
	if cfg.EnablePluginWorker {
		plugin, err := strategy.NewPlugin(cfg.PluginWorkerAddr, cfg.PluginCallTimeout)
		if err != nil {
			log.Fatalf("plugin strategy worker: %v", err)
		}
		defer plugin.Close()
		registry.Register("plugin", plugin)
		log.Printf("plugin strategy worker at %s", cfg.PluginWorkerAddr)
	}

	owner := ident.WorkerID()
	var locker lock.Locker
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		locker = lock.NewRedisLocker(client, owner)
		log.Printf("execution locks on redis %s (owner %s)", cfg.RedisAddr, owner)
	} else {
		locker = lock.NewMemoryLocker(owner)
		log.Printf("execution locks in-process (owner %s)", owner)
	}

	paper := exchange.NewPaper(map[string]float64{
		"BTCUSDT": 50000,
		"ETHUSDT": 2600,
	}, 0.0004)
	resolver := exchange.NewResolver()
	resolver.Register("paper", exchange.NewRateLimited(paper, cfg.ExchangeRatePerS))
	if !cfg.PaperTrading {
		// Live venue adapters register here as they land; until then a
		// non-paper exchange_type faults its subscription.
		log.Println("WARNING: paper trading disabled but no live venue adapters are registered")
	}

	bus := events.NewBus()

	w := worker.New(worker.Config{
		Store:      database,
		Locker:     locker,
		Registry:   registry,
		Resolver:   resolver,
		Market:     paper,
		Bus:        bus,
		LockTTL:    cfg.LockTTL,
		CallWindow: cfg.ExchangeTimeout,
		Retries:    cfg.ExchangeRetries,
	})
	sched := scheduler.New(scheduler.Config{
		Store:    database,
		Dispatch: w.Run,
		Tick:     cfg.SchedulerTick,
		PoolSize: cfg.WorkerPoolSize,
	})
	rec := reconciler.New(reconciler.Config{
		Store:      database,
		Resolver:   resolver,
		Bus:        bus,
		Interval:   cfg.ReconcileInterval,
		Tolerance:  cfg.ExitTolerance,
		FeeRate:    0.0004,
		CallWindow: cfg.ExchangeTimeout,
	})

	go sched.Run(ctx)
	go rec.Run(ctx)

	server := api.New(api.Config{
		Store:         database,
		Bus:           bus,
		Registry:      registry,
		RatePerSecond: cfg.APIRatePerS,
	})
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Handler(),
	}
	go func() {
		log.Printf("api listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown: %v", err)
	}
	log.Println("bye")
}
