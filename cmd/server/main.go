package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/fjod/go_cart/cart-engine/internal/cache"
	"github.com/fjod/go_cart/cart-engine/internal/config"
	cartgrpc "github.com/fjod/go_cart/cart-engine/internal/grpc"
	carthttp "github.com/fjod/go_cart/cart-engine/internal/http"
	"github.com/fjod/go_cart/cart-engine/internal/poller"
	"github.com/fjod/go_cart/cart-engine/internal/product"
	"github.com/fjod/go_cart/cart-engine/internal/repository"
	"github.com/fjod/go_cart/cart-engine/internal/service"
	"github.com/fjod/go_cart/cart-engine/pkg/circuitbreaker"
	"github.com/fjod/go_cart/cart-engine/pkg/logger"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, help, err := config.Load(".env")
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Service:   "cart-engine",
		Env:       cfg.Env,
		Level:     cfg.Log.Level,
		AddSource: cfg.Log.AddSource,
	})

	if err := run(cfg, log); err != nil {
		log.Error("cart engine stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	log.Info("starting cart engine", "config", config.String(cfg))
	defer log.Info("shutdown complete")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := map[string]cartgrpc.Pinger{}

	// Product catalog
	catalog, err := product.NewRepository(cfg.Catalog.Driver, cfg.Catalog.DSN)
	if err != nil {
		return fmt.Errorf("open product catalog: %w", err)
	}
	defer catalog.Close()
	if cfg.Catalog.Migrate {
		if err := catalog.RunMigrations(); err != nil {
			return fmt.Errorf("migrate product catalog: %w", err)
		}
	}
	health["catalog"] = catalog

	breakerOpts := circuitbreaker.DefaultOptions("product-lookup")
	breakerOpts.Timeout = cfg.Breaker.Timeout
	breakerOpts.ConsecutiveFailures = cfg.Breaker.ConsecutiveFailures
	lookup := product.NewBreakerLookup(catalog, breakerOpts, log)

	// Cart store
	var store repository.CartStore
	if cfg.Mongo.Disabled {
		log.Warn("MongoDB disabled, carts are kept in memory")
		store = repository.NewMemoryStore()
	} else {
		mongoDB, err := repository.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoDB.Client().Disconnect(ctx); err != nil {
				log.Error("mongo disconnect failed", "error", err)
			}
		}()

		mongoStore := repository.NewMongoStore(mongoDB)
		if err := mongoStore.CreateIndexes(ctx); err != nil {
			return fmt.Errorf("create cart indexes: %w", err)
		}
		log.Info("connected to MongoDB", "database", cfg.Mongo.Database)
		store = mongoStore
		health["mongo"] = mongoStore
	}

	// Read cache
	var cartCache cache.CartCache = cache.NoopCache{}
	if !cfg.Redis.Disabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		redisCache := cache.NewRedisCache(redisClient, cfg.Redis.TTL)
		cartCache = redisCache
		health["redis"] = redisCache
		log.Info("redis ping succeeded", "addr", cfg.Redis.Addr)
	}

	carts := service.NewCartService(lookup, store, cartCache, log)

	// HTTP API
	limiter := carthttp.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.Expiry)
	router := carthttp.NewRouter(carthttp.NewCartHandler(carts, cfg.HTTP.RequestTimeout, log), carthttp.RouterConfig{
		RequestTimeout:     cfg.HTTP.RequestTimeout,
		MaxRequestBodySize: cfg.HTTP.MaxBodyBytes,
		JWTSecret:          []byte(cfg.Auth.Secret),
		Limiter:            limiter,
	}, log)
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(log.Handler(), slog.LevelError),
	}

	// gRPC health
	grpcServer, healthServer := cartgrpc.NewServer()
	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	checker := cartgrpc.NewHealthChecker(healthServer, health, cfg.GRPC.HealthInterval, log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.HTTP.Address)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("grpc server listening", "addr", cfg.GRPC.Address)
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		checker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		limiter.Run(gctx, time.Minute)
		return nil
	})

	if cfg.Kafka.Enabled {
		checkouts := poller.NewPoller(carts, log, cfg.Kafka.Topic, cfg.Kafka.GroupID, cfg.Kafka.Brokers...)
		g.Go(func() error {
			defer checkouts.Close()
			log.Info("consuming checkout events", "topic", cfg.Kafka.Topic)
			checkouts.Run(gctx)
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down cart engine")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		grpcServer.GracefulStop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return fmt.Errorf("could not stop http server gracefully: %w", err)
		}
		return nil
	})

	return g.Wait()
}
