package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/api"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/config"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/db"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/dedupe"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/ethereum"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/metadata"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/metrics"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/pipeline"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/prices"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/pubsub"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/types"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/websocket"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a config file (yaml, toml or json)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.Dir != "" {
		if err := logger.EnableFileLogging(cfg.Logging.Dir); err != nil {
			log.Fatalf("Failed to enable file logging: %v", err)
		}
		defer logger.Close()
	}

	logger.Info("Swap tracker starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal("Swap tracker stopped: %v", err)
	}
	logger.Info("Swap tracker stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	client, err := ethereum.DialClient(cfg.Ethereum.RPCURL, nil)
	if err != nil {
		return err
	}
	ethService, err := ethereum.NewEthereumService(client, cfg.Ethereum.ChainlinkFeed)
	if err != nil {
		client.Close()
		return err
	}
	defer ethService.Close()

	maxValue, err := cfg.Pricing.MaxValueDecimal()
	if err != nil {
		return err
	}
	dbService, err := db.NewDBService(db.PostgresOperations{}, db.Config{
		Host:      cfg.Database.Host,
		Port:      cfg.Database.Port,
		User:      cfg.Database.User,
		Password:  cfg.Database.Password,
		Name:      cfg.Database.Name,
		SSLMode:   cfg.Database.SSLMode,
		BatchSize: cfg.Pipeline.BatchSize,
		MaxValue:  maxValue,
	})
	if err != nil {
		return err
	}
	defer dbService.Close()

	store, deduper, closeShared, err := sharedState(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeShared()

	decoder, err := ethereum.NewSwapDecoder()
	if err != nil {
		return err
	}

	oracle := prices.NewCoinGeckoClient(cfg.Oracle.BaseURL, cfg.Oracle.APIKey, cfg.Oracle.Timeout)
	anchor := prices.NewAnchorTracker(prices.FallbackAnchor{
		ethService,
		prices.OracleAnchor{Oracle: oracle, Token: cfg.Pricing.NativeToken},
	}, cfg.Pipeline.AnchorRefreshBlocks)

	wsManager := websocket.NewWebSocketManager()
	publishers := []pipeline.Publisher{wsManager}
	var broker api.Broker
	if cfg.NATS.URL != "" {
		natsPublisher, err := pubsub.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return err
		}
		defer natsPublisher.Close()
		publishers = append(publishers, natsPublisher)
		broker = natsPublisher
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	processor := pipeline.NewProcessor(pipeline.ProcessorDeps{
		Decoder:    decoder,
		Metadata:   metadata.NewCache(ethService, store, cfg.Metadata.CacheSize),
		Chain:      ethService,
		Anchor:     anchor,
		Prices:     prices.NewResolver(oracle, cfg.Pricing.NativeToken, cfg.Pricing.StableSet()),
		Persister:  dbService,
		Publishers: publishers,
		Metrics:    m,
	})
	batcher := pipeline.NewBatcher(processor, deduper, pipeline.BatcherConfig{
		QuietPeriod: cfg.Pipeline.QuietPeriod,
		MaxPending:  cfg.Pipeline.MaxPending,
		Metrics:     m,
	})

	router := api.SetupRouter(&api.Handler{
		Batcher: batcher,
		Store:   dbService,
		Anchor:  anchor,
		Filter:  decoder,
		Broker:  broker,
	}, wsManager, api.RouterConfig{
		WebhookEnabled: cfg.Webhook.Enabled,
		SigningKey:     cfg.Webhook.SigningKey,
		Metrics:        metrics.Handler(nil),
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsManager.Run(ctx)
		return nil
	})

	g.Go(func() error {
		return batcher.Run(ctx)
	})

	g.Go(func() error {
		logger.Info("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Subscription.Enabled {
		stream := ethereum.NewLogStream(func(ctx context.Context) (ethereum.LogSubscriber, error) {
			return ethereum.DialSubscriber(ctx, cfg.Ethereum.WSURL)
		}, cfg.Subscription.IdleTimeout)

		g.Go(func() error {
			return stream.Run(ctx, func(l types.RawSwapLog) {
				if err := batcher.Enqueue(ctx, l); err != nil && ctx.Err() == nil {
					logger.Warn("Failed to enqueue log %s: %v", l.Key(), err)
				}
			})
		})
	}

	err = g.Wait()
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sharedState picks Redis-backed metadata and dedupe stores when Redis is
// configured, and in-process ones otherwise.
func sharedState(ctx context.Context, cfg *config.Config) (metadata.Store, dedupe.Deduper, func(), error) {
	if cfg.Redis.Addr == "" {
		memory := dedupe.NewMemoryDedupe(cfg.Pipeline.DedupeTTL, cfg.Pipeline.DedupeTTL)
		return nil, memory, memory.Close, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	deduper, err := dedupe.NewRedisDedupe(rdb, cfg.Redis.Prefix+"dedupe:", cfg.Pipeline.DedupeTTL)
	if err != nil {
		rdb.Close()
		return nil, nil, nil, err
	}
	logger.Info("Using redis at %s for metadata and dedupe", cfg.Redis.Addr)
	return metadata.NewRedisStore(rdb, cfg.Redis.Prefix+"meta:"), deduper, func() { rdb.Close() }, nil
}
