package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	fcache "github.com/matchpool/predictions-platform/internal/fixture/cache"
	frepo "github.com/matchpool/predictions-platform/internal/fixture/repo"
	lrepo "github.com/matchpool/predictions-platform/internal/ledger/repo"
	"github.com/matchpool/predictions-platform/internal/placement"
	phttp "github.com/matchpool/predictions-platform/internal/prediction-service/http"
	kpub "github.com/matchpool/predictions-platform/internal/prediction-service/producer"
	"github.com/matchpool/predictions-platform/internal/prediction-service/ws"
	prepo "github.com/matchpool/predictions-platform/internal/prediction/repo"
	"github.com/matchpool/predictions-platform/internal/shared/cache"
	"github.com/matchpool/predictions-platform/internal/shared/config"
	"github.com/matchpool/predictions-platform/internal/shared/db"
	"github.com/matchpool/predictions-platform/internal/shared/kafka"
	"github.com/matchpool/predictions-platform/internal/shared/logger"
	"github.com/matchpool/predictions-platform/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Postgres
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()

	// Redis
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Kafka writer (topic prediction_placed)
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPredictionPlaced)
	defer writer.Close()

	// deps
	runner := db.NewRunner(pg)
	ledgerRepo := lrepo.NewPostgres(pg)
	predRepo := prepo.NewPostgres(pg)
	fixtureRepo := frepo.NewPostgres(pg)
	oddsCache := fcache.NewRedisCache(redisClient, 30*time.Second)
	publ := kpub.NewKafkaPublisher(writer, cfg.TopicPredictionPlaced)

	svc := placement.NewService(log, runner, pg, ledgerRepo, predRepo, fixtureRepo, publ)

	// Feed de odds ao vivo: hub WS alimentado pelo Redis Pub/Sub; no
	// subscribe o cliente recebe o snapshot corrente do cache de odds
	hub := ws.NewHub(
		func(r *http.Request) bool { return true },
		func(ctx context.Context, matchID string) (any, bool) {
			ev, ok, err := oddsCache.GetCurrent(ctx, matchID)
			if err != nil || !ok {
				return nil, false
			}
			return ev, true
		},
	)
	wsCtx, wsCancel := context.WithCancel(context.Background())
	defer wsCancel()
	ws.StartRedisSubscriber(wsCtx, log, redisClient, cfg.RedisPubSubChannel, hub)

	// HTTP público
	api := phttp.NewServer(log, svc, fixtureRepo, oddsCache, hub)
	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.Router(),
	}

	// metrics/health
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return redisClient.Ping(ctx).Err()
	})
	defer metricsSrv.Close()
	log.Info("metrics/health", zap.String("addr", metricsSrv.Addr))

	log.Info("prediction-service listening", zap.String("addr", fmt.Sprintf(":%s", cfg.HTTPPort)))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
