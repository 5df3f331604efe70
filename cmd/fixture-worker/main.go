package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	fcache "github.com/matchpool/predictions-platform/internal/fixture/cache"
	"github.com/matchpool/predictions-platform/internal/fixture/consumer"
	"github.com/matchpool/predictions-platform/internal/fixture/pubsub"
	frepo "github.com/matchpool/predictions-platform/internal/fixture/repo"
	sharedcache "github.com/matchpool/predictions-platform/internal/shared/cache"
	"github.com/matchpool/predictions-platform/internal/shared/config"
	"github.com/matchpool/predictions-platform/internal/shared/db"
	"github.com/matchpool/predictions-platform/internal/shared/kafka"
	"github.com/matchpool/predictions-platform/internal/shared/logger"
	"github.com/matchpool/predictions-platform/internal/shared/metrics"
	"github.com/matchpool/predictions-platform/pkg/contracts/events"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Inicializa dependências: Postgres e Redis
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Cache Redis e repositório Postgres do read model de partidas
	ttl := 60 * time.Second
	rcache := fcache.NewRedisCache(redisClient, ttl)
	repo := frepo.NewPostgres(pg)

	// Consumer Kafka (consumer group fixture-worker)
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicFixtureUpdates, "fixture-worker")
	defer reader.Close()

	// Producer do evento match_finished que dispara o settlement
	finishedWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMatchFinished)
	defer finishedWriter.Close()

	// Métricas Prometheus para monitoramento do processamento
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "fixture_messages_consumed_total", Help: "mensagens consumidas"})
	cached := prometheus.NewCounter(prometheus.CounterOpts{Name: "fixture_cache_sets_total", Help: "sets no cache"})
	persist := prometheus.NewCounter(prometheus.CounterOpts{Name: "fixture_db_writes_total", Help: "upserts no banco"})
	finished := prometheus.NewCounter(prometheus.CounterOpts{Name: "fixture_matches_finished_total", Help: "partidas encerradas detectadas"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "fixture_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, cached, persist, finished, errorsBy)

	// Broadcaster para publicar atualizações de odds no Redis Pub/Sub (usado pelo ws do prediction-service)
	broadcaster := pubsub.NewRedisBroadcaster(redisClient)

	// Instancia o processor, conectando callbacks de métricas e broadcast
	proc := &consumer.Processor{
		Log:    log,
		Reader: reader,
		Repo:   repo,
		Cache:  rcache,

		PublishFinished: func(ctx context.Context, fin events.MatchFinished) error {
			b, _ := json.Marshal(fin)
			return kafka.WriteJSON(ctx, finishedWriter, fin.MatchID, b)
		},

		// Após persistir, envia o update para o WebSocket via Redis Pub/Sub
		OnAfterPersist: func(ev events.FixtureUpdate) {
			msg := pubsub.WSUpdate{MatchID: ev.MatchID, Payload: ev}
			b, _ := json.Marshal(msg)

			ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()

			if err := broadcaster.Publish(ctx, cfg.RedisPubSubChannel, b); err != nil {
				log.Warn("ws broadcast publish failed", zap.Error(err))
			}
		},

		OnConsumed: func() { consumed.Inc() },
		OnCached:   func() { cached.Inc() },
		OnPersist:  func() { persist.Inc() },
		OnFinished: func() { finished.Inc() },
		OnError:    func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	// Servidor HTTP para métricas e health check
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return redisClient.Ping(ctx).Err()
	})
	defer metricsSrv.Close()
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("fixture-worker started")
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}
	log.Info("fixture-worker stopped")
}
