package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	lrepo "github.com/matchpool/predictions-platform/internal/ledger/repo"
	prepo "github.com/matchpool/predictions-platform/internal/prediction/repo"
	"github.com/matchpool/predictions-platform/internal/settlement"
	"github.com/matchpool/predictions-platform/internal/shared/config"
	"github.com/matchpool/predictions-platform/internal/shared/db"
	"github.com/matchpool/predictions-platform/internal/shared/kafka"
	"github.com/matchpool/predictions-platform/internal/shared/logger"
	"github.com/matchpool/predictions-platform/internal/shared/metrics"
	ev "github.com/matchpool/predictions-platform/pkg/contracts/events"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Conexão com banco de dados Postgres para acerto das predictions
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg connect", zap.Error(err))
	}
	defer pg.Close()

	// Kafka consumer: consome eventos match_finished para disparar o settlement
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicMatchFinished, "settlement")
	defer reader.Close()

	// Kafka producer: publica o resumo prediction_settled e, opcionalmente, DLQ
	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPredictionSettled)
	defer settledWriter.Close()

	var dlqWriter *kafkago.Writer
	if cfg.TopicMatchFinishedDLQ != "" {
		dlqWriter = kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMatchFinishedDLQ)
		defer dlqWriter.Close()
	}

	// Métricas Prometheus para monitoramento do settlement
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_matches_consumed_total", Help: "eventos match_finished consumidos"})
	settled := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_predictions_settled_total", Help: "predictions resolvidas"})
	credited := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_predictions_won_total", Help: "predictions vencedoras creditadas"})
	failed := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_predictions_failed_total", Help: "predictions deixadas PENDING por falha"})
	prometheus.MustRegister(consumed, settled, credited, failed)

	// Engine de settlement: transação por prediction
	runner := db.NewRunner(pg)
	engine := settlement.NewEngine(log, runner, lrepo.NewPostgres(pg), prepo.NewPostgres(pg))

	// Servidor HTTP para métricas Prometheus e healthcheck
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})
	defer metricsSrv.Close()
	log.Info("metrics/health", zap.String("addr", metricsSrv.Addr))

	log.Info("settlement-worker started",
		zap.String("consume", cfg.TopicMatchFinished),
		zap.String("publish", cfg.TopicPredictionSettled),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Loop principal: consome match_finished, acerta a partida e publica resumo.
	// O offset só é commitado quando nenhuma prediction fica para trás; como o
	// acerto é idempotente, a reentrega reprocessa apenas o que continuou
	// PENDING.
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("settlement-worker stopped")
				return
			}
			log.Warn("kafka read", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		consumed.Inc()

		var fin ev.MatchFinished
		if jerr := json.Unmarshal(msg.Value, &fin); jerr != nil {
			log.Error("unmarshal match_finished", zap.Error(jerr))
			if dlqWriter != nil {
				_ = kafka.WriteJSON(ctx, dlqWriter, string(msg.Key), msg.Value)
			}
			// Mensagem envenenada não volta: vai pra DLQ e o offset avança
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		report, err := settleWithRetry(ctx, engine, &fin, settleAttempts, settleBackoff)
		if err != nil || report.Failed > 0 {
			log.Error("settle match incomplete",
				zap.String("matchId", fin.MatchID),
				zap.Int("failed", report.Failed),
				zap.Error(err),
			)
			failed.Add(float64(report.Failed))
			// Sem commit: a mensagem volta na próxima sessão do grupo e o
			// acerto retoma do que ficou PENDING
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if perr := publishSettled(ctx, settledWriter, report); perr != nil {
			// O acerto já commitou no banco; o resumo é best effort
			log.Warn("publish prediction_settled", zap.String("matchId", fin.MatchID), zap.Error(perr))
		}
		settled.Add(float64(report.Settled))
		credited.Add(float64(report.Won))
		_ = reader.CommitMessages(ctx, msg)
	}
}

const (
	settleAttempts = 3
	settleBackoff  = 500 * time.Millisecond
)

// settler é a superfície do engine consumida pelo loop do worker
type settler interface {
	SettleMatch(ctx context.Context, matchID string, homeScore, awayScore int) (*settlement.Report, error)
}

// settleWithRetry reexecuta o acerto até nenhuma prediction restar PENDING,
// acumulando os totais entre as passadas. Cada passada atua apenas no que a
// anterior deixou pendente, então repetir nunca credita duas vezes.
func settleWithRetry(ctx context.Context, eng settler, fin *ev.MatchFinished, attempts int, wait time.Duration) (*settlement.Report, error) {
	total := &settlement.Report{MatchID: fin.MatchID}
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		report, err := eng.SettleMatch(ctx, fin.MatchID, fin.HomeScore, fin.AwayScore)
		if err != nil {
			lastErr = err
		} else {
			total.Outcome = report.Outcome
			total.Settled += report.Settled
			total.Won += report.Won
			total.Lost += report.Lost
			total.Failed = report.Failed
			lastErr = nil
			if report.Failed == 0 {
				return total, nil
			}
		}

		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(wait):
		}
	}
	return total, lastErr
}

// publishSettled emite o resumo prediction_settled no Kafka
func publishSettled(ctx context.Context, w *kafkago.Writer, report *settlement.Report) error {
	evs := ev.PredictionSettled{
		MatchID: report.MatchID,
		Outcome: string(report.Outcome),
		Settled: report.Settled,
		Won:     report.Won,
		Lost:    report.Lost,
		Failed:  report.Failed,
		Ts:      time.Now().UTC(),
	}
	return kafka.WriteJSON(ctx, w, report.MatchID, mustJSON(evs))
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
