package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/matchpool/predictions-platform/internal/shared/config"
	"github.com/matchpool/predictions-platform/internal/shared/kafka"
	"github.com/matchpool/predictions-platform/internal/shared/logger"
	"github.com/matchpool/predictions-platform/pkg/contracts/events"
)

// Catálogo fixo de partidas simuladas para geração de fixtures
var matchCatalog = []events.FixtureUpdate{
	{MatchID: "MATCH_001", HomeTeam: "Flamengo", AwayTeam: "Palmeiras"},
	{MatchID: "MATCH_002", HomeTeam: "Grêmio", AwayTeam: "Internacional"},
	{MatchID: "MATCH_003", HomeTeam: "Corinthians", AwayTeam: "Santos"},
	{MatchID: "MATCH_004", HomeTeam: "São Paulo", AwayTeam: "Vasco"},
	{MatchID: "MATCH_005", HomeTeam: "Cruzeiro", AwayTeam: "Atlético-MG"},
	{MatchID: "MATCH_006", HomeTeam: "Botafogo", AwayTeam: "Fluminense"},
}

// Métricas Prometheus para monitoramento da simulação
var (
	updatesPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulator_fixture_updates_published_total",
		Help: "Total de fixture_updates publicados",
	})
	matchesFinished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulator_matches_finished_total",
		Help: "Partidas encerradas pela simulação",
	})
)

// simMatch acompanha o ciclo de vida de uma partida simulada
// SCHEDULED -> IN_PLAY -> FINISHED
type simMatch struct {
	fixture  events.FixtureUpdate
	kickoff  time.Time
	duration time.Duration
	version  int
	done     bool
}

// gera número aleatório entre min e max
func rnd(min, max float64) float64 {
	return (rand.Float64() * (max - min)) + min
}

// tick avança o estado da partida e devolve o próximo update a publicar
func (m *simMatch) tick(now time.Time, source string) *events.FixtureUpdate {
	if m.done {
		return nil
	}

	m.version++
	up := m.fixture
	up.KickoffAt = m.kickoff
	up.UpdatedAt = now.UTC()
	up.Source = source
	up.Version = m.version

	switch {
	case now.Before(m.kickoff):
		// Odds placeholder com drift aleatório enquanto a partida aceita apostas
		home, draw, away := rnd(1.40, 3.50), rnd(2.50, 4.50), rnd(2.00, 5.00)
		up.Status = "SCHEDULED"
		up.Odds = events.MatchOdds{Home: &home, Draw: &draw, Away: &away}
	case now.Before(m.kickoff.Add(m.duration)):
		// Mercado fechado durante o jogo
		up.Status = "IN_PLAY"
	default:
		up.Status = "FINISHED"
		up.Score = &events.MatchScore{Home: rand.Intn(5), Away: rand.Intn(5)}
		m.done = true
		matchesFinished.Inc()
	}
	return &up
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	prometheus.MustRegister(updatesPublished, matchesFinished)

	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicFixtureUpdates)
	defer writer.Close()

	// Partidas com kickoffs escalonados a partir do start do simulador
	now := time.Now()
	sims := make([]*simMatch, len(matchCatalog))
	for i := range matchCatalog {
		sims[i] = &simMatch{
			fixture:  matchCatalog[i],
			kickoff:  now.Add(time.Duration(2+i) * time.Minute),
			duration: 90 * time.Second,
		}
	}

	// Servidor de métricas (/healthz, /metrics)
	metricsMux := http.NewServeMux()
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsMux.Handle("/metrics", promhttp.Handler())

	go func() {
		metricsAddr := fmt.Sprintf(":%s", cfg.MetricsPort)
		log.Info("fixture simulator (metrics) running",
			zap.String("addr", metricsAddr),
			zap.String("paths", "/healthz,/metrics"),
		)
		if err := http.ListenAndServe(metricsAddr, metricsMux); err != nil {
			log.Fatal("metrics server error", zap.Error(err))
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("fixture simulator running",
		zap.String("topic", cfg.TopicFixtureUpdates),
		zap.Int("matches", len(sims)),
	)

	// Publica o estado de cada partida a cada 3 segundos até todas encerrarem
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("fixture simulator stopped")
			return
		case <-ticker.C:
			tickNow := time.Now()
			for _, sm := range sims {
				up := sm.tick(tickNow, cfg.ServiceName)
				if up == nil {
					continue
				}
				b, _ := json.Marshal(up)
				if err := kafka.WriteJSON(ctx, writer, up.MatchID, b); err != nil {
					log.Warn("publish fixture_update failed", zap.String("matchId", up.MatchID), zap.Error(err))
					continue
				}
				updatesPublished.Inc()
			}
		}
	}
}
