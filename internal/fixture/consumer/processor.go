package consumer

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/matchpool/predictions-platform/internal/fixture/cache"
	"github.com/matchpool/predictions-platform/internal/fixture/repo"
	"github.com/matchpool/predictions-platform/internal/shared/kafka"
	"github.com/matchpool/predictions-platform/pkg/contracts/events"
)

// Processor consome atualizações de partidas do Kafka, atualiza o read model
// e o cache de odds, e emite match_finished quando a partida encerra.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa
type Processor struct {
	Log    *zap.Logger
	Reader *kafkago.Reader
	Repo   *repo.Postgres
	Cache  *cache.RedisCache

	// Publica match_finished quando o status transiciona para FINISHED
	PublishFinished func(ctx context.Context, ev events.MatchFinished) error

	// Broadcast do update para o canal do WebSocket (best effort)
	OnAfterPersist func(ev events.FixtureUpdate)

	OnConsumed func()       // métricas (counter++)
	OnCached   func()       // métricas
	OnPersist  func()       // métricas
	OnFinished func()       // métricas: partidas encerradas detectadas
	OnError    func(string) // métricas por fase
}

// Run inicia o loop principal de consumo e processamento das mensagens Kafka
func (p *Processor) Run(ctx context.Context) error {
	for {
		_, value, err := kafka.ReadNext(ctx, p.Reader)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			if p.OnError != nil {
				p.OnError("read")
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		var ev events.FixtureUpdate
		if err := json.Unmarshal(value, &ev); err != nil {
			p.Log.Warn("invalid message", zap.Error(err))
			if p.OnError != nil {
				p.OnError("decode")
			}
			continue
		}

		// Atualiza o cache Redis com a versão mais recente da partida
		if err := p.Cache.SetCurrent(ctx, ev); err != nil {
			p.Log.Warn("redis set failed", zap.Error(err))
			if p.OnError != nil {
				p.OnError("cache")
			}
			// não bloqueia persistência se falhar o cache
		} else if p.OnCached != nil {
			p.OnCached()
		}

		// Persiste a partida e captura o status anterior
		prevStatus, err := p.Repo.Upsert(ctx, ev)
		if err != nil {
			p.Log.Warn("db upsert failed", zap.Error(err))
			if p.OnError != nil {
				p.OnError("db_upsert")
			}
			continue
		}
		if p.OnPersist != nil {
			p.OnPersist()
		}

		if p.OnAfterPersist != nil {
			p.OnAfterPersist(ev)
		}

		// Transição para FINISHED com placar presente dispara o settlement.
		// Reentregas do mesmo update não reemitem: prevStatus já é FINISHED.
		if ev.Status == repo.StatusFinished && prevStatus != repo.StatusFinished && ev.Score != nil {
			fin := events.MatchFinished{
				MatchID:   ev.MatchID,
				HomeScore: ev.Score.Home,
				AwayScore: ev.Score.Away,
				Ts:        time.Now().UTC(),
			}
			// O Upsert já commitou a transição, então nenhum update futuro
			// reemite este evento: sem ele a partida nunca seria acertada.
			// Insiste na publicação antes de desistir.
			err := retryPublish(ctx, finishedPublishAttempts, finishedPublishBackoff, func(ctx context.Context) error {
				return p.PublishFinished(ctx, fin)
			})
			if err != nil {
				p.Log.Error("publish match_finished failed", zap.String("matchId", ev.MatchID), zap.Error(err))
				if p.OnError != nil {
					p.OnError("publish_finished")
				}
				continue
			}
			if p.OnFinished != nil {
				p.OnFinished()
			}
			p.Log.Info("match finished",
				zap.String("matchId", ev.MatchID),
				zap.Int("home", ev.Score.Home),
				zap.Int("away", ev.Score.Away),
			)
		}
	}
}

const (
	finishedPublishAttempts = 5
	finishedPublishBackoff  = 200 * time.Millisecond
)

// retryPublish tenta a publicação com backoff fixo até esgotar as tentativas
// ou o contexto ser cancelado.
func retryPublish(ctx context.Context, attempts int, wait time.Duration, publish func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = publish(ctx); err == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}
