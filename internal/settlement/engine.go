package settlement

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/matchpool/predictions-platform/internal/prediction"
	"github.com/matchpool/predictions-platform/internal/shared/db"
)

// TxRunner abre a transação que amarra a mudança de status e o crédito
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(tx db.DBTX) error) error
}

// Ledger define a operação de crédito usada pelo settlement
type Ledger interface {
	Adjust(ctx context.Context, q db.DBTX, userID string, delta decimal.Decimal, enforceFloor bool, reason, relatedID string) (decimal.Decimal, error)
}

// Predictions define as operações de predictions usadas pelo settlement
type Predictions interface {
	ListPendingByMatch(ctx context.Context, matchID string) ([]prediction.Prediction, error)
	TransitionStatus(ctx context.Context, q db.DBTX, id string, expected, next prediction.Status) (bool, error)
}

// Report resume o acerto de uma partida.
type Report struct {
	MatchID string             `json:"match_id"`
	Outcome prediction.Outcome `json:"outcome"`
	Settled int                `json:"settled"`
	Won     int                `json:"won"`
	Lost    int                `json:"lost"`
	Failed  int                `json:"failed"`
}

// Engine resolve as predictions pendentes de partidas encerradas.
// Cada prediction é processada na própria transação: a transição
// PENDING->WON/LOST e o crédito do vencedor commitam juntos, e a falha de uma
// não desfaz nem bloqueia as demais.
type Engine struct {
	log    *zap.Logger
	runner TxRunner
	ledger Ledger
	preds  Predictions
}

func NewEngine(log *zap.Logger, runner TxRunner, l Ledger, p Predictions) *Engine {
	return &Engine{log: log, runner: runner, ledger: l, preds: p}
}

// SettleMatch resolve todas as predictions PENDING da partida a partir do
// placar final. Reexecutável com segurança: linhas já WON/LOST ficam fora do
// filtro PENDING e a transição condicional nunca credita duas vezes; linhas
// que falharem continuam PENDING para a próxima passada.
func (e *Engine) SettleMatch(ctx context.Context, matchID string, homeScore, awayScore int) (*Report, error) {
	outcome := prediction.OutcomeFromScore(homeScore, awayScore)
	report := &Report{MatchID: matchID, Outcome: outcome}

	pending, err := e.preds.ListPendingByMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("list pending predictions: %w", err)
	}

	for i := range pending {
		pr := pending[i]
		won := pr.Outcome == outcome

		var applied bool
		err := e.runner.WithinTx(ctx, func(tx db.DBTX) error {
			var serr error
			applied, serr = e.settleOne(ctx, tx, &pr, won, matchID)
			return serr
		})
		if err != nil {
			// Fica PENDING; a próxima invocação reprocessa só o restante
			e.log.Error("settle prediction failed",
				zap.String("predictionId", pr.ID),
				zap.String("matchId", matchID),
				zap.Error(err),
			)
			report.Failed++
			continue
		}
		if !applied {
			// Resolvida por outra passada entre o List e o Transition; quem
			// aplicou a transição é quem conta
			continue
		}

		report.Settled++
		if won {
			report.Won++
		} else {
			report.Lost++
		}
	}

	e.log.Info("match settled",
		zap.String("matchId", matchID),
		zap.String("outcome", string(outcome)),
		zap.Int("settled", report.Settled),
		zap.Int("won", report.Won),
		zap.Int("lost", report.Lost),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// settleOne transiciona uma prediction e credita o vencedor na mesma
// transação. A transição condicional em PENDING é o que impede crédito duplo
// quando duas passadas concorrem. Retorna applied=false quando a linha já
// tinha sido resolvida.
func (e *Engine) settleOne(ctx context.Context, tx db.DBTX, pr *prediction.Prediction, won bool, matchID string) (applied bool, err error) {
	next := prediction.StatusLost
	if won {
		next = prediction.StatusWon
	}

	ok, err := e.preds.TransitionStatus(ctx, tx, pr.ID, prediction.StatusPending, next)
	if err != nil {
		return false, err
	}
	if !ok {
		// Já resolvida por outra passada; nada a creditar
		return false, nil
	}

	if won {
		if _, err := e.ledger.Adjust(ctx, tx, pr.UserID, pr.PotentialWinnings, false, "winnings:"+matchID, pr.ID); err != nil {
			return false, err
		}
	}
	return true, nil
}
