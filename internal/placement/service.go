package placement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	frepo "github.com/matchpool/predictions-platform/internal/fixture/repo"
	"github.com/matchpool/predictions-platform/internal/prediction"
	"github.com/matchpool/predictions-platform/internal/shared/db"
	"github.com/matchpool/predictions-platform/pkg/contracts/events"
)

// Faixa aceita para depósitos (add funds), inclusive nos extremos.
var (
	DepositMin = decimal.New(1, 0)
	DepositMax = decimal.New(10000, 0)
)

// ErrInvalidDeposit indica valor de depósito fora da faixa aceita.
var ErrInvalidDeposit = errors.New("deposit amount out of accepted range")

// TxRunner abre a transação que amarra débito e insert num commit único
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(tx db.DBTX) error) error
}

// Ledger define as operações de saldo usadas pelo placement
type Ledger interface {
	GetOrCreateAccount(ctx context.Context, userID string) (decimal.Decimal, error)
	Balance(ctx context.Context, q db.DBTX, userID string) (decimal.Decimal, error)
	Adjust(ctx context.Context, q db.DBTX, userID string, delta decimal.Decimal, enforceFloor bool, reason, relatedID string) (decimal.Decimal, error)
}

// Predictions define as operações de persistência de predictions usadas aqui
type Predictions interface {
	InsertPending(ctx context.Context, q db.DBTX, pr *prediction.Prediction) (*prediction.Prediction, error)
	FindByUserAndMatch(ctx context.Context, q db.DBTX, userID, matchID string) (*prediction.Prediction, error)
	ListByUser(ctx context.Context, userID string, status prediction.Status, limit, offset int) ([]prediction.Prediction, error)
	StatsByUser(ctx context.Context, userID string) (*prediction.Stats, error)
}

// Fixtures é a visão read-only das partidas consumida pelo placement
type Fixtures interface {
	Snapshot(ctx context.Context, q db.DBTX, matchID string) (*frepo.Match, error)
	ListScheduled(ctx context.Context, limit int) ([]frepo.Match, error)
}

// Publisher emite o evento prediction_placed após o commit
type Publisher interface {
	PublishPredictionPlaced(ctx context.Context, ev events.PredictionPlaced) error
}

// Service orquestra a criação de predictions: validações, débito do saldo e
// insert da prediction como uma única unidade atômica.
type Service struct {
	log      *zap.Logger
	runner   TxRunner
	dbh      db.DBTX // leituras fora de transação
	ledger   Ledger
	preds    Predictions
	fixtures Fixtures
	publ     Publisher
}

func NewService(log *zap.Logger, runner TxRunner, dbh db.DBTX, l Ledger, p Predictions, f Fixtures, publ Publisher) *Service {
	return &Service{log: log, runner: runner, dbh: dbh, ledger: l, preds: p, fixtures: f, publ: publ}
}

// PlaceStake cria uma prediction PENDING debitando o stake do saldo do
// usuário. Todas as pré-condições são verificadas dentro de uma única
// transação; qualquer falha desfaz todos os efeitos parciais.
//
// Ordem das verificações:
//  1. faixa do stake
//  2. partida agendada com kickoff futuro
//  3. inexistência de prediction para (user, match)
//  4. saldo suficiente
//  5. odd disponível para o resultado pedido
func (s *Service) PlaceStake(ctx context.Context, userID, matchID string, outcome prediction.Outcome, stake decimal.Decimal) (*prediction.Prediction, error) {
	if !prediction.ValidStake(stake) {
		return nil, prediction.ErrInvalidStake
	}

	var created *prediction.Prediction
	err := s.runner.WithinTx(ctx, func(tx db.DBTX) error {
		m, err := s.fixtures.Snapshot(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if !m.Wagerable(time.Now()) {
			return prediction.ErrMatchNotBettable
		}

		// Fast path de duplicidade: erro mais informativo sem forçar a
		// violação do índice. A garantia real continua sendo o índice único.
		existing, err := s.preds.FindByUserAndMatch(ctx, tx, userID, matchID)
		if err == nil {
			return &prediction.DuplicateError{ExistingID: existing.ID}
		}
		if !errors.Is(err, prediction.ErrNotFound) {
			return err
		}

		balance, err := s.ledger.Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if balance.LessThan(stake) {
			return prediction.ErrInsufficientBalance
		}

		odd, ok := m.OddFor(outcome)
		if !ok {
			return prediction.ErrOddsUnavailable
		}

		created, err = s.preds.InsertPending(ctx, tx, &prediction.Prediction{
			UserID:            userID,
			MatchID:           matchID,
			Outcome:           outcome,
			StakeAmount:       stake,
			OddValue:          odd,
			PotentialWinnings: prediction.Winnings(stake, odd),
		})
		if err != nil {
			return err
		}

		// Débito condicional na mesma transação do insert: ou ambos
		// commitam, ou nenhum. O floor check revalida o saldo sob lock.
		if _, err := s.ledger.Adjust(ctx, tx, userID, stake.Neg(), true, "stake:"+matchID, created.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		// Corrida perdida no índice único: a transação vencedora inseriu
		// entre o check e o insert. Recupera o id existente fora da
		// transação abortada.
		if dup, ok := prediction.IsDuplicate(err); ok && dup.ExistingID == "" {
			if existing, ferr := s.preds.FindByUserAndMatch(ctx, s.dbh, userID, matchID); ferr == nil {
				dup.ExistingID = existing.ID
			}
			return nil, dup
		}
		return nil, err
	}

	s.publishPlaced(ctx, created)
	return created, nil
}

// publishPlaced emite prediction_placed; falha de publicação não desfaz a
// aposta já commitada
func (s *Service) publishPlaced(ctx context.Context, pr *prediction.Prediction) {
	if s.publ == nil {
		return
	}
	ev := events.PredictionPlaced{
		PredictionID:      pr.ID,
		UserID:            pr.UserID,
		MatchID:           pr.MatchID,
		Outcome:           string(pr.Outcome),
		StakeAmount:       pr.StakeAmount.StringFixed(2),
		OddValue:          pr.OddValue.String(),
		PotentialWinnings: pr.PotentialWinnings.StringFixed(2),
	}
	if err := s.publ.PublishPredictionPlaced(ctx, ev); err != nil {
		s.log.Warn("publish prediction_placed failed", zap.String("predictionId", pr.ID), zap.Error(err))
	}
}

// Deposit adiciona saldo à conta do usuário, criando-a se necessário
func (s *Service) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.LessThan(DepositMin) || amount.GreaterThan(DepositMax) {
		return decimal.Zero, ErrInvalidDeposit
	}
	if _, err := s.ledger.GetOrCreateAccount(ctx, userID); err != nil {
		return decimal.Zero, fmt.Errorf("ensure account: %w", err)
	}

	var newBalance decimal.Decimal
	err := s.runner.WithinTx(ctx, func(tx db.DBTX) error {
		var err error
		newBalance, err = s.ledger.Adjust(ctx, tx, userID, amount, false, "deposit", "")
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return newBalance, nil
}

// GetBalance retorna o saldo do usuário, criando a conta zerada se não existir
func (s *Service) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return s.ledger.GetOrCreateAccount(ctx, userID)
}

// PredictionForMatch retorna a prediction do usuário para uma partida
func (s *Service) PredictionForMatch(ctx context.Context, userID, matchID string) (*prediction.Prediction, error) {
	return s.preds.FindByUserAndMatch(ctx, s.dbh, userID, matchID)
}

// ListPredictions lista as predictions do usuário com filtro opcional de status
func (s *Service) ListPredictions(ctx context.Context, userID string, status prediction.Status, limit, offset int) ([]prediction.Prediction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.preds.ListByUser(ctx, userID, status, limit, offset)
}

// Stats agrega o desempenho do usuário
func (s *Service) Stats(ctx context.Context, userID string) (*prediction.Stats, error) {
	return s.preds.StatsByUser(ctx, userID)
}

// ListScheduledMatches retorna as partidas ainda apostáveis
func (s *Service) ListScheduledMatches(ctx context.Context, limit int) ([]frepo.Match, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.fixtures.ListScheduled(ctx, limit)
}
