package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/matchpool/predictions-platform/internal/prediction"
	"github.com/matchpool/predictions-platform/internal/shared/db"
)

// Postgres implementa a persistência de predictions.
// A unicidade por (user_id, match_id) é garantida por índice único no banco;
// é ela, e não o check da aplicação, que impede aposta dupla sob concorrência.
type Postgres struct{ db *sql.DB }

// NewPostgres retorna uma instância do repositório de predictions
func NewPostgres(database *sql.DB) *Postgres { return &Postgres{db: database} }

const uniqueViolation = "23505"

// InsertPending insere uma nova prediction com status PENDING dentro da
// transação do chamador. Violação do índice único vira DuplicateError com
// id vazio: a transação já está abortada nesse ponto, então o id existente
// precisa ser recuperado fora dela.
func (p *Postgres) InsertPending(ctx context.Context, q db.DBTX, pr *prediction.Prediction) (*prediction.Prediction, error) {
	out := *pr
	out.ID = uuid.NewString()
	out.Status = prediction.StatusPending

	err := q.QueryRowContext(ctx, `
		INSERT INTO predictions (id, user_id, match_id, outcome, stake_amount, odd_value, potential_winnings, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'PENDING')
		RETURNING created_at`,
		out.ID, out.UserID, out.MatchID, out.Outcome, out.StakeAmount, out.OddValue, out.PotentialWinnings,
	).Scan(&out.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, &prediction.DuplicateError{}
		}
		return nil, fmt.Errorf("insert prediction: %w", err)
	}
	return &out, nil
}

// FindByUserAndMatch retorna a prediction do usuário para a partida, ou
// prediction.ErrNotFound
func (p *Postgres) FindByUserAndMatch(ctx context.Context, q db.DBTX, userID, matchID string) (*prediction.Prediction, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, user_id, match_id, outcome, stake_amount, odd_value, potential_winnings, status, created_at
		FROM predictions
		WHERE user_id=$1 AND match_id=$2`,
		userID, matchID,
	)
	return scanPrediction(row)
}

// ListPendingByMatch retorna todas as predictions PENDING de uma partida.
// É o filtro que torna o settlement reexecutável sem crédito duplo.
func (p *Postgres) ListPendingByMatch(ctx context.Context, matchID string) ([]prediction.Prediction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, match_id, outcome, stake_amount, odd_value, potential_winnings, status, created_at
		FROM predictions
		WHERE match_id=$1 AND status='PENDING'
		ORDER BY created_at`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending predictions: %w", err)
	}
	defer rows.Close()

	var out []prediction.Prediction
	for rows.Next() {
		pr, err := scanPredictionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pr)
	}
	return out, rows.Err()
}

// TransitionStatus muda o status apenas se o atual for o esperado.
// Retorna false quando nenhuma linha foi afetada (já transicionada).
func (p *Postgres) TransitionStatus(ctx context.Context, q db.DBTX, id string, expected, next prediction.Status) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE predictions SET status=$1 WHERE id=$2 AND status=$3`,
		next, id, expected,
	)
	if err != nil {
		return false, fmt.Errorf("transition prediction status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListByUser retorna as predictions do usuário, mais recentes primeiro,
// com filtro opcional por status
func (p *Postgres) ListByUser(ctx context.Context, userID string, status prediction.Status, limit, offset int) ([]prediction.Prediction, error) {
	query := `
		SELECT id, user_id, match_id, outcome, stake_amount, odd_value, potential_winnings, status, created_at
		FROM predictions
		WHERE user_id=$1`
	args := []any{userID}

	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status=$%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	var out []prediction.Prediction
	for rows.Next() {
		pr, err := scanPredictionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pr)
	}
	return out, rows.Err()
}

// StatsByUser agrega o desempenho do usuário em uma única query
func (p *Postgres) StatsByUser(ctx context.Context, userID string) (*prediction.Stats, error) {
	var s prediction.Stats
	err := p.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'WON'),
			COUNT(*) FILTER (WHERE status = 'LOST'),
			COUNT(*) FILTER (WHERE status = 'PENDING'),
			COALESCE(SUM(stake_amount), 0),
			COALESCE(SUM(potential_winnings) FILTER (WHERE status = 'WON'), 0)
		FROM predictions
		WHERE user_id=$1`,
		userID,
	).Scan(&s.TotalPredictions, &s.WonPredictions, &s.LostPredictions, &s.PendingPredictions, &s.TotalStaked, &s.TotalWinnings)
	if err != nil {
		return nil, fmt.Errorf("prediction stats: %w", err)
	}

	if settled := s.WonPredictions + s.LostPredictions; settled > 0 {
		s.WinRate = float64(s.WonPredictions) / float64(settled) * 100
	}
	s.ProfitLoss = s.TotalWinnings.Sub(s.TotalStaked)
	return &s, nil
}

func scanPrediction(row *sql.Row) (*prediction.Prediction, error) {
	var pr prediction.Prediction
	err := row.Scan(&pr.ID, &pr.UserID, &pr.MatchID, &pr.Outcome, &pr.StakeAmount, &pr.OddValue, &pr.PotentialWinnings, &pr.Status, &pr.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, prediction.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan prediction: %w", err)
	}
	return &pr, nil
}

func scanPredictionRows(rows *sql.Rows) (*prediction.Prediction, error) {
	var pr prediction.Prediction
	if err := rows.Scan(&pr.ID, &pr.UserID, &pr.MatchID, &pr.Outcome, &pr.StakeAmount, &pr.OddValue, &pr.PotentialWinnings, &pr.Status, &pr.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan prediction: %w", err)
	}
	return &pr, nil
}
