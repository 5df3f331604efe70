package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/matchpool/predictions-platform/internal/prediction"
	"github.com/matchpool/predictions-platform/internal/shared/db"
	"github.com/matchpool/predictions-platform/pkg/contracts/events"
)

// Postgres implementa o read model de partidas (tabela matches)
type Postgres struct{ db *sql.DB }

func NewPostgres(database *sql.DB) *Postgres { return &Postgres{db: database} }

const matchColumns = `id, home_team, away_team, status, kickoff_at, odds_home, odds_draw, odds_away, home_score, away_score, version, updated_at`

// Snapshot lê a partida dentro da transação do chamador; é a leitura usada
// pelo placement para validar status, kickoff e odds de forma consistente.
func (p *Postgres) Snapshot(ctx context.Context, q db.DBTX, matchID string) (*Match, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id=$1`, matchID)
	return scanMatch(row)
}

// Get lê a partida fora de transação (read path HTTP)
func (p *Postgres) Get(ctx context.Context, matchID string) (*Match, error) {
	return p.Snapshot(ctx, p.db, matchID)
}

// ListScheduled retorna as partidas agendadas com kickoff futuro,
// ordenadas por horário
func (p *Postgres) ListScheduled(ctx context.Context, limit int) ([]Match, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+matchColumns+`
		FROM matches
		WHERE status='SCHEDULED' AND kickoff_at > NOW()
		ORDER BY kickoff_at
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list scheduled matches: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.HomeTeam, &m.AwayTeam, &m.Status, &m.KickoffAt,
			&m.OddsHome, &m.OddsDraw, &m.OddsAway, &m.HomeScore, &m.AwayScore, &m.Version, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Upsert insere ou atualiza a partida a partir de um FixtureUpdate e retorna
// o status anterior ("" quando a partida é nova). O status anterior permite ao
// fixture-worker detectar a transição para FINISHED exatamente uma vez.
func (p *Postgres) Upsert(ctx context.Context, e events.FixtureUpdate) (prevStatus string, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `SELECT status FROM matches WHERE id=$1 FOR UPDATE`, e.MatchID).Scan(&prevStatus)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("read previous status: %w", err)
	}

	var homeScore, awayScore *int
	if e.Score != nil {
		homeScore, awayScore = &e.Score.Home, &e.Score.Away
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO matches
		  (id, home_team, away_team, status, kickoff_at, odds_home, odds_draw, odds_away, home_score, away_score, version, updated_at)
		VALUES
		  ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
		  home_team  = EXCLUDED.home_team,
		  away_team  = EXCLUDED.away_team,
		  status     = EXCLUDED.status,
		  kickoff_at = EXCLUDED.kickoff_at,
		  odds_home  = EXCLUDED.odds_home,
		  odds_draw  = EXCLUDED.odds_draw,
		  odds_away  = EXCLUDED.odds_away,
		  home_score = EXCLUDED.home_score,
		  away_score = EXCLUDED.away_score,
		  version    = EXCLUDED.version,
		  updated_at = EXCLUDED.updated_at`,
		e.MatchID, e.HomeTeam, e.AwayTeam, e.Status, e.KickoffAt,
		e.Odds.Home, e.Odds.Draw, e.Odds.Away,
		homeScore, awayScore, e.Version, e.UpdatedAt,
	); err != nil {
		return "", fmt.Errorf("upsert match: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return prevStatus, nil
}

// FinalScore retorna o placar final de uma partida FINISHED
func (p *Postgres) FinalScore(ctx context.Context, matchID string) (home, away int, err error) {
	var m *Match
	if m, err = p.Get(ctx, matchID); err != nil {
		return 0, 0, err
	}
	if m.Status != StatusFinished || !m.HomeScore.Valid || !m.AwayScore.Valid {
		return 0, 0, prediction.ErrNotFound
	}
	return int(m.HomeScore.Int64), int(m.AwayScore.Int64), nil
}

func scanMatch(row *sql.Row) (*Match, error) {
	var m Match
	err := row.Scan(&m.ID, &m.HomeTeam, &m.AwayTeam, &m.Status, &m.KickoffAt,
		&m.OddsHome, &m.OddsDraw, &m.OddsAway, &m.HomeScore, &m.AwayScore, &m.Version, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, prediction.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan match: %w", err)
	}
	return &m, nil
}
