package repo

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/matchpool/predictions-platform/internal/prediction"
)

// Status de uma partida conforme reportado pelo feed externo.
const (
	StatusScheduled = "SCHEDULED"
	StatusInPlay    = "IN_PLAY"
	StatusPaused    = "PAUSED"
	StatusFinished  = "FINISHED"
	StatusPostponed = "POSTPONED"
	StatusCancelled = "CANCELLED"
)

// Match é o read model de uma partida, alimentado pelo fixture-worker.
type Match struct {
	ID        string
	HomeTeam  string
	AwayTeam  string
	Status    string
	KickoffAt time.Time
	OddsHome  decimal.NullDecimal
	OddsDraw  decimal.NullDecimal
	OddsAway  decimal.NullDecimal
	HomeScore sql.NullInt64
	AwayScore sql.NullInt64
	Version   int
	UpdatedAt time.Time
}

// Wagerable indica se a partida ainda aceita predictions:
// agendada e com kickoff no futuro.
func (m *Match) Wagerable(now time.Time) bool {
	return m.Status == StatusScheduled && m.KickoffAt.After(now)
}

// OddFor retorna a odd do resultado pedido; ok=false quando ausente ou <= 0.
func (m *Match) OddFor(outcome prediction.Outcome) (decimal.Decimal, bool) {
	var nd decimal.NullDecimal
	switch outcome {
	case prediction.OutcomeHome:
		nd = m.OddsHome
	case prediction.OutcomeDraw:
		nd = m.OddsDraw
	case prediction.OutcomeAway:
		nd = m.OddsAway
	}
	if !nd.Valid || !nd.Decimal.IsPositive() {
		return decimal.Decimal{}, false
	}
	return nd.Decimal, true
}
