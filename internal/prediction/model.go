package prediction

import (
	"time"

	"github.com/shopspring/decimal"
)

// Outcome é o resultado previsto para o mercado 1x2.
type Outcome string

const (
	OutcomeHome Outcome = "HOME"
	OutcomeDraw Outcome = "DRAW"
	OutcomeAway Outcome = "AWAY"
)

func (o Outcome) Valid() bool {
	return o == OutcomeHome || o == OutcomeDraw || o == OutcomeAway
}

// OutcomeFromScore determina o resultado da partida a partir do placar final.
func OutcomeFromScore(homeScore, awayScore int) Outcome {
	switch {
	case homeScore > awayScore:
		return OutcomeHome
	case homeScore < awayScore:
		return OutcomeAway
	default:
		return OutcomeDraw
	}
}

// Status do ciclo de vida de uma prediction.
// PENDING -> WON | LOST (terminal, apenas via settlement) | CANCELLED
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusWon       Status = "WON"
	StatusLost      Status = "LOST"
	StatusCancelled Status = "CANCELLED"
)

// Faixa aceita de valores de aposta, inclusive nos dois extremos.
var (
	StakeMin = decimal.New(1, -2)     // 0.01
	StakeMax = decimal.New(10000, 0)  // 10000.00
)

func ValidStake(stake decimal.Decimal) bool {
	return stake.GreaterThanOrEqual(StakeMin) && stake.LessThanOrEqual(StakeMax)
}

// Winnings calcula o retorno potencial congelado no momento da aposta.
func Winnings(stake, odd decimal.Decimal) decimal.Decimal {
	return stake.Mul(odd).Round(2)
}

// Prediction é o modelo persistido no Postgres.
// Existe no máximo uma por (UserID, MatchID), garantida por índice único.
type Prediction struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	MatchID           string          `json:"match_id"`
	Outcome           Outcome         `json:"outcome"`
	StakeAmount       decimal.Decimal `json:"stake_amount"`
	OddValue          decimal.Decimal `json:"odd_value"`
	PotentialWinnings decimal.Decimal `json:"potential_winnings"`
	Status            Status          `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Stats agrega o desempenho de um usuário (rota de estatísticas).
type Stats struct {
	TotalPredictions   int             `json:"total_predictions"`
	WonPredictions     int             `json:"won_predictions"`
	LostPredictions    int             `json:"lost_predictions"`
	PendingPredictions int             `json:"pending_predictions"`
	TotalStaked        decimal.Decimal `json:"total_staked"`
	TotalWinnings      decimal.Decimal `json:"total_winnings"`
	WinRate            float64         `json:"win_rate"`
	ProfitLoss         decimal.Decimal `json:"profit_loss"`
}
