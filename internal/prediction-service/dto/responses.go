package dto

import (
	"github.com/shopspring/decimal"

	"github.com/matchpool/predictions-platform/internal/prediction"
)

type PlacePredictionResponse struct {
	Message    string                 `json:"message"`
	Prediction *prediction.Prediction `json:"prediction"`
}

type BalanceResponse struct {
	UserID  string          `json:"userId"`
	Balance decimal.Decimal `json:"balance"`
}

type DepositResponse struct {
	Message    string          `json:"message"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

type PredictionListResponse struct {
	Predictions []prediction.Prediction `json:"predictions"`
	Limit       int                     `json:"limit"`
	Offset      int                     `json:"offset"`
}

type StatsResponse struct {
	Stats *prediction.Stats `json:"stats"`
}

type MatchResponse struct {
	MatchID   string   `json:"matchId"`
	HomeTeam  string   `json:"home_team"`
	AwayTeam  string   `json:"away_team"`
	Status    string   `json:"status"`
	KickoffAt string   `json:"kickoff_at"`
	OddsHome  *float64 `json:"odds_home,omitempty"`
	OddsDraw  *float64 `json:"odds_draw,omitempty"`
	OddsAway  *float64 `json:"odds_away,omitempty"`
}

type ErrorResponse struct {
	Error                string `json:"error"`
	Code                 string `json:"code"`
	ExistingPredictionID string `json:"existing_prediction_id,omitempty"`
}
