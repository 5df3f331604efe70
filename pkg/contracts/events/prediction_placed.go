package events

type PredictionPlaced struct {
	PredictionID      string `json:"prediction_id"`
	UserID            string `json:"user_id"`
	MatchID           string `json:"match_id"`
	Outcome           string `json:"outcome"` // HOME | DRAW | AWAY
	StakeAmount       string `json:"stake_amount"`
	OddValue          string `json:"odd_value"` // odd congelada no momento da aposta
	PotentialWinnings string `json:"potential_winnings"`
	TsUnixMs          int64  `json:"ts_unix_ms"`
}
