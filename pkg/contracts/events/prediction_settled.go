package events

import "time"

// Evento emitido pelo settlement-worker após processar uma partida encerrada.
type PredictionSettled struct {
	MatchID string    `json:"match_id"`
	Outcome string    `json:"outcome"` // HOME | DRAW | AWAY
	Settled int       `json:"settled"`
	Won     int       `json:"won"`
	Lost    int       `json:"lost"`
	Failed  int       `json:"failed"` // pendentes deixadas para a próxima passada
	Ts      time.Time `json:"ts"`
}
