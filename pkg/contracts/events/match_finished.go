package events

import "time"

// Evento emitido pelo fixture-worker quando uma partida transiciona para FINISHED.
// Dispara o acerto (settlement) das predictions pendentes da partida.
type MatchFinished struct {
	MatchID   string    `json:"match_id"`
	HomeScore int       `json:"home_score"`
	AwayScore int       `json:"away_score"`
	Ts        time.Time `json:"ts"`
}
