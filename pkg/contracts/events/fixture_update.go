package events

import "time"

// Odds do mercado 1x2 de uma partida. Campos ausentes = mercado fechado.
type MatchOdds struct {
	Home *float64 `json:"home,omitempty"`
	Draw *float64 `json:"draw,omitempty"`
	Away *float64 `json:"away,omitempty"`
}

// Placar de tempo integral, presente apenas quando a partida termina.
type MatchScore struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// Evento publicado no tópico "fixture_updates" pelo feed externo de partidas.
type FixtureUpdate struct {
	MatchID   string      `json:"match_id"`
	HomeTeam  string      `json:"home_team"`
	AwayTeam  string      `json:"away_team"`
	Status    string      `json:"status"` // SCHEDULED | IN_PLAY | PAUSED | FINISHED | POSTPONED | CANCELLED
	KickoffAt time.Time   `json:"kickoff_at"`
	Odds      MatchOdds   `json:"odds"`
	Score     *MatchScore `json:"score,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
	Source    string      `json:"source"`
	Version   int         `json:"version"` // incrementado a cada atualização
}
