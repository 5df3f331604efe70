package topics

const (
	// Fixtures (feed externo)
	FixtureUpdates = "fixture_updates"
	MatchFinished  = "match_finished"

	// Predictions
	PredictionPlaced  = "prediction_placed"
	PredictionSettled = "prediction_settled"

	// DLQs
	MatchFinishedDLQ = "match_finished_dlq"
)
