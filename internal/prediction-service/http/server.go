package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	fcache "github.com/matchpool/predictions-platform/internal/fixture/cache"
	frepo "github.com/matchpool/predictions-platform/internal/fixture/repo"
	"github.com/matchpool/predictions-platform/internal/placement"
	"github.com/matchpool/predictions-platform/internal/prediction"
	"github.com/matchpool/predictions-platform/internal/prediction-service/dto"
	"github.com/matchpool/predictions-platform/pkg/contracts/events"
)

// PredictionService é a superfície do domínio consumida pelos handlers
type PredictionService interface {
	PlaceStake(ctx context.Context, userID, matchID string, outcome prediction.Outcome, stake decimal.Decimal) (*prediction.Prediction, error)
	Deposit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	PredictionForMatch(ctx context.Context, userID, matchID string) (*prediction.Prediction, error)
	ListPredictions(ctx context.Context, userID string, status prediction.Status, limit, offset int) ([]prediction.Prediction, error)
	Stats(ctx context.Context, userID string) (*prediction.Stats, error)
	ListScheduledMatches(ctx context.Context, limit int) ([]frepo.Match, error)
}

// MatchReader lê a partida no Postgres quando o cache de odds falha
type MatchReader interface {
	Get(ctx context.Context, matchID string) (*frepo.Match, error)
}

// WSHandler atende o feed de odds ao vivo
type WSHandler interface {
	HandleWS(w http.ResponseWriter, r *http.Request)
}

type Server struct {
	log     *zap.Logger
	svc     PredictionService
	matches MatchReader
	cache   *fcache.RedisCache
	hub     WSHandler
}

func NewServer(log *zap.Logger, svc PredictionService, matches MatchReader, cache *fcache.RedisCache, hub WSHandler) *Server {
	return &Server{log: log, svc: svc, matches: matches, cache: cache, hub: hub}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/predictions", s.placePrediction)
	r.Get("/v1/users/{userId}/balance", s.getBalance)
	r.Post("/v1/users/{userId}/deposit", s.deposit)
	r.Get("/v1/users/{userId}/predictions", s.listPredictions)
	r.Get("/v1/users/{userId}/predictions/stats", s.getStats)
	r.Get("/v1/users/{userId}/matches/{matchId}/prediction", s.getPredictionForMatch)
	r.Get("/v1/matches", s.listMatches)
	r.Get("/v1/matches/{id}/odds", s.getOdds)
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}
	return r
}

func (s *Server) placePrediction(w http.ResponseWriter, r *http.Request) {
	var req dto.PlacePredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json", Code: "BAD_REQUEST"})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: "BAD_REQUEST"})
		return
	}

	pr, err := s.svc.PlaceStake(r.Context(), req.UserID, req.MatchID, prediction.Outcome(req.Outcome), req.StakeAmount)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.PlacePredictionResponse{
		Message:    "Prediction created successfully",
		Prediction: pr,
	})
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	bal, err := s.svc.GetBalance(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{UserID: userID, Balance: bal})
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json", Code: "BAD_REQUEST"})
		return
	}

	newBalance, err := s.svc.Deposit(r.Context(), userID, req.Amount)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.DepositResponse{Message: "Funds added successfully", NewBalance: newBalance})
}

func (s *Server) listPredictions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	status := prediction.Status(r.URL.Query().Get("status"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	preds, err := s.svc.ListPredictions(r.Context(), userID, status, limit, offset)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if preds == nil {
		preds = []prediction.Prediction{}
	}
	writeJSON(w, http.StatusOK, dto.PredictionListResponse{Predictions: preds, Limit: limit, Offset: offset})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	stats, err := s.svc.Stats(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.StatsResponse{Stats: stats})
}

func (s *Server) getPredictionForMatch(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	matchID := chi.URLParam(r, "matchId")
	pr, err := s.svc.PredictionForMatch(r.Context(), userID, matchID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

func (s *Server) listMatches(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	matches, err := s.svc.ListScheduledMatches(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]dto.MatchResponse, 0, len(matches))
	for i := range matches {
		out = append(out, toMatchResponse(&matches[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// getOdds serve as odds correntes: cache Redis primeiro, Postgres como
// fallback com re-cache
func (s *Server) getOdds(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "id")

	if cached, ok, err := s.cache.GetCurrent(r.Context(), matchID); err == nil && ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	m, err := s.matches.Get(r.Context(), matchID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	ev := toFixtureUpdate(m)
	_ = s.cache.SetCurrent(r.Context(), ev)
	writeJSON(w, http.StatusOK, ev)
}

// writeDomainError mapeia a taxonomia de erros do domínio para HTTP.
// Códigos distintos permitem ao front dar orientação específica.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	if dup, ok := prediction.IsDuplicate(err); ok {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{
			Error:                "You already have a prediction for this match",
			Code:                 "DUPLICATE_PREDICTION",
			ExistingPredictionID: dup.ExistingID,
		})
		return
	}

	switch {
	case errors.Is(err, prediction.ErrInvalidStake):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: "INVALID_STAKE"})
	case errors.Is(err, placement.ErrInvalidDeposit):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: "INVALID_DEPOSIT"})
	case errors.Is(err, prediction.ErrMatchNotBettable):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Match not available for betting", Code: "MATCH_NOT_BETTABLE"})
	case errors.Is(err, prediction.ErrInsufficientBalance):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Insufficient balance", Code: "INSUFFICIENT_BALANCE"})
	case errors.Is(err, prediction.ErrOddsUnavailable):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Odds not available for this prediction type", Code: "ODDS_UNAVAILABLE"})
	case errors.Is(err, prediction.ErrNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "not found", Code: "NOT_FOUND"})
	default:
		s.log.Error("internal error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error", Code: "INTERNAL"})
	}
}

func toMatchResponse(m *frepo.Match) dto.MatchResponse {
	out := dto.MatchResponse{
		MatchID:   m.ID,
		HomeTeam:  m.HomeTeam,
		AwayTeam:  m.AwayTeam,
		Status:    m.Status,
		KickoffAt: m.KickoffAt.UTC().Format(time.RFC3339),
	}
	out.OddsHome = nullDecimalPtr(m.OddsHome)
	out.OddsDraw = nullDecimalPtr(m.OddsDraw)
	out.OddsAway = nullDecimalPtr(m.OddsAway)
	return out
}

func toFixtureUpdate(m *frepo.Match) events.FixtureUpdate {
	ev := events.FixtureUpdate{
		MatchID:   m.ID,
		HomeTeam:  m.HomeTeam,
		AwayTeam:  m.AwayTeam,
		Status:    m.Status,
		KickoffAt: m.KickoffAt,
		UpdatedAt: m.UpdatedAt,
		Version:   m.Version,
		Source:    "postgres",
	}
	ev.Odds.Home = nullDecimalPtr(m.OddsHome)
	ev.Odds.Draw = nullDecimalPtr(m.OddsDraw)
	ev.Odds.Away = nullDecimalPtr(m.OddsAway)
	if m.HomeScore.Valid && m.AwayScore.Valid {
		ev.Score = &events.MatchScore{Home: int(m.HomeScore.Int64), Away: int(m.AwayScore.Int64)}
	}
	return ev
}

func nullDecimalPtr(nd decimal.NullDecimal) *float64 {
	if !nd.Valid {
		return nil
	}
	f, _ := nd.Decimal.Float64()
	return &f
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
