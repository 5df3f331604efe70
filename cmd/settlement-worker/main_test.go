package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchpool/predictions-platform/internal/prediction"
	"github.com/matchpool/predictions-platform/internal/settlement"
	ev "github.com/matchpool/predictions-platform/pkg/contracts/events"
)

// scriptedSettler devolve um resultado pré-programado por chamada.
type scriptedSettler struct {
	calls   int
	reports []*settlement.Report
	errs    []error
}

func (s *scriptedSettler) SettleMatch(ctx context.Context, matchID string, homeScore, awayScore int) (*settlement.Report, error) {
	i := s.calls
	s.calls++
	return s.reports[i], s.errs[i]
}

func TestSettleWithRetry(t *testing.T) {
	ctx := context.Background()
	fin := &ev.MatchFinished{MatchID: "m1", HomeScore: 2, AwayScore: 1}

	t.Run("sucesso na primeira passada não reexecuta", func(t *testing.T) {
		eng := &scriptedSettler{
			reports: []*settlement.Report{{MatchID: "m1", Outcome: prediction.OutcomeHome, Settled: 3, Won: 1, Lost: 2}},
			errs:    []error{nil},
		}

		report, err := settleWithRetry(ctx, eng, fin, 3, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 1, eng.calls)
		assert.Equal(t, 3, report.Settled)
		assert.Zero(t, report.Failed)
	})

	t.Run("passada parcial é retomada e os totais acumulam", func(t *testing.T) {
		eng := &scriptedSettler{
			reports: []*settlement.Report{
				{MatchID: "m1", Outcome: prediction.OutcomeHome, Settled: 2, Won: 1, Lost: 1, Failed: 1},
				{MatchID: "m1", Outcome: prediction.OutcomeHome, Settled: 1, Won: 1, Lost: 0, Failed: 0},
			},
			errs: []error{nil, nil},
		}

		report, err := settleWithRetry(ctx, eng, fin, 3, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 2, eng.calls)
		assert.Equal(t, 3, report.Settled)
		assert.Equal(t, 2, report.Won)
		assert.Equal(t, 1, report.Lost)
		assert.Zero(t, report.Failed)
	})

	t.Run("erro transiente se recupera na passada seguinte", func(t *testing.T) {
		eng := &scriptedSettler{
			reports: []*settlement.Report{nil, {MatchID: "m1", Outcome: prediction.OutcomeHome, Settled: 2, Won: 1, Lost: 1}},
			errs:    []error{errors.New("pq: connection reset"), nil},
		}

		report, err := settleWithRetry(ctx, eng, fin, 3, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 2, eng.calls)
		assert.Equal(t, 2, report.Settled)
	})

	t.Run("falha persistente esgota as tentativas e retorna o erro", func(t *testing.T) {
		storeErr := errors.New("store unavailable")
		eng := &scriptedSettler{
			reports: []*settlement.Report{nil, nil, nil},
			errs:    []error{storeErr, storeErr, storeErr},
		}

		_, err := settleWithRetry(ctx, eng, fin, 3, time.Millisecond)
		assert.ErrorIs(t, err, storeErr)
		assert.Equal(t, 3, eng.calls)
	})

	t.Run("predictions que seguem falhando aparecem no relatório final", func(t *testing.T) {
		eng := &scriptedSettler{
			reports: []*settlement.Report{
				{MatchID: "m1", Outcome: prediction.OutcomeHome, Settled: 2, Won: 1, Lost: 1, Failed: 1},
				{MatchID: "m1", Outcome: prediction.OutcomeHome, Failed: 1},
				{MatchID: "m1", Outcome: prediction.OutcomeHome, Failed: 1},
			},
			errs: []error{nil, nil, nil},
		}

		report, err := settleWithRetry(ctx, eng, fin, 3, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Failed, "caller decide não commitar o offset")
		assert.Equal(t, 2, report.Settled)
	})

	t.Run("contexto cancelado interrompe a espera", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		eng := &scriptedSettler{
			reports: []*settlement.Report{{MatchID: "m1", Failed: 1}},
			errs:    []error{nil},
		}

		_, err := settleWithRetry(cctx, eng, fin, 3, time.Minute)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, eng.calls)
	})
}
