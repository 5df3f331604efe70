package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matchpool/predictions-platform/internal/prediction"
	"github.com/matchpool/predictions-platform/internal/shared/db"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeStore emula predictions e saldos em memória com rollback por transação,
// honrando a transição condicional de status e o filtro PENDING.
type fakeStore struct {
	preds    map[string]*prediction.Prediction
	balances map[string]decimal.Decimal

	creditErr map[string]error // falha transiente por usuário
	credits   int              // total de Adjust bem-sucedidos

	// resolveAfterList simula um settler concorrente resolvendo as
	// predictions entre o List e o Transition
	resolveAfterList bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		preds:     map[string]*prediction.Prediction{},
		balances:  map[string]decimal.Decimal{},
		creditErr: map[string]error{},
	}
}

func (f *fakeStore) add(id, userID, matchID string, outcome prediction.Outcome, stake, winnings string) {
	f.preds[id] = &prediction.Prediction{
		ID:                id,
		UserID:            userID,
		MatchID:           matchID,
		Outcome:           outcome,
		StakeAmount:       dec(stake),
		PotentialWinnings: dec(winnings),
		Status:            prediction.StatusPending,
	}
}

func (f *fakeStore) WithinTx(ctx context.Context, fn func(tx db.DBTX) error) error {
	balSnap := make(map[string]decimal.Decimal, len(f.balances))
	for k, v := range f.balances {
		balSnap[k] = v
	}
	predSnap := make(map[string]prediction.Prediction, len(f.preds))
	for k, v := range f.preds {
		predSnap[k] = *v
	}

	if err := fn(nil); err != nil {
		f.balances = balSnap
		for k, v := range predSnap {
			cp := v
			f.preds[k] = &cp
		}
		return err
	}
	return nil
}

func (f *fakeStore) ListPendingByMatch(ctx context.Context, matchID string) ([]prediction.Prediction, error) {
	var out []prediction.Prediction
	for _, pr := range f.preds {
		if pr.MatchID == matchID && pr.Status == prediction.StatusPending {
			out = append(out, *pr)
			if f.resolveAfterList {
				pr.Status = prediction.StatusWon
			}
		}
	}
	return out, nil
}

func (f *fakeStore) TransitionStatus(ctx context.Context, q db.DBTX, id string, expected, next prediction.Status) (bool, error) {
	pr, ok := f.preds[id]
	if !ok || pr.Status != expected {
		return false, nil
	}
	pr.Status = next
	return true, nil
}

func (f *fakeStore) Adjust(ctx context.Context, q db.DBTX, userID string, delta decimal.Decimal, enforceFloor bool, reason, relatedID string) (decimal.Decimal, error) {
	if err := f.creditErr[userID]; err != nil {
		return decimal.Zero, err
	}
	next := f.balances[userID].Add(delta)
	f.balances[userID] = next
	f.credits++
	return next, nil
}

func newTestEngine(store *fakeStore) *Engine {
	return NewEngine(zap.NewNop(), store, store, store)
}

func TestSettleMatch(t *testing.T) {
	ctx := context.Background()

	t.Run("credita vencedores e marca perdedores", func(t *testing.T) {
		store := newFakeStore()
		store.balances["alice"] = dec("80.00")
		store.balances["bob"] = dec("40.00")
		store.add("p1", "alice", "m1", prediction.OutcomeHome, "20.00", "50.00")
		store.add("p2", "bob", "m1", prediction.OutcomeAway, "10.00", "28.00")
		eng := newTestEngine(store)

		rep, err := eng.SettleMatch(ctx, "m1", 2, 1)
		require.NoError(t, err)

		assert.Equal(t, prediction.OutcomeHome, rep.Outcome)
		assert.Equal(t, 2, rep.Settled)
		assert.Equal(t, 1, rep.Won)
		assert.Equal(t, 1, rep.Lost)
		assert.Zero(t, rep.Failed)

		assert.Equal(t, prediction.StatusWon, store.preds["p1"].Status)
		assert.Equal(t, prediction.StatusLost, store.preds["p2"].Status)
		assert.True(t, store.balances["alice"].Equal(dec("130.00")), "got %s", store.balances["alice"])
		assert.True(t, store.balances["bob"].Equal(dec("40.00")), "perdedor não recebe crédito")
	})

	t.Run("empate resolve como DRAW", func(t *testing.T) {
		store := newFakeStore()
		store.add("p1", "alice", "m1", prediction.OutcomeDraw, "10.00", "32.00")
		eng := newTestEngine(store)

		rep, err := eng.SettleMatch(ctx, "m1", 1, 1)
		require.NoError(t, err)
		assert.Equal(t, prediction.OutcomeDraw, rep.Outcome)
		assert.Equal(t, 1, rep.Won)
		assert.True(t, store.balances["alice"].Equal(dec("32.00")))
	})

	t.Run("reexecução não credita duas vezes", func(t *testing.T) {
		store := newFakeStore()
		store.add("p1", "alice", "m1", prediction.OutcomeHome, "20.00", "50.00")
		eng := newTestEngine(store)

		_, err := eng.SettleMatch(ctx, "m1", 2, 0)
		require.NoError(t, err)
		require.True(t, store.balances["alice"].Equal(dec("50.00")))

		rep, err := eng.SettleMatch(ctx, "m1", 2, 0)
		require.NoError(t, err)

		// nada PENDING restou; segunda passada é um no-op
		assert.Zero(t, rep.Settled)
		assert.Equal(t, 1, store.credits)
		assert.True(t, store.balances["alice"].Equal(dec("50.00")))
	})

	t.Run("falha isolada não bloqueia as demais e o retry credita uma vez", func(t *testing.T) {
		store := newFakeStore()
		creditErr := errors.New("store unavailable")
		store.creditErr["alice"] = creditErr
		store.add("p1", "alice", "m1", prediction.OutcomeHome, "20.00", "50.00")
		store.add("p2", "bob", "m1", prediction.OutcomeHome, "10.00", "25.00")
		eng := newTestEngine(store)

		rep, err := eng.SettleMatch(ctx, "m1", 3, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Settled)
		assert.Equal(t, 1, rep.Failed)

		// a falha desfaz a transição: a prediction segue PENDING
		assert.Equal(t, prediction.StatusPending, store.preds["p1"].Status)
		assert.Equal(t, prediction.StatusWon, store.preds["p2"].Status)
		assert.True(t, store.balances["bob"].Equal(dec("25.00")))

		// retry após o problema transiente resolver
		delete(store.creditErr, "alice")
		rep, err = eng.SettleMatch(ctx, "m1", 3, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Settled)
		assert.Equal(t, prediction.StatusWon, store.preds["p1"].Status)
		assert.True(t, store.balances["alice"].Equal(dec("50.00")))
		assert.Equal(t, 2, store.credits)
	})

	t.Run("partida sem predictions pendentes", func(t *testing.T) {
		store := newFakeStore()
		eng := newTestEngine(store)

		rep, err := eng.SettleMatch(ctx, "m1", 0, 3)
		require.NoError(t, err)
		assert.Equal(t, prediction.OutcomeAway, rep.Outcome)
		assert.Zero(t, rep.Settled)
	})

	t.Run("transição concorrente já aplicada não credita", func(t *testing.T) {
		store := newFakeStore()
		store.add("p1", "alice", "m1", prediction.OutcomeHome, "20.00", "50.00")
		store.resolveAfterList = true
		eng := newTestEngine(store)

		rep, err := eng.SettleMatch(ctx, "m1", 2, 0)
		require.NoError(t, err)

		// a transição condicional não encontrou a linha PENDING; quem
		// resolveu primeiro é quem credita e quem conta no relatório
		assert.Zero(t, rep.Settled)
		assert.Zero(t, rep.Won)
		assert.Zero(t, rep.Failed)
		assert.Zero(t, store.credits)
		assert.True(t, store.balances["alice"].IsZero())
	})
}
