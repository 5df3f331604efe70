package placement

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	frepo "github.com/matchpool/predictions-platform/internal/fixture/repo"
	"github.com/matchpool/predictions-platform/internal/prediction"
	"github.com/matchpool/predictions-platform/internal/shared/db"
	"github.com/matchpool/predictions-platform/pkg/contracts/events"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func odd(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: dec(s), Valid: true}
}

// fakeStore emula o Postgres em memória honrando os mesmos contratos:
// índice único por (user, match), floor check no débito e rollback da
// transação inteira em caso de erro.
type fakeStore struct {
	balances map[string]decimal.Decimal
	preds    map[string]prediction.Prediction // user|match -> prediction
	matches  map[string]frepo.Match
	seq      int
	txCount  int

	adjustErr  map[string]error // falha transiente por usuário
	failInsert bool             // força violação do índice único
	findMisses int              // faz o fast path de duplicidade falhar N vezes
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		balances:  map[string]decimal.Decimal{},
		preds:     map[string]prediction.Prediction{},
		matches:   map[string]frepo.Match{},
		adjustErr: map[string]error{},
	}
}

func predKey(userID, matchID string) string { return userID + "|" + matchID }

func (f *fakeStore) WithinTx(ctx context.Context, fn func(tx db.DBTX) error) error {
	f.txCount++
	balSnap := make(map[string]decimal.Decimal, len(f.balances))
	for k, v := range f.balances {
		balSnap[k] = v
	}
	predSnap := make(map[string]prediction.Prediction, len(f.preds))
	for k, v := range f.preds {
		predSnap[k] = v
	}

	if err := fn(nil); err != nil {
		f.balances = balSnap
		f.preds = predSnap
		return err
	}
	return nil
}

func (f *fakeStore) GetOrCreateAccount(ctx context.Context, userID string) (decimal.Decimal, error) {
	if bal, ok := f.balances[userID]; ok {
		return bal, nil
	}
	f.balances[userID] = decimal.Zero
	return decimal.Zero, nil
}

func (f *fakeStore) Balance(ctx context.Context, q db.DBTX, userID string) (decimal.Decimal, error) {
	bal, ok := f.balances[userID]
	if !ok {
		return decimal.Zero, prediction.ErrNotFound
	}
	return bal, nil
}

func (f *fakeStore) Adjust(ctx context.Context, q db.DBTX, userID string, delta decimal.Decimal, enforceFloor bool, reason, relatedID string) (decimal.Decimal, error) {
	if err := f.adjustErr[userID]; err != nil {
		return decimal.Zero, err
	}
	bal, ok := f.balances[userID]
	if !ok {
		return decimal.Zero, prediction.ErrNotFound
	}
	next := bal.Add(delta)
	if enforceFloor && next.IsNegative() {
		return decimal.Zero, prediction.ErrInsufficientBalance
	}
	f.balances[userID] = next
	return next, nil
}

func (f *fakeStore) InsertPending(ctx context.Context, q db.DBTX, pr *prediction.Prediction) (*prediction.Prediction, error) {
	if f.failInsert {
		return nil, &prediction.DuplicateError{}
	}
	key := predKey(pr.UserID, pr.MatchID)
	if _, exists := f.preds[key]; exists {
		return nil, &prediction.DuplicateError{}
	}
	f.seq++
	out := *pr
	out.ID = fmt.Sprintf("pred-%d", f.seq)
	out.Status = prediction.StatusPending
	out.CreatedAt = time.Now()
	f.preds[key] = out
	return &out, nil
}

func (f *fakeStore) FindByUserAndMatch(ctx context.Context, q db.DBTX, userID, matchID string) (*prediction.Prediction, error) {
	if f.findMisses > 0 {
		f.findMisses--
		return nil, prediction.ErrNotFound
	}
	pr, ok := f.preds[predKey(userID, matchID)]
	if !ok {
		return nil, prediction.ErrNotFound
	}
	out := pr
	return &out, nil
}

func (f *fakeStore) ListByUser(ctx context.Context, userID string, status prediction.Status, limit, offset int) ([]prediction.Prediction, error) {
	var out []prediction.Prediction
	for _, pr := range f.preds {
		if pr.UserID == userID && (status == "" || pr.Status == status) {
			out = append(out, pr)
		}
	}
	return out, nil
}

func (f *fakeStore) StatsByUser(ctx context.Context, userID string) (*prediction.Stats, error) {
	return &prediction.Stats{}, nil
}

func (f *fakeStore) Snapshot(ctx context.Context, q db.DBTX, matchID string) (*frepo.Match, error) {
	m, ok := f.matches[matchID]
	if !ok {
		return nil, prediction.ErrNotFound
	}
	out := m
	return &out, nil
}

func (f *fakeStore) ListScheduled(ctx context.Context, limit int) ([]frepo.Match, error) {
	var out []frepo.Match
	for _, m := range f.matches {
		if m.Status == frepo.StatusScheduled {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakePublisher struct {
	published []events.PredictionPlaced
	err       error
}

func (f *fakePublisher) PublishPredictionPlaced(ctx context.Context, ev events.PredictionPlaced) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, ev)
	return nil
}

func newTestService(store *fakeStore, publ *fakePublisher) *Service {
	return NewService(zap.NewNop(), store, nil, store, store, store, publ)
}

func scheduledMatch(id string, kickoffIn time.Duration) frepo.Match {
	return frepo.Match{
		ID:        id,
		HomeTeam:  "Flamengo",
		AwayTeam:  "Palmeiras",
		Status:    frepo.StatusScheduled,
		KickoffAt: time.Now().Add(kickoffIn),
		OddsHome:  odd("2.5"),
		OddsDraw:  odd("3.2"),
		OddsAway:  odd("2.8"),
	}
}

func TestPlaceStake(t *testing.T) {
	ctx := context.Background()

	t.Run("debita o stake e congela o retorno potencial", func(t *testing.T) {
		store := newFakeStore()
		store.balances["u1"] = dec("100.00")
		store.matches["m1"] = scheduledMatch("m1", time.Hour)
		publ := &fakePublisher{}
		svc := newTestService(store, publ)

		pr, err := svc.PlaceStake(ctx, "u1", "m1", prediction.OutcomeHome, dec("20.00"))
		require.NoError(t, err)

		assert.Equal(t, prediction.StatusPending, pr.Status)
		assert.True(t, pr.PotentialWinnings.Equal(dec("50.00")), "got %s", pr.PotentialWinnings)
		assert.True(t, store.balances["u1"].Equal(dec("80.00")), "got %s", store.balances["u1"])
		require.Len(t, publ.published, 1)
		assert.Equal(t, pr.ID, publ.published[0].PredictionID)
		assert.Equal(t, "HOME", publ.published[0].Outcome)
	})

	t.Run("segunda aposta na mesma partida retorna a existente", func(t *testing.T) {
		store := newFakeStore()
		store.balances["u1"] = dec("100.00")
		store.matches["m1"] = scheduledMatch("m1", time.Hour)
		svc := newTestService(store, &fakePublisher{})

		first, err := svc.PlaceStake(ctx, "u1", "m1", prediction.OutcomeHome, dec("20.00"))
		require.NoError(t, err)

		_, err = svc.PlaceStake(ctx, "u1", "m1", prediction.OutcomeAway, dec("10.00"))
		dup, ok := prediction.IsDuplicate(err)
		require.True(t, ok, "expected DuplicateError, got %v", err)
		assert.Equal(t, first.ID, dup.ExistingID)

		// saldo intacto após a tentativa duplicada
		assert.True(t, store.balances["u1"].Equal(dec("80.00")), "got %s", store.balances["u1"])
	})

	t.Run("corrida perdida no índice único recupera o id vencedor", func(t *testing.T) {
		store := newFakeStore()
		store.balances["u1"] = dec("100.00")
		store.matches["m1"] = scheduledMatch("m1", time.Hour)
		// transação concorrente já inseriu; o fast path não enxerga e o
		// insert estoura o índice
		store.preds[predKey("u1", "m1")] = prediction.Prediction{ID: "winner", UserID: "u1", MatchID: "m1", Status: prediction.StatusPending}
		store.findMisses = 1
		store.failInsert = true
		svc := newTestService(store, &fakePublisher{})

		_, err := svc.PlaceStake(ctx, "u1", "m1", prediction.OutcomeHome, dec("20.00"))
		dup, ok := prediction.IsDuplicate(err)
		require.True(t, ok, "expected DuplicateError, got %v", err)
		assert.Equal(t, "winner", dup.ExistingID)
		assert.True(t, store.balances["u1"].Equal(dec("100.00")), "rollback deve restaurar o saldo")
	})

	t.Run("stake fora da faixa falha antes de qualquer leitura", func(t *testing.T) {
		store := newFakeStore()
		store.balances["u1"] = dec("100.00")
		store.matches["m1"] = scheduledMatch("m1", time.Hour)
		svc := newTestService(store, &fakePublisher{})

		_, err := svc.PlaceStake(ctx, "u1", "m1", prediction.OutcomeHome, dec("15000.00"))
		assert.ErrorIs(t, err, prediction.ErrInvalidStake)
		assert.Zero(t, store.txCount, "nenhuma transação deve ser aberta")

		_, err = svc.PlaceStake(ctx, "u1", "m1", prediction.OutcomeHome, dec("0.001"))
		assert.ErrorIs(t, err, prediction.ErrInvalidStake)
	})

	t.Run("kickoff passado com status SCHEDULED não é apostável", func(t *testing.T) {
		store := newFakeStore()
		store.balances["u1"] = dec("100.00")
		store.matches["m1"] = scheduledMatch("m1", -10*time.Minute)
		svc := newTestService(store, &fakePublisher{})

		_, err := svc.PlaceStake(ctx, "u1", "m1", prediction.OutcomeHome, dec("20.00"))
		assert.ErrorIs(t, err, prediction.ErrMatchNotBettable)
	})

	t.Run("partida em andamento não é apostável", func(t *testing.T) {
		store := newFakeStore()
		store.balances["u1"] = dec("100.00")
		m := scheduledMatch("m1", time.Hour)
		m.Status = frepo.StatusInPlay
		store.matches["m1"] = m
		svc := newTestService(store, &fakePublisher{})

		_, err := svc.PlaceStake(ctx, "u1", "m1", prediction.OutcomeHome, dec("20.00"))
		assert.ErrorIs(t, err, prediction.ErrMatchNotBettable)
	})

	t.Run("partida desconhecida", func(t *testing.T) {
		store := newFakeStore()
		store.balances["u1"] = dec("100.00")
		svc := newTestService(store, &fakePublisher{})

		_, err := svc.PlaceStake(ctx, "u1", "nope", prediction.OutcomeHome, dec("20.00"))
		assert.ErrorIs(t, err, prediction.ErrNotFound)
	})

	t.Run("saldo insuficiente não cria prediction", func(t *testing.T) {
		store := newFakeStore()
		store.balances["u1"] = dec("100.00")
		store.matches["m1"] = scheduledMatch("m1", time.Hour)
		svc := newTestService(store, &fakePublisher{})

		_, err := svc.PlaceStake(ctx, "u1", "m1", prediction.OutcomeHome, dec("200.00"))
		assert.ErrorIs(t, err, prediction.ErrInsufficientBalance)
		assert.Empty(t, store.preds)
		assert.True(t, store.balances["u1"].Equal(dec("100.00")))
	})

	t.Run("odd ausente para o resultado pedido", func(t *testing.T) {
		store := newFakeStore()
		store.balances["u1"] = dec("100.00")
		m := scheduledMatch("m1", time.Hour)
		m.OddsDraw = decimal.NullDecimal{}
		store.matches["m1"] = m
		svc := newTestService(store, &fakePublisher{})

		_, err := svc.PlaceStake(ctx, "u1", "m1", prediction.OutcomeDraw, dec("20.00"))
		assert.ErrorIs(t, err, prediction.ErrOddsUnavailable)
		assert.True(t, store.balances["u1"].Equal(dec("100.00")))
	})

	t.Run("falha no débito desfaz o insert da prediction", func(t *testing.T) {
		store := newFakeStore()
		store.balances["u1"] = dec("100.00")
		store.matches["m1"] = scheduledMatch("m1", time.Hour)
		storeErr := errors.New("store unavailable")
		store.adjustErr["u1"] = storeErr
		svc := newTestService(store, &fakePublisher{})

		_, err := svc.PlaceStake(ctx, "u1", "m1", prediction.OutcomeHome, dec("20.00"))
		assert.ErrorIs(t, err, storeErr)
		assert.Empty(t, store.preds, "sem débito não pode existir prediction")
		assert.True(t, store.balances["u1"].Equal(dec("100.00")))
	})

	t.Run("falha de publicação não desfaz a aposta commitada", func(t *testing.T) {
		store := newFakeStore()
		store.balances["u1"] = dec("100.00")
		store.matches["m1"] = scheduledMatch("m1", time.Hour)
		publ := &fakePublisher{err: errors.New("kafka down")}
		svc := newTestService(store, publ)

		pr, err := svc.PlaceStake(ctx, "u1", "m1", prediction.OutcomeHome, dec("20.00"))
		require.NoError(t, err)
		assert.NotEmpty(t, pr.ID)
		assert.True(t, store.balances["u1"].Equal(dec("80.00")))
	})
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()

	t.Run("credita e cria a conta se necessário", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store, &fakePublisher{})

		bal, err := svc.Deposit(ctx, "novo", dec("50.00"))
		require.NoError(t, err)
		assert.True(t, bal.Equal(dec("50.00")), "got %s", bal)
	})

	t.Run("valor fora da faixa", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store, &fakePublisher{})

		_, err := svc.Deposit(ctx, "u1", dec("0.50"))
		assert.ErrorIs(t, err, ErrInvalidDeposit)

		_, err = svc.Deposit(ctx, "u1", dec("10001"))
		assert.ErrorIs(t, err, ErrInvalidDeposit)
	})
}

func TestGetBalance(t *testing.T) {
	store := newFakeStore()
	store.balances["u1"] = dec("12.34")
	svc := newTestService(store, &fakePublisher{})

	bal, err := svc.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("12.34")))

	// conta inexistente nasce zerada
	bal, err = svc.GetBalance(context.Background(), "u2")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}
