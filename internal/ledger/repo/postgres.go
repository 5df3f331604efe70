package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/matchpool/predictions-platform/internal/prediction"
	"github.com/matchpool/predictions-platform/internal/shared/db"
)

// Postgres implementa operações de saldo (accounts) em banco.
// Toda mutação é registrada em account_ledger para auditoria.
type Postgres struct{ db *sql.DB }

func NewPostgres(database *sql.DB) *Postgres { return &Postgres{db: database} }

// GetOrCreateAccount retorna o saldo do usuário, criando a conta zerada se
// não existir. Usa transação para garantir atomicidade.
func (p *Postgres) GetOrCreateAccount(ctx context.Context, userID string) (decimal.Decimal, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback()

	var bal decimal.Decimal
	err = tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE user_id=$1`, userID).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO accounts(id, user_id, balance, version) VALUES($1,$2,0,1)`,
			uuid.NewString(), userID); err != nil {
			return decimal.Zero, err
		}
		bal = decimal.Zero
	} else if err != nil {
		return decimal.Zero, err
	}

	if err = tx.Commit(); err != nil {
		return decimal.Zero, err
	}

	return bal, nil
}

// Balance lê o saldo atual dentro da transação do chamador
func (p *Postgres) Balance(ctx context.Context, q db.DBTX, userID string) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := q.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE user_id=$1`, userID).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, prediction.ErrNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("read balance: %w", err)
	}
	return bal, nil
}

// Adjust aplica um delta assinado ao saldo do usuário dentro da transação do
// chamador e registra a operação no ledger. Garante lock pessimista na linha
// da conta; com enforceFloor o débito falha se o saldo resultante for
// negativo, sem nenhum efeito colateral.
func (p *Postgres) Adjust(ctx context.Context, q db.DBTX, userID string, delta decimal.Decimal, enforceFloor bool, reason, relatedID string) (decimal.Decimal, error) {
	var accountID string
	var balance decimal.Decimal
	err := q.QueryRowContext(ctx,
		`SELECT id, balance FROM accounts WHERE user_id=$1 FOR UPDATE`, userID,
	).Scan(&accountID, &balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, prediction.ErrNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("lock account: %w", err)
	}

	newBalance := balance.Add(delta)
	if enforceFloor && newBalance.IsNegative() {
		return decimal.Zero, prediction.ErrInsufficientBalance
	}

	if _, err = q.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, version = version + 1 WHERE id=$2`,
		newBalance, accountID); err != nil {
		return decimal.Zero, fmt.Errorf("update balance: %w", err)
	}

	opType := "CREDIT"
	if delta.IsNegative() {
		opType = "DEBIT"
	}
	if _, err = q.ExecContext(ctx, `
		INSERT INTO account_ledger(account_id, operation_type, amount, description, related_prediction_id)
		VALUES($1,$2,$3,$4,NULLIF($5,''))`,
		accountID, opType, delta.Abs(), reason, relatedID); err != nil {
		return decimal.Zero, fmt.Errorf("insert ledger entry: %w", err)
	}

	return newBalance, nil
}
