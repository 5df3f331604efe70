package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

func ConnectPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// DBTX é satisfeito por *sql.DB e *sql.Tx; permite que os repositórios
// executem dentro de uma transação controlada pelo chamador
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Runner abre transações sobre uma conexão compartilhada
type Runner struct {
	DB *sql.DB
}

func NewRunner(db *sql.DB) *Runner { return &Runner{DB: db} }

// WithinTx executa fn dentro de uma transação; rollback em caso de erro,
// commit caso contrário. fn não deve reter o DBTX após retornar.
func (r *Runner) WithinTx(ctx context.Context, fn func(tx DBTX) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
