package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PostgresStore implements UnitOfWork on top of sqlx transactions.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore constructs the store.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Stores returns stores bound to the pool, for reads outside a transaction.
func (p *PostgresStore) Stores() Stores {
	return bindStores(p.db)
}

// WithinTx runs fn inside a read-committed transaction.
func (p *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) (err error) {
	tx, err := p.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, bindStores(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func bindStores(db sqlx.ExtContext) Stores {
	return Stores{
		Orders:      NewOrderRepository(db),
		TimeEntries: NewTimeEntryRepository(db),
		Schedules:   NewScheduleRepository(db),
		Issues:      NewPendingIssueRepository(db),
		Audit:       NewAuditRepository(db),
	}
}
