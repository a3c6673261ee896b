package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRepositories bundles the repositories bound to one transaction.
type TxRepositories struct {
	Chunks *ChunkIndexRepository
	Edges  *MemoryEdgeRepository
}

// TxRunner runs repository work inside a pgx transaction.
type TxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

func (r *TxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}

	repos := TxRepositories{
		Chunks: NewChunkIndexRepositoryWithTx(tx),
		Edges:  NewMemoryEdgeRepositoryWithTx(tx),
	}
	if err := fn(repos); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}
