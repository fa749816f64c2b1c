package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ecolage/core"
)

type receiptCounter struct {
	repository
}

var _ core.ReceiptCounter = (*receiptCounter)(nil) // interface compliance check

func NewReceiptCounter(exec core.DBExecutor) *receiptCounter {
	return &receiptCounter{repository{exec: exec}}
}

// Next increments the (kind, year) counter atomically; concurrent callers wait on the row lock.
func (c receiptCounter) Next(ctx context.Context, kind string, year int, exec ...core.DBExecutor) (int64, error) {
	var last int64
	q := `INSERT INTO receipt_counter (kind, year, last) VALUES ($1, $2, 1)
		ON CONFLICT (kind, year) DO UPDATE SET last = receipt_counter.last + 1
		RETURNING last`
	if err := sqlx.GetContext(ctx, c.getExec(exec), &last, q, kind, year); err != nil {
		return 0, errors.Wrap(err, "incrementing receipt counter")
	}
	return last, nil
}
