package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/docfee"
)

type docFeeRepository struct {
	db *DB
}

var _ docfee.Repository = (*docFeeRepository)(nil) // interface compliance check

func NewDocFeeRepository(db *DB) *docFeeRepository {
	return &docFeeRepository{db: db}
}

func (repo *docFeeRepository) CreateFee(_ context.Context, fee docfee.Fee, _ ...core.DBExecutor) (docfee.Fee, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	fee.ID = uuid.New().String()
	repo.db.t.fees[fee.ID] = fee
	return fee, nil
}

func (repo *docFeeRepository) GetFee(_ context.Context, id string, _ ...core.DBExecutor) (docfee.Fee, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if fee, ok := repo.db.t.fees[id]; ok {
		return fee, nil
	}
	return docfee.Fee{}, docfee.ErrNotFound
}

// LockFee relies on RunInTx serializing transactions.
func (repo *docFeeRepository) LockFee(ctx context.Context, id string, exec ...core.DBExecutor) (docfee.Fee, error) {
	return repo.GetFee(ctx, id, exec...)
}

func (repo *docFeeRepository) QueryFees(_ context.Context, filter *docfee.Filter, _ ...core.DBExecutor) ([]docfee.Fee, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	fees := make([]docfee.Fee, 0)
	for _, fee := range repo.db.t.fees {
		if filter != nil {
			if filter.StudentID != "" && fee.StudentID != filter.StudentID {
				continue
			}
			if filter.Status != "" && fee.Status != filter.Status {
				continue
			}
		}
		fees = append(fees, fee)
	}
	sort.Slice(fees, func(i, j int) bool { return fees[i].ReceiptNumber < fees[j].ReceiptNumber })
	return fees, nil
}

func (repo *docFeeRepository) UpdateFee(_ context.Context, fee docfee.Fee, _ ...core.DBExecutor) (docfee.Fee, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.fees[fee.ID]; !ok {
		return docfee.Fee{}, docfee.ErrNotFound
	}
	repo.db.t.fees[fee.ID] = fee
	return fee, nil
}
