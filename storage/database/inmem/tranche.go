package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/tranche"
)

type trancheRepository struct {
	db *DB
}

var _ tranche.Repository = (*trancheRepository)(nil) // interface compliance check

func NewTrancheRepository(db *DB) *trancheRepository {
	return &trancheRepository{db: db}
}

func (repo *trancheRepository) CreateTranche(_ context.Context, t tranche.Tranche, _ ...core.DBExecutor) (tranche.Tranche, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	t.ID = uuid.New().String()
	repo.db.t.tranches[t.ID] = t
	return t, nil
}

func (repo *trancheRepository) GetTranche(_ context.Context, id string, _ ...core.DBExecutor) (tranche.Tranche, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.t.tranches[id]; ok {
		return t, nil
	}
	return tranche.Tranche{}, tranche.ErrNotFound
}

func (repo *trancheRepository) QueryTranches(_ context.Context, activeOnly bool, _ ...core.DBExecutor) ([]tranche.Tranche, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	tranches := make([]tranche.Tranche, 0, len(repo.db.t.tranches))
	for _, t := range repo.db.t.tranches {
		if !activeOnly || t.IsActive {
			tranches = append(tranches, t)
		}
	}
	tranche.SortByOrder(tranches)
	return tranches, nil
}

func (repo *trancheRepository) UpdateTranche(_ context.Context, t tranche.Tranche, _ ...core.DBExecutor) (tranche.Tranche, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.tranches[t.ID]; !ok {
		return tranche.Tranche{}, tranche.ErrNotFound
	}
	repo.db.t.tranches[t.ID] = t
	return t, nil
}

func (repo *trancheRepository) MaxOrder(_ context.Context, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var max int
	for _, t := range repo.db.t.tranches {
		if t.Order > max {
			max = t.Order
		}
	}
	return max, nil
}

func (repo *trancheRepository) SetOrders(_ context.Context, orders map[string]int, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	now := tranche.NowFunc().UTC()
	for id, order := range orders {
		t, ok := repo.db.t.tranches[id]
		if !ok {
			return tranche.ErrNotFound
		}
		t.Order = order
		t.UpdatedAt = now
		repo.db.t.tranches[id] = t
	}
	return nil
}

func (repo *trancheRepository) UpsertClassAmount(_ context.Context, ca tranche.ClassAmount, _ ...core.DBExecutor) (tranche.ClassAmount, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	key := pairKey(ca.ClassID, ca.TrancheID)
	if existing, ok := repo.db.t.classAmounts[key]; ok {
		ca.ID = existing.ID
	} else {
		ca.ID = uuid.New().String()
	}
	repo.db.t.classAmounts[key] = ca
	return ca, nil
}

func (repo *trancheRepository) QueryClassAmounts(_ context.Context, filter tranche.ClassAmountFilter, _ ...core.DBExecutor) ([]tranche.ClassAmount, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	amounts := make([]tranche.ClassAmount, 0)
	for _, ca := range repo.db.t.classAmounts {
		if filter.ClassID != "" && ca.ClassID != filter.ClassID {
			continue
		}
		if filter.TrancheID != "" && ca.TrancheID != filter.TrancheID {
			continue
		}
		amounts = append(amounts, ca)
	}
	sort.Slice(amounts, func(i, j int) bool {
		if amounts[i].ClassID != amounts[j].ClassID {
			return amounts[i].ClassID < amounts[j].ClassID
		}
		return amounts[i].TrancheID < amounts[j].TrancheID
	})
	return amounts, nil
}

func (repo *trancheRepository) DeleteClassAmount(_ context.Context, classID, trancheID string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	key := pairKey(classID, trancheID)
	if _, ok := repo.db.t.classAmounts[key]; !ok {
		return tranche.ErrClassAmountNotFound
	}
	delete(repo.db.t.classAmounts, key)
	return nil
}

func (repo *trancheRepository) countUsage(trancheID string) tranche.DeletionImpact {
	impact := tranche.DeletionImpact{TrancheID: trancheID}
	for _, ca := range repo.db.t.classAmounts {
		if ca.TrancheID == trancheID {
			impact.ClassAmounts++
		}
	}
	for _, p := range repo.db.t.payments {
		var used bool
		for _, d := range p.Details {
			if d.TrancheID == trancheID {
				impact.PaymentDetails++
				used = true
			}
		}
		if used {
			impact.Payments++
		}
	}
	for _, c := range repo.db.t.contributions {
		if c.TrancheID == trancheID {
			impact.PhysicalContributions++
		}
	}
	for _, s := range repo.db.t.scholarships {
		if s.TrancheID == trancheID {
			impact.Scholarships++
		}
	}
	return impact
}

func (repo *trancheRepository) MaxPaidInClass(_ context.Context, classID, trancheID string, _ ...core.DBExecutor) (decimal.Decimal, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	settled := make(map[string]decimal.Decimal)
	for _, p := range repo.db.t.payments {
		if repo.db.t.students[p.StudentID].ClassID != classID {
			continue
		}
		for _, d := range p.Details {
			if d.TrancheID == trancheID {
				settled[p.StudentID] = settled[p.StudentID].Add(d.AmountAllocated).Add(d.DiscountAmount)
			}
		}
	}
	max := decimal.Zero
	for _, amount := range settled {
		max = decimal.Max(max, amount)
	}
	return max, nil
}

func (repo *trancheRepository) CountUsage(_ context.Context, trancheID string, _ ...core.DBExecutor) (tranche.DeletionImpact, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.countUsage(trancheID), nil
}

func (repo *trancheRepository) DeleteTrancheCascade(_ context.Context, trancheID string, _ ...core.DBExecutor) (tranche.DeletionResult, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.tranches[trancheID]; !ok {
		return tranche.DeletionResult{}, tranche.ErrNotFound
	}
	impact := repo.countUsage(trancheID)

	for key, ca := range repo.db.t.classAmounts {
		if ca.TrancheID == trancheID {
			delete(repo.db.t.classAmounts, key)
		}
	}
	for id, p := range repo.db.t.payments {
		kept := p.Details[:0:0]
		for _, d := range p.Details {
			if d.TrancheID != trancheID {
				kept = append(kept, d)
			}
		}
		p.Details = kept
		repo.db.t.payments[id] = p
	}
	for key, c := range repo.db.t.contributions {
		if c.TrancheID == trancheID {
			delete(repo.db.t.contributions, key)
		}
	}
	for id, s := range repo.db.t.scholarships {
		if s.TrancheID == trancheID {
			delete(repo.db.t.scholarships, id)
		}
	}
	delete(repo.db.t.tranches, trancheID)

	return tranche.DeletionResult{
		Deleted:                    true,
		CascadedAmountsCount:       impact.ClassAmounts,
		CascadedDetailsCount:       impact.PaymentDetails,
		CascadedContributionsCount: impact.PhysicalContributions,
		CascadedScholarshipsCount:  impact.Scholarships,
	}, nil
}
