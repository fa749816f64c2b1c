package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/payment"
)

type paymentRepository struct {
	db *DB
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *DB) *paymentRepository {
	return &paymentRepository{db: db}
}

func copyPayment(p payment.Payment) payment.Payment {
	p.Details = append([]payment.Detail(nil), p.Details...)
	return p
}

func (repo *paymentRepository) CreatePayment(_ context.Context, p payment.Payment, _ ...core.DBExecutor) (payment.Payment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p.ID = uuid.New().String()
	p = copyPayment(p)
	for i := range p.Details {
		p.Details[i].ID = uuid.New().String()
		p.Details[i].PaymentID = p.ID
	}
	repo.db.t.payments[p.ID] = p
	return copyPayment(p), nil
}

func (repo *paymentRepository) GetPayment(_ context.Context, id string, _ ...core.DBExecutor) (payment.Payment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if p, ok := repo.db.t.payments[id]; ok {
		return copyPayment(p), nil
	}
	return payment.Payment{}, payment.ErrNotFound
}

func (repo *paymentRepository) QueryPayments(_ context.Context, filter *payment.PaymentFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]payment.Payment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	payments := make([]payment.Payment, 0)
	for _, p := range repo.db.t.payments {
		if filter != nil {
			if filter.StudentID != "" && p.StudentID != filter.StudentID {
				continue
			}
			if filter.Method != "" && p.Method != filter.Method {
				continue
			}
			if !filter.From.IsZero() && p.VersementDate.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && p.VersementDate.After(filter.To) {
				continue
			}
		}
		payments = append(payments, copyPayment(p))
	}

	sort.SliceStable(payments, func(i, j int) bool { return payments[i].ReceiptNumber < payments[j].ReceiptNumber })
	for k := len(ordering) - 1; k >= 0; k-- {
		ord := ordering[k]
		sort.SliceStable(payments, func(i, j int) bool {
			if ord.Ascending {
				return paymentLess(ord.Field, payments[i], payments[j])
			}
			return paymentLess(ord.Field, payments[j], payments[i])
		})
	}
	return payments, nil
}

func paymentLess(field string, a, b payment.Payment) bool {
	switch field {
	case "created_at":
		return a.CreatedAt.Before(b.CreatedAt)
	case "versement_date":
		return a.VersementDate.Before(b.VersementDate)
	case "amount":
		return a.Amount.LessThan(b.Amount)
	default:
		return a.ReceiptNumber < b.ReceiptNumber
	}
}

func (repo *paymentRepository) SumAllocations(_ context.Context, studentID string, _ ...core.DBExecutor) ([]payment.AllocationSum, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	sums := make(map[string]payment.AllocationSum)
	for _, p := range repo.db.t.payments {
		if p.StudentID != studentID {
			continue
		}
		for _, d := range p.Details {
			s, ok := sums[d.TrancheID]
			if !ok {
				s = payment.AllocationSum{TrancheID: d.TrancheID, Paid: decimal.Zero, Discount: decimal.Zero}
			}
			s.Paid = s.Paid.Add(d.AmountAllocated)
			s.Discount = s.Discount.Add(d.DiscountAmount)
			sums[d.TrancheID] = s
		}
	}

	list := make([]payment.AllocationSum, 0, len(sums))
	for _, s := range sums {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].TrancheID < list[j].TrancheID })
	return list, nil
}

func (repo *paymentRepository) CreateScholarship(_ context.Context, s payment.Scholarship, _ ...core.DBExecutor) (payment.Scholarship, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	s.ID = uuid.New().String()
	repo.db.t.scholarships[s.ID] = s
	return s, nil
}

func (repo *paymentRepository) GetScholarship(_ context.Context, id string, _ ...core.DBExecutor) (payment.Scholarship, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.t.scholarships[id]; ok {
		return s, nil
	}
	return payment.Scholarship{}, payment.ErrScholarshipNotFound
}

func (repo *paymentRepository) QueryScholarships(_ context.Context, studentID string, activeOnly bool, _ ...core.DBExecutor) ([]payment.Scholarship, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	list := make([]payment.Scholarship, 0)
	for _, s := range repo.db.t.scholarships {
		if studentID != "" && s.StudentID != studentID {
			continue
		}
		if activeOnly && !s.IsActive {
			continue
		}
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (repo *paymentRepository) UpdateScholarship(_ context.Context, s payment.Scholarship, _ ...core.DBExecutor) (payment.Scholarship, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.scholarships[s.ID]; !ok {
		return payment.Scholarship{}, payment.ErrScholarshipNotFound
	}
	repo.db.t.scholarships[s.ID] = s
	return s, nil
}

func (repo *paymentRepository) CreateDiscountRule(_ context.Context, r payment.DiscountRule, _ ...core.DBExecutor) (payment.DiscountRule, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	r.ID = uuid.New().String()
	repo.db.t.discountRules[r.ID] = r
	return r, nil
}

func (repo *paymentRepository) GetDiscountRule(_ context.Context, id string, _ ...core.DBExecutor) (payment.DiscountRule, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if r, ok := repo.db.t.discountRules[id]; ok {
		return r, nil
	}
	return payment.DiscountRule{}, payment.ErrDiscountRuleNotFound
}

func (repo *paymentRepository) QueryDiscountRules(_ context.Context, activeOnly bool, _ ...core.DBExecutor) ([]payment.DiscountRule, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	list := make([]payment.DiscountRule, 0)
	for _, r := range repo.db.t.discountRules {
		if !activeOnly || r.IsActive {
			list = append(list, r)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (repo *paymentRepository) UpdateDiscountRule(_ context.Context, r payment.DiscountRule, _ ...core.DBExecutor) (payment.DiscountRule, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.discountRules[r.ID]; !ok {
		return payment.DiscountRule{}, payment.ErrDiscountRuleNotFound
	}
	repo.db.t.discountRules[r.ID] = r
	return r, nil
}

func (repo *paymentRepository) QueryContributions(_ context.Context, studentID string, _ ...core.DBExecutor) ([]payment.PhysicalContribution, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	list := make([]payment.PhysicalContribution, 0)
	for _, c := range repo.db.t.contributions {
		if c.StudentID == studentID {
			list = append(list, c)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].TrancheID < list[j].TrancheID })
	return list, nil
}

func (repo *paymentRepository) UpsertContribution(_ context.Context, c payment.PhysicalContribution, _ ...core.DBExecutor) (payment.PhysicalContribution, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	key := pairKey(c.StudentID, c.TrancheID)
	if existing, ok := repo.db.t.contributions[key]; ok {
		c.ID = existing.ID
	} else {
		c.ID = uuid.New().String()
	}
	repo.db.t.contributions[key] = c
	return c, nil
}
