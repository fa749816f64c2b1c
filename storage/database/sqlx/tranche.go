package sqlxrepos

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/tranche"
)

const (
	trancheColumns     = `id, name, description, display_order, is_active, is_optional, is_physical_only, created_at, updated_at`
	classAmountColumns = `id, class_id, tranche_id, amount, updated_at`
)

type trancheRepository struct {
	repository
}

var _ tranche.Repository = (*trancheRepository)(nil) // interface compliance check

func NewTrancheRepository(exec core.DBExecutor) *trancheRepository {
	return &trancheRepository{repository{exec: exec}}
}

func (repo trancheRepository) CreateTranche(ctx context.Context, t tranche.Tranche, exec ...core.DBExecutor) (tranche.Tranche, error) {
	t.ID = newID()
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	q := `INSERT INTO tranche (` + trancheColumns + `)
		VALUES (:id, :name, :description, :display_order, :is_active, :is_optional, :is_physical_only, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, t); err != nil {
		return tranche.Tranche{}, errors.Wrap(err, "inserting tranche")
	}
	return t, nil
}

func (repo trancheRepository) GetTranche(ctx context.Context, id string, exec ...core.DBExecutor) (tranche.Tranche, error) {
	if !validID(id) {
		return tranche.Tranche{}, tranche.ErrNotFound
	}
	var t tranche.Tranche
	q := `SELECT ` + trancheColumns + ` FROM tranche WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &t, q, id); err != nil {
		return tranche.Tranche{}, trapNoRowsErr(err, tranche.ErrNotFound, "finding tranche")
	}
	return t, nil
}

func (repo trancheRepository) QueryTranches(ctx context.Context, activeOnly bool, exec ...core.DBExecutor) ([]tranche.Tranche, error) {
	tranches := make([]tranche.Tranche, 0)
	q := `SELECT ` + trancheColumns + ` FROM tranche WHERE (NOT $1 OR is_active)
		ORDER BY display_order ASC, name ASC, id ASC`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &tranches, q, activeOnly); err != nil {
		return nil, errors.Wrap(err, "querying tranches")
	}
	return tranches, nil
}

func (repo trancheRepository) UpdateTranche(ctx context.Context, t tranche.Tranche, exec ...core.DBExecutor) (tranche.Tranche, error) {
	t.UpdatedAt = t.UpdatedAt.UTC()
	q := `UPDATE tranche SET name = :name, description = :description, is_active = :is_active,
		is_optional = :is_optional, is_physical_only = :is_physical_only, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, t)
	if err != nil {
		return tranche.Tranche{}, errors.Wrap(err, "updating tranche")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tranche.Tranche{}, tranche.ErrNotFound
	}
	return t, nil
}

func (repo trancheRepository) MaxOrder(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	var order int
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &order, `SELECT COALESCE(MAX(display_order), 0) FROM tranche`); err != nil {
		return 0, errors.Wrap(err, "getting max tranche order")
	}
	return order, nil
}

// SetOrders must run in a transaction: the uniqueness of orders is only checked at commit.
func (repo trancheRepository) SetOrders(ctx context.Context, orders map[string]int, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	now := tranche.NowFunc().UTC()
	for id, order := range orders {
		if !validID(id) {
			return tranche.ErrNotFound
		}
		res, err := exe.ExecContext(ctx, `UPDATE tranche SET display_order = $1, updated_at = $2 WHERE id = $3`, order, now, id)
		if err != nil {
			return errors.Wrap(err, "updating tranche order")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return tranche.ErrNotFound
		}
	}
	return nil
}

func (repo trancheRepository) UpsertClassAmount(ctx context.Context, ca tranche.ClassAmount, exec ...core.DBExecutor) (tranche.ClassAmount, error) {
	ca.ID = newID()
	ca.UpdatedAt = ca.UpdatedAt.UTC()
	q := `INSERT INTO class_tranche_amount (` + classAmountColumns + `) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (class_id, tranche_id) DO UPDATE SET amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at
		RETURNING ` + classAmountColumns
	var saved tranche.ClassAmount
	err := sqlx.GetContext(ctx, repo.getExec(exec), &saved, q, ca.ID, ca.ClassID, ca.TrancheID, ca.Amount, ca.UpdatedAt)
	if err != nil {
		return tranche.ClassAmount{}, errors.Wrap(err, "saving class amount")
	}
	return saved, nil
}

func (repo trancheRepository) QueryClassAmounts(ctx context.Context, filter tranche.ClassAmountFilter, exec ...core.DBExecutor) ([]tranche.ClassAmount, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.ClassID != "" {
		args = append(args, filter.ClassID)
		conds = append(conds, fmt.Sprintf("class_id::text = $%d", len(args)))
	}
	if filter.TrancheID != "" {
		args = append(args, filter.TrancheID)
		conds = append(conds, fmt.Sprintf("tranche_id::text = $%d", len(args)))
	}

	amounts := make([]tranche.ClassAmount, 0)
	// shared row locks keep a concurrent SetClassAmount from committing before a running allocation
	q := `SELECT ` + classAmountColumns + ` FROM class_tranche_amount` + where(conds) + ` ORDER BY class_id, tranche_id FOR SHARE`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &amounts, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying class amounts")
	}
	return amounts, nil
}

func (repo trancheRepository) DeleteClassAmount(ctx context.Context, classID, trancheID string, exec ...core.DBExecutor) error {
	if !validID(classID) || !validID(trancheID) {
		return tranche.ErrClassAmountNotFound
	}
	res, err := repo.getExec(exec).ExecContext(ctx,
		`DELETE FROM class_tranche_amount WHERE class_id = $1 AND tranche_id = $2`, classID, trancheID)
	if err != nil {
		return errors.Wrap(err, "deleting class amount")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tranche.ErrClassAmountNotFound
	}
	return nil
}

func (repo trancheRepository) MaxPaidInClass(ctx context.Context, classID, trancheID string, exec ...core.DBExecutor) (decimal.Decimal, error) {
	if !validID(classID) || !validID(trancheID) {
		return decimal.Zero, nil
	}
	q := `SELECT COALESCE(MAX(settled), 0) FROM (
			SELECT SUM(d.amount_allocated + d.discount_amount) AS settled
			FROM payment_detail d
			JOIN payment p ON p.id = d.payment_id
			JOIN student s ON s.id = p.student_id
			WHERE s.class_id = $1 AND d.tranche_id = $2
			GROUP BY p.student_id
		) per_student`
	var max decimal.Decimal
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &max, q, classID, trancheID); err != nil {
		return decimal.Zero, errors.Wrap(err, "summing settled amounts")
	}
	return max, nil
}

func (repo trancheRepository) CountUsage(ctx context.Context, trancheID string, exec ...core.DBExecutor) (tranche.DeletionImpact, error) {
	impact := tranche.DeletionImpact{TrancheID: trancheID}
	if !validID(trancheID) {
		return impact, nil
	}
	q := `SELECT
		(SELECT COUNT(*) FROM class_tranche_amount WHERE tranche_id = $1) AS class_amounts,
		(SELECT COUNT(*) FROM payment_detail WHERE tranche_id = $1) AS payment_details,
		(SELECT COUNT(DISTINCT payment_id) FROM payment_detail WHERE tranche_id = $1) AS payments,
		(SELECT COUNT(*) FROM physical_contribution WHERE tranche_id = $1) AS physical_contributions,
		(SELECT COUNT(*) FROM scholarship WHERE tranche_id = $1) AS scholarships`
	var counts struct {
		ClassAmounts          int `db:"class_amounts"`
		PaymentDetails        int `db:"payment_details"`
		Payments              int `db:"payments"`
		PhysicalContributions int `db:"physical_contributions"`
		Scholarships          int `db:"scholarships"`
	}
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &counts, q, trancheID); err != nil {
		return impact, errors.Wrap(err, "counting tranche usage")
	}
	impact.ClassAmounts = counts.ClassAmounts
	impact.PaymentDetails = counts.PaymentDetails
	impact.Payments = counts.Payments
	impact.PhysicalContributions = counts.PhysicalContributions
	impact.Scholarships = counts.Scholarships
	return impact, nil
}

// DeleteTrancheCascade must run in a transaction.
func (repo trancheRepository) DeleteTrancheCascade(ctx context.Context, trancheID string, exec ...core.DBExecutor) (tranche.DeletionResult, error) {
	if !validID(trancheID) {
		return tranche.DeletionResult{}, tranche.ErrNotFound
	}
	exe := repo.getExec(exec)

	deleteAll := func(table string) (int, error) {
		res, err := exe.ExecContext(ctx, `DELETE FROM `+table+` WHERE tranche_id = $1`, trancheID)
		if err != nil {
			return 0, errors.Wrapf(err, "deleting %s rows", table)
		}
		n, err := res.RowsAffected()
		return int(n), errors.Wrapf(err, "counting deleted %s rows", table)
	}

	var (
		result tranche.DeletionResult
		err    error
	)
	if result.CascadedAmountsCount, err = deleteAll("class_tranche_amount"); err != nil {
		return tranche.DeletionResult{}, err
	}
	if result.CascadedDetailsCount, err = deleteAll("payment_detail"); err != nil {
		return tranche.DeletionResult{}, err
	}
	if result.CascadedContributionsCount, err = deleteAll("physical_contribution"); err != nil {
		return tranche.DeletionResult{}, err
	}
	if result.CascadedScholarshipsCount, err = deleteAll("scholarship"); err != nil {
		return tranche.DeletionResult{}, err
	}

	res, err := exe.ExecContext(ctx, `DELETE FROM tranche WHERE id = $1`, trancheID)
	if err != nil {
		return tranche.DeletionResult{}, errors.Wrap(err, "deleting tranche")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tranche.DeletionResult{}, tranche.ErrNotFound
	}
	result.Deleted = true
	return result, nil
}
