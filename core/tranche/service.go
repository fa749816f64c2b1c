package tranche

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/school"
)

var (
	// errors
	ErrNotFound            = core.NewNotFoundError("tranche")
	ErrClassAmountNotFound = core.NewNotFoundError("class amount")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateTranche(ctx context.Context, t Tranche, exec ...core.DBExecutor) (Tranche, error)
		GetTranche(ctx context.Context, id string, exec ...core.DBExecutor) (Tranche, error)
		// QueryTranches returns tranches sorted by order, name and ID.
		QueryTranches(ctx context.Context, activeOnly bool, exec ...core.DBExecutor) ([]Tranche, error)
		UpdateTranche(ctx context.Context, t Tranche, exec ...core.DBExecutor) (Tranche, error)
		MaxOrder(ctx context.Context, exec ...core.DBExecutor) (int, error)
		SetOrders(ctx context.Context, orders map[string]int, exec ...core.DBExecutor) error

		UpsertClassAmount(ctx context.Context, ca ClassAmount, exec ...core.DBExecutor) (ClassAmount, error)
		QueryClassAmounts(ctx context.Context, filter ClassAmountFilter, exec ...core.DBExecutor) ([]ClassAmount, error)
		DeleteClassAmount(ctx context.Context, classID, trancheID string, exec ...core.DBExecutor) error

		// MaxPaidInClass returns the highest amount (allocated + discount) settled on the tranche by one student of the class.
		MaxPaidInClass(ctx context.Context, classID, trancheID string, exec ...core.DBExecutor) (decimal.Decimal, error)

		CountUsage(ctx context.Context, trancheID string, exec ...core.DBExecutor) (DeletionImpact, error)
		// DeleteTrancheCascade deletes the tranche and every record referencing it.
		DeleteTrancheCascade(ctx context.Context, trancheID string, exec ...core.DBExecutor) (DeletionResult, error)
	}

	Service struct {
		repo       Repository
		schoolRepo school.Repository
		tx         core.TxRunner
		validate   *validator.Validate
		logger     core.Logger
	}
)

func NewService(
	repo Repository,
	schoolRepo school.Repository,
	tx core.TxRunner,
	validate *validator.Validate,
	logger core.Logger,
) *Service {
	return &Service{
		repo:       repo,
		schoolRepo: schoolRepo,
		tx:         tx,
		validate:   validate,
		logger:     logger,
	}
}

func (svc *Service) Create(ctx context.Context, actor core.Actor, nt NewTranche) (Tranche, error) {
	nt.Clean()
	if err := svc.validate.Struct(nt); err != nil {
		return Tranche{}, err
	}

	var created Tranche
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		order := nt.Order
		if order == 0 {
			max, err := svc.repo.MaxOrder(ctx, exec)
			if err != nil {
				return errors.Wrap(err, "getting max tranche order")
			}
			order = max + 1
		} else {
			existing, err := svc.repo.QueryTranches(ctx, false, exec)
			if err != nil {
				return errors.Wrap(err, "querying tranches")
			}
			for _, t := range existing {
				if t.Order == order {
					return core.NewFieldValidationError("order", fmt.Sprintf("order %d is already used by %q", order, t.Name))
				}
			}
		}

		isActive := true
		if nt.IsActive != nil {
			isActive = *nt.IsActive
		}
		now := NowFunc().UTC()
		t, err := svc.repo.CreateTranche(ctx, Tranche{
			Name:           nt.Name,
			Description:    nt.Description,
			Order:          order,
			IsActive:       isActive,
			IsOptional:     nt.IsOptional,
			IsPhysicalOnly: nt.IsPhysicalOnly,
			CreatedAt:      now,
			UpdatedAt:      now,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating tranche")
		}
		created = t
		return nil
	})
	if err != nil {
		return Tranche{}, err
	}
	svc.logger.Info(fmt.Sprintf("tranche %q created at order %d", created.Name, created.Order), actor)
	return created, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Tranche, error) {
	return svc.repo.GetTranche(ctx, id)
}

func (svc *Service) List(ctx context.Context, activeOnly bool) ([]Tranche, error) {
	return svc.repo.QueryTranches(ctx, activeOnly)
}

func (svc *Service) Update(ctx context.Context, actor core.Actor, id string, ut UpdateTranche) (Tranche, error) {
	ut.Clean()
	if err := svc.validate.Struct(ut); err != nil {
		return Tranche{}, err
	}

	var updated Tranche
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		t, err := svc.repo.GetTranche(ctx, id, exec)
		if err != nil {
			return err
		}
		if ut.IsPhysicalOnly != nil && *ut.IsPhysicalOnly != t.IsPhysicalOnly {
			// amounts, payments and contributions only make sense for the current kind of tranche
			impact, err := svc.repo.CountUsage(ctx, id, exec)
			if err != nil {
				return errors.Wrap(err, "counting tranche usage")
			}
			if impact.InUse() {
				return core.NewConflictError(fmt.Sprintf("tranche %q is in use; its kind cannot change", t.Name), impact)
			}
			t.IsPhysicalOnly = *ut.IsPhysicalOnly
		}
		if ut.Name != "" {
			t.Name = ut.Name
		}
		if ut.Description != nil {
			t.Description = *ut.Description
		}
		if ut.IsActive != nil {
			t.IsActive = *ut.IsActive
		}
		if ut.IsOptional != nil {
			t.IsOptional = *ut.IsOptional
		}
		t.UpdatedAt = NowFunc().UTC()

		updated, err = svc.repo.UpdateTranche(ctx, t, exec)
		return errors.Wrap(err, "updating tranche")
	})
	if err != nil {
		return Tranche{}, err
	}
	svc.logger.Info(fmt.Sprintf("tranche %q updated", updated.Name), actor)
	return updated, nil
}

// Reorder sets the display order of the given tranches in one transaction.
// Tranches not listed keep their order; the resulting orders must be unique.
func (svc *Service) Reorder(ctx context.Context, actor core.Actor, entries []OrderEntry) ([]Tranche, error) {
	if len(entries) == 0 {
		return nil, core.NewFieldValidationError("orders", "at least one tranche order is required")
	}
	for i := range entries {
		if err := svc.validate.Struct(entries[i]); err != nil {
			return nil, err
		}
	}

	var reordered []Tranche
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		all, err := svc.repo.QueryTranches(ctx, false, exec)
		if err != nil {
			return errors.Wrap(err, "querying tranches")
		}
		merged := make(map[string]int, len(all))
		names := make(map[string]string, len(all))
		for _, t := range all {
			merged[t.ID] = t.Order
			names[t.ID] = t.Name
		}

		orders := make(map[string]int, len(entries))
		for _, e := range entries {
			if _, ok := merged[e.TrancheID]; !ok {
				return core.NewFieldValidationError("orders", fmt.Sprintf("unknown tranche %q", e.TrancheID)).
					WithDetail("tranche_id", e.TrancheID)
			}
			if _, dup := orders[e.TrancheID]; dup {
				return core.NewFieldValidationError("orders", fmt.Sprintf("tranche %q is listed more than once", e.TrancheID)).
					WithDetail("tranche_id", e.TrancheID)
			}
			orders[e.TrancheID] = e.Order
			merged[e.TrancheID] = e.Order
		}

		taken := make(map[int]string, len(merged))
		for id, order := range merged {
			if other, ok := taken[order]; ok {
				first, second := names[other], names[id]
				if first > second {
					first, second = second, first
				}
				return core.NewFieldValidationError("orders", fmt.Sprintf("tranches %q and %q would share order %d", first, second, order)).
					WithDetail("order", order)
			}
			taken[order] = id
		}

		if err := svc.repo.SetOrders(ctx, orders, exec); err != nil {
			return errors.Wrap(err, "setting tranche orders")
		}
		reordered, err = svc.repo.QueryTranches(ctx, false, exec)
		return errors.Wrap(err, "querying tranches")
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Info(fmt.Sprintf("%d tranche(s) reordered", len(entries)), actor)
	return reordered, nil
}

// DeletionImpact is the dry run of Delete.
func (svc *Service) DeletionImpact(ctx context.Context, id string) (DeletionImpact, error) {
	if _, err := svc.repo.GetTranche(ctx, id); err != nil {
		return DeletionImpact{}, err
	}
	impact, err := svc.repo.CountUsage(ctx, id)
	if err != nil {
		return DeletionImpact{}, errors.Wrap(err, "counting tranche usage")
	}
	return impact, nil
}

// Delete removes a tranche. A tranche in use is only deleted, with all its dependent records, when confirm is set;
// otherwise a ConflictError carrying the DeletionImpact is returned.
func (svc *Service) Delete(ctx context.Context, actor core.Actor, id string, confirm bool) (DeletionResult, error) {
	var (
		result DeletionResult
		name   string
	)
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		t, err := svc.repo.GetTranche(ctx, id, exec)
		if err != nil {
			return err
		}
		name = t.Name

		impact, err := svc.repo.CountUsage(ctx, id, exec)
		if err != nil {
			return errors.Wrap(err, "counting tranche usage")
		}
		if impact.InUse() && !confirm {
			return core.NewConflictError(fmt.Sprintf("tranche %q is in use; confirm the deletion to cascade", t.Name), impact)
		}

		result, err = svc.repo.DeleteTrancheCascade(ctx, id, exec)
		return errors.Wrap(err, "deleting tranche")
	})
	if err != nil {
		return DeletionResult{}, err
	}
	svc.logger.Warn(
		fmt.Sprintf("tranche %q deleted", name),
		map[string]interface{}{
			"tranche_id":             id,
			"cascaded_amounts":       result.CascadedAmountsCount,
			"cascaded_details":       result.CascadedDetailsCount,
			"cascaded_contributions": result.CascadedContributionsCount,
			"cascaded_scholarships":  result.CascadedScholarshipsCount,
		},
		actor,
	)
	return result, nil
}

// SetClassAmount creates or changes the amount a class owes for a tranche.
// The amount cannot go below what a student of the class has already settled on the tranche.
func (svc *Service) SetClassAmount(ctx context.Context, actor core.Actor, in SetClassAmount) (ClassAmount, error) {
	if err := svc.validate.Struct(in); err != nil {
		return ClassAmount{}, err
	}
	if _, err := svc.schoolRepo.GetClass(ctx, in.ClassID); err != nil {
		if errors.Cause(err) == school.ErrClassNotFound {
			return ClassAmount{}, core.NewFieldValidationError("class_id", err.Error())
		}
		return ClassAmount{}, errors.Wrap(err, "finding class")
	}
	amount := in.Amount.Round(2)

	var ca ClassAmount
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		t, err := svc.repo.GetTranche(ctx, in.TrancheID, exec)
		if err != nil {
			if errors.Cause(err) == ErrNotFound {
				return core.NewFieldValidationError("tranche_id", err.Error())
			}
			return errors.Wrap(err, "finding tranche")
		}
		if t.IsPhysicalOnly {
			return core.NewFieldValidationError("tranche_id", fmt.Sprintf("tranche %q is physical-only and has no amount", t.Name))
		}

		// saved first: the row lock orders this change after allocations reading the old amount
		ca, err = svc.repo.UpsertClassAmount(ctx, ClassAmount{
			ClassID:   in.ClassID,
			TrancheID: in.TrancheID,
			Amount:    amount,
			UpdatedAt: NowFunc().UTC(),
		}, exec)
		if err != nil {
			return errors.Wrap(err, "saving class amount")
		}

		settled, err := svc.repo.MaxPaidInClass(ctx, in.ClassID, in.TrancheID, exec)
		if err != nil {
			return errors.Wrap(err, "finding settled amounts")
		}
		if amount.LessThan(settled) {
			return core.NewFieldValidationError(
				"amount",
				fmt.Sprintf("amount cannot be lower than %s, already settled by a student of the class", settled.StringFixed(2)),
			).WithDetail("min_amount", settled)
		}
		return nil
	})
	if err != nil {
		return ClassAmount{}, err
	}
	svc.logger.Info(fmt.Sprintf("class amount set to %s", ca.Amount.StringFixed(2)), actor)
	return ca, nil
}

func (svc *Service) ListClassAmounts(ctx context.Context, filter ClassAmountFilter) ([]ClassAmount, error) {
	return svc.repo.QueryClassAmounts(ctx, filter)
}

func (svc *Service) DeleteClassAmount(ctx context.Context, actor core.Actor, classID, trancheID string) error {
	if err := svc.repo.DeleteClassAmount(ctx, classID, trancheID); err != nil {
		return err
	}
	svc.logger.Info("class amount deleted", actor)
	return nil
}
