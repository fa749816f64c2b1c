package payment

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/school"
	"github.com/trezcool/ecolage/core/tranche"
)

var (
	// errors
	ErrNotFound             = core.NewNotFoundError("payment")
	ErrScholarshipNotFound  = core.NewNotFoundError("scholarship")
	ErrDiscountRuleNotFound = core.NewNotFoundError("discount rule")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		// CreatePayment inserts the payment and its details.
		CreatePayment(ctx context.Context, p Payment, exec ...core.DBExecutor) (Payment, error)
		GetPayment(ctx context.Context, id string, exec ...core.DBExecutor) (Payment, error)
		QueryPayments(ctx context.Context, filter *PaymentFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Payment, error)
		SumAllocations(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]AllocationSum, error)

		CreateScholarship(ctx context.Context, s Scholarship, exec ...core.DBExecutor) (Scholarship, error)
		GetScholarship(ctx context.Context, id string, exec ...core.DBExecutor) (Scholarship, error)
		// QueryScholarships lists the scholarships of a student, or of all students when studentID is empty.
		QueryScholarships(ctx context.Context, studentID string, activeOnly bool, exec ...core.DBExecutor) ([]Scholarship, error)
		UpdateScholarship(ctx context.Context, s Scholarship, exec ...core.DBExecutor) (Scholarship, error)

		CreateDiscountRule(ctx context.Context, r DiscountRule, exec ...core.DBExecutor) (DiscountRule, error)
		GetDiscountRule(ctx context.Context, id string, exec ...core.DBExecutor) (DiscountRule, error)
		QueryDiscountRules(ctx context.Context, activeOnly bool, exec ...core.DBExecutor) ([]DiscountRule, error)
		UpdateDiscountRule(ctx context.Context, r DiscountRule, exec ...core.DBExecutor) (DiscountRule, error)

		QueryContributions(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]PhysicalContribution, error)
		UpsertContribution(ctx context.Context, c PhysicalContribution, exec ...core.DBExecutor) (PhysicalContribution, error)
	}

	Service struct {
		repo        Repository
		schoolRepo  school.Repository
		trancheRepo tranche.Repository
		counter     core.ReceiptCounter
		tx          core.TxRunner
		validate    *validator.Validate
		mailSvc     core.EmailService
		logger      core.Logger
	}
)

func NewService(
	repo Repository,
	schoolRepo school.Repository,
	trancheRepo tranche.Repository,
	counter core.ReceiptCounter,
	tx core.TxRunner,
	validate *validator.Validate,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		repo:        repo,
		schoolRepo:  schoolRepo,
		trancheRepo: trancheRepo,
		counter:     counter,
		tx:          tx,
		validate:    validate,
		mailSvc:     mailSvc,
		logger:      logger,
	}
}

// ledger builds the ledger of student from the records visible to exec.
func (svc *Service) ledger(ctx context.Context, student school.Student, exec core.DBExecutor) (Ledger, error) {
	tranches, err := svc.trancheRepo.QueryTranches(ctx, true, exec)
	if err != nil {
		return nil, errors.Wrap(err, "querying tranches")
	}
	amounts, err := svc.trancheRepo.QueryClassAmounts(ctx, tranche.ClassAmountFilter{ClassID: student.ClassID}, exec)
	if err != nil {
		return nil, errors.Wrap(err, "querying class amounts")
	}
	sums, err := svc.repo.SumAllocations(ctx, student.ID, exec)
	if err != nil {
		return nil, errors.Wrap(err, "summing allocations")
	}
	scholarships, err := svc.repo.QueryScholarships(ctx, student.ID, true, exec)
	if err != nil {
		return nil, errors.Wrap(err, "querying scholarships")
	}
	contributions, err := svc.repo.QueryContributions(ctx, student.ID, exec)
	if err != nil {
		return nil, errors.Wrap(err, "querying physical contributions")
	}
	return BuildLedger(LedgerInput{
		Tranches:      tranches,
		ClassAmounts:  amounts,
		Sums:          sums,
		Scholarships:  scholarships,
		Contributions: contributions,
	}), nil
}

func (svc *Service) validateNewPayment(np *NewPayment) error {
	np.Clean()
	if !np.Amount.IsPositive() {
		return core.NewFieldValidationError("amount", "amount must be greater than 0")
	}
	if !np.Amount.Equal(np.Amount.Round(2)) {
		return core.NewFieldValidationError("amount", "amount cannot have more than 2 decimal places")
	}
	if err := svc.validate.Struct(np); err != nil {
		return err
	}
	if methodRequiresReference[np.Method] && np.ReferenceNumber == "" {
		return core.NewFieldValidationError("reference_number", fmt.Sprintf("a reference number is required for %s payments", np.Method))
	}
	return nil
}

// Allocate records a payment for a student and splits it over the student's unpaid tranches, in tranche order.
// The student row stays locked until the payment is committed, so concurrent payments of a student are serialized.
func (svc *Service) Allocate(ctx context.Context, actor core.Actor, np NewPayment) (AllocationResult, error) {
	if err := svc.validateNewPayment(&np); err != nil {
		return AllocationResult{}, err
	}

	var (
		result  AllocationResult
		student school.Student
		lines   Ledger
		pmt     Payment
	)
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		student, err = svc.schoolRepo.LockStudent(ctx, np.StudentID, exec)
		if err != nil {
			return err
		}
		if student.Status == school.StatusWithdrawn || student.Status == school.StatusGraduated {
			return core.NewNotEligibleError(ReasonStudentNotActive, fmt.Sprintf("the student is %s", student.Status)).
				WithDetail("status", student.Status)
		}

		lines, err = svc.ledger(ctx, student, exec)
		if err != nil {
			return err
		}

		optional := make(map[string]bool, len(np.OptionalTrancheIDs))
		for _, id := range np.OptionalTrancheIDs {
			line, ok := lines.Line(id)
			if !ok || !line.Tranche.IsOptional || line.Tranche.IsPhysicalOnly {
				return core.NewFieldValidationError("optional_tranche_ids", fmt.Sprintf("%q is not an optional tranche of this student's class", id)).
					WithDetail("tranche_id", id)
			}
			optional[id] = true
		}
		eligible := lines.Eligible(optional)

		var discounts map[string]decimal.Decimal
		discountTotal := decimal.Zero
		if np.ApplyGlobalDiscount {
			rules, err := svc.repo.QueryDiscountRules(ctx, true, exec)
			if err != nil {
				return errors.Wrap(err, "querying discount rules")
			}
			quote, err := QuoteDiscount(rules, student.ClassID, np.VersementDate, eligible)
			if err != nil {
				return err
			}
			if err := quote.Check(np.Amount); err != nil {
				return err
			}
			discounts = quote.Shares
			discountTotal = quote.Total
		} else if balance := eligible.Remaining(); np.Amount.GreaterThan(balance) {
			return core.NewFieldValidationError(
				"amount",
				fmt.Sprintf("amount exceeds the remaining balance of %s", balance.StringFixed(2)),
			).WithDetail("remaining_balance", balance)
		}

		allocations, left := AllocateFIFO(np.Amount, eligible, discounts)
		if !left.IsZero() {
			// unreachable: amounts above the balance are rejected
			return errors.Errorf("%s left unallocated", left)
		}

		now := NowFunc().UTC()
		seq, err := svc.counter.Next(ctx, core.ReceiptPayment, now.Year(), exec)
		if err != nil {
			return errors.Wrap(err, "getting receipt number")
		}
		pmt = Payment{
			StudentID:           student.ID,
			ReceiptNumber:       core.FormatReceiptNumber(core.ReceiptPayment, now.Year(), seq),
			Amount:              np.Amount,
			DiscountAmount:      discountTotal,
			Method:              np.Method,
			ReferenceNumber:     np.ReferenceNumber,
			VersementDate:       np.VersementDate,
			ApplyGlobalDiscount: np.ApplyGlobalDiscount,
			RecordedBy:          actor.UserID,
			CreatedAt:           now,
			Details:             make([]Detail, 0, len(allocations)),
		}
		for _, a := range allocations {
			pmt.Details = append(pmt.Details, Detail{
				TrancheID:       a.TrancheID,
				AmountAllocated: a.Amount,
				DiscountAmount:  a.Discount,
				BalanceBefore:   a.BalanceBefore,
				BalanceAfter:    a.BalanceAfter,
			})
		}
		pmt, err = svc.repo.CreatePayment(ctx, pmt, exec)
		if err != nil {
			return errors.Wrap(err, "creating payment")
		}

		after, err := svc.ledger(ctx, student, exec)
		if err != nil {
			return err
		}
		result = AllocationResult{
			PaymentID:        pmt.ID,
			ReceiptNumber:    pmt.ReceiptNumber,
			Details:          pmt.Details,
			DiscountAmount:   pmt.DiscountAmount,
			RemainingBalance: after.MandatoryRemaining(),
		}
		return nil
	})
	if err != nil {
		return AllocationResult{}, err
	}

	svc.logger.Info(
		fmt.Sprintf("payment %s of %s recorded", result.ReceiptNumber, np.Amount.StringFixed(2)),
		map[string]interface{}{"student_id": student.ID, "payment_id": result.PaymentID},
		actor,
	)
	svc.sendReceipt(student, pmt, lines, result.RemainingBalance)
	return result, nil
}

func (svc *Service) sendReceipt(student school.Student, pmt Payment, lines Ledger, remaining decimal.Decimal) {
	if student.GuardianEmail == "" || svc.mailSvc == nil {
		return
	}
	data := ReceiptEmailData{
		GuardianName:     student.GuardianName,
		StudentName:      student.FullName(),
		ReceiptNumber:    pmt.ReceiptNumber,
		Amount:           pmt.Amount.StringFixed(2),
		Method:           pmt.Method,
		VersementDate:    pmt.VersementDate.String(),
		RemainingBalance: remaining.StringFixed(2),
		Lines:            make([]ReceiptEmailLine, 0, len(pmt.Details)),
	}
	if data.GuardianName == "" {
		data.GuardianName = "Parent"
	}
	if pmt.DiscountAmount.IsPositive() {
		data.DiscountAmount = pmt.DiscountAmount.StringFixed(2)
	}
	for _, d := range pmt.Details {
		line := ReceiptEmailLine{TrancheName: d.TrancheID, Amount: d.AmountAllocated.StringFixed(2)}
		if l, ok := lines.Line(d.TrancheID); ok {
			line.TrancheName = l.Tranche.Name
		}
		if d.DiscountAmount.IsPositive() {
			line.Discount = d.DiscountAmount.StringFixed(2)
		}
		data.Lines = append(data.Lines, line)
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:            []mail.Address{{Name: student.GuardianName, Address: student.GuardianEmail}},
		Subject:       "Payment receipt " + pmt.ReceiptNumber,
		TemplateName:  "payment_receipt",
		TemplateData:  data,
		ReceiptNumber: pmt.ReceiptNumber,
	})
}

// Status returns the position of a student on every tranche of their class.
func (svc *Service) Status(ctx context.Context, studentID string) (StudentStatus, error) {
	student, err := svc.schoolRepo.GetStudent(ctx, studentID)
	if err != nil {
		return StudentStatus{}, err
	}
	lines, err := svc.ledger(ctx, student, nil)
	if err != nil {
		return StudentStatus{}, err
	}
	return lines.Status(student.ID), nil
}

func (svc *Service) Get(ctx context.Context, id string) (Payment, error) {
	return svc.repo.GetPayment(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *PaymentFilter, ordering []core.DBOrdering) ([]Payment, error) {
	return svc.repo.QueryPayments(ctx, filter, core.CleanOrdering(ordering, PaymentOrderingFields...))
}

func (svc *Service) getStudentField(ctx context.Context, id string) (school.Student, error) {
	student, err := svc.schoolRepo.GetStudent(ctx, id)
	if err != nil {
		if errors.Cause(err) == school.ErrStudentNotFound {
			return school.Student{}, core.NewFieldValidationError("student_id", err.Error())
		}
		return school.Student{}, errors.Wrap(err, "finding student")
	}
	return student, nil
}

func (svc *Service) getTrancheField(ctx context.Context, id string) (tranche.Tranche, error) {
	t, err := svc.trancheRepo.GetTranche(ctx, id)
	if err != nil {
		if errors.Cause(err) == tranche.ErrNotFound {
			return tranche.Tranche{}, core.NewFieldValidationError("tranche_id", err.Error())
		}
		return tranche.Tranche{}, errors.Wrap(err, "finding tranche")
	}
	return t, nil
}

func (svc *Service) CreateScholarship(ctx context.Context, actor core.Actor, ns NewScholarship) (Scholarship, error) {
	ns.StudentID = core.CleanString(ns.StudentID)
	ns.TrancheID = core.CleanString(ns.TrancheID)
	ns.Reason = core.CleanString(ns.Reason)
	if err := svc.validate.Struct(ns); err != nil {
		return Scholarship{}, err
	}
	if _, err := svc.getStudentField(ctx, ns.StudentID); err != nil {
		return Scholarship{}, err
	}
	if ns.TrancheID != "" {
		t, err := svc.getTrancheField(ctx, ns.TrancheID)
		if err != nil {
			return Scholarship{}, err
		}
		if t.IsPhysicalOnly {
			return Scholarship{}, core.NewFieldValidationError("tranche_id", "a scholarship cannot target a physical-only tranche")
		}
	}

	sch, err := svc.repo.CreateScholarship(ctx, Scholarship{
		StudentID: ns.StudentID,
		TrancheID: ns.TrancheID,
		Amount:    ns.Amount.Round(2),
		Reason:    ns.Reason,
		IsActive:  true,
		CreatedBy: actor.UserID,
		CreatedAt: NowFunc().UTC(),
	})
	if err != nil {
		return Scholarship{}, errors.Wrap(err, "creating scholarship")
	}
	svc.logger.Info(fmt.Sprintf("scholarship of %s granted", sch.Amount.StringFixed(2)), map[string]interface{}{"student_id": sch.StudentID}, actor)
	return sch, nil
}

func (svc *Service) ListScholarships(ctx context.Context, studentID string, activeOnly bool) ([]Scholarship, error) {
	return svc.repo.QueryScholarships(ctx, studentID, activeOnly)
}

func (svc *Service) DeactivateScholarship(ctx context.Context, actor core.Actor, id string) (Scholarship, error) {
	sch, err := svc.repo.GetScholarship(ctx, id)
	if err != nil {
		return Scholarship{}, err
	}
	sch.IsActive = false
	sch, err = svc.repo.UpdateScholarship(ctx, sch)
	if err != nil {
		return Scholarship{}, errors.Wrap(err, "updating scholarship")
	}
	svc.logger.Info("scholarship deactivated", map[string]interface{}{"scholarship_id": id}, actor)
	return sch, nil
}

// CreateDiscountRule adds a discount rule; a class (or the whole school) has at most one active rule.
func (svc *Service) CreateDiscountRule(ctx context.Context, actor core.Actor, nr NewDiscountRule) (DiscountRule, error) {
	nr.ClassID = core.CleanString(nr.ClassID)
	nr.Description = core.CleanString(nr.Description)
	if err := svc.validate.Struct(nr); err != nil {
		return DiscountRule{}, err
	}
	if nr.ClassID != "" {
		if _, err := svc.schoolRepo.GetClass(ctx, nr.ClassID); err != nil {
			if errors.Cause(err) == school.ErrClassNotFound {
				return DiscountRule{}, core.NewFieldValidationError("class_id", err.Error())
			}
			return DiscountRule{}, errors.Wrap(err, "finding class")
		}
	}

	var rule DiscountRule
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		rules, err := svc.repo.QueryDiscountRules(ctx, true, exec)
		if err != nil {
			return errors.Wrap(err, "querying discount rules")
		}
		for _, r := range rules {
			if r.ClassID == nr.ClassID {
				return core.NewFieldValidationError("class_id", "an active discount rule already exists for this scope").
					WithDetail("discount_rule_id", r.ID)
			}
		}
		rule, err = svc.repo.CreateDiscountRule(ctx, DiscountRule{
			ClassID:     nr.ClassID,
			Percentage:  nr.Percentage,
			Deadline:    nr.Deadline,
			Description: nr.Description,
			IsActive:    true,
			CreatedBy:   actor.UserID,
			CreatedAt:   NowFunc().UTC(),
		}, exec)
		return errors.Wrap(err, "creating discount rule")
	})
	if err != nil {
		return DiscountRule{}, err
	}
	svc.logger.Info(fmt.Sprintf("discount rule of %s%% until %s created", rule.Percentage, rule.Deadline), actor)
	return rule, nil
}

func (svc *Service) ListDiscountRules(ctx context.Context, activeOnly bool) ([]DiscountRule, error) {
	return svc.repo.QueryDiscountRules(ctx, activeOnly)
}

func (svc *Service) DeactivateDiscountRule(ctx context.Context, actor core.Actor, id string) (DiscountRule, error) {
	rule, err := svc.repo.GetDiscountRule(ctx, id)
	if err != nil {
		return DiscountRule{}, err
	}
	rule.IsActive = false
	rule, err = svc.repo.UpdateDiscountRule(ctx, rule)
	if err != nil {
		return DiscountRule{}, errors.Wrap(err, "updating discount rule")
	}
	svc.logger.Info("discount rule deactivated", map[string]interface{}{"discount_rule_id": id}, actor)
	return rule, nil
}

// SetPhysicalContribution marks the in-kind contribution of a physical-only tranche as received or not.
func (svc *Service) SetPhysicalContribution(ctx context.Context, actor core.Actor, studentID string, sc SetContribution) (PhysicalContribution, error) {
	sc.Note = core.CleanString(sc.Note)
	if err := svc.validate.Struct(sc); err != nil {
		return PhysicalContribution{}, err
	}
	if _, err := svc.schoolRepo.GetStudent(ctx, studentID); err != nil {
		return PhysicalContribution{}, err
	}
	t, err := svc.getTrancheField(ctx, sc.TrancheID)
	if err != nil {
		return PhysicalContribution{}, err
	}
	if !t.IsPhysicalOnly {
		return PhysicalContribution{}, core.NewFieldValidationError("tranche_id", fmt.Sprintf("%q is not a physical-only tranche", t.Name))
	}

	c, err := svc.repo.UpsertContribution(ctx, PhysicalContribution{
		StudentID:  studentID,
		TrancheID:  t.ID,
		Received:   sc.Received,
		Note:       sc.Note,
		RecordedBy: actor.UserID,
		UpdatedAt:  NowFunc().UTC(),
	})
	if err != nil {
		return PhysicalContribution{}, errors.Wrap(err, "saving physical contribution")
	}
	return c, nil
}

func (svc *Service) ListContributions(ctx context.Context, studentID string) ([]PhysicalContribution, error) {
	if _, err := svc.schoolRepo.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return svc.repo.QueryContributions(ctx, studentID)
}
