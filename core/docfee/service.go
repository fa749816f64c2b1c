package docfee

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/school"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("documentary fee")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateFee(ctx context.Context, fee Fee, exec ...core.DBExecutor) (Fee, error)
		GetFee(ctx context.Context, id string, exec ...core.DBExecutor) (Fee, error)
		// LockFee reads a fee and locks its row until the end of the transaction held by exec.
		LockFee(ctx context.Context, id string, exec ...core.DBExecutor) (Fee, error)
		QueryFees(ctx context.Context, filter *Filter, exec ...core.DBExecutor) ([]Fee, error)
		UpdateFee(ctx context.Context, fee Fee, exec ...core.DBExecutor) (Fee, error)
	}

	Service struct {
		repo       Repository
		schoolRepo school.Repository
		counter    core.ReceiptCounter
		tx         core.TxRunner
		validate   *validator.Validate
		mailSvc    core.EmailService
		logger     core.Logger
	}
)

func NewService(
	repo Repository,
	schoolRepo school.Repository,
	counter core.ReceiptCounter,
	tx core.TxRunner,
	validate *validator.Validate,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		repo:       repo,
		schoolRepo: schoolRepo,
		counter:    counter,
		tx:         tx,
		validate:   validate,
		mailSvc:    mailSvc,
		logger:     logger,
	}
}

// Create records a pending documentary fee with its own receipt number.
func (svc *Service) Create(ctx context.Context, actor core.Actor, nf NewFee) (Fee, error) {
	nf.Clean()
	if err := svc.validate.Struct(nf); err != nil {
		return Fee{}, err
	}
	if (nf.Method == "bank_transfer" || nf.Method == "check") && nf.ReferenceNumber == "" {
		return Fee{}, core.NewFieldValidationError("reference_number", fmt.Sprintf("a reference number is required for %s payments", nf.Method))
	}
	if _, err := svc.schoolRepo.GetStudent(ctx, nf.StudentID); err != nil {
		if errors.Cause(err) == school.ErrStudentNotFound {
			return Fee{}, core.NewFieldValidationError("student_id", err.Error())
		}
		return Fee{}, errors.Wrap(err, "finding student")
	}

	var fee Fee
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		now := NowFunc().UTC()
		seq, err := svc.counter.Next(ctx, core.ReceiptDocumentaryFee, now.Year(), exec)
		if err != nil {
			return errors.Wrap(err, "getting receipt number")
		}
		fee, err = svc.repo.CreateFee(ctx, Fee{
			StudentID:       nf.StudentID,
			ReceiptNumber:   core.FormatReceiptNumber(core.ReceiptDocumentaryFee, now.Year(), seq),
			Description:     nf.Description,
			FeeAmount:       nf.FeeAmount.Round(2),
			PenaltyAmount:   nf.PenaltyAmount.Round(2),
			Method:          nf.Method,
			ReferenceNumber: nf.ReferenceNumber,
			PaymentDate:     nf.PaymentDate,
			Status:          StatusPending,
			CreatedBy:       actor.UserID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}, exec)
		return errors.Wrap(err, "creating documentary fee")
	})
	if err != nil {
		return Fee{}, err
	}
	svc.logger.Info(fmt.Sprintf("documentary fee %s created", fee.ReceiptNumber), actor)
	return fee, nil
}

// Update edits a fee; only pending fees may be edited.
func (svc *Service) Update(ctx context.Context, actor core.Actor, id string, uf UpdateFee) (Fee, error) {
	if err := svc.validate.Struct(uf); err != nil {
		return Fee{}, err
	}
	// omitempty skips zero amounts
	if uf.FeeAmount != nil && !uf.FeeAmount.IsPositive() {
		return Fee{}, core.NewFieldValidationError("fee_amount", "must be greater than 0")
	}

	var fee Fee
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		fee, err = svc.repo.LockFee(ctx, id, exec)
		if err != nil {
			return err
		}
		if fee.Status != StatusPending {
			return core.NewInvalidStateTransitionError("documentary fee", string(fee.Status), "edit")
		}

		if uf.Description != nil {
			fee.Description = core.CleanString(*uf.Description)
		}
		if uf.FeeAmount != nil {
			fee.FeeAmount = uf.FeeAmount.Round(2)
		}
		if uf.PenaltyAmount != nil {
			fee.PenaltyAmount = uf.PenaltyAmount.Round(2)
		}
		if uf.Method != nil {
			fee.Method = core.CleanString(*uf.Method, true /* lower */)
		}
		if uf.ReferenceNumber != nil {
			fee.ReferenceNumber = core.CleanString(*uf.ReferenceNumber)
		}
		if uf.PaymentDate != nil && !uf.PaymentDate.IsZero() {
			fee.PaymentDate = *uf.PaymentDate
		}
		fee.UpdatedAt = NowFunc().UTC()

		fee, err = svc.repo.UpdateFee(ctx, fee, exec)
		return errors.Wrap(err, "updating documentary fee")
	})
	if err != nil {
		return Fee{}, err
	}
	svc.logger.Info(fmt.Sprintf("documentary fee %s updated", fee.ReceiptNumber), actor)
	return fee, nil
}

func (svc *Service) Validate(ctx context.Context, actor core.Actor, id string) (Fee, error) {
	return svc.transition(ctx, actor, id, ActionValidate, "")
}

func (svc *Service) Cancel(ctx context.Context, actor core.Actor, id, reason string) (Fee, error) {
	return svc.transition(ctx, actor, id, ActionCancel, reason)
}

// Transition applies action (validate or cancel) to a pending fee.
func (svc *Service) Transition(ctx context.Context, actor core.Actor, id string, action Action, reason string) (Fee, error) {
	switch action {
	case ActionValidate:
		return svc.Validate(ctx, actor, id)
	case ActionCancel:
		return svc.Cancel(ctx, actor, id, reason)
	default:
		return Fee{}, core.NewFieldValidationError("action", "action must be one of: validate, cancel")
	}
}

func (svc *Service) transition(ctx context.Context, actor core.Actor, id string, action Action, reason string) (Fee, error) {
	var fee Fee
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		fee, err = svc.repo.LockFee(ctx, id, exec)
		if err != nil {
			return err
		}
		if err := fee.apply(action, actor, NowFunc().UTC(), core.CleanString(reason)); err != nil {
			return err
		}
		fee, err = svc.repo.UpdateFee(ctx, fee, exec)
		return errors.Wrap(err, "updating documentary fee")
	})
	if err != nil {
		return Fee{}, err
	}

	svc.logger.Info(fmt.Sprintf("documentary fee %s %s", fee.ReceiptNumber, fee.Status), actor)
	if fee.Status == StatusValidated {
		svc.sendReceipt(ctx, fee)
	}
	return fee, nil
}

func (svc *Service) sendReceipt(ctx context.Context, fee Fee) {
	if svc.mailSvc == nil {
		return
	}
	student, err := svc.schoolRepo.GetStudent(ctx, fee.StudentID)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("documentary fee receipt not sent: %v", err), err)
		return
	}
	if student.GuardianEmail == "" {
		return
	}

	data := ReceiptEmailData{
		GuardianName:  student.GuardianName,
		StudentName:   student.FullName(),
		ReceiptNumber: fee.ReceiptNumber,
		FeeAmount:     fee.FeeAmount.StringFixed(2),
		Total:         fee.Total().StringFixed(2),
		PaymentDate:   fee.PaymentDate.String(),
	}
	if data.GuardianName == "" {
		data.GuardianName = "Parent"
	}
	if fee.PenaltyAmount.IsPositive() {
		data.PenaltyAmount = fee.PenaltyAmount.StringFixed(2)
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:            []mail.Address{{Name: student.GuardianName, Address: student.GuardianEmail}},
		Subject:       "Documentary fee receipt " + fee.ReceiptNumber,
		TemplateName:  "docfee_receipt",
		TemplateData:  data,
		ReceiptNumber: fee.ReceiptNumber,
	})
}

func (svc *Service) Get(ctx context.Context, id string) (Fee, error) {
	return svc.repo.GetFee(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *Filter) ([]Fee, error) {
	return svc.repo.QueryFees(ctx, filter)
}
