package docfee

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/ecolage/core"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusValidated Status = "validated"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsTerminal() bool { return s == StatusValidated || s == StatusCancelled }

type Action string

const (
	ActionValidate Action = "validate"
	ActionCancel   Action = "cancel"
)

// transitions lists, per action, the only state it may start from and the state it leads to.
var transitions = map[Action]struct{ from, to Status }{
	ActionValidate: {from: StatusPending, to: StatusValidated},
	ActionCancel:   {from: StatusPending, to: StatusCancelled},
}

// Fee is a one-off administrative fee, eg. a file-opening fee, independent of tranches.
type Fee struct {
	ID              string          `json:"id" db:"id"`
	StudentID       string          `json:"student_id" db:"student_id"`
	ReceiptNumber   string          `json:"receipt_number" db:"receipt_number"`
	Description     string          `json:"description" db:"description"`
	FeeAmount       decimal.Decimal `json:"fee_amount" db:"fee_amount"`
	PenaltyAmount   decimal.Decimal `json:"penalty_amount" db:"penalty_amount"`
	Method          string          `json:"payment_method" db:"method"`
	ReferenceNumber string          `json:"reference_number" db:"reference_number"`
	PaymentDate     core.Date       `json:"payment_date" db:"payment_date"`
	Status          Status          `json:"status" db:"status"`
	CreatedBy       string          `json:"created_by" db:"created_by"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
	ValidatedBy     string          `json:"validated_by,omitempty" db:"validated_by"`
	ValidatedAt     *time.Time      `json:"validated_at,omitempty" db:"validated_at"`
	CancelledBy     string          `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelReason    string          `json:"cancel_reason,omitempty" db:"cancel_reason"`
}

func (f Fee) Total() decimal.Decimal {
	return f.FeeAmount.Add(f.PenaltyAmount)
}

// apply moves the fee to the state action leads to, or fails when the fee is not in the starting state.
func (f *Fee) apply(action Action, actor core.Actor, at time.Time, reason string) error {
	tr, ok := transitions[action]
	if !ok {
		return core.NewFieldValidationError("action", "action must be one of: validate, cancel")
	}
	if f.Status != tr.from {
		return core.NewInvalidStateTransitionError("documentary fee", string(f.Status), string(action))
	}

	f.Status = tr.to
	f.UpdatedAt = at
	switch action {
	case ActionValidate:
		f.ValidatedBy = actor.UserID
		f.ValidatedAt = &at
	case ActionCancel:
		f.CancelledBy = actor.UserID
		f.CancelledAt = &at
		f.CancelReason = reason
	}
	return nil
}

type NewFee struct {
	StudentID       string          `json:"student_id" validate:"required"`
	Description     string          `json:"description" validate:"max=500"`
	FeeAmount       decimal.Decimal `json:"fee_amount" validate:"gt=0"`
	PenaltyAmount   decimal.Decimal `json:"penalty_amount" validate:"gte=0"`
	Method          string          `json:"payment_method" validate:"required,oneof=cash bank_transfer mobile_money check"`
	ReferenceNumber string          `json:"reference_number" validate:"max=100"`
	PaymentDate     core.Date       `json:"payment_date" validate:"required"`
}

func (nf *NewFee) Clean() {
	nf.StudentID = core.CleanString(nf.StudentID)
	nf.Description = core.CleanString(nf.Description)
	nf.Method = core.CleanString(nf.Method, true /* lower */)
	nf.ReferenceNumber = core.CleanString(nf.ReferenceNumber)
}

// UpdateFee holds the editable fields of a pending Fee; nil fields are left unchanged.
type UpdateFee struct {
	Description     *string          `json:"description" validate:"omitempty,max=500"`
	FeeAmount       *decimal.Decimal `json:"fee_amount" validate:"omitempty,gt=0"`
	PenaltyAmount   *decimal.Decimal `json:"penalty_amount" validate:"omitempty,gte=0"`
	Method          *string          `json:"payment_method" validate:"omitempty,oneof=cash bank_transfer mobile_money check"`
	ReferenceNumber *string          `json:"reference_number" validate:"omitempty,max=100"`
	PaymentDate     *core.Date       `json:"payment_date"`
}

type TransitionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type Filter struct {
	StudentID string `query:"student_id"`
	Status    Status `query:"status"`
}

// ReceiptEmailData is rendered by the docfee_receipt email templates.
type ReceiptEmailData struct {
	GuardianName  string
	StudentName   string
	ReceiptNumber string
	FeeAmount     string
	PenaltyAmount string
	Total         string
	PaymentDate   string
}
