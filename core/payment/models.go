package payment

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/ecolage/core"
)

// Payment methods
const (
	MethodCash         = "cash"
	MethodBankTransfer = "bank_transfer"
	MethodMobileMoney  = "mobile_money"
	MethodCheck        = "check"
)

var Methods = []string{MethodCash, MethodBankTransfer, MethodMobileMoney, MethodCheck}

// methodRequiresReference lists the methods that must carry a reference number.
var methodRequiresReference = map[string]bool{
	MethodBankTransfer: true,
	MethodCheck:        true,
}

// Payment is an immutable record of funds received from a student.
// Amount is the tendered amount; DiscountAmount is the credit granted on top of it.
type Payment struct {
	ID                  string          `json:"id" db:"id"`
	StudentID           string          `json:"student_id" db:"student_id"`
	ReceiptNumber       string          `json:"receipt_number" db:"receipt_number"`
	Amount              decimal.Decimal `json:"amount" db:"amount"`
	DiscountAmount      decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	Method              string          `json:"payment_method" db:"method"`
	ReferenceNumber     string          `json:"reference_number" db:"reference_number"`
	VersementDate       core.Date       `json:"versement_date" db:"versement_date"`
	ApplyGlobalDiscount bool            `json:"apply_global_discount" db:"apply_global_discount"`
	RecordedBy          string          `json:"recorded_by" db:"recorded_by"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	Details             []Detail        `json:"details" db:"-"`
}

// Detail is the part of a Payment allocated to one tranche.
type Detail struct {
	ID              string          `json:"id" db:"id"`
	PaymentID       string          `json:"payment_id" db:"payment_id"`
	TrancheID       string          `json:"tranche_id" db:"tranche_id"`
	AmountAllocated decimal.Decimal `json:"amount_allocated" db:"amount_allocated"`
	DiscountAmount  decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	BalanceBefore   decimal.Decimal `json:"balance_before" db:"balance_before"`
	BalanceAfter    decimal.Decimal `json:"balance_after" db:"balance_after"`
}

// Scholarship is a fixed credit granted to a student.
// It targets one tranche, or is spread over the mandatory tranches when TrancheID is empty.
type Scholarship struct {
	ID        string          `json:"id" db:"id"`
	StudentID string          `json:"student_id" db:"student_id"`
	TrancheID string          `json:"tranche_id,omitempty" db:"tranche_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Reason    string          `json:"reason" db:"reason"`
	IsActive  bool            `json:"is_active" db:"is_active"`
	CreatedBy string          `json:"created_by" db:"created_by"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// DiscountRule grants a percentage off the outstanding balance to payments made on or before Deadline.
// A rule without ClassID applies school-wide; a class rule wins over it.
type DiscountRule struct {
	ID          string          `json:"id" db:"id"`
	ClassID     string          `json:"class_id,omitempty" db:"class_id"`
	Percentage  decimal.Decimal `json:"percentage" db:"percentage"`
	Deadline    core.Date       `json:"deadline" db:"deadline"`
	Description string          `json:"description" db:"description"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	CreatedBy   string          `json:"created_by" db:"created_by"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// PhysicalContribution records whether the in-kind contribution of a physical-only tranche was received.
type PhysicalContribution struct {
	ID         string    `json:"id" db:"id"`
	StudentID  string    `json:"student_id" db:"student_id"`
	TrancheID  string    `json:"tranche_id" db:"tranche_id"`
	Received   bool      `json:"received" db:"received"`
	Note       string    `json:"note" db:"note"`
	RecordedBy string    `json:"recorded_by" db:"recorded_by"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// AllocationSum aggregates the prior details of a student for one tranche.
type AllocationSum struct {
	TrancheID string          `db:"tranche_id"`
	Paid      decimal.Decimal `db:"paid"`
	Discount  decimal.Decimal `db:"discount"`
}

type NewPayment struct {
	StudentID           string          `json:"-"`
	Amount              decimal.Decimal `json:"amount"`
	Method              string          `json:"payment_method" validate:"required,oneof=cash bank_transfer mobile_money check"`
	ReferenceNumber     string          `json:"reference_number" validate:"max=100"`
	VersementDate       core.Date       `json:"versement_date" validate:"required"`
	ApplyGlobalDiscount bool            `json:"apply_global_discount"`
	OptionalTrancheIDs  []string        `json:"optional_tranche_ids"`
}

func (np *NewPayment) Clean() {
	np.Method = core.CleanString(np.Method, true /* lower */)
	np.ReferenceNumber = core.CleanString(np.ReferenceNumber)
}

// AllocationResult is returned by Service.Allocate.
type AllocationResult struct {
	PaymentID        string          `json:"payment_id"`
	ReceiptNumber    string          `json:"receipt_number"`
	Details          []Detail        `json:"details"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
}

// TrancheStatus is one line of a student's payment status.
type TrancheStatus struct {
	TrancheID         string          `json:"tranche_id"`
	TrancheName       string          `json:"tranche_name"`
	Order             int             `json:"order"`
	IsOptional        bool            `json:"is_optional"`
	IsPhysicalOnly    bool            `json:"is_physical_only"`
	RequiredAmount    decimal.Decimal `json:"required_amount"`
	PaidAmount        decimal.Decimal `json:"paid_amount"`
	ScholarshipAmount decimal.Decimal `json:"scholarship_amount"`
	DiscountAmount    decimal.Decimal `json:"discount_amount"`
	RemainingAmount   decimal.Decimal `json:"remaining_amount"`
	IsFullyPaid       bool            `json:"is_fully_paid"`
	HasScholarship    bool            `json:"has_scholarship"`
	HasDiscount       bool            `json:"has_discount"`
}

type StudentStatus struct {
	StudentID      string          `json:"student_id"`
	Tranches       []TrancheStatus `json:"tranches"`
	TotalRequired  decimal.Decimal `json:"total_required"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	TotalRemaining decimal.Decimal `json:"total_remaining"`
}

type PaymentFilter struct {
	StudentID string    `query:"student_id"`
	Method    string    `query:"payment_method"`
	From      core.Date `query:"from"`
	To        core.Date `query:"to"`
}

// PaymentOrderingFields lists the fields payments may be ordered by.
var PaymentOrderingFields = []string{"created_at", "versement_date", "amount", "receipt_number"}

type NewScholarship struct {
	StudentID string          `json:"student_id" validate:"required"`
	TrancheID string          `json:"tranche_id"`
	Amount    decimal.Decimal `json:"amount" validate:"gt=0"`
	Reason    string          `json:"reason" validate:"max=500"`
}

type NewDiscountRule struct {
	ClassID     string          `json:"class_id"`
	Percentage  decimal.Decimal `json:"percentage" validate:"gt=0,lte=100"`
	Deadline    core.Date       `json:"deadline" validate:"required"`
	Description string          `json:"description" validate:"max=500"`
}

type SetContribution struct {
	TrancheID string `json:"tranche_id" validate:"required"`
	Received  bool   `json:"received"`
	Note      string `json:"note" validate:"max=500"`
}

// ReceiptEmailData is rendered by the payment_receipt email templates.
type ReceiptEmailData struct {
	GuardianName     string
	StudentName      string
	ReceiptNumber    string
	Amount           string
	Method           string
	VersementDate    string
	DiscountAmount   string
	RemainingBalance string
	Lines            []ReceiptEmailLine
}

type ReceiptEmailLine struct {
	TrancheName string
	Amount      string
	Discount    string
}
