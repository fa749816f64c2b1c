package payment

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/trezcool/ecolage/core"
)

// NotEligibleError reasons
const (
	ReasonNoDiscountRule   = "no_discount_rule"
	ReasonDiscountExpired  = "discount_expired"
	ReasonStudentNotActive = "student_not_active"
)

// DiscountQuote is the outcome of a discount request on the eligible lines of a ledger.
type DiscountQuote struct {
	Rule        DiscountRule
	Outstanding decimal.Decimal
	Expected    decimal.Decimal
	Total       decimal.Decimal
	Shares      map[string]decimal.Decimal
}

// ResolveDiscountRule returns the active rule of classID, or else the active school-wide rule.
// Among rules of the same scope the most recently created wins.
func ResolveDiscountRule(rules []DiscountRule, classID string) (DiscountRule, bool) {
	var (
		classRule, schoolRule DiscountRule
		hasClass, hasSchool   bool
	)
	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		switch r.ClassID {
		case classID:
			if !hasClass || r.CreatedAt.After(classRule.CreatedAt) {
				classRule, hasClass = r, true
			}
		case "":
			if !hasSchool || r.CreatedAt.After(schoolRule.CreatedAt) {
				schoolRule, hasSchool = r, true
			}
		}
	}
	if hasClass {
		return classRule, true
	}
	return schoolRule, hasSchool
}

// QuoteDiscount checks that a discount applies to a payment made on versementDate and computes the
// amount to tender. The discount is granted on the whole outstanding balance of the eligible lines.
func QuoteDiscount(rules []DiscountRule, classID string, versementDate core.Date, eligible Ledger) (DiscountQuote, error) {
	rule, ok := ResolveDiscountRule(rules, classID)
	if !ok {
		return DiscountQuote{}, core.NewNotEligibleError(ReasonNoDiscountRule, "no discount is configured for this student's class")
	}
	if versementDate.After(rule.Deadline) {
		return DiscountQuote{}, core.NewNotEligibleError(
			ReasonDiscountExpired,
			fmt.Sprintf("the discount expired on %s", rule.Deadline),
		).
			WithDetail("deadline", rule.Deadline.String()).
			WithDetail("versement_date", versementDate.String())
	}

	outstanding := eligible.Remaining()
	if !outstanding.IsPositive() {
		return DiscountQuote{}, core.NewFieldValidationError("amount", "there is nothing outstanding to discount")
	}

	expected := DiscountedAmount(outstanding, rule.Percentage)
	total := outstanding.Sub(expected)
	return DiscountQuote{
		Rule:        rule,
		Outstanding: outstanding,
		Expected:    expected,
		Total:       total,
		Shares:      SplitDiscount(total, eligible),
	}, nil
}

// Check rejects any amount other than the expected one; the discount is all or nothing.
func (q DiscountQuote) Check(amount decimal.Decimal) error {
	if amount.Equal(q.Expected) {
		return nil
	}
	return core.NewFieldValidationError(
		"amount",
		fmt.Sprintf("with the discount, the amount must be exactly %s", q.Expected.StringFixed(2)),
	).
		WithDetail("expected_amount", q.Expected).
		WithDetail("outstanding_total", q.Outstanding).
		WithDetail("discount_percentage", q.Rule.Percentage)
}
