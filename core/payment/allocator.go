package payment

import (
	"github.com/shopspring/decimal"
)

// Allocation is the share of a payment going to one tranche.
type Allocation struct {
	TrancheID     string
	Amount        decimal.Decimal
	Discount      decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
}

// AllocateFIFO fills the remaining amounts of lines in order with amount, after crediting the
// per-tranche discounts (keyed by tranche ID). Lines that receive nothing are skipped.
// It returns the allocations and the amount left over, which is zero unless amount exceeds the lines' balance.
func AllocateFIFO(amount decimal.Decimal, lines Ledger, discounts map[string]decimal.Decimal) ([]Allocation, decimal.Decimal) {
	left := amount
	allocations := make([]Allocation, 0, len(lines))

	for _, l := range lines {
		before := l.Remaining()
		discount := decimal.Zero
		if d, ok := discounts[l.Tranche.ID]; ok {
			discount = decimal.Min(d, before)
		}
		due := before.Sub(discount)

		allocated := decimal.Zero
		if left.IsPositive() && due.IsPositive() {
			allocated = decimal.Min(left, due)
			left = left.Sub(allocated)
		}
		if allocated.IsZero() && discount.IsZero() {
			continue
		}

		allocations = append(allocations, Allocation{
			TrancheID:     l.Tranche.ID,
			Amount:        allocated,
			Discount:      discount,
			BalanceBefore: before,
			BalanceAfter:  due.Sub(allocated),
		})
	}
	return allocations, left
}

// SplitDiscount spreads total over the lines proportionally to their remaining amounts, rounded to
// 2 decimal places; the last line with a balance absorbs the rounding difference.
func SplitDiscount(total decimal.Decimal, lines Ledger) map[string]decimal.Decimal {
	shares := make(map[string]decimal.Decimal, len(lines))
	outstanding := lines.Remaining()
	if !total.IsPositive() || !outstanding.IsPositive() {
		return shares
	}

	last := -1
	for i, l := range lines {
		if l.Remaining().IsPositive() {
			last = i
		}
	}

	given := decimal.Zero
	for i, l := range lines {
		rem := l.Remaining()
		if !rem.IsPositive() {
			continue
		}
		var share decimal.Decimal
		if i == last {
			share = total.Sub(given)
		} else {
			share = total.Mul(rem).Div(outstanding).Round(2)
		}
		shares[l.Tranche.ID] = share
		given = given.Add(share)
	}
	return shares
}

// DiscountedAmount is what must be tendered to settle outstanding with a percentage discount.
func DiscountedAmount(outstanding, percentage decimal.Decimal) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	return outstanding.Mul(hundred.Sub(percentage)).Div(hundred).Round(2)
}
