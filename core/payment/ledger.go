package payment

import (
	"github.com/shopspring/decimal"

	"github.com/trezcool/ecolage/core/tranche"
)

// LedgerLine is the position of a student on one tranche.
type LedgerLine struct {
	Tranche          tranche.Tranche
	Required         decimal.Decimal
	Paid             decimal.Decimal
	Scholarship      decimal.Decimal
	Discount         decimal.Decimal
	PhysicalReceived bool
}

// Remaining is what is still owed in money on the tranche; it is never negative.
func (l LedgerLine) Remaining() decimal.Decimal {
	if l.Tranche.IsPhysicalOnly {
		return decimal.Zero
	}
	rem := l.Required.Sub(l.Paid).Sub(l.Scholarship).Sub(l.Discount)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

func (l LedgerLine) IsFullyPaid() bool {
	if l.Tranche.IsPhysicalOnly {
		return l.PhysicalReceived
	}
	return l.Remaining().IsZero()
}

func (l LedgerLine) status() TrancheStatus {
	return TrancheStatus{
		TrancheID:         l.Tranche.ID,
		TrancheName:       l.Tranche.Name,
		Order:             l.Tranche.Order,
		IsOptional:        l.Tranche.IsOptional,
		IsPhysicalOnly:    l.Tranche.IsPhysicalOnly,
		RequiredAmount:    l.Required,
		PaidAmount:        l.Paid,
		ScholarshipAmount: l.Scholarship,
		DiscountAmount:    l.Discount,
		RemainingAmount:   l.Remaining(),
		IsFullyPaid:       l.IsFullyPaid(),
		HasScholarship:    l.Scholarship.IsPositive(),
		HasDiscount:       l.Discount.IsPositive(),
	}
}

// Ledger holds the lines of a student, in tranche order.
type Ledger []LedgerLine

// LedgerInput gathers what BuildLedger needs for one student.
type LedgerInput struct {
	Tranches      []tranche.Tranche     // active tranches
	ClassAmounts  []tranche.ClassAmount // amounts of the student's class
	Sums          []AllocationSum
	Scholarships  []Scholarship // active scholarships
	Contributions []PhysicalContribution
}

// BuildLedger computes the position of a student on every active tranche of their class.
// Tranches without an amount for the class are left out, except physical-only ones.
// Scholarship credits are applied after tendered payments and are capped so that
// paid + scholarship never exceeds the required amount; targeted scholarships are applied first.
func BuildLedger(in LedgerInput) Ledger {
	amounts := make(map[string]decimal.Decimal, len(in.ClassAmounts))
	for _, ca := range in.ClassAmounts {
		amounts[ca.TrancheID] = ca.Amount
	}
	sums := make(map[string]AllocationSum, len(in.Sums))
	for _, s := range in.Sums {
		sums[s.TrancheID] = s
	}
	received := make(map[string]bool, len(in.Contributions))
	for _, c := range in.Contributions {
		received[c.TrancheID] = c.Received
	}

	tranches := make([]tranche.Tranche, 0, len(in.Tranches))
	for _, t := range in.Tranches {
		if !t.IsActive {
			continue
		}
		if _, ok := amounts[t.ID]; ok || t.IsPhysicalOnly {
			tranches = append(tranches, t)
		}
	}
	tranche.SortByOrder(tranches)

	ledger := make(Ledger, 0, len(tranches))
	index := make(map[string]int, len(tranches))
	for _, t := range tranches {
		line := LedgerLine{
			Tranche:          t,
			Required:         decimal.Zero,
			Paid:             decimal.Zero,
			Scholarship:      decimal.Zero,
			Discount:         decimal.Zero,
			PhysicalReceived: received[t.ID],
		}
		if !t.IsPhysicalOnly {
			line.Required = amounts[t.ID]
			if s, ok := sums[t.ID]; ok {
				line.Paid = s.Paid
				line.Discount = s.Discount
			}
		}
		index[t.ID] = len(ledger)
		ledger = append(ledger, line)
	}

	// targeted scholarships first
	var untargeted []Scholarship
	for _, sch := range in.Scholarships {
		if !sch.IsActive {
			continue
		}
		if sch.TrancheID == "" {
			untargeted = append(untargeted, sch)
			continue
		}
		if i, ok := index[sch.TrancheID]; ok && !ledger[i].Tranche.IsPhysicalOnly {
			ledger[i].creditScholarship(sch.Amount)
		}
	}
	for _, sch := range untargeted {
		left := sch.Amount
		for i := range ledger {
			if left.IsZero() {
				break
			}
			if !ledger[i].Tranche.IsMandatory() {
				continue
			}
			left = left.Sub(ledger[i].creditScholarship(left))
		}
	}
	return ledger
}

// creditScholarship credits up to amount and returns what was credited.
func (l *LedgerLine) creditScholarship(amount decimal.Decimal) decimal.Decimal {
	room := l.Required.Sub(l.Paid).Sub(l.Discount).Sub(l.Scholarship)
	if !room.IsPositive() {
		return decimal.Zero
	}
	credit := decimal.Min(room, amount)
	l.Scholarship = l.Scholarship.Add(credit)
	return credit
}

// MandatoryRemaining is the outstanding money balance on mandatory tranches.
func (lg Ledger) MandatoryRemaining() decimal.Decimal {
	total := decimal.Zero
	for _, l := range lg {
		if l.Tranche.IsMandatory() {
			total = total.Add(l.Remaining())
		}
	}
	return total
}

// Eligible returns the lines that may receive money: mandatory tranches plus the listed optional ones.
func (lg Ledger) Eligible(optionalIDs map[string]bool) Ledger {
	eligible := make(Ledger, 0, len(lg))
	for _, l := range lg {
		if l.Tranche.IsPhysicalOnly {
			continue
		}
		if !l.Tranche.IsOptional || optionalIDs[l.Tranche.ID] {
			eligible = append(eligible, l)
		}
	}
	return eligible
}

// Remaining sums the remaining amounts of the lines.
func (lg Ledger) Remaining() decimal.Decimal {
	total := decimal.Zero
	for _, l := range lg {
		total = total.Add(l.Remaining())
	}
	return total
}

func (lg Ledger) Line(trancheID string) (LedgerLine, bool) {
	for _, l := range lg {
		if l.Tranche.ID == trancheID {
			return l, true
		}
	}
	return LedgerLine{}, false
}

// Status summarizes the ledger; totals cover mandatory tranches only.
func (lg Ledger) Status(studentID string) StudentStatus {
	st := StudentStatus{
		StudentID:      studentID,
		Tranches:       make([]TrancheStatus, 0, len(lg)),
		TotalRequired:  decimal.Zero,
		TotalPaid:      decimal.Zero,
		TotalRemaining: decimal.Zero,
	}
	for _, l := range lg {
		st.Tranches = append(st.Tranches, l.status())
		if l.Tranche.IsMandatory() {
			st.TotalRequired = st.TotalRequired.Add(l.Required)
			st.TotalPaid = st.TotalPaid.Add(l.Paid)
			st.TotalRemaining = st.TotalRemaining.Add(l.Remaining())
		}
	}
	return st
}
