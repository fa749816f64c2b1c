package tranche

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/ecolage/core"
)

// Tranche is an ordered installment of the school fees, eg. "Inscription" or "1st Trimester".
type Tranche struct {
	ID             string    `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Description    string    `json:"description" db:"description"`
	Order          int       `json:"order" db:"display_order"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	IsOptional     bool      `json:"is_optional" db:"is_optional"`
	IsPhysicalOnly bool      `json:"is_physical_only" db:"is_physical_only"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// IsMandatory reports whether the tranche counts towards the money a student owes.
func (t Tranche) IsMandatory() bool {
	return t.IsActive && !t.IsOptional && !t.IsPhysicalOnly
}

// ClassAmount is the amount due for a tranche by the students of a class.
type ClassAmount struct {
	ID        string          `json:"id" db:"id"`
	ClassID   string          `json:"class_id" db:"class_id"`
	TrancheID string          `json:"tranche_id" db:"tranche_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// SortByOrder sorts tranches by display order, then name, then ID.
func SortByOrder(tranches []Tranche) {
	sort.SliceStable(tranches, func(i, j int) bool {
		a, b := tranches[i], tranches[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

type NewTranche struct {
	Name           string `json:"name" validate:"required,max=100"`
	Description    string `json:"description" validate:"max=500"`
	Order          int    `json:"order" validate:"gte=0"` // 0: after the last tranche
	IsActive       *bool  `json:"is_active"`
	IsOptional     bool   `json:"is_optional"`
	IsPhysicalOnly bool   `json:"is_physical_only"`
}

func (nt *NewTranche) Clean() {
	nt.Name = core.CleanString(nt.Name)
	nt.Description = core.CleanString(nt.Description)
}

// UpdateTranche holds the editable fields of a Tranche; nil and empty fields are left unchanged.
// Orders are changed through Reorder only.
type UpdateTranche struct {
	Name           string  `json:"name" validate:"max=100"`
	Description    *string `json:"description" validate:"omitempty,max=500"`
	IsActive       *bool   `json:"is_active"`
	IsOptional     *bool   `json:"is_optional"`
	IsPhysicalOnly *bool   `json:"is_physical_only"`
}

func (ut *UpdateTranche) Clean() {
	ut.Name = core.CleanString(ut.Name)
	if ut.Description != nil {
		desc := core.CleanString(*ut.Description)
		ut.Description = &desc
	}
}

type SetClassAmount struct {
	ClassID   string          `json:"class_id" validate:"required"`
	TrancheID string          `json:"tranche_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"gte=0"`
}

type ClassAmountFilter struct {
	ClassID   string `query:"class_id"`
	TrancheID string `query:"tranche_id"`
}

type OrderEntry struct {
	TrancheID string `json:"tranche_id" validate:"required"`
	Order     int    `json:"order" validate:"gte=1"`
}

// DeletionImpact counts the records a tranche deletion would cascade to.
type DeletionImpact struct {
	TrancheID             string `json:"tranche_id"`
	ClassAmounts          int    `json:"class_amounts"`
	PaymentDetails        int    `json:"payment_details"`
	Payments              int    `json:"payments"`
	PhysicalContributions int    `json:"physical_contributions"`
	Scholarships          int    `json:"scholarships"`
}

// InUse reports whether deleting the tranche would cascade to any other record.
func (di DeletionImpact) InUse() bool {
	return di.ClassAmounts > 0 || di.PaymentDetails > 0 || di.PhysicalContributions > 0 || di.Scholarships > 0
}

type DeletionResult struct {
	Deleted                    bool `json:"deleted"`
	CascadedAmountsCount       int  `json:"cascaded_amounts_count"`
	CascadedDetailsCount       int  `json:"cascaded_details_count"`
	CascadedContributionsCount int  `json:"cascaded_contributions_count"`
	CascadedScholarshipsCount  int  `json:"cascaded_scholarships_count"`
}
