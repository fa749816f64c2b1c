package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/school"
	"github.com/trezcool/ecolage/core/tranche"
	"github.com/trezcool/ecolage/core/user"
)

// NewValidator returns a validator wired with the custom tags and english translations.
func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")

	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr, err := repo.CreateUser(context.Background(), user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	require.NoError(t, err, "CreateUser()")
	return usr
}

func CreateClass(t *testing.T, repo school.Repository, name string, level int) school.Class {
	t.Helper()
	class, err := repo.CreateClass(context.Background(), school.Class{
		Name:      name,
		Level:     level,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err, "CreateClass()")
	return class
}

func CreateSeries(t *testing.T, repo school.Repository, class school.Class, name string) school.ClassSeries {
	t.Helper()
	series, err := repo.CreateSeries(context.Background(), school.ClassSeries{
		ClassID:      class.ID,
		Name:         name,
		AcademicYear: "2024-2025",
		CreatedAt:    time.Now().UTC(),
	})
	require.NoError(t, err, "CreateSeries()")
	return series
}

// CreateStudent enrolls a student in series; status defaults to enrolled.
func CreateStudent(t *testing.T, repo school.Repository, series school.ClassSeries, matricule string, status ...string) school.Student {
	t.Helper()
	st := school.StatusEnrolled
	if len(status) > 0 {
		st = status[0]
	}
	now := time.Now().UTC()
	student, err := repo.CreateStudent(context.Background(), school.Student{
		Matricule:     matricule,
		FirstName:     "Student",
		LastName:      matricule,
		SeriesID:      series.ID,
		ClassID:       series.ClassID,
		Status:        st,
		GuardianName:  "Guardian " + matricule,
		GuardianEmail: "guardian." + matricule + "@example.com",
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	require.NoError(t, err, "CreateStudent()")
	return student
}

// TrancheOpts sets the flags of a tranche created with CreateTranche.
type TrancheOpts struct {
	Inactive     bool
	Optional     bool
	PhysicalOnly bool
}

func CreateTranche(t *testing.T, repo tranche.Repository, name string, order int, opts ...TrancheOpts) tranche.Tranche {
	t.Helper()
	var o TrancheOpts
	if len(opts) > 0 {
		o = opts[0]
	}
	now := time.Now().UTC()
	tr, err := repo.CreateTranche(context.Background(), tranche.Tranche{
		Name:           name,
		Order:          order,
		IsActive:       !o.Inactive,
		IsOptional:     o.Optional,
		IsPhysicalOnly: o.PhysicalOnly,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	require.NoError(t, err, "CreateTranche()")
	return tr
}

func SetAmount(t *testing.T, repo tranche.Repository, class school.Class, tr tranche.Tranche, amount int64) tranche.ClassAmount {
	t.Helper()
	ca, err := repo.UpsertClassAmount(context.Background(), tranche.ClassAmount{
		ClassID:   class.ID,
		TrancheID: tr.ID,
		Amount:    decimal.NewFromInt(amount),
		UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err, "SetAmount()")
	return ca
}
