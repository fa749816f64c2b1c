package payment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/payment"
	"github.com/trezcool/ecolage/core/school"
	"github.com/trezcool/ecolage/core/tranche"
	"github.com/trezcool/ecolage/core/user"
	"github.com/trezcool/ecolage/tests"
)

var bursar = core.Actor{UserID: "", Username: "bursar", Roles: []string{user.RoleAdminBursar}}

type fixture struct {
	env     *testutil.Env
	class   school.Class
	series  school.ClassSeries
	student school.Student
	t1      tranche.Tranche
	t2      tranche.Tranche
	t3      tranche.Tranche
}

// newFixture sets up a class with three tranches of 10000, 15000 and 5000.
func newFixture(t *testing.T) fixture {
	env := testutil.NewEnv()
	f := fixture{env: env}
	f.class = testutil.CreateClass(t, env.SchoolRepo, "6eme", 6)
	f.series = testutil.CreateSeries(t, env.SchoolRepo, f.class, "6eme A")
	f.student = testutil.CreateStudent(t, env.SchoolRepo, f.series, "MAT001")
	f.t1 = testutil.CreateTranche(t, env.TrancheRepo, "First", 1)
	f.t2 = testutil.CreateTranche(t, env.TrancheRepo, "Second", 2)
	f.t3 = testutil.CreateTranche(t, env.TrancheRepo, "Third", 3)
	testutil.SetAmount(t, env.TrancheRepo, f.class, f.t1, 10000)
	testutil.SetAmount(t, env.TrancheRepo, f.class, f.t2, 15000)
	testutil.SetAmount(t, env.TrancheRepo, f.class, f.t3, 5000)
	return f
}

func (f fixture) pay(amount int64, opts ...func(*payment.NewPayment)) (payment.AllocationResult, error) {
	np := payment.NewPayment{
		StudentID:     f.student.ID,
		Amount:        decimal.NewFromInt(amount),
		Method:        payment.MethodCash,
		VersementDate: core.NewDate(2025, time.January, 15),
	}
	for _, opt := range opts {
		opt(&np)
	}
	return f.env.PaymentSvc.Allocate(context.Background(), bursar, np)
}

func remaining(t *testing.T, f fixture) map[string]decimal.Decimal {
	t.Helper()
	st, err := f.env.PaymentSvc.Status(context.Background(), f.student.ID)
	require.NoError(t, err)
	rem := make(map[string]decimal.Decimal, len(st.Tranches))
	for _, ts := range st.Tranches {
		rem[ts.TrancheID] = ts.RemainingAmount
	}
	return rem
}

func assertRemaining(t *testing.T, f fixture, want ...int64) {
	t.Helper()
	rem := remaining(t, f)
	for i, tr := range []tranche.Tranche{f.t1, f.t2, f.t3} {
		assert.True(t, decimal.NewFromInt(want[i]).Equal(rem[tr.ID]), "%s: want %d, got %s", tr.Name, want[i], rem[tr.ID])
	}
}

// errorField returns the first invalid field of a validation error, translated or not.
func errorField(t *testing.T, err error) string {
	t.Helper()
	var vErr *core.ValidationError
	if errors.As(err, &vErr) {
		require.NotEmpty(t, vErr.Fields)
		return vErr.Fields[0].Field
	}
	var vErrs validator.ValidationErrors
	require.ErrorAs(t, err, &vErrs)
	return vErrs[0].Field()
}

func withDiscount(np *payment.NewPayment) { np.ApplyGlobalDiscount = true }

func on(d core.Date) func(*payment.NewPayment) {
	return func(np *payment.NewPayment) { np.VersementDate = d }
}

func TestService_Allocate(t *testing.T) {
	t.Run("partial payment", func(t *testing.T) {
		f := newFixture(t)
		res, err := f.pay(12000)
		require.NoError(t, err)

		assert.Equal(t, "PAY-"+time.Now().UTC().Format("2006")+"-000001", res.ReceiptNumber)
		require.Len(t, res.Details, 2)
		assert.Equal(t, f.t1.ID, res.Details[0].TrancheID)
		assert.True(t, decimal.NewFromInt(10000).Equal(res.Details[0].AmountAllocated))
		assert.Equal(t, f.t2.ID, res.Details[1].TrancheID)
		assert.True(t, decimal.NewFromInt(2000).Equal(res.Details[1].AmountAllocated))
		assert.True(t, decimal.NewFromInt(18000).Equal(res.RemainingBalance))
		assertRemaining(t, f, 0, 13000, 5000)
	})

	t.Run("exact balance", func(t *testing.T) {
		f := newFixture(t)
		res, err := f.pay(30000)
		require.NoError(t, err)
		assert.True(t, res.RemainingBalance.IsZero())
		assertRemaining(t, f, 0, 0, 0)

		st, err := f.env.PaymentSvc.Status(context.Background(), f.student.ID)
		require.NoError(t, err)
		for _, ts := range st.Tranches {
			assert.True(t, ts.IsFullyPaid, ts.TrancheName)
		}
	})

	t.Run("overpayment is rejected and nothing is stored", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.pay(30001)

		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "amount", vErr.Fields[0].Field)
		assert.True(t, decimal.NewFromInt(30000).Equal(vErr.Details["remaining_balance"].(decimal.Decimal)))

		pmts, err := f.env.PaymentSvc.Query(context.Background(), &payment.PaymentFilter{StudentID: f.student.ID}, nil)
		require.NoError(t, err)
		assert.Empty(t, pmts)
		assertRemaining(t, f, 10000, 15000, 5000)

		// the receipt number was not consumed
		res, err := f.pay(100)
		require.NoError(t, err)
		assert.Contains(t, res.ReceiptNumber, "-000001")
	})

	t.Run("successive payments", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.pay(12000)
		require.NoError(t, err)
		res, err := f.pay(15000)
		require.NoError(t, err)
		assert.Contains(t, res.ReceiptNumber, "-000002")
		assertRemaining(t, f, 0, 0, 3000)
	})

	t.Run("invalid input", func(t *testing.T) {
		f := newFixture(t)
		tests := []struct {
			name  string
			opt   func(*payment.NewPayment)
			field string
		}{
			{"zero amount", func(np *payment.NewPayment) { np.Amount = decimal.Zero }, "amount"},
			{"negative amount", func(np *payment.NewPayment) { np.Amount = decimal.NewFromInt(-5) }, "amount"},
			{"too many decimals", func(np *payment.NewPayment) { np.Amount = decimal.RequireFromString("10.001") }, "amount"},
			{"unknown method", func(np *payment.NewPayment) { np.Method = "barter" }, "payment_method"},
			{"missing date", func(np *payment.NewPayment) { np.VersementDate = core.Date{} }, "versement_date"},
			{"missing reference", func(np *payment.NewPayment) { np.Method = payment.MethodCheck }, "reference_number"},
			{"unknown optional tranche", func(np *payment.NewPayment) { np.OptionalTrancheIDs = []string{"nope"} }, "optional_tranche_ids"},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				_, err := f.pay(1000, tc.opt)
				assert.Equal(t, tc.field, errorField(t, err))
			})
		}
	})

	t.Run("unknown student", func(t *testing.T) {
		f := newFixture(t)
		f.student.ID = "unknown"
		_, err := f.pay(1000)
		assert.Equal(t, school.ErrStudentNotFound, errors.Cause(err))
	})

	t.Run("withdrawn student", func(t *testing.T) {
		f := newFixture(t)
		f.student = testutil.CreateStudent(t, f.env.SchoolRepo, f.series, "MAT002", school.StatusWithdrawn)
		_, err := f.pay(1000)
		var neErr *core.NotEligibleError
		require.ErrorAs(t, err, &neErr)
		assert.Equal(t, payment.ReasonStudentNotActive, neErr.Reason)
	})

	t.Run("receipt is mailed to the guardian", func(t *testing.T) {
		f := newFixture(t)
		res, err := f.pay(12000)
		require.NoError(t, err)
		msgs := f.env.Mail.SentMessages()
		require.Len(t, msgs, 1)
		assert.Equal(t, f.student.GuardianEmail, msgs[0].To[0].Address)
		assert.Equal(t, res.ReceiptNumber, msgs[0].ReceiptNumber)
		assert.Contains(t, msgs[0].TextContent, "First")
	})
}

func TestService_Allocate_discount(t *testing.T) {
	// one tranche of 20000 outstanding with a 10% school-wide rule until 2025-01-31
	setup := func(t *testing.T) fixture {
		env := testutil.NewEnv()
		f := fixture{env: env}
		f.class = testutil.CreateClass(t, env.SchoolRepo, "5eme", 5)
		f.series = testutil.CreateSeries(t, env.SchoolRepo, f.class, "5eme A")
		f.student = testutil.CreateStudent(t, env.SchoolRepo, f.series, "MAT100")
		f.t1 = testutil.CreateTranche(t, env.TrancheRepo, "Annual", 1)
		testutil.SetAmount(t, env.TrancheRepo, f.class, f.t1, 20000)
		_, err := env.PaymentSvc.CreateDiscountRule(context.Background(), bursar, payment.NewDiscountRule{
			Percentage: decimal.NewFromInt(10),
			Deadline:   core.NewDate(2025, time.January, 31),
		})
		require.NoError(t, err)
		return f
	}

	t.Run("discounted amount before the deadline", func(t *testing.T) {
		f := setup(t)
		res, err := f.pay(18000, withDiscount, on(core.NewDate(2025, time.January, 31)))
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(2000).Equal(res.DiscountAmount))
		assert.True(t, res.RemainingBalance.IsZero())
		require.Len(t, res.Details, 1)
		assert.True(t, decimal.NewFromInt(2000).Equal(res.Details[0].DiscountAmount))

		st, err := f.env.PaymentSvc.Status(context.Background(), f.student.ID)
		require.NoError(t, err)
		assert.True(t, st.Tranches[0].IsFullyPaid)
		assert.True(t, st.Tranches[0].HasDiscount)
	})

	t.Run("full amount with discount is a mismatch", func(t *testing.T) {
		f := setup(t)
		_, err := f.pay(20000, withDiscount, on(core.NewDate(2025, time.January, 20)))
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "amount", vErr.Fields[0].Field)
		assert.True(t, decimal.NewFromInt(18000).Equal(vErr.Details["expected_amount"].(decimal.Decimal)))
	})

	t.Run("expired", func(t *testing.T) {
		f := setup(t)
		_, err := f.pay(18000, withDiscount, on(core.NewDate(2025, time.February, 1)))
		var neErr *core.NotEligibleError
		require.ErrorAs(t, err, &neErr)
		assert.Equal(t, payment.ReasonDiscountExpired, neErr.Reason)
	})

	t.Run("no rule", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.pay(27000, withDiscount)
		var neErr *core.NotEligibleError
		require.ErrorAs(t, err, &neErr)
		assert.Equal(t, payment.ReasonNoDiscountRule, neErr.Reason)
	})

	t.Run("one active rule per scope", func(t *testing.T) {
		f := setup(t)
		_, err := f.env.PaymentSvc.CreateDiscountRule(context.Background(), bursar, payment.NewDiscountRule{
			Percentage: decimal.NewFromInt(5),
			Deadline:   core.NewDate(2025, time.March, 1),
		})
		assert.Equal(t, "class_id", errorField(t, err))

		_, err = f.env.PaymentSvc.CreateDiscountRule(context.Background(), bursar, payment.NewDiscountRule{
			ClassID:    f.class.ID,
			Percentage: decimal.NewFromInt(5),
			Deadline:   core.NewDate(2025, time.March, 1),
		})
		assert.NoError(t, err)
	})

	t.Run("deactivated rule no longer applies", func(t *testing.T) {
		f := setup(t)
		rules, err := f.env.PaymentSvc.ListDiscountRules(context.Background(), true)
		require.NoError(t, err)
		require.Len(t, rules, 1)
		_, err = f.env.PaymentSvc.DeactivateDiscountRule(context.Background(), bursar, rules[0].ID)
		require.NoError(t, err)

		_, err = f.pay(18000, withDiscount, on(core.NewDate(2025, time.January, 10)))
		var neErr *core.NotEligibleError
		require.ErrorAs(t, err, &neErr)
		assert.Equal(t, payment.ReasonNoDiscountRule, neErr.Reason)
	})
}

func TestService_Allocate_scholarship(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.env.PaymentSvc.CreateScholarship(ctx, bursar, payment.NewScholarship{
		StudentID: f.student.ID,
		TrancheID: f.t2.ID,
		Amount:    decimal.NewFromInt(5000),
		Reason:    "merit",
	})
	require.NoError(t, err)
	assertRemaining(t, f, 10000, 10000, 5000)

	// the balance now excludes the scholarship
	_, err = f.pay(25001)
	assert.Equal(t, "amount", errorField(t, err))

	res, err := f.pay(25000)
	require.NoError(t, err)
	assert.True(t, res.RemainingBalance.IsZero())
	assertRemaining(t, f, 0, 0, 0)

	scholarships, err := f.env.PaymentSvc.ListScholarships(ctx, f.student.ID, true)
	require.NoError(t, err)
	assert.Len(t, scholarships, 1)
}

func TestService_CreateScholarship_invalid(t *testing.T) {
	f := newFixture(t)
	phys := testutil.CreateTranche(t, f.env.TrancheRepo, "Ream", 4, testutil.TrancheOpts{PhysicalOnly: true})

	tests := []struct {
		name  string
		ns    payment.NewScholarship
		field string
	}{
		{"unknown student", payment.NewScholarship{StudentID: "nope", Amount: decimal.NewFromInt(1)}, "student_id"},
		{"unknown tranche", payment.NewScholarship{StudentID: f.student.ID, TrancheID: "nope", Amount: decimal.NewFromInt(1)}, "tranche_id"},
		{"physical-only tranche", payment.NewScholarship{StudentID: f.student.ID, TrancheID: phys.ID, Amount: decimal.NewFromInt(1)}, "tranche_id"},
		{"zero amount", payment.NewScholarship{StudentID: f.student.ID}, "amount"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.env.PaymentSvc.CreateScholarship(context.Background(), bursar, tc.ns)
			assert.Equal(t, tc.field, errorField(t, err))
		})
	}
}

func TestService_Allocate_optionalTranche(t *testing.T) {
	f := newFixture(t)
	transport := testutil.CreateTranche(t, f.env.TrancheRepo, "Transport", 4, testutil.TrancheOpts{Optional: true})
	testutil.SetAmount(t, f.env.TrancheRepo, f.class, transport, 4000)

	// optional tranches are not part of the balance unless selected
	_, err := f.pay(34000)
	assert.Equal(t, "amount", errorField(t, err))

	res, err := f.pay(34000, func(np *payment.NewPayment) { np.OptionalTrancheIDs = []string{transport.ID} })
	require.NoError(t, err)
	require.Len(t, res.Details, 4)
	assert.Equal(t, transport.ID, res.Details[3].TrancheID)
	assert.True(t, res.RemainingBalance.IsZero())

	// mandatory tranches are rejected as optional ones
	_, err = f.pay(1, func(np *payment.NewPayment) { np.OptionalTrancheIDs = []string{f.t1.ID} })
	assert.Equal(t, "optional_tranche_ids", errorField(t, err))
}

func TestService_SetPhysicalContribution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ream := testutil.CreateTranche(t, f.env.TrancheRepo, "Ream", 4, testutil.TrancheOpts{PhysicalOnly: true})

	_, err := f.env.PaymentSvc.SetPhysicalContribution(ctx, bursar, f.student.ID, payment.SetContribution{TrancheID: f.t1.ID, Received: true})
	assert.Equal(t, "tranche_id", errorField(t, err))

	st, err := f.env.PaymentSvc.Status(ctx, f.student.ID)
	require.NoError(t, err)
	require.Len(t, st.Tranches, 4)
	assert.False(t, st.Tranches[3].IsFullyPaid)
	assert.True(t, st.Tranches[3].RemainingAmount.IsZero())

	for _, received := range []bool{true, false, true} {
		c, err := f.env.PaymentSvc.SetPhysicalContribution(ctx, bursar, f.student.ID, payment.SetContribution{
			TrancheID: ream.ID,
			Received:  received,
		})
		require.NoError(t, err)
		assert.Equal(t, received, c.Received)
	}
	contributions, err := f.env.PaymentSvc.ListContributions(ctx, f.student.ID)
	require.NoError(t, err)
	assert.Len(t, contributions, 1)

	st, err = f.env.PaymentSvc.Status(ctx, f.student.ID)
	require.NoError(t, err)
	assert.True(t, st.Tranches[3].IsFullyPaid)
	assert.True(t, decimal.NewFromInt(30000).Equal(st.TotalRemaining), "physical tranches never owe money")

	// a payment never reaches a physical-only tranche
	res, err := f.pay(30000)
	require.NoError(t, err)
	for _, d := range res.Details {
		assert.NotEqual(t, ream.ID, d.TrancheID)
	}
}

func TestService_Status_isReadOnly(t *testing.T) {
	f := newFixture(t)
	_, err := f.pay(12000)
	require.NoError(t, err)

	first, err := f.env.PaymentSvc.Status(context.Background(), f.student.ID)
	require.NoError(t, err)
	second, err := f.env.PaymentSvc.Status(context.Background(), f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.True(t, decimal.NewFromInt(12000).Equal(first.TotalPaid))
	assert.True(t, decimal.NewFromInt(18000).Equal(first.TotalRemaining))
}

func TestService_Query(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.pay(1000)
	require.NoError(t, err)
	_, err = f.pay(2000, func(np *payment.NewPayment) {
		np.Method = payment.MethodMobileMoney
		np.VersementDate = core.NewDate(2025, time.March, 1)
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter *payment.PaymentFilter
		want   int
	}{
		{"all", nil, 2},
		{"by method", &payment.PaymentFilter{Method: payment.MethodMobileMoney}, 1},
		{"from", &payment.PaymentFilter{From: core.NewDate(2025, time.February, 1)}, 1},
		{"to", &payment.PaymentFilter{To: core.NewDate(2025, time.February, 1)}, 1},
		{"other student", &payment.PaymentFilter{StudentID: "other"}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pmts, err := f.env.PaymentSvc.Query(ctx, tc.filter, nil)
			require.NoError(t, err)
			assert.Len(t, pmts, tc.want)
		})
	}

	pmts, err := f.env.PaymentSvc.Query(ctx, nil, []core.DBOrdering{{Field: "amount", Ascending: true}})
	require.NoError(t, err)
	require.Len(t, pmts, 2)
	assert.True(t, pmts[0].Amount.LessThan(pmts[1].Amount))

	got, err := f.env.PaymentSvc.Get(ctx, pmts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, pmts[0].ReceiptNumber, got.ReceiptNumber)
	assert.NotEmpty(t, got.Details)

	_, err = f.env.PaymentSvc.Get(ctx, "nope")
	assert.True(t, core.IsNotFound(err))
}

func TestService_Allocate_concurrent(t *testing.T) {
	tests := []struct {
		name        string
		amount      int64
		workers     int
		wantSuccess int
	}{
		{name: "two payments over the balance", amount: 20000, workers: 2, wantSuccess: 1},
		{name: "many small payments", amount: 5000, workers: 10, wantSuccess: 6},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				receipts = make(map[string]bool)
				errs     []error
			)
			for i := 0; i < tc.workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					res, err := f.pay(tc.amount)
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						errs = append(errs, err)
						return
					}
					receipts[res.ReceiptNumber] = true
				}()
			}
			wg.Wait()

			assert.Len(t, receipts, tc.wantSuccess, "one receipt per accepted payment")
			require.Len(t, errs, tc.workers-tc.wantSuccess)
			for _, err := range errs {
				var vErr *core.ValidationError
				assert.ErrorAs(t, err, &vErr, "rejected as an overpayment")
			}

			st, err := f.env.PaymentSvc.Status(context.Background(), f.student.ID)
			require.NoError(t, err)
			want := decimal.NewFromInt(tc.amount * int64(tc.wantSuccess))
			assert.True(t, want.Equal(st.TotalPaid), "total paid = %s", st.TotalPaid)
			assert.False(t, st.TotalPaid.GreaterThan(st.TotalRequired), "never overpaid")
		})
	}
}
