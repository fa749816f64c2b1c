package sqlxrepos

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/payment"
)

const (
	paymentColumns = `id, student_id, receipt_number, amount, discount_amount, method, reference_number,
		versement_date, apply_global_discount, recorded_by, created_at`
	detailColumns       = `id, payment_id, tranche_id, amount_allocated, discount_amount, balance_before, balance_after`
	scholarshipColumns  = `id, student_id, tranche_id, amount, reason, is_active, created_by, created_at`
	discountRuleColumns = `id, class_id, percentage, deadline, description, is_active, created_by, created_at`
	contributionColumns = `id, student_id, tranche_id, received, note, recorded_by, updated_at`
)

// nullID maps the empty string to NULL for nullable UUID columns.
func nullID(id string) null.String {
	return null.NewString(id, id != "")
}

type paymentRow struct {
	ID                  string          `db:"id"`
	StudentID           string          `db:"student_id"`
	ReceiptNumber       string          `db:"receipt_number"`
	Amount              decimal.Decimal `db:"amount"`
	DiscountAmount      decimal.Decimal `db:"discount_amount"`
	Method              string          `db:"method"`
	ReferenceNumber     string          `db:"reference_number"`
	VersementDate       core.Date       `db:"versement_date"`
	ApplyGlobalDiscount bool            `db:"apply_global_discount"`
	RecordedBy          null.String     `db:"recorded_by"`
	CreatedAt           time.Time       `db:"created_at"`
}

func newPaymentRow(p payment.Payment) paymentRow {
	return paymentRow{
		ID:                  p.ID,
		StudentID:           p.StudentID,
		ReceiptNumber:       p.ReceiptNumber,
		Amount:              p.Amount,
		DiscountAmount:      p.DiscountAmount,
		Method:              p.Method,
		ReferenceNumber:     p.ReferenceNumber,
		VersementDate:       p.VersementDate,
		ApplyGlobalDiscount: p.ApplyGlobalDiscount,
		RecordedBy:          nullID(p.RecordedBy),
		CreatedAt:           p.CreatedAt.UTC(),
	}
}

func (r paymentRow) payment() payment.Payment {
	return payment.Payment{
		ID:                  r.ID,
		StudentID:           r.StudentID,
		ReceiptNumber:       r.ReceiptNumber,
		Amount:              r.Amount,
		DiscountAmount:      r.DiscountAmount,
		Method:              r.Method,
		ReferenceNumber:     r.ReferenceNumber,
		VersementDate:       r.VersementDate,
		ApplyGlobalDiscount: r.ApplyGlobalDiscount,
		RecordedBy:          r.RecordedBy.String,
		CreatedAt:           r.CreatedAt.UTC(),
		Details:             []payment.Detail{},
	}
}

type scholarshipRow struct {
	ID        string          `db:"id"`
	StudentID string          `db:"student_id"`
	TrancheID null.String     `db:"tranche_id"`
	Amount    decimal.Decimal `db:"amount"`
	Reason    string          `db:"reason"`
	IsActive  bool            `db:"is_active"`
	CreatedBy null.String     `db:"created_by"`
	CreatedAt time.Time       `db:"created_at"`
}

func newScholarshipRow(s payment.Scholarship) scholarshipRow {
	return scholarshipRow{
		ID:        s.ID,
		StudentID: s.StudentID,
		TrancheID: nullID(s.TrancheID),
		Amount:    s.Amount,
		Reason:    s.Reason,
		IsActive:  s.IsActive,
		CreatedBy: nullID(s.CreatedBy),
		CreatedAt: s.CreatedAt.UTC(),
	}
}

func (r scholarshipRow) scholarship() payment.Scholarship {
	return payment.Scholarship{
		ID:        r.ID,
		StudentID: r.StudentID,
		TrancheID: r.TrancheID.String,
		Amount:    r.Amount,
		Reason:    r.Reason,
		IsActive:  r.IsActive,
		CreatedBy: r.CreatedBy.String,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type discountRuleRow struct {
	ID          string          `db:"id"`
	ClassID     null.String     `db:"class_id"`
	Percentage  decimal.Decimal `db:"percentage"`
	Deadline    core.Date       `db:"deadline"`
	Description string          `db:"description"`
	IsActive    bool            `db:"is_active"`
	CreatedBy   null.String     `db:"created_by"`
	CreatedAt   time.Time       `db:"created_at"`
}

func newDiscountRuleRow(r payment.DiscountRule) discountRuleRow {
	return discountRuleRow{
		ID:          r.ID,
		ClassID:     nullID(r.ClassID),
		Percentage:  r.Percentage,
		Deadline:    r.Deadline,
		Description: r.Description,
		IsActive:    r.IsActive,
		CreatedBy:   nullID(r.CreatedBy),
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

func (r discountRuleRow) rule() payment.DiscountRule {
	return payment.DiscountRule{
		ID:          r.ID,
		ClassID:     r.ClassID.String,
		Percentage:  r.Percentage,
		Deadline:    r.Deadline,
		Description: r.Description,
		IsActive:    r.IsActive,
		CreatedBy:   r.CreatedBy.String,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type contributionRow struct {
	ID         string      `db:"id"`
	StudentID  string      `db:"student_id"`
	TrancheID  string      `db:"tranche_id"`
	Received   bool        `db:"received"`
	Note       string      `db:"note"`
	RecordedBy null.String `db:"recorded_by"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

func (r contributionRow) contribution() payment.PhysicalContribution {
	return payment.PhysicalContribution{
		ID:         r.ID,
		StudentID:  r.StudentID,
		TrancheID:  r.TrancheID,
		Received:   r.Received,
		Note:       r.Note,
		RecordedBy: r.RecordedBy.String,
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

type paymentRepository struct {
	repository
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(exec core.DBExecutor) *paymentRepository {
	return &paymentRepository{repository{exec: exec}}
}

// CreatePayment must run in a transaction so the payment and its details are stored together.
func (repo paymentRepository) CreatePayment(ctx context.Context, p payment.Payment, exec ...core.DBExecutor) (payment.Payment, error) {
	exe := repo.getExec(exec)
	p.ID = newID()
	p.CreatedAt = p.CreatedAt.UTC()

	q := `INSERT INTO payment (` + paymentColumns + `)
		VALUES (:id, :student_id, :receipt_number, :amount, :discount_amount, :method, :reference_number,
		:versement_date, :apply_global_discount, :recorded_by, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exe, q, newPaymentRow(p)); err != nil {
		return payment.Payment{}, errors.Wrap(err, "inserting payment")
	}

	details := make([]payment.Detail, 0, len(p.Details))
	dq := `INSERT INTO payment_detail (` + detailColumns + `)
		VALUES (:id, :payment_id, :tranche_id, :amount_allocated, :discount_amount, :balance_before, :balance_after)`
	for _, d := range p.Details {
		d.ID = newID()
		d.PaymentID = p.ID
		if _, err := sqlx.NamedExecContext(ctx, exe, dq, d); err != nil {
			return payment.Payment{}, errors.Wrap(err, "inserting payment detail")
		}
		details = append(details, d)
	}
	p.Details = details
	return p, nil
}

func (repo paymentRepository) GetPayment(ctx context.Context, id string, exec ...core.DBExecutor) (payment.Payment, error) {
	if !validID(id) {
		return payment.Payment{}, payment.ErrNotFound
	}
	exe := repo.getExec(exec)

	var row paymentRow
	q := `SELECT ` + paymentColumns + ` FROM payment WHERE id = $1`
	if err := sqlx.GetContext(ctx, exe, &row, q, id); err != nil {
		return payment.Payment{}, trapNoRowsErr(err, payment.ErrNotFound, "finding payment")
	}
	pmts, err := repo.withDetails(ctx, exe, []paymentRow{row})
	if err != nil {
		return payment.Payment{}, err
	}
	return pmts[0], nil
}

func (repo paymentRepository) QueryPayments(ctx context.Context, filter *payment.PaymentFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]payment.Payment, error) {
	exe := repo.getExec(exec)

	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter != nil {
		if filter.StudentID != "" {
			conds = append(conds, "student_id::text = "+arg(filter.StudentID))
		}
		if filter.Method != "" {
			conds = append(conds, "method = "+arg(filter.Method))
		}
		if !filter.From.IsZero() {
			conds = append(conds, "versement_date >= "+arg(filter.From))
		}
		if !filter.To.IsZero() {
			conds = append(conds, "versement_date <= "+arg(filter.To))
		}
	}

	var rows []paymentRow
	q := `SELECT ` + paymentColumns + ` FROM payment` + where(conds) + orderBy(ordering, "created_at DESC, id ASC")
	if err := sqlx.SelectContext(ctx, exe, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	return repo.withDetails(ctx, exe, rows)
}

// withDetails loads the details of the given payments in one query.
func (repo paymentRepository) withDetails(ctx context.Context, exe core.DBExecutor, rows []paymentRow) ([]payment.Payment, error) {
	pmts := make([]payment.Payment, 0, len(rows))
	if len(rows) == 0 {
		return pmts, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	var details []payment.Detail
	q := `SELECT d.id, d.payment_id, d.tranche_id, d.amount_allocated, d.discount_amount, d.balance_before, d.balance_after
		FROM payment_detail d LEFT JOIN tranche t ON t.id = d.tranche_id
		WHERE d.payment_id::text = ANY($1) ORDER BY t.display_order ASC, d.id ASC`
	if err := sqlx.SelectContext(ctx, exe, &details, q, pq.StringArray(ids)); err != nil {
		return nil, errors.Wrap(err, "querying payment details")
	}
	byPayment := make(map[string][]payment.Detail, len(rows))
	for _, d := range details {
		byPayment[d.PaymentID] = append(byPayment[d.PaymentID], d)
	}

	for _, r := range rows {
		p := r.payment()
		if ds, ok := byPayment[r.ID]; ok {
			p.Details = ds
		}
		pmts = append(pmts, p)
	}
	return pmts, nil
}

func (repo paymentRepository) SumAllocations(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]payment.AllocationSum, error) {
	sums := make([]payment.AllocationSum, 0)
	if !validID(studentID) {
		return sums, nil
	}
	q := `SELECT d.tranche_id, COALESCE(SUM(d.amount_allocated), 0) AS paid, COALESCE(SUM(d.discount_amount), 0) AS discount
		FROM payment_detail d JOIN payment p ON p.id = d.payment_id
		WHERE p.student_id = $1 GROUP BY d.tranche_id`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &sums, q, studentID); err != nil {
		return nil, errors.Wrap(err, "summing allocations")
	}
	return sums, nil
}

func (repo paymentRepository) CreateScholarship(ctx context.Context, s payment.Scholarship, exec ...core.DBExecutor) (payment.Scholarship, error) {
	s.ID = newID()
	q := `INSERT INTO scholarship (` + scholarshipColumns + `)
		VALUES (:id, :student_id, :tranche_id, :amount, :reason, :is_active, :created_by, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, newScholarshipRow(s)); err != nil {
		return payment.Scholarship{}, errors.Wrap(err, "inserting scholarship")
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

func (repo paymentRepository) GetScholarship(ctx context.Context, id string, exec ...core.DBExecutor) (payment.Scholarship, error) {
	if !validID(id) {
		return payment.Scholarship{}, payment.ErrScholarshipNotFound
	}
	var row scholarshipRow
	q := `SELECT ` + scholarshipColumns + ` FROM scholarship WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		return payment.Scholarship{}, trapNoRowsErr(err, payment.ErrScholarshipNotFound, "finding scholarship")
	}
	return row.scholarship(), nil
}

func (repo paymentRepository) QueryScholarships(ctx context.Context, studentID string, activeOnly bool, exec ...core.DBExecutor) ([]payment.Scholarship, error) {
	var rows []scholarshipRow
	q := `SELECT ` + scholarshipColumns + ` FROM scholarship
		WHERE ($1 = '' OR student_id::text = $1) AND (NOT $2 OR is_active)
		ORDER BY created_at ASC, id ASC`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, studentID, activeOnly); err != nil {
		return nil, errors.Wrap(err, "querying scholarships")
	}
	scholarships := make([]payment.Scholarship, 0, len(rows))
	for _, r := range rows {
		scholarships = append(scholarships, r.scholarship())
	}
	return scholarships, nil
}

func (repo paymentRepository) UpdateScholarship(ctx context.Context, s payment.Scholarship, exec ...core.DBExecutor) (payment.Scholarship, error) {
	q := `UPDATE scholarship SET amount = :amount, reason = :reason, is_active = :is_active WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, newScholarshipRow(s))
	if err != nil {
		return payment.Scholarship{}, errors.Wrap(err, "updating scholarship")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payment.Scholarship{}, payment.ErrScholarshipNotFound
	}
	return s, nil
}

func (repo paymentRepository) CreateDiscountRule(ctx context.Context, r payment.DiscountRule, exec ...core.DBExecutor) (payment.DiscountRule, error) {
	r.ID = newID()
	q := `INSERT INTO discount_rule (` + discountRuleColumns + `)
		VALUES (:id, :class_id, :percentage, :deadline, :description, :is_active, :created_by, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, newDiscountRuleRow(r)); err != nil {
		return payment.DiscountRule{}, errors.Wrap(err, "inserting discount rule")
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func (repo paymentRepository) GetDiscountRule(ctx context.Context, id string, exec ...core.DBExecutor) (payment.DiscountRule, error) {
	if !validID(id) {
		return payment.DiscountRule{}, payment.ErrDiscountRuleNotFound
	}
	var row discountRuleRow
	q := `SELECT ` + discountRuleColumns + ` FROM discount_rule WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		return payment.DiscountRule{}, trapNoRowsErr(err, payment.ErrDiscountRuleNotFound, "finding discount rule")
	}
	return row.rule(), nil
}

// QueryDiscountRules returns the newest rules first.
func (repo paymentRepository) QueryDiscountRules(ctx context.Context, activeOnly bool, exec ...core.DBExecutor) ([]payment.DiscountRule, error) {
	var rows []discountRuleRow
	q := `SELECT ` + discountRuleColumns + ` FROM discount_rule WHERE (NOT $1 OR is_active) ORDER BY created_at DESC, id ASC`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, activeOnly); err != nil {
		return nil, errors.Wrap(err, "querying discount rules")
	}
	rules := make([]payment.DiscountRule, 0, len(rows))
	for _, r := range rows {
		rules = append(rules, r.rule())
	}
	return rules, nil
}

func (repo paymentRepository) UpdateDiscountRule(ctx context.Context, r payment.DiscountRule, exec ...core.DBExecutor) (payment.DiscountRule, error) {
	q := `UPDATE discount_rule SET percentage = :percentage, deadline = :deadline, description = :description,
		is_active = :is_active WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, newDiscountRuleRow(r))
	if err != nil {
		return payment.DiscountRule{}, errors.Wrap(err, "updating discount rule")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payment.DiscountRule{}, payment.ErrDiscountRuleNotFound
	}
	return r, nil
}

func (repo paymentRepository) QueryContributions(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]payment.PhysicalContribution, error) {
	var rows []contributionRow
	q := `SELECT c.id, c.student_id, c.tranche_id, c.received, c.note, c.recorded_by, c.updated_at
		FROM physical_contribution c LEFT JOIN tranche t ON t.id = c.tranche_id
		WHERE ($1 = '' OR c.student_id::text = $1) ORDER BY t.display_order ASC, c.id ASC`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, studentID); err != nil {
		return nil, errors.Wrap(err, "querying physical contributions")
	}
	contributions := make([]payment.PhysicalContribution, 0, len(rows))
	for _, r := range rows {
		contributions = append(contributions, r.contribution())
	}
	return contributions, nil
}

func (repo paymentRepository) UpsertContribution(ctx context.Context, c payment.PhysicalContribution, exec ...core.DBExecutor) (payment.PhysicalContribution, error) {
	q := `INSERT INTO physical_contribution (` + contributionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (student_id, tranche_id) DO UPDATE SET received = EXCLUDED.received, note = EXCLUDED.note,
		recorded_by = EXCLUDED.recorded_by, updated_at = EXCLUDED.updated_at
		RETURNING ` + contributionColumns
	var row contributionRow
	err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q,
		newID(), c.StudentID, c.TrancheID, c.Received, c.Note, nullID(c.RecordedBy), c.UpdatedAt.UTC())
	if err != nil {
		return payment.PhysicalContribution{}, errors.Wrap(err, "saving physical contribution")
	}
	return row.contribution(), nil
}
