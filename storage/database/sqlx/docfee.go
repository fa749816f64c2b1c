package sqlxrepos

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/docfee"
)

const docFeeColumns = `id, student_id, receipt_number, description, fee_amount, penalty_amount, method, reference_number,
	payment_date, status, created_by, created_at, updated_at, validated_by, validated_at, cancelled_by, cancelled_at, cancel_reason`

type docFeeRow struct {
	ID              string          `db:"id"`
	StudentID       string          `db:"student_id"`
	ReceiptNumber   string          `db:"receipt_number"`
	Description     string          `db:"description"`
	FeeAmount       decimal.Decimal `db:"fee_amount"`
	PenaltyAmount   decimal.Decimal `db:"penalty_amount"`
	Method          string          `db:"method"`
	ReferenceNumber string          `db:"reference_number"`
	PaymentDate     core.Date       `db:"payment_date"`
	Status          string          `db:"status"`
	CreatedBy       null.String     `db:"created_by"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
	ValidatedBy     null.String     `db:"validated_by"`
	ValidatedAt     null.Time       `db:"validated_at"`
	CancelledBy     null.String     `db:"cancelled_by"`
	CancelledAt     null.Time       `db:"cancelled_at"`
	CancelReason    string          `db:"cancel_reason"`
}

func newDocFeeRow(f docfee.Fee) docFeeRow {
	return docFeeRow{
		ID:              f.ID,
		StudentID:       f.StudentID,
		ReceiptNumber:   f.ReceiptNumber,
		Description:     f.Description,
		FeeAmount:       f.FeeAmount,
		PenaltyAmount:   f.PenaltyAmount,
		Method:          f.Method,
		ReferenceNumber: f.ReferenceNumber,
		PaymentDate:     f.PaymentDate,
		Status:          string(f.Status),
		CreatedBy:       nullID(f.CreatedBy),
		CreatedAt:       f.CreatedAt.UTC(),
		UpdatedAt:       f.UpdatedAt.UTC(),
		ValidatedBy:     nullID(f.ValidatedBy),
		ValidatedAt:     null.TimeFromPtr(utcPtr(f.ValidatedAt)),
		CancelledBy:     nullID(f.CancelledBy),
		CancelledAt:     null.TimeFromPtr(utcPtr(f.CancelledAt)),
		CancelReason:    f.CancelReason,
	}
}

func (r docFeeRow) fee() docfee.Fee {
	return docfee.Fee{
		ID:              r.ID,
		StudentID:       r.StudentID,
		ReceiptNumber:   r.ReceiptNumber,
		Description:     r.Description,
		FeeAmount:       r.FeeAmount,
		PenaltyAmount:   r.PenaltyAmount,
		Method:          r.Method,
		ReferenceNumber: r.ReferenceNumber,
		PaymentDate:     r.PaymentDate,
		Status:          docfee.Status(r.Status),
		CreatedBy:       r.CreatedBy.String,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
		ValidatedBy:     r.ValidatedBy.String,
		ValidatedAt:     utcPtr(r.ValidatedAt.Ptr()),
		CancelledBy:     r.CancelledBy.String,
		CancelledAt:     utcPtr(r.CancelledAt.Ptr()),
		CancelReason:    r.CancelReason,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

type docFeeRepository struct {
	repository
}

var _ docfee.Repository = (*docFeeRepository)(nil) // interface compliance check

func NewDocFeeRepository(exec core.DBExecutor) *docFeeRepository {
	return &docFeeRepository{repository{exec: exec}}
}

func (repo docFeeRepository) CreateFee(ctx context.Context, f docfee.Fee, exec ...core.DBExecutor) (docfee.Fee, error) {
	f.ID = newID()
	row := newDocFeeRow(f)
	q := `INSERT INTO documentary_fee (` + docFeeColumns + `)
		VALUES (:id, :student_id, :receipt_number, :description, :fee_amount, :penalty_amount, :method, :reference_number,
		:payment_date, :status, :created_by, :created_at, :updated_at, :validated_by, :validated_at, :cancelled_by,
		:cancelled_at, :cancel_reason)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		return docfee.Fee{}, errors.Wrap(err, "inserting documentary fee")
	}
	return row.fee(), nil
}

func (repo docFeeRepository) GetFee(ctx context.Context, id string, exec ...core.DBExecutor) (docfee.Fee, error) {
	return repo.getFee(ctx, id, "", exec...)
}

func (repo docFeeRepository) LockFee(ctx context.Context, id string, exec ...core.DBExecutor) (docfee.Fee, error) {
	return repo.getFee(ctx, id, " FOR UPDATE", exec...)
}

func (repo docFeeRepository) getFee(ctx context.Context, id, suffix string, exec ...core.DBExecutor) (docfee.Fee, error) {
	if !validID(id) {
		return docfee.Fee{}, docfee.ErrNotFound
	}
	var row docFeeRow
	q := `SELECT ` + docFeeColumns + ` FROM documentary_fee WHERE id = $1` + suffix
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		return docfee.Fee{}, trapNoRowsErr(err, docfee.ErrNotFound, "finding documentary fee")
	}
	return row.fee(), nil
}

func (repo docFeeRepository) QueryFees(ctx context.Context, filter *docfee.Filter, exec ...core.DBExecutor) ([]docfee.Fee, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter != nil {
		if filter.StudentID != "" {
			args = append(args, filter.StudentID)
			conds = append(conds, fmt.Sprintf("student_id::text = $%d", len(args)))
		}
		if filter.Status != "" {
			args = append(args, string(filter.Status))
			conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
		}
	}

	var rows []docFeeRow
	q := `SELECT ` + docFeeColumns + ` FROM documentary_fee` + where(conds) + ` ORDER BY receipt_number ASC`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying documentary fees")
	}
	fees := make([]docfee.Fee, 0, len(rows))
	for _, r := range rows {
		fees = append(fees, r.fee())
	}
	return fees, nil
}

func (repo docFeeRepository) UpdateFee(ctx context.Context, f docfee.Fee, exec ...core.DBExecutor) (docfee.Fee, error) {
	row := newDocFeeRow(f)
	q := `UPDATE documentary_fee SET description = :description, fee_amount = :fee_amount, penalty_amount = :penalty_amount,
		method = :method, reference_number = :reference_number, payment_date = :payment_date, status = :status,
		updated_at = :updated_at, validated_by = :validated_by, validated_at = :validated_at,
		cancelled_by = :cancelled_by, cancelled_at = :cancelled_at, cancel_reason = :cancel_reason
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row)
	if err != nil {
		return docfee.Fee{}, errors.Wrap(err, "updating documentary fee")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return docfee.Fee{}, docfee.ErrNotFound
	}
	return row.fee(), nil
}
