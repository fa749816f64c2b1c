package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ecolage/core/docfee"
	"github.com/trezcool/ecolage/tests"
)

func Test_docFeeApi(t *testing.T) {
	a := setup(t)
	class := testutil.CreateClass(t, a.env.SchoolRepo, "6eme", 6)
	series := testutil.CreateSeries(t, a.env.SchoolRepo, class, "A")
	student := testutil.CreateStudent(t, a.env.SchoolRepo, series, "MAT001")

	body := func(amount interface{}) map[string]interface{} {
		return map[string]interface{}{
			"student_id":     student.ID,
			"description":    "file opening",
			"fee_amount":     amount,
			"penalty_amount": 500,
			"payment_method": "cash",
			"payment_date":   "2025-01-10",
		}
	}

	a.run(t, []httpTest{
		{name: "Finance rights required", method: http.MethodPost, path: "/v1/documentary-fees", body: body(2500), token: a.clerkToken, wantCode: http.StatusForbidden},
		{name: "Amount must be positive", method: http.MethodPost, path: "/v1/documentary-fees", body: body(0), token: a.bursarToken, wantCode: http.StatusBadRequest, wantErr: "validation_error"},
	})

	rec := a.do(t, http.MethodPost, "/v1/documentary-fees", a.bursarToken, body(2500))
	checkCode(t, rec, http.StatusCreated)
	var fee docfee.Fee
	decode(t, rec, &fee)
	assert.Equal(t, docfee.StatusPending, fee.Status)
	assert.Regexp(t, `^DOC-\d{4}-000001$`, fee.ReceiptNumber)
	path := "/v1/documentary-fees/" + fee.ID

	t.Run("Edit while pending", func(t *testing.T) {
		rec := a.do(t, http.MethodPut, path, a.bursarToken, map[string]interface{}{"fee_amount": 3000})
		checkCode(t, rec, http.StatusOK)
		var updated docfee.Fee
		decode(t, rec, &updated)
		assert.Equal(t, "3000", updated.FeeAmount.String())
		assert.Equal(t, fee.ReceiptNumber, updated.ReceiptNumber)
	})

	a.run(t, []httpTest{
		{name: "Unknown action", method: http.MethodPost, path: path + "/refund", token: a.bursarToken, wantCode: http.StatusBadRequest, wantErr: "validation_error"},
		{name: "Unknown fee", method: http.MethodPost, path: "/v1/documentary-fees/1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed/validate", token: a.bursarToken, wantCode: http.StatusNotFound, wantErr: "not_found"},
		{name: "Validated", method: http.MethodPost, path: path + "/validate", token: a.bursarToken},
		{name: "Frozen once validated", method: http.MethodPut, path: path, body: map[string]interface{}{"fee_amount": 1000}, token: a.bursarToken, wantCode: http.StatusConflict, wantErr: "invalid_state_transition"},
		{name: "Cannot cancel a validated fee", method: http.MethodPost, path: path + "/cancel", token: a.bursarToken, wantCode: http.StatusConflict, wantErr: "invalid_state_transition"},
	})

	t.Run("Transition error details", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, path+"/validate", a.bursarToken, nil)
		checkCode(t, rec, http.StatusConflict)
		herr := decodeErr(t, rec)
		assert.Equal(t, map[string]interface{}{"from": "validated", "action": "validate"}, herr.Details)
	})

	t.Run("Receipt sent on validation", func(t *testing.T) {
		msgs := a.env.Mail.SentMessages()
		require.Len(t, msgs, 1)
		assert.Equal(t, student.GuardianEmail, msgs[0].To[0].Address)
	})

	t.Run("Cancel", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/v1/documentary-fees", a.bursarToken, body(1000))
		checkCode(t, rec, http.StatusCreated)
		var other docfee.Fee
		decode(t, rec, &other)
		assert.Regexp(t, `^DOC-\d{4}-000002$`, other.ReceiptNumber)

		rec = a.do(t, http.MethodPost, "/v1/documentary-fees/"+other.ID+"/cancel", a.bursarToken, map[string]interface{}{"reason": "duplicate"})
		checkCode(t, rec, http.StatusOK)
		decode(t, rec, &other)
		assert.Equal(t, docfee.StatusCancelled, other.Status)
		assert.Equal(t, "duplicate", other.CancelReason)
		assert.NotEmpty(t, other.CancelledBy)
	})

	t.Run("Query", func(t *testing.T) {
		rec := a.do(t, http.MethodGet, "/v1/documentary-fees?student_id="+student.ID+"&status=validated", a.clerkToken, nil)
		checkCode(t, rec, http.StatusOK)
		var fees []docfee.Fee
		decode(t, rec, &fees)
		require.Len(t, fees, 1)
		assert.Equal(t, fee.ID, fees[0].ID)

		rec = a.do(t, http.MethodGet, path, a.clerkToken, nil)
		checkCode(t, rec, http.StatusOK)
		var got docfee.Fee
		decode(t, rec, &got)
		assert.Equal(t, docfee.StatusValidated, got.Status)
		assert.NotNil(t, got.ValidatedAt)
	})
}
