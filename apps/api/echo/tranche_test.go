package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ecolage/core/tranche"
	"github.com/trezcool/ecolage/tests"
)

func Test_trancheApi_create(t *testing.T) {
	a := setup(t)

	tests := []httpTest{
		{name: "Config rights required", body: map[string]interface{}{"name": "Inscription"}, token: a.bursarToken, wantCode: http.StatusForbidden},
		{name: "Name required", body: map[string]interface{}{"name": "  "}, token: a.ownerToken, wantCode: http.StatusBadRequest, wantErr: "validation_error"},
		{name: "Malformed body", body: []byte(`{"name":`), token: a.ownerToken, wantCode: http.StatusBadRequest},
		{name: "Created", body: map[string]interface{}{"name": "Inscription"}, token: a.ownerToken, wantCode: http.StatusCreated},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/tranches"
	}
	a.run(t, tests)

	t.Run("New tranches go last", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/v1/tranches", a.ownerToken, map[string]interface{}{"name": "First Trimester"})
		checkCode(t, rec, http.StatusCreated)
		var tr tranche.Tranche
		decode(t, rec, &tr)
		assert.Equal(t, 2, tr.Order)
		assert.True(t, tr.IsActive)
	})
}

func Test_trancheApi_reorder(t *testing.T) {
	a := setup(t)
	t1 := testutil.CreateTranche(t, a.env.TrancheRepo, "First", 1)
	t2 := testutil.CreateTranche(t, a.env.TrancheRepo, "Second", 2)

	entry := func(tr tranche.Tranche, order int) map[string]interface{} {
		return map[string]interface{}{"tranche_id": tr.ID, "order": order}
	}

	tests := []httpTest{
		{name: "Config rights required", body: []interface{}{entry(t1, 2), entry(t2, 1)}, token: a.clerkToken, wantCode: http.StatusForbidden},
		{name: "Order must be positive", body: []interface{}{entry(t1, 0)}, token: a.ownerToken, wantCode: http.StatusBadRequest, wantErr: "validation_error"},
		{name: "Duplicate orders", body: []interface{}{entry(t1, 2)}, token: a.ownerToken, wantCode: http.StatusBadRequest, wantErr: "validation_error"},
		{
			name: "Unknown tranche", body: []interface{}{map[string]interface{}{"tranche_id": "1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed", "order": 3}},
			token: a.ownerToken, wantCode: http.StatusBadRequest, wantErr: "validation_error",
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPut
		tests[i].path = "/v1/tranches/order"
	}
	a.run(t, tests)

	t.Run("Swap", func(t *testing.T) {
		rec := a.do(t, http.MethodPut, "/v1/tranches/order", a.ownerToken, []interface{}{entry(t1, 2), entry(t2, 1)})
		checkCode(t, rec, http.StatusOK)
		var tranches []tranche.Tranche
		decode(t, rec, &tranches)
		require.Len(t, tranches, 2)
		assert.Equal(t, t2.ID, tranches[0].ID)
		assert.Equal(t, 1, tranches[0].Order)
		assert.Equal(t, t1.ID, tranches[1].ID)
		assert.Equal(t, 2, tranches[1].Order)
	})
}

func Test_trancheApi_delete(t *testing.T) {
	a := setup(t)
	class := testutil.CreateClass(t, a.env.SchoolRepo, "6eme", 6)
	unused := testutil.CreateTranche(t, a.env.TrancheRepo, "Unused", 1)
	used := testutil.CreateTranche(t, a.env.TrancheRepo, "Used", 2)
	testutil.SetAmount(t, a.env.TrancheRepo, class, used, 10000)

	t.Run("Deletion impact", func(t *testing.T) {
		rec := a.do(t, http.MethodGet, "/v1/tranches/"+used.ID+"/deletion-impact", a.clerkToken, nil)
		checkCode(t, rec, http.StatusOK)
		var impact tranche.DeletionImpact
		decode(t, rec, &impact)
		assert.Equal(t, tranche.DeletionImpact{TrancheID: used.ID, ClassAmounts: 1}, impact)
	})

	t.Run("In use needs confirmation", func(t *testing.T) {
		rec := a.do(t, http.MethodDelete, "/v1/tranches/"+used.ID, a.ownerToken, nil)
		checkCode(t, rec, http.StatusConflict)
		herr := decodeErr(t, rec)
		assert.Equal(t, "conflict", herr.Code)
		assert.EqualValues(t, 1, herr.Details["class_amounts"])
	})

	t.Run("Confirmed cascade", func(t *testing.T) {
		rec := a.do(t, http.MethodDelete, "/v1/tranches/"+used.ID+"?confirm=true", a.ownerToken, nil)
		checkCode(t, rec, http.StatusOK)
		var res tranche.DeletionResult
		decode(t, rec, &res)
		assert.Equal(t, tranche.DeletionResult{Deleted: true, CascadedAmountsCount: 1}, res)

		rec = a.do(t, http.MethodGet, "/v1/tranches/"+used.ID, a.ownerToken, nil)
		checkCode(t, rec, http.StatusNotFound)
		assert.Equal(t, "not_found", decodeErr(t, rec).Code)
	})

	a.run(t, []httpTest{
		{name: "Config rights required", method: http.MethodDelete, path: "/v1/tranches/" + unused.ID, token: a.bursarToken, wantCode: http.StatusForbidden},
		{name: "Unused", method: http.MethodDelete, path: "/v1/tranches/" + unused.ID, token: a.ownerToken},
		{name: "Unknown", method: http.MethodDelete, path: "/v1/tranches/" + unused.ID, token: a.ownerToken, wantCode: http.StatusNotFound, wantErr: "not_found"},
	})
}

func Test_trancheApi_classAmounts(t *testing.T) {
	a := setup(t)
	class := testutil.CreateClass(t, a.env.SchoolRepo, "6eme", 6)
	tr := testutil.CreateTranche(t, a.env.TrancheRepo, "First", 1)

	body := func(amount interface{}) map[string]interface{} {
		return map[string]interface{}{"class_id": class.ID, "tranche_id": tr.ID, "amount": amount}
	}

	a.run(t, []httpTest{
		{name: "Config rights required", method: http.MethodPut, path: "/v1/class-amounts", body: body(10000), token: a.bursarToken, wantCode: http.StatusForbidden},
		{name: "Negative amount", method: http.MethodPut, path: "/v1/class-amounts", body: body(-1), token: a.ownerToken, wantCode: http.StatusBadRequest, wantErr: "validation_error"},
		{name: "Set", method: http.MethodPut, path: "/v1/class-amounts", body: body("10000.004"), token: a.ownerToken},
	})

	rec := a.do(t, http.MethodGet, "/v1/class-amounts?class_id="+class.ID, a.clerkToken, nil)
	checkCode(t, rec, http.StatusOK)
	var amounts []tranche.ClassAmount
	decode(t, rec, &amounts)
	require.Len(t, amounts, 1)
	assert.True(t, decimal.NewFromInt(10000).Equal(amounts[0].Amount), "amount = %s", amounts[0].Amount)

	path := "/v1/class-amounts/" + class.ID + "/" + tr.ID
	a.run(t, []httpTest{
		{name: "Delete", method: http.MethodDelete, path: path, token: a.ownerToken, wantCode: http.StatusNoContent},
		{name: "Delete again", method: http.MethodDelete, path: path, token: a.ownerToken, wantCode: http.StatusNotFound, wantErr: "not_found"},
	})
}
