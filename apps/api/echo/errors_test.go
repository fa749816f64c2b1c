package echoapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/services/logger"
	"github.com/trezcool/ecolage/tests"
)

func Test_appHTTPErrorHandler(t *testing.T) {
	_, translator := testutil.NewValidator()
	signaled := 0
	handler := newAppHTTPErrorHandler(logsvc.NewNopLogger(), translator, func() { signaled++ })

	tests := []struct {
		name         string
		err          error
		method       string
		wantCode     int
		wantBody     errorResponse
		wantSignaled int
	}{
		{
			name:     "http error",
			err:      echo.ErrNotFound,
			wantCode: http.StatusNotFound,
			wantBody: errorResponse{Code: "not_found", Error: "Not Found"},
		},
		{
			name:     "field error",
			err:      errors.Wrap(core.NewFieldValidationError("amount", "too much"), "allocating"),
			wantCode: http.StatusBadRequest,
			wantBody: errorResponse{Code: core.CodeValidation, Error: "too much", Fields: map[string]string{"amount": "too much"}},
		},
		{
			name:     "not found",
			err:      core.NewNotFoundError("payment"),
			wantCode: http.StatusNotFound,
			wantBody: errorResponse{Code: core.CodeNotFound, Error: core.NewNotFoundError("payment").Error()},
		},
		{
			name:     "head request",
			err:      core.NewNotFoundError("payment"),
			method:   http.MethodHead,
			wantCode: http.StatusNotFound,
		},
		{
			name:         "shutdown",
			err:          errors.Wrap(core.NewShutdownError("database is gone"), "querying"),
			wantCode:     http.StatusInternalServerError,
			wantBody:     errorResponse{Code: "internal_server_error", Error: "Internal Server Error"},
			wantSignaled: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signaled = 0
			if tt.method == "" {
				tt.method = http.MethodGet
			}
			e := echo.New()
			rec := httptest.NewRecorder()
			handler(tt.err, e.NewContext(httptest.NewRequest(tt.method, "/", nil), rec))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantSignaled, signaled)
			if tt.method == http.MethodHead {
				assert.Zero(t, rec.Body.Len())
				return
			}
			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func Test_httpCode(t *testing.T) {
	assert.Equal(t, "forbidden", httpCode(http.StatusForbidden))
	assert.Equal(t, "unprocessable_entity", httpCode(http.StatusUnprocessableEntity))
	assert.Equal(t, "internal_server_error", httpCode(http.StatusInternalServerError))
}
