package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ecolage/apps/api/echo"
	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/user"
	"github.com/trezcool/ecolage/services/idempotency"
	"github.com/trezcool/ecolage/tests"
)

type app struct {
	srv   *echoapi.Server
	env   *testutil.Env
	owner user.User
	clerk user.User // admin without finance or config rights
	// tokens
	ownerToken  string
	bursarToken string
	clerkToken  string
}

func setup(t *testing.T) *app {
	t.Helper()
	env := testutil.NewEnv()
	srv := echoapi.NewServer("", nil, &echoapi.Deps{
		Conf:           env.Conf,
		Logger:         env.Logger,
		Validate:       env.Validate,
		Translator:     env.Translator,
		Idempotency:    idempotency.NewMemoryStore(time.Hour),
		UserSvc:        env.UserSvc,
		SchoolSvc:      env.SchoolSvc,
		TrancheSvc:     env.TrancheSvc,
		PaymentSvc:     env.PaymentSvc,
		DocFeeSvc:      env.DocFeeSvc,
		DisableReqLogs: true,
	})

	a := &app{srv: srv, env: env}
	a.owner = testutil.CreateUser(t, env.UserRepo, "Owner", "owner", "owner@test.cd", []string{user.RoleAdminOwner}, true)
	bursar := testutil.CreateUser(t, env.UserRepo, "Bursar", "bursar", "bursar@test.cd", []string{user.RoleAdminBursar}, true)
	a.clerk = testutil.CreateUser(t, env.UserRepo, "Clerk", "clerk", "clerk@test.cd", []string{user.RoleAdmin}, true)
	a.ownerToken = getToken(t, env.Conf, a.owner)
	a.bursarToken = getToken(t, env.Conf, bursar)
	a.clerkToken = getToken(t, env.Conf, a.clerk)
	return a
}

type httpErr struct {
	Code    string                 `json:"code"`
	Error   string                 `json:"error"`
	Fields  map[string]string      `json:"fields"`
	Details map[string]interface{} `json:"details"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	token    string
	wantCode int
	wantErr  string // error code
}

func newAuthRequest(t *testing.T, method, path, token string, body interface{}) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

// do sends a request to the app and returns the recorded response.
func (a *app) do(t *testing.T, method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req, rec := newAuthRequest(t, method, path, token, body)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	a.srv.ServeHTTP(rec, req)
	return rec
}

func (a *app) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		tt := tt
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, tt.method, tt.path, tt.token, tt.body)
			checkCode(t, rec, tt.wantCode)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decodeErr(t, rec).Code)
			}
		})
	}
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(echoapi.GetUserClaims(usr, conf), conf)
	require.NoError(t, err, "GenerateToken()")
	return token
}

func checkCode(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, want, rec.Body.String())
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "decoding %s", rec.Body.String())
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) httpErr {
	t.Helper()
	var herr httpErr
	decode(t, rec, &herr)
	return herr
}
