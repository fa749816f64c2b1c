package echoapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ecolage/apps/api/echo"
	"github.com/trezcool/ecolage/core/user"
	"github.com/trezcool/ecolage/tests"
)

func Test_auth(t *testing.T) {
	a := setup(t)

	naughty := testutil.CreateUser(t, a.env.UserRepo, "N Dog", "ndog", "ndog@test.cd", []string{user.RoleAdminBursar}, false)
	ghost := user.User{ID: "1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed", Username: "ghost", Roles: []string{user.RoleAdminOwner}}

	otherConf := *a.env.Conf
	otherConf.SecretKey = "another-secret"
	forged := getToken(t, &otherConf, a.owner)

	tests := []struct {
		name     string
		token    string
		wantCode int
		wantMsg  string
	}{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantMsg: "missing or malformed jwt"},
		{name: "Malformed token", token: "not-a-token", wantCode: http.StatusUnauthorized},
		{name: "Forged token", token: forged, wantCode: http.StatusUnauthorized},
		{name: "Unknown user", token: getToken(t, a.env.Conf, ghost), wantCode: http.StatusUnauthorized, wantMsg: "user not authenticated"},
		{name: "Inactive user not allowed", token: getToken(t, a.env.Conf, naughty), wantCode: http.StatusForbidden, wantMsg: "account deactivated"},
		{name: "Active user", token: a.clerkToken, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, http.MethodGet, "/v1/tranches", tt.token, nil)
			checkCode(t, rec, tt.wantCode)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, decodeErr(t, rec).Error)
			}
		})
	}
}

func Test_userApi_refreshToken(t *testing.T) {
	a := setup(t)
	conf := a.env.Conf

	naughty := testutil.CreateUser(t, a.env.UserRepo, "N Dog", "ndog", "ndog@test.cd", []string{user.RoleAdminBursar}, false)

	now := time.Now()
	unrefreshableClaims := echoapi.GetUserClaims(a.owner, conf, now.Add(-2*conf.Server.JWTRefreshExpirationDelta).Unix())
	unrefreshableToken, err := echoapi.GenerateToken(unrefreshableClaims, conf)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantErr: "unauthorized"},
		{name: "Inactive user not allowed", token: getToken(t, conf, naughty), wantCode: http.StatusForbidden, wantErr: "forbidden"},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantErr: "forbidden"},
		{name: "Token refreshed", token: a.ownerToken},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/token-refresh"
	}
	a.run(t, tests)

	t.Run("New token keeps the original issue time", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/v1/users/token-refresh", a.ownerToken, nil)
		checkCode(t, rec, http.StatusOK)
		var resp echoapi.TokenResponse
		decode(t, rec, &resp)

		claims := new(echoapi.Claims)
		_, err := jwt.ParseWithClaims(resp.Token, claims, func(*jwt.Token) (interface{}, error) {
			return []byte(conf.SecretKey), nil
		})
		require.NoError(t, err)
		assert.Equal(t, a.owner.ID, claims.Subject)
		assert.Equal(t, a.owner.Username, claims.Username)
		assert.Equal(t, []string{user.RoleAdminOwner}, claims.Roles)
	})
}

func Test_userApi_create(t *testing.T) {
	a := setup(t)
	principal := testutil.CreateUser(t, a.env.UserRepo, "Principal", "princip", "princip@test.cd", []string{user.RoleAdminPrincipal}, true)
	principalToken := getToken(t, a.env.Conf, principal)

	body := func(uname string, roles ...string) map[string]interface{} {
		return map[string]interface{}{"name": "New Staff", "username": uname, "roles": roles}
	}

	tests := []httpTest{
		{name: "Auth required", body: body("newbie"), wantCode: http.StatusUnauthorized},
		{name: "Config rights required", body: body("newbie"), token: a.clerkToken, wantCode: http.StatusForbidden},
		{name: "Cannot grant a higher role", body: body("newbie", user.RoleAdminOwner), token: principalToken, wantCode: http.StatusBadRequest, wantErr: "validation_error"},
		{name: "Unknown role", body: body("newbie", "teacher:"), token: a.ownerToken, wantCode: http.StatusBadRequest, wantErr: "validation_error"},
		{name: "Username taken", body: body("clerk"), token: a.ownerToken, wantCode: http.StatusBadRequest, wantErr: "validation_error"},
		{
			name: "Username or email required", body: map[string]interface{}{"name": "Nobody"},
			token: a.ownerToken, wantCode: http.StatusBadRequest, wantErr: "validation_error",
		},
		{name: "Created", body: body("newbie", user.RoleAdminBursar), token: principalToken, wantCode: http.StatusCreated},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users"
	}
	a.run(t, tests)

	t.Run("Field errors", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/v1/users", a.ownerToken, body("clerk"))
		checkCode(t, rec, http.StatusBadRequest)
		herr := decodeErr(t, rec)
		assert.Equal(t, map[string]string{"username": "a user with this username already exists"}, herr.Fields)
	})
}

func Test_userApi_query(t *testing.T) {
	a := setup(t)
	testutil.CreateUser(t, a.env.UserRepo, "N Dog", "ndog", "ndog@test.cd", []string{user.RoleAdminBursar}, false)
	outsider := testutil.CreateUser(t, a.env.UserRepo, "Outsider", "outsider", "out@test.cd", nil, true)

	tests := []struct {
		name      string
		path      string
		token     string
		wantCode  int
		wantUsers []string
	}{
		{name: "Admin required", path: "/v1/users", token: getToken(t, a.env.Conf, outsider), wantCode: http.StatusForbidden},
		{name: "Get all", path: "/v1/users?ordering=username", token: a.clerkToken, wantUsers: []string{"bursar", "clerk", "ndog", "outsider", "owner"}},
		{name: "search", path: "/v1/users?search=DOG", token: a.clerkToken, wantUsers: []string{"ndog"}},
		{name: "is_active=false", path: "/v1/users?is_active=false", token: a.clerkToken, wantUsers: []string{"ndog"}},
		{name: "role", path: "/v1/users?role=admin:owner", token: a.clerkToken, wantUsers: []string{"owner"}},
		{name: "order by -username", path: "/v1/users?ordering=-username&is_active=true&role=admin:bursar", token: a.clerkToken, wantUsers: []string{"bursar"}},
		{name: "search (unknown)", path: "/v1/users?search=lol", token: a.clerkToken, wantUsers: []string{}},
	}
	for _, tt := range tests {
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, http.MethodGet, tt.path, tt.token, nil)
			checkCode(t, rec, tt.wantCode)
			if tt.wantUsers == nil {
				return
			}
			var users []user.User
			decode(t, rec, &users)
			unames := make([]string, 0, len(users))
			for _, usr := range users {
				unames = append(unames, usr.Username)
			}
			assert.Equal(t, tt.wantUsers, unames)
		})
	}
}

func Test_userApi_detail(t *testing.T) {
	a := setup(t)
	outsider := testutil.CreateUser(t, a.env.UserRepo, "Outsider", "outsider", "out@test.cd", nil, true)
	outsiderToken := getToken(t, a.env.Conf, outsider)

	tests := []httpTest{
		{name: "me", path: "/v1/users/me", token: a.clerkToken},
		{name: "retrieve self", path: "/v1/users/" + outsider.ID, token: outsiderToken},
		{name: "non-admins only reach themselves", path: "/v1/users/" + a.owner.ID, token: outsiderToken, wantCode: http.StatusNotFound, wantErr: "not_found"},
		{name: "admin retrieves anyone", path: "/v1/users/" + outsider.ID, token: a.clerkToken},
		{name: "unknown user", path: "/v1/users/" + "1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed", token: a.clerkToken, wantCode: http.StatusNotFound},
		{
			name: "only managers change roles", method: http.MethodPut, path: "/v1/users/" + a.clerk.ID,
			body: map[string]interface{}{"roles": []string{user.RoleAdminOwner}}, token: a.clerkToken, wantCode: http.StatusForbidden,
		},
		{
			name: "rename self", method: http.MethodPut, path: "/v1/users/" + a.clerk.ID,
			body: map[string]interface{}{"name": "Chief Clerk"}, token: a.clerkToken,
		},
		{name: "cannot delete self", method: http.MethodDelete, path: "/v1/users/" + a.owner.ID, token: a.ownerToken, wantCode: http.StatusForbidden},
		{name: "config rights required to delete", method: http.MethodDelete, path: "/v1/users/" + outsider.ID, token: a.clerkToken, wantCode: http.StatusForbidden},
		{name: "deleted", method: http.MethodDelete, path: "/v1/users/" + outsider.ID, token: a.ownerToken, wantCode: http.StatusNoContent},
	}
	a.run(t, tests)

	usr, err := a.env.UserSvc.GetByID(context.Background(), a.clerk.ID)
	require.NoError(t, err)
	assert.Equal(t, "Chief Clerk", usr.Name)
	assert.Equal(t, []string{user.RoleAdmin}, usr.Roles)
}
