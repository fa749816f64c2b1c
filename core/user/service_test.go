package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/user"
	"github.com/trezcool/ecolage/tests"
)

func fields(t *testing.T, err error) []string {
	t.Helper()
	var flds []string
	var vErr *core.ValidationError
	if errors.As(err, &vErr) {
		for _, f := range vErr.Fields {
			flds = append(flds, f.Field)
		}
		return flds
	}
	var vErrs validator.ValidationErrors
	require.ErrorAs(t, err, &vErrs)
	for _, fe := range vErrs {
		flds = append(flds, fe.Field())
	}
	return flds
}

func TestNewUser_Validate(t *testing.T) {
	env := testutil.NewEnv()
	testutil.CreateUser(t, env.UserRepo, "Owner", "owner", "owner@example.com", []string{user.RoleAdminOwner}, true)

	tests := []struct {
		name string
		nu   user.NewUser
		want []string
	}{
		{"valid", user.NewUser{Name: "Bursar", Username: "Bursar_1", Roles: []string{user.RoleAdminBursar}}, nil},
		{"missing name", user.NewUser{Username: "someone"}, []string{"name"}},
		{"missing username and email", user.NewUser{Name: "Nobody"}, []string{"username", "email"}},
		{"short username", user.NewUser{Name: "X", Username: "abc"}, []string{"username"}},
		{"bad username", user.NewUser{Name: "X", Username: "a-b-c-d"}, []string{"username"}},
		{"bad email", user.NewUser{Name: "X", Email: "nope"}, []string{"email"}},
		{"unknown role", user.NewUser{Name: "X", Username: "someone", Roles: []string{"teacher"}}, []string{"roles"}},
		{"username taken", user.NewUser{Name: "X", Username: " OWNER "}, []string{"username"}},
		{"email taken", user.NewUser{Name: "X", Email: "Owner@Example.com"}, []string{"email"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			nu := tc.nu
			err := nu.Validate(env.Validate, env.UserSvc)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tc.want, fields(t, err))
		})
	}
}

func TestService_CRUD(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()

	nu := user.NewUser{Name: " Jane ", Username: "Jane", Email: "JANE@example.com", Roles: []string{user.RoleAdminBursar}}
	require.NoError(t, nu.Validate(env.Validate, env.UserSvc))
	usr, err := env.UserSvc.Create(ctx, nu)
	require.NoError(t, err)
	assert.Equal(t, "Jane", usr.Name)
	assert.Equal(t, "jane", usr.Username)
	assert.Equal(t, "jane@example.com", usr.Email)
	assert.True(t, usr.IsActive)

	got, err := env.UserSvc.GetByUsernameOrEmail(ctx, " JANE@EXAMPLE.COM ")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	uu := user.UpdateUser{Name: "Jane Doe", Roles: []string{user.RoleAdminPrincipal}}
	require.NoError(t, uu.Validate(usr, env.Validate, env.UserSvc))
	updated, err := env.UserSvc.Update(ctx, usr, uu)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", updated.Name)
	assert.Equal(t, "jane", updated.Username, "empty fields are kept")
	assert.Equal(t, []string{user.RoleAdminPrincipal}, updated.Roles)

	deactivated, err := env.UserSvc.SetActive(ctx, updated, false)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)
	assert.False(t, deactivated.Actor().IsZero())

	require.NoError(t, env.UserSvc.Delete(ctx, usr.ID))
	_, err = env.UserSvc.GetByID(ctx, usr.ID)
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}

func TestService_Query(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	now := time.Now()
	testutil.CreateUser(t, env.UserRepo, "Alice", "alice", "alice@example.com", []string{user.RoleAdminOwner}, true, now.Add(-2*time.Hour))
	testutil.CreateUser(t, env.UserRepo, "Bob", "bob", "", []string{user.RoleAdminBursar}, false, now.Add(-time.Hour))
	testutil.CreateUser(t, env.UserRepo, "Carol", "", "carol@example.com", []string{user.RoleAdmin}, true, now)

	active := true
	tests := []struct {
		name     string
		filter   *user.QueryFilter
		ordering []core.DBOrdering
		want     []string
	}{
		{"all", nil, nil, []string{"Alice", "Bob", "Carol"}},
		{"search", &user.QueryFilter{Search: "CAROL"}, nil, []string{"Carol"}},
		{"role prefix", &user.QueryFilter{Roles: []string{user.RoleAdminBursar}}, nil, []string{"Bob"}},
		{"active", &user.QueryFilter{IsActive: &active}, nil, []string{"Alice", "Carol"}},
		{"name desc", nil, []core.DBOrdering{{Field: "name"}}, []string{"Carol", "Bob", "Alice"}},
		{"unknown ordering ignored", nil, []core.DBOrdering{{Field: "password"}}, []string{"Alice", "Bob", "Carol"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			users, err := env.UserSvc.Query(ctx, tc.filter, tc.ordering)
			require.NoError(t, err)
			got := make([]string, 0, len(users))
			for _, u := range users {
				got = append(got, u.Name)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}
