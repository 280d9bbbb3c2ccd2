package user_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/manabi/core"
	"github.com/trezcool/manabi/core/user"
	"github.com/trezcool/manabi/storage/database/sqlxrepos"
	"github.com/trezcool/manabi/tests"
)

const pwd = "Xq7#mZ2!vK"

func setup(t *testing.T, authMethod string) (*user.Service, user.Repository) {
	db := testutil.PrepareDB(t)
	repo := sqlxrepos.NewUserRepository(db)
	conf := core.NewTestConfig()
	conf.AuthMethod = authMethod
	return user.NewService(repo, conf), repo
}

func TestService_Create(t *testing.T) {
	svc, _ := setup(t, core.AuthMethodEmail)
	ctx := context.Background()
	validate, _ := testutil.NewValidator()

	nu := user.NewUser{
		Username:        "  Learner ",
		Email:           "Learner@Test.cd",
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           []string{user.RoleEditorFree},
	}
	require.NoError(t, nu.Validate(ctx, validate, svc))
	usr, err := svc.Create(ctx, nu)
	require.NoError(t, err)

	assert.NotEmpty(t, usr.ID)
	assert.Equal(t, "learner", usr.Username)
	assert.Equal(t, "learner@test.cd", usr.Email)
	assert.True(t, usr.IsActive)
	assert.Equal(t, []string{user.RoleEditorFree}, usr.Roles)
	assert.NoError(t, usr.CheckPassword(pwd))

	// username and email are unique
	dup := user.NewUser{Username: "learner", Email: "other@test.cd", Password: pwd, PasswordConfirm: pwd}
	err = dup.Validate(ctx, validate, svc)
	var verr *core.ValidationError
	if assert.True(t, errors.As(err, &verr)) {
		assert.Equal(t, user.ErrUserExists, verr.Err)
	}
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		authMethod string
		login      string
		pwd        string
		wantErr    error
	}{
		{name: "email", authMethod: core.AuthMethodEmail, login: "awe@test.cd", pwd: pwd},
		{name: "email (case-insensitive)", authMethod: core.AuthMethodEmail, login: " AWE@test.cd ", pwd: pwd},
		{name: "email method, username login", authMethod: core.AuthMethodEmail, login: "awe", pwd: pwd, wantErr: user.ErrInvalidCredentials},
		{name: "username", authMethod: core.AuthMethodUsername, login: "awe", pwd: pwd},
		{name: "username method, email login", authMethod: core.AuthMethodUsername, login: "awe@test.cd", pwd: pwd, wantErr: user.ErrInvalidCredentials},
		{name: "both (username)", authMethod: core.AuthMethodBoth, login: "awe", pwd: pwd},
		{name: "both (email)", authMethod: core.AuthMethodBoth, login: "awe@test.cd", pwd: pwd},
		{name: "wrong password", authMethod: core.AuthMethodBoth, login: "awe", pwd: "lol", wantErr: user.ErrInvalidCredentials},
		{name: "unknown user", authMethod: core.AuthMethodBoth, login: "lol", pwd: pwd, wantErr: user.ErrInvalidCredentials},
		{name: "inactive", authMethod: core.AuthMethodBoth, login: "naughty", pwd: pwd, wantErr: user.ErrInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := setup(t, tt.authMethod)
			testutil.CreateUser(t, repo, "awe", "awe@test.cd", pwd, nil, true)
			testutil.CreateUser(t, repo, "naughty", "naughty@test.cd", pwd, nil, false)

			usr, err := svc.Authenticate(ctx, tt.login, tt.pwd)
			if err != tt.wantErr {
				t.Fatalf("Authenticate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				assert.Equal(t, "awe", usr.Username)
				assert.False(t, usr.LastLogin.IsZero())
			}
		})
	}
}

func TestService_ResetPassword(t *testing.T) {
	svc, repo := setup(t, core.AuthMethodEmail)
	ctx := context.Background()
	usr := testutil.CreateUser(t, repo, "awe", "awe@test.cd", pwd, nil, true)

	err := svc.ResetPassword(ctx, "lol", "N3w#Secret")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	require.NoError(t, svc.ResetPassword(ctx, "AWE", "N3w#Secret"))
	got, err := svc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword("N3w#Secret"))
	assert.Error(t, got.CheckPassword(pwd))
}

func TestService_AddOrUpdate(t *testing.T) {
	svc, repo := setup(t, core.AuthMethodEmail)
	ctx := context.Background()
	testutil.CreateUser(t, repo, "naughty", "naughty@test.cd", pwd, []string{user.RoleEditorFree}, false)

	created, err := svc.AddOrUpdate(ctx, "Boss", "boss@test.cd", pwd, true)
	require.NoError(t, err)
	assert.Equal(t, "boss", created.Username)
	assert.True(t, created.IsAdmin())
	assert.True(t, created.IsActive)

	updated, err := svc.AddOrUpdate(ctx, "naughty", "naughty@test.cd", "N3w#Secret", false)
	require.NoError(t, err)
	assert.True(t, updated.IsActive)
	assert.False(t, updated.IsAdmin())
	assert.True(t, updated.HasRole(user.RoleEditorFree))
	assert.NoError(t, updated.CheckPassword("N3w#Secret"))
}

func TestService_Update(t *testing.T) {
	svc, repo := setup(t, core.AuthMethodEmail)
	ctx := context.Background()
	validate, _ := testutil.NewValidator()
	usr := testutil.CreateUser(t, repo, "awe", "awe@test.cd", pwd, nil, true)

	nick := "  Awe "
	uu := user.UpdateUser{Nickname: &nick, Roles: []string{user.RoleEditorPaid}}
	require.NoError(t, uu.Validate(usr, validate))

	updated, err := svc.Update(ctx, usr, uu)
	require.NoError(t, err)
	got, err := svc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, "Awe", got.Nickname)
	assert.Equal(t, []string{user.RoleEditorPaid}, got.Roles)
	assert.True(t, updated.UpdatedAt.Equal(got.UpdatedAt))
}
