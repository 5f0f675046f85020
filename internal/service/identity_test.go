package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dooropener/dooropener/internal/auth"
	"github.com/dooropener/dooropener/internal/metrics"
)

const testSessionSecret = "0123456789abcdef0123456789abcdef"

type identityEnv struct {
	svc      *IdentityService
	users    *fakeUsers
	sessions *fakeSessions
	metrics  *metrics.InMemoryRecorder
}

func newIdentityEnv(t *testing.T) *identityEnv {
	t.Helper()
	signer, err := auth.NewSessionSigner(testSessionSecret)
	require.NoError(t, err)

	env := &identityEnv{
		users:    newFakeUsers(),
		sessions: newFakeSessions(),
		metrics:  metrics.NewInMemory(),
	}
	env.svc = NewIdentityService(env.users, env.sessions, signer, time.Hour, env.metrics, testLogger())
	return env
}

func registerAlice(t *testing.T, env *identityEnv) {
	t.Helper()
	_, err := env.svc.Register(context.Background(), RegisterInput{
		Username:        "alice",
		Email:           "alice@example.com",
		Password:        "correct-horse",
		PasswordConfirm: "correct-horse",
	})
	require.NoError(t, err)
}

func TestIdentity_RegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	env := newIdentityEnv(t)

	p, err := env.svc.Register(ctx, RegisterInput{
		Username:        " alice ",
		Email:           "alice@example.com",
		Password:        "correct-horse",
		PasswordConfirm: "correct-horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	assert.NotEqual(t, "correct-horse", p.PasswordHash)

	got, err := env.svc.Authenticate(ctx, Credentials{Username: "alice", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.EqualValues(t, 1, env.metrics.Snapshot().LoginsSucceeded)
}

func TestIdentity_RegisterDuplicateUsername(t *testing.T) {
	env := newIdentityEnv(t)
	registerAlice(t, env)

	_, err := env.svc.Register(context.Background(), RegisterInput{
		Username: "alice", Password: "another-pass", PasswordConfirm: "another-pass",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, FieldUsername)
}

func TestIdentity_RegisterInvalid(t *testing.T) {
	env := newIdentityEnv(t)

	_, err := env.svc.Register(context.Background(), RegisterInput{Username: "bob", Password: "123", PasswordConfirm: "124"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, FieldPassword)
	assert.Contains(t, verr.Fields, FieldPasswordConfirm)
}

func TestIdentity_RegisterStorageFailure(t *testing.T) {
	env := newIdentityEnv(t)
	env.users.err = errUnreachable

	_, err := env.svc.Register(context.Background(), RegisterInput{Username: "bob", Password: "correct-horse", PasswordConfirm: "correct-horse"})
	assert.ErrorIs(t, err, ErrStorage)
}

func TestIdentity_AuthenticateFailuresAreGeneric(t *testing.T) {
	ctx := context.Background()
	env := newIdentityEnv(t)
	registerAlice(t, env)

	tests := []struct {
		name  string
		creds Credentials
	}{
		{"wrong password", Credentials{Username: "alice", Password: "wrong-horse"}},
		{"unknown user", Credentials{Username: "mallory", Password: "correct-horse"}},
		{"empty password", Credentials{Username: "alice"}},
		{"empty username", Credentials{Password: "correct-horse"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := env.svc.Authenticate(ctx, tt.creds)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, ErrAuth)
			assert.Equal(t, ErrAuth.Error(), err.Error())
		})
	}
	assert.EqualValues(t, len(tests), env.metrics.Snapshot().LoginsFailed)
}

func TestIdentity_AuthenticateStorageFailure(t *testing.T) {
	env := newIdentityEnv(t)
	env.users.err = errUnreachable

	_, err := env.svc.Authenticate(context.Background(), Credentials{Username: "alice", Password: "x"})
	assert.ErrorIs(t, err, ErrStorage)
}

func TestIdentity_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newIdentityEnv(t)
	registerAlice(t, env)

	alice, err := env.svc.Authenticate(ctx, Credentials{Username: "alice", Password: "correct-horse"})
	require.NoError(t, err)

	issued, err := env.svc.StartSession(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, issued.Session.PrincipalID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), issued.Session.ExpiresAt, time.Minute)

	current, err := env.svc.CurrentSession(ctx, issued.Token)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, alice.ID, current.ID)

	require.NoError(t, env.svc.EndSession(ctx, issued.Token))

	current, err = env.svc.CurrentSession(ctx, issued.Token)
	require.NoError(t, err)
	assert.Nil(t, current, "ended session must not resolve")
}

func TestIdentity_CurrentSessionRejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	env := newIdentityEnv(t)
	registerAlice(t, env)
	alice, err := env.svc.Authenticate(ctx, Credentials{Username: "alice", Password: "correct-horse"})
	require.NoError(t, err)
	issued, err := env.svc.StartSession(ctx, alice)
	require.NoError(t, err)

	for _, token := range []string{"", "garbage", issued.Token + "x"} {
		p, err := env.svc.CurrentSession(ctx, token)
		assert.NoError(t, err)
		assert.Nil(t, p)
	}

	other, err := auth.NewSessionSigner("ffffffffffffffffffffffffffffffff")
	require.NoError(t, err)
	forged, err := other.Sign(issued.Session.ID, alice.ID, time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	p, err := env.svc.CurrentSession(ctx, forged)
	assert.NoError(t, err)
	assert.Nil(t, p, "token signed with another secret must not resolve")
}

func TestIdentity_CurrentSessionRequiresStoredSession(t *testing.T) {
	ctx := context.Background()
	env := newIdentityEnv(t)
	registerAlice(t, env)

	signer, err := auth.NewSessionSigner(testSessionSecret)
	require.NoError(t, err)
	token, err := signer.Sign("never-stored", 1, time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	p, err := env.svc.CurrentSession(ctx, token)
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestIdentity_CurrentSessionStorageFailure(t *testing.T) {
	ctx := context.Background()
	env := newIdentityEnv(t)
	registerAlice(t, env)
	alice, err := env.svc.Authenticate(ctx, Credentials{Username: "alice", Password: "correct-horse"})
	require.NoError(t, err)
	issued, err := env.svc.StartSession(ctx, alice)
	require.NoError(t, err)

	env.sessions.err = errUnreachable
	_, err = env.svc.CurrentSession(ctx, issued.Token)
	assert.ErrorIs(t, err, ErrStorage)
}

func TestIdentity_EndSessionIgnoresInvalidToken(t *testing.T) {
	env := newIdentityEnv(t)
	assert.NoError(t, env.svc.EndSession(context.Background(), "garbage"))
}
