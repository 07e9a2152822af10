package db

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cancersense/apperr"
)

func TestValidateEmail(t *testing.T) {
	valid := []string{"a@b.co", "first.last@mail.example.org", "x-y_z@host-1.io", "josé@exämple.com", "用户@例子.中国"}
	invalid := []string{"", "plain", "a@b", "@b.com", "a@.", "a b@c.com", "a@b.c om"}
	for _, email := range valid {
		assert.True(t, ValidateEmail(email), email)
	}
	for _, email := range invalid {
		assert.False(t, ValidateEmail(email), email)
	}
}

func TestValidatePasswordRules(t *testing.T) {
	valid := []string{"Passw0rd", "Abcdefg1", "zzzzZZZZ9", "1234567aB", "Str0ng!Passphrase"}
	for _, password := range valid {
		require.True(t, ValidatePassword(password), password)

		// violating any single rule fails
		assert.False(t, ValidatePassword(password[:7]), "short: %s", password)
		assert.False(t, ValidatePassword(strings.ToLower(password)), "no upper: %s", password)
		assert.False(t, ValidatePassword(strings.ToUpper(password)), "no lower: %s", password)
		noDigit := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return 'x'
			}
			return r
		}, password)
		assert.False(t, ValidatePassword(noDigit), "no digit: %s", password)
	}
	assert.False(t, ValidatePassword("Pässw0r"))
}

func TestRegisterAndAuthenticate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Register(ctx, "alice", "alice@example.com", testPassword))

	user, err := store.Authenticate(ctx, "alice", testPassword)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEqual(t, testPassword, user.PasswordHash)
	assert.NotZero(t, user.ID)

	_, err = store.Authenticate(ctx, "alice", "Wrong0Password")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeAuth))
	wrongPassword := apperr.Message(err)

	_, err = store.Authenticate(ctx, "nobody", testPassword)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeAuth))
	assert.Equal(t, wrongPassword, apperr.Message(err))
}

func TestRegisterConflicts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Register(ctx, "alice", "alice@example.com", testPassword))

	err := store.Register(ctx, "alice", "other@example.com", testPassword)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))

	err = store.Register(ctx, "alice2", "alice@example.com", testPassword)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))

	result := apperr.ToResult(err, "Registration successful")
	assert.False(t, result.Success)
	assert.Equal(t, "Username or email already exists", result.Message)
}

func TestRegisterValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cases := []struct {
		username, email, password string
	}{
		{"", "a@example.com", testPassword},
		{"bob", "not-an-email", testPassword},
		{"bob", "bob@example.com", "weak"},
		{"bob", "bob@example.com", "alllowercase1"},
	}
	for _, c := range cases {
		err := store.Register(ctx, c.username, c.email, c.password)
		assert.True(t, apperr.Is(err, apperr.CodeValidation), "%+v", c)
	}

	_, ok, err := store.ResolveUserID(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUniqueConstraintBackstop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	registerUser(t, store, "carol")

	db, err := store.ensureConnected(ctx)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, created_at) VALUES ('carol', 'c2@example.com', 'x', CURRENT_TIMESTAMP)`)
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))
}

func TestResolveUserIDUsesCache(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := registerUser(t, store, "dave")

	store.userIDs.Purge()
	got, ok, err := store.ResolveUserID(ctx, "dave")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, got)
	assert.True(t, store.userIDs.Contains("dave"))
}
