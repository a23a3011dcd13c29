package credentials

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolcrib/internal/apperr"
	"toolcrib/internal/models"
)

var fast = Params{Memory: 8 * 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32}

func TestHashVerify(t *testing.T) {
	h, err := HashWith("s3cret", fast)
	require.NoError(t, err)
	assert.Contains(t, h, "$argon2id$v=19$m=8192,t=1,p=1$")

	ok, err := Verify("s3cret", h)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify("wrong", h)
	require.NoError(t, err)
	assert.False(t, ok)

	h2, err := HashWith("s3cret", fast)
	require.NoError(t, err)
	assert.NotEqual(t, h, h2, "salt must differ")

	_, err = Verify("s3cret", "plain")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

type users map[string]*models.User

func (u users) FindByUsername(_ context.Context, name string) (*models.User, error) {
	return u[name], nil
}

func TestAuthenticate(t *testing.T) {
	h, err := HashWith("pw", fast)
	require.NoError(t, err)
	a := NewAuthenticator(users{"sup": {ID: 3, Username: "sup", PasswordHash: h, Role: models.RoleSupervisor}})
	ctx := context.Background()

	u, err := a.Authenticate(ctx, " sup ", "pw")
	require.NoError(t, err)
	assert.EqualValues(t, 3, u.ID)

	_, err = a.Authenticate(ctx, "sup", "nope")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	_, err = a.Authenticate(ctx, "ghost", "pw")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
}
