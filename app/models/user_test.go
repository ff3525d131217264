package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser(t *testing.T) {
	u, err := CreateUser("Acme Streams", "acme@example.com", "s3cret-pass")
	require.NoError(t, err)

	assert.Equal(t, ROLE_VENDOR, u.Role)
	assert.Equal(t, STATUS_ACTIVE, u.Status)
	assert.False(t, u.IsAdmin())
	assert.NotEqual(t, "s3cret-pass", u.Password)
	assert.True(t, CheckPasswordHash("s3cret-pass", u.Password))
	assert.False(t, CheckPasswordHash("wrong-pass", u.Password))
}

func TestCreateUserValidation(t *testing.T) {
	_, err := CreateUser("Acme Streams", "not-an-email", "s3cret-pass")
	assert.Error(t, err)

	_, err = CreateUser("A", "acme@example.com", "s3cret-pass")
	assert.Error(t, err)
}
