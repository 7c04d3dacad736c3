package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHash(t *testing.T) {
	var u User
	assert.ErrorIs(t, u.CheckPassword("anything"), ErrBadPassword)

	require.NoError(t, u.SetPassword("s3cret-pass"))
	assert.NotEqual(t, "s3cret-pass", u.PasswordHash)
	assert.NoError(t, u.CheckPassword("s3cret-pass"))
	assert.ErrorIs(t, u.CheckPassword("wrong"), ErrBadPassword)
}

func TestProductIssued(t *testing.T) {
	p := Product{Quantity: 10, DamagedQuantity: 2, InStock: 5}
	assert.Equal(t, 3, p.Issued())
	assert.Equal(t, 3, p.View().Issued)
}
