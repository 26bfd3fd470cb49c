package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatching(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := CallFailed("register", cause)
	assert.ErrorIs(t, err, ErrCallFailed)
	assert.ErrorIs(t, err, cause)

	assert.ErrorIs(t, ErrTimeout, ErrCallFailed)
	assert.NotErrorIs(t, ErrUnavailable, ErrCallFailed)

	wrapped := CallFailed("mint", ErrTimeout)
	assert.ErrorIs(t, wrapped, ErrTimeout)

	assert.ErrorIs(t, Rejected("transfer", 3, "not owner"), ErrCallFailed)
}

func TestEntityHasToken(t *testing.T) {
	var missing *Entity
	assert.False(t, missing.HasToken())
	assert.False(t, (&Entity{TokenID: "0"}).HasToken())
	assert.False(t, (&Entity{}).HasToken())
	assert.True(t, (&Entity{TokenID: "42"}).HasToken())
}

func TestDisabledGateway(t *testing.T) {
	var g Gateway = Disabled{}
	ctx := context.Background()

	assert.False(t, g.IsAvailable())
	_, err := g.Register(ctx, "x", Attributes{})
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = g.MintToken(ctx, "x", "", "")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Nil(t, g.GetEntity(ctx, "x"))
	assert.Empty(t, g.GetHistory(ctx, "x"))
}
