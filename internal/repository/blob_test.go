package repository

import (
	"context"
	"errors"
	"testing"

	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBlobRepository_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBlobRepository()

	value, version, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, value)
	assert.Equal(t, int64(0), version)

	ok, err := repo.CompareAndSwap(ctx, "k", 0, []byte("one"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CompareAndSwap(ctx, "k", 0, []byte("stale"))
	require.NoError(t, err)
	assert.False(t, ok)

	value, version, err = repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "one", string(value))
	assert.Equal(t, int64(1), version)

	require.NoError(t, repo.Delete(ctx, "k"))
	value, _, err = repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestMemoryBlobRepository_FailWith(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBlobRepository()
	repo.FailWith(errors.New("quota exceeded"))

	_, _, err := repo.Get(ctx, "k")
	assert.True(t, apperr.IsStoreUnavailable(err))

	_, err = repo.CompareAndSwap(ctx, "k", 0, []byte("x"))
	assert.True(t, apperr.IsStoreUnavailable(err))

	repo.FailWith(nil)
	_, _, err = repo.Get(ctx, "k")
	assert.NoError(t, err)
}

func TestDecodeRedisBlob(t *testing.T) {
	value, version, err := decodeRedisBlob([]interface{}{nil, nil})
	require.NoError(t, err)
	assert.Nil(t, value)
	assert.Equal(t, int64(0), version)

	value, version, err = decodeRedisBlob([]interface{}{"7", `[{"email":"u@x.com"}]`})
	require.NoError(t, err)
	assert.Equal(t, int64(7), version)
	assert.JSONEq(t, `[{"email":"u@x.com"}]`, string(value))

	_, _, err = decodeRedisBlob([]interface{}{"seven", "x"})
	assert.True(t, apperr.IsStoreUnavailable(err))
}
