package featuregate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/authgate/internal/domain"
	"github.com/spec-kit/authgate/internal/repository"
	"github.com/spec-kit/authgate/internal/repository/memstore"
	apperrors "github.com/spec-kit/authgate/pkg/util/errorutil"
)

func newTestAdmin(t *testing.T) (*Admin, *Cache) {
	t.Helper()
	store := memstore.New().Bridges()
	cache, _ := newTestCache(t, store, nil, Options{})
	return NewAdmin(store, cache), cache
}

func TestAdmin_WritesBustTheCache(t *testing.T) {
	ctx := context.Background()
	admin, cache := newTestAdmin(t)
	u1 := domain.Identity{ID: "u1"}

	assert.False(t, cache.CanCross(ctx, "beta", u1))
	require.Equal(t, StatePopulated, cache.State())

	_, err := admin.CreateBridge(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, StateEmpty, cache.State())

	_, err = admin.AddFilter(ctx, "beta", domain.FilterKindAllUsers, true, nil)
	require.NoError(t, err)
	assert.True(t, cache.CanCross(ctx, "beta", u1))

	f, err := admin.AddFilter(ctx, "beta", domain.FilterKindSpecificUsers, false, json.RawMessage(`{"ids":["u1"]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, f.Position)
	assert.False(t, cache.CanCross(ctx, "beta", u1))
	assert.True(t, cache.CanCross(ctx, "beta", domain.Identity{ID: "u2"}))

	bridges, err := admin.ListBridges(ctx)
	require.NoError(t, err)
	require.Len(t, bridges, 1)
	assert.Len(t, bridges[0].Filters, 2)

	require.NoError(t, admin.DeleteBridge(ctx, "beta"))
	assert.False(t, cache.CanCross(ctx, "beta", domain.Identity{ID: "u2"}))
}

func TestAdmin_RejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	admin, _ := newTestAdmin(t)

	for _, name := range []string{"", "Beta", "-beta", "has space"} {
		_, err := admin.CreateBridge(ctx, name)
		assert.Equal(t, 400, apperrors.ToDomainError(err).HTTPStatus, name)
	}

	_, err := admin.CreateBridge(ctx, "beta")
	require.NoError(t, err)
	_, err = admin.CreateBridge(ctx, "beta")
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = admin.AddFilter(ctx, "beta", domain.FilterKindPercentage, true, json.RawMessage(`{"percentage":150}`))
	assert.Equal(t, 400, apperrors.ToDomainError(err).HTTPStatus)
	_, err = admin.AddFilter(ctx, "beta", domain.FilterKindExpression, true, json.RawMessage(`{"expr":"identity.id +"}`))
	assert.Equal(t, 400, apperrors.ToDomainError(err).HTTPStatus)

	_, err = admin.AddFilter(ctx, "ghost", domain.FilterKindAllUsers, true, nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, admin.DeleteBridge(ctx, "ghost"), repository.ErrNotFound)
}
