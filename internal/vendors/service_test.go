package vendors

import (
	"context"
	"testing"

	"github.com/angelmondragon/shopsphere-backend/pkg/db/dbtest"
	pkgerrors "github.com/angelmondragon/shopsphere-backend/pkg/errors"
	"github.com/angelmondragon/shopsphere-backend/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(NewRepository(client.DB()))
	require.NoError(t, err)
	return svc
}

func TestRegisterAssignsSequentialIDs(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, RegisterInput{Name: "Acme Supplies", Email: "ops@acme.test", Phone: "555-0100"})
	require.NoError(t, err)
	second, err := svc.Register(ctx, RegisterInput{Name: "  Bolt Traders  "})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, "Bolt Traders", second.Name)
	require.NotNil(t, first.Email)
	assert.Equal(t, "ops@acme.test", *first.Email)
	assert.Nil(t, second.Email)
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Name: " "})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Register(ctx, RegisterInput{Name: "Acme", Email: "not-an-email"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGetAndExists(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Register(ctx, RegisterInput{Name: "Acme"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)

	_, err = svc.Get(ctx, 999)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	ok, err := svc.Exists(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Exists(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListPaginates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C"} {
		_, err := svc.Register(ctx, RegisterInput{Name: name})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Vendors, 2)
	require.NotEmpty(t, page.NextCursor)

	next, err := svc.List(ctx, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Vendors, 1)
	assert.Equal(t, "C", next.Vendors[0].Name)
	assert.Empty(t, next.NextCursor)
}
