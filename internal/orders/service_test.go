package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

func TestGetChecksParties(t *testing.T) {
	ctx := context.Background()
	client := dbtest.Open(t)
	svc, err := NewService(NewRepository(client.DB()))
	require.NoError(t, err)

	buyer, seller := uuid.New(), uuid.New()
	order := dbtest.SeedOrder(t, client.DB(), buyer, seller,
		dbtest.Item{Name: "mug", UnitPrice: "10.00", Quantity: 2},
		dbtest.Item{Name: "lamp", UnitPrice: "25.50", Quantity: 1},
	)

	got, err := svc.Get(ctx, auth.Actor{UserID: buyer, Role: enums.RoleCustomer}, order.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	names := []string{got.Items[0].ProductName, got.Items[1].ProductName}
	assert.ElementsMatch(t, []string{"mug", "lamp"}, names)

	_, err = svc.Get(ctx, auth.Actor{UserID: seller, Role: enums.RoleSeller}, order.ID)
	require.NoError(t, err)
	_, err = svc.Get(ctx, auth.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}, order.ID)
	require.NoError(t, err)

	_, err = svc.Get(ctx, auth.Actor{UserID: uuid.New(), Role: enums.RoleCustomer}, order.ID)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	_, err = svc.Get(ctx, auth.Actor{UserID: buyer, Role: enums.RoleCustomer}, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestListScopesToCaller(t *testing.T) {
	ctx := context.Background()
	client := dbtest.Open(t)
	svc, err := NewService(NewRepository(client.DB()))
	require.NoError(t, err)

	buyer, seller := uuid.New(), uuid.New()
	for i := 0; i < 3; i++ {
		dbtest.SeedOrder(t, client.DB(), buyer, seller, dbtest.Item{Name: "item", UnitPrice: "5.00", Quantity: 1})
	}
	dbtest.SeedOrder(t, client.DB(), uuid.New(), seller, dbtest.Item{Name: "other", UnitPrice: "5.00", Quantity: 1})

	first, err := svc.ListForBuyer(ctx, buyer, ListParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.ListForBuyer(ctx, buyer, ListParams{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	assert.Len(t, second.Items, 1)
	assert.Empty(t, second.NextCursor)

	sellerPage, err := svc.ListForSeller(ctx, seller, ListParams{})
	require.NoError(t, err)
	assert.Len(t, sellerPage.Items, 4)

	paid := enums.OrderStatusPaid
	none, err := svc.ListForSeller(ctx, seller, ListParams{Status: &paid})
	require.NoError(t, err)
	assert.Empty(t, none.Items)
}

func TestRepositoryStateTransitions(t *testing.T) {
	ctx := context.Background()
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	order := dbtest.SeedOrder(t, client.DB(), uuid.New(), uuid.New(), dbtest.Item{Name: "x", UnitPrice: "1.00", Quantity: 1})

	require.NoError(t, repo.MarkPaymentFailed(ctx, order.ID))
	got, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaymentFailed, got.Status)

	invoiceID := uuid.New()
	require.NoError(t, repo.SetInvoice(ctx, order.ID, invoiceID))
	got, err = repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, got.InvoiceID)
	assert.Equal(t, invoiceID, *got.InvoiceID)
	assert.Equal(t, enums.InvoiceStatusGenerated, got.InvoiceStatus)

	assert.Error(t, repo.SetInvoiceStatus(ctx, uuid.New(), enums.InvoiceStatusFailed))
}
