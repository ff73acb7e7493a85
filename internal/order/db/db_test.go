package db_test

import (
	"context"
	"testing"
	"time"

	"ms-tableside/internal/database/testdb"
	"ms-tableside/internal/models"
	"ms-tableside/internal/order/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	bunDB := testdb.New(t)
	return &db.DB{Bun: bunDB}, bunDB
}

func newOrder(id, tableID string, status models.OrderStatus, created time.Time) *models.Order {
	return &models.Order{
		ID:            id,
		RestaurantID:  "r1",
		TableID:       tableID,
		DeviceID:      "dev-1",
		Status:        status,
		PaymentStatus: models.PaymentUnpaid,
		Total:         12.5,
		CreatedAt:     created,
		UpdatedAt:     created,
		Items: []models.OrderItem{
			{ID: id + "-i1", OrderID: id, ProductID: "p1", Name: "Soup", UnitPrice: 6.25, Quantity: 2},
		},
	}
}

func TestCreateAndGetOrderWithItems(t *testing.T) {
	orderDB, _ := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, orderDB.CreateOrder(ctx, newOrder("o1", "t1", models.OrderServerReview, time.Now().UTC())))

	got, err := orderDB.GetOrderByID(ctx, "o1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 12.5, got.Total)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Soup", got.Items[0].Name)

	missing, err := orderDB.GetOrderByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestClaimOrderOnlyFromPending(t *testing.T) {
	orderDB, _ := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, orderDB.CreateOrder(ctx, newOrder("o1", "t1", models.OrderPending, now)))

	ok, err := orderDB.ClaimOrder(ctx, "o1", "k1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = orderDB.ClaimOrder(ctx, "o1", "k2", now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := orderDB.GetOrderByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderPreparing, got.Status)
	require.NotNil(t, got.ClaimedBy)
	assert.Equal(t, "k1", *got.ClaimedBy)
	assert.Equal(t, int64(1), got.Version)
}

func TestUpdateStatusIsConditional(t *testing.T) {
	orderDB, _ := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, orderDB.CreateOrder(ctx, newOrder("o1", "t1", models.OrderReady, now)))

	ok, err := orderDB.UpdateStatus(ctx, "o1", models.OrderPending, models.OrderCancelled, now)
	require.NoError(t, err)
	assert.False(t, ok, "stale from-status must not write")

	ok, err = orderDB.UpdateStatus(ctx, "o1", models.OrderReady, models.OrderServed, now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPatchOrderWritesNotesAndStatusTogether(t *testing.T) {
	orderDB, _ := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, orderDB.CreateOrder(ctx, newOrder("o1", "t1", models.OrderServed, now)))

	notes := "changed"
	ok, err := orderDB.PatchOrder(ctx, "o1", models.OrderReady, models.OrderPending, &notes, now)
	require.NoError(t, err)
	assert.False(t, ok)
	got, err := orderDB.GetOrderByID(ctx, "o1")
	require.NoError(t, err)
	assert.Empty(t, got.ServerNotes, "a rejected patch must not leave notes behind")
	assert.Equal(t, models.OrderServed, got.Status)

	ok, err = orderDB.PatchOrder(ctx, "o1", models.OrderServed, models.OrderServed, &notes, now)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = orderDB.GetOrderByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "changed", got.ServerNotes)
	assert.Equal(t, int64(1), got.Version)
}

func TestReviewOrder(t *testing.T) {
	orderDB, _ := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, orderDB.CreateOrder(ctx, newOrder("o1", "t1", models.OrderServerReview, now)))

	ok, err := orderDB.ReviewOrder(ctx, "o1", "no onions", models.OrderPending, now)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := orderDB.GetOrderByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, got.Status)
	assert.Equal(t, "no onions", got.ServerNotes)

	ok, err = orderDB.ReviewOrder(ctx, "o1", "again", models.OrderPending, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListOrdersFilters(t *testing.T) {
	orderDB, bunDB := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	server := "s1"

	tables := []models.Table{
		{ID: "t1", RestaurantID: "r1", Name: "T1", Status: models.TableBusy, ServerID: &server, CreatedAt: base, UpdatedAt: base},
		{ID: "t2", RestaurantID: "r1", Name: "T2", Status: models.TableBusy, CreatedAt: base, UpdatedAt: base},
	}
	_, err := bunDB.NewInsert().Model(&tables).Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, orderDB.CreateOrder(ctx, newOrder("o1", "t1", models.OrderPending, base)))
	require.NoError(t, orderDB.CreateOrder(ctx, newOrder("o2", "t1", models.OrderServed, base.Add(time.Hour))))
	require.NoError(t, orderDB.CreateOrder(ctx, newOrder("o3", "t2", models.OrderPending, base.Add(2*time.Hour))))

	all, err := orderDB.ListOrders(ctx, db.Filter{RestaurantID: "r1"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pending, err := orderDB.ListOrders(ctx, db.Filter{RestaurantID: "r1", Status: models.OrderPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	mine, err := orderDB.ListOrders(ctx, db.Filter{ServerID: "s1"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	for _, o := range mine {
		assert.Equal(t, "t1", o.TableID)
	}

	since := base.Add(30 * time.Minute)
	recent, err := orderDB.ListOrders(ctx, db.Filter{TableID: "t1", Since: &since})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "o2", recent[0].ID)
}

func TestGetProductsScopedToRestaurant(t *testing.T) {
	orderDB, bunDB := setupTestDB(t)
	ctx := context.Background()

	products := []models.Product{
		{ID: "p1", RestaurantID: "r1", Name: "Soup", Price: 6.25, Available: true},
		{ID: "p2", RestaurantID: "r2", Name: "Cake", Price: 4, Available: true},
	}
	_, err := bunDB.NewInsert().Model(&products).Exec(ctx)
	require.NoError(t, err)

	got, err := orderDB.GetProducts(ctx, "r1", []string{"p1", "p2", "p3"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)

	none, err := orderDB.GetProducts(ctx, "r1", nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
