package order_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"ms-tableside/internal/apperr"
	"ms-tableside/internal/auth"
	"ms-tableside/internal/database/testdb"
	"ms-tableside/internal/logger"
	"ms-tableside/internal/models"
	"ms-tableside/internal/notify"
	"ms-tableside/internal/order"
	orderdb "ms-tableside/internal/order/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// Mock implementations
type MockSessions struct {
	mock.Mock
}

func (m *MockSessions) ValidateSession(ctx context.Context, token string) (*models.Table, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Table), args.Error(1)
}

func (m *MockSessions) SessionTable(ctx context.Context, token string) (*models.Table, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Table), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Dispatch(ctx context.Context, ev notify.Event) {
	m.Called(ctx, ev)
}

var (
	kitchen   = auth.Caller{UserID: "k1", RestaurantID: "r1", Role: auth.RoleKitchen}
	kitchen2  = auth.Caller{UserID: "k2", RestaurantID: "r1", Role: auth.RoleKitchen}
	waiter    = auth.Caller{UserID: "s1", RestaurantID: "r1", Role: auth.RoleServer}
	outsider  = auth.Caller{UserID: "x1", RestaurantID: "r2", Role: auth.RoleRestaurantAdmin}
	clock     = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testTable = &models.Table{ID: "t1", RestaurantID: "r1", Name: "Table 1", Status: models.TableBusy}
)

func setupService(t *testing.T) (*order.OrderService, *MockSessions, *MockNotifier, *bun.DB) {
	t.Helper()
	bunDB := testdb.New(t)

	products := []models.Product{
		{ID: "p1", RestaurantID: "r1", Name: "Soup", Price: 6.5, Available: true},
		{ID: "p2", RestaurantID: "r1", Name: "Bread", Price: 2.25, Available: true},
		{ID: "p3", RestaurantID: "r1", Name: "Seasonal", Price: 9, Available: false},
	}
	_, err := bunDB.NewInsert().Model(&products).Exec(context.Background())
	require.NoError(t, err)

	sessions := new(MockSessions)
	notifier := new(MockNotifier)
	notifier.On("Dispatch", mock.Anything, mock.Anything).Return()

	svc := order.NewOrderService(&orderdb.DB{Bun: bunDB}, sessions, notifier, logger.NewWithWriter(io.Discard))
	svc.Now = func() time.Time { return clock }
	return svc, sessions, notifier, bunDB
}

func placeOrder(t *testing.T, svc *order.OrderService, sessions *MockSessions) *models.Order {
	t.Helper()
	sessions.On("SessionTable", mock.Anything, "tok").Return(testTable, nil).Maybe()
	sessions.On("ValidateSession", mock.Anything, "tok").Return(testTable, nil).Maybe()
	o, err := svc.Create(context.Background(), order.CreateOrderRequest{
		Token:    "tok",
		DeviceID: "dev-1",
		Items:    []order.ItemRequest{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}},
	})
	require.NoError(t, err)
	return o
}

func TestCreateSnapshotsPrices(t *testing.T) {
	svc, sessions, notifier, bunDB := setupService(t)

	o := placeOrder(t, svc, sessions)
	assert.Equal(t, 15.25, o.Total)
	assert.Equal(t, models.OrderServerReview, o.Status)
	assert.Equal(t, models.PaymentUnpaid, o.PaymentStatus)
	require.Len(t, o.Items, 2)

	// A later price change must not touch the stored order.
	_, err := bunDB.NewUpdate().Model((*models.Product)(nil)).Set("price = ?", 100).Where("id = ?", "p1").Exec(context.Background())
	require.NoError(t, err)
	got, err := svc.Get(context.Background(), waiter, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 15.25, got.Total)
	prices := map[string]float64{}
	for _, item := range got.Items {
		prices[item.ProductID] = item.UnitPrice
	}
	assert.Equal(t, map[string]float64{"p1": 6.5, "p2": 2.25}, prices)

	notifier.AssertCalled(t, "Dispatch", mock.Anything, mock.MatchedBy(func(ev notify.Event) bool {
		created, ok := ev.(notify.OrderCreated)
		return ok && created.Order.ID == o.ID && created.TableName == "Table 1" && created.TableServerID == nil
	}))
}

func TestCreateValidation(t *testing.T) {
	svc, sessions, _, _ := setupService(t)
	ctx := context.Background()
	sessions.On("SessionTable", mock.Anything, "tok").Return(testTable, nil)
	sessions.On("SessionTable", mock.Anything, "bad").Return(nil, apperr.InvalidToken("test", "bad token"))

	_, err := svc.Create(ctx, order.CreateOrderRequest{Token: "tok", DeviceID: "d"})
	assert.ErrorIs(t, err, apperr.ErrEmptyOrder)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.Create(ctx, order.CreateOrderRequest{Token: "tok", DeviceID: "d", Items: []order.ItemRequest{{ProductID: "p1", Quantity: 0}}})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.Create(ctx, order.CreateOrderRequest{Token: "tok", DeviceID: "d", Items: []order.ItemRequest{{ProductID: "p3", Quantity: 1}}})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.Create(ctx, order.CreateOrderRequest{Token: "tok", DeviceID: "d", Items: []order.ItemRequest{{ProductID: "ghost", Quantity: 1}}})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.Create(ctx, order.CreateOrderRequest{Token: "bad", DeviceID: "d", Items: []order.ItemRequest{{ProductID: "p1", Quantity: 1}}})
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	// None of the rejected orders may occupy the table.
	sessions.AssertNotCalled(t, "ValidateSession", mock.Anything, mock.Anything)
}

func TestRejectedOrderLeavesTableUntouched(t *testing.T) {
	svc, sessions, notifier, bunDB := setupService(t)
	ctx := context.Background()
	sessions.On("SessionTable", mock.Anything, "tok").Return(testTable, nil)

	_, err := svc.Create(ctx, order.CreateOrderRequest{
		Token:    "tok",
		DeviceID: "d",
		Items:    []order.ItemRequest{{ProductID: "p1", Quantity: 1}, {ProductID: "p3", Quantity: 1}},
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	sessions.AssertNotCalled(t, "ValidateSession", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	count, err := bunDB.NewSelect().Model((*models.Order)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	// The session check that occupies the table runs once the order is accepted.
	sessions.On("ValidateSession", mock.Anything, "tok").Return(testTable, nil).Once()
	_, err = svc.Create(ctx, order.CreateOrderRequest{Token: "tok", DeviceID: "d", Items: []order.ItemRequest{{ProductID: "p1", Quantity: 1}}})
	require.NoError(t, err)
	sessions.AssertNumberOfCalls(t, "ValidateSession", 1)
}

func TestReviewThenClaimFlow(t *testing.T) {
	svc, sessions, _, _ := setupService(t)
	ctx := context.Background()
	o := placeOrder(t, svc, sessions)

	_, err := svc.Claim(ctx, kitchen, o.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "orders under review cannot be claimed")

	reviewed, err := svc.Review(ctx, waiter, o.ID, " extra napkins ", true)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, reviewed.Status)
	assert.Equal(t, "extra napkins", reviewed.ServerNotes)

	_, err = svc.Review(ctx, waiter, o.ID, "", true)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	claimed, err := svc.Claim(ctx, kitchen, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPreparing, claimed.Status)
	require.NotNil(t, claimed.ClaimedBy)
	assert.Equal(t, "k1", *claimed.ClaimedBy)
	require.NotNil(t, claimed.ClaimedAt)
	assert.True(t, clock.Equal(*claimed.ClaimedAt))
}

func TestReviewWithoutSendingKeepsReview(t *testing.T) {
	svc, sessions, _, _ := setupService(t)
	o := placeOrder(t, svc, sessions)

	reviewed, err := svc.Review(context.Background(), waiter, o.ID, "check allergy", false)
	require.NoError(t, err)
	assert.Equal(t, models.OrderServerReview, reviewed.Status)
	assert.Equal(t, "check allergy", reviewed.ServerNotes)
}

func TestConcurrentClaimHasOneWinner(t *testing.T) {
	svc, sessions, _, _ := setupService(t)
	ctx := context.Background()
	o := placeOrder(t, svc, sessions)
	_, err := svc.Review(ctx, waiter, o.ID, "", true)
	require.NoError(t, err)

	callers := []auth.Caller{kitchen, kitchen2, kitchen, kitchen2, kitchen, kitchen2}
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, losses := 0, 0
	for _, c := range callers {
		wg.Add(1)
		go func(c auth.Caller) {
			defer wg.Done()
			_, err := svc.Claim(ctx, c, o.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if assert.ErrorIs(t, err, apperr.ErrInvalidState) {
				losses++
			}
		}(c)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, len(callers)-1, losses)
}

func TestSetStatusOverrideAndTerminal(t *testing.T) {
	svc, sessions, _, _ := setupService(t)
	ctx := context.Background()
	o := placeOrder(t, svc, sessions)

	_, err := svc.SetStatus(ctx, waiter, o.ID, models.OrderStatus("LOST"))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	ready, err := svc.SetStatus(ctx, waiter, o.ID, models.OrderReady)
	require.NoError(t, err, "staff may skip steps")
	assert.Equal(t, models.OrderReady, ready.Status)

	cancelled, err := svc.SetStatus(ctx, waiter, o.ID, models.OrderCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)

	_, err = svc.SetStatus(ctx, waiter, o.ID, models.OrderPending)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestUpdatePatch(t *testing.T) {
	svc, sessions, notifier, _ := setupService(t)
	ctx := context.Background()
	o := placeOrder(t, svc, sessions)

	notes := "table wants it fast"
	updated, err := svc.Update(ctx, waiter, o.ID, order.OrderPatch{ServerNotes: &notes})
	require.NoError(t, err)
	assert.Equal(t, notes, updated.ServerNotes)
	assert.Equal(t, models.OrderServerReview, updated.Status)

	status := models.OrderPending
	updated, err = svc.Update(ctx, waiter, o.ID, order.OrderPatch{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, updated.Status)

	_, err = svc.Update(ctx, waiter, o.ID, order.OrderPatch{})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	notifier.AssertNumberOfCalls(t, "Dispatch", 3)
}

func TestUpdateOnTerminalOrderWritesNothing(t *testing.T) {
	svc, sessions, _, _ := setupService(t)
	ctx := context.Background()
	o := placeOrder(t, svc, sessions)

	original := "seat 4"
	_, err := svc.Update(ctx, waiter, o.ID, order.OrderPatch{ServerNotes: &original})
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, waiter, o.ID, models.OrderServed)
	require.NoError(t, err)

	changed := "changed"
	pending := models.OrderPending
	_, err = svc.Update(ctx, waiter, o.ID, order.OrderPatch{ServerNotes: &changed, Status: &pending})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	got, err := svc.Get(ctx, waiter, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderServed, got.Status)
	assert.Equal(t, original, got.ServerNotes)

	// Notes alone may still be corrected after service.
	_, err = svc.Update(ctx, waiter, o.ID, order.OrderPatch{ServerNotes: &changed})
	require.NoError(t, err)
	got, err = svc.Get(ctx, waiter, o.ID)
	require.NoError(t, err)
	assert.Equal(t, changed, got.ServerNotes)
	assert.Equal(t, models.OrderServed, got.Status)
}

func TestUpdateNotesAndStatusTogether(t *testing.T) {
	svc, sessions, _, _ := setupService(t)
	ctx := context.Background()
	o := placeOrder(t, svc, sessions)

	notes := " no onions "
	ready := models.OrderReady
	updated, err := svc.Update(ctx, waiter, o.ID, order.OrderPatch{ServerNotes: &notes, Status: &ready})
	require.NoError(t, err)
	assert.Equal(t, "no onions", updated.ServerNotes)
	assert.Equal(t, models.OrderReady, updated.Status)
	assert.Equal(t, int64(1), updated.Version)
}

func TestOtherTenantSeesNotFound(t *testing.T) {
	svc, sessions, _, _ := setupService(t)
	o := placeOrder(t, svc, sessions)

	_, err := svc.Get(context.Background(), outsider, o.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.Claim(context.Background(), outsider, o.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	list, err := svc.List(context.Background(), outsider, order.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListMineAndForTable(t *testing.T) {
	svc, sessions, _, bunDB := setupService(t)
	ctx := context.Background()
	server := "s1"
	_, err := bunDB.NewInsert().Model(&models.Table{
		ID: "t1", RestaurantID: "r1", Name: "Table 1", Status: models.TableBusy, ServerID: &server, CreatedAt: clock, UpdatedAt: clock,
	}).Exec(ctx)
	require.NoError(t, err)

	first := placeOrder(t, svc, sessions)
	svc.Now = func() time.Time { return clock.Add(time.Hour) }
	second := placeOrder(t, svc, sessions)

	mine, err := svc.List(ctx, waiter, order.ListFilter{Mine: true})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	others, err := svc.List(ctx, auth.Caller{UserID: "s9", RestaurantID: "r1", Role: auth.RoleServer}, order.ListFilter{Mine: true})
	require.NoError(t, err)
	assert.Empty(t, others)

	// Only servers have assigned tables; other roles get the unfiltered list.
	everything, err := svc.List(ctx, kitchen, order.ListFilter{Mine: true})
	require.NoError(t, err)
	assert.Len(t, everything, 2)
	admin := auth.Caller{UserID: "a1", RestaurantID: "r1", Role: auth.RoleRestaurantAdmin}
	everything, err = svc.List(ctx, admin, order.ListFilter{Mine: true})
	require.NoError(t, err)
	assert.Len(t, everything, 2)

	reset := clock.Add(30 * time.Minute)
	sessions.On("SessionTable", mock.Anything, "tok-current").Return(&models.Table{ID: "t1", RestaurantID: "r1", LastResetAt: &reset}, nil)
	current, err := svc.ListForTable(ctx, "tok-current")
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, second.ID, current[0].ID)
	assert.NotEqual(t, first.ID, current[0].ID)
}
