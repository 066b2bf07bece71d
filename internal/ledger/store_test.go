package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/pointpay/internal/ledger"
	"github.com/example/pointpay/internal/models"
	"github.com/example/pointpay/internal/testutil"
)

func TestMarkOrderPaidTransitionsOnce(t *testing.T) {
	db := testutil.NewDB(t)
	store := ledger.New(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "alice", 0)
	testutil.CreatePendingOrder(t, db, user, "PAY_1", "50.00", 5000)

	paidAt := time.Now()
	order, err := store.MarkOrderPaid(ctx, "PAY_1", "T100", paidAt)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusSuccess, order.Status)
	assert.Equal(t, "T100", order.GatewayTradeNo)
	require.NotNil(t, order.PaidAt)

	_, err = store.MarkOrderPaid(ctx, "PAY_1", "T200", paidAt)
	assert.ErrorIs(t, err, ledger.ErrOrderNotPending)

	reloaded, err := store.FindOrder(ctx, "PAY_1")
	require.NoError(t, err)
	assert.Equal(t, "T100", reloaded.GatewayTradeNo)
}

func TestMarkOrderPaidUnknownOrder(t *testing.T) {
	store := ledger.New(testutil.NewDB(t))

	_, err := store.MarkOrderPaid(context.Background(), "PAY_missing", "T1", time.Now())
	assert.ErrorIs(t, err, ledger.ErrOrderNotPending)
}

func TestFailedOrderIsTerminal(t *testing.T) {
	db := testutil.NewDB(t)
	store := ledger.New(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "bob", 0)
	testutil.CreatePendingOrder(t, db, user, "PAY_2", "10.00", 1000)

	require.NoError(t, store.MarkOrderFailed(ctx, "PAY_2", "T2"))
	assert.ErrorIs(t, store.MarkOrderFailed(ctx, "PAY_2", "T2"), ledger.ErrOrderNotPending)

	_, err := store.MarkOrderPaid(ctx, "PAY_2", "T2", time.Now())
	assert.ErrorIs(t, err, ledger.ErrOrderNotPending)

	order, err := store.FindOrder(ctx, "PAY_2")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFailed, order.Status)
	assert.True(t, order.IsTerminal())
}

// Goroutines share one sqlite connection, so settlements serialize at
// transaction boundaries. TestMarkOrderPaidSQL pins the status guard.
func TestSerializedSettlementsHaveOneWinner(t *testing.T) {
	db := testutil.NewDB(t)
	store := ledger.New(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "carol", 0)
	testutil.CreatePendingOrder(t, db, user, "PAY_3", "50.00", 5000)

	const workers = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := store.Transaction(ctx, func(tx *ledger.Store) error {
				order, err := tx.MarkOrderPaid(ctx, "PAY_3", "T3", time.Now())
				if err != nil {
					return err
				}
				if _, err := tx.IncrementPoints(ctx, order.UserID, order.Points); err != nil {
					return err
				}
				orderID := order.OrderID
				return tx.AppendLog(ctx, &models.PointsLog{
					UserID:  order.UserID,
					Type:    models.PointsLogTypeRecharge,
					Delta:   order.Points,
					OrderID: &orderID,
				})
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ledger.ErrOrderNotPending)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)

	reloaded, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 5000, reloaded.Points)

	logs, err := store.OrderLogs(ctx, "PAY_3")
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestIncrementPoints(t *testing.T) {
	db := testutil.NewDB(t)
	store := ledger.New(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "dave", 100)

	balance, err := store.IncrementPoints(ctx, user.ID, 250)
	require.NoError(t, err)
	assert.EqualValues(t, 350, balance)

	balance, err = store.IncrementPoints(ctx, user.ID, -350)
	require.NoError(t, err)
	assert.EqualValues(t, 0, balance)

	_, err = store.IncrementPoints(ctx, user.ID, -1)
	assert.ErrorIs(t, err, ledger.ErrInsufficientPoints)

	_, err = store.IncrementPoints(ctx, uuid.New(), 10)
	assert.ErrorIs(t, err, ledger.ErrUserNotFound)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	db := testutil.NewDB(t)
	store := ledger.New(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "frank", 0)
	testutil.CreatePendingOrder(t, db, user, "PAY_5", "2.00", 200)

	err := store.Transaction(ctx, func(tx *ledger.Store) error {
		if _, err := tx.MarkOrderPaid(ctx, "PAY_5", "T5", time.Now()); err != nil {
			return err
		}
		if _, err := tx.IncrementPoints(ctx, user.ID, 200); err != nil {
			return err
		}
		return ledger.ErrUserNotFound
	})
	require.ErrorIs(t, err, ledger.ErrUserNotFound)

	order, err := store.FindOrder(ctx, "PAY_5")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)

	reloaded, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, reloaded.Points)
}

func TestAppendLogRejectsSecondEntryForOrder(t *testing.T) {
	db := testutil.NewDB(t)
	store := ledger.New(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "grace", 0)
	orderID := "PAY_6"

	require.NoError(t, store.AppendLog(ctx, &models.PointsLog{
		UserID: user.ID, Type: models.PointsLogTypeRecharge, Delta: 100, OrderID: &orderID,
	}))
	assert.Error(t, store.AppendLog(ctx, &models.PointsLog{
		UserID: user.ID, Type: models.PointsLogTypeRecharge, Delta: 100, OrderID: &orderID,
	}))

	// Manual adjustments carry no order and are not constrained.
	for i := 0; i < 2; i++ {
		require.NoError(t, store.AppendLog(ctx, &models.PointsLog{
			UserID: user.ID, Type: models.PointsLogTypeDeduct, Delta: -10,
		}))
	}

	logs, err := store.UserLogs(ctx, user.ID, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}

func TestFlagAmountMismatch(t *testing.T) {
	db := testutil.NewDB(t)
	store := ledger.New(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "heidi", 0)
	testutil.CreatePendingOrder(t, db, user, "PAY_7", "50.00", 5000)

	assert.ErrorIs(t, store.FlagAmountMismatch(ctx, "PAY_7", decimal.NewFromInt(1)), ledger.ErrOrderNotFound)

	_, err := store.MarkOrderPaid(ctx, "PAY_7", "T7", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.FlagAmountMismatch(ctx, "PAY_7", decimal.RequireFromString("0.01")))

	flagged, err := store.FlaggedOrders(ctx, 10)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.True(t, flagged[0].AmountMismatch)
	require.True(t, flagged[0].ReportedAmount.Valid)
	assert.True(t, flagged[0].ReportedAmount.Decimal.Equal(decimal.RequireFromString("0.01")))
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	db := testutil.NewDB(t)
	store := ledger.New(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "ivan", 0)
	other := testutil.CreateUser(t, db, "judy", 0)
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"PAY_a", "PAY_b", "PAY_c"} {
		order := &models.Order{
			OrderID:       id,
			UserID:        user.ID,
			Amount:        decimal.NewFromInt(1),
			Points:        100,
			Status:        models.OrderStatusPending,
			PaymentMethod: models.PaymentMethodAlipay,
		}
		order.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, db.Create(order).Error)
	}
	testutil.CreatePendingOrder(t, db, other, "PAY_other", "1.00", 100)

	orders, err := store.RecentOrders(ctx, user.ID, 2)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "PAY_c", orders[0].OrderID)
	assert.Equal(t, "PAY_b", orders[1].OrderID)
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	store := ledger.New(testutil.NewDB(t))
	ctx := context.Background()

	first, err := store.EnsureUser(ctx, "defaultUser", "user@qisi.shop")
	require.NoError(t, err)
	second, err := store.EnsureUser(ctx, "defaultUser", "user@qisi.shop")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.UserStatusActive, second.Status)
}

func TestListUsers(t *testing.T) {
	db := testutil.NewDB(t)
	store := ledger.New(db)
	ctx := context.Background()

	testutil.CreateUser(t, db, "alpha", 30)
	testutil.CreateUser(t, db, "beta", 10)
	testutil.CreateUser(t, db, "Alphonse", 20)

	users, total, err := store.ListUsers(ctx, ledger.UserQuery{
		Limit: 10, Search: "ALPH", SortBy: "points", SortOrder: "asc",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, users, 2)
	assert.Equal(t, "Alphonse", users[0].Username)
	assert.Equal(t, "alpha", users[1].Username)

	users, total, err = store.ListUsers(ctx, ledger.UserQuery{
		Offset: 2, Limit: 2, SortBy: "points; DROP TABLE users", SortOrder: "desc",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, users, 1)
}

func TestListUsersSearchMatchesWildcardsLiterally(t *testing.T) {
	db := testutil.NewDB(t)
	store := ledger.New(db)
	ctx := context.Background()

	testutil.CreateUser(t, db, "a_b", 0)
	testutil.CreateUser(t, db, "axb", 0)
	testutil.CreateUser(t, db, "wow!", 0)

	users, total, err := store.ListUsers(ctx, ledger.UserQuery{Limit: 10, Search: "a_b"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, "a_b", users[0].Username)

	_, total, err = store.ListUsers(ctx, ledger.UserQuery{Limit: 10, Search: "%"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)

	users, _, err = store.ListUsers(ctx, ledger.UserQuery{Limit: 10, Search: "w!"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "wow!", users[0].Username)
}

func TestStats(t *testing.T) {
	db := testutil.NewDB(t)
	store := ledger.New(db)
	ctx := context.Background()
	since := time.Now().Add(-time.Hour)

	user := testutil.CreateUser(t, db, "kate", 0)
	testutil.CreateUser(t, db, "leo", 40)
	testutil.CreatePendingOrder(t, db, user, "PAY_s1", "50.00", 5000)
	testutil.CreatePendingOrder(t, db, user, "PAY_s2", "12.50", 1250)
	testutil.CreatePendingOrder(t, db, user, "PAY_s3", "7.00", 700)

	_, err := store.MarkOrderPaid(ctx, "PAY_s1", "T1", time.Now())
	require.NoError(t, err)
	_, err = store.MarkOrderPaid(ctx, "PAY_s2", "T2", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.FlagAmountMismatch(ctx, "PAY_s2", decimal.NewFromInt(1)))
	_, err = store.IncrementPoints(ctx, user.ID, 5000)
	require.NoError(t, err)

	stats, err := store.Stats(ctx, since)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalUsers)
	assert.EqualValues(t, 2, stats.ActiveUsers)
	assert.EqualValues(t, 2, stats.TodayRegistrations)
	assert.EqualValues(t, 5040, stats.TotalPoints)
	assert.EqualValues(t, 3, stats.TotalOrders)
	assert.EqualValues(t, 2, stats.OrdersByStatus[models.OrderStatusSuccess])
	assert.EqualValues(t, 1, stats.OrdersByStatus[models.OrderStatusPending])
	assert.EqualValues(t, 1, stats.FlaggedOrders)
	assert.True(t, stats.TotalRevenue.Equal(decimal.NewFromInt(50)), stats.TotalRevenue.String())
	assert.True(t, stats.TodayRevenue.Equal(decimal.NewFromInt(50)), stats.TodayRevenue.String())
	assert.EqualValues(t, 3, stats.TodayOrders)
}
