package services

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/pointpay/internal/ledger"
	"github.com/example/pointpay/internal/models"
	"github.com/example/pointpay/internal/testutil"
)

const testAppID = "2021000000000001"

type fakeGateway struct {
	mu       sync.Mutex
	appID    string
	valid    bool
	err      error
	requests []PaymentRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{appID: testAppID, valid: true}
}

func (g *fakeGateway) CreatePayment(ctx context.Context, req PaymentRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	return "https://gateway.test/pay?out_trade_no=" + req.OrderID, nil
}

func (g *fakeGateway) VerifyNotification(url.Values) bool {
	return g.valid
}

func (g *fakeGateway) AppID() string {
	return g.appID
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (a *recordingAlerter) Send(_ context.Context, alert Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
	return a.err
}

func (a *recordingAlerter) sent() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Alert(nil), a.alerts...)
}

type fixture struct {
	db       *gorm.DB
	store    *ledger.Store
	gateway  *fakeGateway
	alerter  *recordingAlerter
	recharge *RechargeService
	notify   *NotifyService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	store := ledger.New(db)
	gateway := newFakeGateway()
	alerter := &recordingAlerter{}
	ids, err := NewOrderIDGenerator(1)
	require.NoError(t, err)

	principals := NewDefaultUserResolver(store, "defaultUser", "user@qisi.shop")
	return &fixture{
		db:       db,
		store:    store,
		gateway:  gateway,
		alerter:  alerter,
		recharge: NewRechargeService(store, gateway, principals, ids, decimal.NewFromInt(100), time.Second, zap.NewNop()),
		notify:   NewNotifyService(store, gateway, alerter, false, zap.NewNop()),
	}
}

func (f *fixture) order(t *testing.T, orderID string) *models.Order {
	t.Helper()
	order, err := f.store.FindOrder(context.Background(), orderID)
	require.NoError(t, err)
	return order
}

func (f *fixture) user(t *testing.T) *models.User {
	t.Helper()
	user, err := f.store.EnsureUser(context.Background(), "defaultUser", "user@qisi.shop")
	require.NoError(t, err)
	return user
}

func (f *fixture) countOrders(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&n).Error)
	return n
}

func (f *fixture) countLogs(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.PointsLog{}).Count(&n).Error)
	return n
}

func paidForm(orderID, amount string) url.Values {
	return url.Values{
		"app_id":       {testAppID},
		"out_trade_no": {orderID},
		"trade_no":     {"2024" + orderID},
		"trade_status": {TradeStatusSuccess},
		"total_amount": {amount},
		"sign_type":    {"RSA2"},
		"sign":         {"c2lnbmF0dXJl"},
	}
}
