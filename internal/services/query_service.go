package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/pointpay/internal/ledger"
)

// HistoryLimit bounds the order history page.
const HistoryLimit = 50

// OrderSummary is the caller-facing view of an order.
type OrderSummary struct {
	OrderID        string          `json:"orderId"`
	Amount         decimal.Decimal `json:"amount"`
	Points         int64           `json:"points"`
	Status         string          `json:"status"`
	GatewayTradeNo string          `json:"gatewayTradeNo,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// QueryService answers read-only balance and history lookups.
type QueryService struct {
	store      *ledger.Store
	principals PrincipalResolver
}

func NewQueryService(store *ledger.Store, principals PrincipalResolver) *QueryService {
	return &QueryService{store: store, principals: principals}
}

// Balance returns the caller's current points.
func (s *QueryService) Balance(ctx context.Context) (int64, error) {
	user, err := s.principals.Resolve(ctx)
	if err != nil {
		return 0, err
	}
	return user.Points, nil
}

// History returns the caller's most recent orders, newest first.
func (s *QueryService) History(ctx context.Context) ([]OrderSummary, error) {
	user, err := s.principals.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	orders, err := s.store.RecentOrders(ctx, user.ID, HistoryLimit)
	if err != nil {
		return nil, transientError("failed to load orders", err)
	}

	out := make([]OrderSummary, 0, len(orders))
	for _, o := range orders {
		out = append(out, OrderSummary{
			OrderID:        o.OrderID,
			Amount:         o.Amount,
			Points:         o.Points,
			Status:         o.Status,
			GatewayTradeNo: o.GatewayTradeNo,
			CreatedAt:      o.CreatedAt,
		})
	}
	return out, nil
}
