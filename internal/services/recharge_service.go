package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/pointpay/internal/ledger"
	"github.com/example/pointpay/internal/models"
)

var (
	minRechargeAmount = decimal.RequireFromString("0.01")
	maxRechargeAmount = decimal.NewFromInt(10000)
)

const rechargeSubject = "积分充值"

// RechargeInput is a validated-at-the-edge recharge request.
type RechargeInput struct {
	Amount      decimal.Decimal
	PaymentType string
	RequestKey  string
}

// RechargeResult is returned to the caller after the order is persisted and
// a payment link is issued.
type RechargeResult struct {
	OrderID    string          `json:"orderId"`
	Amount     decimal.Decimal `json:"amount"`
	Points     int64           `json:"points"`
	PaymentURL string          `json:"paymentUrl"`
}

// RechargeService turns recharge requests into pending orders with payment links.
type RechargeService struct {
	store      *ledger.Store
	gateway    PaymentGateway
	principals PrincipalResolver
	ids        *OrderIDGenerator
	rate       decimal.Decimal
	timeout    time.Duration
	log        *zap.Logger
}

// NewRechargeService wires the order creation path. gateway may be nil when
// credentials are not configured; every request then fails as transient.
func NewRechargeService(
	store *ledger.Store,
	gateway PaymentGateway,
	principals PrincipalResolver,
	ids *OrderIDGenerator,
	rate decimal.Decimal,
	timeout time.Duration,
	log *zap.Logger,
) *RechargeService {
	return &RechargeService{
		store:      store,
		gateway:    gateway,
		principals: principals,
		ids:        ids,
		rate:       rate,
		timeout:    timeout,
		log:        log,
	}
}

// PointsFor converts a currency amount into whole points.
func (s *RechargeService) PointsFor(amount decimal.Decimal) int64 {
	return amount.Mul(s.rate).Floor().IntPart()
}

// CreateOrder validates the request, persists a pending order and asks the
// gateway for a payment link. A gateway failure leaves the order pending.
func (s *RechargeService) CreateOrder(ctx context.Context, in RechargeInput) (*RechargeResult, error) {
	if s.gateway == nil {
		return nil, transientError("payment gateway is not configured", nil)
	}

	paymentType, err := validateRecharge(&in)
	if err != nil {
		return nil, err
	}

	user, err := s.principals.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	if in.RequestKey != "" {
		existing, err := s.store.FindOrderByRequestKey(ctx, user.ID, in.RequestKey)
		switch {
		case err == nil:
			return s.resume(ctx, existing, in.Amount)
		case !errors.Is(err, ledger.ErrOrderNotFound):
			return nil, transientError("failed to look up order", err)
		}
	}

	orderID, err := s.ids.Next()
	if err != nil {
		return nil, transientError("failed to create order", err)
	}

	order := &models.Order{
		OrderID:       orderID,
		UserID:        user.ID,
		Amount:        in.Amount,
		Points:        s.PointsFor(in.Amount),
		Status:        models.OrderStatusPending,
		PaymentMethod: models.PaymentMethodAlipay,
		PaymentType:   paymentType,
	}
	if in.RequestKey != "" {
		key := in.RequestKey
		order.RequestKey = &key
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		if in.RequestKey != "" {
			// A concurrent retry with the same key may have inserted first.
			if existing, findErr := s.store.FindOrderByRequestKey(ctx, user.ID, in.RequestKey); findErr == nil {
				return s.resume(ctx, existing, in.Amount)
			}
		}
		return nil, transientError("failed to create order", err)
	}

	s.log.Info("recharge order created",
		zap.String("order_id", order.OrderID),
		zap.String("user_id", user.ID.String()),
		zap.String("amount", order.Amount.StringFixed(2)),
		zap.Int64("points", order.Points),
		zap.String("payment_type", paymentType),
	)

	return s.issueLink(ctx, order)
}

// resume re-signs a link for an order created earlier under the same
// idempotency key.
func (s *RechargeService) resume(ctx context.Context, order *models.Order, amount decimal.Decimal) (*RechargeResult, error) {
	if !order.Amount.Equal(amount) {
		return nil, conflictError("idempotency key was used with a different amount")
	}
	if order.Status != models.OrderStatusPending {
		return nil, conflictError("order for this idempotency key is already " + order.Status)
	}
	s.log.Info("recharge order resumed", zap.String("order_id", order.OrderID))
	return s.issueLink(ctx, order)
}

func (s *RechargeService) issueLink(ctx context.Context, order *models.Order) (*RechargeResult, error) {
	gatewayCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	link, err := s.gateway.CreatePayment(gatewayCtx, PaymentRequest{
		OrderID:     order.OrderID,
		Amount:      order.Amount,
		Subject:     rechargeSubject,
		Body:        fmt.Sprintf("充值%s元获得%d积分", order.Amount.StringFixed(2), order.Points),
		PaymentType: order.PaymentType,
	})
	if err != nil {
		s.log.Warn("payment link request failed, order left pending",
			zap.String("order_id", order.OrderID),
			zap.Error(err),
		)
		return nil, transientError("failed to create payment, please retry later", err)
	}

	return &RechargeResult{
		OrderID:    order.OrderID,
		Amount:     order.Amount,
		Points:     order.Points,
		PaymentURL: link,
	}, nil
}

func validateRecharge(in *RechargeInput) (string, error) {
	if in.Amount.LessThan(minRechargeAmount) || in.Amount.GreaterThan(maxRechargeAmount) {
		return "", validationError("amount must be between 0.01 and 10000")
	}
	if !in.Amount.Equal(in.Amount.Truncate(2)) {
		return "", validationError("amount must have at most two decimal places")
	}

	paymentType := in.PaymentType
	if paymentType == "" {
		paymentType = models.PaymentTypeWeb
	}
	if paymentType != models.PaymentTypeWeb && paymentType != models.PaymentTypeMobile {
		return "", validationError("invalid payment type %q", in.PaymentType)
	}

	if len(in.RequestKey) > 128 {
		return "", validationError("idempotency key is too long")
	}
	return paymentType, nil
}
