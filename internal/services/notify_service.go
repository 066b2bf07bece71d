package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/pointpay/internal/ledger"
	"github.com/example/pointpay/internal/models"
)

// Gateway trade statuses.
const (
	TradeStatusWaitBuyerPay = "WAIT_BUYER_PAY"
	TradeStatusClosed       = "TRADE_CLOSED"
	TradeStatusSuccess      = "TRADE_SUCCESS"
	TradeStatusFinished     = "TRADE_FINISHED"
)

// Gateway acknowledgment bodies.
const (
	AckSuccess = "success"
	AckFail    = "fail"
)

// NotifyOutcome classifies how a notification was handled.
type NotifyOutcome string

const (
	OutcomeSettled        NotifyOutcome = "settled"
	OutcomeDuplicate      NotifyOutcome = "duplicate"
	OutcomeIgnored        NotifyOutcome = "ignored"
	OutcomeFailed         NotifyOutcome = "failed"
	OutcomeAmountMismatch NotifyOutcome = "amount_mismatch"
	OutcomeRejected       NotifyOutcome = "rejected"
	OutcomeError          NotifyOutcome = "error"
)

// Ack is the literal body the gateway expects. Anything but success makes
// the gateway retry.
func (o NotifyOutcome) Ack() string {
	switch o {
	case OutcomeSettled, OutcomeDuplicate, OutcomeIgnored, OutcomeFailed:
		return AckSuccess
	default:
		return AckFail
	}
}

// Notification is the subset of gateway callback fields reconciliation
// relies on, validated before any of them is trusted.
type Notification struct {
	AppID       string
	OrderID     string
	TradeNo     string
	TradeStatus string
	TotalAmount decimal.Decimal
}

// IsPaid reports whether the trade reached a finalized-success status.
func (n *Notification) IsPaid() bool {
	return n.TradeStatus == TradeStatusSuccess || n.TradeStatus == TradeStatusFinished
}

// ParseNotification extracts and validates the callback fields.
func ParseNotification(form url.Values) (*Notification, error) {
	n := &Notification{
		AppID:       form.Get("app_id"),
		OrderID:     form.Get("out_trade_no"),
		TradeNo:     form.Get("trade_no"),
		TradeStatus: form.Get("trade_status"),
	}
	switch {
	case n.AppID == "":
		return nil, validationError("missing app_id")
	case n.OrderID == "":
		return nil, validationError("missing out_trade_no")
	case n.TradeStatus == "":
		return nil, validationError("missing trade_status")
	}

	if raw := form.Get("total_amount"); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, validationError("invalid total_amount %q", raw)
		}
		n.TotalAmount = amount
	} else if n.IsPaid() {
		return nil, validationError("missing total_amount")
	}

	if n.IsPaid() && n.TradeNo == "" {
		return nil, validationError("missing trade_no")
	}
	return n, nil
}

// NotifyResult reports what reconciliation did with one notification.
type NotifyResult struct {
	Outcome NotifyOutcome
	OrderID string
	Balance int64
}

// NotifyService reconciles gateway payment notifications against pending
// orders. Settlement happens at most once per order no matter how often or
// how concurrently a notification is delivered.
type NotifyService struct {
	store             *ledger.Store
	gateway           PaymentGateway
	alerter           Alerter
	closedMarksFailed bool
	log               *zap.Logger
	now               func() time.Time
}

func NewNotifyService(store *ledger.Store, gateway PaymentGateway, alerter Alerter, closedMarksFailed bool, log *zap.Logger) *NotifyService {
	return &NotifyService{
		store:             store,
		gateway:           gateway,
		alerter:           alerter,
		closedMarksFailed: closedMarksFailed,
		log:               log,
		now:               time.Now,
	}
}

// Reconcile handles one form-encoded callback. The returned outcome's Ack is
// the response body; err carries the reason for any non-clean outcome.
func (s *NotifyService) Reconcile(ctx context.Context, form url.Values) (NotifyResult, error) {
	if s.gateway == nil {
		return NotifyResult{Outcome: OutcomeError}, transientError("payment gateway is not configured", nil)
	}

	if !s.gateway.VerifyNotification(form) {
		s.log.Warn("notification signature rejected", zap.String("order_id", form.Get("out_trade_no")))
		return NotifyResult{Outcome: OutcomeRejected, OrderID: form.Get("out_trade_no")},
			&Error{Kind: ErrAuthenticity, Message: "invalid notification signature"}
	}

	n, err := ParseNotification(form)
	if err != nil {
		s.log.Warn("notification rejected", zap.Error(err))
		return NotifyResult{Outcome: OutcomeRejected, OrderID: form.Get("out_trade_no")}, err
	}

	if n.AppID != s.gateway.AppID() {
		s.log.Warn("notification app id mismatch",
			zap.String("order_id", n.OrderID),
			zap.String("app_id", n.AppID),
		)
		return NotifyResult{Outcome: OutcomeRejected, OrderID: n.OrderID},
			&Error{Kind: ErrAuthenticity, Message: "notification app id mismatch"}
	}

	var result NotifyResult
	switch {
	case n.IsPaid():
		result, err = s.settle(ctx, n)
	case n.TradeStatus == TradeStatusClosed && s.closedMarksFailed:
		result, err = s.close(ctx, n)
	default:
		result = NotifyResult{Outcome: OutcomeIgnored, OrderID: n.OrderID}
	}

	fields := []zap.Field{
		zap.String("order_id", n.OrderID),
		zap.String("trade_no", n.TradeNo),
		zap.String("trade_status", n.TradeStatus),
		zap.String("outcome", string(result.Outcome)),
	}
	switch result.Outcome {
	case OutcomeAmountMismatch:
		s.log.Error("notification amount mismatch", append(fields, zap.Error(err))...)
	case OutcomeError:
		s.log.Error("notification reconciliation failed", append(fields, zap.Error(err))...)
	default:
		s.log.Info("notification reconciled", append(fields, zap.Int64("balance", result.Balance))...)
	}
	return result, err
}

func (s *NotifyService) settle(ctx context.Context, n *Notification) (NotifyResult, error) {
	var (
		order    *models.Order
		balance  int64
		mismatch bool
	)

	err := s.store.Transaction(ctx, func(tx *ledger.Store) error {
		var err error
		order, err = tx.MarkOrderPaid(ctx, n.OrderID, n.TradeNo, s.now())
		if err != nil {
			return err
		}

		if !n.TotalAmount.Equal(order.Amount) {
			mismatch = true
			return tx.FlagAmountMismatch(ctx, order.OrderID, n.TotalAmount)
		}

		balance, err = tx.IncrementPoints(ctx, order.UserID, order.Points)
		if err != nil {
			return err
		}

		orderID := order.OrderID
		return tx.AppendLog(ctx, &models.PointsLog{
			UserID:      order.UserID,
			Type:        models.PointsLogTypeRecharge,
			Delta:       order.Points,
			OrderID:     &orderID,
			Description: fmt.Sprintf("Alipay recharge: ¥%s", order.Amount.StringFixed(2)),
		})
	})

	switch {
	case errors.Is(err, ledger.ErrOrderNotPending):
		return NotifyResult{Outcome: OutcomeDuplicate, OrderID: n.OrderID}, nil
	case err != nil:
		return NotifyResult{Outcome: OutcomeError, OrderID: n.OrderID}, transientError("failed to settle order", err)
	}

	alert := Alert{
		OrderID:        order.OrderID,
		TradeNo:        n.TradeNo,
		Amount:         order.Amount,
		ReportedAmount: n.TotalAmount,
		Points:         order.Points,
		Balance:        balance,
	}

	if mismatch {
		alert.Severity = AlertError
		alert.Title = "Payment amount mismatch"
		s.sendAlert(ctx, alert)
		return NotifyResult{Outcome: OutcomeAmountMismatch, OrderID: order.OrderID}, &Error{
			Kind:    ErrIntegrity,
			Message: fmt.Sprintf("order %s expected %s, gateway reported %s", order.OrderID, order.Amount.StringFixed(2), n.TotalAmount.String()),
		}
	}

	alert.Severity = AlertInfo
	alert.Title = "Payment received"
	s.sendAlert(ctx, alert)
	return NotifyResult{Outcome: OutcomeSettled, OrderID: order.OrderID, Balance: balance}, nil
}

func (s *NotifyService) close(ctx context.Context, n *Notification) (NotifyResult, error) {
	err := s.store.MarkOrderFailed(ctx, n.OrderID, n.TradeNo)
	switch {
	case errors.Is(err, ledger.ErrOrderNotPending):
		return NotifyResult{Outcome: OutcomeDuplicate, OrderID: n.OrderID}, nil
	case err != nil:
		return NotifyResult{Outcome: OutcomeError, OrderID: n.OrderID}, transientError("failed to close order", err)
	}
	return NotifyResult{Outcome: OutcomeFailed, OrderID: n.OrderID}, nil
}

func (s *NotifyService) sendAlert(ctx context.Context, alert Alert) {
	if s.alerter == nil {
		return
	}
	if err := s.alerter.Send(ctx, alert); err != nil {
		s.log.Warn("alert delivery failed",
			zap.String("order_id", alert.OrderID),
			zap.String("severity", string(alert.Severity)),
			zap.Error(err),
		)
	}
}
