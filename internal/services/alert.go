package services

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// AlertSeverity separates routine payment notices from integrity faults
// that need manual remediation.
type AlertSeverity string

const (
	AlertInfo  AlertSeverity = "info"
	AlertError AlertSeverity = "error"
)

// Alert describes one reconciliation event worth telling an operator about.
type Alert struct {
	Severity       AlertSeverity
	Title          string
	OrderID        string
	TradeNo        string
	Amount         decimal.Decimal
	ReportedAmount decimal.Decimal
	Points         int64
	Balance        int64
}

// Alerter delivers alerts out of band. Delivery failures never affect the
// gateway acknowledgment.
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// MultiAlerter fans an alert out to every channel and joins their errors.
type MultiAlerter []Alerter

func (m MultiAlerter) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, a := range m {
		if err := a.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
