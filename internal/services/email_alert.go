package services

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailAlerter mails integrity faults through SendGrid. Routine settlement
// notices are not mailed.
type EmailAlerter struct {
	client *sendgrid.Client
	from   string
	to     string
}

func NewEmailAlerter(apiKey, from, to string) *EmailAlerter {
	return &EmailAlerter{
		client: sendgrid.NewSendClient(apiKey),
		from:   from,
		to:     to,
	}
}

func (e *EmailAlerter) Send(ctx context.Context, alert Alert) error {
	if alert.Severity != AlertError {
		return nil
	}

	resp, err := e.client.SendWithContext(ctx, e.message(alert))
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	return nil
}

func (e *EmailAlerter) message(alert Alert) *mail.SGMailV3 {
	subject := fmt.Sprintf("[pointpay] %s: %s", alert.Title, alert.OrderID)
	body := fmt.Sprintf(
		"Order %s (trade %s) was settled with a mismatched amount.\nRecorded: %s\nReported: %s\nNo points were credited. Review and reverse manually.\n",
		alert.OrderID,
		alert.TradeNo,
		alert.Amount.StringFixed(2),
		alert.ReportedAmount.StringFixed(2),
	)
	return mail.NewSingleEmail(
		mail.NewEmail("pointpay", e.from),
		subject,
		mail.NewEmail("", e.to),
		body,
		"",
	)
}
