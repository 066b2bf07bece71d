package handlers

import (
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/example/pointpay/internal/services"
)

// PaymentHandler receives gateway callbacks.
type PaymentHandler struct {
	notify *services.NotifyService
}

func NewPaymentHandler(notify *services.NotifyService) *PaymentHandler {
	return &PaymentHandler{notify: notify}
}

// Notify reconciles an asynchronous payment notification. The gateway only
// understands the literal bodies "success" and "fail".
func (h *PaymentHandler) Notify(c *fiber.Ctx) error {
	c.Type("txt")

	form, err := url.ParseQuery(string(c.Body()))
	if err != nil {
		return c.SendString(services.AckFail)
	}

	// Errors are logged by the reconciler; the outcome decides the ack.
	result, _ := h.notify.Reconcile(c.UserContext(), form)
	return c.SendString(result.Outcome.Ack())
}

const paymentSuccessPage = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>支付完成</title>
</head>
<body style="font-family: sans-serif; text-align: center; padding: 3rem;">
<h1>支付完成</h1>
<p>积分将在支付确认后到账，请稍后刷新余额。</p>
<p><a href="/">返回首页</a></p>
</body>
</html>`

// Success is the page the payer returns to. It shows no order state because
// the return redirect is not authenticated; only the notification settles.
func (h *PaymentHandler) Success(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.SendString(paymentSuccessPage)
}
