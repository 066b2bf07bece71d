package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/example/pointpay/internal/services"
)

// PointsHandler serves recharge, balance and history endpoints.
type PointsHandler struct {
	recharge *services.RechargeService
	query    *services.QueryService
}

func NewPointsHandler(recharge *services.RechargeService, query *services.QueryService) *PointsHandler {
	return &PointsHandler{recharge: recharge, query: query}
}

type rechargeRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PaymentType string          `json:"paymentType"`
}

// Recharge creates a pending order and returns its payment link.
func (h *PointsHandler) Recharge(c *fiber.Ctx) error {
	var req rechargeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.recharge.CreateOrder(c.UserContext(), services.RechargeInput{
		Amount:      req.Amount,
		PaymentType: req.PaymentType,
		RequestKey:  c.Get("Idempotency-Key"),
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"orderId":    result.OrderID,
		"amount":     result.Amount,
		"points":     result.Points,
		"paymentUrl": result.PaymentURL,
		"message":    "order created, continue to the payment page",
	})
}

// Balance returns the caller's points.
func (h *PointsHandler) Balance(c *fiber.Ctx) error {
	points, err := h.query.Balance(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "points": points})
}

// History returns the caller's recent orders.
func (h *PointsHandler) History(c *fiber.Ctx) error {
	orders, err := h.query.History(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "orders": orders})
}
