package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/pointpay/internal/ledger"
	"github.com/example/pointpay/internal/middleware"
	"github.com/example/pointpay/internal/services"
	"github.com/example/pointpay/internal/utils"
)

// AdminHandler manages admin-only endpoints.
type AdminHandler struct {
	admin  *services.AdminService
	points *services.PointsService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(admin *services.AdminService, points *services.PointsService) *AdminHandler {
	return &AdminHandler{admin: admin, points: points}
}

// DashboardStats returns aggregate statistics for the admin dashboard.
func (h *AdminHandler) DashboardStats(c *fiber.Ctx) error {
	stats, err := h.admin.Stats(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": stats})
}

// RealTimeData returns the overview the dashboard polls.
func (h *AdminHandler) RealTimeData(c *fiber.Ctx) error {
	data, err := h.admin.RealTime(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": data})
}

// ListUsers returns a searchable, sortable page of users.
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	pagination := utils.ParsePagination(c)

	users, total, err := h.admin.Users(c.UserContext(), ledger.UserQuery{
		Offset:    pagination.Offset,
		Limit:     pagination.Limit,
		Search:    c.Query("search"),
		SortBy:    c.Query("sortBy", "createdAt"),
		SortOrder: c.Query("sortOrder", "desc"),
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"users": users,
			"pagination": fiber.Map{
				"page":  pagination.Page,
				"limit": pagination.Limit,
				"total": total,
				"pages": pagination.Pages(total),
			},
		},
	})
}

// GetUser returns one user with recent orders and points log.
func (h *AdminHandler) GetUser(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid user id")
	}

	detail, err := h.admin.User(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": detail})
}

type adjustPointsRequest struct {
	Action string `json:"action"`
	Points int64  `json:"points"`
	Reason string `json:"reason"`
}

// AdjustPoints adds or deducts points manually.
func (h *AdminHandler) AdjustPoints(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid user id")
	}

	var req adjustPointsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	admin, _ := middleware.GetCurrentAdmin(c)
	balance, err := h.points.Adjust(c.UserContext(), services.AdjustInput{
		UserID: id,
		Action: req.Action,
		Points: req.Points,
		Reason: req.Reason,
	}, admin)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "points updated",
		"data": fiber.Map{
			"userId": id,
			"points": balance,
		},
	})
}

// FlaggedOrders lists settled orders with a mismatched reported amount.
func (h *AdminHandler) FlaggedOrders(c *fiber.Ctx) error {
	pagination := utils.ParsePagination(c)

	orders, err := h.admin.FlaggedOrders(c.UserContext(), pagination.Limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": orders})
}
