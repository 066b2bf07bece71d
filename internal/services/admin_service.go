package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/pointpay/internal/ledger"
	"github.com/example/pointpay/internal/models"
)

// UserDetail is one user with their recent activity.
type UserDetail struct {
	models.User
	Orders []models.Order     `json:"orders"`
	Logs   []models.PointsLog `json:"logs"`
}

// RealTimeData feeds the dashboard overview.
type RealTimeData struct {
	Stats        *ledger.Stats  `json:"stats"`
	FlaggedCount int64          `json:"flaggedCount"`
	Flagged      []models.Order `json:"flagged"`
	GeneratedAt  time.Time      `json:"generatedAt"`
}

// AdminService serves the dashboard's read-only views.
type AdminService struct {
	store *ledger.Store
	now   func() time.Time
}

func NewAdminService(store *ledger.Store) *AdminService {
	return &AdminService{store: store, now: time.Now}
}

func (s *AdminService) startOfDay() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// Stats returns dashboard aggregates.
func (s *AdminService) Stats(ctx context.Context) (*ledger.Stats, error) {
	stats, err := s.store.Stats(ctx, s.startOfDay())
	if err != nil {
		return nil, transientError("failed to load stats", err)
	}
	return stats, nil
}

// RealTime returns stats plus the latest flagged orders.
func (s *AdminService) RealTime(ctx context.Context) (*RealTimeData, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	flagged, err := s.FlaggedOrders(ctx, 10)
	if err != nil {
		return nil, err
	}
	return &RealTimeData{
		Stats:        stats,
		FlaggedCount: stats.FlaggedOrders,
		Flagged:      flagged,
		GeneratedAt:  s.now(),
	}, nil
}

// Users returns one page of users and the total count.
func (s *AdminService) Users(ctx context.Context, q ledger.UserQuery) ([]models.User, int64, error) {
	users, total, err := s.store.ListUsers(ctx, q)
	if err != nil {
		return nil, 0, transientError("failed to load users", err)
	}
	return users, total, nil
}

// User returns one user with recent orders and audit entries.
func (s *AdminService) User(ctx context.Context, id uuid.UUID) (*UserDetail, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			return nil, notFoundError("user not found", err)
		}
		return nil, transientError("failed to load user", err)
	}

	orders, err := s.store.RecentOrders(ctx, id, 20)
	if err != nil {
		return nil, transientError("failed to load orders", err)
	}
	logs, err := s.store.UserLogs(ctx, id, 50)
	if err != nil {
		return nil, transientError("failed to load points log", err)
	}
	return &UserDetail{User: *user, Orders: orders, Logs: logs}, nil
}

// FlaggedOrders lists settled orders awaiting manual remediation.
func (s *AdminService) FlaggedOrders(ctx context.Context, limit int) ([]models.Order, error) {
	orders, err := s.store.FlaggedOrders(ctx, limit)
	if err != nil {
		return nil, transientError("failed to load flagged orders", err)
	}
	return orders, nil
}
