package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/pointpay/internal/models"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotPending    = errors.New("order is not pending")
	ErrUserNotFound       = errors.New("user not found")
	ErrInsufficientPoints = errors.New("insufficient points")
)

// Store is the durable record of users, orders and points logs. All
// cross-request coordination goes through its conditional updates.
type Store struct {
	db *gorm.DB
}

// New wraps an open database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transaction runs fn against a store bound to one database transaction.
// Returning an error from fn rolls everything back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// EnsureUser finds the user by username, creating it on first use.
func (s *Store) EnsureUser(ctx context.Context, username, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where(models.User{Username: username}).
		Attrs(models.User{Email: email, Status: models.UserStatusActive}).
		FirstOrCreate(&user).Error
	if err == nil {
		return &user, nil
	}

	// A concurrent first request may have won the insert.
	var existing models.User
	if findErr := s.db.WithContext(ctx).Where("username = ?", username).First(&existing).Error; findErr == nil {
		return &existing, nil
	}
	return nil, err
}

// GetUser loads a user by ID.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateOrder persists a new order.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	return s.db.WithContext(ctx).Create(order).Error
}

// FindOrder loads an order by its caller-visible ID.
func (s *Store) FindOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// FindOrderByRequestKey returns the order a user created under an idempotency key.
func (s *Store) FindOrderByRequestKey(ctx context.Context, userID uuid.UUID, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND request_key = ?", userID, key).
		Order("created_at desc").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// MarkOrderPaid moves a pending order to success in a single conditional
// update. Exactly one caller can win for a given order; every other caller,
// and any caller for an unknown order, gets ErrOrderNotPending.
func (s *Store) MarkOrderPaid(ctx context.Context, orderID, tradeNo string, paidAt time.Time) (*models.Order, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_id = ? AND status = ?", orderID, models.OrderStatusPending).
		Updates(map[string]any{
			"status":           models.OrderStatusSuccess,
			"gateway_trade_no": tradeNo,
			"paid_at":          paidAt,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("mark order %s paid: %w", orderID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrOrderNotPending
	}
	return s.FindOrder(ctx, orderID)
}

// MarkOrderFailed moves a pending order to failed with the same
// compare-and-swap guard as MarkOrderPaid.
func (s *Store) MarkOrderFailed(ctx context.Context, orderID, tradeNo string) error {
	res := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_id = ? AND status = ?", orderID, models.OrderStatusPending).
		Updates(map[string]any{
			"status":           models.OrderStatusFailed,
			"gateway_trade_no": tradeNo,
		})
	if res.Error != nil {
		return fmt.Errorf("mark order %s failed: %w", orderID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrOrderNotPending
	}
	return nil
}

// FlagAmountMismatch records the amount the gateway reported for a settled
// order whose recorded amount differs.
func (s *Store) FlagAmountMismatch(ctx context.Context, orderID string, reported decimal.Decimal) error {
	res := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_id = ? AND status = ?", orderID, models.OrderStatusSuccess).
		Updates(map[string]any{
			"amount_mismatch": true,
			"reported_amount": decimal.NewNullDecimal(reported),
		})
	if res.Error != nil {
		return fmt.Errorf("flag order %s: %w", orderID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// IncrementPoints adds delta (which may be negative) to the user's balance
// in the database and returns the resulting balance. The balance never goes
// below zero.
func (s *Store) IncrementPoints(ctx context.Context, userID uuid.UUID, delta int64) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND points + ? >= 0", userID, delta).
		Update("points", gorm.Expr("points + ?", delta))
	if res.Error != nil {
		return 0, fmt.Errorf("increment points for %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetUser(ctx, userID); err != nil {
			return 0, err
		}
		return 0, ErrInsufficientPoints
	}

	var balance int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Select("points").
		Row().Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// AppendLog writes an audit entry. Entries are never updated or deleted.
func (s *Store) AppendLog(ctx context.Context, entry *models.PointsLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// RecentOrders returns the user's newest orders first.
func (s *Store) RecentOrders(ctx context.Context, userID uuid.UUID, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// UserLogs returns the user's newest audit entries first.
func (s *Store) UserLogs(ctx context.Context, userID uuid.UUID, limit int) ([]models.PointsLog, error) {
	var logs []models.PointsLog
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// OrderLogs returns the audit entries correlated with an order.
func (s *Store) OrderLogs(ctx context.Context, orderID string) ([]models.PointsLog, error) {
	var logs []models.PointsLog
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Find(&logs).Error
	return logs, err
}

// FlaggedOrders lists settled orders whose reported amount did not match.
func (s *Store) FlaggedOrders(ctx context.Context, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Where("amount_mismatch = ?", true).
		Order("paid_at desc").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// UserQuery filters and pages the admin user list.
type UserQuery struct {
	Offset    int
	Limit     int
	Search    string
	SortBy    string
	SortOrder string
}

var userSortColumns = map[string]string{
	"createdAt":     "created_at",
	"created_at":    "created_at",
	"register_time": "created_at",
	"points":        "points",
	"username":      "username",
	"email":         "email",
	"status":        "status",
}

// likeEscaper makes LIKE wildcards in user input match literally.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// ListUsers returns one page of users and the total match count.
func (s *Store) ListUsers(ctx context.Context, q UserQuery) ([]models.User, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})

	if search := strings.ToLower(strings.TrimSpace(q.Search)); search != "" {
		like := "%" + likeEscaper.Replace(search) + "%"
		query = query.Where("LOWER(username) LIKE ? ESCAPE '!' OR LOWER(email) LIKE ? ESCAPE '!'", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column, ok := userSortColumns[q.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "desc"
	if strings.EqualFold(q.SortOrder, "asc") {
		direction = "asc"
	}

	var users []models.User
	err := query.
		Order(column + " " + direction).
		Limit(q.Limit).
		Offset(q.Offset).
		Find(&users).Error
	return users, total, err
}

// Stats aggregates dashboard figures.
type Stats struct {
	TotalUsers         int64            `json:"totalUsers"`
	ActiveUsers        int64            `json:"activeUsers"`
	TotalPoints        int64            `json:"totalPoints"`
	TodayRegistrations int64            `json:"todayRegistrations"`
	TotalOrders        int64            `json:"totalOrders"`
	OrdersByStatus     map[string]int64 `json:"ordersByStatus"`
	FlaggedOrders      int64            `json:"flaggedOrders"`
	TotalRevenue       decimal.Decimal  `json:"totalRevenue"`
	TodayOrders        int64            `json:"todayOrders"`
	TodayRevenue       decimal.Decimal  `json:"todayRevenue"`
}

// Stats computes dashboard aggregates; "today" starts at since.
func (s *Store) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	db := s.db.WithContext(ctx)
	stats := &Stats{OrdersByStatus: map[string]int64{}}

	if err := db.Model(&models.User{}).Count(&stats.TotalUsers).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.User{}).Where("status = ?", models.UserStatusActive).Count(&stats.ActiveUsers).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.User{}).Where("created_at >= ?", since).Count(&stats.TodayRegistrations).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.User{}).Select("COALESCE(SUM(points), 0)").Row().Scan(&stats.TotalPoints); err != nil {
		return nil, err
	}

	type statusCount struct {
		Status string
		Count  int64
	}
	var statusCounts []statusCount
	if err := db.Model(&models.Order{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}
	for _, sc := range statusCounts {
		stats.OrdersByStatus[sc.Status] = sc.Count
		stats.TotalOrders += sc.Count
	}

	if err := db.Model(&models.Order{}).Where("amount_mismatch = ?", true).Count(&stats.FlaggedOrders).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Order{}).
		Where("status = ? AND amount_mismatch = ?", models.OrderStatusSuccess, false).
		Select("COALESCE(SUM(amount), 0)").
		Row().Scan(&stats.TotalRevenue); err != nil {
		return nil, err
	}
	if err := db.Model(&models.Order{}).Where("created_at >= ?", since).Count(&stats.TodayOrders).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Order{}).
		Where("status = ? AND amount_mismatch = ? AND paid_at >= ?", models.OrderStatusSuccess, false, since).
		Select("COALESCE(SUM(amount), 0)").
		Row().Scan(&stats.TodayRevenue); err != nil {
		return nil, err
	}

	return stats, nil
}
