package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	OrderStatusPending = "pending"
	OrderStatusSuccess = "success"
	OrderStatusFailed  = "failed"
)

const (
	PaymentTypeWeb    = "web"
	PaymentTypeMobile = "mobile"

	PaymentMethodAlipay = "alipay"
)

func init() {
	// API clients expect amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Order is a single recharge attempt. It is created pending and leaves
// that state at most once.
type Order struct {
	BaseModel
	OrderID        string              `gorm:"size:64;uniqueIndex;not null" json:"orderId"`
	UserID         uuid.UUID           `gorm:"type:varchar(36);index;uniqueIndex:idx_orders_user_request;not null" json:"userId"`
	Amount         decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"amount"`
	Points         int64               `gorm:"not null" json:"points"`
	Status         string              `gorm:"size:16;index;not null;default:pending" json:"status"`
	PaymentMethod  string              `gorm:"size:32;not null;default:alipay" json:"paymentMethod"`
	PaymentType    string              `gorm:"size:16" json:"paymentType"`
	GatewayTradeNo string              `gorm:"size:64" json:"gatewayTradeNo,omitempty"`
	PaidAt         *time.Time          `json:"paidAt,omitempty"`
	RequestKey     *string             `gorm:"size:128;uniqueIndex:idx_orders_user_request" json:"-"`
	AmountMismatch bool                `gorm:"not null;default:false" json:"amountMismatch"`
	ReportedAmount decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"reportedAmount"`
}

// IsTerminal reports whether the order can no longer transition.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusSuccess || o.Status == OrderStatusFailed
}
