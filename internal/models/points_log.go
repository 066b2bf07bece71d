package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PointsLogTypeRecharge = "recharge"
	PointsLogTypeDeduct   = "deduct"
)

// PointsLog is an append-only audit entry for every balance change.
// OrderID is unique so a paid order can produce at most one entry.
type PointsLog struct {
	ID          uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:varchar(36);index;not null" json:"userId"`
	Type        string    `gorm:"size:16;not null" json:"type"`
	Delta       int64     `gorm:"not null" json:"delta"`
	OrderID     *string   `gorm:"size:64;uniqueIndex" json:"orderId,omitempty"`
	Description string    `gorm:"size:255" json:"description"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
}

// BeforeCreate assigns the entry ID.
func (l *PointsLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
