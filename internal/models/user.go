package models

const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

// User owns a points balance. Points only move through the ledger's
// atomic increment, never by saving a loaded struct.
type User struct {
	BaseModel
	Username string `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email    string `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Points   int64  `gorm:"not null;default:0;check:points >= 0" json:"points"`
	Status   string `gorm:"size:16;not null;default:active" json:"status"`
}
