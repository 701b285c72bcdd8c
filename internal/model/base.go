package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// swagger:model
type BaseModel struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// NewPaperID 毫秒时间戳加随机后缀，并发组卷时不会重复
func NewPaperID(now time.Time) string {
	return fmt.Sprintf("exam_%d_%s", now.UnixMilli(), uuid.New().String()[:8])
}
