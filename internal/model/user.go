package model

import (
	"time"
)

// swagger:model User
type User struct {
	BaseModel
	Phone        string    `gorm:"size:11;uniqueIndex;not null" json:"phone"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	LastLogin    time.Time `json:"lastLogin"`
}

func (User) TableName() string {
	return "users"
}
