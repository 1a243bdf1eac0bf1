package model

import (
	"time"

	"gorm.io/datatypes"
)

// User — учётная запись сотрудника back-office. Вход по e-mail.
type User struct {
	ID       int64  `gorm:"primaryKey" json:"id"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Username string `gorm:"not null" json:"username"`
	Password string `gorm:"not null" json:"-"` // bcrypt-хеш

	IsStaff     bool `gorm:"not null" json:"is_staff"`
	IsSuperuser bool `gorm:"not null" json:"is_superuser"`
	IsActive    bool `gorm:"not null" json:"is_active"`

	// Capabilities — выданные права вида "<тип>.<действие>"
	Capabilities datatypes.JSONSlice[string] `json:"capabilities"`

	DateJoined time.Time  `gorm:"autoCreateTime" json:"date_joined"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
}
