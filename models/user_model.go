package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	FirstName    string     `gorm:"size:100;not null" json:"first_name"`
	LastName     string     `gorm:"size:100;not null" json:"last_name"`
	Email        string     `gorm:"size:255;not null;unique" json:"email"`
	Password     string     `gorm:"not null" json:"-"`
	Role         string     `gorm:"size:20;not null;default:'employee'" json:"role"`
	DepartmentID *uuid.UUID `gorm:"type:uuid" json:"department_id"`
	AvatarURL    *string    `gorm:"size:255" json:"avatar_url"`
	IsActive     bool       `gorm:"default:true" json:"is_active"`

	Department *Department `gorm:"foreignkey:DepartmentID" json:"department,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
