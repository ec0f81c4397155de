package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ConversationTypePrivate    = "private"
	ConversationTypeGroup      = "group"
	ConversationTypeDepartment = "department"
)

type Conversation struct {
	ID           uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Name         *string    `gorm:"size:255" json:"name"`
	Type         string     `gorm:"size:20;not null;default:'private'" json:"type"`
	Description  *string    `gorm:"type:text" json:"description"`
	Avatar       *string    `gorm:"type:text" json:"avatar"`
	DepartmentID *uuid.UUID `gorm:"type:uuid" json:"department_id"`
	CreatedByID  uuid.UUID  `gorm:"type:uuid;not null" json:"created_by_id"`

	// PairKey is set only for private conversations: the two member ids
	// sorted and joined, so the unique index rejects a second private
	// conversation between the same pair.
	PairKey *string `gorm:"size:80;uniqueIndex" json:"-"`

	Department   *Department               `gorm:"foreignkey:DepartmentID" json:"department,omitempty"`
	CreatedBy    *User                     `gorm:"foreignkey:CreatedByID" json:"created_by,omitempty"`
	Participants []ConversationParticipant `gorm:"foreignkey:ConversationID" json:"participants,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// PrivatePairKey canonicalizes an unordered user pair.
func PrivatePairKey(a, b uuid.UUID) string {
	if b.String() < a.String() {
		a, b = b, a
	}
	return fmt.Sprintf("%s:%s", a, b)
}
