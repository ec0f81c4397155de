package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)

type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index" json:"conversation_id"`
	SenderID       uuid.UUID `gorm:"type:uuid;not null" json:"sender_id"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Type           string    `gorm:"size:20;not null;default:'text'" json:"type"`
	IsEdited       bool      `gorm:"default:false" json:"is_edited"`
	IsDeleted      bool      `gorm:"default:false" json:"is_deleted"`

	FileURL  *string `gorm:"type:text" json:"file_url"`
	FileName *string `gorm:"type:text" json:"file_name"`
	FileType *string `gorm:"type:text" json:"file_type"`
	FileSize *int64  `json:"file_size"`

	Sender *User `gorm:"foreignkey:SenderID" json:"sender,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message ids are UUIDv7 so that ordering by id matches insertion order,
// which breaks ties between messages created in the same timestamp tick.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		m.ID = id
	}
	return nil
}
