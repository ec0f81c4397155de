package services

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wanjalae/hr_portal/models"
)

// MessageStore owns the append-only message log: appends, edits, soft
// deletes, and newest-first pagination.
type MessageStore struct {
	db *gorm.DB
}

func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Append inserts the message, advances the sender's own read cursor (sending
// implies having read up to your own message), and bumps the conversation's
// updated_at so it sorts as most recently active. All three happen in one
// transaction so a concurrent request from the same sender cannot observe
// the message without the cursor move.
func (s *MessageStore) Append(message *models.Message) (*models.Message, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		if err := markReadTx(tx, message.ConversationID, message.SenderID, message.CreatedAt); err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", message.ConversationID).
			Update("updated_at", message.CreatedAt).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(message.ID)
}

// GetByID returns the row regardless of its is_deleted flag.
func (s *MessageStore) GetByID(id uuid.UUID) (*models.Message, error) {
	var message models.Message
	err := s.db.Preload("Sender").First(&message, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// Edit replaces the content and flags the message as edited. Last write
// wins; sender and conversation are never touched.
func (s *MessageStore) Edit(id uuid.UUID, content string) (*models.Message, error) {
	err := s.db.Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"content": content, "is_edited": true}).Error
	if err != nil {
		return nil, err
	}
	return s.GetByID(id)
}

// SoftDelete hides the message from listings and unread counts; the row and
// its content stay in place.
func (s *MessageStore) SoftDelete(id uuid.UUID) error {
	return s.db.Model(&models.Message{}).
		Where("id = ?", id).
		Update("is_deleted", true).Error
}

// Page returns live messages newest first. Within one conversation messages
// order by creation time, ties broken by id: ids are UUIDv7, so id order is
// insertion order. Viewing a page counts as reading, so the requester's
// cursor advances.
func (s *MessageStore) Page(conversationID, requesterID uuid.UUID, page, pageSize int) ([]models.Message, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	var total int64
	err := s.db.Model(&models.Message{}).
		Where("conversation_id = ? AND is_deleted = ?", conversationID, false).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	var messages []models.Message
	err = s.db.
		Preload("Sender").
		Where("conversation_id = ? AND is_deleted = ?", conversationID, false).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&messages).Error
	if err != nil {
		return nil, 0, err
	}

	if err := markReadTx(s.db, conversationID, requesterID, time.Now()); err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}
