package services

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wanjalae/hr_portal/models"
)

// ParticipantStore owns membership rows and per-participant state: admin and
// mute flags plus the read cursor.
type ParticipantStore struct {
	db *gorm.DB
}

func NewParticipantStore(db *gorm.DB) *ParticipantStore {
	return &ParticipantStore{db: db}
}

func (s *ParticipantStore) Get(conversationID, userID uuid.UUID) (*models.ConversationParticipant, error) {
	var participant models.ConversationParticipant
	err := s.db.First(&participant, "conversation_id = ? AND user_id = ?", conversationID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (s *ParticipantStore) IsParticipant(conversationID, userID uuid.UUID) (bool, error) {
	participant, err := s.Get(conversationID, userID)
	if err != nil {
		return false, err
	}
	return participant != nil, nil
}

func (s *ParticipantStore) IsAdmin(conversationID, userID uuid.UUID) (bool, error) {
	participant, err := s.Get(conversationID, userID)
	if err != nil {
		return false, err
	}
	return participant != nil && participant.IsAdmin, nil
}

func (s *ParticipantStore) ListByConversation(conversationID uuid.UUID) ([]models.ConversationParticipant, error) {
	var participants []models.ConversationParticipant
	err := s.db.Where("conversation_id = ?", conversationID).Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func (s *ParticipantStore) Add(participants []models.ConversationParticipant) error {
	return s.db.Create(&participants).Error
}

func (s *ParticipantStore) Remove(conversationID uuid.UUID, userIDs []uuid.UUID) error {
	return s.db.
		Where("conversation_id = ? AND user_id IN ?", conversationID, userIDs).
		Delete(&models.ConversationParticipant{}).Error
}

func (s *ParticipantStore) UpdateFlags(conversationID, userID uuid.UUID, isAdmin, isMuted *bool) error {
	updates := map[string]interface{}{}
	if isAdmin != nil {
		updates["is_admin"] = *isAdmin
	}
	if isMuted != nil {
		updates["is_muted"] = *isMuted
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Updates(updates).Error
}

// AdminCount reports how many admins the conversation has, optionally
// ignoring a set of users (used to check what a removal would leave behind).
func (s *ParticipantStore) AdminCount(conversationID uuid.UUID, excluding []uuid.UUID) (int64, error) {
	query := s.db.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND is_admin = ?", conversationID, true)
	if len(excluding) > 0 {
		query = query.Where("user_id NOT IN ?", excluding)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

// MarkRead advances the read cursor to now. The guard keeps the cursor
// monotonic: a slow concurrent request can never move it backwards.
func (s *ParticipantStore) MarkRead(conversationID, userID uuid.UUID) error {
	return markReadTx(s.db, conversationID, userID, time.Now())
}

func markReadTx(tx *gorm.DB, conversationID, userID uuid.UUID, at time.Time) error {
	return tx.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Where("last_read_at IS NULL OR last_read_at < ?", at).
		Update("last_read_at", at).Error
}

// UnreadCount counts live messages from other senders newer than the
// participant's read cursor; a null cursor counts everything.
func (s *ParticipantStore) UnreadCount(conversationID, userID uuid.UUID) (int64, error) {
	participant, err := s.Get(conversationID, userID)
	if err != nil {
		return 0, err
	}
	if participant == nil {
		return 0, PermissionDeniedError("User is not a participant in this conversation")
	}

	query := s.db.Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_deleted = ?", conversationID, userID, false)
	if participant.LastReadAt != nil {
		query = query.Where("created_at > ?", *participant.LastReadAt)
	}
	var count int64
	err = query.Count(&count).Error
	return count, err
}
