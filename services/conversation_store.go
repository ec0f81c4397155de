package services

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wanjalae/hr_portal/models"
)

// ConversationStore owns conversation rows and their participant rows'
// lifecycle (created together, deleted together).
type ConversationStore struct {
	db *gorm.DB
}

func NewConversationStore(db *gorm.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// Create persists the conversation and its initial participant rows in one
// transaction. For private conversations the pair key's unique index is the
// guard against a concurrent duplicate create; on that conflict the already
// existing conversation is returned instead.
func (s *ConversationStore) Create(conversation *models.Conversation, participants []models.ConversationParticipant) (*models.Conversation, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conversation).Error; err != nil {
			return err
		}
		for i := range participants {
			participants[i].ConversationID = conversation.ID
		}
		return tx.Create(&participants).Error
	})
	if err != nil {
		if conversation.PairKey != nil && isUniqueViolation(err) {
			existing, findErr := s.findByPairKey(*conversation.PairKey)
			if findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	return s.GetByID(conversation.ID)
}

func (s *ConversationStore) findByPairKey(pairKey string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := s.db.
		Preload("Participants.User").
		Preload("Department").
		First(&conversation, "pair_key = ?", pairKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// FindPrivateBetween returns the private conversation for an unordered user
// pair, or nil when none exists.
func (s *ConversationStore) FindPrivateBetween(userA, userB uuid.UUID) (*models.Conversation, error) {
	return s.findByPairKey(models.PrivatePairKey(userA, userB))
}

func (s *ConversationStore) GetByID(id uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	err := s.db.
		Preload("Participants.User").
		Preload("Department").
		First(&conversation, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// ListForUser returns the user's conversations, most recently active first.
func (s *ConversationStore) ListForUser(userID uuid.UUID) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := s.db.
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id AND cp.user_id = ?", userID).
		Preload("Participants.User").
		Preload("Department").
		Order("conversations.updated_at DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

// UpdateAttrs mutates only the mutable display attributes.
func (s *ConversationStore) UpdateAttrs(id uuid.UUID, name, description, avatar *string) (*models.Conversation, error) {
	updates := map[string]interface{}{}
	if name != nil {
		updates["name"] = *name
	}
	if description != nil {
		updates["description"] = *description
	}
	if avatar != nil {
		updates["avatar"] = *avatar
	}
	if len(updates) > 0 {
		updates["updated_at"] = time.Now()
		if err := s.db.Model(&models.Conversation{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.GetByID(id)
}

// Delete removes the conversation together with its messages and participant
// rows so no dangling references remain.
func (s *ConversationStore) Delete(id uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&models.ConversationParticipant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Conversation{}, "id = ?", id).Error
	})
}
