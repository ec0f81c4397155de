package services

import (
	"log"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/wanjalae/hr_portal/models"
)

// PushTransport delivers best-effort events to connected clients. Delivery
// is fire-and-forget: a user with no live connection is silently skipped,
// and transport failures never surface to the triggering operation.
type PushTransport interface {
	EmitToUser(userID uuid.UUID, event string, payload interface{})
	EmitToAll(event string, payload interface{})
	IsOnline(userID uuid.UUID) bool
}

type CreateMessageInput struct {
	ConversationID uuid.UUID
	Content        string
	Type           string
	FileURL        *string
	FileName       *string
	FileType       *string
	FileSize       *int64
}

type CreateConversationInput struct {
	Name           *string
	Type           string
	Description    *string
	Avatar         *string
	DepartmentID   *uuid.UUID
	ParticipantIDs []uuid.UUID
}

type UpdateConversationInput struct {
	Name        *string
	Description *string
	Avatar      *string
}

type ParticipantInput struct {
	UserID  uuid.UUID
	IsAdmin bool
	IsMuted bool
}

type UpdateParticipantInput struct {
	IsAdmin *bool
	IsMuted *bool
}

// MessagingService is the public face of the messaging core. Every mutating
// operation follows the same sequence: authorize, validate referenced
// entities, mutate the store, then fan events out to affected participants.
type MessagingService struct {
	conversations *ConversationStore
	participants  *ParticipantStore
	messages      *MessageStore
	identity      IdentityLookup
	push          PushTransport
}

func NewMessagingService(db *gorm.DB, identity IdentityLookup, push PushTransport) *MessagingService {
	return &MessagingService{
		conversations: NewConversationStore(db),
		participants:  NewParticipantStore(db),
		messages:      NewMessageStore(db),
		identity:      identity,
		push:          push,
	}
}

func (s *MessagingService) CreateMessage(senderID uuid.UUID, input CreateMessageInput) (*models.Message, error) {
	isParticipant, err := s.participants.IsParticipant(input.ConversationID, senderID)
	if err != nil {
		return nil, err
	}
	if !isParticipant {
		return nil, PermissionDeniedError("User is not a participant in this conversation")
	}

	messageType := input.Type
	if messageType == "" {
		messageType = models.MessageTypeText
	}

	message := &models.Message{
		ConversationID: input.ConversationID,
		SenderID:       senderID,
		Content:        input.Content,
		Type:           messageType,
		FileURL:        input.FileURL,
		FileName:       input.FileName,
		FileType:       input.FileType,
		FileSize:       input.FileSize,
	}
	saved, err := s.messages.Append(message)
	if err != nil {
		return nil, err
	}

	conversation, err := s.conversations.GetByID(input.ConversationID)
	if err != nil {
		log.Printf("messaging: failed to load conversation %s for fan-out: %v", input.ConversationID, err)
		return saved, nil
	}
	for _, participant := range conversation.Participants {
		if participant.UserID == senderID {
			continue
		}
		s.push.EmitToUser(participant.UserID, "new_message", map[string]interface{}{
			"message":      saved,
			"conversation": conversation,
		})
	}
	return saved, nil
}

func (s *MessagingService) UpdateMessage(userID, messageID uuid.UUID, content string) (*models.Message, error) {
	message, err := s.messages.GetByID(messageID)
	if err != nil {
		return nil, err
	}
	if message == nil {
		return nil, NotFoundError("Message not found")
	}
	if message.SenderID != userID {
		return nil, PermissionDeniedError("You can only edit your own messages")
	}

	updated, err := s.messages.Edit(messageID, content)
	if err != nil {
		return nil, err
	}

	s.emitToParticipants(message.ConversationID, "message_updated", map[string]interface{}{
		"message":        updated,
		"conversationId": message.ConversationID,
	})
	return updated, nil
}

func (s *MessagingService) DeleteMessage(userID, messageID uuid.UUID) error {
	message, err := s.messages.GetByID(messageID)
	if err != nil {
		return err
	}
	if message == nil {
		return NotFoundError("Message not found")
	}
	if message.SenderID != userID {
		return PermissionDeniedError("You can only delete your own messages")
	}

	if err := s.messages.SoftDelete(messageID); err != nil {
		return err
	}

	s.emitToParticipants(message.ConversationID, "message_deleted", map[string]interface{}{
		"messageId":      messageID,
		"conversationId": message.ConversationID,
	})
	return nil
}

func (s *MessagingService) GetMessages(userID, conversationID uuid.UUID, page, limit int) ([]models.Message, int64, error) {
	isParticipant, err := s.participants.IsParticipant(conversationID, userID)
	if err != nil {
		return nil, 0, err
	}
	if !isParticipant {
		return nil, 0, PermissionDeniedError("User is not a participant in this conversation")
	}
	return s.messages.Page(conversationID, userID, page, limit)
}

func (s *MessagingService) CreateConversation(creatorID uuid.UUID, input CreateConversationInput) (*models.Conversation, error) {
	if len(input.ParticipantIDs) == 0 {
		return nil, ValidationError("At least one participant is required")
	}
	if input.Type != models.ConversationTypePrivate &&
		input.Type != models.ConversationTypeGroup &&
		input.Type != models.ConversationTypeDepartment {
		return nil, ValidationError("Valid conversation type is required")
	}

	// The creator is always a member, whether or not the caller listed them.
	memberIDs := lo.Uniq(append([]uuid.UUID{creatorID}, input.ParticipantIDs...))

	exist, err := s.identity.UsersExist(memberIDs)
	if err != nil {
		return nil, err
	}
	if !exist {
		return nil, NotFoundError("One or more participants not found")
	}

	var pairKey *string
	if input.Type == models.ConversationTypePrivate {
		if len(memberIDs) != 2 {
			return nil, ValidationError("A private conversation requires exactly two participants")
		}
		existing, err := s.conversations.FindPrivateBetween(memberIDs[0], memberIDs[1])
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		key := models.PrivatePairKey(memberIDs[0], memberIDs[1])
		pairKey = &key
	}

	if input.Type == models.ConversationTypeDepartment {
		if input.DepartmentID == nil {
			return nil, ValidationError("Department is required for a department conversation")
		}
		exists, err := s.identity.DepartmentExists(*input.DepartmentID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, NotFoundError("Department not found")
		}
	}

	conversation := &models.Conversation{
		Name:         input.Name,
		Type:         input.Type,
		Description:  input.Description,
		Avatar:       input.Avatar,
		DepartmentID: input.DepartmentID,
		CreatedByID:  creatorID,
		PairKey:      pairKey,
	}
	participants := lo.Map(memberIDs, func(userID uuid.UUID, _ int) models.ConversationParticipant {
		return models.ConversationParticipant{
			UserID:  userID,
			IsAdmin: userID == creatorID,
		}
	})

	created, err := s.conversations.Create(conversation, participants)
	if err != nil {
		return nil, err
	}
	if created.ID != conversation.ID {
		// Lost a creation race; the winner's conversation is the one.
		return created, nil
	}

	for _, userID := range memberIDs {
		if userID == creatorID {
			continue
		}
		s.push.EmitToUser(userID, "new_conversation", map[string]interface{}{
			"conversation": created,
		})
	}
	return created, nil
}

func (s *MessagingService) GetConversation(userID, conversationID uuid.UUID) (*models.Conversation, error) {
	conversation, err := s.conversations.GetByID(conversationID)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, NotFoundError("Conversation not found")
	}
	isParticipant, err := s.participants.IsParticipant(conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !isParticipant {
		return nil, PermissionDeniedError("User is not a participant in this conversation")
	}
	return conversation, nil
}

func (s *MessagingService) GetUserConversations(userID uuid.UUID) ([]models.Conversation, error) {
	return s.conversations.ListForUser(userID)
}

func (s *MessagingService) UpdateConversation(userID, conversationID uuid.UUID, input UpdateConversationInput) (*models.Conversation, error) {
	if err := s.requireAdmin(conversationID, userID, "You don't have permission to update this conversation"); err != nil {
		return nil, err
	}

	updated, err := s.conversations.UpdateAttrs(conversationID, input.Name, input.Description, input.Avatar)
	if err != nil {
		return nil, err
	}

	s.emitToParticipants(conversationID, "conversation_updated", map[string]interface{}{
		"conversation": updated,
	})
	return updated, nil
}

func (s *MessagingService) DeleteConversation(userID, conversationID uuid.UUID) error {
	if err := s.requireAdmin(conversationID, userID, "You don't have permission to delete this conversation"); err != nil {
		return err
	}

	participants, err := s.participants.ListByConversation(conversationID)
	if err != nil {
		return err
	}

	if err := s.conversations.Delete(conversationID); err != nil {
		return err
	}

	for _, participant := range participants {
		s.push.EmitToUser(participant.UserID, "conversation_deleted", map[string]interface{}{
			"conversationId": conversationID,
		})
	}
	return nil
}

func (s *MessagingService) AddParticipants(userID, conversationID uuid.UUID, members []ParticipantInput) error {
	if len(members) == 0 {
		return ValidationError("At least one participant is required")
	}
	if err := s.requireAdmin(conversationID, userID, "You don't have permission to add participants to this conversation"); err != nil {
		return err
	}

	memberIDs := lo.Uniq(lo.Map(members, func(m ParticipantInput, _ int) uuid.UUID { return m.UserID }))
	if len(memberIDs) != len(members) {
		return ValidationError("Duplicate participants in request")
	}

	exist, err := s.identity.UsersExist(memberIDs)
	if err != nil {
		return err
	}
	if !exist {
		return NotFoundError("One or more participants not found")
	}

	existing, err := s.participants.ListByConversation(conversationID)
	if err != nil {
		return err
	}
	existingIDs := lo.Map(existing, func(p models.ConversationParticipant, _ int) uuid.UUID { return p.UserID })
	if len(lo.Intersect(existingIDs, memberIDs)) > 0 {
		return ConflictError("One or more users are already participants")
	}

	rows := lo.Map(members, func(m ParticipantInput, _ int) models.ConversationParticipant {
		return models.ConversationParticipant{
			ConversationID: conversationID,
			UserID:         m.UserID,
			IsAdmin:        m.IsAdmin,
			IsMuted:        m.IsMuted,
		}
	})
	if err := s.participants.Add(rows); err != nil {
		if isUniqueViolation(err) {
			return ConflictError("One or more users are already participants")
		}
		return err
	}

	for _, participant := range existing {
		s.push.EmitToUser(participant.UserID, "participants_added", map[string]interface{}{
			"conversationId":  conversationID,
			"newParticipants": rows,
		})
	}

	conversation, err := s.conversations.GetByID(conversationID)
	if err != nil {
		log.Printf("messaging: failed to load conversation %s for fan-out: %v", conversationID, err)
		return nil
	}
	for _, memberID := range memberIDs {
		s.push.EmitToUser(memberID, "added_to_conversation", map[string]interface{}{
			"conversation": conversation,
		})
	}
	return nil
}

func (s *MessagingService) RemoveParticipants(userID, conversationID uuid.UUID, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return ValidationError("At least one participant is required")
	}
	if err := s.requireAdmin(conversationID, userID, "You don't have permission to remove participants from this conversation"); err != nil {
		return err
	}

	existing, err := s.participants.ListByConversation(conversationID)
	if err != nil {
		return err
	}
	existingIDs := lo.Map(existing, func(p models.ConversationParticipant, _ int) uuid.UUID { return p.UserID })
	removedIDs := lo.Intersect(existingIDs, userIDs)
	if len(removedIDs) == 0 {
		return NotFoundError("No matching participants in this conversation")
	}

	adminsLeft, err := s.participants.AdminCount(conversationID, removedIDs)
	if err != nil {
		return err
	}
	if adminsLeft == 0 {
		return ValidationError("A conversation must keep at least one admin")
	}

	if err := s.participants.Remove(conversationID, removedIDs); err != nil {
		return err
	}

	remaining, err := s.participants.ListByConversation(conversationID)
	if err != nil {
		log.Printf("messaging: failed to list participants of %s for fan-out: %v", conversationID, err)
		return nil
	}
	for _, participant := range remaining {
		s.push.EmitToUser(participant.UserID, "participants_removed", map[string]interface{}{
			"conversationId":      conversationID,
			"removedParticipants": removedIDs,
		})
	}
	for _, removedID := range removedIDs {
		s.push.EmitToUser(removedID, "removed_from_conversation", map[string]interface{}{
			"conversationId": conversationID,
		})
	}
	return nil
}

func (s *MessagingService) UpdateParticipant(userID, conversationID, targetUserID uuid.UUID, input UpdateParticipantInput) error {
	if err := s.requireAdmin(conversationID, userID, "You don't have permission to update participants in this conversation"); err != nil {
		return err
	}

	target, err := s.participants.Get(conversationID, targetUserID)
	if err != nil {
		return err
	}
	if target == nil {
		return NotFoundError("Participant not found")
	}

	if input.IsAdmin != nil && !*input.IsAdmin && target.IsAdmin {
		otherAdmins, err := s.participants.AdminCount(conversationID, []uuid.UUID{targetUserID})
		if err != nil {
			return err
		}
		if otherAdmins == 0 {
			return ValidationError("A conversation must keep at least one admin")
		}
	}

	if err := s.participants.UpdateFlags(conversationID, targetUserID, input.IsAdmin, input.IsMuted); err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if input.IsAdmin != nil {
		updates["isAdmin"] = *input.IsAdmin
	}
	if input.IsMuted != nil {
		updates["isMuted"] = *input.IsMuted
	}
	s.emitToParticipants(conversationID, "participant_updated", map[string]interface{}{
		"conversationId": conversationID,
		"participantId":  targetUserID,
		"updates":        updates,
	})
	return nil
}

func (s *MessagingService) MarkConversationAsRead(userID, conversationID uuid.UUID) error {
	isParticipant, err := s.participants.IsParticipant(conversationID, userID)
	if err != nil {
		return err
	}
	if !isParticipant {
		return PermissionDeniedError("User is not a participant in this conversation")
	}
	return s.participants.MarkRead(conversationID, userID)
}

func (s *MessagingService) GetUnreadCount(userID, conversationID uuid.UUID) (int64, error) {
	return s.participants.UnreadCount(conversationID, userID)
}

func (s *MessagingService) GetUserOnlineStatus(userID uuid.UUID) bool {
	return s.push.IsOnline(userID)
}

func (s *MessagingService) requireAdmin(conversationID, userID uuid.UUID, denyMessage string) error {
	conversation, err := s.conversations.GetByID(conversationID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return NotFoundError("Conversation not found")
	}
	isAdmin, err := s.participants.IsAdmin(conversationID, userID)
	if err != nil {
		return err
	}
	if !isAdmin {
		return PermissionDeniedError(denyMessage)
	}
	return nil
}

func (s *MessagingService) emitToParticipants(conversationID uuid.UUID, event string, payload map[string]interface{}) {
	participants, err := s.participants.ListByConversation(conversationID)
	if err != nil {
		log.Printf("messaging: failed to list participants of %s for fan-out: %v", conversationID, err)
		return
	}
	for _, participant := range participants {
		s.push.EmitToUser(participant.UserID, event, payload)
	}
}
