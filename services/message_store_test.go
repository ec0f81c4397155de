package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wanjalae/hr_portal/models"
)

func seedConversation(t *testing.T, db *gorm.DB, creator uuid.UUID, members ...uuid.UUID) uuid.UUID {
	t.Helper()
	conversation := models.Conversation{Type: models.ConversationTypeGroup, CreatedByID: creator}
	require.NoError(t, db.Create(&conversation).Error)
	for _, member := range append([]uuid.UUID{creator}, members...) {
		participant := models.ConversationParticipant{
			ConversationID: conversation.ID,
			UserID:         member,
			IsAdmin:        member == creator,
		}
		require.NoError(t, db.Create(&participant).Error)
	}
	return conversation.ID
}

func TestMessageStore_PageNewestFirst(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	store := NewMessageStore(db)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	conversationID := seedConversation(t, db, alice, bob)

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		message, err := store.Append(&models.Message{
			ConversationID: conversationID,
			SenderID:       alice,
			Content:        fmt.Sprintf("message %d", i),
			Type:           models.MessageTypeText,
		})
		req.NoError(err)
		ids = append(ids, message.ID)
	}

	page1, total, err := store.Page(conversationID, bob, 1, 2)
	req.NoError(err)
	req.EqualValues(5, total)
	req.Len(page1, 2)
	req.Equal(ids[4], page1[0].ID)
	req.Equal(ids[3], page1[1].ID)

	page3, _, err := store.Page(conversationID, bob, 3, 2)
	req.NoError(err)
	req.Len(page3, 1)
	req.Equal(ids[0], page3[0].ID)
}

func TestMessageStore_AppendAdvancesCursorAndActivity(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	store := NewMessageStore(db)
	participants := NewParticipantStore(db)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	conversationID := seedConversation(t, db, alice, bob)

	message, err := store.Append(&models.Message{
		ConversationID: conversationID,
		SenderID:       alice,
		Content:        "hello",
		Type:           models.MessageTypeText,
	})
	req.NoError(err)

	sender, err := participants.Get(conversationID, alice)
	req.NoError(err)
	req.NotNil(sender.LastReadAt)
	req.False(sender.LastReadAt.Before(message.CreatedAt))

	var conversation models.Conversation
	req.NoError(db.First(&conversation, "id = ?", conversationID).Error)
	req.False(conversation.UpdatedAt.Before(message.CreatedAt))

	// The recipient's cursor stays untouched.
	recipient, err := participants.Get(conversationID, bob)
	req.NoError(err)
	req.Nil(recipient.LastReadAt)
}

func TestMessageStore_PageMarksRead(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	store := NewMessageStore(db)
	participants := NewParticipantStore(db)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	conversationID := seedConversation(t, db, alice, bob)

	_, err := store.Append(&models.Message{
		ConversationID: conversationID,
		SenderID:       alice,
		Content:        "hello",
		Type:           models.MessageTypeText,
	})
	req.NoError(err)

	unread, err := participants.UnreadCount(conversationID, bob)
	req.NoError(err)
	req.EqualValues(1, unread)

	_, _, err = store.Page(conversationID, bob, 1, 50)
	req.NoError(err)

	unread, err = participants.UnreadCount(conversationID, bob)
	req.NoError(err)
	req.Zero(unread)
}

func TestParticipantStore_ReadCursorIsMonotonic(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	participants := NewParticipantStore(db)
	alice := seedUser(t, db, "alice")
	conversationID := seedConversation(t, db, alice)

	now := time.Now()
	req.NoError(markReadTx(db, conversationID, alice, now))

	// A lagging request with an older timestamp must not move the cursor back.
	req.NoError(markReadTx(db, conversationID, alice, now.Add(-time.Minute)))

	participant, err := participants.Get(conversationID, alice)
	req.NoError(err)
	req.NotNil(participant.LastReadAt)
	req.False(participant.LastReadAt.Before(now))
}

func TestParticipantStore_UnreadCountExcludesOwnAndDeleted(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	store := NewMessageStore(db)
	participants := NewParticipantStore(db)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	conversationID := seedConversation(t, db, alice, bob)

	// Raw inserts keep bob's cursor null so the count sees every message.
	fromAlice := models.Message{
		ConversationID: conversationID, SenderID: alice, Content: "one", Type: models.MessageTypeText,
	}
	req.NoError(db.Create(&fromAlice).Error)
	fromBob := models.Message{
		ConversationID: conversationID, SenderID: bob, Content: "two", Type: models.MessageTypeText,
	}
	req.NoError(db.Create(&fromBob).Error)

	// Bob's own message never counts against him.
	unread, err := participants.UnreadCount(conversationID, bob)
	req.NoError(err)
	req.EqualValues(1, unread)

	req.NoError(store.SoftDelete(fromAlice.ID))
	unread, err = participants.UnreadCount(conversationID, bob)
	req.NoError(err)
	req.Zero(unread)
}

func TestConversationStore_PairKeyRejectsDuplicatePrivate(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	store := NewConversationStore(db)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	pairKey := models.PrivatePairKey(alice, bob)
	first, err := store.Create(
		&models.Conversation{Type: models.ConversationTypePrivate, CreatedByID: alice, PairKey: &pairKey},
		[]models.ConversationParticipant{{UserID: alice, IsAdmin: true}, {UserID: bob}},
	)
	req.NoError(err)

	// A racing create for the same pair resolves to the existing conversation.
	second, err := store.Create(
		&models.Conversation{Type: models.ConversationTypePrivate, CreatedByID: bob, PairKey: &pairKey},
		[]models.ConversationParticipant{{UserID: bob, IsAdmin: true}, {UserID: alice}},
	)
	req.NoError(err)
	req.Equal(first.ID, second.ID)

	var count int64
	req.NoError(db.Model(&models.Conversation{}).Count(&count).Error)
	req.EqualValues(1, count)
}

func TestPrivatePairKey_IsOrderIndependent(t *testing.T) {
	req := require.New(t)
	a := uuid.New()
	b := uuid.New()
	req.Equal(models.PrivatePairKey(a, b), models.PrivatePairKey(b, a))
	req.NotEqual(models.PrivatePairKey(a, b), models.PrivatePairKey(a, uuid.New()))
}
