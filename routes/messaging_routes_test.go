package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wanjalae/hr_portal/handlers"
	"github.com/wanjalae/hr_portal/models"
	"github.com/wanjalae/hr_portal/services"
	"github.com/wanjalae/hr_portal/websocket"
)

const testSecret = "test-secret"

type fixture struct {
	app   *fiber.App
	db    *gorm.DB
	alice uuid.UUID
	bob   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	os.Setenv("JWT_SECRET", testSecret)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.Department{},
		&models.User{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
	))

	hub := websocket.NewHub()
	service := services.NewMessagingService(db, services.NewGormIdentityLookup(db), hub)
	handler := handlers.NewMessagingHandler(service, hub)

	app := fiber.New()
	MessagingRoutes(app, handler)

	return &fixture{
		app:   app,
		db:    db,
		alice: seedUser(t, db, "alice"),
		bob:   seedUser(t, db, "bob"),
	}
}

func seedUser(t *testing.T, db *gorm.DB, name string) uuid.UUID {
	t.Helper()
	user := models.User{
		FirstName: name,
		LastName:  "Tester",
		Email:     fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()),
		Password:  "hashed",
		IsActive:  true,
	}
	require.NoError(t, db.Create(&user).Error)
	return user.ID
}

func mintToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func (f *fixture) request(t *testing.T, userID uuid.UUID, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+mintToken(t, userID))
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)

	var envelope map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp, envelope
}

func (f *fixture) createConversation(t *testing.T, creator uuid.UUID, conversationType string, members ...uuid.UUID) string {
	t.Helper()
	ids := make([]string, 0, len(members))
	for _, member := range members {
		ids = append(ids, member.String())
	}
	resp, envelope := f.request(t, creator, http.MethodPost, "/api/v1/conversations", fiber.Map{
		"type":           conversationType,
		"participantIds": ids,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := envelope["data"].(map[string]interface{})
	return data["id"].(string)
}

func TestMessagingRoutes_RequireAuth(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	resp, envelope := f.request(t, uuid.Nil, http.MethodGet, "/api/v1/conversations", nil)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
	req.Equal(false, envelope["success"])

	httpReq := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	httpReq.Header.Set("Authorization", "Bearer not-a-token")
	resp2, err := f.app.Test(httpReq, -1)
	req.NoError(err)
	req.Equal(http.StatusUnauthorized, resp2.StatusCode)
}

func TestMessagingRoutes_ConversationLifecycle(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	conversationID := f.createConversation(t, f.alice, "group", f.alice, f.bob)

	resp, envelope := f.request(t, f.alice, http.MethodGet, "/api/v1/conversations", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(true, envelope["success"])
	req.Len(envelope["data"].([]interface{}), 1)

	resp, envelope = f.request(t, f.alice, http.MethodPut, "/api/v1/conversations/"+conversationID, fiber.Map{
		"name": "Announcements",
	})
	req.Equal(http.StatusOK, resp.StatusCode)
	data := envelope["data"].(map[string]interface{})
	req.Equal("Announcements", data["name"])

	// A non-admin hits the permission boundary, mapped to 403.
	resp, envelope = f.request(t, f.bob, http.MethodDelete, "/api/v1/conversations/"+conversationID, nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)
	req.Equal(false, envelope["success"])

	resp, _ = f.request(t, f.alice, http.MethodDelete, "/api/v1/conversations/"+conversationID, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
}

func TestMessagingRoutes_MessageFlowAndStatusMapping(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	mallory := seedUser(t, f.db, "mallory")

	conversationID := f.createConversation(t, f.alice, "group", f.alice, f.bob)

	resp, envelope := f.request(t, f.alice, http.MethodPost, "/api/v1/messages", fiber.Map{
		"conversationId": conversationID,
		"content":        "Hello",
	})
	req.Equal(http.StatusCreated, resp.StatusCode)
	message := envelope["data"].(map[string]interface{})
	messageID := message["id"].(string)

	// Non-participants cannot post.
	resp, _ = f.request(t, mallory, http.MethodPost, "/api/v1/messages", fiber.Map{
		"conversationId": conversationID,
		"content":        "let me in",
	})
	req.Equal(http.StatusForbidden, resp.StatusCode)

	// Malformed ids short-circuit with 400.
	resp, _ = f.request(t, f.alice, http.MethodPut, "/api/v1/messages/not-a-uuid", fiber.Map{"content": "x"})
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	// Unknown message ids map to 404.
	resp, _ = f.request(t, f.alice, http.MethodPut, "/api/v1/messages/"+uuid.NewString(), fiber.Map{"content": "x"})
	req.Equal(http.StatusNotFound, resp.StatusCode)

	// Only the sender may edit.
	resp, _ = f.request(t, f.bob, http.MethodPut, "/api/v1/messages/"+messageID, fiber.Map{"content": "hijacked"})
	req.Equal(http.StatusForbidden, resp.StatusCode)

	resp, envelope = f.request(t, f.alice, http.MethodPut, "/api/v1/messages/"+messageID, fiber.Map{"content": "Hello!"})
	req.Equal(http.StatusOK, resp.StatusCode)
	edited := envelope["data"].(map[string]interface{})
	req.Equal(true, edited["is_edited"])

	resp, envelope = f.request(t, f.bob, http.MethodGet, "/api/v1/conversations/"+conversationID+"/messages?page=1&limit=10", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Len(envelope["data"].([]interface{}), 1)
	metadata := envelope["metadata"].(map[string]interface{})
	req.EqualValues(1, metadata["total"])
	req.EqualValues(1, metadata["totalPages"])
}

func TestMessagingRoutes_UnreadCountAndRead(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	conversationID := f.createConversation(t, f.alice, "group", f.alice, f.bob)

	_, _ = f.request(t, f.alice, http.MethodPost, "/api/v1/messages", fiber.Map{
		"conversationId": conversationID,
		"content":        "Hello",
	})

	resp, envelope := f.request(t, f.bob, http.MethodGet, "/api/v1/conversations/"+conversationID+"/unread-count", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	data := envelope["data"].(map[string]interface{})
	req.EqualValues(1, data["count"])

	resp, _ = f.request(t, f.bob, http.MethodPost, "/api/v1/conversations/"+conversationID+"/read", nil)
	req.Equal(http.StatusOK, resp.StatusCode)

	_, envelope = f.request(t, f.bob, http.MethodGet, "/api/v1/conversations/"+conversationID+"/unread-count", nil)
	data = envelope["data"].(map[string]interface{})
	req.EqualValues(0, data["count"])
}

func TestMessagingRoutes_ParticipantManagement(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	carol := seedUser(t, f.db, "carol")

	conversationID := f.createConversation(t, f.alice, "group", f.alice, f.bob)

	// Adding an existing member conflicts.
	resp, _ := f.request(t, f.alice, http.MethodPost, "/api/v1/conversations/"+conversationID+"/participants", fiber.Map{
		"participants": []fiber.Map{{"userId": f.bob.String()}},
	})
	req.Equal(http.StatusConflict, resp.StatusCode)

	resp, _ = f.request(t, f.alice, http.MethodPost, "/api/v1/conversations/"+conversationID+"/participants", fiber.Map{
		"participants": []fiber.Map{{"userId": carol.String(), "isMuted": true}},
	})
	req.Equal(http.StatusOK, resp.StatusCode)

	resp, _ = f.request(t, f.alice, http.MethodPut, "/api/v1/conversations/"+conversationID+"/participants/"+carol.String(), fiber.Map{
		"isAdmin": true,
	})
	req.Equal(http.StatusOK, resp.StatusCode)

	// Stripping the only remaining admin is rejected.
	resp, _ = f.request(t, carol, http.MethodDelete, "/api/v1/conversations/"+conversationID+"/participants", fiber.Map{
		"participantIds": []string{f.alice.String(), carol.String()},
	})
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.request(t, f.alice, http.MethodDelete, "/api/v1/conversations/"+conversationID+"/participants", fiber.Map{
		"participantIds": []string{f.bob.String()},
	})
	req.Equal(http.StatusOK, resp.StatusCode)
}

func TestMessagingRoutes_OnlineStatus(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	resp, envelope := f.request(t, f.alice, http.MethodGet, "/api/v1/users/"+f.bob.String()+"/online-status", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	data := envelope["data"].(map[string]interface{})
	req.Equal(false, data["online"])
}
