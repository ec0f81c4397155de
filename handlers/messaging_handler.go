package handlers

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"

	"github.com/go-playground/validator/v10"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	config "github.com/wanjalae/hr_portal/configs"
	"github.com/wanjalae/hr_portal/services"
	"github.com/wanjalae/hr_portal/websocket"
)

var validate = validator.New()

type MessagingHandler struct {
	service *services.MessagingService
	hub     *websocket.Hub
}

func NewMessagingHandler(service *services.MessagingService, hub *websocket.Hub) *MessagingHandler {
	return &MessagingHandler{service: service, hub: hub}
}

type CreateMessageRequest struct {
	ConversationID string  `json:"conversationId" validate:"required,uuid"`
	Content        string  `json:"content" validate:"required"`
	Type           string  `json:"type" validate:"omitempty,oneof=text image file system"`
	FileURL        *string `json:"fileUrl"`
	FileName       *string `json:"fileName"`
	FileType       *string `json:"fileType"`
	FileSize       *int64  `json:"fileSize"`
}

type UpdateMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

type CreateConversationRequest struct {
	Name           *string  `json:"name"`
	Type           string   `json:"type" validate:"required,oneof=private group department"`
	Description    *string  `json:"description"`
	Avatar         *string  `json:"avatar"`
	DepartmentID   *string  `json:"departmentId" validate:"omitempty,uuid"`
	ParticipantIDs []string `json:"participantIds" validate:"required,min=1,dive,uuid"`
}

type UpdateConversationRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Avatar      *string `json:"avatar"`
}

type ParticipantRequest struct {
	UserID  string `json:"userId" validate:"required,uuid"`
	IsAdmin bool   `json:"isAdmin"`
	IsMuted bool   `json:"isMuted"`
}

type AddParticipantsRequest struct {
	Participants []ParticipantRequest `json:"participants" validate:"required,min=1,dive"`
}

type RemoveParticipantsRequest struct {
	ParticipantIDs []string `json:"participantIds" validate:"required,min=1,dive,uuid"`
}

type UpdateParticipantRequest struct {
	IsAdmin *bool `json:"isAdmin"`
	IsMuted *bool `json:"isMuted"`
}

func (h *MessagingHandler) CreateMessage(c *fiber.Ctx) error {
	userID := currentUserID(c)

	var req CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}
	conversationID, _ := uuid.Parse(req.ConversationID)

	message, err := h.service.CreateMessage(userID, services.CreateMessageInput{
		ConversationID: conversationID,
		Content:        req.Content,
		Type:           req.Type,
		FileURL:        req.FileURL,
		FileName:       req.FileName,
		FileType:       req.FileType,
		FileSize:       req.FileSize,
	})
	if err != nil {
		return respondError(c, err, "Failed to create message")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    message,
		"message": "Message created successfully",
	})
}

func (h *MessagingHandler) UpdateMessage(c *fiber.Ctx) error {
	userID := currentUserID(c)
	messageID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid message ID")
	}

	var req UpdateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	message, err := h.service.UpdateMessage(userID, messageID, req.Content)
	if err != nil {
		return respondError(c, err, "Failed to update message")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    message,
		"message": "Message updated successfully",
	})
}

func (h *MessagingHandler) DeleteMessage(c *fiber.Ctx) error {
	userID := currentUserID(c)
	messageID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid message ID")
	}

	if err := h.service.DeleteMessage(userID, messageID); err != nil {
		return respondError(c, err, "Failed to delete message")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    nil,
		"message": "Message deleted successfully",
	})
}

func (h *MessagingHandler) GetConversationMessages(c *fiber.Ctx) error {
	userID := currentUserID(c)
	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	messages, total, err := h.service.GetMessages(userID, conversationID, page, limit)
	if err != nil {
		return respondError(c, err, "Failed to fetch messages")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    messages,
		"message": "Messages retrieved successfully",
		"metadata": fiber.Map{
			"page":       page,
			"totalPages": int(math.Ceil(float64(total) / float64(limit))),
			"total":      total,
		},
	})
}

func (h *MessagingHandler) CreateConversation(c *fiber.Ctx) error {
	userID := currentUserID(c)

	var req CreateConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	var departmentID *uuid.UUID
	if req.DepartmentID != nil {
		id, _ := uuid.Parse(*req.DepartmentID)
		departmentID = &id
	}
	participantIDs := lo.Map(req.ParticipantIDs, func(raw string, _ int) uuid.UUID {
		id, _ := uuid.Parse(raw)
		return id
	})

	conversation, err := h.service.CreateConversation(userID, services.CreateConversationInput{
		Name:           req.Name,
		Type:           req.Type,
		Description:    req.Description,
		Avatar:         req.Avatar,
		DepartmentID:   departmentID,
		ParticipantIDs: participantIDs,
	})
	if err != nil {
		return respondError(c, err, "Failed to create conversation")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    conversation,
		"message": "Conversation created successfully",
	})
}

func (h *MessagingHandler) GetUserConversations(c *fiber.Ctx) error {
	userID := currentUserID(c)

	conversations, err := h.service.GetUserConversations(userID)
	if err != nil {
		return respondError(c, err, "Failed to fetch conversations")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    conversations,
		"message": "Conversations retrieved successfully",
	})
}

func (h *MessagingHandler) GetConversation(c *fiber.Ctx) error {
	userID := currentUserID(c)
	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}

	conversation, err := h.service.GetConversation(userID, conversationID)
	if err != nil {
		return respondError(c, err, "Failed to fetch conversation")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    conversation,
		"message": "Conversation retrieved successfully",
	})
}

func (h *MessagingHandler) UpdateConversation(c *fiber.Ctx) error {
	userID := currentUserID(c)
	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}

	var req UpdateConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}

	conversation, err := h.service.UpdateConversation(userID, conversationID, services.UpdateConversationInput{
		Name:        req.Name,
		Description: req.Description,
		Avatar:      req.Avatar,
	})
	if err != nil {
		return respondError(c, err, "Failed to update conversation")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    conversation,
		"message": "Conversation updated successfully",
	})
}

func (h *MessagingHandler) DeleteConversation(c *fiber.Ctx) error {
	userID := currentUserID(c)
	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}

	if err := h.service.DeleteConversation(userID, conversationID); err != nil {
		return respondError(c, err, "Failed to delete conversation")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    nil,
		"message": "Conversation deleted successfully",
	})
}

func (h *MessagingHandler) AddParticipants(c *fiber.Ctx) error {
	userID := currentUserID(c)
	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}

	var req AddParticipantsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	members := lo.Map(req.Participants, func(p ParticipantRequest, _ int) services.ParticipantInput {
		id, _ := uuid.Parse(p.UserID)
		return services.ParticipantInput{UserID: id, IsAdmin: p.IsAdmin, IsMuted: p.IsMuted}
	})

	if err := h.service.AddParticipants(userID, conversationID, members); err != nil {
		return respondError(c, err, "Failed to add participants")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    nil,
		"message": "Participants added successfully",
	})
}

func (h *MessagingHandler) RemoveParticipants(c *fiber.Ctx) error {
	userID := currentUserID(c)
	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}

	var req RemoveParticipantsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	participantIDs := lo.Map(req.ParticipantIDs, func(raw string, _ int) uuid.UUID {
		id, _ := uuid.Parse(raw)
		return id
	})

	if err := h.service.RemoveParticipants(userID, conversationID, participantIDs); err != nil {
		return respondError(c, err, "Failed to remove participants")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    nil,
		"message": "Participants removed successfully",
	})
}

func (h *MessagingHandler) UpdateParticipant(c *fiber.Ctx) error {
	userID := currentUserID(c)
	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}
	participantID, err := uuid.Parse(c.Params("participantId"))
	if err != nil {
		return badRequest(c, "Invalid participant ID")
	}

	var req UpdateParticipantRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Cannot parse JSON")
	}

	err = h.service.UpdateParticipant(userID, conversationID, participantID, services.UpdateParticipantInput{
		IsAdmin: req.IsAdmin,
		IsMuted: req.IsMuted,
	})
	if err != nil {
		return respondError(c, err, "Failed to update participant")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    nil,
		"message": "Participant updated successfully",
	})
}

func (h *MessagingHandler) MarkConversationAsRead(c *fiber.Ctx) error {
	userID := currentUserID(c)
	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}

	if err := h.service.MarkConversationAsRead(userID, conversationID); err != nil {
		return respondError(c, err, "Failed to mark conversation as read")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    nil,
		"message": "Conversation marked as read",
	})
}

func (h *MessagingHandler) GetUnreadCount(c *fiber.Ctx) error {
	userID := currentUserID(c)
	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}

	count, err := h.service.GetUnreadCount(userID, conversationID)
	if err != nil {
		return respondError(c, err, "Failed to fetch unread count")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"count": count},
		"message": "Unread count retrieved successfully",
	})
}

func (h *MessagingHandler) GetUserOnlineStatus(c *fiber.Ctx) error {
	targetID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"online": h.service.GetUserOnlineStatus(targetID)},
		"message": "Online status retrieved successfully",
	})
}

// ServeWs authenticates the connection with a first {"type":"auth","token"}
// frame, registers it with the hub, and then only watches for disconnect.
// All messaging mutations go through the REST endpoints; the socket is a
// delivery channel.
func (h *MessagingHandler) ServeWs(c *websocketcontrib.Conn) {
	type AuthMessage struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	}
	var authMsg AuthMessage
	if err := c.ReadJSON(&authMsg); err != nil || authMsg.Type != "auth" {
		log.Printf("websocket: auth failed: invalid or missing auth message: %v", err)
		_ = c.WriteJSON(fiber.Map{"error": "Invalid or missing auth message"})
		c.Close()
		return
	}

	claims, err := parseToken(authMsg.Token)
	if err != nil {
		log.Printf("websocket: auth failed: invalid token: %v", err)
		_ = c.WriteJSON(fiber.Map{"error": "Invalid token"})
		c.Close()
		return
	}

	userID, err := uuid.Parse(claims["user_id"].(string))
	if err != nil {
		log.Printf("websocket: auth failed: invalid user_id %v: %v", claims["user_id"], err)
		_ = c.WriteJSON(fiber.Map{"error": "Invalid user ID"})
		c.Close()
		return
	}

	h.hub.Register(userID, c)
	defer func() {
		h.hub.Unregister(userID, c)
		c.Close()
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseAbnormalClosure) {
				log.Printf("websocket: closed for client %s: %v", userID, err)
			} else {
				log.Printf("websocket: read error for client %s: %v", userID, err)
			}
			return
		}
	}
}

func currentUserID(c *fiber.Ctx) uuid.UUID {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	userID, _ := uuid.Parse(claims["user_id"].(string))
	return userID
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

func respondError(c *fiber.Ctx, err error, fallback string) error {
	status := fiber.StatusInternalServerError
	message := fallback
	switch services.KindOf(err) {
	case services.KindNotFound:
		status = fiber.StatusNotFound
		message = err.Error()
	case services.KindPermissionDenied:
		status = fiber.StatusForbidden
		message = err.Error()
	case services.KindConflict:
		status = fiber.StatusConflict
		message = err.Error()
	case services.KindValidation:
		status = fiber.StatusBadRequest
		message = err.Error()
	default:
		log.Printf("[ERROR] %s: %v | Path: %s", fallback, err, c.Path())
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

func parseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.Config("JWT_SECRET")), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
