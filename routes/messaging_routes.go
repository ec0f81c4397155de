package routes

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/wanjalae/hr_portal/handlers"
	"github.com/wanjalae/hr_portal/middleware"
)

func MessagingRoutes(app *fiber.App, h *handlers.MessagingHandler) {
	api := app.Group("/api/v1")

	messages := api.Group("/messages", middleware.Protected())
	messages.Post("", h.CreateMessage)
	messages.Put("/:id", h.UpdateMessage)
	messages.Delete("/:id", h.DeleteMessage)

	conversations := api.Group("/conversations", middleware.Protected())
	conversations.Get("", h.GetUserConversations)
	conversations.Post("", h.CreateConversation)
	conversations.Get("/:id", h.GetConversation)
	conversations.Put("/:id", h.UpdateConversation)
	conversations.Delete("/:id", h.DeleteConversation)
	conversations.Get("/:id/messages", h.GetConversationMessages)
	conversations.Post("/:id/participants", h.AddParticipants)
	conversations.Delete("/:id/participants", h.RemoveParticipants)
	conversations.Put("/:id/participants/:participantId", h.UpdateParticipant)
	conversations.Post("/:id/read", h.MarkConversationAsRead)
	conversations.Get("/:id/unread-count", h.GetUnreadCount)

	users := api.Group("/users", middleware.Protected())
	users.Get("/:id/online-status", h.GetUserOnlineStatus)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	api.Get("/ws", websocket.New(h.ServeWs))
}
