package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"toko-commerce/internal/middleware"
	"toko-commerce/internal/notification"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// NotificationHandler streams order and payment updates as server-sent events.
type NotificationHandler struct {
	hub       *notification.Hub
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(hub *notification.Hub, heartbeat time.Duration, logger *zap.Logger) *NotificationHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &NotificationHandler{hub: hub, heartbeat: heartbeat, logger: logger}
}

// RegisterRoutes registers the notification routes with the Fiber app.
func (h *NotificationHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/notifications/stream", h.HandleStream)
}

// HandleStream keeps the connection open and writes one event per
// notification, with a comment line as heartbeat.
func (h *NotificationHandler) HandleStream(c *fiber.Ctx) error {
	userID := middleware.CurrentActor(c).UserID
	connID, notifications := h.hub.Register(userID)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer h.hub.Unregister(userID, connID)
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()

		fmt.Fprintf(w, ": connected %s\n\n", connID)
		if err := w.Flush(); err != nil {
			return
		}
		for {
			select {
			case n, ok := <-notifications:
				if !ok {
					return
				}
				body, err := json.Marshal(n)
				if err != nil {
					h.logger.Error("failed to encode notification", zap.String("id", n.ID), zap.Error(err))
					continue
				}
				fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", n.ID, n.Type, body)
			case <-ticker.C:
				fmt.Fprint(w, ": ping\n\n")
			}
			if err := w.Flush(); err != nil {
				// Client went away.
				return
			}
		}
	}))
	return nil
}
