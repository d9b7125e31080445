package api

import (
	"errors"
	"strings"
	"time"

	"insurebot-core/internal/domain/entity"
	"insurebot-core/internal/usecase"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type MessageHandler struct {
	orchestrator *usecase.Orchestrator
}

func NewMessageHandler(orch *usecase.Orchestrator) *MessageHandler {
	return &MessageHandler{orchestrator: orch}
}

type messageRequest struct {
	UserID    string `json:"user_id"`
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

// HandleMessage receives one inbound chat message from the channel gateway.
func (h *MessageHandler) HandleMessage(c *fiber.Ctx) error {
	var req messageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
	}
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}

	reply, err := h.orchestrator.HandleMessage(c.UserContext(), entity.InboundMessage{
		UserID:     req.UserID,
		MessageID:  req.MessageID,
		Text:       req.Text,
		ReceivedAt: time.Now().UTC(),
	})
	// the delivery layer maps business errors to status codes
	switch {
	case errors.Is(err, entity.ErrDuplicateMessage):
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"duplicate": true, "message_id": req.MessageID})
	case errors.Is(err, entity.ErrInvalidRequest):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, entity.ErrErasureFailed):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "erasure failed", "reply": reply})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}

	c.Set("X-Insurebot-Route", string(reply.Route))
	return c.Status(fiber.StatusOK).JSON(reply)
}

// EraseUser is the admin counterpart of the erasure command.
func (h *MessageHandler) EraseUser(c *fiber.Ctx) error {
	err := h.orchestrator.EraseUser(c.UserContext(), c.Params("id"))
	switch {
	case errors.Is(err, entity.ErrInvalidRequest):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "erasure failed"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
