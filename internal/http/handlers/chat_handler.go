// Chat HTTP handlers.
//
// This file exposes the grounded chat endpoint:
//   - POST /chat   (answer a conversation using the course catalog)
//
// The handler validates the conversation shape and delegates the
// classify-retrieve-answer flow to the chat service.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-genai-backend/internal/services"
)

//
// DTOs
//

// ChatMessageDTO is one conversation turn in a chat request.
type ChatMessageDTO struct {
	// Role is "user" or "assistant".
	Role string `json:"role" binding:"required" example:"user"`
	// Content is the message text.
	Content string `json:"content" binding:"required" example:"Who teaches IIC2233?"`
}

// ChatRequest is the JSON payload for the chat endpoint.
type ChatRequest struct {
	// Messages is the conversation so far; the last turn must be a user turn.
	Messages []ChatMessageDTO `json:"messages" binding:"required,min=1,dive"`
}

// ChatResponse is the JSON envelope for a grounded chat reply.
type ChatResponse struct {
	// Response is the generated answer.
	Response string `json:"response"`
	// Courses lists the catalog codes the answer was grounded on.
	Courses []string `json:"courses,omitempty"`
}

// Chat godoc
// @ID          chat
// @Summary     Answer a conversation grounded on the course catalog
// @Description Classifies which catalog courses the conversation refers to, loads their
// @Description sections, and generates a brief answer using only that context.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.ChatRequest  true  "Conversation payload"
//
// @Success     200  {object}  handlers.ChatResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     422  {object}  handlers.ErrorResponse "Provider rejected the request"
// @Failure     502  {object}  handlers.ErrorResponse "Provider unavailable"
// @Failure     503  {object}  handlers.ErrorResponse "Storage unavailable"
// @Router      /chat [post]
func (h *Handlers) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "messages required")
		return
	}

	msgs := make([]services.ChatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if strings.TrimSpace(m.Content) == "" {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message content required")
			return
		}
		msgs = append(msgs, services.ChatMessage{Role: m.Role, Content: m.Content})
	}

	reply, codes, err := h.chatSvc.Answer(c.Request.Context(), msgs)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoMessages), errors.Is(err, services.ErrLastNotUser):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrProviderRejected):
			fail(c, http.StatusUnprocessableEntity, ErrCodeProviderRejected, "the provider rejected the request")
		case errors.Is(err, services.ErrProviderUnavailable):
			fail(c, http.StatusBadGateway, ErrCodeProviderUnavailable, "the provider kept failing, try again later")
		case errors.Is(err, services.ErrStorageUnavailable):
			fail(c, http.StatusServiceUnavailable, ErrCodeStorageUnavailable, "storage unavailable")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeChatFailed, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, ChatResponse{Response: reply, Courses: codes})
}
