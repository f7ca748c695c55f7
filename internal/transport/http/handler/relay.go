package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"leftear-ai/internal/ai"
	"leftear-ai/internal/app"
	"leftear-ai/internal/transport/http/middleware"
	"leftear-ai/internal/transport/http/response"
)

type RelayHandler struct {
	relayService *app.RelayService
}

func NewRelayHandler(relayService *app.RelayService) *RelayHandler {
	return &RelayHandler{relayService: relayService}
}

type RelayRequest struct {
	SessionID uint                  `json:"session_id" binding:"required,gt=0"`
	PresetID  uint                  `json:"preset_id" binding:"required,gt=0"`
	Messages  []app.ExchangeMessage `json:"messages" binding:"required"`
	UseSearch bool                  `json:"use_search"`
}

// Stream relays one exchange. Failures before the upstream stream opens come
// back as structured JSON (handshake failures forward the upstream body
// verbatim); once streaming starts the response always ends with the [DONE]
// sentinel, whatever happens in between.
func (h *RelayHandler) Stream(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req RelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	exchange, err := h.relayService.Prepare(c.Request.Context(), app.RelayInput{
		UserID:    userID,
		SessionID: req.SessionID,
		PresetID:  req.PresetID,
		Messages:  req.Messages,
		UseSearch: req.UseSearch,
	})
	if err != nil {
		var upstreamErr *ai.UpstreamError
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrUnauthorized):
			response.Error(c, http.StatusForbidden, response.CodeUnauthorized, err.Error())
		case errors.Is(err, app.ErrPresetNotFound):
			response.Error(c, http.StatusBadRequest, response.CodePresetNotFound, err.Error())
		case errors.As(err, &upstreamErr):
			c.Data(upstreamErr.StatusCode, "application/json", []byte(upstreamErr.Body))
		default:
			response.Error(c, http.StatusBadGateway, response.CodeUpstreamFailed, "upstream request failed")
		}
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	_, runErr := exchange.Run(c.Request.Context(), func(delta string) error {
		frame, marshalErr := json.Marshal(gin.H{"content": delta})
		if marshalErr != nil {
			return marshalErr
		}
		if _, writeErr := c.Writer.Write([]byte("data: " + string(frame) + "\n\n")); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		if _, writeErr := c.Writer.Write([]byte(fmt.Sprintf("event: error\ndata: %s\n\n", sanitizeSSE(runErr.Error())))); writeErr == nil {
			flusher.Flush()
		}
	}

	// Terminal sentinel, success or not: the caller never has to guess
	// whether the stream ended.
	if _, writeErr := c.Writer.Write([]byte("data: [DONE]\n\n")); writeErr == nil {
		flusher.Flush()
	}
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
