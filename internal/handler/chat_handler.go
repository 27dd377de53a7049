package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/carelink/clinassist/internal/pkg/errcode"
	"github.com/carelink/clinassist/internal/pkg/response"
	"github.com/carelink/clinassist/internal/service"
	"github.com/carelink/clinassist/internal/session"
)

type ChatHandler struct {
	assistant *service.AssistantService
	sess      *session.Session
}

func NewChatHandler(assistant *service.AssistantService, sess *session.Session) *ChatHandler {
	return &ChatHandler{assistant: assistant, sess: sess}
}

type askRequest struct {
	Question string `json:"question"`
}

func (h *ChatHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	answer, err := h.assistant.AnswerQuestion(c.Request.Context(), h.sess, req.Question)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"answer": answer})
}
