package handler

import (
	"net/http"
	"strconv"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/services"
	"parley-chat/internal/transport/httpdto"
	"parley-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const kindKey = "conversation_kind"

// BindKind pins the conversation kind for routes mounted under /groups, /channels or /chats.
func BindKind(kind conversation.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(kindKey, kind)
		c.Next()
	}
}

func writeError(c *gin.Context, err error) {
	status := services.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.GetGlobalLogger().WithContext(c.Request.Context()).Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	c.JSON(status, httpdto.NewErrorResponse(msg, services.ErrorCode(err)))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(msg, "INVALID_INPUT"))
}

func currentUser(c *gin.Context) (int64, bool) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return 0, false
	}
	return userID, true
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, strconv.ErrSyntax
	}
	return id, nil
}

// pathID reads a positive id path parameter and answers 400 when it is malformed.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := parseID(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// conversationRef combines the bound kind with the :id parameter.
func conversationRef(c *gin.Context) (conversation.Ref, bool) {
	kind, _ := c.Get(kindKey)
	k, ok := kind.(conversation.Kind)
	if !ok {
		badRequest(c, "unknown conversation type")
		return conversation.Ref{}, false
	}
	id, ok := pathID(c, "id")
	if !ok {
		return conversation.Ref{}, false
	}
	return conversation.Ref{Kind: k, ID: id}, true
}

func respond[T any](c *gin.Context, data T) {
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(data))
}

func done(c *gin.Context) {
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}
