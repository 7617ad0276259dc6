package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cookie-ai-go/internal/model"
	"cookie-ai-go/internal/service"
	"cookie-ai-go/pkg/log"
)

// SessionHandler 负责会话管理相关的 API 请求。
type SessionHandler struct {
	sessionService service.SessionService
}

// NewSessionHandler 创建一个新的 SessionHandler 实例。
func NewSessionHandler(sessionService service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// ListSessions 返回当前用户的全部会话（收藏优先，时间倒序）。
func (h *SessionHandler) ListSessions(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	views, err := h.sessionService.ListSessions(c.Request.Context(), user.ID)
	if err != nil {
		log.Errorf("ListSessions: failed for user %d, error: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "获取会话列表失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": views, "message": "success"})
}

// CreateSession 创建一个新会话并将其设为活动会话。
func (h *SessionHandler) CreateSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	sessionKey, err := h.sessionService.CreateSession(c.Request.Context(), user.ID)
	if err != nil {
		log.Errorf("CreateSession: failed for user %d, error: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "创建会话失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"data":    gin.H{"session_key": sessionKey},
		"message": "success",
	})
}

// SetActive 切换当前用户的活动会话。
func (h *SessionHandler) SetActive(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionKey := c.Param("key")

	if err := h.sessionService.SetActive(c.Request.Context(), user.ID, sessionKey); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    http.StatusNotFound,
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}

// ToggleFavorite 切换会话的收藏状态并返回新状态。
func (h *SessionHandler) ToggleFavorite(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionKey := c.Param("key")

	favorite, err := h.sessionService.ToggleFavorite(c.Request.Context(), user.ID, sessionKey)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    http.StatusNotFound,
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"data":    gin.H{"is_favorite": favorite},
		"message": "success",
	})
}

// DeleteSession 删除指定会话。仅剩一个会话时返回 409。
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionKey := c.Param("key")

	activeKey, err := h.sessionService.DeleteSession(c.Request.Context(), user.ID, sessionKey)
	if err != nil {
		if errors.Is(err, model.ErrLastSession) {
			c.JSON(http.StatusConflict, gin.H{
				"code":    http.StatusConflict,
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{
			"code":    http.StatusNotFound,
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"data":    gin.H{"active_session_key": activeKey},
		"message": "success",
	})
}

// GetHistory 返回会话的展示用历史记录。key 为空时返回活动会话的历史。
func (h *SessionHandler) GetHistory(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionKey := c.Query("session_key")

	history, err := h.sessionService.GetHistory(c.Request.Context(), user.ID, sessionKey)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    http.StatusNotFound,
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": history, "message": "success"})
}
