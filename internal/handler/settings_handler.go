package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cookie-ai-go/internal/service"
	"cookie-ai-go/pkg/log"
)

// SettingsHandler 负责用户 API 配置相关的请求。
type SettingsHandler struct {
	settingsService service.SettingsService
}

// NewSettingsHandler 创建一个新的 SettingsHandler 实例。
func NewSettingsHandler(settingsService service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

// GetSettings 返回当前用户的有效配置，API Key 已脱敏。
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	view, err := h.settingsService.GetSettings(user.ID)
	if err != nil {
		log.Errorf("GetSettings: failed for user %d, error: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "获取设置失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": view, "message": "success"})
}

// ListModels 返回可选的模型列表。
func (h *SettingsHandler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"data":    gin.H{"models": h.settingsService.AvailableModels()},
		"message": "success",
	})
}

// UpdateSettings 更新当前用户的 API 配置。
// 字段留空表示保持现状，传 "默认" 表示回退到服务端默认值。
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req service.SettingsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载",
		})
		return
	}

	view, err := h.settingsService.UpdateSettings(user.ID, req)
	if err != nil {
		log.Errorf("UpdateSettings: failed for user %d, error: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "更新设置失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": view, "message": "设置已更新"})
}

// ResetSettings 清除当前用户的全部覆盖项。
func (h *SettingsHandler) ResetSettings(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.settingsService.ResetSettings(user.ID); err != nil {
		log.Errorf("ResetSettings: failed for user %d, error: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "重置设置失败",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "设置已重置为默认值"})
}
