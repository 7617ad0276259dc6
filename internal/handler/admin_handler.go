// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cookie-ai-go/internal/service"
	"cookie-ai-go/pkg/log"
)

// AdminHandler 负责处理所有与管理员相关的 API 请求。
type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// ListUsers 处理分页获取用户列表的请求。
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", "20"))
	if err != nil || size < 1 {
		size = 20
	}

	users, err := h.adminService.ListUsers(page, size)
	if err != nil {
		log.Error("ListUsers: Failed to list users", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取用户列表失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": users})
}

// targetUserID 解析路径参数中的目标用户 ID。
func targetUserID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的用户 ID", "data": nil})
		return 0, false
	}
	return uint(id), true
}

// ToggleAdminRole 处理切换目标用户管理员角色的请求。
func (h *AdminHandler) ToggleAdminRole(c *gin.Context) {
	operator, ok := currentUser(c)
	if !ok {
		return
	}
	targetID, ok := targetUserID(c)
	if !ok {
		return
	}

	detail, err := h.adminService.ToggleAdminRole(operator.ID, targetID)
	if err != nil {
		log.Warnf("ToggleAdminRole: failed for target %d, error: %v", targetID, err)
		c.JSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": err.Error(), "data": nil})
		return
	}

	log.Infof("Admin '%s' toggled role of user %d to %s", operator.Username, targetID, detail.Role)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": detail})
}

// DeleteUser 处理删除目标用户的请求，会级联删除其会话和设置。
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	operator, ok := currentUser(c)
	if !ok {
		return
	}
	targetID, ok := targetUserID(c)
	if !ok {
		return
	}

	if err := h.adminService.DeleteUser(operator.ID, targetID); err != nil {
		log.Warnf("DeleteUser: failed for target %d, error: %v", targetID, err)
		c.JSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": err.Error(), "data": nil})
		return
	}

	log.Infof("Admin '%s' deleted user %d", operator.Username, targetID)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "用户已删除", "data": nil})
}
