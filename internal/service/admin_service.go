package service

import (
	"errors"

	"cookie-ai-go/internal/model"
	"cookie-ai-go/internal/repository"
)

// 内置管理员账号，不允许被降级或删除。
const protectedAdminUsername = "admin"

// UserListResponse 定义了用户列表 API 的响应结构。
type UserListResponse struct {
	Content       []UserDetailResponse `json:"content"`
	TotalElements int64                `json:"totalElements"`
	TotalPages    int                  `json:"totalPages"`
	Size          int                  `json:"size"`
	Number        int                  `json:"number"`
}

// UserDetailResponse 定义了用户列表项的详细结构。
type UserDetailResponse struct {
	UserID    uint            `json:"userId"`
	Username  string          `json:"username"`
	Role      string          `json:"role"`
	IsAdmin   bool            `json:"isAdmin"`
	CreatedAt model.LocalTime `json:"createdAt"`
}

// AdminService 接口定义了所有管理员相关的业务操作。
type AdminService interface {
	ListUsers(page, size int) (*UserListResponse, error)
	ToggleAdminRole(operatorID, targetID uint) (*UserDetailResponse, error)
	DeleteUser(operatorID, targetID uint) error
}

// adminService 是 AdminService 接口的实现。
type adminService struct {
	userRepo repository.UserRepository
}

// NewAdminService 创建一个新的 AdminService 实例。
func NewAdminService(userRepo repository.UserRepository) AdminService {
	return &adminService{userRepo: userRepo}
}

func userDetail(u *model.User) *UserDetailResponse {
	return &UserDetailResponse{
		UserID:    u.ID,
		Username:  u.Username,
		Role:      u.Role,
		IsAdmin:   u.IsAdmin(),
		CreatedAt: model.LocalTime(u.CreatedAt),
	}
}

// ListUsers 以分页的形式返回用户列表。
func (s *adminService) ListUsers(page, size int) (*UserListResponse, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	offset := (page - 1) * size
	users, total, err := s.userRepo.FindWithPagination(offset, size)
	if err != nil {
		return nil, err
	}

	userResponses := make([]UserDetailResponse, 0, len(users))
	for _, u := range users {
		userResponses = append(userResponses, *userDetail(&u))
	}

	totalPages := 0
	if total > 0 && size > 0 {
		totalPages = (int(total) + size - 1) / size
	}

	return &UserListResponse{
		Content:       userResponses,
		TotalElements: total,
		TotalPages:    totalPages,
		Size:          size,
		Number:        page,
	}, nil
}

// ToggleAdminRole 在 USER 与 ADMIN 之间切换目标用户的角色。
// 内置 admin 账号受保护，不能被降级。
func (s *adminService) ToggleAdminRole(operatorID, targetID uint) (*UserDetailResponse, error) {
	user, err := s.userRepo.FindByID(targetID)
	if err != nil {
		return nil, errors.New("用户不存在")
	}
	if user.Username == protectedAdminUsername {
		return nil, errors.New("不能修改内置管理员的角色")
	}
	if operatorID == targetID {
		return nil, errors.New("不能修改自己的角色")
	}

	if user.IsAdmin() {
		user.Role = model.RoleNameUser
	} else {
		user.Role = model.RoleNameAdmin
	}
	if err := s.userRepo.Update(user); err != nil {
		return nil, err
	}
	return userDetail(user), nil
}

// DeleteUser 删除目标用户及其全部会话与设置。
// 内置 admin 账号与操作者本人不能被删除。
func (s *adminService) DeleteUser(operatorID, targetID uint) error {
	user, err := s.userRepo.FindByID(targetID)
	if err != nil {
		return errors.New("用户不存在")
	}
	if user.Username == protectedAdminUsername {
		return errors.New("不能删除内置管理员")
	}
	if operatorID == targetID {
		return errors.New("不能删除自己的账号")
	}
	return s.userRepo.Delete(targetID)
}
