// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 用户角色。
const (
	RoleNameUser  = "USER"
	RoleNameAdmin = "ADMIN"
)

// User 定义了 users 表的 ORM 模型。
type User struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"username"`
	Password  string    `gorm:"type:varchar(128);not null" json:"-"`
	Role      string    `gorm:"type:varchar(16);not null;default:USER" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}

// IsAdmin 判断用户是否为管理员。
func (u *User) IsAdmin() bool {
	return u.Role == RoleNameAdmin
}

// UserSettings 定义了 user_settings 表的 ORM 模型。
// 记录不存在时使用系统默认的 API 设置。
type UserSettings struct {
	UserID    uint      `gorm:"primaryKey" json:"userId"`
	APIKey    string    `gorm:"type:varchar(128)" json:"apiKey"`
	APIBase   string    `gorm:"type:varchar(255)" json:"apiBase"`
	Model     string    `gorm:"type:varchar(64)" json:"model"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (UserSettings) TableName() string {
	return "user_settings"
}
