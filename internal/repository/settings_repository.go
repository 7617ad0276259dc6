// Package repository 提供了数据访问层的实现。
package repository

import (
	"cookie-ai-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsRepository 定义了用户 API 设置的持久化操作。
type SettingsRepository interface {
	Get(userID uint) (*model.UserSettings, error)
	Save(settings *model.UserSettings) error
	Delete(userID uint) error
}

type settingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository 创建一个新的 SettingsRepository 实例。
func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

// Get 查询用户的设置记录，不存在时返回 gorm.ErrRecordNotFound。
func (r *settingsRepository) Get(userID uint) (*model.UserSettings, error) {
	var settings model.UserSettings
	err := r.db.First(&settings, "user_id = ?", userID).Error
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// Save 插入或覆盖用户的设置记录。
func (r *settingsRepository) Save(settings *model.UserSettings) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(settings).Error
}

// Delete 删除用户的设置记录，使其回退到系统默认值。
func (r *settingsRepository) Delete(userID uint) error {
	return r.db.Where("user_id = ?", userID).Delete(&model.UserSettings{}).Error
}
