package service

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"cookie-ai-go/internal/config"
	"cookie-ai-go/internal/model"
	"cookie-ai-go/internal/repository"
	"cookie-ai-go/pkg/llm"
)

// defaultSentinel 是前端用来表示"回退到服务端默认值"的占位串。
const defaultSentinel = "默认"

// SettingsView 是返回给前端的用户设置，API Key 已脱敏。
type SettingsView struct {
	APIKeyMasked string `json:"api_key_masked"`
	APIBase      string `json:"api_base"`
	Model        string `json:"model"`
	IsDefault    bool   `json:"is_default"`
}

// SettingsUpdate 是设置更新请求，空串表示该项不变。
type SettingsUpdate struct {
	APIKey  string `json:"api_key"`
	APIBase string `json:"api_base"`
	Model   string `json:"model"`
}

// SettingsService 管理用户的补全 API 配置，读取时与服务端默认值合并。
type SettingsService interface {
	GetSettings(userID uint) (*SettingsView, error)
	// GetEffective 返回调用补全 API 实际使用的配置：
	// 用户覆盖项优先，未设置的字段落到服务端默认值。
	GetEffective(userID uint) (llm.Settings, error)
	UpdateSettings(userID uint, update SettingsUpdate) (*SettingsView, error)
	ResetSettings(userID uint) error
	AvailableModels() []string
}

type settingsService struct {
	settingsRepo repository.SettingsRepository
	llmCfg       config.LLMConfig
}

// NewSettingsService 创建设置服务实例。
func NewSettingsService(settingsRepo repository.SettingsRepository, llmCfg config.LLMConfig) SettingsService {
	return &settingsService{settingsRepo: settingsRepo, llmCfg: llmCfg}
}

// maskAPIKey 只暴露 key 的前 4 位与后 4 位。
func maskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", 6) + key[len(key)-4:]
}

func (s *settingsService) stored(userID uint) (*model.UserSettings, error) {
	settings, err := s.settingsRepo.Get(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return settings, nil
}

func (s *settingsService) GetSettings(userID uint) (*SettingsView, error) {
	effective, err := s.GetEffective(userID)
	if err != nil {
		return nil, err
	}
	stored, err := s.stored(userID)
	if err != nil {
		return nil, err
	}
	return &SettingsView{
		APIKeyMasked: maskAPIKey(effective.APIKey),
		APIBase:      effective.APIBase,
		Model:        effective.Model,
		IsDefault:    stored == nil,
	}, nil
}

func (s *settingsService) GetEffective(userID uint) (llm.Settings, error) {
	effective := llm.Settings{
		APIKey:  s.llmCfg.DefaultAPIKey,
		APIBase: s.llmCfg.DefaultAPIBase,
		Model:   s.llmCfg.DefaultModel,
	}
	stored, err := s.stored(userID)
	if err != nil {
		return llm.Settings{}, err
	}
	if stored == nil {
		return effective, nil
	}
	if stored.APIKey != "" {
		effective.APIKey = stored.APIKey
	}
	if stored.APIBase != "" {
		effective.APIBase = stored.APIBase
	}
	if stored.Model != "" {
		effective.Model = stored.Model
	}
	return effective, nil
}

func (s *settingsService) UpdateSettings(userID uint, update SettingsUpdate) (*SettingsView, error) {
	stored, err := s.stored(userID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		stored = &model.UserSettings{UserID: userID}
	}

	// "默认" 显式清空覆盖项，空串保持现状。
	switch update.APIKey {
	case "":
	case defaultSentinel:
		stored.APIKey = ""
	default:
		stored.APIKey = update.APIKey
	}
	switch update.APIBase {
	case "":
	case defaultSentinel:
		stored.APIBase = ""
	default:
		stored.APIBase = strings.TrimRight(update.APIBase, "/")
	}
	switch update.Model {
	case "":
	case defaultSentinel:
		stored.Model = ""
	default:
		stored.Model = update.Model
	}

	if err := s.settingsRepo.Save(stored); err != nil {
		return nil, err
	}
	return s.GetSettings(userID)
}

func (s *settingsService) ResetSettings(userID uint) error {
	return s.settingsRepo.Delete(userID)
}

func (s *settingsService) AvailableModels() []string {
	models := make([]string, len(s.llmCfg.AvailableModels))
	copy(models, s.llmCfg.AvailableModels)
	return models
}
