// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Tika     TikaConfig     `mapstructure:"tika"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// LLMConfig 存储调用聊天补全 API 的系统级默认设置。
// 用户可以在个人设置中覆盖 api_key / api_base / model。
type LLMConfig struct {
	DefaultAPIKey   string   `mapstructure:"default_api_key"`
	DefaultAPIBase  string   `mapstructure:"default_api_base"`
	DefaultModel    string   `mapstructure:"default_model"`
	AvailableModels []string `mapstructure:"available_models"`
	MaxTokens       int      `mapstructure:"max_tokens"`
	TimeoutSeconds  int      `mapstructure:"timeout_seconds"`
}

// ChatConfig 存储会话与上下文相关的配置。
type ChatConfig struct {
	SystemPrompt       string `mapstructure:"system_prompt"`
	MaxContextMessages int    `mapstructure:"max_context_messages"`
	DefaultTitle       string `mapstructure:"default_title"`
	TitleMaxRunes      int    `mapstructure:"title_max_runes"`
}

// UploadConfig 存储文件上传预处理相关的配置。
type UploadConfig struct {
	MaxFileSizeMB  int  `mapstructure:"max_file_size_mb"`
	ImageTargetMB  int  `mapstructure:"image_target_mb"`
	ArchiveToMinIO bool `mapstructure:"archive_to_minio"`
}

// TikaConfig 存储 Tika 服务器相关的配置，用于旧版二进制 .doc 的文本提取。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 关键项的默认值：配置文件缺项时服务仍以合理行为启动
	viper.SetDefault("chat.max_context_messages", 7)
	viper.SetDefault("chat.default_title", "新会话")
	viper.SetDefault("chat.title_max_runes", 20)
	viper.SetDefault("llm.max_tokens", 1000)
	viper.SetDefault("llm.timeout_seconds", 120)
	viper.SetDefault("upload.max_file_size_mb", 50)
	viper.SetDefault("upload.image_target_mb", 2)

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}
