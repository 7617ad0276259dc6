// Package model 包含了应用的数据模型定义。
package model

import (
	"encoding/json"
	"errors"
	"time"
)

// 对话角色。
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// 历史记录条目的类型标签。
const (
	HistoryKindUserText      = "user_text"
	HistoryKindAssistantText = "assistant_text"
	HistoryKindImage         = "image"
	HistoryKindDocument      = "document"
	HistoryKindTable         = "table"
)

// 多模态内容分片的类型。
const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// ImageURL 是 image_url 分片的负载。
type ImageURL struct {
	URL string `json:"url"`
}

// ContentPart 是一条多模态消息中的单个分片。
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// Turn 代表发送给补全 API 的一条 role/content 消息。
// Content 与 Parts 互斥：带图片的消息使用 Parts，其余使用纯文本 Content。
type Turn struct {
	Role    string
	Content string
	Parts   []ContentPart
}

// turnJSON 是 Turn 的序列化形式，content 既可能是字符串也可能是分片数组。
type turnJSON struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// MarshalJSON 将 Turn 编码为补全 API 所期望的消息结构。
func (t Turn) MarshalJSON() ([]byte, error) {
	var content interface{} = t.Content
	if len(t.Parts) > 0 {
		content = t.Parts
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(turnJSON{Role: t.Role, Content: raw})
}

// UnmarshalJSON 解码字符串或分片数组两种 content 形式。
func (t *Turn) UnmarshalJSON(data []byte) error {
	var tj turnJSON
	if err := json.Unmarshal(data, &tj); err != nil {
		return err
	}
	t.Role = tj.Role
	t.Content = ""
	t.Parts = nil
	if len(tj.Content) == 0 {
		return nil
	}
	if tj.Content[0] == '[' {
		return json.Unmarshal(tj.Content, &t.Parts)
	}
	return json.Unmarshal(tj.Content, &t.Content)
}

// TableSummary 是表格型文件（csv/xlsx/xls）的结构化摘要。
type TableSummary struct {
	RowCount    int                    `json:"rowCount"`
	ColCount    int                    `json:"colCount"`
	ColumnNames []string               `json:"columnNames"`
	Dtypes      map[string]string      `json:"dtypes"`
	PreviewRows [][]string             `json:"previewRows"`
	Stats       map[string]ColumnStats `json:"stats"`
	NullCounts  map[string]int         `json:"nullCounts"`
}

// ColumnStats 是数值列的描述性统计。
type ColumnStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Q25   float64 `json:"q25"`
	Q50   float64 `json:"q50"`
	Q75   float64 `json:"q75"`
	Max   float64 `json:"max"`
}

// HistoryEntry 是展示用历史记录的带标签联合体。
// Kind 决定哪些字段有效，避免在渲染时检查字符串前缀或 map 形状。
type HistoryEntry struct {
	Kind      string        `json:"kind"`
	Text      string        `json:"text,omitempty"`      // user_text / assistant_text
	Filename  string        `json:"filename,omitempty"`  // image / document / table
	Data      string        `json:"data,omitempty"`      // image: base64 JPEG
	Content   string        `json:"content,omitempty"`   // document: 提取出的文本
	UserInput string        `json:"userInput,omitempty"` // 上传时附带的用户输入
	Table     *TableSummary `json:"table,omitempty"`     // table: 结构化摘要
}

// Session 代表一个独立持久化的会话线程。
type Session struct {
	Title       string         `json:"title"`
	ChatHistory []HistoryEntry `json:"chat_history"`
	ChatContext []Turn         `json:"chat_context"`
	Timestamp   LocalTime      `json:"timestamp"`
	IsFavorite  bool           `json:"is_favorite"`
}

// NewSession 创建一个带默认标题和当前时间戳的空会话。
func NewSession(title string) *Session {
	return &Session{
		Title:       title,
		ChatHistory: []HistoryEntry{},
		ChatContext: []Turn{},
		Timestamp:   NowLocalTime(),
		IsFavorite:  false,
	}
}

// Touch 将时间戳更新为当前时间。
func (s *Session) Touch() {
	s.Timestamp = NowLocalTime()
}

// ErrLastSession 在尝试删除用户仅剩的会话时返回。
var ErrLastSession = errors.New("无法删除最后一个会话")

// SessionRecord 定义了 sessions 表的 ORM 模型。
// 每行对应一个用户的一个会话，history/context 以 JSON 文本存储。
type SessionRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uint      `gorm:"index:idx_user_session,unique;not null" json:"userId"`
	SessionKey  string    `gorm:"index:idx_user_session,unique;type:varchar(64);not null" json:"sessionKey"`
	Title       string    `gorm:"type:varchar(128);not null" json:"title"`
	ChatHistory string    `gorm:"type:longtext" json:"-"`
	ChatContext string    `gorm:"type:longtext" json:"-"`
	Timestamp   string    `gorm:"type:varchar(32)" json:"timestamp"`
	IsFavorite  bool      `gorm:"not null;default:false" json:"isFavorite"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (SessionRecord) TableName() string {
	return "sessions"
}
