// Package tasks defines the structure for events that are sent to Kafka.
package tasks

// ChatEvent 是每轮完成后发布的用量事件，供下游统计消费。
type ChatEvent struct {
	UserID        uint   `json:"user_id"`
	SessionKey    string `json:"session_key"`
	Model         string `json:"model"`
	PromptChars   int    `json:"prompt_chars"`
	ReplyChars    int    `json:"reply_chars"`
	SkippedChunks int    `json:"skipped_chunks"`
	Failed        bool   `json:"failed"`
	LatencyMs     int64  `json:"latency_ms"`
	CreatedAt     string `json:"created_at"`
}
