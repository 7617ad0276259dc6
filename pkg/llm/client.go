// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cookie-ai-go/internal/config"
	"cookie-ai-go/internal/model"
)

// Settings 是单次调用使用的凭证与模型，来自用户设置或系统默认值。
type Settings struct {
	APIKey  string
	APIBase string
	Model   string
}

// ChunkWriter 接收流式增量。chunk 是本次新到达的片段，
// snapshot 是经过 LaTeX 规范化的完整缓冲快照，可直接用于实时展示。
type ChunkWriter interface {
	WriteChunk(chunk, snapshot string) error
}

// StreamResult 是一次流式补全的最终结果。
// 传输层失败不抛出：Failed 置位，Content 为面向用户的错误字符串。
type StreamResult struct {
	Content       string
	SkippedChunks int
	Failed        bool
}

// Client defines the interface for a chat-completion client.
type Client interface {
	StreamCompletion(ctx context.Context, messages []model.Turn, settings Settings, writer ChunkWriter) StreamResult
}

type streamClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new chat-completion client.
func NewClient(cfg config.LLMConfig) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if cfg.TimeoutSeconds == 0 {
		timeout = 120 * time.Second
	}
	return &streamClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model     string       `json:"model"`
	Messages  []model.Turn `json:"messages"`
	MaxTokens int          `json:"max_tokens"`
	Stream    bool         `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// StreamCompletion 调用 {api_base}/v1/chat/completions 并以流式方式组装完整回复。
// 单个分块解析失败只跳过并计数，流继续；传输层失败降级为错误字符串结果。
func (c *streamClient) StreamCompletion(ctx context.Context, messages []model.Turn, settings Settings, writer ChunkWriter) StreamResult {
	maxTokens := c.cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1000
	}
	reqBody := chatRequest{
		Model:     settings.Model,
		Messages:  messages,
		MaxTokens: maxTokens,
		Stream:    true,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return failedResult(err)
	}

	url := strings.TrimSuffix(settings.APIBase, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBytes))
	if err != nil {
		return failedResult(err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+settings.APIKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return failedResult(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return failedResult(fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes)))
	}

	var full strings.Builder
	skipped := 0

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			// 流中途断开：已累积的内容仍然有效，按降级处理补上错误说明
			if full.Len() == 0 {
				return failedResult(err)
			}
			break
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			// SSE 注释或心跳行，忽略
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if strings.TrimSpace(data) == "[DONE]" {
			break
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			skipped++
			continue
		}
		if len(chunk.Choices) == 0 {
			skipped++
			continue
		}

		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		full.WriteString(content)
		if writer != nil {
			if err := writer.WriteChunk(content, NormalizeLaTeX(full.String())); err != nil {
				// 下游写入失败（如连接关闭）终止流，但保留已组装内容
				break
			}
		}
	}

	return StreamResult{
		Content:       NormalizeLaTeX(full.String()),
		SkippedChunks: skipped,
	}
}

// failedResult 将传输层错误转换为降级结果，错误字符串将被当作助手回复存储。
func failedResult(err error) StreamResult {
	return StreamResult{
		Content: fmt.Sprintf("API请求错误: %v", err),
		Failed:  true,
	}
}
