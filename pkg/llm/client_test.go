package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookie-ai-go/internal/config"
	"cookie-ai-go/internal/model"
)

// recordWriter 收集所有分块与快照。
type recordWriter struct {
	chunks    []string
	snapshots []string
}

func (w *recordWriter) WriteChunk(chunk, snapshot string) error {
	w.chunks = append(w.chunks, chunk)
	w.snapshots = append(w.snapshots, snapshot)
	return nil
}

func sseLine(content string) string {
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%q}}]}`+"\n\n", content)
}

func newSSEServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			_, _ = fmt.Fprint(w, line)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func testSettings(baseURL string) Settings {
	return Settings{APIKey: "sk-test", APIBase: baseURL, Model: "test-model"}
}

func TestStreamCompletionAssemblesChunks(t *testing.T) {
	server := newSSEServer(t, sseLine("你好"), sseLine("，世界"))
	defer server.Close()

	client := NewClient(config.LLMConfig{MaxTokens: 100, TimeoutSeconds: 5})
	writer := &recordWriter{}
	result := client.StreamCompletion(context.Background(), []model.Turn{
		{Role: model.RoleUser, Content: "hi"},
	}, testSettings(server.URL), writer)

	assert.False(t, result.Failed)
	assert.Equal(t, 0, result.SkippedChunks)
	assert.Equal(t, "你好，世界", result.Content)
	assert.Equal(t, []string{"你好", "，世界"}, writer.chunks)
	// 快照是逐步累积的完整缓冲
	assert.Equal(t, []string{"你好", "你好，世界"}, writer.snapshots)
}

func TestStreamCompletionSkipsMalformedChunks(t *testing.T) {
	server := newSSEServer(t,
		sseLine("前半"),
		"data: {not valid json}\n\n",
		"data: {\"choices\":[]}\n\n",
		": keepalive comment\n\n",
		sseLine("后半"),
	)
	defer server.Close()

	client := NewClient(config.LLMConfig{})
	writer := &recordWriter{}
	result := client.StreamCompletion(context.Background(), []model.Turn{
		{Role: model.RoleUser, Content: "hi"},
	}, testSettings(server.URL), writer)

	assert.False(t, result.Failed)
	assert.Equal(t, "前半后半", result.Content)
	// 坏 JSON 和空 choices 各计一次，注释行不计
	assert.Equal(t, 2, result.SkippedChunks)
}

func TestStreamCompletionNormalizesLaTeXSnapshots(t *testing.T) {
	server := newSSEServer(t, sseLine(`结果 \(x`), sseLine(`\) 完毕`))
	defer server.Close()

	client := NewClient(config.LLMConfig{})
	writer := &recordWriter{}
	result := client.StreamCompletion(context.Background(), []model.Turn{
		{Role: model.RoleUser, Content: "hi"},
	}, testSettings(server.URL), writer)

	require.Len(t, writer.snapshots, 2)
	assert.Equal(t, "结果 $$x", writer.snapshots[0])
	assert.Equal(t, "结果 $$x$$ 完毕", writer.snapshots[1])
	assert.Equal(t, "结果 $$x$$ 完毕", result.Content)
}

func TestStreamCompletionNon200DegradesToErrorResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(config.LLMConfig{})
	result := client.StreamCompletion(context.Background(), []model.Turn{
		{Role: model.RoleUser, Content: "hi"},
	}, testSettings(server.URL), &recordWriter{})

	assert.True(t, result.Failed)
	assert.True(t, strings.HasPrefix(result.Content, "API请求错误: "))
	assert.Contains(t, result.Content, "invalid api key")
}

func TestStreamCompletionConnectionRefusedDegrades(t *testing.T) {
	client := NewClient(config.LLMConfig{TimeoutSeconds: 1})
	result := client.StreamCompletion(context.Background(), []model.Turn{
		{Role: model.RoleUser, Content: "hi"},
	}, testSettings("http://127.0.0.1:1"), &recordWriter{})

	assert.True(t, result.Failed)
	assert.True(t, strings.HasPrefix(result.Content, "API请求错误: "))
}

func TestStreamCompletionTrailingSlashInBase(t *testing.T) {
	server := newSSEServer(t, sseLine("ok"))
	defer server.Close()

	client := NewClient(config.LLMConfig{})
	result := client.StreamCompletion(context.Background(), []model.Turn{
		{Role: model.RoleUser, Content: "hi"},
	}, testSettings(server.URL+"/"), &recordWriter{})

	assert.False(t, result.Failed)
	assert.Equal(t, "ok", result.Content)
}
