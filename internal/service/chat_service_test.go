package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookie-ai-go/internal/config"
	"cookie-ai-go/internal/model"
	"cookie-ai-go/internal/pipeline"
	"cookie-ai-go/pkg/llm"
	"cookie-ai-go/pkg/tika"
)

// fakeLLMClient 按固定分块回放回复，并记录收到的消息。
type fakeLLMClient struct {
	chunks   []string
	result   llm.StreamResult
	lastSent []model.Turn
}

func (c *fakeLLMClient) StreamCompletion(_ context.Context, messages []model.Turn, _ llm.Settings, writer llm.ChunkWriter) llm.StreamResult {
	c.lastSent = messages
	var snapshot strings.Builder
	for _, chunk := range c.chunks {
		snapshot.WriteString(chunk)
		_ = writer.WriteChunk(chunk, llm.NormalizeLaTeX(snapshot.String()))
	}
	return c.result
}

// fakeSettingsService 返回固定的补全配置。
type fakeSettingsService struct{}

func (fakeSettingsService) GetSettings(uint) (*SettingsView, error) { return &SettingsView{}, nil }
func (fakeSettingsService) GetEffective(uint) (llm.Settings, error) {
	return llm.Settings{APIKey: "sk-test", APIBase: "https://api.test", Model: "test-model"}, nil
}
func (fakeSettingsService) UpdateSettings(uint, SettingsUpdate) (*SettingsView, error) {
	return &SettingsView{}, nil
}
func (fakeSettingsService) ResetSettings(uint) error { return nil }
func (fakeSettingsService) AvailableModels() []string {
	return []string{"test-model"}
}

// collectWriter 收集下发的分块。
type collectWriter struct {
	chunks    []string
	snapshots []string
}

func (w *collectWriter) WriteChunk(chunk, snapshot string) error {
	w.chunks = append(w.chunks, chunk)
	w.snapshots = append(w.snapshots, snapshot)
	return nil
}

func newTestChatService(llmClient llm.Client) (ChatService, *fakeSessionRepo) {
	sessionRepo := newFakeSessionRepo()
	activeRepo := newFakeActiveRepo()
	chatCfg := testChatConfig()
	uploadCfg := config.UploadConfig{MaxFileSizeMB: 1, ImageTargetMB: 2}
	sessionService := NewSessionService(sessionRepo, activeRepo, chatCfg)
	ingestor := pipeline.NewIngestor(tika.NewClient(config.TikaConfig{}), uploadCfg)
	svc := NewChatService(sessionService, fakeSettingsService{}, ingestor, llmClient, chatCfg, uploadCfg)
	return svc, sessionRepo
}

func userSession(t *testing.T, repo *fakeSessionRepo, userID uint, key string) *model.Session {
	t.Helper()
	session, ok := repo.store[userID][key]
	require.True(t, ok, "session %s not found", key)
	return session
}

func TestStreamMessageAppendsLockstepTurns(t *testing.T) {
	client := &fakeLLMClient{
		chunks: []string{"你好", "，我是助手"},
		result: llm.StreamResult{Content: "你好，我是助手"},
	}
	svc, repo := newTestChatService(client)
	writer := &collectWriter{}

	result, err := svc.StreamMessage(context.Background(), 1, ChatRequest{Message: "你好"}, writer)
	require.NoError(t, err)
	assert.Equal(t, "你好，我是助手", result.Reply)
	assert.False(t, result.Failed)
	assert.Equal(t, []string{"你好", "，我是助手"}, writer.chunks)

	session := userSession(t, repo, 1, result.SessionKey)
	require.Len(t, session.ChatHistory, 2)
	require.Len(t, session.ChatContext, 2)
	assert.Equal(t, model.HistoryKindUserText, session.ChatHistory[0].Kind)
	assert.Equal(t, model.HistoryKindAssistantText, session.ChatHistory[1].Kind)
	assert.Equal(t, model.RoleUser, session.ChatContext[0].Role)
	assert.Equal(t, model.RoleAssistant, session.ChatContext[1].Role)
	assert.Equal(t, "你好，我是助手", session.ChatContext[1].Content)
}

func TestStreamMessageSendsSystemPromptFirst(t *testing.T) {
	client := &fakeLLMClient{result: llm.StreamResult{Content: "ok"}}
	svc, _ := newTestChatService(client)

	_, err := svc.StreamMessage(context.Background(), 1, ChatRequest{Message: "hi"}, &collectWriter{})
	require.NoError(t, err)

	require.NotEmpty(t, client.lastSent)
	assert.Equal(t, model.RoleSystem, client.lastSent[0].Role)
	assert.Equal(t, "你是测试助手", client.lastSent[0].Content)
}

func TestTitleFromFirstMessageTruncated(t *testing.T) {
	client := &fakeLLMClient{result: llm.StreamResult{Content: "ok"}}
	svc, repo := newTestChatService(client)

	input := "Explain quantum computing in simple terms please"
	result, err := svc.StreamMessage(context.Background(), 1, ChatRequest{Message: input}, &collectWriter{})
	require.NoError(t, err)

	session := userSession(t, repo, 1, result.SessionKey)
	assert.Equal(t, string([]rune(input)[:20])+"…", session.Title)
}

func TestTitleShortMessageKeptWhole(t *testing.T) {
	client := &fakeLLMClient{result: llm.StreamResult{Content: "ok"}}
	svc, repo := newTestChatService(client)

	result, err := svc.StreamMessage(context.Background(), 1, ChatRequest{Message: "你好"}, &collectWriter{})
	require.NoError(t, err)

	session := userSession(t, repo, 1, result.SessionKey)
	assert.Equal(t, "你好", session.Title)
}

func TestTitleUnchangedAfterFirstMessage(t *testing.T) {
	client := &fakeLLMClient{result: llm.StreamResult{Content: "ok"}}
	svc, repo := newTestChatService(client)
	ctx := context.Background()

	result, err := svc.StreamMessage(ctx, 1, ChatRequest{Message: "第一条消息"}, &collectWriter{})
	require.NoError(t, err)

	_, err = svc.StreamMessage(ctx, 1, ChatRequest{Message: "第二条完全不同的消息"}, &collectWriter{})
	require.NoError(t, err)

	session := userSession(t, repo, 1, result.SessionKey)
	assert.Equal(t, "第一条消息", session.Title)
}

func TestStreamMessageStoresErrorReply(t *testing.T) {
	client := &fakeLLMClient{
		result: llm.StreamResult{Content: "API请求错误: connection refused", Failed: true},
	}
	svc, repo := newTestChatService(client)

	result, err := svc.StreamMessage(context.Background(), 1, ChatRequest{Message: "hi"}, &collectWriter{})
	require.NoError(t, err)
	assert.True(t, result.Failed)

	// 错误文本同样作为助手回复入库
	session := userSession(t, repo, 1, result.SessionKey)
	require.Len(t, session.ChatContext, 2)
	assert.Equal(t, "API请求错误: connection refused", session.ChatContext[1].Content)
}

func TestStreamMessageEmptyRequestRejected(t *testing.T) {
	svc, _ := newTestChatService(&fakeLLMClient{})

	_, err := svc.StreamMessage(context.Background(), 1, ChatRequest{}, &collectWriter{})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestStreamMessageOversizedFileLeavesSessionUntouched(t *testing.T) {
	client := &fakeLLMClient{result: llm.StreamResult{Content: "ok"}}
	svc, repo := newTestChatService(client)
	ctx := context.Background()

	// 先跑一轮正常对话，建立基线
	result, err := svc.StreamMessage(ctx, 1, ChatRequest{Message: "你好"}, &collectWriter{})
	require.NoError(t, err)
	before := len(userSession(t, repo, 1, result.SessionKey).ChatContext)

	// 超过 1MB 上限的文件
	big := pipeline.File{Name: "big.csv", Data: make([]byte, 2*1024*1024)}
	_, err = svc.StreamMessage(ctx, 1, ChatRequest{Message: "分析一下", File: &big}, &collectWriter{})
	require.Error(t, err)

	// 会话没有留下半截状态
	after := len(userSession(t, repo, 1, result.SessionKey).ChatContext)
	assert.Equal(t, before, after)
}

func TestStreamMessageUnsupportedFileRejectedWithoutMutation(t *testing.T) {
	client := &fakeLLMClient{result: llm.StreamResult{Content: "ok"}}
	svc, repo := newTestChatService(client)
	ctx := context.Background()

	result, err := svc.StreamMessage(ctx, 1, ChatRequest{Message: "你好"}, &collectWriter{})
	require.NoError(t, err)
	before := len(userSession(t, repo, 1, result.SessionKey).ChatContext)

	blob := pipeline.File{Name: "data.bin", Data: []byte{0x00, 0x01}}
	_, err = svc.StreamMessage(ctx, 1, ChatRequest{File: &blob}, &collectWriter{})
	require.Error(t, err)

	after := len(userSession(t, repo, 1, result.SessionKey).ChatContext)
	assert.Equal(t, before, after)
}

func TestStreamMessageCSVProducesTableTurn(t *testing.T) {
	client := &fakeLLMClient{result: llm.StreamResult{Content: "ok"}}
	svc, repo := newTestChatService(client)

	csvData := []byte("name,score\nalice,90\nbob,85\n")
	file := pipeline.File{Name: "scores.csv", Data: csvData}
	result, err := svc.StreamMessage(context.Background(), 1, ChatRequest{File: &file}, &collectWriter{})
	require.NoError(t, err)

	session := userSession(t, repo, 1, result.SessionKey)
	require.Len(t, session.ChatHistory, 2)
	entry := session.ChatHistory[0]
	assert.Equal(t, model.HistoryKindTable, entry.Kind)
	assert.Equal(t, "scores.csv", entry.Filename)
	require.NotNil(t, entry.Table)
	assert.Equal(t, 2, entry.Table.RowCount)

	// 无用户提问时使用默认提示语
	userTurn := session.ChatContext[0]
	assert.Contains(t, userTurn.Content, "请分析以下文档内容")
	assert.Contains(t, userTurn.Content, defaultDocumentQuestion)

	// 标题回退到文件名
	assert.Equal(t, "scores.csv", session.Title)
}

func TestCountPromptCharsIncludesMultimodalText(t *testing.T) {
	turns := []model.Turn{
		{Role: model.RoleSystem, Content: "你是助手"},
		{Role: model.RoleUser, Parts: []model.ContentPart{
			{Type: model.PartTypeText, Text: "请分析这张图片"},
			{Type: model.PartTypeImageURL, ImageURL: &model.ImageURL{URL: "data:image/jpeg;base64,AAAA"}},
		}},
	}

	// 图片分片不计入，只统计文本：4 + 7 个字符
	assert.Equal(t, 11, countPromptChars(turns))
}

func TestStreamMessageCodeFileVerbatim(t *testing.T) {
	client := &fakeLLMClient{result: llm.StreamResult{Content: "ok"}}
	svc, repo := newTestChatService(client)

	src := "def main():\n    print('hi')\n"
	file := pipeline.File{Name: "main.py", Data: []byte(src)}
	result, err := svc.StreamMessage(context.Background(), 1, ChatRequest{Message: "解释这段代码", File: &file}, &collectWriter{})
	require.NoError(t, err)

	session := userSession(t, repo, 1, result.SessionKey)
	entry := session.ChatHistory[0]
	assert.Equal(t, model.HistoryKindDocument, entry.Kind)
	assert.Equal(t, src, entry.Content)
	assert.Contains(t, session.ChatContext[0].Content, src)
	assert.Contains(t, session.ChatContext[0].Content, "解释这段代码")
}
