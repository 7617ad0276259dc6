package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"cookie-ai-go/internal/config"
	"cookie-ai-go/internal/model"
	"cookie-ai-go/internal/pipeline"
	"cookie-ai-go/pkg/kafka"
	"cookie-ai-go/pkg/llm"
	"cookie-ai-go/pkg/storage"
	"cookie-ai-go/pkg/tasks"
)

// 上传文件缺少用户提问时使用的默认提示语。
const (
	defaultImageQuestion    = "请分析这张图片"
	defaultDocumentQuestion = "请总结文档的主要内容，并提供关键信息分析。"
)

// ErrEmptyMessage 在请求既没有文本也没有文件时返回。
var ErrEmptyMessage = errors.New("消息内容不能为空")

// ChatRequest 是一轮对话的输入。Message 与 File 至少要有一个。
type ChatRequest struct {
	SessionKey string
	Message    string
	File       *pipeline.File
}

// ChatResult 汇总了一轮对话的最终状态。
type ChatResult struct {
	SessionKey    string `json:"session_key"`
	Reply         string `json:"reply"`
	SkippedChunks int    `json:"skipped_chunks"`
	Failed        bool   `json:"failed"`
}

// ChatService 协调一轮完整的对话：文件摄取、上下文裁剪、流式补全与持久化。
type ChatService interface {
	StreamMessage(ctx context.Context, userID uint, req ChatRequest, writer llm.ChunkWriter) (*ChatResult, error)
}

type chatService struct {
	sessionService  SessionService
	settingsService SettingsService
	ingestor        *pipeline.Ingestor
	llmClient       llm.Client
	chatCfg         config.ChatConfig
	uploadCfg       config.UploadConfig
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(sessionService SessionService, settingsService SettingsService, ingestor *pipeline.Ingestor, llmClient llm.Client, chatCfg config.ChatConfig, uploadCfg config.UploadConfig) ChatService {
	return &chatService{
		sessionService:  sessionService,
		settingsService: settingsService,
		ingestor:        ingestor,
		llmClient:       llmClient,
		chatCfg:         chatCfg,
		uploadCfg:       uploadCfg,
	}
}

// StreamMessage 执行一轮对话。流程为：先摄取文件（失败则会话不做任何修改），
// 在用户锁内追加用户侧消息并确定标题，裁剪上下文后调用补全 API，
// 最后把助手回复（或错误文本）追加进会话并整体保存。
func (s *chatService) StreamMessage(ctx context.Context, userID uint, req ChatRequest, writer llm.ChunkWriter) (*ChatResult, error) {
	if req.Message == "" && req.File == nil {
		return nil, ErrEmptyMessage
	}

	// 摄取先于任何会话修改，保证失败的上传不留下半截状态。
	var artifact *pipeline.Artifact
	if req.File != nil {
		var err error
		artifact, err = s.ingestor.Ingest(ctx, *req.File)
		if err != nil {
			return nil, err
		}
		if artifact == nil {
			return nil, fmt.Errorf("不支持的文件类型: %s", req.File.Name)
		}
	}

	settings, err := s.settingsService.GetEffective(userID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result := &ChatResult{}
	var promptChars int

	err = s.sessionService.Mutate(ctx, userID, func(sessions map[string]*model.Session, activeKey string) (string, error) {
		sessionKey := req.SessionKey
		if sessionKey == "" {
			sessionKey = activeKey
		}
		session, ok := sessions[sessionKey]
		if !ok {
			return "", fmt.Errorf("会话不存在: %s", sessionKey)
		}
		result.SessionKey = sessionKey

		titleSource := s.appendUserTurns(session, req, artifact)
		s.applyTitle(session, titleSource)

		turns := s.buildPromptTurns(session)
		promptChars = countPromptChars(turns)

		streamResult := s.llmClient.StreamCompletion(ctx, turns, settings, writer)
		result.Reply = streamResult.Content
		result.SkippedChunks = streamResult.SkippedChunks
		result.Failed = streamResult.Failed

		// 错误文本同样作为助手回复入库，刷新页面后用户仍能看到失败原因。
		session.ChatHistory = append(session.ChatHistory, model.HistoryEntry{
			Kind: model.HistoryKindAssistantText,
			Text: streamResult.Content,
		})
		session.ChatContext = append(session.ChatContext, model.Turn{
			Role:    model.RoleAssistant,
			Content: streamResult.Content,
		})
		session.Touch()
		return sessionKey, nil
	})
	if err != nil {
		return nil, err
	}

	s.afterChat(userID, req, settings, result, promptChars, time.Since(started))
	return result, nil
}

// appendUserTurns 把用户文本和文件产物同步追加到历史与上下文，
// 返回用于生成标题的文本（优先用户输入，其次文件名）。
func (s *chatService) appendUserTurns(session *model.Session, req ChatRequest, artifact *pipeline.Artifact) string {
	titleSource := req.Message

	if req.Message != "" && artifact == nil {
		session.ChatHistory = append(session.ChatHistory, model.HistoryEntry{
			Kind: model.HistoryKindUserText,
			Text: req.Message,
		})
		session.ChatContext = append(session.ChatContext, model.Turn{
			Role:    model.RoleUser,
			Content: req.Message,
		})
		return titleSource
	}

	if artifact == nil {
		return titleSource
	}

	question := req.Message
	switch artifact.Kind {
	case pipeline.KindImage:
		if question == "" {
			question = defaultImageQuestion
		}
		session.ChatHistory = append(session.ChatHistory, model.HistoryEntry{
			Kind:      model.HistoryKindImage,
			Filename:  req.File.Name,
			Data:      artifact.Base64,
			UserInput: req.Message,
		})
		session.ChatContext = append(session.ChatContext, model.Turn{
			Role: model.RoleUser,
			Parts: []model.ContentPart{
				{Type: model.PartTypeText, Text: question},
				{Type: model.PartTypeImageURL, ImageURL: &model.ImageURL{
					URL: "data:image/jpeg;base64," + artifact.Base64,
				}},
			},
		})
	case pipeline.KindTable:
		if question == "" {
			question = defaultDocumentQuestion
		}
		session.ChatHistory = append(session.ChatHistory, model.HistoryEntry{
			Kind:      model.HistoryKindTable,
			Filename:  req.File.Name,
			Table:     artifact.Table,
			UserInput: req.Message,
		})
		session.ChatContext = append(session.ChatContext, model.Turn{
			Role:    model.RoleUser,
			Content: fmt.Sprintf("请分析以下文档内容：\n\n%s\n\n%s", formatTableSummary(artifact.Table), question),
		})
	default:
		if question == "" {
			question = defaultDocumentQuestion
		}
		session.ChatHistory = append(session.ChatHistory, model.HistoryEntry{
			Kind:      model.HistoryKindDocument,
			Filename:  req.File.Name,
			Content:   artifact.Content,
			UserInput: req.Message,
		})
		session.ChatContext = append(session.ChatContext, model.Turn{
			Role:    model.RoleUser,
			Content: fmt.Sprintf("请分析以下文档内容：\n\n%s\n\n%s", artifact.Content, question),
		})
	}

	if titleSource == "" {
		titleSource = req.File.Name
	}
	return titleSource
}

// applyTitle 在会话的首条消息上生成标题：取输入的前 N 个字符，超长加省略号。
func (s *chatService) applyTitle(session *model.Session, input string) {
	if input == "" || len(session.ChatHistory) != 1 {
		return
	}
	maxRunes := s.chatCfg.TitleMaxRunes
	if maxRunes <= 0 {
		maxRunes = 20
	}
	runes := []rune(input)
	if len(runes) > maxRunes {
		session.Title = string(runes[:maxRunes]) + "…"
	} else {
		session.Title = input
	}
}

// buildPromptTurns 裁剪上下文并保证 system 提示词在首位。
func (s *chatService) buildPromptTurns(session *model.Session) []model.Turn {
	turns := ReduceContext(session.ChatContext, s.chatCfg.MaxContextMessages)
	if s.chatCfg.SystemPrompt == "" {
		return turns
	}
	if len(turns) > 0 && turns[0].Role == model.RoleSystem {
		return turns
	}
	withSystem := make([]model.Turn, 0, len(turns)+1)
	withSystem = append(withSystem, model.Turn{Role: model.RoleSystem, Content: s.chatCfg.SystemPrompt})
	withSystem = append(withSystem, turns...)
	return withSystem
}

// countPromptChars 统计提示词的文本字符数。
// 多模态消息的文本在 Parts 里，图片分片不计入。
func countPromptChars(turns []model.Turn) int {
	total := 0
	for _, turn := range turns {
		total += utf8.RuneCountInString(turn.Content)
		for _, part := range turn.Parts {
			total += utf8.RuneCountInString(part.Text)
		}
	}
	return total
}

// formatTableSummary 把结构化表格摘要渲染为提示词文本。
func formatTableSummary(table *model.TableSummary) string {
	if table == nil {
		return ""
	}
	text := fmt.Sprintf("表格共 %d 行 %d 列。\n列名: %v\n", table.RowCount, table.ColCount, table.ColumnNames)
	if len(table.Dtypes) > 0 {
		text += fmt.Sprintf("列类型: %v\n", table.Dtypes)
	}
	if len(table.PreviewRows) > 0 {
		text += "前几行数据:\n"
		for _, row := range table.PreviewRows {
			text += fmt.Sprintf("%v\n", row)
		}
	}
	if len(table.Stats) > 0 {
		text += "数值列统计:\n"
		for _, name := range table.ColumnNames {
			if stats, ok := table.Stats[name]; ok {
				text += fmt.Sprintf("%s: count=%d mean=%.4f std=%.4f min=%.4f q25=%.4f q50=%.4f q75=%.4f max=%.4f\n",
					name, stats.Count, stats.Mean, stats.Std, stats.Min, stats.Q25, stats.Q50, stats.Q75, stats.Max)
			}
		}
	}
	if len(table.NullCounts) > 0 {
		text += fmt.Sprintf("空值统计: %v\n", table.NullCounts)
	}
	return text
}

// afterChat 在会话保存成功后发出使用事件并归档上传文件。两者都是尽力而为。
func (s *chatService) afterChat(userID uint, req ChatRequest, settings llm.Settings, result *ChatResult, promptChars int, latency time.Duration) {
	event := tasks.ChatEvent{
		UserID:        userID,
		SessionKey:    result.SessionKey,
		Model:         settings.Model,
		PromptChars:   promptChars,
		ReplyChars:    utf8.RuneCountInString(result.Reply),
		SkippedChunks: result.SkippedChunks,
		Failed:        result.Failed,
		LatencyMs:     latency.Milliseconds(),
		CreatedAt:     time.Now().Format(time.RFC3339),
	}
	kafka.PublishChatEvent(context.Background(), event)

	if req.File != nil && s.uploadCfg.ArchiveToMinIO {
		storage.ArchiveUpload(context.Background(), userID, req.File.Name, req.File.Data)
	}
}
