package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"cookie-ai-go/internal/pipeline"
	"cookie-ai-go/internal/service"
	"cookie-ai-go/pkg/log"
	"cookie-ai-go/pkg/token"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理聊天请求，支持 SSE 与 WebSocket 两种流式下发方式。
type ChatHandler struct {
	chatService   service.ChatService
	userService   service.UserService
	jwtManager    *token.JWTManager
	stopToken     string
	stopTokenLock sync.Mutex
	// 每连接停止标志
	stopFlags sync.Map // key: conn pointer string, value: bool
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, userService service.UserService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		userService: userService,
		jwtManager:  jwtManager,
	}
}

// readUpload 从 multipart 表单中取出可选的上传文件。
func readUpload(c *gin.Context) (*pipeline.File, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}

	f, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &pipeline.File{Name: fileHeader.Filename, Data: data}, nil
}

// sseChunkWriter 把增量分块以 SSE 事件下发。完整快照由最终负载承载，这里忽略。
type sseChunkWriter struct {
	c *gin.Context
}

func (w *sseChunkWriter) WriteChunk(chunk, _ string) error {
	payload, err := json.Marshal(gin.H{"chunk": chunk})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.c.Writer, "data: %s\n\n", payload); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}

// StreamMessage 处理一轮对话请求（multipart 表单），以 SSE 流式返回回复。
// 表单字段：message（文本，可选）、file（上传文件，可选）、session_key（可选，默认活动会话）。
func (h *ChatHandler) StreamMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	req := service.ChatRequest{
		SessionKey: c.PostForm("session_key"),
		Message:    c.PostForm("message"),
	}
	file, err := readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "读取上传文件失败: " + err.Error(),
		})
		return
	}
	req.File = file

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	result, err := h.chatService.StreamMessage(c.Request.Context(), user.ID, req, &sseChunkWriter{c: c})
	if err != nil {
		// 流尚未开始（摄取或会话查找失败），以 SSE 错误事件结束。
		payload, _ := json.Marshal(gin.H{"type": "error", "message": err.Error()})
		fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
		c.Writer.Flush()
		return
	}

	final, _ := json.Marshal(gin.H{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"result":    result,
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	})
	fmt.Fprintf(c.Writer, "data: %s\n\n", final)
	c.Writer.Flush()
}

// GetWebsocketStopToken 返回一个可用于停止流的令牌。
func (h *ChatHandler) GetWebsocketStopToken(c *gin.Context) {
	h.stopTokenLock.Lock()
	defer h.stopTokenLock.Unlock()
	// 单机轮换令牌。多实例部署时应放到 Redis。
	h.stopToken = "WSS_STOP_CMD_" + token.GenerateRandomString(16)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"cmdToken": h.stopToken}})
}

// wsMessage 是 WebSocket 聊天消息的负载。
type wsMessage struct {
	Type       string `json:"type"`
	SessionKey string `json:"session_key"`
	Message    string `json:"message"`
	CmdToken   string `json:"_internal_cmd_token"`
}

// wsChunkWriter 把增量分块包装成 JSON 帧写入 WebSocket 连接。
// 停止标志生效后丢弃后续分块，但补全仍在后台跑完以保证会话完整落库。
type wsChunkWriter struct {
	conn       *websocket.Conn
	shouldStop func() bool
}

func (w *wsChunkWriter) WriteChunk(chunk, _ string) error {
	if w.shouldStop != nil && w.shouldStop() {
		return nil
	}
	payload, err := json.Marshal(map[string]string{"chunk": chunk})
	if err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, payload)
}

// Handle 处理一个传入的 WebSocket 连接。token 经 URL 路径传递。
func (h *ChatHandler) Handle(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	user, err := h.userService.GetProfile(claims.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", claims.Username)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var msg wsMessage
		if len(message) > 0 && message[0] == '{' {
			if err := json.Unmarshal(message, &msg); err != nil {
				log.Warnf("解析 WebSocket 消息失败: %v", err)
				continue
			}
		} else {
			// 纯文本消息按用户输入处理
			msg = wsMessage{Type: "message", Message: string(message)}
		}

		if msg.Type == "stop" {
			h.handleStop(conn, msg.CmdToken)
			continue
		}

		key := connKey(conn)
		h.stopFlags.Delete(key)
		shouldStop := func() bool {
			v, ok := h.stopFlags.Load(key)
			return ok && v.(bool)
		}

		req := service.ChatRequest{SessionKey: msg.SessionKey, Message: msg.Message}
		writer := &wsChunkWriter{conn: conn, shouldStop: shouldStop}
		result, err := h.chatService.StreamMessage(c.Request.Context(), user.ID, req, writer)
		if err != nil {
			log.Errorf("处理流式响应失败: %v", err)
			errResp, _ := json.Marshal(map[string]string{"error": err.Error()})
			_ = conn.WriteMessage(websocket.TextMessage, errResp)
		}
		sendCompletion(conn, result)
	}
}

// handleStop 校验停止令牌并置位该连接的停止标志。
func (h *ChatHandler) handleStop(conn *websocket.Conn, cmdToken string) {
	h.stopTokenLock.Lock()
	valid := cmdToken != "" && cmdToken == h.stopToken
	h.stopTokenLock.Unlock()
	if !valid {
		return
	}

	h.stopFlags.Store(connKey(conn), true)
	resp, _ := json.Marshal(map[string]interface{}{
		"type":      "stop",
		"message":   "响应已停止",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	})
	_ = conn.WriteMessage(websocket.TextMessage, resp)
}

// sendCompletion 发送完成通知 JSON。
func sendCompletion(conn *websocket.Conn, result *service.ChatResult) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
	if result != nil {
		notif["result"] = result
	}
	b, _ := json.Marshal(notif)
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

func connKey(conn *websocket.Conn) string {
	return fmt.Sprintf("%p", conn)
}
