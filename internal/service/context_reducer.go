// Package service 包含了应用的业务逻辑层。
package service

import "cookie-ai-go/internal/model"

// DefaultMaxContextMessages 是发送给补全 API 的上下文窗口默认条数。
const DefaultMaxContextMessages = 7

// continueTurn 是窗口以助手消息开头时注入的合成用户消息，
// 用以维持下游 API 期望的 user/assistant 交替。
var continueTurn = model.Turn{Role: model.RoleUser, Content: "continue"}

// ReduceContext 将上下文裁剪到有界窗口：全部 system 消息按原始顺序作为前缀，
// 原序列的最后 maxMessages 条作为后缀；若后缀以 assistant 开头，
// 在其前注入一条合成的 user "continue" 消息。
// 纯函数：不修改输入切片；len(context) <= maxMessages 时原样返回。
func ReduceContext(context []model.Turn, maxMessages int) []model.Turn {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxContextMessages
	}
	if len(context) <= maxMessages {
		return context
	}

	reduced := make([]model.Turn, 0, maxMessages+2)
	for _, turn := range context {
		if turn.Role == model.RoleSystem {
			reduced = append(reduced, turn)
		}
	}

	recent := context[len(context)-maxMessages:]
	if recent[0].Role == model.RoleAssistant {
		reduced = append(reduced, continueTurn)
	}
	reduced = append(reduced, recent...)

	return reduced
}
