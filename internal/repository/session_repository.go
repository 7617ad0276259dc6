// Package repository 提供了数据访问层的实现。
package repository

import (
	"encoding/json"
	"fmt"

	"cookie-ai-go/internal/model"

	"gorm.io/gorm"
)

// SessionRepository 定义了会话映射的持久化操作。
// 保存是整体替换语义：给定用户已持久化的会话由传入映射全量覆盖。
type SessionRepository interface {
	LoadSessions(userID uint) (map[string]*model.Session, error)
	SaveSessions(userID uint, sessions map[string]*model.Session) error
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建一个新的 SessionRepository 实例。
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

// LoadSessions 加载用户的全部会话。没有任何记录时返回空映射。
func (r *sessionRepository) LoadSessions(userID uint) (map[string]*model.Session, error) {
	var records []model.SessionRecord
	if err := r.db.Where("user_id = ?", userID).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("查询会话记录失败: %w", err)
	}

	sessions := make(map[string]*model.Session, len(records))
	for _, record := range records {
		session, err := sessionFromRecord(&record)
		if err != nil {
			return nil, fmt.Errorf("解析会话 %s 失败: %w", record.SessionKey, err)
		}
		sessions[record.SessionKey] = session
	}
	return sessions, nil
}

// SaveSessions 全量替换用户的会话记录：删除旧行后逐条插入，整体在一个事务内完成。
func (r *sessionRepository) SaveSessions(userID uint, sessions map[string]*model.Session) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&model.SessionRecord{}).Error; err != nil {
			return fmt.Errorf("清理旧会话记录失败: %w", err)
		}
		for key, session := range sessions {
			record, err := recordFromSession(userID, key, session)
			if err != nil {
				return fmt.Errorf("序列化会话 %s 失败: %w", key, err)
			}
			if err := tx.Create(record).Error; err != nil {
				return fmt.Errorf("写入会话 %s 失败: %w", key, err)
			}
		}
		return nil
	})
}

// recordFromSession 将内存中的会话序列化为数据库行。
func recordFromSession(userID uint, key string, session *model.Session) (*model.SessionRecord, error) {
	historyJSON, err := json.Marshal(session.ChatHistory)
	if err != nil {
		return nil, err
	}
	contextJSON, err := json.Marshal(session.ChatContext)
	if err != nil {
		return nil, err
	}
	return &model.SessionRecord{
		UserID:      userID,
		SessionKey:  key,
		Title:       session.Title,
		ChatHistory: string(historyJSON),
		ChatContext: string(contextJSON),
		Timestamp:   session.Timestamp.String(),
		IsFavorite:  session.IsFavorite,
	}, nil
}

// sessionFromRecord 将数据库行还原为内存中的会话。
func sessionFromRecord(record *model.SessionRecord) (*model.Session, error) {
	session := &model.Session{
		Title:       record.Title,
		ChatHistory: []model.HistoryEntry{},
		ChatContext: []model.Turn{},
		IsFavorite:  record.IsFavorite,
	}
	if record.ChatHistory != "" {
		if err := json.Unmarshal([]byte(record.ChatHistory), &session.ChatHistory); err != nil {
			return nil, err
		}
	}
	if record.ChatContext != "" {
		if err := json.Unmarshal([]byte(record.ChatContext), &session.ChatContext); err != nil {
			return nil, err
		}
	}
	if record.Timestamp != "" {
		ts, err := model.ParseLocalTime(record.Timestamp)
		if err != nil {
			return nil, err
		}
		session.Timestamp = ts
	}
	return session, nil
}
