package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cookie-ai-go/internal/config"
	"cookie-ai-go/internal/model"
	"cookie-ai-go/internal/repository"
	"cookie-ai-go/pkg/log"
)

// SessionView 是会话列表项，不携带完整历史。
type SessionView struct {
	SessionKey string          `json:"session_key"`
	Title      string          `json:"title"`
	Timestamp  model.LocalTime `json:"timestamp"`
	IsFavorite bool            `json:"is_favorite"`
	IsActive   bool            `json:"is_active"`
}

// SessionService 管理每个用户的会话集合与活动会话指针。
type SessionService interface {
	ListSessions(ctx context.Context, userID uint) ([]SessionView, error)
	CreateSession(ctx context.Context, userID uint) (string, error)
	SetActive(ctx context.Context, userID uint, sessionKey string) error
	ToggleFavorite(ctx context.Context, userID uint, sessionKey string) (bool, error)
	DeleteSession(ctx context.Context, userID uint, sessionKey string) (string, error)
	GetHistory(ctx context.Context, userID uint, sessionKey string) ([]model.HistoryEntry, error)
	// Mutate 在持有用户级锁的前提下加载会话集合、执行 fn 并整体保存。
	// fn 返回保存后应设为活动会话的 key（返回空串则保持不变）。
	Mutate(ctx context.Context, userID uint, fn MutateFunc) error
}

// MutateFunc 在用户锁内操作会话集合。sessions 可被就地修改。
type MutateFunc func(sessions map[string]*model.Session, activeKey string) (newActiveKey string, err error)

type sessionService struct {
	sessionRepo repository.SessionRepository
	activeRepo  repository.ActiveSessionRepository
	chatCfg     config.ChatConfig

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// NewSessionService 创建会话服务实例。
func NewSessionService(sessionRepo repository.SessionRepository, activeRepo repository.ActiveSessionRepository, chatCfg config.ChatConfig) SessionService {
	return &sessionService{
		sessionRepo: sessionRepo,
		activeRepo:  activeRepo,
		chatCfg:     chatCfg,
		locks:       make(map[uint]*sync.Mutex),
	}
}

// userLock 返回该用户的互斥锁，保证同一用户的读-改-写序列互斥。
func (s *sessionService) userLock(userID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

// NewSessionKey 生成形如 session_20060102_150405_xxxxxxxx 的会话键。
// 时间戳保证可读排序，uuid 片段保证同秒创建时的唯一性。
func NewSessionKey() string {
	return fmt.Sprintf("session_%s_%s", time.Now().Format("20060102_150405"), uuid.NewString()[:8])
}

// load 读取用户的全部会话；若用户还没有任何会话，物化一个默认会话并持久化。
func (s *sessionService) load(ctx context.Context, userID uint) (map[string]*model.Session, string, error) {
	sessions, err := s.sessionRepo.LoadSessions(userID)
	if err != nil {
		return nil, "", err
	}

	activeKey, err := s.activeRepo.GetActiveSession(ctx, userID)
	if err != nil {
		log.Warnf("读取活动会话指针失败: %v", err)
		activeKey = ""
	}

	if len(sessions) == 0 {
		key := NewSessionKey()
		sessions[key] = model.NewSession(s.chatCfg.DefaultTitle)
		if err := s.sessionRepo.SaveSessions(userID, sessions); err != nil {
			return nil, "", err
		}
		activeKey = key
		if err := s.activeRepo.SetActiveSession(ctx, userID, key); err != nil {
			log.Warnf("写入活动会话指针失败: %v", err)
		}
	}

	if _, ok := sessions[activeKey]; !ok {
		activeKey = mostRecentKey(sessions)
	}
	return sessions, activeKey, nil
}

// mostRecentKey 返回时间戳最新的会话键，时间相同时取键序较大者保证确定性。
func mostRecentKey(sessions map[string]*model.Session) string {
	keys := make([]string, 0, len(sessions))
	for key := range sessions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	best := ""
	for _, key := range keys {
		if best == "" || !sessions[key].Timestamp.Before(sessions[best].Timestamp) {
			best = key
		}
	}
	return best
}

func (s *sessionService) Mutate(ctx context.Context, userID uint, fn MutateFunc) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sessions, activeKey, err := s.load(ctx, userID)
	if err != nil {
		return err
	}

	newActiveKey, err := fn(sessions, activeKey)
	if err != nil {
		return err
	}

	if err := s.sessionRepo.SaveSessions(userID, sessions); err != nil {
		return err
	}
	if newActiveKey != "" && newActiveKey != activeKey {
		if err := s.activeRepo.SetActiveSession(ctx, userID, newActiveKey); err != nil {
			log.Warnf("写入活动会话指针失败: %v", err)
		}
	}
	return nil
}

func (s *sessionService) ListSessions(ctx context.Context, userID uint) ([]SessionView, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sessions, activeKey, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]SessionView, 0, len(sessions))
	for key, session := range sessions {
		views = append(views, SessionView{
			SessionKey: key,
			Title:      session.Title,
			Timestamp:  session.Timestamp,
			IsFavorite: session.IsFavorite,
			IsActive:   key == activeKey,
		})
	}
	// 收藏的会话排前面，其余按时间倒序。
	sort.Slice(views, func(i, j int) bool {
		if views[i].IsFavorite != views[j].IsFavorite {
			return views[i].IsFavorite
		}
		if views[i].Timestamp.Before(views[j].Timestamp) || views[j].Timestamp.Before(views[i].Timestamp) {
			return views[j].Timestamp.Before(views[i].Timestamp)
		}
		return views[i].SessionKey > views[j].SessionKey
	})
	return views, nil
}

func (s *sessionService) CreateSession(ctx context.Context, userID uint) (string, error) {
	key := NewSessionKey()
	err := s.Mutate(ctx, userID, func(sessions map[string]*model.Session, _ string) (string, error) {
		sessions[key] = model.NewSession(s.chatCfg.DefaultTitle)
		return key, nil
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (s *sessionService) SetActive(ctx context.Context, userID uint, sessionKey string) error {
	return s.Mutate(ctx, userID, func(sessions map[string]*model.Session, _ string) (string, error) {
		if _, ok := sessions[sessionKey]; !ok {
			return "", fmt.Errorf("会话不存在: %s", sessionKey)
		}
		return sessionKey, nil
	})
}

func (s *sessionService) ToggleFavorite(ctx context.Context, userID uint, sessionKey string) (bool, error) {
	var favorite bool
	err := s.Mutate(ctx, userID, func(sessions map[string]*model.Session, _ string) (string, error) {
		session, ok := sessions[sessionKey]
		if !ok {
			return "", fmt.Errorf("会话不存在: %s", sessionKey)
		}
		session.IsFavorite = !session.IsFavorite
		favorite = session.IsFavorite
		return "", nil
	})
	return favorite, err
}

// DeleteSession 删除指定会话并返回删除后的活动会话键。
// 仅剩一个会话时拒绝删除；删除的是活动会话时，活动指针移到最近更新的会话。
func (s *sessionService) DeleteSession(ctx context.Context, userID uint, sessionKey string) (string, error) {
	var nextActive string
	err := s.Mutate(ctx, userID, func(sessions map[string]*model.Session, activeKey string) (string, error) {
		if _, ok := sessions[sessionKey]; !ok {
			return "", fmt.Errorf("会话不存在: %s", sessionKey)
		}
		if len(sessions) == 1 {
			return "", model.ErrLastSession
		}
		delete(sessions, sessionKey)
		nextActive = activeKey
		if sessionKey == activeKey {
			nextActive = mostRecentKey(sessions)
		}
		return nextActive, nil
	})
	if err != nil {
		return "", err
	}
	return nextActive, nil
}

func (s *sessionService) GetHistory(ctx context.Context, userID uint, sessionKey string) ([]model.HistoryEntry, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sessions, activeKey, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sessionKey == "" {
		sessionKey = activeKey
	}
	session, ok := sessions[sessionKey]
	if !ok {
		return nil, fmt.Errorf("会话不存在: %s", sessionKey)
	}
	if session.ChatHistory == nil {
		return []model.HistoryEntry{}, nil
	}
	return session.ChatHistory, nil
}
