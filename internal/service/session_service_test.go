package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookie-ai-go/internal/config"
	"cookie-ai-go/internal/model"
)

// fakeSessionRepo 是 SessionRepository 的内存实现，按整体替换语义保存。
type fakeSessionRepo struct {
	mu    sync.Mutex
	store map[uint]map[string]*model.Session
	saves int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{store: make(map[uint]map[string]*model.Session)}
}

func cloneSessions(sessions map[string]*model.Session) map[string]*model.Session {
	cloned := make(map[string]*model.Session, len(sessions))
	for key, session := range sessions {
		copied := *session
		cloned[key] = &copied
	}
	return cloned
}

func (r *fakeSessionRepo) LoadSessions(userID uint) (map[string]*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.store[userID]
	if !ok {
		return make(map[string]*model.Session), nil
	}
	return cloneSessions(stored), nil
}

func (r *fakeSessionRepo) SaveSessions(userID uint, sessions map[string]*model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[userID] = cloneSessions(sessions)
	r.saves++
	return nil
}

// fakeActiveRepo 是 ActiveSessionRepository 的内存实现。
type fakeActiveRepo struct {
	mu   sync.Mutex
	keys map[uint]string
}

func newFakeActiveRepo() *fakeActiveRepo {
	return &fakeActiveRepo{keys: make(map[uint]string)}
}

func (r *fakeActiveRepo) GetActiveSession(_ context.Context, userID uint) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keys[userID], nil
}

func (r *fakeActiveRepo) SetActiveSession(_ context.Context, userID uint, sessionKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[userID] = sessionKey
	return nil
}

func testChatConfig() config.ChatConfig {
	return config.ChatConfig{
		SystemPrompt:       "你是测试助手",
		MaxContextMessages: 7,
		DefaultTitle:       "新会话",
		TitleMaxRunes:      20,
	}
}

func newTestSessionService() (SessionService, *fakeSessionRepo, *fakeActiveRepo) {
	sessionRepo := newFakeSessionRepo()
	activeRepo := newFakeActiveRepo()
	svc := NewSessionService(sessionRepo, activeRepo, testChatConfig())
	return svc, sessionRepo, activeRepo
}

func TestListSessionsMaterializesDefaultSession(t *testing.T) {
	svc, _, activeRepo := newTestSessionService()

	views, err := svc.ListSessions(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "新会话", views[0].Title)
	assert.True(t, views[0].IsActive)
	assert.Equal(t, views[0].SessionKey, activeRepo.keys[1])
}

func TestCreateSessionBecomesActive(t *testing.T) {
	svc, _, activeRepo := newTestSessionService()

	// 物化默认会话
	_, err := svc.ListSessions(context.Background(), 1)
	require.NoError(t, err)

	key, err := svc.CreateSession(context.Background(), 1)
	require.NoError(t, err)
	assert.NotEmpty(t, key)
	assert.Equal(t, key, activeRepo.keys[1])

	views, err := svc.ListSessions(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, views, 2)
}

func TestSessionKeysUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		key := NewSessionKey()
		_, dup := seen[key]
		require.False(t, dup, "duplicate session key: %s", key)
		seen[key] = struct{}{}
	}
}

func TestDeleteLastSessionRefused(t *testing.T) {
	svc, _, _ := newTestSessionService()

	views, err := svc.ListSessions(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, views, 1)

	_, err = svc.DeleteSession(context.Background(), 1, views[0].SessionKey)
	assert.ErrorIs(t, err, model.ErrLastSession)

	// 会话仍然在
	views, err = svc.ListSessions(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, views, 1)
}

func TestDeleteActiveSessionReassignsToMostRecent(t *testing.T) {
	svc, repo, activeRepo := newTestSessionService()
	ctx := context.Background()

	// 三个会话，时间戳依次递增
	now := time.Now()
	repo.store[1] = map[string]*model.Session{
		"session_a": {Title: "a", Timestamp: model.LocalTime(now.Add(-2 * time.Hour))},
		"session_b": {Title: "b", Timestamp: model.LocalTime(now.Add(-1 * time.Hour))},
		"session_c": {Title: "c", Timestamp: model.LocalTime(now)},
	}
	activeRepo.keys[1] = "session_c"

	activeKey, err := svc.DeleteSession(ctx, 1, "session_c")
	require.NoError(t, err)
	// 删除活动会话后，指针移到剩余会话中最新的一个
	assert.Equal(t, "session_b", activeKey)
	assert.Equal(t, "session_b", activeRepo.keys[1])
}

func TestDeleteInactiveSessionKeepsActivePointer(t *testing.T) {
	svc, repo, activeRepo := newTestSessionService()
	ctx := context.Background()

	now := time.Now()
	repo.store[1] = map[string]*model.Session{
		"session_a": {Title: "a", Timestamp: model.LocalTime(now.Add(-time.Hour))},
		"session_b": {Title: "b", Timestamp: model.LocalTime(now)},
	}
	activeRepo.keys[1] = "session_b"

	activeKey, err := svc.DeleteSession(ctx, 1, "session_a")
	require.NoError(t, err)
	assert.Equal(t, "session_b", activeKey)
}

func TestDeleteUnknownSessionFails(t *testing.T) {
	svc, _, _ := newTestSessionService()
	_, err := svc.ListSessions(context.Background(), 1)
	require.NoError(t, err)

	_, err = svc.DeleteSession(context.Background(), 1, "session_missing")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, model.ErrLastSession))
}

func TestToggleFavoriteFlips(t *testing.T) {
	svc, _, _ := newTestSessionService()
	ctx := context.Background()

	views, err := svc.ListSessions(ctx, 1)
	require.NoError(t, err)
	key := views[0].SessionKey

	favorite, err := svc.ToggleFavorite(ctx, 1, key)
	require.NoError(t, err)
	assert.True(t, favorite)

	favorite, err = svc.ToggleFavorite(ctx, 1, key)
	require.NoError(t, err)
	assert.False(t, favorite)
}

func TestListSessionsFavoritesFirst(t *testing.T) {
	svc, repo, _ := newTestSessionService()
	ctx := context.Background()

	now := time.Now()
	repo.store[1] = map[string]*model.Session{
		"session_a": {Title: "a", Timestamp: model.LocalTime(now)},
		"session_b": {Title: "b", Timestamp: model.LocalTime(now.Add(-time.Hour)), IsFavorite: true},
	}

	views, err := svc.ListSessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "session_b", views[0].SessionKey)
}

func TestMutatePersistsChanges(t *testing.T) {
	svc, repo, _ := newTestSessionService()
	ctx := context.Background()

	views, err := svc.ListSessions(ctx, 1)
	require.NoError(t, err)
	key := views[0].SessionKey

	err = svc.Mutate(ctx, 1, func(sessions map[string]*model.Session, activeKey string) (string, error) {
		assert.Equal(t, key, activeKey)
		sessions[key].Title = "改过的标题"
		return "", nil
	})
	require.NoError(t, err)

	stored := repo.store[1][key]
	require.NotNil(t, stored)
	assert.Equal(t, "改过的标题", stored.Title)
}

func TestMutateErrorSkipsSave(t *testing.T) {
	svc, repo, _ := newTestSessionService()
	ctx := context.Background()

	_, err := svc.ListSessions(ctx, 1)
	require.NoError(t, err)
	savesBefore := repo.saves

	wantErr := errors.New("boom")
	err = svc.Mutate(ctx, 1, func(sessions map[string]*model.Session, _ string) (string, error) {
		for _, s := range sessions {
			s.Title = "不应被保存"
		}
		return "", wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, savesBefore, repo.saves)
}
