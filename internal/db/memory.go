package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/contractqueue/backend/internal/model"
	"github.com/google/uuid"
)

// Memory - in-process store with the same semantics as Postgres and SQLite.
// Set FailWith to make every call return that error.
type Memory struct {
	mu sync.Mutex

	FailWith error

	active    map[int64]model.ActiveContract
	completed map[int64]model.CompletedContract
	settings  *model.PipedriveSettings
	sessions  map[string]model.ActiveSession

	users       map[int64]model.User
	tokens      map[string]model.RefreshToken
	nextUserID  int64
	nextTokenID int64
}

func NewMemory() *Memory {
	return &Memory{
		active:    map[int64]model.ActiveContract{},
		completed: map[int64]model.CompletedContract{},
		sessions:  map[string]model.ActiveSession{},
		users:     map[int64]model.User{},
		tokens:    map[string]model.RefreshToken{},
	}
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FailWith
}

func (m *Memory) EnsureSchema(ctx context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) UpsertActiveContract(ctx context.Context, c model.ActiveContract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	if _, done := m.completed[c.ID]; done {
		return ErrAlreadyCompleted
	}
	if existing, ok := m.active[c.ID]; ok {
		c.CreatedAt = existing.CreatedAt
		c.Status = existing.Status
	}
	m.active[c.ID] = c
	return nil
}

func (m *Memory) ListActiveContracts(ctx context.Context, filter model.ActiveFilter) ([]model.ActiveContract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	list := []model.ActiveContract{}
	for _, c := range m.active {
		if c.StageID != filter.StageID {
			continue
		}
		if filter.PipelineID != nil && c.PipelineID != *filter.PipelineID {
			continue
		}
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (m *Memory) GetActiveContract(ctx context.Context, id int64) (*model.ActiveContract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	c, ok := m.active[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *Memory) CompleteContract(ctx context.Context, id int64, completedBy string, completedAt time.Time) (*model.CompletedContract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	c, ok := m.active[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.active, id)
	if _, exists := m.completed[id]; exists {
		return nil, ErrAlreadyCompleted
	}
	completed := c.Complete(completedBy, completedAt)
	m.completed[id] = completed
	return &completed, nil
}

func (m *Memory) DeleteActiveContract(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	if _, ok := m.active[id]; !ok {
		return ErrNotFound
	}
	delete(m.active, id)
	return nil
}

func (m *Memory) ListCompletedContracts(ctx context.Context, start, end time.Time) ([]model.CompletedContract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	list := []model.CompletedContract{}
	for _, c := range m.completed {
		if c.CompletedAt.Before(start) || c.CompletedAt.After(end) {
			continue
		}
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CompletedAt.After(list[j].CompletedAt)
	})
	return list, nil
}

func (m *Memory) CompletedStats(ctx context.Context, since time.Time) (model.CompletedStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return model.CompletedStats{}, m.FailWith
	}
	var stats model.CompletedStats
	for _, c := range m.completed {
		stats.Total++
		stats.TotalValue += c.Value
		if !c.CompletedAt.Before(since) {
			stats.LastWeekCount++
			stats.LastWeekValue += c.Value
		}
	}
	return stats, nil
}

func (m *Memory) GetPipedriveSettings(ctx context.Context) (*model.PipedriveSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	if m.settings == nil {
		return nil, ErrNotFound
	}
	s := *m.settings
	return &s, nil
}

func (m *Memory) SavePipedriveSettings(ctx context.Context, s model.PipedriveSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.settings = &s
	return nil
}

func (m *Memory) TouchSession(ctx context.Context, userID string, now time.Time) (*model.ActiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	s, ok := m.sessions[userID]
	if !ok {
		s = model.ActiveSession{ID: uuid.NewString(), UserID: userID, CreatedAt: now}
	}
	s.LastActive = now
	m.sessions[userID] = s
	return &s, nil
}

func (m *Memory) EndSession(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	delete(m.sessions, userID)
	return nil
}

func (m *Memory) ListActiveSessions(ctx context.Context, since time.Time) ([]model.ActiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	list := []model.ActiveSession{}
	for _, s := range m.sessions {
		if s.LastActive.Before(since) {
			continue
		}
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].LastActive.After(list[j].LastActive)
	})
	return list, nil
}

func (m *Memory) CreateUser(ctx context.Context, loginID, displayName, passwordHash string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	for _, u := range m.users {
		if u.LoginID == loginID {
			return nil, ErrDuplicate
		}
	}
	m.nextUserID++
	now := time.Now()
	u := model.User{ID: m.nextUserID, LoginID: loginID, DisplayName: displayName, PasswordHash: passwordHash, CreatedAt: now, UpdatedAt: now}
	m.users[u.ID] = u
	return &u, nil
}

func (m *Memory) GetUserByLoginID(ctx context.Context, loginID string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	for _, u := range m.users {
		if u.LoginID == loginID {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetUserByID(ctx context.Context, userID int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *Memory) UpdateUserDisplayName(ctx context.Context, userID int64, displayName string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	u.DisplayName = displayName
	u.UpdatedAt = time.Now()
	m.users[userID] = u
	return &u, nil
}

func (m *Memory) InsertRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.insertToken(userID, tokenHash, expiresAt)
	return nil
}

func (m *Memory) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	t, ok := m.tokens[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *Memory) RevokeRefreshTokenByHash(ctx context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.revoke(func(t model.RefreshToken) bool { return t.TokenHash == tokenHash })
	return nil
}

func (m *Memory) RotateRefreshToken(ctx context.Context, oldTokenID int64, userID int64, newTokenHash string, newExpiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.revoke(func(t model.RefreshToken) bool { return t.ID == oldTokenID })
	m.insertToken(userID, newTokenHash, newExpiresAt)
	return nil
}

func (m *Memory) insertToken(userID int64, tokenHash string, expiresAt time.Time) {
	m.nextTokenID++
	m.tokens[tokenHash] = model.RefreshToken{
		ID:        m.nextTokenID,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
}

func (m *Memory) revoke(match func(model.RefreshToken) bool) {
	now := time.Now()
	for hash, t := range m.tokens {
		if match(t) && t.RevokedAt == nil {
			t.RevokedAt = &now
			m.tokens[hash] = t
		}
	}
}
