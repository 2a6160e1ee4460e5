package storage

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prasenjit/mockforge/internal/models"
)

// mockEntry guards one mock. The entry lock serializes edits of that record
// only; hits take the read side and bump the atomic counter.
type mockEntry struct {
	mu      sync.RWMutex
	def     *models.MockDefinition
	hits    *models.HitCounter
	deleted bool
}

// snapshot returns a copy with the live counter values. Caller holds e.mu.
func (e *mockEntry) snapshot() *models.MockDefinition {
	c := e.def.Clone()
	c.HitCount = e.hits.Hits()
	c.LastAccessed = e.hits.LastAccessed()
	return c
}

type chatEntry struct {
	mu       sync.Mutex
	session  *models.ChatSession
	messages []*models.ChatMessage
	deleted  bool
}

// MemoryStorage implements Storage interface with in-memory storage
type MemoryStorage struct {
	mu        sync.RWMutex
	mocks     map[string]*mockEntry
	chats     map[string]*chatEntry
	totalHits atomic.Int64
}

// NewMemoryStorage creates a new in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		mocks: make(map[string]*mockEntry),
		chats: make(map[string]*chatEntry),
	}
}

func (m *MemoryStorage) lookupMock(id string) (*mockEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.mocks[id]
	return e, ok
}

func (m *MemoryStorage) lookupChat(id string) (*chatEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.chats[id]
	return e, ok
}

// Mock operations

func (m *MemoryStorage) CreateMock(mock *models.MockDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.mocks[mock.ID]; exists {
		return fmt.Errorf("mock already exists: %s", mock.ID)
	}

	def := mock.Clone()
	m.mocks[mock.ID] = &mockEntry{
		def:  def,
		hits: models.NewHitCounter(def.HitCount, def.LastAccessed),
	}
	return nil
}

func (m *MemoryStorage) GetMock(id string) (*models.MockDefinition, error) {
	e, ok := m.lookupMock(id)
	if !ok {
		return nil, models.NotFound("mock", id)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.deleted {
		return nil, models.NotFound("mock", id)
	}
	return e.snapshot(), nil
}

func (m *MemoryStorage) ListMocks() ([]*models.MockDefinition, error) {
	m.mu.RLock()
	entries := make([]*mockEntry, 0, len(m.mocks))
	for _, e := range m.mocks {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	result := make([]*models.MockDefinition, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		if !e.deleted {
			result = append(result, e.snapshot())
		}
		e.mu.RUnlock()
	}

	sortMocks(result)
	return result, nil
}

func (m *MemoryStorage) UpdateMock(id string, fn MockMutator) (*models.MockDefinition, error) {
	e, ok := m.lookupMock(id)
	if !ok {
		return nil, models.NotFound("mock", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, models.NotFound("mock", id)
	}

	next := e.snapshot()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	e.def = next
	return e.snapshot(), nil
}

func (m *MemoryStorage) DeleteMock(id string) error {
	m.mu.Lock()
	e, ok := m.mocks[id]
	if ok {
		delete(m.mocks, id)
	}
	m.mu.Unlock()

	if !ok {
		return models.NotFound("mock", id)
	}

	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()
	return nil
}

func (m *MemoryStorage) CountMocks() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.mocks), nil
}

func (m *MemoryStorage) RecordHit(id string, at time.Time) (*models.MockDefinition, error) {
	e, ok := m.lookupMock(id)
	if !ok {
		return nil, models.NotFound("mock", id)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.deleted {
		return nil, models.NotFound("mock", id)
	}

	e.hits.Hit(at)
	m.totalHits.Add(1)
	return e.snapshot(), nil
}

func (m *MemoryStorage) TotalHits() (int64, error) {
	return m.totalHits.Load(), nil
}

// Chat operations

func (m *MemoryStorage) CreateChat(c *models.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.chats[c.ID]; exists {
		return fmt.Errorf("chat already exists: %s", c.ID)
	}

	session := *c
	m.chats[c.ID] = &chatEntry{session: &session}
	return nil
}

func (m *MemoryStorage) GetChat(id string) (*models.ChatSession, error) {
	e, ok := m.lookupChat(id)
	if !ok {
		return nil, models.NotFound("chat", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, models.NotFound("chat", id)
	}
	session := *e.session
	return &session, nil
}

func (m *MemoryStorage) ListChats() ([]*models.ChatSession, error) {
	m.mu.RLock()
	entries := make([]*chatEntry, 0, len(m.chats))
	for _, e := range m.chats {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	result := make([]*models.ChatSession, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			session := *e.session
			result = append(result, &session)
		}
		e.mu.Unlock()
	}

	sortChats(result)
	return result, nil
}

func (m *MemoryStorage) DeleteChat(id string) error {
	m.mu.Lock()
	e, ok := m.chats[id]
	if ok {
		delete(m.chats, id)
	}
	m.mu.Unlock()

	if !ok {
		return models.NotFound("chat", id)
	}

	e.mu.Lock()
	e.deleted = true
	e.messages = nil
	e.mu.Unlock()
	return nil
}

func (m *MemoryStorage) CountChats() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chats), nil
}

func (m *MemoryStorage) AppendMessage(msg *models.ChatMessage) (*models.ChatSession, error) {
	e, ok := m.lookupChat(msg.ChatID)
	if !ok {
		return nil, models.NotFound("chat", msg.ChatID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, models.NotFound("chat", msg.ChatID)
	}

	stored := *msg
	e.messages = append(e.messages, &stored)
	e.session.MessageCount = len(e.messages)
	if msg.CreatedAt.After(e.session.UpdatedAt) {
		e.session.UpdatedAt = msg.CreatedAt
	}

	session := *e.session
	return &session, nil
}

func (m *MemoryStorage) GetMessages(chatID string) ([]*models.ChatMessage, error) {
	e, ok := m.lookupChat(chatID)
	if !ok {
		return nil, models.NotFound("chat", chatID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, models.NotFound("chat", chatID)
	}

	result := make([]*models.ChatMessage, len(e.messages))
	for i, msg := range e.messages {
		c := *msg
		result[i] = &c
	}
	return result, nil
}

func (m *MemoryStorage) GetMessage(chatID, messageID string) (*models.ChatMessage, error) {
	e, ok := m.lookupChat(chatID)
	if !ok {
		return nil, models.NotFound("chat", chatID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, models.NotFound("chat", chatID)
	}

	for _, msg := range e.messages {
		if msg.ID == messageID {
			c := *msg
			return &c, nil
		}
	}
	return nil, models.NotFound("message", messageID)
}

func (m *MemoryStorage) SetGeneratedMock(chatID, messageID, mockID string) error {
	e, ok := m.lookupChat(chatID)
	if !ok {
		return models.NotFound("chat", chatID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return models.NotFound("chat", chatID)
	}

	for _, msg := range e.messages {
		if msg.ID == messageID {
			id := mockID
			msg.GeneratedMockID = &id
			return nil
		}
	}
	return models.NotFound("message", messageID)
}

// Utility

func (m *MemoryStorage) Close() error {
	return nil
}

// sortMocks orders mocks newest update first, then by id
func sortMocks(mocks []*models.MockDefinition) {
	sort.Slice(mocks, func(i, j int) bool {
		if !mocks[i].UpdatedAt.Equal(mocks[j].UpdatedAt) {
			return mocks[i].UpdatedAt.After(mocks[j].UpdatedAt)
		}
		return mocks[i].ID < mocks[j].ID
	})
}

// sortChats orders sessions most recently active first
func sortChats(chats []*models.ChatSession) {
	sort.Slice(chats, func(i, j int) bool {
		if !chats[i].UpdatedAt.Equal(chats[j].UpdatedAt) {
			return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
		}
		return chats[i].ID < chats[j].ID
	})
}

// restoreChat loads a persisted session with its messages
func (m *MemoryStorage) restoreChat(session *models.ChatSession, messages []*models.ChatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := *session
	m.chats[s.ID] = &chatEntry{session: &s, messages: messages}
}

// restoreTotalHits seeds the lifetime hit counter
func (m *MemoryStorage) restoreTotalHits(n int64) {
	m.totalHits.Store(n)
}
