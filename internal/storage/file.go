package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prasenjit/mockforge/internal/models"
	"go.uber.org/zap"
)

// FileStorage implements Storage interface with file-based persistence.
// Records live in memory and every mutation rewrites the affected JSON file.
type FileStorage struct {
	mu       sync.Mutex // serializes file writes
	basePath string
	memory   *MemoryStorage
	logger   *zap.Logger
}

// chatFile is the on-disk shape of one session
type chatFile struct {
	Chat     *models.ChatSession   `json:"chat"`
	Messages []*models.ChatMessage `json:"messages"`
}

// ledgerFile holds counters that outlive individual mocks
type ledgerFile struct {
	TotalHits int64 `json:"totalHits"`
}

// NewFileStorage creates a new file-based storage. logger may be nil.
func NewFileStorage(basePath string, logger *zap.Logger) (*FileStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Create directories if they don't exist
	dirs := []string{
		basePath,
		filepath.Join(basePath, "mocks"),
		filepath.Join(basePath, "chats"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fs := &FileStorage{
		basePath: basePath,
		memory:   NewMemoryStorage(),
		logger:   logger.Named("storage"),
	}

	// Load existing data
	if err := fs.loadAll(); err != nil {
		return nil, err
	}

	return fs, nil
}

// loadAll loads all data from disk. Unreadable files are skipped.
func (f *FileStorage) loadAll() error {
	err := f.loadDir("mocks", func(data []byte) {
		var mock models.MockDefinition
		if err := json.Unmarshal(data, &mock); err != nil {
			return
		}
		_ = f.memory.CreateMock(&mock)
	})
	if err != nil {
		return err
	}

	err = f.loadDir("chats", func(data []byte) {
		var cf chatFile
		if err := json.Unmarshal(data, &cf); err != nil || cf.Chat == nil {
			return
		}
		f.memory.restoreChat(cf.Chat, cf.Messages)
	})
	if err != nil {
		return err
	}

	data, err := os.ReadFile(f.ledgerPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var lf ledgerFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return fmt.Errorf("failed to parse ledger: %w", err)
	}
	f.memory.restoreTotalHits(lf.TotalHits)
	return nil
}

func (f *FileStorage) loadDir(kind string, load func(data []byte)) error {
	dir := filepath.Join(f.basePath, kind)
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		load(data)
	}
	return nil
}

func (f *FileStorage) mockPath(id string) string {
	return filepath.Join(f.basePath, "mocks", id+".json")
}

func (f *FileStorage) chatPath(id string) string {
	return filepath.Join(f.basePath, "chats", id+".json")
}

func (f *FileStorage) ledgerPath() string {
	return filepath.Join(f.basePath, "ledger.json")
}

// writeJSON replaces path atomically
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// saveMock writes the current in-memory state of a mock, or removes its
// file when the mock is gone.
func (f *FileStorage) saveMock(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	mock, err := f.memory.GetMock(id)
	if models.IsNotFound(err) {
		return removeFile(f.mockPath(id))
	}
	if err != nil {
		return err
	}
	return writeJSON(f.mockPath(id), mock)
}

func (f *FileStorage) saveChat(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	chat, err := f.memory.GetChat(id)
	if models.IsNotFound(err) {
		return removeFile(f.chatPath(id))
	}
	if err != nil {
		return err
	}
	messages, err := f.memory.GetMessages(id)
	if err != nil {
		return err
	}
	return writeJSON(f.chatPath(id), chatFile{Chat: chat, Messages: messages})
}

func (f *FileStorage) saveLedger() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	total, _ := f.memory.TotalHits()
	return writeJSON(f.ledgerPath(), ledgerFile{TotalHits: total})
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &models.UpstreamError{Op: op, Err: err}
}

// Mock operations

func (f *FileStorage) CreateMock(mock *models.MockDefinition) error {
	if err := f.memory.CreateMock(mock); err != nil {
		return err
	}
	return persistErr("save mock", f.saveMock(mock.ID))
}

func (f *FileStorage) GetMock(id string) (*models.MockDefinition, error) {
	return f.memory.GetMock(id)
}

func (f *FileStorage) ListMocks() ([]*models.MockDefinition, error) {
	return f.memory.ListMocks()
}

func (f *FileStorage) UpdateMock(id string, fn MockMutator) (*models.MockDefinition, error) {
	mock, err := f.memory.UpdateMock(id, fn)
	if err != nil {
		return nil, err
	}
	if err := f.saveMock(id); err != nil {
		return nil, persistErr("save mock", err)
	}
	return mock, nil
}

func (f *FileStorage) DeleteMock(id string) error {
	if err := f.memory.DeleteMock(id); err != nil {
		return err
	}
	return persistErr("delete mock", f.saveMock(id))
}

func (f *FileStorage) CountMocks() (int, error) {
	return f.memory.CountMocks()
}

// RecordHit commits the hit in memory. A failed disk write is logged and
// the hit stands; the next write of the mock or ledger carries it.
func (f *FileStorage) RecordHit(id string, at time.Time) (*models.MockDefinition, error) {
	mock, err := f.memory.RecordHit(id, at)
	if err != nil {
		return nil, err
	}
	if err := f.saveMock(id); err != nil {
		f.logger.Warn("failed to persist hit", zap.String("mock", id), zap.Error(err))
	}
	if err := f.saveLedger(); err != nil {
		f.logger.Warn("failed to persist total hits", zap.Error(err))
	}
	return mock, nil
}

func (f *FileStorage) TotalHits() (int64, error) {
	return f.memory.TotalHits()
}

// Chat operations

func (f *FileStorage) CreateChat(c *models.ChatSession) error {
	if err := f.memory.CreateChat(c); err != nil {
		return err
	}
	return persistErr("save chat", f.saveChat(c.ID))
}

func (f *FileStorage) GetChat(id string) (*models.ChatSession, error) {
	return f.memory.GetChat(id)
}

func (f *FileStorage) ListChats() ([]*models.ChatSession, error) {
	return f.memory.ListChats()
}

func (f *FileStorage) DeleteChat(id string) error {
	if err := f.memory.DeleteChat(id); err != nil {
		return err
	}
	return persistErr("delete chat", f.saveChat(id))
}

func (f *FileStorage) CountChats() (int, error) {
	return f.memory.CountChats()
}

func (f *FileStorage) AppendMessage(msg *models.ChatMessage) (*models.ChatSession, error) {
	session, err := f.memory.AppendMessage(msg)
	if err != nil {
		return nil, err
	}
	if err := f.saveChat(msg.ChatID); err != nil {
		return nil, persistErr("save chat", err)
	}
	return session, nil
}

func (f *FileStorage) GetMessages(chatID string) ([]*models.ChatMessage, error) {
	return f.memory.GetMessages(chatID)
}

func (f *FileStorage) GetMessage(chatID, messageID string) (*models.ChatMessage, error) {
	return f.memory.GetMessage(chatID, messageID)
}

func (f *FileStorage) SetGeneratedMock(chatID, messageID, mockID string) error {
	if err := f.memory.SetGeneratedMock(chatID, messageID, mockID); err != nil {
		return err
	}
	return persistErr("save chat", f.saveChat(chatID))
}

// Utility

func (f *FileStorage) Close() error {
	return f.memory.Close()
}
