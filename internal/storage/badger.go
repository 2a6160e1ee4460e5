package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prasenjit/mockforge/internal/models"
	"go.uber.org/zap"
)

// Key layout
const (
	mockPrefix     = "mock/"
	hitsPrefix     = "hits/"
	seenPrefix     = "seen/"
	chatPrefix     = "chat/"
	messagePrefix  = "msg/"
	totalHitsKey   = "meta/totalHits"
	maxTxnAttempts = 16

	// mergeInterval is how often merge operators fold their pending adds
	mergeInterval = time.Second
)

// BadgerConfig configures the embedded key/value store
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM, mainly for tests
	InMemory bool

	// SyncWrites fsyncs every commit
	SyncWrites bool

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the discardable fraction that triggers a rewrite
	GCDiscardRatio float64

	Logger *zap.Logger
}

// DefaultBadgerConfig returns settings for a persistent database
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryBadgerConfig returns settings for a throwaway database
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger routes badger's internal logging to zap
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

// BadgerStorage implements Storage interface on top of BadgerDB.
// Each record operation runs in one transaction; conflicting writers are
// retried. Hit counters live under their own keys and are bumped through
// merge operators, so hits never read-modify-write and never conflict.
type BadgerStorage struct {
	db     *badger.DB
	logger *zap.Logger
	stopGC chan struct{}
	doneGC chan struct{}

	total *badger.MergeOperator

	mu      sync.Mutex
	entries map[string]*hitEntry
}

// hitEntry orders a mock's deletion after its in-flight hits. Hits share
// the read side.
type hitEntry struct {
	mu      sync.RWMutex
	once    sync.Once
	hits    *badger.MergeOperator
	seen    *badger.MergeOperator
	deleted bool
}

// stop halts the entry's merge operators. Caller holds e.mu exclusively.
func (e *hitEntry) stop() {
	if e.hits != nil {
		e.hits.Stop()
		e.seen.Stop()
	}
}

// NewBadgerStorage opens the database described by cfg
func NewBadgerStorage(cfg BadgerConfig) (*BadgerStorage, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &BadgerStorage{
		db:      db,
		logger:  logger,
		total:   db.GetMergeOperator([]byte(totalHitsKey), addUint64, mergeInterval),
		entries: make(map[string]*hitEntry),
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.doneGC = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

func (s *BadgerStorage) runGC(interval time.Duration, ratio float64) {
	defer close(s.doneGC)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("badger value log GC failed", zap.Error(err))
			}
		}
	}
}

// update runs fn in a read-write transaction, retrying on conflicts
func (s *BadgerStorage) update(op string, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnAttempts; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	return wrapBadgerErr(op, err)
}

func (s *BadgerStorage) view(op string, fn func(txn *badger.Txn) error) error {
	return wrapBadgerErr(op, s.db.View(fn))
}

// wrapBadgerErr passes domain errors through and marks store failures as upstream
func wrapBadgerErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var nf *models.NotFoundError
	var ve *models.ValidationError
	if errors.As(err, &nf) || errors.As(err, &ve) {
		return err
	}
	return &models.UpstreamError{Op: op, Err: err}
}

func getJSON(txn *badger.Txn, key string, v any) (bool, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), data)
}

// scanPrefix calls fn with the value of every key under prefix, in key order
func scanPrefix(txn *badger.Txn, prefix string, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		if err := item.Value(func(val []byte) error {
			return fn(key, val)
		}); err != nil {
			return err
		}
	}
	return nil
}

func countPrefix(txn *badger.Txn, prefix string) int {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Rewind(); it.Valid(); it.Next() {
		n++
	}
	return n
}

func messageKey(chatID string, seq int) string {
	return fmt.Sprintf("%s%s/%010d", messagePrefix, chatID, seq)
}

func messagesPrefix(chatID string) string {
	return messagePrefix + chatID + "/"
}

func encodeUint64(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// addUint64 sums two counter values
func addUint64(existing, next []byte) []byte {
	return encodeUint64(decodeUint64(existing) + decodeUint64(next))
}

// maxUint64 keeps the larger of two values, used for last access times
func maxUint64(existing, next []byte) []byte {
	if decodeUint64(existing) > decodeUint64(next) {
		return existing
	}
	return next
}

// readMerged folds every live version of a merge-operated key, newest first,
// stopping at a delete or a version that discards older ones.
func readMerged(txn *badger.Txn, key string, merge badger.MergeFunc) (uint64, error) {
	opts := badger.DefaultIteratorOptions
	opts.AllVersions = true
	it := txn.NewKeyIterator([]byte(key), opts)
	defer it.Close()

	var acc []byte
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		if item.IsDeletedOrExpired() {
			break
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return 0, err
		}
		if acc == nil {
			acc = val
		} else {
			acc = merge(val, acc)
		}
		if item.DiscardEarlierVersions() {
			break
		}
	}
	return decodeUint64(acc), nil
}

// loadHits fills the counters of mock from its hit keys
func loadHits(txn *badger.Txn, mock *models.MockDefinition) error {
	hits, err := readMerged(txn, hitsPrefix+mock.ID, addUint64)
	if err != nil {
		return err
	}
	seen, err := readMerged(txn, seenPrefix+mock.ID, maxUint64)
	if err != nil {
		return err
	}

	mock.HitCount = int64(hits)
	mock.LastAccessed = nil
	if seen > 0 {
		ts := time.Unix(0, int64(seen)).UTC()
		mock.LastAccessed = &ts
	}
	return nil
}

// record returns the persisted form of a mock. Counters are kept apart.
func record(mock *models.MockDefinition) *models.MockDefinition {
	r := *mock
	r.HitCount = 0
	r.LastAccessed = nil
	return &r
}

// hitEntry returns the entry for id, creating it on first use
func (s *BadgerStorage) hitEntry(id string) *hitEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		e = &hitEntry{}
		s.entries[id] = e
	}
	return e
}

func (s *BadgerStorage) forget(id string, e *hitEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[id] == e {
		delete(s.entries, id)
	}
}

// operators starts the entry's merge operators on the first hit
func (s *BadgerStorage) operators(id string, e *hitEntry) (*badger.MergeOperator, *badger.MergeOperator) {
	e.once.Do(func() {
		e.hits = s.db.GetMergeOperator([]byte(hitsPrefix+id), addUint64, mergeInterval)
		e.seen = s.db.GetMergeOperator([]byte(seenPrefix+id), maxUint64, mergeInterval)
	})
	return e.hits, e.seen
}

// Mock operations

func (s *BadgerStorage) CreateMock(mock *models.MockDefinition) error {
	return s.update("create mock", func(txn *badger.Txn) error {
		key := mockPrefix + mock.ID
		if _, err := txn.Get([]byte(key)); err == nil {
			return fmt.Errorf("mock already exists: %s", mock.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := setJSON(txn, key, record(mock)); err != nil {
			return err
		}

		// Seed values discard anything left behind by an earlier mock with this id
		seed := badger.NewEntry([]byte(hitsPrefix+mock.ID), encodeUint64(uint64(mock.HitCount))).WithDiscard()
		if err := txn.SetEntry(seed); err != nil {
			return err
		}
		if mock.LastAccessed == nil {
			return txn.Delete([]byte(seenPrefix + mock.ID))
		}
		seen := badger.NewEntry([]byte(seenPrefix+mock.ID), encodeUint64(uint64(mock.LastAccessed.UnixNano()))).WithDiscard()
		return txn.SetEntry(seen)
	})
}

func (s *BadgerStorage) GetMock(id string) (*models.MockDefinition, error) {
	var mock models.MockDefinition
	err := s.view("get mock", func(txn *badger.Txn) error {
		found, err := getJSON(txn, mockPrefix+id, &mock)
		if err != nil {
			return err
		}
		if !found {
			return models.NotFound("mock", id)
		}
		return loadHits(txn, &mock)
	})
	if err != nil {
		return nil, err
	}
	return &mock, nil
}

func (s *BadgerStorage) ListMocks() ([]*models.MockDefinition, error) {
	var result []*models.MockDefinition
	err := s.view("list mocks", func(txn *badger.Txn) error {
		err := scanPrefix(txn, mockPrefix, func(_, val []byte) error {
			var mock models.MockDefinition
			if err := json.Unmarshal(val, &mock); err != nil {
				return err
			}
			result = append(result, &mock)
			return nil
		})
		if err != nil {
			return err
		}
		for _, mock := range result {
			if err := loadHits(txn, mock); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortMocks(result)
	return result, nil
}

func (s *BadgerStorage) UpdateMock(id string, fn MockMutator) (*models.MockDefinition, error) {
	// Counters are read outside the transaction so hits landing meanwhile
	// do not conflict with the edit.
	current, err := s.GetMock(id)
	if err != nil {
		return nil, err
	}

	err = s.update("update mock", func(txn *badger.Txn) error {
		var mock models.MockDefinition
		found, err := getJSON(txn, mockPrefix+id, &mock)
		if err != nil {
			return err
		}
		if !found {
			return models.NotFound("mock", id)
		}

		mock.HitCount, mock.LastAccessed = current.HitCount, current.LastAccessed
		if err := fn(&mock); err != nil {
			return err
		}
		mock.ID = id
		return setJSON(txn, mockPrefix+id, record(&mock))
	})
	if err != nil {
		return nil, err
	}
	return s.GetMock(id)
}

func (s *BadgerStorage) DeleteMock(id string) error {
	e := s.hitEntry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	err := s.update("delete mock", func(txn *badger.Txn) error {
		key := []byte(mockPrefix + id)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return models.NotFound("mock", id)
		} else if err != nil {
			return err
		}
		if err := txn.Delete([]byte(hitsPrefix + id)); err != nil {
			return err
		}
		if err := txn.Delete([]byte(seenPrefix + id)); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if err != nil && !models.IsNotFound(err) {
		return err
	}

	e.deleted = true
	e.stop()
	s.forget(id, e)
	return err
}

func (s *BadgerStorage) CountMocks() (int, error) {
	var n int
	err := s.view("count mocks", func(txn *badger.Txn) error {
		n = countPrefix(txn, mockPrefix)
		return nil
	})
	return n, err
}

// RecordHit bumps the mock's counter and the lifetime total through merge
// operators. The per-mock add is the commit point; the access time and the
// total follow it and their failures are logged.
func (s *BadgerStorage) RecordHit(id string, at time.Time) (*models.MockDefinition, error) {
	e := s.hitEntry(id)
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.deleted {
		return nil, models.NotFound("mock", id)
	}
	if err := s.view("record hit", func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(mockPrefix + id)); errors.Is(err, badger.ErrKeyNotFound) {
			return models.NotFound("mock", id)
		} else if err != nil {
			return err
		}
		return nil
	}); err != nil {
		return nil, err
	}

	hits, seen := s.operators(id, e)
	if err := hits.Add(encodeUint64(1)); err != nil {
		return nil, wrapBadgerErr("record hit", err)
	}
	if err := seen.Add(encodeUint64(uint64(at.UnixNano()))); err != nil {
		s.logger.Warn("failed to record last access", zap.String("mock", id), zap.Error(err))
	}
	if err := s.total.Add(encodeUint64(1)); err != nil {
		s.logger.Warn("failed to bump total hits", zap.String("mock", id), zap.Error(err))
	}

	return s.GetMock(id)
}

func (s *BadgerStorage) TotalHits() (int64, error) {
	var total uint64
	err := s.view("total hits", func(txn *badger.Txn) error {
		var err error
		total, err = readMerged(txn, totalHitsKey, addUint64)
		return err
	})
	return int64(total), err
}

// Chat operations

func (s *BadgerStorage) CreateChat(c *models.ChatSession) error {
	return s.update("create chat", func(txn *badger.Txn) error {
		key := chatPrefix + c.ID
		if _, err := txn.Get([]byte(key)); err == nil {
			return fmt.Errorf("chat already exists: %s", c.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setJSON(txn, key, c)
	})
}

func (s *BadgerStorage) GetChat(id string) (*models.ChatSession, error) {
	var chat models.ChatSession
	err := s.view("get chat", func(txn *badger.Txn) error {
		found, err := getJSON(txn, chatPrefix+id, &chat)
		if err != nil {
			return err
		}
		if !found {
			return models.NotFound("chat", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (s *BadgerStorage) ListChats() ([]*models.ChatSession, error) {
	var result []*models.ChatSession
	err := s.view("list chats", func(txn *badger.Txn) error {
		return scanPrefix(txn, chatPrefix, func(_, val []byte) error {
			var chat models.ChatSession
			if err := json.Unmarshal(val, &chat); err != nil {
				return err
			}
			result = append(result, &chat)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortChats(result)
	return result, nil
}

func (s *BadgerStorage) DeleteChat(id string) error {
	return s.update("delete chat", func(txn *badger.Txn) error {
		key := []byte(chatPrefix + id)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return models.NotFound("chat", id)
		} else if err != nil {
			return err
		}

		var msgKeys [][]byte
		err := scanPrefix(txn, messagesPrefix(id), func(k, _ []byte) error {
			msgKeys = append(msgKeys, k)
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range msgKeys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return txn.Delete(key)
	})
}

func (s *BadgerStorage) CountChats() (int, error) {
	var n int
	err := s.view("count chats", func(txn *badger.Txn) error {
		n = countPrefix(txn, chatPrefix)
		return nil
	})
	return n, err
}

func (s *BadgerStorage) AppendMessage(msg *models.ChatMessage) (*models.ChatSession, error) {
	var session models.ChatSession
	err := s.update("append message", func(txn *badger.Txn) error {
		found, err := getJSON(txn, chatPrefix+msg.ChatID, &session)
		if err != nil {
			return err
		}
		if !found {
			return models.NotFound("chat", msg.ChatID)
		}

		if err := setJSON(txn, messageKey(msg.ChatID, session.MessageCount), msg); err != nil {
			return err
		}
		session.MessageCount++
		if msg.CreatedAt.After(session.UpdatedAt) {
			session.UpdatedAt = msg.CreatedAt
		}
		return setJSON(txn, chatPrefix+msg.ChatID, &session)
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *BadgerStorage) GetMessages(chatID string) ([]*models.ChatMessage, error) {
	result := []*models.ChatMessage{}
	err := s.view("get messages", func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(chatPrefix + chatID)); errors.Is(err, badger.ErrKeyNotFound) {
			return models.NotFound("chat", chatID)
		} else if err != nil {
			return err
		}
		return scanPrefix(txn, messagesPrefix(chatID), func(_, val []byte) error {
			var msg models.ChatMessage
			if err := json.Unmarshal(val, &msg); err != nil {
				return err
			}
			result = append(result, &msg)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// findMessage returns the message and its key inside a chat
func findMessage(txn *badger.Txn, chatID, messageID string) (*models.ChatMessage, []byte, error) {
	if _, err := txn.Get([]byte(chatPrefix + chatID)); errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, models.NotFound("chat", chatID)
	} else if err != nil {
		return nil, nil, err
	}

	var (
		found *models.ChatMessage
		key   []byte
	)
	err := scanPrefix(txn, messagesPrefix(chatID), func(k, val []byte) error {
		if found != nil {
			return nil
		}
		var msg models.ChatMessage
		if err := json.Unmarshal(val, &msg); err != nil {
			return err
		}
		if msg.ID == messageID {
			found, key = &msg, k
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if found == nil {
		return nil, nil, models.NotFound("message", messageID)
	}
	return found, key, nil
}

func (s *BadgerStorage) GetMessage(chatID, messageID string) (*models.ChatMessage, error) {
	var msg *models.ChatMessage
	err := s.view("get message", func(txn *badger.Txn) error {
		var err error
		msg, _, err = findMessage(txn, chatID, messageID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *BadgerStorage) SetGeneratedMock(chatID, messageID, mockID string) error {
	return s.update("set generated mock", func(txn *badger.Txn) error {
		msg, key, err := findMessage(txn, chatID, messageID)
		if err != nil {
			return err
		}
		msg.GeneratedMockID = &mockID
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

// Utility

func (s *BadgerStorage) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.doneGC
	}

	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[string]*hitEntry)
	s.mu.Unlock()
	for _, e := range entries {
		e.mu.Lock()
		e.stop()
		e.mu.Unlock()
	}
	s.total.Stop()

	return s.db.Close()
}
