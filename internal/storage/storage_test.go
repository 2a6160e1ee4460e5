package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prasenjit/mockforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStorage runs the behaviour every backend must share
func testStorage(t *testing.T, open func(t *testing.T) Storage) {
	t.Run("mock lifecycle", func(t *testing.T) { testMockLifecycle(t, open(t)) })
	t.Run("absent fields stay absent", func(t *testing.T) { testAbsentFields(t, open(t)) })
	t.Run("update mutator error", func(t *testing.T) { testUpdateMutatorError(t, open(t)) })
	t.Run("record hit", func(t *testing.T) { testRecordHit(t, open(t)) })
	t.Run("hit after delete", func(t *testing.T) { testHitAfterDelete(t, open(t)) })
	t.Run("recreated mock starts fresh", func(t *testing.T) { testRecreateAfterDelete(t, open(t)) })
	t.Run("concurrent hits on one mock", func(t *testing.T) { testConcurrentHits(t, open(t)) })
	t.Run("concurrent hits across mocks", func(t *testing.T) { testConcurrentHitsAcrossMocks(t, open(t)) })
	t.Run("chat lifecycle", func(t *testing.T) { testChatLifecycle(t, open(t)) })
}

func newMock(id string, updated time.Time) *models.MockDefinition {
	return &models.MockDefinition{
		ID:             id,
		Name:           "mock " + id,
		Method:         models.MethodGet,
		Path:           "/" + id,
		ResponseStatus: 200,
		ResponseBody:   map[string]any{"id": id},
		CreatedAt:      updated,
		UpdatedAt:      updated,
	}
}

func testMockLifecycle(t *testing.T, s Storage) {
	defer s.Close()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, s.CreateMock(newMock("a", now)))
	require.NoError(t, s.CreateMock(newMock("b", now.Add(time.Second))))
	assert.Error(t, s.CreateMock(newMock("a", now)), "duplicate id")

	got, err := s.GetMock("a")
	require.NoError(t, err)
	assert.Equal(t, "/a", got.Path)
	assert.Equal(t, map[string]any{"id": "a"}, got.ResponseBody)

	list, err := s.ListMocks()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID, "newest first")

	updated, err := s.UpdateMock("a", func(m *models.MockDefinition) error {
		m.Name = "renamed"
		m.ID = "hijack"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, "a", updated.ID)

	n, err := s.CountMocks()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.DeleteMock("a"))
	_, err = s.GetMock("a")
	assert.True(t, models.IsNotFound(err))
	assert.True(t, models.IsNotFound(s.DeleteMock("a")))

	_, err = s.UpdateMock("a", func(m *models.MockDefinition) error { return nil })
	assert.True(t, models.IsNotFound(err))
}

func testAbsentFields(t *testing.T, s Storage) {
	defer s.Close()

	plain := newMock("plain", time.Now())
	withEmpty := newMock("empty", time.Now())
	withEmpty.ResponseHeaders = map[string]string{}

	require.NoError(t, s.CreateMock(plain))
	require.NoError(t, s.CreateMock(withEmpty))

	got, err := s.GetMock("plain")
	require.NoError(t, err)
	assert.Nil(t, got.ResponseHeaders)
	assert.Nil(t, got.MatchConditions)

	got, err = s.GetMock("empty")
	require.NoError(t, err)
	assert.NotNil(t, got.ResponseHeaders)
}

func testUpdateMutatorError(t *testing.T, s Storage) {
	defer s.Close()
	require.NoError(t, s.CreateMock(newMock("a", time.Now())))

	_, err := s.UpdateMock("a", func(m *models.MockDefinition) error {
		m.Name = "partial"
		return models.NewValidationError("path", "must not be empty")
	})
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)

	got, err := s.GetMock("a")
	require.NoError(t, err)
	assert.Equal(t, "mock a", got.Name)
}

func testRecordHit(t *testing.T, s Storage) {
	defer s.Close()
	require.NoError(t, s.CreateMock(newMock("a", time.Now())))
	require.NoError(t, s.CreateMock(newMock("b", time.Now())))

	at := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		_, err := s.RecordHit("a", at)
		require.NoError(t, err)
	}
	hit, err := s.RecordHit("b", at)
	require.NoError(t, err)
	assert.Equal(t, int64(1), hit.HitCount)

	got, err := s.GetMock("a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.HitCount)
	require.NotNil(t, got.LastAccessed)
	assert.True(t, got.LastAccessed.Equal(at))

	total, err := s.TotalHits()
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	// updates never reset counters
	got, err = s.UpdateMock("a", func(m *models.MockDefinition) error {
		m.HitCount = 0
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.HitCount)
}

func testHitAfterDelete(t *testing.T, s Storage) {
	defer s.Close()
	require.NoError(t, s.CreateMock(newMock("a", time.Now())))
	_, err := s.RecordHit("a", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.DeleteMock("a"))

	_, err = s.RecordHit("a", time.Now())
	assert.True(t, models.IsNotFound(err))

	total, err := s.TotalHits()
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "lifetime total survives deletion")
}

func testChatLifecycle(t *testing.T, s Storage) {
	defer s.Close()
	now := time.Now().UTC().Truncate(time.Millisecond)
	title := "users api"

	require.NoError(t, s.CreateChat(&models.ChatSession{ID: "c1", Title: &title, CreatedAt: now, UpdatedAt: now}))

	for i, id := range []string{"m1", "m2", "m3"} {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		session, err := s.AppendMessage(&models.ChatMessage{
			ID:        id,
			ChatID:    "c1",
			Role:      role,
			Content:   "content " + id,
			CreatedAt: now.Add(time.Duration(i+1) * time.Second),
		})
		require.NoError(t, err)
		assert.Equal(t, i+1, session.MessageCount)
	}

	_, err := s.AppendMessage(&models.ChatMessage{ID: "x", ChatID: "missing"})
	assert.True(t, models.IsNotFound(err))

	chat, err := s.GetChat("c1")
	require.NoError(t, err)
	assert.Equal(t, 3, chat.MessageCount)
	assert.True(t, chat.UpdatedAt.Equal(now.Add(3*time.Second)))
	require.NotNil(t, chat.Title)
	assert.Equal(t, "users api", *chat.Title)

	msgs, err := s.GetMessages("c1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})

	require.NoError(t, s.SetGeneratedMock("c1", "m2", "mock-9"))
	msg, err := s.GetMessage("c1", "m2")
	require.NoError(t, err)
	require.NotNil(t, msg.GeneratedMockID)
	assert.Equal(t, "mock-9", *msg.GeneratedMockID)

	_, err = s.GetMessage("c1", "nope")
	assert.True(t, models.IsNotFound(err))

	n, err := s.CountChats()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.DeleteChat("c1"))
	_, err = s.GetChat("c1")
	assert.True(t, models.IsNotFound(err))
	_, err = s.GetMessages("c1")
	assert.True(t, models.IsNotFound(err))
	assert.True(t, models.IsNotFound(s.DeleteChat("c1")))

	chats, err := s.ListChats()
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func testRecreateAfterDelete(t *testing.T, s Storage) {
	defer s.Close()
	require.NoError(t, s.CreateMock(newMock("a", time.Now())))
	_, err := s.RecordHit("a", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.DeleteMock("a"))

	require.NoError(t, s.CreateMock(newMock("a", time.Now())))
	got, err := s.GetMock("a")
	require.NoError(t, err)
	assert.Zero(t, got.HitCount)
	assert.Nil(t, got.LastAccessed)

	_, err = s.RecordHit("a", time.Now())
	require.NoError(t, err)
	got, _ = s.GetMock("a")
	assert.Equal(t, int64(1), got.HitCount)
}

// testConcurrentHits hammers one mock while it is being edited. Every hit
// must succeed and be counted exactly once.
func testConcurrentHits(t *testing.T, s Storage) {
	defer s.Close()
	require.NoError(t, s.CreateMock(newMock("a", time.Now())))

	const workers, perWorker = 20, 50
	base := time.Now().UTC().Truncate(time.Millisecond)
	var (
		wg     sync.WaitGroup
		failed atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				at := base.Add(time.Duration(i*perWorker+j) * time.Millisecond)
				if _, err := s.RecordHit("a", at); err != nil {
					failed.Add(1)
				}
			}
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for k := 0; k < 10; k++ {
			if _, err := s.UpdateMock("a", func(m *models.MockDefinition) error {
				m.Name = "edited"
				return nil
			}); err != nil {
				failed.Add(1)
			}
		}
	}()
	wg.Wait()

	assert.Zero(t, failed.Load())

	got, err := s.GetMock("a")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), got.HitCount)
	assert.Equal(t, "edited", got.Name)
	require.NotNil(t, got.LastAccessed)
	assert.True(t, got.LastAccessed.Equal(base.Add(time.Duration(workers*perWorker-1)*time.Millisecond)))

	total, err := s.TotalHits()
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), total)
}

func testConcurrentHitsAcrossMocks(t *testing.T, s Storage) {
	defer s.Close()

	const mocks, perMock = 32, 10
	for i := 0; i < mocks; i++ {
		require.NoError(t, s.CreateMock(newMock(fmt.Sprintf("m%d", i), time.Now())))
	}

	var (
		wg     sync.WaitGroup
		failed atomic.Int64
	)
	for i := 0; i < mocks; i++ {
		for j := 0; j < perMock; j++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if _, err := s.RecordHit(id, time.Now()); err != nil {
					failed.Add(1)
				}
			}(fmt.Sprintf("m%d", i))
		}
	}
	wg.Wait()

	assert.Zero(t, failed.Load())

	all, err := s.ListMocks()
	require.NoError(t, err)
	require.Len(t, all, mocks)
	for _, m := range all {
		assert.Equal(t, int64(perMock), m.HitCount, m.ID)
	}

	total, err := s.TotalHits()
	require.NoError(t, err)
	assert.Equal(t, int64(mocks*perMock), total)
}

func TestMemoryStorage(t *testing.T) {
	testStorage(t, func(t *testing.T) Storage { return NewMemoryStorage() })
}

func TestFileStorage(t *testing.T) {
	testStorage(t, func(t *testing.T) Storage {
		s, err := NewFileStorage(t.TempDir(), nil)
		require.NoError(t, err)
		return s
	})
}

func TestBadgerStorage(t *testing.T) {
	testStorage(t, func(t *testing.T) Storage {
		s, err := NewBadgerStorage(InMemoryBadgerConfig())
		require.NoError(t, err)
		return s
	})
}

func TestMemoryStorage_DeleteWinsOverUpdate(t *testing.T) {
	s := NewMemoryStorage()
	require.NoError(t, s.CreateMock(newMock("a", time.Now())))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = s.DeleteMock("a")
	}()
	go func() {
		defer wg.Done()
		_, _ = s.UpdateMock("a", func(m *models.MockDefinition) error {
			m.Name = "late"
			return nil
		})
	}()
	wg.Wait()

	_, err := s.GetMock("a")
	assert.True(t, models.IsNotFound(err))

	_, err = s.UpdateMock("a", func(m *models.MockDefinition) error { return nil })
	assert.True(t, models.IsNotFound(err))
}

func TestMemoryStorage_SnapshotsAreCopies(t *testing.T) {
	s := NewMemoryStorage()
	m := newMock("a", time.Now())
	m.ResponseHeaders = map[string]string{"X-A": "1"}
	require.NoError(t, s.CreateMock(m))

	m.ResponseHeaders["X-A"] = "changed by caller"
	got, _ := s.GetMock("a")
	assert.Equal(t, "1", got.ResponseHeaders["X-A"])

	got.ResponseHeaders["X-A"] = "changed again"
	again, _ := s.GetMock("a")
	assert.Equal(t, "1", again.ResponseHeaders["X-A"])
}

func TestFileStorage_Reload(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFileStorage(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.CreateMock(newMock("a", time.Now())))
	_, err = s.RecordHit("a", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.CreateChat(&models.ChatSession{ID: "c1", CreatedAt: time.Now(), UpdatedAt: time.Now()}))
	_, err = s.AppendMessage(&models.ChatMessage{ID: "m1", ChatID: "c1", Role: models.RoleUser, Content: "hi", CreatedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewFileStorage(dir, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetMock("a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.HitCount)
	assert.Nil(t, got.ResponseHeaders)

	total, _ := reopened.TotalHits()
	assert.Equal(t, int64(1), total)

	msgs, err := reopened.GetMessages("c1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestFileStorage_HitSurvivesFailedWrite(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStorage(dir, nil)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.CreateMock(newMock("a", time.Now())))

	// A non-empty directory in place of the record makes the rename fail
	blocked := s.mockPath("a")
	require.NoError(t, os.Remove(blocked))
	require.NoError(t, os.MkdirAll(filepath.Join(blocked, "keep"), 0755))

	hit, err := s.RecordHit("a", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), hit.HitCount)

	got, err := s.GetMock("a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.HitCount)

	total, _ := s.TotalHits()
	assert.Equal(t, int64(1), total)
}

func TestBadgerStorage_Persistent(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultBadgerConfig(dir)
	cfg.SyncWrites = false
	cfg.GCInterval = 0

	s, err := NewBadgerStorage(cfg)
	require.NoError(t, err)
	require.NoError(t, s.CreateMock(newMock("a", time.Now())))
	_, err = s.RecordHit("a", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewBadgerStorage(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetMock("a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.HitCount)
	assert.NotNil(t, got.LastAccessed)

	total, err := reopened.TotalHits()
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestNewBadgerStorage_RequiresPath(t *testing.T) {
	_, err := NewBadgerStorage(BadgerConfig{})
	assert.Error(t, err)
}
