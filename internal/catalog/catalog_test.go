package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prasenjit/mockforge/internal/models"
	"github.com/prasenjit/mockforge/internal/storage"
	"github.com/prasenjit/mockforge/internal/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCatalog() (*Catalog, *storage.MemoryStorage) {
	store := storage.NewMemoryStorage()
	return New(store, template.NewEngine(), zap.NewNop()), store
}

func validInput() *models.MockInput {
	return &models.MockInput{
		Name:           "Get user",
		Method:         "get",
		Path:           "/api/users/:id",
		ResponseStatus: 200,
		ResponseBody:   map[string]any{"id": "{{uuid}}"},
	}
}

func requireValidationField(t *testing.T, err error, field string) {
	t.Helper()
	var ve *models.ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	assert.Equal(t, field, ve.Field)
}

func TestCreate(t *testing.T) {
	c, _ := newTestCatalog()
	ctx := context.Background()

	def, err := c.Create(ctx, validInput())
	require.NoError(t, err)

	assert.NotEmpty(t, def.ID)
	assert.Equal(t, "GET", def.Method)
	assert.Equal(t, int64(0), def.HitCount)
	assert.Nil(t, def.LastAccessed)
	assert.Nil(t, def.ResponseHeaders)
	assert.Nil(t, def.MatchConditions)
	assert.Equal(t, models.ProvenanceManual, def.Provenance())
	assert.False(t, def.CreatedAt.IsZero())
	assert.Equal(t, def.CreatedAt, def.UpdatedAt)

	got, err := c.Get(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, def.Path, got.Path)
}

func TestCreate_NormalizesEmptyConditions(t *testing.T) {
	c, _ := newTestCatalog()

	in := validInput()
	in.Path = "api/ping"
	in.MatchConditions = &models.MatchConditions{QueryContains: map[string]string{}}

	def, err := c.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, def.MatchConditions)
	assert.Equal(t, "/api/ping", def.Path)
}

func TestCreate_Validation(t *testing.T) {
	c, store := newTestCatalog()

	tests := []struct {
		name   string
		mutate func(in *models.MockInput)
		field  string
	}{
		{"unknown method", func(in *models.MockInput) { in.Method = "TRACE" }, "method"},
		{"missing method", func(in *models.MockInput) { in.Method = "" }, "method"},
		{"empty path", func(in *models.MockInput) { in.Path = "  " }, "path"},
		{"status too low", func(in *models.MockInput) { in.ResponseStatus = 99 }, "responseStatus"},
		{"status too high", func(in *models.MockInput) { in.ResponseStatus = 600 }, "responseStatus"},
		{"negative delay", func(in *models.MockInput) { in.Delay = -1 }, "delay"},
		{"reversed randomInt", func(in *models.MockInput) {
			in.ResponseBody = map[string]any{"n": "{{randomInt(9,1)}}"}
		}, "responseBody"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(in)
			_, err := c.Create(context.Background(), in)
			requireValidationField(t, err, tt.field)
		})
	}

	n, _ := store.CountMocks()
	assert.Equal(t, 0, n, "rejected input is never stored")
}

func TestCreate_AcceptsBoundaryValues(t *testing.T) {
	c, _ := newTestCatalog()

	for _, status := range []int{100, 599} {
		in := validInput()
		in.ResponseStatus = status
		_, err := c.Create(context.Background(), in)
		assert.NoError(t, err, "status %d", status)
	}

	for _, method := range []string{"POST", "put", "Patch", "DELETE", "options"} {
		in := validInput()
		in.Method = method
		_, err := c.Create(context.Background(), in)
		assert.NoError(t, err, "method %s", method)
	}
}

func decodeUpdate(t *testing.T, raw string) *models.MockUpdate {
	t.Helper()
	var upd models.MockUpdate
	require.NoError(t, json.Unmarshal([]byte(raw), &upd))
	return &upd
}

func TestUpdate_ThreeStateFields(t *testing.T) {
	c, _ := newTestCatalog()
	ctx := context.Background()

	in := validInput()
	in.ResponseHeaders = map[string]string{"X-A": "1"}
	in.MatchConditions = &models.MatchConditions{QueryContains: map[string]string{"v": "1"}}
	def, err := c.Create(ctx, in)
	require.NoError(t, err)

	t.Run("absent keeps", func(t *testing.T) {
		got, err := c.Update(ctx, def.ID, decodeUpdate(t, `{"name":"Renamed"}`))
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		assert.Equal(t, map[string]string{"X-A": "1"}, got.ResponseHeaders)
		require.NotNil(t, got.MatchConditions)
		assert.Equal(t, "1", got.MatchConditions.QueryContains["v"])
	})

	t.Run("value sets", func(t *testing.T) {
		got, err := c.Update(ctx, def.ID, decodeUpdate(t, `{"responseHeaders":{"X-B":"2"}}`))
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"X-B": "2"}, got.ResponseHeaders)
	})

	t.Run("null clears", func(t *testing.T) {
		got, err := c.Update(ctx, def.ID, decodeUpdate(t, `{"responseHeaders":null,"matchConditions":null}`))
		require.NoError(t, err)
		assert.Nil(t, got.ResponseHeaders)
		assert.Nil(t, got.MatchConditions)

		data, err := json.Marshal(got)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "responseHeaders")
		assert.NotContains(t, string(data), "matchConditions")
	})

	t.Run("empty predicate clears", func(t *testing.T) {
		got, err := c.Update(ctx, def.ID, decodeUpdate(t, `{"matchConditions":{}}`))
		require.NoError(t, err)
		assert.Nil(t, got.MatchConditions)
	})
}

func TestUpdate_BumpsUpdatedAtAndKeepsHits(t *testing.T) {
	c, store := newTestCatalog()
	ctx := context.Background()

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return created }
	def, err := c.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = store.RecordHit(def.ID, created.Add(time.Minute))
	require.NoError(t, err)

	later := created.Add(time.Hour)
	c.now = func() time.Time { return later }
	got, err := c.Update(ctx, def.ID, decodeUpdate(t, `{"delay":25,"responseBody":{"ok":true}}`))
	require.NoError(t, err)

	assert.Equal(t, later, got.UpdatedAt)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, int64(1), got.HitCount)
	assert.Equal(t, 25, got.Delay)
	assert.Equal(t, map[string]any{"ok": true}, got.ResponseBody)
}

func TestUpdate_InvalidIsNeverPartiallyApplied(t *testing.T) {
	c, _ := newTestCatalog()
	ctx := context.Background()

	def, err := c.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = c.Update(ctx, def.ID, decodeUpdate(t, `{"name":"changed","responseStatus":42}`))
	requireValidationField(t, err, "responseStatus")

	got, err := c.Get(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "Get user", got.Name)
	assert.Equal(t, def.UpdatedAt, got.UpdatedAt)
}

func TestUpdate_NotFound(t *testing.T) {
	c, _ := newTestCatalog()
	_, err := c.Update(context.Background(), "missing", decodeUpdate(t, `{"name":"x"}`))
	assert.True(t, models.IsNotFound(err))
}

func TestClone(t *testing.T) {
	c, store := newTestCatalog()
	ctx := context.Background()

	chatID := "chat-1"
	in := validInput()
	in.CreatedByChatID = &chatID
	in.ResponseHeaders = map[string]string{"X-A": "1"}
	def, err := c.Create(ctx, in)
	require.NoError(t, err)
	_, err = store.RecordHit(def.ID, time.Now())
	require.NoError(t, err)

	clone, err := c.Clone(ctx, def.ID)
	require.NoError(t, err)

	assert.NotEqual(t, def.ID, clone.ID)
	assert.Equal(t, "Get user (Copy)", clone.Name)
	assert.Equal(t, int64(0), clone.HitCount)
	assert.Nil(t, clone.LastAccessed)
	assert.Nil(t, clone.CreatedByChatID)
	assert.Equal(t, models.ProvenanceManual, clone.Provenance())
	assert.Equal(t, def.Method, clone.Method)
	assert.Equal(t, def.Path, clone.Path)
	assert.Equal(t, def.ResponseHeaders, clone.ResponseHeaders)
	assert.Equal(t, def.ResponseBody, clone.ResponseBody)

	src, err := c.Get(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), src.HitCount, "source keeps its counters")

	_, err = c.Clone(ctx, "missing")
	assert.True(t, models.IsNotFound(err))
}

func TestDelete(t *testing.T) {
	c, _ := newTestCatalog()
	ctx := context.Background()

	def, err := c.Create(ctx, validInput())
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, def.ID))
	assert.True(t, models.IsNotFound(c.Delete(ctx, def.ID)))

	_, err = c.Get(ctx, def.ID)
	assert.True(t, models.IsNotFound(err))
}

func TestDeleteMany_Idempotent(t *testing.T) {
	c, store := newTestCatalog()
	ctx := context.Background()

	a, _ := c.Create(ctx, validInput())
	b, _ := c.Create(ctx, validInput())
	keep, _ := c.Create(ctx, validInput())

	n, err := c.DeleteMany(ctx, []string{a.ID, b.ID, a.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.DeleteMany(ctx, []string{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	remaining, _ := store.ListMocks()
	require.Len(t, remaining, 1)
	assert.Equal(t, keep.ID, remaining[0].ID)
}

func TestList_PaginationAndFilter(t *testing.T) {
	c, _ := newTestCatalog()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		c.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		in := validInput()
		in.Name = fmt.Sprintf("mock %02d", i)
		in.Path = fmt.Sprintf("/items/%d", i)
		if i%5 == 0 {
			in.Path = fmt.Sprintf("/orders/%d", i)
		}
		_, err := c.Create(ctx, in)
		require.NoError(t, err)
	}

	page, err := c.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, page.Items, DefaultPageSize)
	assert.Equal(t, Pagination{Page: 1, PageSize: 20, Total: 25, TotalPages: 2}, page.Pagination)
	assert.Equal(t, "mock 24", page.Items[0].Name, "newest first")

	page, err = c.List(ctx, ListOptions{Page: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)
	assert.Equal(t, "mock 00", page.Items[4].Name)

	page, err = c.List(ctx, ListOptions{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	page, err = c.List(ctx, ListOptions{PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, page.Pagination.PageSize)

	page, err = c.List(ctx, ListOptions{Query: "ORDERS"})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Pagination.Total)

	page, err = c.List(ctx, ListOptions{Query: "mock 1"})
	require.NoError(t, err)
	assert.Equal(t, 10, page.Pagination.Total)
}

func TestCancelledContext(t *testing.T) {
	c, _ := newTestCatalog()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Create(ctx, validInput())
	assert.ErrorIs(t, err, context.Canceled)
}
