package stats

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prasenjit/mockforge/internal/models"
	"github.com/prasenjit/mockforge/internal/storage"
)

const (
	defaultRecent  = 10
	defaultTop     = 5
	maxHourlySlots = 168 // 7 days
)

// Publisher receives every recorded request, typically the live feed
type Publisher interface {
	Publish(rec models.RequestRecord)
}

// Options tunes the ledger views
type Options struct {
	RecentRequests int
	TopMocks       int
}

// Ledger keeps the derived usage views. Hit counts themselves live in the
// store so that they survive restarts; the ledger only holds the recent ring
// and hourly buckets of this process.
type Ledger struct {
	mu          sync.RWMutex
	store       storage.Storage
	publisher   Publisher
	startTime   time.Time
	recent      []models.RequestRecord // ring buffer
	next        int
	filled      bool
	topN        int
	hourlyStats map[string]int64 // "YYYY-MM-DD-HH" -> requests
	now         func() time.Time
}

// NewLedger creates a new ledger over the given store. publisher may be nil.
func NewLedger(store storage.Storage, publisher Publisher, opts Options) *Ledger {
	if opts.RecentRequests <= 0 {
		opts.RecentRequests = defaultRecent
	}
	if opts.TopMocks <= 0 {
		opts.TopMocks = defaultTop
	}

	return &Ledger{
		store:       store,
		publisher:   publisher,
		startTime:   time.Now(),
		recent:      make([]models.RequestRecord, opts.RecentRequests),
		topN:        opts.TopMocks,
		hourlyStats: make(map[string]int64),
		now:         time.Now,
	}
}

// Record appends a served request to the recent ring and hourly buckets,
// then publishes it.
func (l *Ledger) Record(rec models.RequestRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now().UTC()
	}

	l.mu.Lock()
	l.recent[l.next] = rec
	l.next = (l.next + 1) % len(l.recent)
	if l.next == 0 {
		l.filled = true
	}

	hourKey := rec.Timestamp.Format("2006-01-02-15")
	if _, ok := l.hourlyStats[hourKey]; !ok {
		l.cleanupOldHourlyStats()
	}
	l.hourlyStats[hourKey]++
	l.mu.Unlock()

	if l.publisher != nil {
		l.publisher.Publish(rec)
	}
}

// Recent returns the recorded requests, newest first
func (l *Ledger) Recent() []models.RequestRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := l.next
	if l.filled {
		n = len(l.recent)
	}

	out := make([]models.RequestRecord, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.next - i + len(l.recent)) % len(l.recent)
		out = append(out, l.recent[idx])
	}
	return out
}

// Get builds the aggregate view
func (l *Ledger) Get(ctx context.Context) (*models.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mocks, err := l.store.ListMocks()
	if err != nil {
		return nil, fmt.Errorf("failed to list mocks: %w", err)
	}
	totalChats, err := l.store.CountChats()
	if err != nil {
		return nil, fmt.Errorf("failed to count chats: %w", err)
	}
	totalRequests, err := l.store.TotalHits()
	if err != nil {
		return nil, fmt.Errorf("failed to read hit total: %w", err)
	}

	return &models.Stats{
		TotalMocks:     len(mocks),
		TotalChats:     totalChats,
		TotalRequests:  totalRequests,
		TopMocks:       TopMocks(mocks, l.topN),
		RecentRequests: l.Recent(),
		RequestsByHour: l.buildHourlyStats(),
		StartTime:      l.startTime,
		Uptime:         formatDuration(time.Since(l.startTime)),
	}, nil
}

// TopMocks returns the n most hit mocks, ordered by hit count and then by
// most recent access. Mocks that were never hit are left out.
func TopMocks(mocks []*models.MockDefinition, n int) []models.TopMock {
	hit := make([]*models.MockDefinition, 0, len(mocks))
	for _, m := range mocks {
		if m.HitCount > 0 {
			hit = append(hit, m)
		}
	}

	sort.SliceStable(hit, func(i, j int) bool {
		if hit[i].HitCount != hit[j].HitCount {
			return hit[i].HitCount > hit[j].HitCount
		}
		return accessedAfter(hit[i].LastAccessed, hit[j].LastAccessed)
	})

	if len(hit) > n {
		hit = hit[:n]
	}

	top := make([]models.TopMock, 0, len(hit))
	for _, m := range hit {
		top = append(top, models.TopMock{
			MockID:       m.ID,
			Name:         m.Name,
			Method:       m.Method,
			Path:         m.Path,
			HitCount:     m.HitCount,
			LastAccessed: m.LastAccessed,
		})
	}
	return top
}

func accessedAfter(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}

// cleanupOldHourlyStats drops the oldest buckets. Caller holds l.mu.
func (l *Ledger) cleanupOldHourlyStats() {
	if len(l.hourlyStats) < maxHourlySlots {
		return
	}

	keys := make([]string, 0, len(l.hourlyStats))
	for k := range l.hourlyStats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i := 0; i <= len(keys)-maxHourlySlots; i++ {
		delete(l.hourlyStats, keys[i])
	}
}

// buildHourlyStats returns the last 24 hours, oldest first
func (l *Ledger) buildHourlyStats() []models.HourlyStat {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now().UTC()
	stats := make([]models.HourlyStat, 0, 24)
	for i := 23; i >= 0; i-- {
		hour := now.Add(-time.Duration(i) * time.Hour)
		stats = append(stats, models.HourlyStat{
			Hour:     hour.Format("15:00"),
			Requests: l.hourlyStats[hour.Format("2006-01-02-15")],
		})
	}
	return stats
}

// Reset clears the in-process views. Stored hit counts are untouched.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.startTime = time.Now()
	l.recent = make([]models.RequestRecord, len(l.recent))
	l.next = 0
	l.filled = false
	l.hourlyStats = make(map[string]int64)
}

// formatDuration formats a duration in a human-readable format
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return d.Round(time.Minute).String()
	case d >= time.Minute:
		return d.Round(time.Second).String()
	default:
		return d.Round(time.Millisecond).String()
	}
}
