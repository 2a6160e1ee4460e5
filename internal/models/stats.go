package models

import (
	"sync/atomic"
	"time"
)

// Stats represents the ledger's aggregate view
type Stats struct {
	TotalMocks     int             `json:"totalMocks"`
	TotalChats     int             `json:"totalChats"`
	TotalRequests  int64           `json:"totalRequests"`
	TopMocks       []TopMock       `json:"topMocks"`
	RecentRequests []RequestRecord `json:"recentRequests"`
	RequestsByHour []HourlyStat    `json:"requestsByHour"`
	StartTime      time.Time       `json:"startTime"`
	Uptime         string          `json:"uptime"`
}

// TopMock represents one entry of the most-hit list
type TopMock struct {
	MockID       string     `json:"mockId"`
	Name         string     `json:"name"`
	Method       string     `json:"method"`
	Path         string     `json:"path"`
	HitCount     int64      `json:"hitCount"`
	LastAccessed *time.Time `json:"lastAccessed"`
}

// RequestRecord represents one served request
type RequestRecord struct {
	MockID         string    `json:"mockId"`
	MockName       string    `json:"mockName"`
	RequestMethod  string    `json:"requestMethod"`
	RequestPath    string    `json:"requestPath"`
	ResponseStatus int       `json:"responseStatus"`
	Timestamp      time.Time `json:"timestamp"`
	ClientToken    string    `json:"-"`
}

// HourlyStat represents hourly request statistics
type HourlyStat struct {
	Hour     string `json:"hour"`
	Requests int64  `json:"requests"`
}

// HitCounter is a thread-safe hit count plus last access time for one mock
type HitCounter struct {
	hits         atomic.Int64
	lastAccessed atomic.Int64 // unix nanoseconds, 0 when never hit
}

// NewHitCounter seeds a counter from persisted values
func NewHitCounter(hits int64, lastAccessed *time.Time) *HitCounter {
	c := &HitCounter{}
	c.hits.Store(hits)
	if lastAccessed != nil {
		c.lastAccessed.Store(lastAccessed.UnixNano())
	}
	return c
}

// Hit increments the counter and stamps the access time, returning the new count
func (c *HitCounter) Hit(at time.Time) int64 {
	n := c.hits.Add(1)
	ts := at.UnixNano()
	for {
		prev := c.lastAccessed.Load()
		if prev >= ts || c.lastAccessed.CompareAndSwap(prev, ts) {
			break
		}
	}
	return n
}

// Hits returns the current count
func (c *HitCounter) Hits() int64 {
	return c.hits.Load()
}

// LastAccessed returns the last access time or nil
func (c *HitCounter) LastAccessed() *time.Time {
	ns := c.lastAccessed.Load()
	if ns == 0 {
		return nil
	}
	t := time.Unix(0, ns).UTC()
	return &t
}

// Reset zeroes the counter
func (c *HitCounter) Reset() {
	c.hits.Store(0)
	c.lastAccessed.Store(0)
}
