package feed

import (
	"sync"

	"github.com/google/uuid"
	"github.com/prasenjit/mockforge/internal/models"
)

// Service fans served-request records out to live subscribers.
// Slow subscribers miss records instead of blocking the publisher.
type Service struct {
	mu          sync.RWMutex
	bufferSize  int
	subscribers map[string]chan models.RequestRecord
}

// NewService creates a new feed
func NewService(bufferSize int) *Service {
	if bufferSize <= 0 {
		bufferSize = 100
	}

	return &Service{
		bufferSize:  bufferSize,
		subscribers: make(map[string]chan models.RequestRecord),
	}
}

// Publish delivers a record to every subscriber (non-blocking)
func (s *Service) Publish(rec models.RequestRecord) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- rec:
		default:
			// Channel full, skip
		}
	}
}

// Subscribe creates a subscription for live records
func (s *Service) Subscribe() (string, <-chan models.RequestRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan models.RequestRecord, s.bufferSize)
	s.subscribers[id] = ch

	return id, ch
}

// Unsubscribe removes a subscription and closes its channel
func (s *Service) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Subscribers returns the number of active subscriptions
func (s *Service) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
