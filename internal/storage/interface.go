package storage

import (
	"time"

	"github.com/prasenjit/mockforge/internal/models"
)

// MockMutator edits a private copy of a mock inside UpdateMock.
// Returning an error aborts the update and leaves the stored record untouched.
type MockMutator func(m *models.MockDefinition) error

// Storage defines the interface for data persistence.
// Getters return copies; callers may modify them freely.
type Storage interface {
	// Mock operations
	CreateMock(m *models.MockDefinition) error
	GetMock(id string) (*models.MockDefinition, error)
	ListMocks() ([]*models.MockDefinition, error)
	UpdateMock(id string, fn MockMutator) (*models.MockDefinition, error)
	DeleteMock(id string) error
	CountMocks() (int, error)

	// RecordHit atomically increments the mock's hit count, stamps its last
	// access time and adds one to the lifetime total. It returns the mock as
	// of the hit, or a NotFoundError when the mock no longer exists.
	RecordHit(id string, at time.Time) (*models.MockDefinition, error)
	TotalHits() (int64, error)

	// Chat operations
	CreateChat(c *models.ChatSession) error
	GetChat(id string) (*models.ChatSession, error)
	ListChats() ([]*models.ChatSession, error)
	DeleteChat(id string) error
	CountChats() (int, error)

	// Message operations. AppendMessage bumps the session's message count and updatedAt.
	AppendMessage(msg *models.ChatMessage) (*models.ChatSession, error)
	GetMessages(chatID string) ([]*models.ChatMessage, error)
	GetMessage(chatID, messageID string) (*models.ChatMessage, error)
	SetGeneratedMock(chatID, messageID, mockID string) error

	// Utility
	Close() error
}
