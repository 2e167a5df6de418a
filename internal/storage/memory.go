package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pixelfort/oauth-server/internal/log"
)

// Ensure MemoryStorage implements the Storage interface
var _ Storage = (*MemoryStorage)(nil)

// MemoryStorage is a simple storage layer - only stores and retrieves data.
// Everything is lost on restart; it exists for development and tests.
type MemoryStorage struct {
	clientsMutex sync.RWMutex
	clients      map[string]*Client

	usersMutex   sync.RWMutex
	users        map[string]*User // keyed by user ID
	usersByEmail map[string]string
}

// NewMemoryStorage creates a new storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		clients:      make(map[string]*Client),
		users:        make(map[string]*User),
		usersByEmail: make(map[string]string),
	}
}

func (s *MemoryStorage) GetClient(_ context.Context, clientID string) (*Client, error) {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	clientCopy := *client
	return &clientCopy, nil
}

func (s *MemoryStorage) CreateClient(_ context.Context, client *Client) error {
	if client.ID == "" {
		return fmt.Errorf("client id is required")
	}

	clientCopy := *client
	if clientCopy.CreatedAt.IsZero() {
		clientCopy.CreatedAt = time.Now()
	}

	s.clientsMutex.Lock()
	s.clients[client.ID] = &clientCopy
	clientCount := len(s.clients)
	s.clientsMutex.Unlock()

	log.Logf("Created client %s, redirect_uris: %v", client.ID, client.RedirectURIs)
	log.Logf("Total clients in storage: %d", clientCount)
	return nil
}

func (s *MemoryStorage) ListClients(_ context.Context) ([]*Client, error) {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()

	clients := make([]*Client, 0, len(s.clients))
	for _, client := range s.clients {
		clientCopy := *client
		clients = append(clients, &clientCopy)
	}
	return clients, nil
}

func (s *MemoryStorage) GetUser(_ context.Context, userID string) (*User, error) {
	s.usersMutex.RLock()
	defer s.usersMutex.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	userCopy := *user
	return &userCopy, nil
}

func (s *MemoryStorage) GetUserByEmail(_ context.Context, email string) (*User, error) {
	s.usersMutex.RLock()
	defer s.usersMutex.RUnlock()

	id, ok := s.usersByEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	userCopy := *s.users[id]
	return &userCopy, nil
}

func (s *MemoryStorage) CreateUser(_ context.Context, user *User) error {
	if user.Email == "" {
		return fmt.Errorf("user email is required")
	}

	userCopy := *user
	if userCopy.ID == "" {
		userCopy.ID = uuid.NewString()
	}
	if userCopy.CreatedAt.IsZero() {
		userCopy.CreatedAt = time.Now()
	}

	s.usersMutex.Lock()
	defer s.usersMutex.Unlock()

	if _, exists := s.usersByEmail[user.Email]; exists {
		return ErrUserExists
	}
	s.users[userCopy.ID] = &userCopy
	s.usersByEmail[userCopy.Email] = userCopy.ID
	return nil
}

func (s *MemoryStorage) UpsertUser(_ context.Context, email string) (*User, error) {
	s.usersMutex.Lock()
	defer s.usersMutex.Unlock()

	if id, exists := s.usersByEmail[email]; exists {
		// Create a copy to avoid modifying the struct directly
		userCopy := *s.users[id]
		userCopy.LastSeen = time.Now()
		s.users[id] = &userCopy
		result := userCopy
		return &result, nil
	}

	user := &User{
		ID:        uuid.NewString(),
		Email:     email,
		CreatedAt: time.Now(),
		LastSeen:  time.Now(),
	}
	s.users[user.ID] = user
	s.usersByEmail[email] = user.ID

	userCopy := *user
	return &userCopy, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
