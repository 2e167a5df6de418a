package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pixelfort/oauth-server/internal/log"
)

// FirestoreStorage implements client and user storage using Google Cloud
// Firestore. Clients are cached in memory: they are registered out-of-band
// and read on every authorize/token request, so the cache is load-once,
// read-mostly. Users are always read through to Firestore.
type FirestoreStorage struct {
	client       *firestore.Client
	projectID    string
	clientColl   string
	userColl     string
	clientsMutex sync.RWMutex
	clients      map[string]*Client
}

// Ensure FirestoreStorage implements the Storage interface
var _ Storage = (*FirestoreStorage)(nil)

// clientEntity represents a registered OAuth client document in Firestore
type clientEntity struct {
	ID           string    `firestore:"id"`
	Secret       []byte    `firestore:"secret,omitempty"` // bcrypt hash, nil for public clients
	RedirectURIs []string  `firestore:"redirect_uris"`
	CreatedAt    time.Time `firestore:"created_at"`
}

// userEntity represents a resource-owner document in Firestore
type userEntity struct {
	ID        string    `firestore:"id"`
	Email     string    `firestore:"email"`
	Password  []byte    `firestore:"password,omitempty"` // bcrypt hash, nil for federated users
	CreatedAt time.Time `firestore:"created_at"`
	LastSeen  time.Time `firestore:"last_seen"`
}

func (e *clientEntity) toClient() *Client {
	return &Client{
		ID:           e.ID,
		Secret:       e.Secret,
		RedirectURIs: e.RedirectURIs,
		CreatedAt:    e.CreatedAt,
	}
}

func (e *userEntity) toUser() *User {
	return &User{
		ID:        e.ID,
		Email:     e.Email,
		Password:  e.Password,
		CreatedAt: e.CreatedAt,
		LastSeen:  e.LastSeen,
	}
}

// NewFirestoreStorage creates a new Firestore storage instance
func NewFirestoreStorage(ctx context.Context, projectID, database, collectionPrefix string) (*FirestoreStorage, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collectionPrefix == "" {
		collectionPrefix = "oauth_server"
	}

	var client *firestore.Client
	var err error

	// Firestore client with custom database
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	s := &FirestoreStorage{
		client:     client,
		projectID:  projectID,
		clientColl: collectionPrefix + "_clients",
		userColl:   collectionPrefix + "_users",
		clients:    make(map[string]*Client),
	}

	// Load existing clients into memory for fast access
	if err := s.loadClients(ctx); err != nil {
		log.LogError("Failed to load clients from Firestore: %v", err)
		// Don't fail startup, just log the error
	}

	return s, nil
}

// loadClients loads all registered clients from Firestore into memory
func (s *FirestoreStorage) loadClients(ctx context.Context) error {
	iter := s.client.Collection(s.clientColl).Documents(ctx)
	defer iter.Stop()

	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()

	loadedCount := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("error iterating Firestore documents: %w", err)
		}

		var entity clientEntity
		if err := doc.DataTo(&entity); err != nil {
			log.LogError("Failed to unmarshal client from Firestore (client_id: %s): %v", doc.Ref.ID, err)
			continue
		}

		s.clients[entity.ID] = entity.toClient()
		loadedCount++
	}

	log.Logf("Loaded %d OAuth clients from Firestore", loadedCount)
	return nil
}

// GetClient retrieves a client from the memory cache, loading from Firestore
// on miss. Concurrent misses may load the same client twice; duplicate reads
// are idempotent and cost-negligible at this scale.
func (s *FirestoreStorage) GetClient(ctx context.Context, clientID string) (*Client, error) {
	s.clientsMutex.RLock()
	client, ok := s.clients[clientID]
	s.clientsMutex.RUnlock()

	if ok {
		clientCopy := *client
		return &clientCopy, nil
	}

	doc, err := s.client.Collection(s.clientColl).Doc(clientID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client from Firestore: %w", err)
	}

	var entity clientEntity
	if err := doc.DataTo(&entity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", err)
	}

	client = entity.toClient()
	s.clientsMutex.Lock()
	s.clients[clientID] = client
	s.clientsMutex.Unlock()

	clientCopy := *client
	return &clientCopy, nil
}

func (s *FirestoreStorage) CreateClient(ctx context.Context, client *Client) error {
	if client.ID == "" {
		return fmt.Errorf("client id is required")
	}

	clientCopy := *client
	if clientCopy.CreatedAt.IsZero() {
		clientCopy.CreatedAt = time.Now()
	}

	entity := clientEntity{
		ID:           clientCopy.ID,
		Secret:       clientCopy.Secret,
		RedirectURIs: clientCopy.RedirectURIs,
		CreatedAt:    clientCopy.CreatedAt,
	}

	if _, err := s.client.Collection(s.clientColl).Doc(client.ID).Set(ctx, entity); err != nil {
		return fmt.Errorf("failed to store client in Firestore: %w", err)
	}

	s.clientsMutex.Lock()
	s.clients[client.ID] = &clientCopy
	s.clientsMutex.Unlock()

	log.Logf("Created client %s, redirect_uris: %v", client.ID, client.RedirectURIs)
	return nil
}

func (s *FirestoreStorage) ListClients(ctx context.Context) ([]*Client, error) {
	iter := s.client.Collection(s.clientColl).Documents(ctx)
	defer iter.Stop()

	var clients []*Client
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating Firestore documents: %w", err)
		}

		var entity clientEntity
		if err := doc.DataTo(&entity); err != nil {
			log.LogError("Failed to unmarshal client from Firestore (client_id: %s): %v", doc.Ref.ID, err)
			continue
		}
		clients = append(clients, entity.toClient())
	}
	return clients, nil
}

func (s *FirestoreStorage) GetUser(ctx context.Context, userID string) (*User, error) {
	doc, err := s.client.Collection(s.userColl).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user from Firestore: %w", err)
	}

	var entity userEntity
	if err := doc.DataTo(&entity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return entity.toUser(), nil
}

func (s *FirestoreStorage) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	iter := s.client.Collection(s.userColl).Where("email", "==", email).Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user by email: %w", err)
	}

	var entity userEntity
	if err := doc.DataTo(&entity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return entity.toUser(), nil
}

func (s *FirestoreStorage) CreateUser(ctx context.Context, user *User) error {
	if user.Email == "" {
		return fmt.Errorf("user email is required")
	}

	if _, err := s.GetUserByEmail(ctx, user.Email); err == nil {
		return ErrUserExists
	}

	userCopy := *user
	if userCopy.ID == "" {
		userCopy.ID = uuid.NewString()
	}
	if userCopy.CreatedAt.IsZero() {
		userCopy.CreatedAt = time.Now()
	}

	entity := userEntity{
		ID:        userCopy.ID,
		Email:     userCopy.Email,
		Password:  userCopy.Password,
		CreatedAt: userCopy.CreatedAt,
		LastSeen:  userCopy.LastSeen,
	}

	if _, err := s.client.Collection(s.userColl).Doc(userCopy.ID).Set(ctx, entity); err != nil {
		return fmt.Errorf("failed to store user in Firestore: %w", err)
	}
	return nil
}

func (s *FirestoreStorage) UpsertUser(ctx context.Context, email string) (*User, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if err == nil {
		user.LastSeen = time.Now()
		update := []firestore.Update{{Path: "last_seen", Value: user.LastSeen}}
		if _, err := s.client.Collection(s.userColl).Doc(user.ID).Update(ctx, update); err != nil {
			// Last-seen tracking is best effort; the sign-in still succeeds
			log.LogWarn("Failed to update last_seen for user %s: %v", user.ID, err)
		}
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	user = &User{
		ID:        uuid.NewString(),
		Email:     email,
		CreatedAt: time.Now(),
		LastSeen:  time.Now(),
	}

	entity := userEntity{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
		LastSeen:  user.LastSeen,
	}

	if _, err := s.client.Collection(s.userColl).Doc(user.ID).Set(ctx, entity); err != nil {
		return nil, fmt.Errorf("failed to store user in Firestore: %w", err)
	}
	return user, nil
}

func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}
