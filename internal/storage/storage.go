package storage

import (
	"context"
	"errors"
	"slices"
	"time"
)

// ErrClientNotFound is returned when no client is registered under an id.
// An unknown client is a normal protocol outcome, not a storage fault.
var ErrClientNotFound = errors.New("client not found")

// ErrUserNotFound is returned when a user doesn't exist
var ErrUserNotFound = errors.New("user not found")

// ErrUserExists is returned when creating a user whose email is taken
var ErrUserExists = errors.New("user already exists")

// Client is a registered OAuth consumer. Records are created out-of-band by
// the provision command and are read-only at request time.
type Client struct {
	ID           string
	Secret       []byte // bcrypt hash; nil for public clients
	RedirectURIs []string
	CreatedAt    time.Time
}

// AllowsRedirect reports whether uri is one of the client's registered
// redirect targets.
func (c *Client) AllowsRedirect(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// User is a resource owner
type User struct {
	ID        string
	Email     string
	Password  []byte // bcrypt hash; nil for federated (Google) users
	CreatedAt time.Time
	LastSeen  time.Time
}

// Storage provides client and user records to the grant flow. The client
// directory is read-only from the server's perspective; writes happen through
// the provision command and the Google sign-in upsert.
type Storage interface {
	GetClient(ctx context.Context, clientID string) (*Client, error)
	CreateClient(ctx context.Context, client *Client) error
	ListClients(ctx context.Context) ([]*Client, error)

	GetUser(ctx context.Context, userID string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	// UpsertUser records a federated sign-in, creating the user on first
	// sight and bumping LastSeen after that.
	UpsertUser(ctx context.Context, email string) (*User, error)

	Close() error
}
