package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by Authenticate when the username is
// unknown or the password does not match the stored hash.
var ErrInvalidCredentials = errors.New("invalid username or password")

// User is one entry of the settings document's users[] array: an admin
// account that can sign in to the admin API and be issued a JWT.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
	Role         string `json:"role,omitempty"` // "admin" or "readonly"
}

// UserStore authenticates against an in-memory snapshot of users[]. The
// settings store owns persistence; callers rebuild UserStore from a fresh
// settings.Store.Load() on every login rather than caching it, so an admin
// edit to users[] takes effect on the next request.
type UserStore struct {
	users map[string]User
}

// NewUserStore indexes users by username (case-sensitive, matching the
// URL-safe name convention used elsewhere in the settings document).
func NewUserStore(users []User) *UserStore {
	idx := make(map[string]User, len(users))
	for _, u := range users {
		idx[u.Username] = u
	}
	return &UserStore{users: idx}
}

// Authenticate verifies a username/password pair and returns the matching
// User on success.
func (s *UserStore) Authenticate(username, password string) (User, error) {
	if s == nil {
		return User{}, ErrInvalidCredentials
	}
	u, ok := s.users[username]
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// HashPassword hashes a plaintext password for storage in users[].
func HashPassword(plain string) (string, error) {
	if strings.TrimSpace(plain) == "" {
		return "", fmt.Errorf("%w: empty password", ErrAPIKeysInvalid)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
