package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned by TokenAuthenticator.Verify for any token
// that fails parsing, signature verification, or has expired.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the payload MCPHub embeds in admin-session JWTs.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenAuthenticator issues and verifies HMAC-signed JWTs for the admin
// API's /auth/login flow.
type TokenAuthenticator struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenAuthenticator builds an authenticator signing with secret and
// issuing tokens valid for ttl (defaults to one hour when ttl <= 0).
func NewTokenAuthenticator(secret []byte, ttl time.Duration) *TokenAuthenticator {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenAuthenticator{secret: secret, ttl: ttl}
}

// Issue mints a signed token for the given user.
func (a *TokenAuthenticator) Issue(user User) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Subject:   user.Username,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// DefaultJWTSecretPath returns the default path to the JWT signing secret
// (~/.mcphub/jwt_secret), mirroring DefaultAPIKeysPath.
func DefaultJWTSecretPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".mcphub", "jwt_secret"), nil
}

// LoadOrCreateJWTSecret reads the signing secret at path, generating and
// persisting a fresh one on first run.
func LoadOrCreateJWTSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err == nil {
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read jwt secret: %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate jwt secret: %w", err)
	}
	secret := []byte(hex.EncodeToString(raw))

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create jwt secret directory: %w", err)
	}
	if err := os.WriteFile(path, secret, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write jwt secret: %w", err)
	}
	return secret, nil
}

// Verify parses and validates a bearer token, returning its claims.
func (a *TokenAuthenticator) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrInvalidToken, t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
