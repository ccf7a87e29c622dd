// Package auth guards the HTTP bridge with a bearer token. Only the bcrypt
// hash of the token is ever stored.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"

	"github.com/pkg/errors"
	"github.com/vrsandeep/mango-tracker/internal/kv"
	"golang.org/x/crypto/bcrypt"
)

// KeyTokenHash is the key-value entry holding the generated token's hash.
const KeyTokenHash = "apiTokenHash"

// HashToken generates a bcrypt hash of the token.
func HashToken(token string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckTokenHash compares a plaintext token with a stored bcrypt hash.
func CheckTokenHash(token, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

// GenerateToken returns a random URL-safe token.
func GenerateToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "auth: generate token")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// EnsureToken returns the hash to verify requests against. A configured
// hash wins. Otherwise a stored hash is reused, and on first start a token
// is generated, its hash stored, and the plaintext returned once so the
// caller can show it.
func EnsureToken(ctx context.Context, st kv.Store, configured string) (hash, generated string, err error) {
	if configured != "" {
		return configured, "", nil
	}
	var stored string
	ok, err := kv.GetJSON(ctx, st, KeyTokenHash, &stored)
	if err != nil {
		return "", "", err
	}
	if ok && stored != "" {
		return stored, "", nil
	}

	token, err := GenerateToken()
	if err != nil {
		return "", "", err
	}
	if hash, err = HashToken(token); err != nil {
		return "", "", errors.Wrap(err, "auth: hash token")
	}
	if err := st.Set(ctx, map[string]any{KeyTokenHash: hash}); err != nil {
		return "", "", errors.Wrap(err, "auth: store token hash")
	}
	return hash, token, nil
}

// Verifier checks bearer tokens against one hash. The last accepted token
// is remembered so bcrypt runs once per token rather than per request.
type Verifier struct {
	hash string

	mu       sync.RWMutex
	accepted string
}

func NewVerifier(hash string) *Verifier {
	return &Verifier{hash: hash}
}

// Verify reports whether token matches. An empty hash rejects everything.
func (v *Verifier) Verify(token string) bool {
	if v.hash == "" || token == "" {
		return false
	}
	v.mu.RLock()
	hit := v.accepted != "" && v.accepted == token
	v.mu.RUnlock()
	if hit {
		return true
	}
	if !CheckTokenHash(token, v.hash) {
		return false
	}
	v.mu.Lock()
	v.accepted = token
	v.mu.Unlock()
	return true
}
