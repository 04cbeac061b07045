package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/scrypt"

	"github.com/waveroom/waveroom/internal/securemem"
)

const (
	// tokenVersion prefixes every issued token so the format can evolve.
	tokenVersion = "wr1"

	// derivation salt for the signing key; versioned with the token format
	keyContext = "waveroom-token-signing-v1"

	// verified tokens are cached up to this many entries
	maxCacheEntries = 4096
)

// TokenService issues and verifies HMAC-signed bearer tokens. The signing
// key is derived once via scrypt and held in protected memory.
type TokenService struct {
	key *securemem.String
	ttl time.Duration

	mu    sync.RWMutex
	cache map[uint64]cacheEntry
}

type cacheEntry struct {
	userID    string
	expiresAt time.Time
}

// NewTokenService derives the signing key from secret and returns a
// service issuing tokens valid for ttl.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret must not be empty")
	}

	key, err := scrypt.Key([]byte(secret), []byte(keyContext), 1<<15, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}

	return &TokenService{
		key:   securemem.NewStringFromBytes(key),
		ttl:   ttl,
		cache: make(map[uint64]cacheEntry),
	}, nil
}

// Close wipes the signing key from memory.
func (s *TokenService) Close() {
	s.key.Destroy()
}

// Issue creates a signed bearer token for userID.
func (s *TokenService) Issue(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id must not be empty")
	}
	expiry := time.Now().Add(s.ttl).Unix()
	payload := fmt.Sprintf("%s.%s.%d", tokenVersion,
		base64.RawURLEncoding.EncodeToString([]byte(userID)), expiry)
	return payload + "." + s.sign(payload), nil
}

// Verify checks the token signature and expiry and returns the embedded
// user ID. Invalid or expired tokens yield an *AuthenticationError.
func (s *TokenService) Verify(token string) (string, error) {
	if token == "" {
		return "", &AuthenticationError{Reason: "missing credential"}
	}

	// Cache hit avoids re-deriving the HMAC on every event-loop reconnect.
	// Keyed by hash so raw credentials never sit in a map.
	cacheKey := xxhash.Sum64String(token)
	s.mu.RLock()
	entry, ok := s.cache[cacheKey]
	s.mu.RUnlock()
	if ok {
		if time.Now().Before(entry.expiresAt) {
			return entry.userID, nil
		}
		s.mu.Lock()
		delete(s.cache, cacheKey)
		s.mu.Unlock()
		return "", &AuthenticationError{Reason: "expired credential"}
	}

	parts := strings.Split(token, ".")
	if len(parts) != 4 || parts[0] != tokenVersion {
		return "", &AuthenticationError{Reason: "malformed credential"}
	}

	payload := strings.Join(parts[:3], ".")
	if !hmac.Equal([]byte(s.sign(payload)), []byte(parts[3])) {
		return "", &AuthenticationError{Reason: "invalid signature"}
	}

	expiry, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", &AuthenticationError{Reason: "malformed credential"}
	}
	expiresAt := time.Unix(expiry, 0)
	if time.Now().After(expiresAt) {
		return "", &AuthenticationError{Reason: "expired credential"}
	}

	userID, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil || len(userID) == 0 {
		return "", &AuthenticationError{Reason: "malformed credential"}
	}

	s.mu.Lock()
	if len(s.cache) >= maxCacheEntries {
		// eviction is a full reset
		s.cache = make(map[uint64]cacheEntry)
	}
	s.cache[cacheKey] = cacheEntry{userID: string(userID), expiresAt: expiresAt}
	s.mu.Unlock()

	return string(userID), nil
}

func (s *TokenService) sign(payload string) string {
	key := s.key.Bytes()
	defer wipe(key)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
