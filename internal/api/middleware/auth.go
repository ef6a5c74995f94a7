package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/kiranshivaraju/fineprint/internal/api/response"
	"github.com/kiranshivaraju/fineprint/internal/config"
	"github.com/kiranshivaraju/fineprint/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	keyPrefixLen    = 8
	anonymousCaller = "anonymous"
)

// Auth provides authentication and scope-checking middleware.
type Auth struct {
	keys []models.APIKey

	// verified maps a digest of a raw key that already passed bcrypt to its
	// key, so each key pays the bcrypt cost once per process.
	mu       sync.RWMutex
	verified map[string]models.APIKey
}

// NewAuth creates a new Auth middleware. With no keys every request is let
// through with all scopes.
func NewAuth(keys []models.APIKey) *Auth {
	if len(keys) == 0 {
		slog.Warn("no API keys configured, authentication disabled")
	}
	return &Auth{keys: keys, verified: make(map[string]models.APIKey)}
}

// KeysFromConfig turns the configured hashes into keys. Admin keys get both
// scopes.
func KeysFromConfig(cfg config.AuthConfig) []models.APIKey {
	keys := make([]models.APIKey, 0, len(cfg.APIKeyHashes)+len(cfg.AdminKeyHashes))
	for i, h := range cfg.APIKeyHashes {
		keys = append(keys, models.APIKey{
			Name:    fmt.Sprintf("key-%d", i+1),
			KeyHash: h,
			Scopes:  []string{models.ScopeRead},
		})
	}
	for i, h := range cfg.AdminKeyHashes {
		keys = append(keys, models.APIKey{
			Name:    fmt.Sprintf("admin-%d", i+1),
			KeyHash: h,
			Scopes:  []string{models.ScopeRead, models.ScopeAdmin},
		})
	}
	return keys
}

// Authenticate validates the Bearer token against the configured keys and
// stores the matching Caller in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(a.keys) == 0 {
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), Caller{
				Name:   anonymousCaller,
				Prefix: clientIP(r),
				Scopes: []string{models.ScopeRead, models.ScopeAdmin},
			})))
			return
		}

		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if len(rawKey) < keyPrefixLen {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key format", nil)
			return
		}

		key, ok := a.match(rawKey)
		if !ok {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), Caller{
			Name:   key.Name,
			Prefix: rawKey[:keyPrefixLen],
			Scopes: key.Scopes,
		})))
	})
}

func (a *Auth) match(rawKey string) (models.APIKey, bool) {
	sum := sha256.Sum256([]byte(rawKey))
	digest := hex.EncodeToString(sum[:])

	a.mu.RLock()
	key, ok := a.verified[digest]
	a.mu.RUnlock()
	if ok {
		return key, true
	}

	// Find matching key by bcrypt comparison
	for _, k := range a.keys {
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(rawKey)) == nil {
			a.mu.Lock()
			a.verified[digest] = k
			a.mu.Unlock()
			return k, true
		}
	}
	return models.APIKey{}, false
}

// RequireScope returns middleware that checks whether the authenticated
// API key has the specified scope.
func (a *Auth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, ok := CallerFrom(r.Context()); ok && c.can(scope) {
				next.ServeHTTP(w, r)
				return
			}
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Insufficient permissions", nil)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
