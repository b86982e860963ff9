package security

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/leslieo2/go-probe-toggle/internal/config"
	"github.com/leslieo2/go-probe-toggle/internal/constants"
)

var (
	ErrInvalidAPIKey  = errors.New("invalid API key")
	ErrAPIKeyDisabled = errors.New("API key is disabled")
	ErrAPIKeyExpired  = errors.New("API key has expired")
)

type APIKey struct {
	Key       string            `json:"key" yaml:"key"`
	Name      string            `json:"name" yaml:"name"`
	Enabled   bool              `json:"enabled" yaml:"enabled"`
	CreatedAt time.Time         `json:"created_at" yaml:"created_at"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	LastUsed  *time.Time        `json:"last_used,omitempty" yaml:"last_used,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// AuthManager checks API keys presented to the toggle endpoints. Its key set
// and settings can be swapped at runtime with Reload.
type AuthManager struct {
	mu     sync.RWMutex
	keys   map[string]*APIKey
	config config.AuthConfig
	clock  Clock
}

func NewAuthManager(cfg config.AuthConfig) *AuthManager {
	am := &AuthManager{clock: RealClock{}}
	am.Reload(cfg)
	return am
}

// Reload replaces the key set and header/query settings. LastUsed is carried
// over for keys present in both the old and new set.
func (am *AuthManager) Reload(cfg config.AuthConfig) {
	keys := make(map[string]*APIKey, len(cfg.Keys))
	for _, key := range cfg.Keys {
		keys[key.Key] = &APIKey{
			Key:       key.Key,
			Name:      key.Name,
			Enabled:   key.Enabled,
			CreatedAt: key.CreatedAt,
			ExpiresAt: key.ExpiresAt,
			Metadata:  key.Metadata,
		}
	}

	am.mu.Lock()
	defer am.mu.Unlock()

	for k, v := range keys {
		if old, ok := am.keys[k]; ok {
			v.LastUsed = old.LastUsed
		}
	}
	am.keys = keys
	am.config = cfg
}

func (am *AuthManager) Enabled() bool {
	am.mu.RLock()
	defer am.mu.RUnlock()
	return am.config.Enabled
}

func (am *AuthManager) KeyCount() int {
	am.mu.RLock()
	defer am.mu.RUnlock()
	return len(am.keys)
}

// GenerateAPIKey creates a random key and adds it to the active set.
func (am *AuthManager) GenerateAPIKey(name string) (*APIKey, error) {
	key, err := generateRandomKey(constants.DefaultAPIKeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}

	apiKey := &APIKey{
		Key:       key,
		Name:      name,
		Enabled:   true,
		CreatedAt: am.clock.Now().UTC(),
		Metadata:  make(map[string]string),
	}

	am.mu.Lock()
	defer am.mu.Unlock()

	am.keys[key] = apiKey
	return apiKey, nil
}

func (am *AuthManager) ValidateAPIKey(providedKey string) (*APIKey, error) {
	am.mu.Lock()
	defer am.mu.Unlock()

	// Compare against every key so timing does not reveal a prefix match.
	var foundKey *APIKey
	for _, apiKey := range am.keys {
		if subtle.ConstantTimeCompare([]byte(apiKey.Key), []byte(providedKey)) == 1 {
			foundKey = apiKey
		}
	}

	if foundKey == nil {
		return nil, ErrInvalidAPIKey
	}
	if !foundKey.Enabled {
		return nil, ErrAPIKeyDisabled
	}

	now := am.clock.Now()
	if foundKey.ExpiresAt != nil && now.After(*foundKey.ExpiresAt) {
		return nil, ErrAPIKeyExpired
	}

	foundKey.LastUsed = &now
	copied := *foundKey
	return &copied, nil
}

// ExtractAPIKey looks for a key in the configured header, then the configured
// query parameter, then an Authorization bearer token.
func (am *AuthManager) ExtractAPIKey(r *http.Request) string {
	am.mu.RLock()
	headerName, queryParam := am.config.HeaderName, am.config.QueryParamName
	am.mu.RUnlock()

	if headerName != "" {
		if key := r.Header.Get(headerName); key != "" {
			return strings.TrimSpace(key)
		}
	}

	if queryParam != "" {
		if key := r.URL.Query().Get(queryParam); key != "" {
			return strings.TrimSpace(key)
		}
	}

	authHeader := r.Header.Get(constants.HeaderAuthorization)
	if strings.HasPrefix(authHeader, constants.BearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, constants.BearerPrefix))
	}

	return ""
}

func generateRandomKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// Middleware rejects requests without a valid API key when auth is enabled.
func (am *AuthManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !am.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		key := am.ExtractAPIKey(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, errorResponse{
				Error:   "Authentication required",
				Message: "API key is required to access this endpoint",
				Code:    constants.ErrorCodeUnauthorized,
			})
			return
		}

		apiKey, err := am.ValidateAPIKey(key)
		if err != nil {
			code := constants.ErrorCodeInvalidAPIKey
			switch {
			case errors.Is(err, ErrAPIKeyExpired):
				code = constants.ErrorCodeAPIKeyExpired
			case errors.Is(err, ErrAPIKeyDisabled):
				code = constants.ErrorCodeAPIKeyDisabled
			}
			writeError(w, http.StatusUnauthorized, errorResponse{
				Error:   code,
				Message: err.Error(),
				Code:    code,
			})
			return
		}

		next.ServeHTTP(w, r.WithContext(WithAPIKey(r.Context(), apiKey)))
	})
}

type contextKey string

const apiKeyContextKey contextKey = "api_key"

func WithAPIKey(ctx context.Context, key *APIKey) context.Context {
	return context.WithValue(ctx, apiKeyContextKey, key)
}

func APIKeyFromContext(ctx context.Context) (*APIKey, bool) {
	key, ok := ctx.Value(apiKeyContextKey).(*APIKey)
	return key, ok
}
