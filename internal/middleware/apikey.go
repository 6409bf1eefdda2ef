package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/vyrodovalexey/svcgw/internal/config"
	"github.com/vyrodovalexey/svcgw/internal/observability"
)

// Errors returned by KeySet.Verify.
var (
	ErrMissingAPIKey = errors.New("no API key provided")
	ErrInvalidAPIKey = errors.New("invalid API key")
)

type keyKind int

const (
	keyPlain keyKind = iota
	keySHA256
	keyBcrypt
)

type storedKey struct {
	kind  keyKind
	value []byte
}

// KeySet holds the accepted inbound API keys.
type KeySet struct {
	keys []storedKey
}

// ParseKeySet parses plaintext, "sha256:<hex>" and "bcrypt:<hash>" entries.
func ParseKeySet(entries []string) (*KeySet, error) {
	ks := &KeySet{keys: make([]storedKey, 0, len(entries))}
	for i, entry := range entries {
		switch {
		case entry == "":
			return nil, fmt.Errorf("api key %d is empty", i)
		case strings.HasPrefix(entry, config.KeyPrefixSHA256):
			digest, err := hex.DecodeString(strings.TrimPrefix(entry, config.KeyPrefixSHA256))
			if err != nil || len(digest) != sha256.Size {
				return nil, fmt.Errorf("api key %d: malformed sha256 digest", i)
			}
			ks.keys = append(ks.keys, storedKey{kind: keySHA256, value: digest})
		case strings.HasPrefix(entry, config.KeyPrefixBcrypt):
			hash := []byte(strings.TrimPrefix(entry, config.KeyPrefixBcrypt))
			if _, err := bcrypt.Cost(hash); err != nil {
				return nil, fmt.Errorf("api key %d: %w", i, err)
			}
			ks.keys = append(ks.keys, storedKey{kind: keyBcrypt, value: hash})
		default:
			ks.keys = append(ks.keys, storedKey{kind: keyPlain, value: []byte(entry)})
		}
	}
	return ks, nil
}

// Len returns the number of accepted keys.
func (ks *KeySet) Len() int {
	if ks == nil {
		return 0
	}
	return len(ks.keys)
}

// Verify checks provided against every accepted key.
func (ks *KeySet) Verify(provided string) error {
	if provided == "" {
		return ErrMissingAPIKey
	}

	digest := sha256.Sum256([]byte(provided))
	for _, k := range ks.keys {
		switch k.kind {
		case keyPlain:
			if subtle.ConstantTimeCompare([]byte(provided), k.value) == 1 {
				return nil
			}
		case keySHA256:
			if subtle.ConstantTimeCompare(digest[:], k.value) == 1 {
				return nil
			}
		case keyBcrypt:
			if bcrypt.CompareHashAndPassword(k.value, []byte(provided)) == nil {
				return nil
			}
		}
	}
	return ErrInvalidAPIKey
}

// HashKey renders key in one of the stored forms ("sha256" or "bcrypt")
// suitable for security.api_keys.
func HashKey(key, algorithm string) (string, error) {
	switch algorithm {
	case "sha256":
		sum := sha256.Sum256([]byte(key))
		return config.KeyPrefixSHA256 + hex.EncodeToString(sum[:]), nil
	case "bcrypt":
		hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
		if err != nil {
			return "", err
		}
		return config.KeyPrefixBcrypt + string(hash), nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm: %s", algorithm)
	}
}

// APIKeyConfig holds configuration for the API key middleware.
type APIKeyConfig struct {
	Keys   *KeySet
	Header string
	Logger observability.Logger
}

// APIKeyAuth rejects requests lacking a valid key in the configured header
// with 403. An empty key set disables the check.
func APIKeyAuth(cfg APIKeyConfig) gin.HandlerFunc {
	if cfg.Keys.Len() == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if cfg.Header == "" {
		cfg.Header = config.DefaultAPIKeyHeader
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}

	return func(c *gin.Context) {
		err := cfg.Keys.Verify(c.GetHeader(cfg.Header))
		if err == nil {
			c.Next()
			return
		}

		cfg.Logger.WithContext(c.Request.Context()).Warn("api key rejected",
			observability.String("reason", err.Error()),
			observability.String("path", c.Request.URL.Path),
		)

		if errors.Is(err, ErrMissingAPIKey) {
			AbortWithDetail(c, http.StatusForbidden, DetailNoAPIKey)
			return
		}
		AbortWithDetail(c, http.StatusForbidden, DetailInvalidAPIKey)
	}
}
