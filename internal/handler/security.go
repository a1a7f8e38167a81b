package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/teespace/storefront/internal/domain/auth"
)

// APIKeyGuard authenticates admin requests via HMAC-SHA256 hashed API keys
// sent in the api_key header.
type APIKeyGuard struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewAPIKeyGuard creates an APIKeyGuard with the given API key repository
// and HMAC pepper.
func NewAPIKeyGuard(apikeys auth.Repository, pepper []byte) *APIKeyGuard {
	return &APIKeyGuard{apikeys: apikeys, pepper: pepper}
}

// Require wraps next so it only runs for requests carrying a valid API key.
func (g *APIKeyGuard) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("api_key")
		if key == "" {
			writeEnvelope(w, http.StatusUnauthorized, "missing api key", false)
			return
		}

		mac := hmac.New(sha256.New, g.pepper)
		mac.Write([]byte(key))
		hash := mac.Sum(nil)

		info, err := g.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
		if err != nil {
			writeEnvelope(w, http.StatusUnauthorized, "unauthorized", false)
			return
		}

		// Constant-time comparison guards against timing side-channels even
		// though the lookup already succeeded.
		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
			writeEnvelope(w, http.StatusUnauthorized, "unauthorized", false)
			return
		}

		next.ServeHTTP(w, r)
	})
}
