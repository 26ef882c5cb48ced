package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies the connecting user. Only the display name is consumed;
// relayed payloads are trusted verbatim regardless of who carries them.
type Claims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
	GivenName         string `json:"given_name"`
	Email             string `json:"email"`
}

// DisplayName picks the best available name for logging.
func (c *Claims) DisplayName() string {
	if c.PreferredUsername != "" {
		return c.PreferredUsername
	}
	if c.GivenName != "" {
		return c.GivenName
	}
	return c.Subject
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
}

// Verifier validates RS256 bearer tokens against the issuer's JWKS.
type Verifier struct {
	issuer string

	mu   sync.RWMutex
	keys *jwks

	cacheMu sync.RWMutex
	cache   map[string]*rsa.PublicKey
}

// NewVerifier fetches the issuer's JWKS and refreshes it every 24 hours.
func NewVerifier(issuerURL string) (*Verifier, error) {
	v := &Verifier{
		issuer: issuerURL,
		cache:  make(map[string]*rsa.PublicKey),
	}
	if err := v.refresh(); err != nil {
		return nil, err
	}

	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			if err := v.refresh(); err != nil {
				slog.Error("[AUTH] Failed to refresh JWKS", "issuer", v.issuer, "error", err)
			}
		}
	}()

	return v, nil
}

func (v *Verifier) refresh() error {
	jwksURL := fmt.Sprintf("%s/.well-known/jwks.json", v.issuer)

	resp, err := http.Get(jwksURL)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var keys jwks
	if err := json.NewDecoder(resp.Body).Decode(&keys); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	v.mu.Lock()
	v.keys = &keys
	v.mu.Unlock()

	// Clear cache to force re-conversion
	v.cacheMu.Lock()
	v.cache = make(map[string]*rsa.PublicKey)
	v.cacheMu.Unlock()

	return nil
}

// Verify parses and validates a bearer token.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	if tokenString == "" {
		return nil, errors.New("token is empty")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("kid not found in token header")
		}

		return v.publicKey(kid)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	if claims.Issuer != v.issuer {
		return nil, fmt.Errorf("invalid issuer: expected %s, got %s", v.issuer, claims.Issuer)
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(time.Now()) {
		return nil, errors.New("token expired")
	}

	return claims, nil
}

// publicKey retrieves and caches the public key for a given kid.
func (v *Verifier) publicKey(kid string) (*rsa.PublicKey, error) {
	v.cacheMu.RLock()
	if key, exists := v.cache[kid]; exists {
		v.cacheMu.RUnlock()
		return key, nil
	}
	v.cacheMu.RUnlock()

	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.keys == nil {
		return nil, errors.New("JWKS not initialized")
	}

	for _, k := range v.keys.Keys {
		if k.Kid == kid {
			publicKey, err := jwkToPublicKey(k)
			if err != nil {
				return nil, err
			}

			v.cacheMu.Lock()
			v.cache[kid] = publicKey
			v.cacheMu.Unlock()

			return publicKey, nil
		}
	}

	return nil, fmt.Errorf("key with kid %s not found in JWKS", kid)
}

// jwkToPublicKey converts a JWK to an RSA public key.
func jwkToPublicKey(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)

	var e int
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}

	return &rsa.PublicKey{N: n, E: e}, nil
}

// ExtractToken pulls the bearer token from the query string or the
// Authorization header.
func ExtractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}
