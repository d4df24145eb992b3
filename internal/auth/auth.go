// Package auth verifies bearer tokens on the prediction service.
package auth

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken      = errors.New("authentication required: bearer token")
	ErrMissingScope = errors.New("missing required scope")
)

// Verifier checks JWTs against a fixed set of PEM-encoded public keys.
type Verifier struct {
	keys  []interface{}
	scope string
}

// NewVerifier loads every public key or certificate in keysFile.
func NewVerifier(keysFile, requiredScope string) (*Verifier, error) {
	data, err := os.ReadFile(keysFile)
	if err != nil {
		return nil, fmt.Errorf("read keys: %w", err)
	}
	keys := parseKeys(data)
	if len(keys) == 0 {
		return nil, fmt.Errorf("no valid keys found in %s", keysFile)
	}
	return &Verifier{keys: keys, scope: requiredScope}, nil
}

func parseKeys(data []byte) []interface{} {
	var keys []interface{}
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return keys
		}
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			cert, cerr := x509.ParseCertificate(block.Bytes)
			if cerr != nil {
				continue
			}
			key = cert.PublicKey
		}
		keys = append(keys, key)
	}
}

// VerifyToken returns the token subject when the token is valid under one of
// the keys and grants the required scope.
func (v *Verifier) VerifyToken(tokenStr string) (string, error) {
	var (
		token *jwt.Token
		err   error
	)
	// PEM files carry no kid, so try each key in turn.
	for _, key := range v.keys {
		k := key
		token, err = jwt.Parse(tokenStr, func(*jwt.Token) (interface{}, error) { return k, nil },
			jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "EdDSA"}))
		if err == nil && token.Valid {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("token parse error: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	if !grants(claims, v.scope) {
		return "", ErrMissingScope
	}
	sub, _ := claims.GetSubject()
	return sub, nil
}

// grants checks the space-delimited scope claim, then the roles array.
func grants(claims jwt.MapClaims, scope string) bool {
	if s, ok := claims["scope"].(string); ok {
		for _, f := range strings.Fields(s) {
			if f == scope {
				return true
			}
		}
	}
	if roles, ok := claims["roles"].([]interface{}); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok && s == scope {
				return true
			}
		}
	}
	return false
}

// VerifyRequest reads the Authorization header.
func (v *Verifier) VerifyRequest(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", ErrNoToken
	}
	return v.VerifyToken(strings.TrimPrefix(h, "Bearer "))
}

type principalKey struct{}

// Principal returns the subject stored by Middleware.
func Principal(ctx context.Context) string {
	s, _ := ctx.Value(principalKey{}).(string)
	return s
}

// Middleware rejects unauthenticated requests with 401.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, err := v.VerifyRequest(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, sub)))
	})
}
