package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKeyPair(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pubASN1, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return key, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubASN1})
}

func sign(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestVerifier(t *testing.T) {
	privKey, pubPEM := generateKeyPair(t)
	keysFile := filepath.Join(t.TempDir(), "keys.pem")
	require.NoError(t, os.WriteFile(keysFile, pubPEM, 0o600))

	v, err := NewVerifier(keysFile, "model:predict")
	require.NoError(t, err)

	t.Run("Scope Success", func(t *testing.T) {
		tok := sign(t, privKey, jwt.MapClaims{
			"sub":   "scoring-job",
			"scope": "model:read model:predict",
			"exp":   time.Now().Add(time.Hour).Unix(),
		})
		sub, err := v.VerifyToken(tok)
		require.NoError(t, err)
		assert.Equal(t, "scoring-job", sub)
	})

	t.Run("Roles Success", func(t *testing.T) {
		tok := sign(t, privKey, jwt.MapClaims{"sub": "ops", "roles": []string{"model:predict"}})
		_, err := v.VerifyToken(tok)
		assert.NoError(t, err)
	})

	t.Run("Scope Prefix Is Not Enough", func(t *testing.T) {
		tok := sign(t, privKey, jwt.MapClaims{"scope": "model:predict-batch"})
		_, err := v.VerifyToken(tok)
		assert.True(t, errors.Is(err, ErrMissingScope))
	})

	t.Run("Expired", func(t *testing.T) {
		tok := sign(t, privKey, jwt.MapClaims{"scope": "model:predict", "exp": time.Now().Add(-time.Hour).Unix()})
		_, err := v.VerifyToken(tok)
		assert.Error(t, err)
	})

	t.Run("Invalid Signature", func(t *testing.T) {
		other, _ := generateKeyPair(t)
		_, err := v.VerifyToken(sign(t, other, jwt.MapClaims{"scope": "model:predict"}))
		assert.Error(t, err)
	})
}

func TestMiddleware(t *testing.T) {
	privKey, pubPEM := generateKeyPair(t)
	keysFile := filepath.Join(t.TempDir(), "keys.pem")
	require.NoError(t, os.WriteFile(keysFile, pubPEM, 0o600))
	v, err := NewVerifier(keysFile, "model:predict")
	require.NoError(t, err)

	var seen string
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = Principal(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/predict", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, privKey, jwt.MapClaims{"sub": "svc", "scope": "model:predict"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "svc", seen)
}

func TestNewVerifierRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a key"), 0o600))
	_, err := NewVerifier(path, "model:predict")
	assert.Error(t, err)
}
