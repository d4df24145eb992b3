package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// Signer signs audit chain hashes.
type Signer interface {
	Sign(hash []byte) (sig []byte, signerID string, err error)
	PublicKey() []byte
}

// Ed25519Signer signs with an in-process key.
type Ed25519Signer struct {
	priv     ed25519.PrivateKey
	signerID string
}

// NewLocalSigner generates a throwaway key pair. Signatures it produces cannot
// be verified after the process exits.
func NewLocalSigner(signerID string) (*Ed25519Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &Ed25519Signer{priv: priv, signerID: signerID}, nil
}

// NewEd25519SignerFromB64 loads a base64-encoded 64-byte ed25519 private key.
func NewEd25519SignerFromB64(b64Key, signerID string) (*Ed25519Signer, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(b64Key)
	if err != nil {
		return nil, fmt.Errorf("decode signer private key: %w", err)
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 private key length: got %d want %d", len(keyBytes), ed25519.PrivateKeySize)
	}
	return &Ed25519Signer{priv: ed25519.PrivateKey(keyBytes), signerID: signerID}, nil
}

// FromConfig prefers a configured key and falls back to a generated one.
func FromConfig(b64Key, signerID string) (*Ed25519Signer, error) {
	if b64Key != "" {
		return NewEd25519SignerFromB64(b64Key, signerID)
	}
	return NewLocalSigner(signerID)
}

func (s *Ed25519Signer) Sign(hash []byte) ([]byte, string, error) {
	if s.priv == nil {
		return nil, "", errors.New("signer: private key not initialized")
	}
	return ed25519.Sign(s.priv, hash), s.signerID, nil
}

func (s *Ed25519Signer) PublicKey() []byte {
	if s.priv == nil {
		return nil
	}
	return s.priv.Public().(ed25519.PublicKey)
}
