package audit

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/training-pipeline/internal/signer"
)

// seal links ev to prev and signs it.
func seal(ev *Event, prev string, s signer.Signer) error {
	canon, err := canonicalJSON(ev.Payload)
	if err != nil {
		return fmt.Errorf("canonicalize payload: %w", err)
	}
	hash, err := chainHash(canon, prev)
	if err != nil {
		return fmt.Errorf("decode prev hash: %w", err)
	}
	sig, signerID, err := s.Sign(hash)
	if err != nil {
		return fmt.Errorf("sign hash: %w", err)
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Ts.IsZero() {
		ev.Ts = time.Now().UTC()
	}
	ev.PrevHash = prev
	ev.Hash = hex.EncodeToString(hash)
	ev.Signature = base64.StdEncoding.EncodeToString(sig)
	ev.SignerID = signerID
	return nil
}

// VerifyChain checks that events, given in append order, link to each other
// and carry valid signatures for pub. The first event may link to a head
// outside the slice.
func VerifyChain(events []*Event, pub ed25519.PublicKey) error {
	for i, ev := range events {
		if i > 0 && ev.PrevHash != events[i-1].Hash {
			return fmt.Errorf("event %s: prevHash does not match event %s", ev.ID, events[i-1].ID)
		}
		canon, err := canonicalJSON(ev.Payload)
		if err != nil {
			return fmt.Errorf("event %s: %w", ev.ID, err)
		}
		hash, err := chainHash(canon, ev.PrevHash)
		if err != nil {
			return fmt.Errorf("event %s: decode prev hash: %w", ev.ID, err)
		}
		if hex.EncodeToString(hash) != ev.Hash {
			return fmt.Errorf("event %s: hash mismatch", ev.ID)
		}
		sig, err := base64.StdEncoding.DecodeString(ev.Signature)
		if err != nil {
			return fmt.Errorf("event %s: decode signature: %w", ev.ID, err)
		}
		if !ed25519.Verify(pub, hash, sig) {
			return fmt.Errorf("event %s: signature invalid", ev.ID)
		}
	}
	return nil
}
