package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Signer signs ledger entries with an ed25519 key. Signatures attest who
// wrote an entry; the hash chain attests that nothing was altered. The two
// properties are verified independently — an unbroken chain says nothing
// about the signer, and a valid signature says nothing about ordering.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSigner generates a fresh signing key.
func NewSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("ledger: generate signing key: %w", err)
	}
	return &Signer{priv: priv, pub: pub}, nil
}

// SignerFromSeed builds a deterministic signer from a 32-byte seed.
func SignerFromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ledger: signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// Sign returns the base64 signature over the entry hash.
func (s *Signer) Sign(currentHash string) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.priv, []byte(currentHash)))
}

// PublicKey returns the base64 verification key.
func (s *Signer) PublicKey() string {
	return base64.StdEncoding.EncodeToString(s.pub)
}

// VerifySignature checks one entry's signature against a base64 public key.
func VerifySignature(publicKey string, e *Entry) (bool, error) {
	pub, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil {
		return false, fmt.Errorf("ledger: decode public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("ledger: bad public key size %d", len(pub))
	}
	sig, err := base64.StdEncoding.DecodeString(e.Signature)
	if err != nil {
		return false, fmt.Errorf("ledger: decode signature: %w", err)
	}
	return ed25519.Verify(ed25519.PublicKey(pub), []byte(e.CurrentHash), sig), nil
}
