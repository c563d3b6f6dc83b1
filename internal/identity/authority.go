// Package identity issues and verifies ed25519 agent identities. Key
// generation happens here; key custody for agents is the caller's problem —
// the core only ever stores public verification keys.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
)

// Issued is the result of issuing one identity. PrivateKey is returned to
// the caller exactly once and never retained.
type Issued struct {
	AgentID    string
	PublicKey  string // base64
	PrivateKey string // base64, caller's custody
}

// Authority issues identities and verifies intent signatures.
type Authority struct {
	mu       sync.RWMutex
	registry map[string]ed25519.PublicKey
}

// NewAuthority creates an empty authority.
func NewAuthority() *Authority {
	return &Authority{registry: make(map[string]ed25519.PublicKey)}
}

// Issue generates a keypair for the agent and registers the public half.
// Re-issuing an existing id rotates its key.
func (a *Authority) Issue(agentID string) (*Issued, error) {
	if agentID == "" {
		return nil, fmt.Errorf("identity: agent id must not be empty")
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate keypair: %w", err)
	}

	a.mu.Lock()
	a.registry[agentID] = pub
	a.mu.Unlock()

	return &Issued{
		AgentID:    agentID,
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
		PrivateKey: base64.StdEncoding.EncodeToString(priv),
	}, nil
}

// Register records an externally issued public key for an agent.
func (a *Authority) Register(agentID, publicKey string) error {
	pub, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil {
		return fmt.Errorf("identity: decode public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("identity: bad public key size %d", len(pub))
	}
	a.mu.Lock()
	a.registry[agentID] = ed25519.PublicKey(pub)
	a.mu.Unlock()
	return nil
}

// PublicKey returns the base64 verification key for an agent, or "".
func (a *Authority) PublicKey(agentID string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	pub, ok := a.registry[agentID]
	if !ok {
		return ""
	}
	return base64.StdEncoding.EncodeToString(pub)
}

// Verify checks a base64 signature over message for the given agent.
// Unknown agents never verify.
func (a *Authority) Verify(agentID string, message []byte, signature string) bool {
	a.mu.RLock()
	pub, ok := a.registry[agentID]
	a.mu.RUnlock()
	if !ok {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}

// Sign signs a message with a base64 private key. Helper for agents and
// tests; the authority itself never holds private keys.
func Sign(privateKey string, message []byte) (string, error) {
	priv, err := base64.StdEncoding.DecodeString(privateKey)
	if err != nil {
		return "", fmt.Errorf("identity: decode private key: %w", err)
	}
	if len(priv) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("identity: bad private key size %d", len(priv))
	}
	return base64.StdEncoding.EncodeToString(ed25519.Sign(ed25519.PrivateKey(priv), message)), nil
}
