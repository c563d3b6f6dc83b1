package cli

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/DHARANI2D/AEGIS/internal/governor"
	"github.com/DHARANI2D/AEGIS/internal/ledger"
	"github.com/DHARANI2D/AEGIS/internal/policy"
	"github.com/DHARANI2D/AEGIS/internal/store"
)

// openStack wires the store, ledger and governor behind every command that
// touches state. The returned cleanup closes the database.
func openStack() (*governor.Governor, func(), error) {
	if dir := filepath.Dir(flagDB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	st, err := store.Open(flagDB)
	if err != nil {
		return nil, nil, err
	}

	signer, err := loadSigner()
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	led, err := ledger.Open(st.DB(), signer)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	snap, hash, err := policy.LoadWithHash(flagRules)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	gov, err := governor.New(st, led, governor.Options{Snapshot: snap, PolicyHash: hash})
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	return gov, func() { st.Close() }, nil
}

// loadSigner reads a base64 ed25519 seed from AEGIS_SIGNING_SEED. Ledger
// entries are unsigned when the seed is absent; the hash chain still holds.
func loadSigner() (*ledger.Signer, error) {
	raw := os.Getenv("AEGIS_SIGNING_SEED")
	if raw == "" {
		return nil, nil
	}
	seed, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode AEGIS_SIGNING_SEED: %w", err)
	}
	return ledger.SignerFromSeed(seed)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
