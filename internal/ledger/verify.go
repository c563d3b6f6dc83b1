package ledger

import "fmt"

// VerifyResult holds the outcome of a full-chain verification.
type VerifyResult struct {
	Valid   bool   `json:"valid"`
	Entries int    `json:"entries"`
	Error   string `json:"error,omitempty"`
	BadSeq  int64  `json:"bad_seq,omitempty"`
}

// Verify recomputes the hash chain from genesis and compares every stored
// hash. On the first mismatch the ledger halts further appends and the
// violation is returned as an IntegrityError — tampering is never silent.
func (l *Ledger) Verify() (VerifyResult, error) {
	entries, err := l.All()
	if err != nil {
		return VerifyResult{}, err
	}

	prevHash := GenesisHash
	var prevSeq int64
	for _, e := range entries {
		if e.Seq != prevSeq+1 {
			return l.fail(e.Seq, fmt.Sprintf("sequence gap: %d follows %d", e.Seq, prevSeq))
		}
		if e.PrevHash != prevHash {
			return l.fail(e.Seq, fmt.Sprintf("prev_hash mismatch: stored %s, expected %s", e.PrevHash, prevHash))
		}
		if recomputed := e.ComputeHash(); recomputed != e.CurrentHash {
			return l.fail(e.Seq, fmt.Sprintf("content hash mismatch: stored %s, recomputed %s", e.CurrentHash, recomputed))
		}
		prevHash = e.CurrentHash
		prevSeq = e.Seq
	}

	return VerifyResult{Valid: true, Entries: len(entries)}, nil
}

// VerifySignatures checks every entry's signature against the given
// verification key. Chain integrity and signer authenticity are separate
// concerns: this does not re-verify the hash chain.
func (l *Ledger) VerifySignatures(publicKey string) (VerifyResult, error) {
	entries, err := l.All()
	if err != nil {
		return VerifyResult{}, err
	}

	for _, e := range entries {
		ok, err := VerifySignature(publicKey, e)
		if err != nil {
			return VerifyResult{Entries: len(entries), Error: err.Error(), BadSeq: e.Seq}, err
		}
		if !ok {
			return VerifyResult{
				Entries: len(entries),
				Error:   fmt.Sprintf("signature mismatch at seq %d", e.Seq),
				BadSeq:  e.Seq,
			}, nil
		}
	}

	return VerifyResult{Valid: true, Entries: len(entries)}, nil
}

func (l *Ledger) fail(seq int64, detail string) (VerifyResult, error) {
	l.halt()
	err := &IntegrityError{Seq: seq, Detail: detail}
	return VerifyResult{Error: err.Error(), BadSeq: seq}, err
}
