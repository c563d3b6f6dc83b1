package ledger

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DHARANI2D/AEGIS/internal/model"
	"github.com/DHARANI2D/AEGIS/internal/store"
	"github.com/DHARANI2D/AEGIS/internal/trust"
)

func newTestLedger(t *testing.T) (*Ledger, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "aegis.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	signer, err := NewSigner()
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	l, err := Open(st.DB(), signer)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	return l, st
}

func decisionEntry(agentID string, decision model.Decision) Entry {
	return Entry{
		Kind:      KindDecision,
		AgentID:   agentID,
		Intent:    "READ.DOCS",
		Decision:  decision,
		Reason:    "test reason",
		RiskLevel: model.RiskLow,
	}
}

func TestAppendsFormValidChain(t *testing.T) {
	l, _ := newTestLedger(t)

	for i := 0; i < 5; i++ {
		if _, err := l.Append(decisionEntry("a1", model.Allow)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	result, err := l.Verify()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Valid || result.Entries != 5 {
		t.Fatalf("expected valid 5-entry chain, got %+v", result)
	}
}

func TestSequenceNumbersAreMonotonic(t *testing.T) {
	l, _ := newTestLedger(t)

	var prev int64
	for i := 0; i < 4; i++ {
		e, err := l.Append(decisionEntry("a1", model.Deny))
		if err != nil {
			t.Fatal(err)
		}
		if e.Seq != prev+1 {
			t.Fatalf("seq %d follows %d", e.Seq, prev)
		}
		prev = e.Seq
	}
	if l.LastSeq() != 4 {
		t.Fatalf("LastSeq = %d, want 4", l.LastSeq())
	}
}

func TestFirstEntryLinksToGenesis(t *testing.T) {
	l, _ := newTestLedger(t)
	e, err := l.Append(decisionEntry("a1", model.Allow))
	if err != nil {
		t.Fatal(err)
	}
	if e.PrevHash != GenesisHash {
		t.Fatalf("first entry prev_hash = %s, want genesis", e.PrevHash)
	}
}

func TestOpenRecoversChainTail(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "aegis.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	l1, err := Open(st.DB(), nil)
	if err != nil {
		t.Fatal(err)
	}
	e1, err := l1.Append(decisionEntry("a1", model.Allow))
	if err != nil {
		t.Fatal(err)
	}

	// Reopen over the same database: the chain must continue, not restart.
	l2, err := Open(st.DB(), nil)
	if err != nil {
		t.Fatal(err)
	}
	e2, err := l2.Append(decisionEntry("a1", model.Deny))
	if err != nil {
		t.Fatal(err)
	}
	if e2.Seq != e1.Seq+1 || e2.PrevHash != e1.CurrentHash {
		t.Fatalf("chain broke across reopen: %+v then %+v", e1, e2)
	}

	if result, err := l2.Verify(); err != nil || !result.Valid {
		t.Fatalf("verify after reopen: %+v, %v", result, err)
	}
}

func TestAppendWithRollbackLeavesTailUntouched(t *testing.T) {
	l, _ := newTestLedger(t)
	if _, err := l.Append(decisionEntry("a1", model.Allow)); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("storage offline")
	if _, err := l.AppendWith(decisionEntry("a1", model.Deny), func(*Entry) error {
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want injected failure", err)
	}
	if l.LastSeq() != 1 {
		t.Fatalf("LastSeq = %d after rollback, want 1", l.LastSeq())
	}

	// The next append takes the sequence number the failed one gave back.
	e, err := l.Append(decisionEntry("a1", model.Deny))
	if err != nil {
		t.Fatal(err)
	}
	if e.Seq != 2 {
		t.Fatalf("seq = %d, want 2", e.Seq)
	}
	if result, err := l.Verify(); err != nil || !result.Valid || result.Entries != 2 {
		t.Fatalf("chain after rollback: %+v, %v", result, err)
	}
}

func TestAppendAllLinksBatchAtomically(t *testing.T) {
	l, _ := newTestLedger(t)

	batch := []Entry{
		decisionEntry("a1", model.Deny),
		decisionEntry("a2", model.Deny),
		decisionEntry("a3", model.Deny),
	}
	staged, err := l.AppendAll(batch, func(entries []*Entry) error {
		for _, e := range entries {
			if err := InsertEntry(l.db, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, e := range staged {
		if e.Seq != int64(i+1) {
			t.Fatalf("staged[%d].Seq = %d", i, e.Seq)
		}
		if i > 0 && e.PrevHash != staged[i-1].CurrentHash {
			t.Fatalf("batch entry %d not linked to its predecessor", i)
		}
	}

	// A failing batch advances nothing, even with entries already staged.
	boom := errors.New("mid-batch failure")
	if _, err := l.AppendAll(batch, func([]*Entry) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if l.LastSeq() != 3 {
		t.Fatalf("LastSeq = %d after failed batch, want 3", l.LastSeq())
	}
	if result, err := l.Verify(); err != nil || !result.Valid || result.Entries != 3 {
		t.Fatalf("chain after failed batch: %+v, %v", result, err)
	}
}

func TestVerifyDetectsTamperedEntry(t *testing.T) {
	l, st := newTestLedger(t)

	for i := 0; i < 3; i++ {
		if _, err := l.Append(decisionEntry("a1", model.Allow)); err != nil {
			t.Fatal(err)
		}
	}

	// Flip a single stored byte of one entry's content.
	if _, err := st.DB().Exec(`UPDATE ledger SET reason = 'test reasoN' WHERE seq = 2`); err != nil {
		t.Fatal(err)
	}

	result, err := l.Verify()
	if result.Valid {
		t.Fatal("tampered chain reported valid")
	}
	var integrity *IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if integrity.Seq != 2 {
		t.Fatalf("violation at seq %d, want 2", integrity.Seq)
	}
}

func TestTamperingHaltsAppends(t *testing.T) {
	l, st := newTestLedger(t)
	if _, err := l.Append(decisionEntry("a1", model.Allow)); err != nil {
		t.Fatal(err)
	}
	if _, err := st.DB().Exec(`UPDATE ledger SET intent = 'WRITE.DOCS' WHERE seq = 1`); err != nil {
		t.Fatal(err)
	}

	if _, err := l.Verify(); err == nil {
		t.Fatal("expected verification failure")
	}
	if !l.Halted() {
		t.Fatal("ledger should halt after integrity failure")
	}
	if _, err := l.Append(decisionEntry("a1", model.Allow)); !errors.Is(err, ErrHalted) {
		t.Fatalf("append after tampering: got %v, want ErrHalted", err)
	}
}

func TestSignaturesVerifyIndependently(t *testing.T) {
	l, _ := newTestLedger(t)
	signerKey := l.signer.PublicKey()

	for i := 0; i < 3; i++ {
		if _, err := l.Append(decisionEntry("a1", model.Allow)); err != nil {
			t.Fatal(err)
		}
	}

	result, err := l.VerifySignatures(signerKey)
	if err != nil || !result.Valid {
		t.Fatalf("signatures should verify: %+v, %v", result, err)
	}

	// A different key must not verify, even though the chain is intact.
	other, err := NewSigner()
	if err != nil {
		t.Fatal(err)
	}
	result, err = l.VerifySignatures(other.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if result.Valid {
		t.Fatal("foreign key verified the signatures")
	}

	if chain, err := l.Verify(); err != nil || !chain.Valid {
		t.Fatal("chain integrity must be unaffected by signer identity")
	}
}

func TestListMostRecentFirst(t *testing.T) {
	l, _ := newTestLedger(t)
	for i := 0; i < 5; i++ {
		if _, err := l.Append(decisionEntry("a1", model.Allow)); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := l.List(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Seq != 5 || entries[2].Seq != 3 {
		t.Fatalf("wrong order: %d..%d", entries[0].Seq, entries[2].Seq)
	}
}

func TestReplayRebuildsRevocation(t *testing.T) {
	l, _ := newTestLedger(t)
	now := time.Now().UTC()

	issue := Entry{Kind: KindIssue, AgentID: "rogue", Reason: "identity issued", Meta: "pk-base64",
		Timestamp: now.Format(TimestampFormat)}
	if _, err := l.Append(issue); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		e := Entry{
			Kind:      KindDecision,
			AgentID:   "rogue",
			Intent:    "SEND.EXTERNAL_REQUEST",
			Decision:  model.Deny,
			Reason:    "blocked",
			RiskLevel: model.RiskCritical,
			Meta:      "policy,scanner",
			Timestamp: now.Add(time.Duration(i+1) * time.Second).Format(TimestampFormat),
		}
		if _, err := l.Append(e); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := l.All()
	if err != nil {
		t.Fatal(err)
	}
	p, err := Replay(entries, trust.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	a := p.Agents["rogue"]
	if a == nil || a.Status != model.StatusRevoked || a.Trust != 0 || a.Level != 0 {
		t.Fatalf("replayed agent state wrong: %+v", a)
	}
	if len(p.Investigations) != 1 {
		t.Fatalf("expected exactly 1 investigation, got %d", len(p.Investigations))
	}
	for _, inv := range p.Investigations {
		if inv.BreachType != model.BreachTrustCollapse {
			t.Errorf("breach type = %s", inv.BreachType)
		}
		if inv.Evidence.PreviousTrust != 15 {
			t.Errorf("evidence previous trust = %v, want 15", inv.Evidence.PreviousTrust)
		}
		if len(inv.DetectionMechanisms) != 2 {
			t.Errorf("detection = %v", inv.DetectionMechanisms)
		}
	}
}
