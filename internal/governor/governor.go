// Package governor is the decision core's orchestrator. It owns the only
// write path through the system: every verdict goes rule table, then pattern
// scanner, then merge-to-strictest, then ledger append, then trust update,
// in that order. Agent rows and investigation records are projections of the
// chain the governor maintains as it goes.
package governor

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/DHARANI2D/AEGIS/internal/identity"
	"github.com/DHARANI2D/AEGIS/internal/investigation"
	"github.com/DHARANI2D/AEGIS/internal/ledger"
	"github.com/DHARANI2D/AEGIS/internal/metrics"
	"github.com/DHARANI2D/AEGIS/internal/model"
	"github.com/DHARANI2D/AEGIS/internal/policy"
	"github.com/DHARANI2D/AEGIS/internal/scanner"
	"github.com/DHARANI2D/AEGIS/internal/store"
	"github.com/DHARANI2D/AEGIS/internal/trust"
)

var (
	// ErrUnknownAgent is returned for operations on an agent that was never
	// issued an identity.
	ErrUnknownAgent = errors.New("governor: unknown agent")
	// ErrAgentExists is returned when issuing an identity for an id that is
	// already governed. Identities are never silently re-minted.
	ErrAgentExists = errors.New("governor: agent already exists")
	// ErrInvalidIntent is returned for malformed evaluation requests.
	// Nothing reaches the ledger when it is returned.
	ErrInvalidIntent = errors.New("governor: invalid intent")
)

// Detection mechanism labels recorded on decision entries and carried into
// investigation records.
const (
	mechPolicy     = "policy"
	mechScanner    = "scanner"
	mechIdentity   = "identity"
	mechIsolation  = "isolation"
	mechGovernance = "governance"
)

// Options configures a Governor.
type Options struct {
	Snapshot   *policy.Snapshot
	PolicyHash string
	Trust      trust.Config
	Scanner    *scanner.Config
}

// Governor coordinates the rule table, scanner, trust tracker, ledger and
// investigation manager behind one serialized write path per agent.
type Governor struct {
	store   *store.Store
	ledger  *ledger.Ledger
	tracker *trust.Tracker
	invs    *investigation.Manager
	auth    *identity.Authority
	mtr     *metrics.Metrics

	trustCfg trust.Config
	scanCfg  *scanner.Config

	policyMu   sync.RWMutex
	snapshot   *policy.Snapshot
	policyHash string

	// purgeMu lets evaluations run concurrently across agents while a purge
	// gets exclusive access to the whole fleet.
	purgeMu sync.RWMutex

	lockMu     sync.Mutex
	agentLocks map[string]*sync.Mutex
}

// New builds a governor over an open store and ledger. Known agents have
// their verification keys re-registered so signature checks survive restarts.
func New(st *store.Store, led *ledger.Ledger, opts Options) (*Governor, error) {
	if opts.Snapshot == nil {
		opts.Snapshot = policy.DefaultSnapshot()
	}
	if opts.Trust.TimelineDepth <= 0 {
		opts.Trust = trust.DefaultConfig()
	}
	if opts.Scanner == nil {
		opts.Scanner = scanner.DefaultConfig()
	}

	g := &Governor{
		store:      st,
		ledger:     led,
		tracker:    trust.NewTracker(opts.Trust),
		invs:       investigation.NewManager(st),
		auth:       identity.NewAuthority(),
		mtr:        metrics.Get(),
		trustCfg:   opts.Trust,
		scanCfg:    opts.Scanner,
		snapshot:   opts.Snapshot,
		policyHash: opts.PolicyHash,
		agentLocks: make(map[string]*sync.Mutex),
	}

	agents, err := st.ListAgents()
	if err != nil {
		return nil, fmt.Errorf("governor: load agents: %w", err)
	}
	for _, a := range agents {
		if a.PublicKey == "" {
			continue
		}
		if err := g.auth.Register(a.ID, a.PublicKey); err != nil {
			return nil, fmt.Errorf("governor: register key for %s: %w", a.ID, err)
		}
	}

	// Replaying the chain into the live tracker restores its repeat-offense
	// windows and timelines, so a deny shortly before a restart still
	// amplifies a matching deny shortly after it.
	entries, err := led.All()
	if err != nil {
		return nil, fmt.Errorf("governor: warm-start from chain: %w", err)
	}
	if _, err := ledger.ReplayWith(entries, g.tracker); err != nil {
		return nil, fmt.Errorf("governor: warm-start from chain: %w", err)
	}
	return g, nil
}

// SetPolicy swaps in a new rule table snapshot. In-flight evaluations finish
// against the snapshot they started with.
func (g *Governor) SetPolicy(snap *policy.Snapshot, hash string) {
	g.policyMu.Lock()
	g.snapshot = snap
	g.policyHash = hash
	g.policyMu.Unlock()
	log.Info().Str("version", snap.Version).Str("hash", hash).Msg("rule table updated")
}

// Policy returns the active rule table snapshot and its content hash.
func (g *Governor) Policy() (*policy.Snapshot, string) {
	g.policyMu.RLock()
	defer g.policyMu.RUnlock()
	return g.snapshot, g.policyHash
}

// Evaluate renders a verdict for one intent, records it in the ledger, and
// applies its trust consequences. This is the hot path: everything an agent
// does flows through here.
func (g *Governor) Evaluate(agentID string, intent *model.Intent) (*model.Verdict, error) {
	started := time.Now()
	defer func() { g.mtr.EvalDuration.Observe(time.Since(started).Seconds()) }()

	if err := validateRequest(agentID, intent); err != nil {
		return nil, err
	}

	g.purgeMu.RLock()
	defer g.purgeMu.RUnlock()
	unlock := g.lockAgent(agentID)
	defer unlock()

	agent, err := g.store.GetAgent(agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	if err != nil {
		return nil, err
	}

	// Timestamps round-trip through the ledger's wire format so a replay
	// sees the exact instant the live path used.
	at := canonicalNow()

	decision, reason, risk, ruleID, findings, mechanisms := g.judge(agent, intent)

	// The chain entry and its state consequences commit as one transaction:
	// no ledger entry without its trust update, no trust update without its
	// investigation.
	prior := *agent
	var outcome trust.Outcome
	entry, err := g.ledger.AppendWith(ledger.Entry{
		Kind:      ledger.KindDecision,
		AgentID:   agentID,
		Intent:    intent.Name,
		Decision:  decision,
		Reason:    reason,
		RiskLevel: risk,
		Meta:      strings.Join(mechanisms, ","),
		Timestamp: at.Format(ledger.TimestampFormat),
	}, func(staged *ledger.Entry) error {
		return g.store.WithTx(func(tx *store.Tx) error {
			if err := ledger.InsertEntry(tx, staged); err != nil {
				return err
			}
			outcome = g.tracker.Apply(agent, intent.Name, decision, risk, at)
			if err := tx.UpsertAgent(agent); err != nil {
				return err
			}
			if outcome.Transitioned {
				_, err := investigation.NewManager(tx).Open(agentID, staged.Seq, risk,
					model.BreachTrustCollapse, mechanisms,
					evidenceFrom(prior, g.tracker.Timeline(agentID)), at)
				if err != nil {
					return fmt.Errorf("governor: open investigation: %w", err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	g.mtr.LedgerAppends.Inc()
	g.mtr.Decisions.WithLabelValues(string(decision)).Inc()
	for _, f := range findings {
		g.mtr.Findings.WithLabelValues(f.Type).Inc()
	}
	if outcome.Transitioned {
		g.mtr.Revocations.Inc()
		log.Warn().
			Str("agent", agentID).
			Str("intent", intent.Name).
			Int64("seq", entry.Seq).
			Msg("agent revoked, investigation opened")
	}

	log.Debug().
		Str("agent", agentID).
		Str("intent", intent.Name).
		Str("decision", string(decision)).
		Str("risk", string(risk)).
		Float64("trust", outcome.Trust).
		Msg("intent evaluated")

	return &model.Verdict{
		Decision:  decision,
		Reason:    reason,
		RiskLevel: risk,
		RuleID:    ruleID,
		Findings:  findings,
		Seq:       entry.Seq,
		Timestamp: at,
		Trust:     outcome.Trust,
		Level:     outcome.Level,
		Mode:      outcome.Mode,
		Revoked:   agent.Revoked(),
	}, nil
}

// judge combines the detection layers into one decision. Layers only ever
// tighten the outcome; nothing downstream of the rule table can loosen it.
func (g *Governor) judge(agent *model.Agent, intent *model.Intent) (model.Decision, string, model.RiskLevel, string, []model.Finding, []string) {
	if agent.Revoked() {
		return model.Deny, "agent is revoked", model.RiskCritical, "", nil, []string{mechIsolation}
	}

	if intent.Signature != "" && !g.auth.Verify(agent.ID, []byte(intent.Name), intent.Signature) {
		return model.Deny, "intent signature verification failed", model.RiskCritical, "", nil, []string{mechIdentity}
	}

	g.policyMu.RLock()
	snap := g.snapshot
	g.policyMu.RUnlock()

	res := policy.Evaluate(intent, snap)
	decision, reason, risk := res.Decision, res.Reason, res.RiskLevel
	mechanisms := []string{mechPolicy}

	findings := scanner.Scan(intent.Payload, g.scanCfg)
	if len(findings) > 0 {
		mechanisms = append(mechanisms, mechScanner)
		if sev := scanner.MaxSeverity(findings); model.RiskRank[sev] > model.RiskRank[risk] {
			risk = sev
		}
		if blocking := blockingFindings(findings); len(blocking) > 0 && decision != model.Deny {
			decision = model.MoreRestrictive(decision, model.Deny)
			reason = fmt.Sprintf("sensitive data detected: %s", strings.Join(blocking, ", "))
		}
	}

	return decision, reason, risk, res.RuleID, findings, mechanisms
}

// blockingFindings returns the deduplicated types of findings severe enough
// to force a DENY on their own. Reasons name finding types only; raw matched
// values never leave the scanner.
func blockingFindings(findings []model.Finding) []string {
	seen := make(map[string]bool)
	var types []string
	for _, f := range findings {
		if model.RiskRank[f.Severity] < model.RiskRank[model.RiskHigh] {
			continue
		}
		if !seen[f.Type] {
			seen[f.Type] = true
			types = append(types, f.Type)
		}
	}
	sort.Strings(types)
	return types
}

// IssueIdentity mints an ed25519 identity for a new agent and records the
// issuance in the ledger. The private key is returned once and not retained.
func (g *Governor) IssueIdentity(agentID string) (*identity.Issued, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: empty agent id", ErrInvalidIntent)
	}

	g.purgeMu.RLock()
	defer g.purgeMu.RUnlock()
	unlock := g.lockAgent(agentID)
	defer unlock()

	if _, err := g.store.GetAgent(agentID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAgentExists, agentID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	issued, err := g.auth.Issue(agentID)
	if err != nil {
		return nil, err
	}

	at := canonicalNow()
	agent := model.NewAgent(agentID, issued.PublicKey)
	agent.UpdatedAt = at

	if _, err := g.ledger.AppendWith(ledger.Entry{
		Kind:      ledger.KindIssue,
		AgentID:   agentID,
		Reason:    "identity issued",
		Meta:      issued.PublicKey,
		Timestamp: at.Format(ledger.TimestampFormat),
	}, func(staged *ledger.Entry) error {
		return g.store.WithTx(func(tx *store.Tx) error {
			if err := ledger.InsertEntry(tx, staged); err != nil {
				return err
			}
			return tx.UpsertAgent(agent)
		})
	}); err != nil {
		return nil, err
	}
	g.mtr.LedgerAppends.Inc()

	log.Info().Str("agent", agentID).Msg("identity issued")
	return issued, nil
}

// Purge revokes every active agent in one fleet-wide action. Evaluations are
// excluded for the duration, so no decision interleaves with the sweep.
// Each revoked agent gets its own chain entry and investigation. Returns the
// number of agents revoked.
func (g *Governor) Purge(reason string) (int, error) {
	if reason == "" {
		reason = "global security incident"
	}

	g.purgeMu.Lock()
	defer g.purgeMu.Unlock()

	agents, err := g.store.ListAgents()
	if err != nil {
		return 0, err
	}

	var targets []*model.Agent
	var entries []ledger.Entry
	for _, agent := range agents {
		if agent.Revoked() {
			continue
		}
		targets = append(targets, agent)
		entries = append(entries, ledger.Entry{
			Kind:      ledger.KindPurge,
			AgentID:   agent.ID,
			Reason:    reason,
			RiskLevel: model.RiskCritical,
			Meta:      mechGovernance,
			Timestamp: canonicalNow().Format(ledger.TimestampFormat),
		})
	}
	if len(targets) == 0 {
		log.Warn().Int("revoked", 0).Str("reason", reason).Msg("fleet purged")
		return 0, nil
	}

	// The whole sweep is one transaction. A failure on any agent rolls back
	// every revocation, so the fleet is never left half purged.
	_, err = g.ledger.AppendAll(entries, func(staged []*ledger.Entry) error {
		return g.store.WithTx(func(tx *store.Tx) error {
			invs := investigation.NewManager(tx)
			for i, entry := range staged {
				agent := targets[i]
				at := entry.Time()
				if err := ledger.InsertEntry(tx, entry); err != nil {
					return fmt.Errorf("governor: purge %s: %w", agent.ID, err)
				}
				prior := *agent
				g.tracker.ForceRevoke(agent, reason, at)
				if err := tx.UpsertAgent(agent); err != nil {
					return err
				}
				_, err := invs.Open(agent.ID, entry.Seq, model.RiskCritical, model.BreachGlobalIncident,
					[]string{mechGovernance}, evidenceFrom(prior, g.tracker.Timeline(agent.ID)), at)
				if err != nil {
					return fmt.Errorf("governor: open purge investigation for %s: %w", agent.ID, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	for range targets {
		g.mtr.LedgerAppends.Inc()
		g.mtr.Revocations.Inc()
	}
	log.Warn().Int("revoked", len(targets)).Str("reason", reason).Msg("fleet purged")
	return len(targets), nil
}

// Restore clears a revoked agent's open investigation as RESTORED and
// returns the agent to the fully trusted state. Fails with
// ErrIllegalTransition when there is no open investigation to clear.
func (g *Governor) Restore(agentID, notes string) (*model.Agent, error) {
	return g.resolve(agentID, notes, model.StatusRestored)
}

// ConfirmBreach resolves a revoked agent's open investigation as CONFIRMED.
// The agent stays revoked permanently.
func (g *Governor) ConfirmBreach(agentID, notes string) (*model.Agent, error) {
	return g.resolve(agentID, notes, model.StatusConfirmed)
}

func (g *Governor) resolve(agentID, notes string, target model.InvestigationStatus) (*model.Agent, error) {
	g.purgeMu.RLock()
	defer g.purgeMu.RUnlock()
	unlock := g.lockAgent(agentID)
	defer unlock()

	agent, err := g.store.GetAgent(agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	if err != nil {
		return nil, err
	}

	// Legality is checked before anything touches the chain so an illegal
	// request leaves no trace in the ledger.
	inv, err := g.invs.Get(agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: no investigation for %s", investigation.ErrIllegalTransition, agentID)
	}
	if err != nil {
		return nil, err
	}
	if inv.Status.Terminal() {
		return nil, fmt.Errorf("%w: investigation %s is %s", investigation.ErrIllegalTransition, inv.ID, inv.Status)
	}

	kind := ledger.KindRestore
	if target == model.StatusConfirmed {
		kind = ledger.KindConfirm
	}

	at := canonicalNow()
	if _, err := g.ledger.AppendWith(ledger.Entry{
		Kind:      kind,
		AgentID:   agentID,
		Reason:    notes,
		Timestamp: at.Format(ledger.TimestampFormat),
	}, func(staged *ledger.Entry) error {
		return g.store.WithTx(func(tx *store.Tx) error {
			if err := ledger.InsertEntry(tx, staged); err != nil {
				return err
			}
			if _, err := investigation.NewManager(tx).Transition(agentID, target, notes, at); err != nil {
				return err
			}
			if target == model.StatusRestored {
				g.tracker.Restore(agent, at)
				return tx.UpsertAgent(agent)
			}
			return nil
		})
	}); err != nil {
		return nil, err
	}
	g.mtr.LedgerAppends.Inc()

	log.Info().
		Str("agent", agentID).
		Str("resolution", string(target)).
		Msg("investigation resolved")
	return agent, nil
}

// Agent returns one governed agent.
func (g *Governor) Agent(agentID string) (*model.Agent, error) {
	a, err := g.store.GetAgent(agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	return a, err
}

// Agents returns every governed agent ordered by id.
func (g *Governor) Agents() ([]*model.Agent, error) {
	return g.store.ListAgents()
}

// Investigation returns the agent's current investigation.
func (g *Governor) Investigation(agentID string) (*model.Investigation, error) {
	return g.invs.Get(agentID)
}

// InvestigationHistory returns every investigation ever opened for the agent.
func (g *Governor) InvestigationHistory(agentID string) ([]*model.Investigation, error) {
	return g.invs.History(agentID)
}

// Logs returns the newest ledger entries, most recent first.
func (g *Governor) Logs(limit int) ([]*ledger.Entry, error) {
	return g.ledger.List(limit)
}

// VerifyChain recomputes the full hash chain.
func (g *Governor) VerifyChain() (ledger.VerifyResult, error) {
	return g.ledger.Verify()
}

// ReplayProjection rebuilds agent and investigation state from the chain.
// On an untampered ledger the projection matches the live tables exactly.
func (g *Governor) ReplayProjection() (*ledger.Projection, error) {
	entries, err := g.ledger.All()
	if err != nil {
		return nil, err
	}
	return ledger.Replay(entries, g.trustCfg)
}

// Stats is the fleet-level summary.
type Stats struct {
	TotalAgents    int     `json:"total_agents"`
	ActiveAgents   int     `json:"active_agents"`
	AverageTrust   float64 `json:"average_trust"`
	Interventions  int64   `json:"interventions"`
	PendingReviews int64   `json:"pending_reviews"`
	LedgerHeight   int64   `json:"ledger_height"`
}

// Stats computes the fleet summary. Interventions counts every decision that
// stopped an action (DENY or ESCALATE); pending reviews counts unresolved
// investigations.
func (g *Governor) Stats() (*Stats, error) {
	agents, err := g.store.ListAgents()
	if err != nil {
		return nil, err
	}
	counts, err := g.ledger.DecisionCounts()
	if err != nil {
		return nil, err
	}
	open, err := g.store.CountOpenInvestigations()
	if err != nil {
		return nil, err
	}

	s := &Stats{
		TotalAgents:    len(agents),
		Interventions:  counts[model.Deny] + counts[model.Escalate],
		PendingReviews: open,
		LedgerHeight:   g.ledger.LastSeq(),
	}
	var total float64
	for _, a := range agents {
		total += a.Trust
		if a.Status == model.StatusActive {
			s.ActiveAgents++
		}
	}
	if len(agents) > 0 {
		s.AverageTrust = total / float64(len(agents))
	}

	g.mtr.ActiveAgents.Set(float64(s.ActiveAgents))
	g.mtr.PendingReviews.Set(float64(s.PendingReviews))
	return s, nil
}

func (g *Governor) lockAgent(agentID string) func() {
	g.lockMu.Lock()
	l, ok := g.agentLocks[agentID]
	if !ok {
		l = &sync.Mutex{}
		g.agentLocks[agentID] = l
	}
	g.lockMu.Unlock()
	l.Lock()
	return l.Unlock
}

// canonicalNow returns the current instant rounded through the ledger's
// timestamp format, so live state and replayed state agree to the nanosecond.
func canonicalNow() time.Time {
	t, _ := time.Parse(ledger.TimestampFormat, time.Now().UTC().Format(ledger.TimestampFormat))
	return t
}

func validateRequest(agentID string, intent *model.Intent) error {
	switch {
	case agentID == "":
		return fmt.Errorf("%w: empty agent id", ErrInvalidIntent)
	case intent == nil:
		return fmt.Errorf("%w: nil intent", ErrInvalidIntent)
	case intent.Name == "":
		return fmt.Errorf("%w: empty intent name", ErrInvalidIntent)
	case intent.Confidence < 0 || intent.Confidence > 1:
		return fmt.Errorf("%w: confidence %v outside [0, 1]", ErrInvalidIntent, intent.Confidence)
	case !model.KnownEnvironment(intent.Environment):
		return fmt.Errorf("%w: unknown environment %q", ErrInvalidIntent, intent.Environment)
	}
	return nil
}

func evidenceFrom(prior model.Agent, timeline []model.TimelineEvent) model.Evidence {
	return model.Evidence{
		PreviousTrust:  prior.Trust,
		PreviousStatus: prior.Status,
		PreviousLevel:  prior.Level,
		Timeline:       timeline,
	}
}
