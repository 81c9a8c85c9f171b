// Package contrib — scorer.go
//
// Plugin interface for custom advisory scorers.
//
// dqsnd's contract decision (ALLOW/ESCALATE/BLOCK/ERROR) is produced solely
// by internal/aggregate from validated upstream risk scores — this plugin
// layer never influences it. ScoreProvider instead lets an operator plug in
// a second, independent re-derivation of an advisory score from a kept
// signal's evidence map, surfaced on operator dashboards alongside the
// contractual decision (e.g., "the aggregator said ESCALATE; our in-house
// heuristic independently also flags this evidence as high-risk").
//
// Plugin registration:
//   Plugins register themselves in an init() function using
//   RegisterScorer(). dqsnd selects the active provider via config:
//
//     observability:
//       advisory_scorer: "zscore"  # default
//       # advisory_scorer: "my-custom-scorer"
//
//   Built-in providers: "zscore" (default).
//   Community providers: registered via contrib.RegisterScorer().
//
// Plugin contract:
//   - Score() must be goroutine-safe (called from multiple workers).
//   - Score() must return in < 1ms to avoid blocking the transport handler.
//   - Score() must not call any blocking I/O (no disk, no network).
//   - Score() must not panic (use recover() internally if needed).
//   - Name() must return a stable, unique string (used as config key).
//
// Example plugin (contrib/scorers/meanevidence/meanevidence.go):
//
//   package meanevidence
//
//   import (
//     "github.com/dqsn-network/shield/contrib"
//     "github.com/dqsn-network/shield/internal/scoreadvisory"
//   )
//
//   func init() {
//     contrib.RegisterScorer(&MeanEvidenceScorer{})
//   }
//
//   type MeanEvidenceScorer struct{}
//
//   func (m *MeanEvidenceScorer) Name() string { return "meanevidence" }
//
//   func (m *MeanEvidenceScorer) Score(req contrib.ScoreRequest) (scoreadvisory.ScoreLike, error) {
//     raw, ok := req.Evidence["advisory_score"]
//     if !ok {
//       return scoreadvisory.NewRaw(0), nil
//     }
//     return scoreadvisory.Coerce(raw)
//   }

package contrib

import (
	"fmt"
	"sync"

	"github.com/dqsn-network/shield/internal/scoreadvisory"
)

// ─── ScoreProvider interface ──────────────────────────────────────────────

// ScoreRequest is the input to ScoreProvider.Score(): one kept signal's
// stable-view fields plus its original (opaque) evidence map, exactly as
// validated by internal/contract. Evidence is never interpreted by the
// contract or aggregator — this is the one place it is read.
type ScoreRequest struct {
	// ContextHash is the kept signal's content identity.
	ContextHash string

	// Decision is the upstream decision as rolled into this signal
	// (ALLOW, WARN, BLOCK, ERROR — upstream vocabulary, not the response's).
	Decision string

	// ContractScore is the validated risk.score the aggregator itself used.
	// Providers may use it as a baseline or ignore it entirely.
	ContractScore float64

	// Evidence is the signal's opaque evidence mapping, unvalidated beyond
	// "is a mapping" (spec §4.3).
	Evidence map[string]any
}

// ScoreProvider is the interface custom advisory scorers must implement.
//
// Contract:
//   - Score() must be goroutine-safe.
//   - Score() must return in < 1ms.
//   - Score() must not call blocking I/O.
//   - Score() must not panic.
//   - Name() must return a stable, unique string.
type ScoreProvider interface {
	// Name returns the unique identifier for this provider. Used as the
	// config key (observability.advisory_scorer).
	Name() string

	// Score computes an advisory ScoreLike for the given request. This
	// value is surfaced only on operator dashboards; it never feeds back
	// into Evaluate's contractual decision.
	Score(req ScoreRequest) (scoreadvisory.ScoreLike, error)
}

// ─── Registry ─────────────────────────────────────────────────────────────

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ScoreProvider)
)

// RegisterScorer registers a custom advisory score provider.
// Panics if a provider with the same name is already registered.
// Call from init() functions in plugin packages.
func RegisterScorer(s ScoreProvider) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[s.Name()]; exists {
		panic(fmt.Sprintf("contrib: scorer %q already registered", s.Name()))
	}
	registry[s.Name()] = s
}

// GetScorer returns the registered provider with the given name.
// Returns an error if no provider with that name is registered.
func GetScorer(name string) (ScoreProvider, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("contrib: scorer %q not registered (available: %v)", name, listNames())
	}
	return s, nil
}

// ListScorers returns the names of all registered providers.
func ListScorers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return listNames()
}

func listNames() []string {
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	return names
}

// ─── Example contrib scorer: Z-Score over evidence ───────────────────────
// Provided as a reference implementation in the contrib package itself.
// Community providers should be in contrib/scorers/<name>/<name>.go.

// ZScoreScorer re-derives an advisory score from a signal's evidence map.
// It expects evidence to carry either a bare numeric "advisory_score", or a
// legacy-shaped {"value": <number>, "channel": <string>} map — both forms
// accepted via scoreadvisory.Coerce. Falls back to the contract score
// (tagged with channel "contract_fallback") when evidence carries neither.
// Registered as "zscore".
type ZScoreScorer struct{}

func init() {
	RegisterScorer(&ZScoreScorer{})
}

func (z *ZScoreScorer) Name() string { return "zscore" }

func (z *ZScoreScorer) Score(req ScoreRequest) (scoreadvisory.ScoreLike, error) {
	if raw, ok := req.Evidence["advisory_score"]; ok {
		sl, err := scoreadvisory.Coerce(raw)
		if err != nil {
			return nil, fmt.Errorf("zscore: %w", err)
		}
		return sl, nil
	}
	return scoreadvisory.NewTagged(req.ContractScore, "contract_fallback"), nil
}
