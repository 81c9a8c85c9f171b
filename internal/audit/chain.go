// Package audit — chain.go
//
// Chain-integrity verification for the replay ledger.
//
// Each Entry written by Append (ledger.go) embeds the context_hash of the
// entry written immediately before it, forming a linear hash chain. Verify
// walks a slice of entries (as read back by ReadAll) and confirms:
//
//  1. Sequence numbers are strictly increasing with no gaps.
//  2. Each entry's ParentHash matches the previous entry's
//     Response.ContextHash (a reordered or truncated ledger file is
//     detectable without needing BoltDB's own internal consistency check).
//  3. Every persisted response's risk score and tier are within the
//     contract's closed ranges — a defensive check against a ledger file
//     written by a build with a diverged tier table.
//
// This intentionally mirrors the shape of a constitutional-compliance
// checker rather than a generic checksum: the point of an audit ledger is
// that a reimplementation's replayed decisions can be proven, after the
// fact, to be the same reproducible chain — not merely that the bytes on
// disk are uncorrupted (bbolt's own CRC already covers that).
package audit

import (
	"fmt"
)

// ViolationType identifies a class of chain-integrity failure.
type ViolationType string

const (
	// ViolationSequenceGap — two adjacent entries' sequence numbers are not
	// consecutive.
	ViolationSequenceGap ViolationType = "sequence_gap"

	// ViolationChainBroken — an entry's ParentHash does not match the
	// previous entry's context_hash.
	ViolationChainBroken ViolationType = "chain_broken"

	// ViolationScoreOutOfBounds — a persisted risk score falls outside
	// [0, 1].
	ViolationScoreOutOfBounds ViolationType = "score_out_of_bounds"

	// ViolationUnknownTier — a persisted risk tier is not one of the four
	// contract tiers.
	ViolationUnknownTier ViolationType = "unknown_tier"
)

// Violation describes one chain-integrity failure found by Verify.
type Violation struct {
	Type     ViolationType
	Sequence uint64
	Message  string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("audit chain violation [%s] at sequence %d: %s", v.Type, v.Sequence, v.Message)
}

var validTiers = map[string]struct{}{
	"LOW": {}, "MEDIUM": {}, "HIGH": {}, "CRITICAL": {},
}

// Verify walks entries in sequence order and returns every violation found.
// An empty result means the chain is fully consistent. entries must already
// be sorted ascending by Sequence (ReadAll guarantees this).
func Verify(entries []Entry) []Violation {
	var violations []Violation
	var prev *Entry

	for i := range entries {
		e := &entries[i]

		if prev != nil {
			if e.Sequence != prev.Sequence+1 {
				violations = append(violations, Violation{
					Type:     ViolationSequenceGap,
					Sequence: e.Sequence,
					Message:  fmt.Sprintf("expected sequence %d, got %d", prev.Sequence+1, e.Sequence),
				})
			}
			if e.ParentHash != prev.Response.ContextHash {
				violations = append(violations, Violation{
					Type:     ViolationChainBroken,
					Sequence: e.Sequence,
					Message:  fmt.Sprintf("parent_hash %q does not match previous context_hash %q", e.ParentHash, prev.Response.ContextHash),
				})
			}
		}

		score := e.Response.Risk.Score
		if score < 0.0 || score > 1.0 {
			violations = append(violations, Violation{
				Type:     ViolationScoreOutOfBounds,
				Sequence: e.Sequence,
				Message:  fmt.Sprintf("risk.score %.4f outside [0,1]", score),
			})
		}
		if _, ok := validTiers[e.Response.Risk.Tier]; !ok {
			violations = append(violations, Violation{
				Type:     ViolationUnknownTier,
				Sequence: e.Sequence,
				Message:  fmt.Sprintf("risk.tier %q is not a recognized tier", e.Response.Risk.Tier),
			})
		}

		prev = e
	}

	return violations
}

// Stats summarizes a ledger's current chain state.
type Stats struct {
	Entries    int    `json:"entries"`
	LastHash   string `json:"last_hash"`
	Violations int    `json:"violations"`
}

// VerifyDB reads the full ledger from db and returns its chain statistics,
// including a fresh Verify pass. Operational/diagnostic use only.
func VerifyDB(db *DB) (Stats, error) {
	entries, err := db.ReadAll()
	if err != nil {
		return Stats{}, fmt.Errorf("audit: VerifyDB: %w", err)
	}
	violations := Verify(entries)
	last := ""
	if len(entries) > 0 {
		last = entries[len(entries)-1].Response.ContextHash
	}
	return Stats{
		Entries:    len(entries),
		LastHash:   last,
		Violations: len(violations),
	}, nil
}
