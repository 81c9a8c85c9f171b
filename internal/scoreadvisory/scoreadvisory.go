// Package scoreadvisory re-architects the legacy duck-typed score container
// (a raw number, a tagged value, or anything exposing a numeric field) as a
// closed sum type with a single coercion boundary.
//
// This type is never seen by the contract validator or aggregator, which
// only ever handle a plain finite float64 risk score. It exists for the
// domain-stack advisory/plugin layer (contrib.ScoreProvider), where
// legacy-shaped evidence payloads may still carry a channel-tagged score
// alongside the raw value.
package scoreadvisory

import "fmt"

// ScoreLike is a closed sum type: either a bare Raw score, or a Tagged score
// carrying the channel (provenance) it came from. The unexported method
// seals the interface to this package's two constructors.
type ScoreLike interface {
	scoreLike()

	// Value returns the underlying numeric score, regardless of variant.
	// This is the single coercion point that replaces the legacy duck-typed
	// "does it have a .value attribute" check.
	Value() float64
}

// Raw is a bare numeric score with no provenance.
type Raw float64

func (Raw) scoreLike()      {}
func (r Raw) Value() float64 { return float64(r) }

// Tagged is a score reported alongside the channel that produced it (e.g.
// "zscore", "mahalanobis", a plugin name).
type Tagged struct {
	Val     float64
	Channel string
}

func (Tagged) scoreLike()       {}
func (t Tagged) Value() float64 { return t.Val }

// NewRaw constructs a Raw ScoreLike.
func NewRaw(v float64) ScoreLike {
	return Raw(v)
}

// NewTagged constructs a Tagged ScoreLike. It does not check channel; Coerce
// rejects an empty channel only in a legacy score map, and returns a Tagged
// value passed to it unchanged.
func NewTagged(v float64, channel string) ScoreLike {
	return Tagged{Val: v, Channel: channel}
}

// Coerce is the sole boundary function that accepts untyped, legacy-shaped
// score data and produces a ScoreLike. It intentionally does not accept
// arbitrary `any` beyond this fixed set: the point of the sum type is that
// every caller already knows which shape it holds before calling Coerce.
//
//   - float64, float32, int, int64 -> Raw
//   - ScoreLike -> returned unchanged
//   - map[string]any{"value": <number>, "channel": <string>} -> Tagged
//
// Any other shape is rejected rather than duck-typed, fixing the single
// coercion point described in the type's package doc.
func Coerce(v any) (ScoreLike, error) {
	switch t := v.(type) {
	case ScoreLike:
		return t, nil
	case float64:
		return Raw(t), nil
	case float32:
		return Raw(float64(t)), nil
	case int:
		return Raw(float64(t)), nil
	case int64:
		return Raw(float64(t)), nil
	case map[string]any:
		return coerceLegacyMap(t)
	default:
		return nil, fmt.Errorf("scoreadvisory: cannot coerce %T into ScoreLike", v)
	}
}

// Channel returns the provenance label for sl, suitable for a metric label
// or log field: "raw" for a bare Raw score, or the originating channel for
// a Tagged one.
func Channel(sl ScoreLike) string {
	if t, ok := sl.(Tagged); ok {
		return t.Channel
	}
	return "raw"
}

func coerceLegacyMap(m map[string]any) (ScoreLike, error) {
	rawVal, ok := m["value"]
	if !ok {
		return nil, fmt.Errorf("scoreadvisory: legacy score map missing %q", "value")
	}
	var val float64
	switch t := rawVal.(type) {
	case float64:
		val = t
	case float32:
		val = float64(t)
	case int:
		val = float64(t)
	case int64:
		val = float64(t)
	default:
		return nil, fmt.Errorf("scoreadvisory: legacy score map %q has non-numeric type %T", "value", rawVal)
	}

	channelVal, hasChannel := m["channel"]
	if !hasChannel {
		return Raw(val), nil
	}
	channel, ok := channelVal.(string)
	if !ok || channel == "" {
		return nil, fmt.Errorf("scoreadvisory: legacy score map %q must be a non-empty string", "channel")
	}
	return Tagged{Val: val, Channel: channel}, nil
}
