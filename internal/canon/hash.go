// Package canon implements canonical JSON serialization and SHA-256 content
// hashing for DQSN Shield Contract v3.
//
// Canonicalization rules (contract-fixed, must not drift):
//   - Object keys sorted lexicographically (code-point order).
//   - Smallest separators: "," between members, ":" between key and value;
//     no whitespace anywhere.
//   - UTF-8 output; non-ASCII characters emitted literally, never escaped.
//   - Numeric encoding uses Go's standard JSON number form. Callers must
//     ensure all numeric values are finite before calling Marshal/SHA256Hex;
//     this package does not re-validate.
//
// Values are built with Object and Array rather than map[string]any, so key
// order is fixed by construction (Object.Set keeps pairs sorted as they are
// inserted) instead of recovered from a randomized Go map at encode time.
// map[string]any and []any are still accepted directly for callers holding
// already-decoded data; their keys are sorted at encode time in that case.
//
// Every response carries a context_hash computed by this package; two
// conforming implementations (in any language) must produce byte-identical
// hashes for the same logical input, so the rules above are never relaxed
// for convenience.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// pair is one key/value member of an Object.
type pair struct {
	key string
	val any
}

// Object is an ordered builder for a canonical JSON object. Pairs are kept
// sorted by key at all times, so encoding never needs a separate sort pass.
type Object struct {
	pairs []pair
}

// NewObject returns an empty Object.
func NewObject() *Object {
	return &Object{}
}

// Set inserts or overwrites key with val, maintaining sorted order, and
// returns o for chaining.
func (o *Object) Set(key string, val any) *Object {
	idx := sort.Search(len(o.pairs), func(i int) bool { return o.pairs[i].key >= key })
	if idx < len(o.pairs) && o.pairs[idx].key == key {
		o.pairs[idx].val = val
		return o
	}
	o.pairs = append(o.pairs, pair{})
	copy(o.pairs[idx+1:], o.pairs[idx:])
	o.pairs[idx] = pair{key: key, val: val}
	return o
}

// Len reports the number of members in o.
func (o *Object) Len() int {
	return len(o.pairs)
}

// Array is an ordered builder for a canonical JSON array.
type Array struct {
	items []any
}

// NewArray returns an Array seeded with items, in order.
func NewArray(items ...any) *Array {
	return &Array{items: append([]any(nil), items...)}
}

// Append adds v to the end of a and returns a for chaining.
func (a *Array) Append(v any) *Array {
	a.items = append(a.items, v)
	return a
}

// SHA256Hex returns the lowercase hex-encoded SHA-256 digest of the
// canonical JSON encoding of v.
func SHA256Hex(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Marshal returns the canonical JSON encoding of v. v must be built from
// nil, bool, string, int/int32/int64, float32/float64, *Object, *Array, or
// (for convenience) map[string]any and []any.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case *Object:
		return encodeObjectPairs(buf, t.pairs)
	case *Array:
		return encodeArray(buf, t.items)
	case map[string]any:
		return encodeMap(buf, t)
	case []any:
		return encodeArray(buf, t)
	case string, bool, int, int32, int64, float32, float64:
		return encodeScalar(buf, t)
	default:
		return fmt.Errorf("canon: unsupported type %T", v)
	}
}

func encodeObjectPairs(buf *bytes.Buffer, pairs []pair) error {
	buf.WriteByte('{')
	for i, p := range pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalCompact(p.key)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		if err := encode(buf, p.val); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// encodeMap sorts keys in code-point order, matching the contract's
// canonicalization rule. Go's native map iteration order is randomized, so
// this sort is load-bearing, not cosmetic.
func encodeMap(buf *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]pair, len(keys))
	for i, k := range keys {
		pairs[i] = pair{key: k, val: m[k]}
	}
	return encodeObjectPairs(buf, pairs)
}

func encodeArray(buf *bytes.Buffer, a []any) error {
	buf.WriteByte('[')
	for i, e := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encode(buf, e); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func encodeScalar(buf *bytes.Buffer, v any) error {
	b, err := marshalCompact(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// marshalCompact encodes a single scalar value with HTML-escaping disabled,
// so literal UTF-8 (and "<", ">", "&") survive unescaped as the contract
// requires, and trims the trailing newline json.Encoder always appends.
func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
