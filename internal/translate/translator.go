// Package translate renames property keys between the unified catalog naming
// scheme and a backend's native configuration keys.
package translate

import (
	"fmt"
	"sort"
	"strings"

	metaerrors "github.com/arkilian/catalogmeta/internal/errors"
)

// Policy decides what happens to keys that have no mapping.
type Policy int

const (
	// Passthrough emits unmapped keys unchanged.
	Passthrough Policy = iota
	// Drop omits unmapped keys from the output.
	Drop
)

func (p Policy) String() string {
	switch p {
	case Passthrough:
		return "passthrough"
	case Drop:
		return "drop"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses "passthrough" or "drop" (case-insensitive).
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "passthrough", "":
		return Passthrough, nil
	case "drop":
		return Drop, nil
	}
	return 0, fmt.Errorf("unknown unmapped key policy %q (must be passthrough or drop)", s)
}

// Pair maps one unified property name to its native key.
type Pair struct {
	Unified string
	Native  string
}

// Translator is a bijection between unified and native key names. It is
// immutable and safe for concurrent use.
type Translator struct {
	forward map[string]string
	inverse map[string]string
	pairs   []Pair
	policy  Policy
}

// New builds a translator from pairs. A unified or native name appearing
// twice is a configuration defect.
func New(policy Policy, pairs ...Pair) (*Translator, error) {
	t := &Translator{
		forward: make(map[string]string, len(pairs)),
		inverse: make(map[string]string, len(pairs)),
		policy:  policy,
	}
	for _, p := range pairs {
		if _, dup := t.forward[p.Unified]; dup {
			return nil, metaerrors.DuplicateKeyMapping(p.Unified, "unified")
		}
		if _, dup := t.inverse[p.Native]; dup {
			return nil, metaerrors.DuplicateKeyMapping(p.Native, "native")
		}
		t.forward[p.Unified] = p.Native
		t.inverse[p.Native] = p.Unified
	}
	t.pairs = append([]Pair(nil), pairs...)
	sort.Slice(t.pairs, func(i, j int) bool { return t.pairs[i].Unified < t.pairs[j].Unified })
	return t, nil
}

// MustNew is like New but panics on error.
func MustNew(policy Policy, pairs ...Pair) *Translator {
	t, err := New(policy, pairs...)
	if err != nil {
		panic(err)
	}
	return t
}

// WithPolicy returns a copy of t using a different unmapped key policy.
func (t *Translator) WithPolicy(policy Policy) *Translator {
	cp := *t
	cp.policy = policy
	return &cp
}

// ToBackend renames unified keys to native keys. Values are not touched.
func (t *Translator) ToBackend(props map[string]string) map[string]string {
	return rename(props, t.forward, t.policy)
}

// FromBackend renames native keys back to unified keys.
func (t *Translator) FromBackend(props map[string]string) map[string]string {
	return rename(props, t.inverse, t.policy)
}

// NativeName returns the native key for a unified name.
func (t *Translator) NativeName(unified string) (string, bool) {
	n, ok := t.forward[unified]
	return n, ok
}

// UnifiedName returns the unified name for a native key.
func (t *Translator) UnifiedName(native string) (string, bool) {
	u, ok := t.inverse[native]
	return u, ok
}

// Pairs returns the mapping sorted by unified name.
func (t *Translator) Pairs() []Pair {
	return append([]Pair(nil), t.pairs...)
}

// Policy returns the unmapped key policy.
func (t *Translator) Policy() Policy {
	return t.policy
}

func rename(props, mapping map[string]string, policy Policy) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		if to, ok := mapping[k]; ok {
			out[to] = v
			continue
		}
		if policy == Passthrough {
			if _, taken := out[k]; !taken {
				out[k] = v
			}
		}
	}
	return out
}
