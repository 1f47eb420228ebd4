// Package normalization maps loosely formatted user input onto typed enums.
package normalization

import (
	"sort"
	"strings"
)

// Normalizer maps case-insensitive, whitespace-trimmed strings to enum values.
type Normalizer[T comparable] struct {
	values       map[string]T
	defaultValue T
	keys         []string
}

// NewNormalizer creates a normalizer from accepted spellings. Several spellings
// may map to the same value.
func NewNormalizer[T comparable](values map[string]T, defaultValue T) *Normalizer[T] {
	n := &Normalizer[T]{
		values:       make(map[string]T, len(values)),
		defaultValue: defaultValue,
		keys:         make([]string, 0, len(values)),
	}
	for k, v := range values {
		key := clean(k)
		if _, dup := n.values[key]; !dup {
			n.keys = append(n.keys, key)
		}
		n.values[key] = v
	}
	sort.Strings(n.keys)
	return n
}

// Normalize returns the value for raw, or the default when raw is not accepted.
func (n *Normalizer[T]) Normalize(raw string) T {
	if v, ok := n.values[clean(raw)]; ok {
		return v
	}
	return n.defaultValue
}

// Lookup reports whether raw is an accepted spelling.
func (n *Normalizer[T]) Lookup(raw string) (T, bool) {
	v, ok := n.values[clean(raw)]
	return v, ok
}

// Keys returns the accepted spellings, sorted.
func (n *Normalizer[T]) Keys() []string {
	return append([]string(nil), n.keys...)
}

// Joined returns the accepted spellings separated by sep, for error messages.
func (n *Normalizer[T]) Joined(sep string) string {
	return strings.Join(n.keys, sep)
}

func clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
