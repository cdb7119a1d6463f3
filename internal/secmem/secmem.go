// Package secmem holds the agent's API key with best-effort memory hygiene.
// Go's GC may copy the backing array, so zeroing is defense in depth, not a
// guarantee.
package secmem

import (
	"crypto/subtle"
	"sync"
)

// Secret wraps a sensitive byte string. The fmt.Stringer implementation
// redacts it so a stray log call cannot leak the value.
type Secret struct {
	mu     sync.Mutex
	data   []byte
	zeroed bool
}

// New copies s into a Secret. An empty string yields an empty Secret, which
// Matches nothing and IsEmpty reports true for.
func New(s string) *Secret {
	b := make([]byte, len(s))
	copy(b, s)
	return &Secret{data: b}
}

// IsEmpty reports whether the secret holds no value (never set, or zeroed).
func (s *Secret) IsEmpty() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data) == 0 || s.zeroed
}

// Matches compares candidate against the secret in constant time. A zeroed
// or empty secret matches nothing.
func (s *Secret) Matches(candidate string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == 0 || s.zeroed {
		return false
	}
	return subtle.ConstantTimeCompare(s.data, []byte(candidate)) == 1
}

// Zero overwrites the secret in place. Call on shutdown paths. Subsequent
// Matches calls return false.
func (s *Secret) Zero() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data {
		s.data[i] = 0
	}
	s.data = nil
	s.zeroed = true
}

// String implements fmt.Stringer and always redacts.
func (s *Secret) String() string { return "[REDACTED]" }
