package testutil

import (
	"fmt"
	"sync"
)

// Sequence hands out predictable identifiers: prefix-1, prefix-2, ...
// It stands in for uuid.NewString where tests compare generated IDs.
//
// Safe for concurrent use.
type Sequence struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequence returns a sequence with the given prefix, "id" when empty.
func NewSequence(prefix string) *Sequence {
	if prefix == "" {
		prefix = "id"
	}
	return &Sequence{prefix: prefix}
}

// Next returns the next identifier.
func (s *Sequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%d", s.prefix, s.n)
}

// Issued returns how many identifiers were handed out.
func (s *Sequence) Issued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}
