package service

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	filterCapacity      = 10_000_000
	filterFalsePositive = 0.01
)

// CodeFilter is a bloom filter over every code known to exist. A
// negative answer is definite, so the resolver can reject garbage
// codes without touching Redis or Postgres. False positives just fall
// through to the store.
type CodeFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewCodeFilter returns a filter sized for the expected code volume.
func NewCodeFilter() *CodeFilter {
	return &CodeFilter{
		filter: bloom.NewWithEstimates(filterCapacity, filterFalsePositive),
	}
}

// Warm seeds the filter with existing codes, typically at startup.
func (f *CodeFilter) Warm(codes []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, code := range codes {
		f.filter.AddString(code)
	}
}

// Add records a newly created code.
func (f *CodeFilter) Add(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter.AddString(code)
}

// MightContain reports whether the code could exist. False means the
// code definitely was never created.
func (f *CodeFilter) MightContain(code string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.TestString(code)
}
