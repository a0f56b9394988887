package filter

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// IdentifierFilter is a thread-safe Bloom filter over every issued short
// code and custom alias. Resolve paths consult it before the store so
// garbage identifiers are rejected without a query; hard deletes cannot
// remove members, which only costs an extra store lookup on a stale hit.
type IdentifierFilter struct {
	filter *bloom.BloomFilter
	mu     sync.RWMutex
}

// NewIdentifierFilter creates a filter sized for the expected number of
// identifiers and target false positive rate.
func NewIdentifierFilter(capacity uint, fpRate float64) *IdentifierFilter {
	return &IdentifierFilter{
		filter: bloom.NewWithEstimates(capacity, fpRate),
	}
}

// Add registers an identifier
func (f *IdentifierFilter) Add(identifier string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter.AddString(identifier)
}

// AddBatch registers multiple identifiers
func (f *IdentifierFilter) AddBatch(identifiers []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range identifiers {
		f.filter.AddString(id)
	}
}

// Test reports whether an identifier might exist. False means the
// identifier definitely was never issued; true may be a false positive.
func (f *IdentifierFilter) Test(identifier string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.TestString(identifier)
}

// Clear resets the filter
func (f *IdentifierFilter) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter.ClearAll()
}
