package permit

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FolioLookup is the subset of Store the folio allocator depends on.
type FolioLookup interface {
	FolioExists(ctx context.Context, folio Folio) (bool, error)
	MaxFolioSequence(ctx context.Context, prefix string) (int64, error)
}

// Allocation is a folio paired with its numeric sequence.
type Allocation struct {
	Folio    Folio
	Sequence int64
}

// FolioAllocator hands out folios from a monotonic counter. Consumed numbers are never returned.
type FolioAllocator struct {
	lookup      FolioLookup
	prefix      string
	maxAttempts int

	mutex sync.Mutex
	next  int64
}

// NewFolioAllocator wires an allocator. The counter starts at 1 until Seed runs.
func NewFolioAllocator(lookup FolioLookup, prefix string, maxAttempts int) (*FolioAllocator, error) {
	if lookup == nil {
		return nil, fmt.Errorf("%w: folio lookup is nil", ErrInvalidServiceConfig)
	}
	normalizedPrefix := strings.ToUpper(strings.TrimSpace(prefix))
	if normalizedPrefix == "" {
		normalizedPrefix = DefaultFolioPrefix
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultFolioAttempts
	}
	return &FolioAllocator{
		lookup:      lookup,
		prefix:      normalizedPrefix,
		maxAttempts: maxAttempts,
		next:        1,
	}, nil
}

// Prefix returns the configured folio prefix.
func (allocator *FolioAllocator) Prefix() string {
	return allocator.prefix
}

// Seed moves the counter past the highest persisted sequence. It never moves the counter back.
func (allocator *FolioAllocator) Seed(ctx context.Context) error {
	maxSequence, err := allocator.lookup.MaxFolioSequence(ctx, allocator.prefix)
	if err != nil {
		return WrapError(errorOperationAllocator, errorSubjectFolio, "seed", err)
	}
	allocator.mutex.Lock()
	defer allocator.mutex.Unlock()
	if maxSequence+1 > allocator.next {
		allocator.next = maxSequence + 1
	}
	return nil
}

// Peek returns the next candidate folio without consuming it.
func (allocator *FolioAllocator) Peek() Folio {
	allocator.mutex.Lock()
	defer allocator.mutex.Unlock()
	return ComposeFolio(allocator.prefix, allocator.next)
}

// Allocate returns a folio the store has confirmed unused. Every attempt consumes a number,
// including attempts whose existence check failed.
func (allocator *FolioAllocator) Allocate(ctx context.Context) (Allocation, error) {
	allocator.mutex.Lock()
	defer allocator.mutex.Unlock()

	var lastErr error
	for attempt := 0; attempt < allocator.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Allocation{}, err
		}
		sequence := allocator.next
		allocator.next++
		candidate := ComposeFolio(allocator.prefix, sequence)
		exists, err := allocator.lookup.FolioExists(ctx, candidate)
		if err != nil {
			lastErr = err
			continue
		}
		if exists {
			lastErr = fmt.Errorf("%w: %s", ErrFolioTaken, candidate)
			continue
		}
		return Allocation{Folio: candidate, Sequence: sequence}, nil
	}
	cause := ErrAllocatorExhausted
	if lastErr != nil {
		cause = fmt.Errorf("%w: last attempt: %v", ErrAllocatorExhausted, lastErr)
	}
	return Allocation{}, WrapError(errorOperationAllocator, errorSubjectFolio, errorCodeExhausted, cause)
}
