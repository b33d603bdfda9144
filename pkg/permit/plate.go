package permit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// PlateResult is the outcome of one plate allocation.
// Degraded is set when the plate came from the random fallback instead of the sequence.
type PlateResult struct {
	Plate    Plate
	Degraded bool
	Cause    error
}

// NextPlate returns the plate that follows current in the sequence.
func NextPlate(current Plate) Plate {
	text := current.String()
	if len(text) != plateLetters+plateDigits {
		text = DefaultPlateSeed
	}
	letters := []byte(text[:plateLetters])
	suffix, _ := strconv.Atoi(text[plateLetters:])
	if suffix < plateMaxSuffix {
		return Plate{value: fmt.Sprintf("%s%0*d", letters, plateDigits, suffix+1)}
	}
	for index := plateLetters - 1; index >= 0; index-- {
		if letters[index] < 'Z' {
			letters[index]++
			break
		}
		letters[index] = 'A'
	}
	return Plate{value: string(letters) + strings.Repeat("0", plateDigits)}
}

// PlateAllocator produces plates from the persisted sequence.
type PlateAllocator struct {
	store  PlateStore
	seed   Plate
	random *rand.Rand
	logger *zap.Logger

	mutex sync.Mutex
}

// PlateOption customizes a PlateAllocator.
type PlateOption func(*PlateAllocator)

// WithPlateRandom replaces the source used for degraded plates.
func WithPlateRandom(random *rand.Rand) PlateOption {
	return func(allocator *PlateAllocator) {
		if random != nil {
			allocator.random = random
		}
	}
}

// WithPlateLogger sets the logger used for degraded allocations.
func WithPlateLogger(logger *zap.Logger) PlateOption {
	return func(allocator *PlateAllocator) {
		if logger != nil {
			allocator.logger = logger
		}
	}
}

// NewPlateAllocator wires a plate allocator over store.
func NewPlateAllocator(store PlateStore, options ...PlateOption) (*PlateAllocator, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: plate store is nil", ErrInvalidServiceConfig)
	}
	seed, err := NewPlate(DefaultPlateSeed)
	if err != nil {
		return nil, err
	}
	allocator := &PlateAllocator{
		store:  store,
		seed:   seed,
		random: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger: zap.NewNop(),
	}
	for _, option := range options {
		if option != nil {
			option(allocator)
		}
	}
	return allocator, nil
}

// Allocate always returns a well-formed plate. Storage failures switch to the random fallback.
func (allocator *PlateAllocator) Allocate(ctx context.Context) PlateResult {
	allocator.mutex.Lock()
	defer allocator.mutex.Unlock()

	next, err := allocator.advance(ctx)
	if err == nil {
		return PlateResult{Plate: next}
	}
	fallback := allocator.randomPlate()
	allocator.logger.Warn("plate sequence unavailable, using random plate",
		zap.String("plate", fallback.String()),
		zap.Error(err),
	)
	return PlateResult{Plate: fallback, Degraded: true, Cause: err}
}

func (allocator *PlateAllocator) advance(ctx context.Context) (Plate, error) {
	raw, found, err := allocator.store.LastPlate(ctx)
	if err != nil {
		return Plate{}, WrapError(errorOperationAllocator, errorSubjectPlate, "read", err)
	}
	current := allocator.seed
	if found {
		current, err = NewPlate(raw)
		if err != nil {
			return Plate{}, WrapError(errorOperationAllocator, errorSubjectPlate, "parse", err)
		}
	}
	next := NextPlate(current)
	if err := allocator.store.SavePlate(ctx, next); err != nil {
		return Plate{}, WrapError(errorOperationAllocator, errorSubjectPlate, "write", err)
	}
	return next, nil
}

func (allocator *PlateAllocator) randomPlate() Plate {
	var builder strings.Builder
	for index := 0; index < plateLetters; index++ {
		builder.WriteByte(alphabet[allocator.random.IntN(len(alphabet))])
	}
	for index := 0; index < plateDigits; index++ {
		builder.WriteByte(byte('0' + allocator.random.IntN(10)))
	}
	return Plate{value: builder.String()}
}
