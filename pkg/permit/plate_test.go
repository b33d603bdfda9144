package permit

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
)

func TestNextPlateSequence(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		current string
		want    string
	}{
		{current: "GSR1989", want: "GSR1990"},
		{current: "ABC0000", want: "ABC0001"},
		{current: "ABC9998", want: "ABC9999"},
		{current: "ABC9999", want: "ABD0000"},
		{current: "ABZ9999", want: "ACA0000"},
		{current: "AZZ9999", want: "BAA0000"},
		{current: "ZZZ9999", want: "AAA0000"},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.current, func(test *testing.T) {
			test.Parallel()
			next := NextPlate(mustPlate(test, testCase.current))
			if next.String() != testCase.want {
				test.Fatalf("expected %s, got %s", testCase.want, next)
			}
		})
	}
}

func TestNewPlateRejectsMalformedValues(test *testing.T) {
	test.Parallel()
	for _, raw := range []string{"", "AB12345", "ABCD123", "ABC123", "AB1C234"} {
		if _, err := NewPlate(raw); !errors.Is(err, ErrInvalidPlate) {
			test.Fatalf("expected ErrInvalidPlate for %q, got %v", raw, err)
		}
	}
}

func TestPlateAllocatorContinuesFromSeed(test *testing.T) {
	test.Parallel()
	store := &stubPlateStore{}
	allocator, err := NewPlateAllocator(store)
	if err != nil {
		test.Fatalf("new plate allocator: %v", err)
	}
	first := allocator.Allocate(context.Background())
	second := allocator.Allocate(context.Background())
	if first.Degraded || second.Degraded {
		test.Fatalf("unexpected degraded allocation: %+v %+v", first, second)
	}
	if first.Plate.String() != "GSR1990" || second.Plate.String() != "GSR1991" {
		test.Fatalf("expected GSR1990 then GSR1991, got %s then %s", first.Plate, second.Plate)
	}
	if store.last != "GSR1991" {
		test.Fatalf("expected persisted GSR1991, got %s", store.last)
	}
}

func TestPlateAllocatorFallsBackToRandomPlate(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name  string
		store *stubPlateStore
	}{
		{name: "read failure", store: &stubPlateStore{readError: errStoreFailure}},
		{name: "write failure", store: &stubPlateStore{writeError: errStoreFailure}},
		{name: "corrupt state", store: &stubPlateStore{last: "BROKEN", found: true}},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			allocator, err := NewPlateAllocator(testCase.store, WithPlateRandom(rand.New(rand.NewPCG(1, 2))))
			if err != nil {
				test.Fatalf("new plate allocator: %v", err)
			}
			result := allocator.Allocate(context.Background())
			if !result.Degraded || result.Cause == nil {
				test.Fatalf("expected degraded allocation with cause, got %+v", result)
			}
			if _, err := NewPlate(result.Plate.String()); err != nil {
				test.Fatalf("fallback plate must be well formed: %v", err)
			}
		})
	}
}
