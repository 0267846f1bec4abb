package main

import (
	"math/bits"
	"sort"
)

// isqrt returns the integer square root of n (the largest s with s*s <= n).
// Floating point is not used anywhere in reward math: float rounding differs
// across platforms above 2^53 and would break independent verification.
func isqrt(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	s := uint64(1) << ((bits.Len64(n) + 1) / 2)
	for {
		next := (s + n/s) / 2
		if next >= s {
			return s
		}
		s = next
	}
}

// mulDiv returns a*b/c using 128-bit intermediate math. c must be non-zero
// and the quotient must fit in 64 bits; callers guarantee both because
// b <= c in every weight computation.
func mulDiv(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, _ := bits.Div64(hi, lo, c)
	return q
}

// mulMod returns a*b mod c, the remainder companion of mulDiv.
func mulMod(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	_, r := bits.Div64(hi, lo, c)
	return r
}

// DistributeRewards splits poolE9s among the eligible principals,
// weighted by the integer square root of each one's reputation as of the end
// of the previous block. Truncation remainders are summed and credited to the
// single principal with the largest remainder fraction, ties broken by lowest
// principal ID, so the distributed total equals poolE9s exactly.
//
// If every weight is zero the pool is split equally instead, with the same
// remainder rule. An empty eligible set distributes nothing.
func DistributeRewards(poolE9s uint64, eligible []string, reputations map[string]uint64) map[string]uint64 {
	if poolE9s == 0 || len(eligible) == 0 {
		return map[string]uint64{}
	}

	// Deterministic processing order regardless of how the set was built.
	ids := make([]string, len(eligible))
	copy(ids, eligible)
	sort.Strings(ids)

	weights := make([]uint64, len(ids))
	var totalWeight uint64
	for i, id := range ids {
		weights[i] = isqrt(reputations[id])
		totalWeight += weights[i]
	}

	if totalWeight == 0 {
		for i := range weights {
			weights[i] = 1
		}
		totalWeight = uint64(len(ids))
	}

	shares := make(map[string]uint64, len(ids))
	var distributed uint64
	bestIdx := 0
	var bestRem uint64
	for i, id := range ids {
		share := mulDiv(poolE9s, weights[i], totalWeight)
		rem := mulMod(poolE9s, weights[i], totalWeight)
		shares[id] = share
		distributed += share
		// ids are sorted, so the first occurrence of the maximum remainder
		// is the lowest principal ID.
		if rem > bestRem {
			bestRem = rem
			bestIdx = i
		}
	}

	if leftover := poolE9s - distributed; leftover > 0 {
		shares[ids[bestIdx]] += leftover
	}

	return shares
}
