package health

import "sort"

// Apply folds one run's observations into the miss-counter state.
//
// Pure function: the input map is never mutated, the result carries the full
// replacement state. Rules:
//
//  1. An observed vessel resets its counter (dropped from the map).
//  2. A removal candidate increments its counter, but only when the run was
//     healthy. An unhealthy run changes nothing at all.
//  3. A counter reaching the threshold during a healthy run clears the
//     vessel for removal and drops its counter.
//
// threshold must be >= 1; a candidate listed in observed counts as observed.
func Apply(misses map[string]int, observed, candidates []string, healthy bool, threshold int) Result {
	if !healthy {
		// A broken scrape must never look like a fleet-wide disappearance.
		return Result{Misses: copyMisses(misses)}
	}

	next := copyMisses(misses)

	seen := make(map[string]bool, len(observed))
	for _, key := range observed {
		seen[key] = true
		delete(next, key)
	}

	var removals []string
	for _, key := range candidates {
		if seen[key] {
			continue
		}
		next[key]++
		if next[key] >= threshold {
			removals = append(removals, key)
			delete(next, key)
		}
	}
	sort.Strings(removals)

	return Result{Misses: next, Removals: removals}
}

// ResetObserved drops counters for observed vessels without touching the
// rest. Used by detect and detail-worker runs, which see only a partial
// slice of the fleet and therefore never increment.
func ResetObserved(misses map[string]int, observed []string) map[string]int {
	next := copyMisses(misses)
	for _, key := range observed {
		delete(next, key)
	}
	return next
}

func copyMisses(misses map[string]int) map[string]int {
	next := make(map[string]int, len(misses))
	for k, v := range misses {
		next[k] = v
	}
	return next
}
