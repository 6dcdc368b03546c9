package identify

import (
	"math"

	"github.com/clintwin/pillfinder/internal/catalog"
)

// informationGain measures how much asking for attribute splits the candidate
// set: H(candidates) minus the weighted entropy of the partition by attribute
// value. Records lacking the attribute form their own group for the entropy
// term but contribute no askable value. The returned values keep first-seen
// candidate order so options stay deterministic.
func informationGain(candidates []catalog.MedicineRecord, attribute string) (float64, []string) {
	n := len(candidates)
	if n == 0 {
		return 0, nil
	}

	counts := make(map[string]int)
	var values []string
	absent := 0
	for _, rec := range candidates {
		v, ok := rec.Value(attribute)
		if !ok || v == "" {
			absent++
			continue
		}
		if counts[v] == 0 {
			values = append(values, v)
		}
		counts[v]++
	}

	groups := len(values)
	if absent > 0 {
		groups++
	}
	if groups <= 1 {
		return 0, values
	}

	fn := float64(n)
	after := 0.0
	for _, v := range values {
		after += float64(counts[v]) / fn * math.Log2(float64(counts[v]))
	}
	if absent > 0 {
		after += float64(absent) / fn * math.Log2(float64(absent))
	}
	return math.Log2(fn) - after, values
}

// bestAttribute picks the highest-gain attribute not yet asked. Ties resolve
// to the attribute declared first, so question order is reproducible for a
// given candidate set. Returns ok=false when no attribute has positive gain
// or an askable value, which is the scorer's stop signal.
func bestAttribute(candidates []catalog.MedicineRecord, asked map[string]bool) (catalog.AttributeSpec, []string, bool) {
	var (
		best       catalog.AttributeSpec
		bestValues []string
		bestGain   float64
		found      bool
	)
	for _, spec := range catalog.Specs() {
		if asked[spec.Name] {
			continue
		}
		gain, values := informationGain(candidates, spec.Name)
		if gain <= 0 || len(values) == 0 {
			continue
		}
		if !found || gain > bestGain {
			best = spec
			bestValues = values
			bestGain = gain
			found = true
		}
	}
	return best, bestValues, found
}
