package launcher

import (
	"math"
	"sort"
)

// allocate partitions [0, n) into len(shares) contiguous ranges with sizes
// proportional to shares, returning the len(shares)+1 range boundaries.
//
// Boundaries are the rounded cumulative exact allocations, so every prefix
// stays within half a packet of its exact value and the counts always sum to
// n. Shares must be non-negative; when they sum to zero the split is uniform.
func allocate(shares []float64, n uint64) []uint64 {
	boundaries := make([]uint64, len(shares)+1)
	if len(shares) == 0 || n == 0 {
		return boundaries
	}

	total := 0.0
	for _, s := range shares {
		total += s
	}
	if !(total > 0) {
		shares = make([]float64, len(shares))
		for i := range shares {
			shares[i] = 1
		}
		total = float64(len(shares))
	}

	cumulative := 0.0
	for i, s := range shares {
		cumulative += s
		b := uint64(math.Round(cumulative / total * float64(n)))
		if b > n {
			b = n
		}
		if b < boundaries[i] {
			b = boundaries[i]
		}
		boundaries[i+1] = b
	}
	boundaries[len(shares)] = n
	return boundaries
}

// LaunchPlan maps history indices in [0, N) onto sources. Source s owns the
// contiguous range [boundaries[s], boundaries[s+1]). A plan is immutable once
// built and may be read concurrently.
type LaunchPlan struct {
	boundaries          []uint64
	avgPacketLuminosity float64
	correction          []float64 // relativeLuminosity[s] / share[s]
	generation          uint64
}

// newLaunchPlan builds the plan for n packets. relLuminosity holds the
// normalized source luminosities (all zero when the total luminosity is
// zero) and shares the normalized allocation fractions.
func newLaunchPlan(n uint64, totalLuminosity float64, relLuminosity, shares []float64, generation uint64) *LaunchPlan {
	plan := &LaunchPlan{
		boundaries: allocate(shares, n),
		correction: make([]float64, len(shares)),
		generation: generation,
	}
	if n > 0 && totalLuminosity > 0 {
		plan.avgPacketLuminosity = totalLuminosity / float64(n)
	}
	for s := range shares {
		if shares[s] > 0 {
			plan.correction[s] = relLuminosity[s] / shares[s]
		}
	}
	return plan
}

// NumPackets returns N, the number of history indices covered by the plan
func (p *LaunchPlan) NumPackets() uint64 {
	return p.boundaries[len(p.boundaries)-1]
}

// NumSources returns the number of sources the plan partitions over
func (p *LaunchPlan) NumSources() int {
	return len(p.boundaries) - 1
}

// Boundaries returns a copy of the S+1 range boundaries
func (p *LaunchPlan) Boundaries() []uint64 {
	out := make([]uint64, len(p.boundaries))
	copy(out, p.boundaries)
	return out
}

// Range returns the first history index and the packet count of source s
func (p *LaunchPlan) Range(s int) (start, count uint64) {
	return p.boundaries[s], p.boundaries[s+1] - p.boundaries[s]
}

// Count returns the number of packets allocated to source s
func (p *LaunchPlan) Count(s int) uint64 {
	return p.boundaries[s+1] - p.boundaries[s]
}

// SourceFor returns the source owning historyIndex, which must be < N.
// Sources with empty ranges are never returned.
func (p *LaunchPlan) SourceFor(historyIndex uint64) int {
	// First boundary strictly greater than the index closes the owning range
	return sort.Search(len(p.boundaries)-1, func(i int) bool {
		return p.boundaries[i+1] > historyIndex
	})
}

// AveragePacketLuminosity returns L/N (0 when L or N is zero)
func (p *LaunchPlan) AveragePacketLuminosity() float64 {
	return p.avgPacketLuminosity
}

// PacketLuminosity returns the luminosity carried by each packet of source s.
// The bias correction makes the expected emitted luminosity of every source
// equal its true luminosity regardless of the source bias.
func (p *LaunchPlan) PacketLuminosity(s int) float64 {
	return p.avgPacketLuminosity * p.correction[s]
}

// Generation identifies the PrepareForLaunch call that built the plan
func (p *LaunchPlan) Generation() uint64 {
	return p.generation
}
