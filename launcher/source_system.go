package launcher

import (
	"context"
	"fmt"
	"math"
	"reflect"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/miretskiy/photonlaunch/launcher")

// SourceSystem is the superposition of one or more primary sources. It
// distributes the history indices of each emission segment over its sources
// and dispatches every launch to the source owning the index.
//
// PrepareForLaunch must be called serially, with no Launch calls in flight.
// Between two PrepareForLaunch calls, Launch may be called concurrently as
// long as every goroutine uses its own WorkerContext.
type SourceSystem struct {
	config  SystemConfig
	sources []Source
	names   []string

	// Finalized once in NewSourceSystem
	totalLuminosity float64   // sum of all source luminosities
	relLuminosity   []float64 // luminosity of each source normalized to unity (zero-filled if L == 0)
	relWeight       []float64 // emission weight of each source normalized to unity (zero-filled if sum == 0)

	// Replaced wholesale by PrepareForLaunch
	plan       *LaunchPlan
	generation uint64

	// Event logging callback (optional, for UI/debugging)
	LogEvent func(msg string)
}

// NewSourceSystem sets up the given sources with the configured wavelength
// range and finalizes their luminosities and weights. config.Sources is
// ignored; see NewSourceSystemFromConfig.
func NewSourceSystem(config SystemConfig, sources []Source) (*SourceSystem, error) {
	if err := config.validateSystem(); err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, ErrInvalidConfig("at least one source is required")
	}

	s := &SourceSystem{
		config:        config,
		sources:       sources,
		names:         make([]string, len(sources)),
		relLuminosity: make([]float64, len(sources)),
		relWeight:     make([]float64, len(sources)),
	}

	// Each source keeps per-segment range state, so an instance may appear once
	seen := make(map[Source]int, len(sources))
	for i, src := range sources {
		if src == nil {
			return nil, ErrInvalidConfig(fmt.Sprintf("source %d is nil", i))
		}
		if !reflect.TypeOf(src).Comparable() {
			continue
		}
		if j, ok := seen[src]; ok {
			return nil, ErrInvalidConfig(fmt.Sprintf("source %d is the same instance as source %d", i, j))
		}
		seen[src] = i
	}

	wavelengths := s.WavelengthRange()
	totalWeight := 0.0
	for i, src := range sources {
		if err := src.Setup(wavelengths); err != nil {
			return nil, fmt.Errorf("setup source %d: %w", i, err)
		}
		if src.Luminosity() < 0 || math.IsNaN(src.Luminosity()) {
			return nil, ErrInvalidConfig(fmt.Sprintf("source %d: luminosity must be >= 0", i))
		}
		if src.EmissionWeight() < 0 || math.IsNaN(src.EmissionWeight()) {
			return nil, ErrInvalidConfig(fmt.Sprintf("source %d: emissionWeight must be >= 0", i))
		}
		s.totalLuminosity += src.Luminosity()
		totalWeight += src.EmissionWeight()

		if named, ok := src.(Named); ok && named.Name() != "" {
			s.names[i] = named.Name()
		} else {
			s.names[i] = fmt.Sprintf("source-%d", i)
		}
	}

	for i, src := range sources {
		if s.totalLuminosity > 0 {
			s.relLuminosity[i] = src.Luminosity() / s.totalLuminosity
		}
		if totalWeight > 0 {
			s.relWeight[i] = src.EmissionWeight() / totalWeight
		}
	}
	return s, nil
}

// NewSourceSystemFromConfig validates config and builds its sources
func NewSourceSystemFromConfig(config SystemConfig) (*SourceSystem, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	sources := make([]Source, len(config.Sources))
	for i, sc := range config.Sources {
		name := sc.Name
		if name == "" {
			name = fmt.Sprintf("source-%d", i)
		}
		switch sc.Kind {
		case SourceKindPoint:
			sources[i] = NewPointSource(name, sc.Position, sc.Luminosity, sc.Temperature, sc.EmissionWeight)
		case SourceKindParticles:
			particles := make([]Particle, len(sc.Particles))
			for j, pc := range sc.Particles {
				particles[j] = Particle{
					Position:        pc.Position,
					Luminosity:      pc.Luminosity,
					Temperature:     pc.Temperature,
					SmoothingLength: pc.SmoothingLength,
				}
			}
			sources[i] = NewParticleSource(name, particles, sc.EmissionWeight)
		}
	}
	return NewSourceSystem(config, sources)
}

func (s *SourceSystem) logf(format string, args ...any) {
	if s.LogEvent != nil {
		s.LogEvent(fmt.Sprintf(format, args...))
	}
}

// launchShares returns the normalized fraction of packets for each source:
// (1-xi) * relative luminosity + xi * relative weight. Without any
// luminosity only the weights count, and without weights either the split
// is uniform.
func (s *SourceSystem) launchShares() []float64 {
	xi := s.config.SourceBias
	shares := make([]float64, len(s.sources))
	total := 0.0
	for i := range shares {
		if s.totalLuminosity > 0 {
			shares[i] = (1-xi)*s.relLuminosity[i] + xi*s.relWeight[i]
		} else {
			shares[i] = s.relWeight[i]
		}
		total += shares[i]
	}
	for i := range shares {
		if total > 0 {
			shares[i] /= total
		} else {
			shares[i] = 1 / float64(len(shares))
		}
	}
	return shares
}

// PrepareForLaunch builds a new launch plan for numPackets history indices,
// replacing the previous one, and hands each source its index range.
func (s *SourceSystem) PrepareForLaunch(ctx context.Context, numPackets uint64) *LaunchPlan {
	_, span := tracer.Start(ctx, "SourceSystem.PrepareForLaunch", trace.WithAttributes(
		attribute.Int64("launch.num_packets", int64(numPackets)),
		attribute.Int("launch.num_sources", len(s.sources)),
		attribute.Float64("launch.source_bias", s.config.SourceBias),
	))
	defer span.End()

	s.generation++
	plan := newLaunchPlan(numPackets, s.totalLuminosity, s.relLuminosity, s.launchShares(), s.generation)
	s.plan = plan

	for i, src := range s.sources {
		start, count := plan.Range(i)
		src.PrepareForLaunch(start, count)
	}

	bounds := make([]int64, len(plan.boundaries))
	for i, b := range plan.boundaries {
		bounds[i] = int64(b)
	}
	span.SetAttributes(
		attribute.Int64Slice("launch.boundaries", bounds),
		attribute.Float64("launch.avg_packet_luminosity", plan.avgPacketLuminosity),
	)
	s.logf("Prepared launch plan #%d: %d packets over %d sources, boundaries %v", s.generation, numPackets, len(s.sources), plan.boundaries)
	return plan
}

// Launch reinitializes pp as emitted by the source owning historyIndex.
// Calling Launch before PrepareForLaunch or with an index outside [0, N) is
// a programming error and panics.
func (s *SourceSystem) Launch(wc *WorkerContext, pp *PhotonPacket, historyIndex uint64) {
	plan := s.plan
	if plan == nil {
		contractViolation("Launch called before PrepareForLaunch")
	}
	if historyIndex >= plan.NumPackets() {
		contractViolation("history index %d outside [0, %d)", historyIndex, plan.NumPackets())
	}
	if wc == nil || wc.system != s {
		contractViolation("worker context was not created by this source system")
	}

	src := plan.SourceFor(historyIndex)
	wc.begin(s.config.RandomSeed, historyIndex, src, plan.generation)
	s.sources[src].Launch(wc, pp, historyIndex-plan.boundaries[src], plan.PacketLuminosity(src))
	pp.HistoryIndex = historyIndex
	pp.SourceIndex = src
}

// NewWorkerContext returns a fresh context for one launching goroutine
func (s *SourceSystem) NewWorkerContext() *WorkerContext {
	return newWorkerContext(s)
}

// NumPackets applies the packet multiplier to a requested packet count
func (s *SourceSystem) NumPackets(requested uint64) uint64 {
	return uint64(math.Round(float64(requested) * s.config.NumPacketsMultiplier))
}

// Dimension returns the highest dimension among the sources: 1 means
// spherical symmetry, 2 axial symmetry, 3 no symmetry
func (s *SourceSystem) Dimension() int {
	dim := 1
	for _, src := range s.sources {
		if d := src.Dimension(); d > dim {
			dim = d
		}
	}
	return dim
}

// Luminosity returns the total bolometric luminosity of all sources
func (s *SourceSystem) Luminosity() float64 {
	return s.totalLuminosity
}

// NumSources returns the number of sources in the system
func (s *SourceSystem) NumSources() int {
	return len(s.sources)
}

// WavelengthRange returns the configured launch wavelength range
func (s *SourceSystem) WavelengthRange() WavelengthRange {
	return WavelengthRange{Min: s.config.MinWavelength, Max: s.config.MaxWavelength}
}

// Plan returns the current launch plan, or nil before the first segment
func (s *SourceSystem) Plan() *LaunchPlan {
	return s.plan
}

// Sources returns the sources in configuration order
func (s *SourceSystem) Sources() []Source {
	return s.sources
}

// SourceName returns the label of source i
func (s *SourceSystem) SourceName(i int) string {
	return s.names[i]
}

// RelativeLuminosity returns the normalized luminosity of source i
func (s *SourceSystem) RelativeLuminosity(i int) float64 {
	return s.relLuminosity[i]
}

// RelativeWeight returns the normalized emission weight of source i
func (s *SourceSystem) RelativeWeight(i int) float64 {
	return s.relWeight[i]
}

// Config returns the source system configuration
func (s *SourceSystem) Config() SystemConfig {
	return s.config
}
