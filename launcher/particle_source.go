package launcher

import "sort"

// Particle is a single blackbody emitter within a ParticleSource
type Particle struct {
	Position        Vec3
	Luminosity      float64
	Temperature     float64
	SmoothingLength float64
}

// ParticleSource emits from many particles. Every emission segment it splits
// its own history-index range over the particles in proportion to their
// luminosity, so consecutive indices come from the same particle. Workers
// build a particle's spectral distribution once when they first reach it and
// drop it as soon as they move on to the next particle.
type ParticleSource struct {
	name        string
	weight      float64
	particles   []Particle
	luminosity  float64
	wavelengths WavelengthRange

	// Set by PrepareForLaunch
	rangeStart uint64
	rangeCount uint64
	boundaries []uint64 // particle p owns local indices [boundaries[p], boundaries[p+1])
}

// NewParticleSource creates a particle source; Setup must run before launching
func NewParticleSource(name string, particles []Particle, weight float64) *ParticleSource {
	ps := &ParticleSource{
		name:      name,
		weight:    weight,
		particles: make([]Particle, len(particles)),
	}
	copy(ps.particles, particles)
	return ps
}

func (ps *ParticleSource) Setup(wavelengths WavelengthRange) error {
	if len(ps.particles) == 0 {
		return ErrInvalidConfig("particle source needs at least one particle")
	}
	ps.wavelengths = wavelengths
	ps.luminosity = 0
	for _, p := range ps.particles {
		if !(p.Temperature > 0) {
			return ErrInvalidConfig("particle temperature must be > 0")
		}
		ps.luminosity += p.Luminosity
	}
	ps.boundaries = make([]uint64, len(ps.particles)+1)
	return nil
}

func (ps *ParticleSource) Name() string            { return ps.name }
func (ps *ParticleSource) Luminosity() float64     { return ps.luminosity }
func (ps *ParticleSource) EmissionWeight() float64 { return ps.weight }
func (ps *ParticleSource) Dimension() int          { return 3 }
func (ps *ParticleSource) NumParticles() int       { return len(ps.particles) }

func (ps *ParticleSource) PrepareForLaunch(rangeStart, rangeCount uint64) {
	shares := make([]float64, len(ps.particles))
	for i, p := range ps.particles {
		shares[i] = p.Luminosity
	}
	ps.rangeStart = rangeStart
	ps.rangeCount = rangeCount
	ps.boundaries = allocate(shares, rangeCount)
}

// AllocatedRange returns the history-index range of the current segment
func (ps *ParticleSource) AllocatedRange() (start, count uint64) {
	return ps.rangeStart, ps.rangeCount
}

// ParticleFor returns the particle emitting the given source-local index
func (ps *ParticleSource) ParticleFor(localIndex uint64) int {
	return sort.Search(len(ps.particles), func(i int) bool {
		return ps.boundaries[i+1] > localIndex
	})
}

func (ps *ParticleSource) Launch(wc *WorkerContext, pp *PhotonPacket, localIndex uint64, packetLuminosity float64) {
	p := ps.ParticleFor(localIndex)
	particle := &ps.particles[p]

	var sed *BlackBodySED
	slot := wc.Slot()
	if cached, ok := slot.Lookup(p); ok {
		sed = cached.(*BlackBodySED)
	} else {
		sed = NewBlackBodySED(particle.Temperature, ps.wavelengths)
		slot.Store(p, sed)
	}

	rng := wc.Rand()
	lambda := sed.Sample(rng.Float64())
	position := UniformInBall(rng, particle.Position, particle.SmoothingLength)
	pp.Launch(packetLuminosity, lambda, position, IsotropicDirection(rng))
	pp.ComponentIndex = p
}
