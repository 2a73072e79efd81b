package launcher

// PointSource is an isotropic blackbody emitter located at a single point
type PointSource struct {
	name        string
	position    Vec3
	luminosity  float64
	temperature float64
	weight      float64

	sed *BlackBodySED // built in Setup, shared read-only by all workers
}

// NewPointSource creates a point source; Setup must run before launching
func NewPointSource(name string, position Vec3, luminosity, temperature, weight float64) *PointSource {
	return &PointSource{
		name:        name,
		position:    position,
		luminosity:  luminosity,
		temperature: temperature,
		weight:      weight,
	}
}

func (ps *PointSource) Setup(wavelengths WavelengthRange) error {
	if !(ps.temperature > 0) {
		return ErrInvalidConfig("point source temperature must be > 0")
	}
	ps.sed = NewBlackBodySED(ps.temperature, wavelengths)
	return nil
}

func (ps *PointSource) Name() string            { return ps.name }
func (ps *PointSource) Luminosity() float64     { return ps.luminosity }
func (ps *PointSource) EmissionWeight() float64 { return ps.weight }

// Dimension is 1 for a source at the origin and 3 otherwise
func (ps *PointSource) Dimension() int {
	if ps.position.IsZero() {
		return 1
	}
	return 3
}

// PrepareForLaunch is a no-op: a point source has no subcomponents
func (ps *PointSource) PrepareForLaunch(rangeStart, rangeCount uint64) {}

func (ps *PointSource) Launch(wc *WorkerContext, pp *PhotonPacket, localIndex uint64, packetLuminosity float64) {
	rng := wc.Rand()
	lambda := ps.sed.Sample(rng.Float64())
	pp.Launch(packetLuminosity, lambda, ps.position, IsotropicDirection(rng))
}
