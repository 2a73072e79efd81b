package launcher

// WavelengthRange is a closed wavelength interval in meters
type WavelengthRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether lambda lies within the range
func (r WavelengthRange) Contains(lambda float64) bool {
	return lambda >= r.Min && lambda <= r.Max
}

// Source is one of the superposed primary emitters of a source system.
//
// Setup is called once, before Luminosity is first queried. PrepareForLaunch
// is called serially at the start of every emission segment with the
// contiguous history-index range allocated to the source. Launch is called
// concurrently from many workers, each with its own WorkerContext; any
// sampling structure a source caches between launches must live in the
// context's CacheSlot, never in the source itself.
type Source interface {
	Setup(wavelengths WavelengthRange) error
	Luminosity() float64
	EmissionWeight() float64
	Dimension() int
	PrepareForLaunch(rangeStart, rangeCount uint64)
	Launch(wc *WorkerContext, pp *PhotonPacket, localIndex uint64, packetLuminosity float64)
}

// Named is implemented by sources that carry a human-readable label
type Named interface {
	Name() string
}
