package launcher

// StokesVector describes the polarization state of a photon packet
type StokesVector struct {
	I float64 `json:"i"`
	Q float64 `json:"q"`
	U float64 `json:"u"`
	V float64 `json:"v"`
}

// Unpolarized returns the Stokes vector of unpolarized radiation
func Unpolarized() StokesVector {
	return StokesVector{I: 1}
}

// PhotonPacket carries the launch state of a single history
type PhotonPacket struct {
	HistoryIndex   uint64       `json:"historyIndex"`   // Index in [0, N) of the emission segment
	SourceIndex    int          `json:"sourceIndex"`    // Emitting source in the source system
	ComponentIndex int          `json:"componentIndex"` // Emitting subcomponent within the source (-1 = none)
	Position       Vec3         `json:"position"`       // Launch position (m)
	Direction      Vec3         `json:"direction"`      // Unit propagation direction
	Wavelength     float64      `json:"wavelength"`     // Wavelength (m)
	Luminosity     float64      `json:"luminosity"`     // Luminosity carried by the packet (W)
	Stokes         StokesVector `json:"stokes"`         // Polarization state
}

// Launch reinitializes every field describing the emitted packet. Sources
// call it from their Launch method; history and source indices are stamped
// by the source system afterwards.
func (pp *PhotonPacket) Launch(luminosity, wavelength float64, position, direction Vec3) {
	pp.ComponentIndex = -1
	pp.Position = position
	pp.Direction = direction
	pp.Wavelength = wavelength
	pp.Luminosity = luminosity
	pp.Stokes = Unpolarized()
}
