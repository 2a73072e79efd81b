package launcher

import (
	"encoding/json"
	"fmt"
)

// Wavelength limits accepted for the source system (meters)
const (
	MinAllowedWavelength = 1e-10 // 1 Angstrom
	MaxAllowedWavelength = 1.0   // 1 m
)

// SourceKind represents the type of a configured primary source
type SourceKind int

const (
	SourceKindPoint     SourceKind = iota // Single isotropic blackbody emitter
	SourceKindParticles                   // Many weighted blackbody particles
)

// String returns the string representation of SourceKind
func (k SourceKind) String() string {
	switch k {
	case SourceKindPoint:
		return "point"
	case SourceKindParticles:
		return "particles"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ParseSourceKind parses a string into SourceKind
func ParseSourceKind(s string) (SourceKind, error) {
	switch s {
	case "point":
		return SourceKindPoint, nil
	case "particles":
		return SourceKindParticles, nil
	default:
		return SourceKindPoint, fmt.Errorf("invalid source kind: %s (must be 'point' or 'particles')", s)
	}
}

// MarshalJSON implements json.Marshaler for SourceKind
func (k SourceKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON implements json.Unmarshaler for SourceKind
func (k *SourceKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseSourceKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParticleConfig describes one subcomponent of a particle source
type ParticleConfig struct {
	Position        Vec3    `json:"position"`        // Particle center (m)
	Luminosity      float64 `json:"luminosity"`      // Bolometric luminosity (W)
	Temperature     float64 `json:"temperature"`     // Blackbody temperature (K)
	SmoothingLength float64 `json:"smoothingLength"` // Emission is spread uniformly within this radius (0 = point-like)
}

// SourceConfig holds the configuration of a single primary source
type SourceConfig struct {
	Kind           SourceKind `json:"kind"`           // "point" or "particles"
	Name           string     `json:"name"`           // Label used in results and metrics
	EmissionWeight float64    `json:"emissionWeight"` // Relative launch weight for the biased share (default 1)

	// Point source parameters
	Position    Vec3    `json:"position"`    // Emitter position (m)
	Luminosity  float64 `json:"luminosity"`  // Bolometric luminosity (W)
	Temperature float64 `json:"temperature"` // Blackbody temperature (K)

	// Particle source parameters
	Particles []ParticleConfig `json:"particles,omitempty"`
}

// UnmarshalJSON fills in an emission weight of 1 when the field is absent
func (sc *SourceConfig) UnmarshalJSON(data []byte) error {
	type plain SourceConfig
	p := plain{EmissionWeight: 1}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*sc = SourceConfig(p)
	return nil
}

// SystemConfig holds the primary source system parameters
type SystemConfig struct {
	MinWavelength        float64 `json:"minWavelength"`        // Shortest launched wavelength (m)
	MaxWavelength        float64 `json:"maxWavelength"`        // Longest launched wavelength (m)
	SourceBias           float64 `json:"sourceBias"`           // Fraction of packets distributed by emission weight instead of luminosity, [0,1]
	NumPacketsMultiplier float64 `json:"numPacketsMultiplier"` // Multiplier on the requested packet count, ]0,1000]

	// Execution
	RandomSeed uint64 `json:"randomSeed"` // Seed for the per-history random streams
	Workers    int    `json:"workers"`    // Parallel launch workers (0 = runtime.NumCPU())
	ChunkSize  int    `json:"chunkSize"`  // History indices handed to a worker at once (0 = auto)

	Sources []SourceConfig `json:"sources"`
}

// DefaultConfig returns the source system defaults: 0.09-20 micron, bias 0.5,
// multiplier 1 and a single solar-like point source at the origin
func DefaultConfig() SystemConfig {
	return SystemConfig{
		MinWavelength:        0.09e-6, // 0.09 micron
		MaxWavelength:        20e-6,   // 20 micron
		SourceBias:           0.5,     // half of the packets ignore luminosity
		NumPacketsMultiplier: 1.0,
		RandomSeed:           1,
		Workers:              0,
		ChunkSize:            0,
		Sources: []SourceConfig{
			{
				Kind:           SourceKindPoint,
				Name:           "star",
				EmissionWeight: 1.0,
				Luminosity:     3.828e26, // nominal solar luminosity (W)
				Temperature:    5772,     // effective solar temperature (K)
			},
		},
	}
}

// Validate checks if configuration values are within their allowed ranges
func (c *SystemConfig) Validate() error {
	if err := c.validateSystem(); err != nil {
		return err
	}
	if len(c.Sources) == 0 {
		return ErrInvalidConfig("at least one source is required")
	}
	for i := range c.Sources {
		if err := c.Sources[i].validate(i); err != nil {
			return err
		}
	}
	return nil
}

// inRange reports whether lo <= x <= hi; NaN is never in range
func inRange(x, lo, hi float64) bool {
	return x >= lo && x <= hi
}

// validateSystem checks everything except the source list
func (c *SystemConfig) validateSystem() error {
	if !inRange(c.MinWavelength, MinAllowedWavelength, MaxAllowedWavelength) {
		return ErrInvalidConfig("minWavelength must be between 1e-10 m and 1 m")
	}
	if !inRange(c.MaxWavelength, MinAllowedWavelength, MaxAllowedWavelength) {
		return ErrInvalidConfig("maxWavelength must be between 1e-10 m and 1 m")
	}
	if c.MinWavelength >= c.MaxWavelength {
		return ErrInvalidConfig("minWavelength must be smaller than maxWavelength")
	}
	if !inRange(c.SourceBias, 0, 1) {
		return ErrInvalidConfig("sourceBias must be between 0 and 1")
	}
	if !(c.NumPacketsMultiplier > 0 && c.NumPacketsMultiplier <= 1000) {
		return ErrInvalidConfig("numPacketsMultiplier must be in ]0, 1000]")
	}
	if c.Workers < 0 {
		return ErrInvalidConfig("workers must be >= 0")
	}
	if c.ChunkSize < 0 {
		return ErrInvalidConfig("chunkSize must be >= 0")
	}
	return nil
}

func (sc *SourceConfig) validate(i int) error {
	if !(sc.EmissionWeight >= 0) {
		return ErrInvalidConfig(fmt.Sprintf("source %d: emissionWeight must be >= 0", i))
	}
	switch sc.Kind {
	case SourceKindPoint:
		if !(sc.Luminosity >= 0) {
			return ErrInvalidConfig(fmt.Sprintf("source %d: luminosity must be >= 0", i))
		}
		if !(sc.Temperature > 0) {
			return ErrInvalidConfig(fmt.Sprintf("source %d: temperature must be > 0", i))
		}
	case SourceKindParticles:
		if len(sc.Particles) == 0 {
			return ErrInvalidConfig(fmt.Sprintf("source %d: particle source needs at least one particle", i))
		}
		for j, p := range sc.Particles {
			if !(p.Luminosity >= 0) {
				return ErrInvalidConfig(fmt.Sprintf("source %d particle %d: luminosity must be >= 0", i, j))
			}
			if !(p.Temperature > 0) {
				return ErrInvalidConfig(fmt.Sprintf("source %d particle %d: temperature must be > 0", i, j))
			}
			if !(p.SmoothingLength >= 0) {
				return ErrInvalidConfig(fmt.Sprintf("source %d particle %d: smoothingLength must be >= 0", i, j))
			}
		}
	default:
		return ErrInvalidConfig(fmt.Sprintf("source %d: unknown kind %s", i, sc.Kind))
	}
	return nil
}
