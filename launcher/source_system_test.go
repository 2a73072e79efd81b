package launcher

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mixedConfig returns a config with a point source and a particle source
func mixedConfig() SystemConfig {
	config := DefaultConfig()
	config.SourceBias = 0.3
	config.RandomSeed = 4242
	config.Sources = []SourceConfig{
		{
			Kind:           SourceKindPoint,
			Name:           "star",
			EmissionWeight: 1,
			Position:       Vec3{X: 1, Y: 0, Z: 0},
			Luminosity:     20,
			Temperature:    6000,
		},
		{
			Kind:           SourceKindParticles,
			Name:           "cluster",
			EmissionWeight: 2,
			Particles: []ParticleConfig{
				{Position: Vec3{X: -1}, Luminosity: 4, Temperature: 3000, SmoothingLength: 0.1},
				{Position: Vec3{Y: 2}, Luminosity: 1, Temperature: 10000},
				{Position: Vec3{Z: 3}, Luminosity: 5, Temperature: 20000, SmoothingLength: 0.5},
			},
		},
	}
	return config
}

func TestSourceSystem_Queries(t *testing.T) {
	sys, err := NewSourceSystemFromConfig(mixedConfig())
	require.NoError(t, err)

	require.Equal(t, 2, sys.NumSources())
	require.InDelta(t, 30.0, sys.Luminosity(), 1e-12)
	require.Equal(t, 3, sys.Dimension())
	require.Equal(t, WavelengthRange{Min: 0.09e-6, Max: 20e-6}, sys.WavelengthRange())
	require.Equal(t, "star", sys.SourceName(0))
	require.Equal(t, "cluster", sys.SourceName(1))
	require.InDelta(t, 2.0/3, sys.RelativeLuminosity(0), 1e-12)
	require.InDelta(t, 2.0/3, sys.RelativeWeight(1), 1e-12)
	require.Nil(t, sys.Plan(), "no plan before the first segment")
}

func TestSourceSystem_Dimension(t *testing.T) {
	t.Run("point at origin is spherical", func(t *testing.T) {
		sys := newTestSystem(t, 0.5, sourceParams{1, 1}, sourceParams{2, 1})
		require.Equal(t, 1, sys.Dimension())
	})

	t.Run("least symmetric source wins", func(t *testing.T) {
		sources := []Source{
			NewPointSource("center", Vec3{}, 1, 5000, 1),
			NewPointSource("offset", Vec3{Z: 2}, 1, 5000, 1),
		}
		sys, err := NewSourceSystem(DefaultConfig(), sources)
		require.NoError(t, err)
		require.Equal(t, 3, sys.Dimension())
	})
}

func TestSourceSystem_NumPacketsMultiplier(t *testing.T) {
	config := DefaultConfig()
	config.NumPacketsMultiplier = 2.5
	sys, err := NewSourceSystemFromConfig(config)
	require.NoError(t, err)
	require.Equal(t, uint64(2500), sys.NumPackets(1000))
	require.Equal(t, uint64(0), sys.NumPackets(0))
}

func TestSourceSystem_LaunchContractViolations(t *testing.T) {
	sys, err := NewSourceSystemFromConfig(mixedConfig())
	require.NoError(t, err)
	wc := sys.NewWorkerContext()
	var pp PhotonPacket

	require.Panics(t, func() { sys.Launch(wc, &pp, 0) }, "launch before PrepareForLaunch")

	sys.PrepareForLaunch(context.Background(), 100)
	require.Panics(t, func() { sys.Launch(wc, &pp, 100) }, "index == N")
	require.Panics(t, func() { sys.Launch(wc, &pp, 1<<40) }, "index far beyond N")
	require.Panics(t, func() { sys.Launch(nil, &pp, 0) }, "missing worker context")

	other := newTestSystem(t, 0.5, sourceParams{1, 1})
	require.Panics(t, func() { sys.Launch(other.NewWorkerContext(), &pp, 0) }, "foreign worker context")

	defer func() {
		r := recover()
		require.NotNil(t, r)
		_, ok := r.(LaunchError)
		require.True(t, ok, "contract violations panic with a LaunchError, got %T", r)
	}()
	sys.Launch(wc, &pp, 100)
}

// TestSourceSystem_RejectsContextOfSameShapedSystem: a worker context only
// works with the system that created it, even when another system has the
// same number of sources and would otherwise hit its cached spectra.
func TestSourceSystem_RejectsContextOfSameShapedSystem(t *testing.T) {
	newSystem := func(temperature float64) *SourceSystem {
		particles := []Particle{{Luminosity: 1, Temperature: temperature}}
		sys, err := NewSourceSystem(DefaultConfig(), []Source{NewParticleSource("p", particles, 1)})
		require.NoError(t, err)
		sys.PrepareForLaunch(context.Background(), 10)
		return sys
	}
	hot := newSystem(40000)
	cold := newSystem(2000)

	hotContext := hot.NewWorkerContext()
	var pp PhotonPacket
	hot.Launch(hotContext, &pp, 5)

	require.Panics(t, func() { cold.Launch(hotContext, &pp, 5) })

	var own, fresh PhotonPacket
	cold.Launch(cold.NewWorkerContext(), &own, 5)
	cold.Launch(cold.NewWorkerContext(), &fresh, 5)
	require.Equal(t, own, fresh)
}

func TestSourceSystem_LaunchFillsPacket(t *testing.T) {
	sys, err := NewSourceSystemFromConfig(mixedConfig())
	require.NoError(t, err)
	plan := sys.PrepareForLaunch(context.Background(), 1000)
	wc := sys.NewWorkerContext()
	wr := sys.WavelengthRange()

	var pp PhotonPacket
	for h := uint64(0); h < plan.NumPackets(); h++ {
		// Dirty the packet to prove every field is reinitialized
		pp = PhotonPacket{SourceIndex: 99, ComponentIndex: 99, Stokes: StokesVector{Q: 1}}
		sys.Launch(wc, &pp, h)

		s := plan.SourceFor(h)
		require.Equal(t, h, pp.HistoryIndex)
		require.Equal(t, s, pp.SourceIndex)
		require.True(t, wr.Contains(pp.Wavelength), "wavelength %g outside range", pp.Wavelength)
		require.InDelta(t, 1.0, pp.Direction.Len(), 1e-12)
		require.InDelta(t, plan.PacketLuminosity(s), pp.Luminosity, 1e-15)
		require.Equal(t, Unpolarized(), pp.Stokes)
		if s == 0 {
			require.Equal(t, -1, pp.ComponentIndex)
			require.Equal(t, Vec3{X: 1}, pp.Position)
		} else {
			require.GreaterOrEqual(t, pp.ComponentIndex, 0)
			require.Less(t, pp.ComponentIndex, 3)
		}
	}
}

// TestSourceSystem_LaunchIsOrderIndependent verifies that a packet depends
// only on the configuration and its history index: launching in reverse
// order, or from a fresh worker context, reproduces identical packets.
func TestSourceSystem_LaunchIsOrderIndependent(t *testing.T) {
	const n = 600

	launchAll := func(order []uint64) []PhotonPacket {
		sys, err := NewSourceSystemFromConfig(mixedConfig())
		require.NoError(t, err)
		sys.PrepareForLaunch(context.Background(), n)
		wc := sys.NewWorkerContext()
		packets := make([]PhotonPacket, n)
		for _, h := range order {
			sys.Launch(wc, &packets[h], h)
		}
		return packets
	}

	forward := make([]uint64, n)
	backward := make([]uint64, n)
	strided := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		forward[i] = uint64(i)
		backward[i] = uint64(n - 1 - i)
	}
	for start := 0; start < 7; start++ {
		for i := start; i < n; i += 7 {
			strided = append(strided, uint64(i))
		}
	}

	reference := launchAll(forward)
	require.Equal(t, reference, launchAll(backward))
	require.Equal(t, reference, launchAll(strided))

	// Repeated launches of the same index are idempotent
	sys, err := NewSourceSystemFromConfig(mixedConfig())
	require.NoError(t, err)
	sys.PrepareForLaunch(context.Background(), n)
	wc := sys.NewWorkerContext()
	var a, b PhotonPacket
	sys.Launch(wc, &a, 123)
	sys.Launch(wc, &b, 123)
	require.Equal(t, a, b)
	require.Equal(t, reference[123], a)
}

func TestSourceSystem_DifferentSeedsDiffer(t *testing.T) {
	config := mixedConfig()
	sysA, err := NewSourceSystemFromConfig(config)
	require.NoError(t, err)
	config.RandomSeed++
	sysB, err := NewSourceSystemFromConfig(config)
	require.NoError(t, err)

	sysA.PrepareForLaunch(context.Background(), 10)
	sysB.PrepareForLaunch(context.Background(), 10)
	var a, b PhotonPacket
	sysA.Launch(sysA.NewWorkerContext(), &a, 3)
	sysB.Launch(sysB.NewWorkerContext(), &b, 3)
	require.Equal(t, a.SourceIndex, b.SourceIndex, "source selection does not depend on the seed")
	require.NotEqual(t, a.Direction, b.Direction)
}

func TestSourceSystem_LogEvent(t *testing.T) {
	sys := newTestSystem(t, 0.5, sourceParams{1, 1})
	var messages []string
	sys.LogEvent = func(msg string) { messages = append(messages, msg) }

	sys.PrepareForLaunch(context.Background(), 42)
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "42 packets")
}

func TestSourceSystem_RejectsBadSources(t *testing.T) {
	_, err := NewSourceSystem(DefaultConfig(), nil)
	require.Error(t, err)

	_, err = NewSourceSystem(DefaultConfig(), []Source{NewPointSource("hot", Vec3{}, -1, 5000, 1)})
	require.Error(t, err)

	_, err = NewSourceSystem(DefaultConfig(), []Source{NewPointSource("cold", Vec3{}, 1, 0, 1)})
	require.Error(t, err)

	_, err = NewSourceSystem(DefaultConfig(), []Source{NewParticleSource("empty", nil, 1)})
	require.Error(t, err)

	_, err = NewSourceSystem(DefaultConfig(), []Source{NewPointSource("a", Vec3{}, 1, 5000, 1), nil})
	require.Error(t, err)
}

// TestSourceSystem_RejectsRepeatedSourceInstance: a source owns one
// history-index range per segment, so listing it twice is refused.
func TestSourceSystem_RejectsRepeatedSourceInstance(t *testing.T) {
	ps := NewParticleSource("cluster", threeParticles(), 1)
	_, err := NewSourceSystem(DefaultConfig(), []Source{ps, NewPointSource("star", Vec3{}, 1, 5000, 1), ps})
	require.Error(t, err)
	require.Contains(t, err.Error(), "source 2 is the same instance as source 0")

	// Equal but distinct instances are fine
	_, err = NewSourceSystem(DefaultConfig(), []Source{ps, NewParticleSource("cluster", threeParticles(), 1)})
	require.NoError(t, err)
}

func TestSystemConfig_Validate(t *testing.T) {
	require.NoError(t, func() error { c := DefaultConfig(); return c.Validate() }())
	require.NoError(t, func() error { c := mixedConfig(); return c.Validate() }())

	cases := []struct {
		name   string
		modify func(c *SystemConfig)
	}{
		{"min wavelength below 1 A", func(c *SystemConfig) { c.MinWavelength = 1e-11 }},
		{"max wavelength above 1 m", func(c *SystemConfig) { c.MaxWavelength = 2 }},
		{"min not below max", func(c *SystemConfig) { c.MinWavelength = c.MaxWavelength }},
		{"negative bias", func(c *SystemConfig) { c.SourceBias = -0.1 }},
		{"bias above one", func(c *SystemConfig) { c.SourceBias = 1.01 }},
		{"zero multiplier", func(c *SystemConfig) { c.NumPacketsMultiplier = 0 }},
		{"multiplier above 1000", func(c *SystemConfig) { c.NumPacketsMultiplier = 1000.5 }},
		{"negative workers", func(c *SystemConfig) { c.Workers = -1 }},
		{"no sources", func(c *SystemConfig) { c.Sources = nil }},
		{"negative weight", func(c *SystemConfig) { c.Sources[0].EmissionWeight = -1 }},
		{"negative luminosity", func(c *SystemConfig) { c.Sources[0].Luminosity = -1 }},
		{"zero temperature", func(c *SystemConfig) { c.Sources[0].Temperature = 0 }},
		{"empty particle source", func(c *SystemConfig) { c.Sources[1].Particles = nil }},
		{"negative smoothing", func(c *SystemConfig) { c.Sources[1].Particles[0].SmoothingLength = -1 }},
		{"NaN min wavelength", func(c *SystemConfig) { c.MinWavelength = math.NaN() }},
		{"NaN max wavelength", func(c *SystemConfig) { c.MaxWavelength = math.NaN() }},
		{"NaN bias", func(c *SystemConfig) { c.SourceBias = math.NaN() }},
		{"NaN multiplier", func(c *SystemConfig) { c.NumPacketsMultiplier = math.NaN() }},
		{"NaN weight", func(c *SystemConfig) { c.Sources[0].EmissionWeight = math.NaN() }},
		{"NaN temperature", func(c *SystemConfig) { c.Sources[0].Temperature = math.NaN() }},
		{"NaN particle luminosity", func(c *SystemConfig) { c.Sources[1].Particles[2].Luminosity = math.NaN() }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := mixedConfig()
			tc.modify(&c)
			err := c.Validate()
			require.Error(t, err)
			require.IsType(t, LaunchError{}, err)

			_, err = NewSourceSystemFromConfig(c)
			require.Error(t, err)
		})
	}

	// Boundary values are accepted
	c := mixedConfig()
	c.SourceBias = 1
	c.NumPacketsMultiplier = 1000
	c.MinWavelength = MinAllowedWavelength
	c.MaxWavelength = MaxAllowedWavelength
	require.NoError(t, c.Validate())
}

func TestSystemConfig_JSON(t *testing.T) {
	data := []byte(`{
		"minWavelength": 1e-7,
		"maxWavelength": 1e-5,
		"sourceBias": 0.25,
		"numPacketsMultiplier": 2,
		"sources": [
			{"kind": "point", "name": "a", "luminosity": 1, "temperature": 4000},
			{"kind": "particles", "emissionWeight": 3,
			 "particles": [{"luminosity": 2, "temperature": 8000}]}
		]
	}`)

	var config SystemConfig
	require.NoError(t, json.Unmarshal(data, &config))
	require.NoError(t, config.Validate())
	require.Equal(t, SourceKindPoint, config.Sources[0].Kind)
	require.Equal(t, 1.0, config.Sources[0].EmissionWeight, "emission weight defaults to 1")
	require.Equal(t, SourceKindParticles, config.Sources[1].Kind)
	require.Equal(t, 3.0, config.Sources[1].EmissionWeight)

	err := json.Unmarshal([]byte(`{"sources": [{"kind": "galaxy"}]}`), &config)
	require.Error(t, err)
}
