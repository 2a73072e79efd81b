package launcher

import (
	"math"
	"sort"
)

const (
	planckH    = 6.62607015e-34 // J s
	lightC     = 2.99792458e8   // m/s
	boltzmannK = 1.380649e-23   // J/K

	// SEDBins is the number of logarithmic wavelength bins in a sampled SED
	SEDBins = 256
)

// planckLambda returns the blackbody spectral radiance B_lambda(T) up to a
// constant factor.
func planckLambda(lambda, temperature float64) float64 {
	x := planckH * lightC / (lambda * boltzmannK * temperature)
	if x > 700 {
		return 0
	}
	return 1 / (math.Pow(lambda, 5) * math.Expm1(x))
}

// BlackBodySED samples wavelengths from a blackbody spectrum restricted to a
// wavelength range, by inverse transform over a tabulated cumulative
// distribution on a logarithmic grid.
type BlackBodySED struct {
	Temperature float64
	wavelengths WavelengthRange
	logLambda   []float64 // grid nodes, ln(m), len SEDBins+1
	cdf         []float64 // normalized cumulative distribution at each node
}

// NewBlackBodySED tabulates the cumulative distribution for the given
// temperature. If the spectrum underflows everywhere in the range the SED
// falls back to a log-uniform distribution.
func NewBlackBodySED(temperature float64, wavelengths WavelengthRange) *BlackBodySED {
	n := SEDBins
	lo := math.Log(wavelengths.Min)
	hi := math.Log(wavelengths.Max)

	sed := &BlackBodySED{
		Temperature: temperature,
		wavelengths: wavelengths,
		logLambda:   make([]float64, n+1),
		cdf:         make([]float64, n+1),
	}

	// Density per unit ln(lambda) is lambda * B_lambda
	prev := 0.0
	for i := 0; i <= n; i++ {
		ll := lo + (hi-lo)*float64(i)/float64(n)
		sed.logLambda[i] = ll
		lambda := math.Exp(ll)
		density := lambda * planckLambda(lambda, temperature)
		if i > 0 {
			sed.cdf[i] = sed.cdf[i-1] + 0.5*(prev+density)*(ll-sed.logLambda[i-1])
		}
		prev = density
	}

	total := sed.cdf[n]
	for i := 0; i <= n; i++ {
		if total > 0 && !math.IsInf(total, 0) {
			sed.cdf[i] /= total
		} else {
			sed.cdf[i] = float64(i) / float64(n)
		}
	}
	sed.cdf[n] = 1
	return sed
}

// Sample maps a uniform deviate u in [0,1) to a wavelength (m).
func (s *BlackBodySED) Sample(u float64) float64 {
	j := sort.SearchFloat64s(s.cdf, u)
	var lambda float64
	switch {
	case j == 0:
		lambda = s.wavelengths.Min
	case j >= len(s.cdf):
		lambda = s.wavelengths.Max
	default:
		k := j - 1
		t := (u - s.cdf[k]) / (s.cdf[j] - s.cdf[k])
		lambda = math.Exp(s.logLambda[k] + t*(s.logLambda[j]-s.logLambda[k]))
	}
	// exp(log(x)) may land one ulp outside the range
	return math.Min(math.Max(lambda, s.wavelengths.Min), s.wavelengths.Max)
}

// CDF returns the tabulated cumulative distribution (for inspection).
func (s *BlackBodySED) CDF() []float64 {
	out := make([]float64, len(s.cdf))
	copy(out, s.cdf)
	return out
}
