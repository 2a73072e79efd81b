package launcher

import (
	"math"
	"math/rand/v2"
)

// mix64 is the splitmix64 finalizer; it spreads consecutive history indices
// over the PCG state space so that neighbouring streams are uncorrelated.
func mix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// packetStream is a reseedable PCG generator. Reseeding with the same
// (seed, historyIndex) pair always reproduces the same draws.
type packetStream struct {
	pcg *rand.PCG
	rng *rand.Rand
}

func newPacketStream() packetStream {
	pcg := rand.NewPCG(0, 0)
	return packetStream{pcg: pcg, rng: rand.New(pcg)}
}

func (s packetStream) reseed(seed, historyIndex uint64) {
	s.pcg.Seed(seed, mix64(historyIndex))
}

// IsotropicDirection draws a uniformly distributed unit vector.
func IsotropicDirection(rng *rand.Rand) Vec3 {
	cosTheta := 2*rng.Float64() - 1
	sinTheta := math.Sqrt(math.Max(0, 1-cosTheta*cosTheta))
	phi := 2 * math.Pi * rng.Float64()
	return Vec3{sinTheta * math.Cos(phi), sinTheta * math.Sin(phi), cosTheta}
}

// UniformInBall draws a point uniformly distributed within a ball.
func UniformInBall(rng *rand.Rand, center Vec3, radius float64) Vec3 {
	if radius <= 0 {
		return center
	}
	r := radius * math.Cbrt(rng.Float64())
	return center.Add(IsotropicDirection(rng).Mul(r))
}
