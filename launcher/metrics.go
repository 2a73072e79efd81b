package launcher

// SourceMetrics tracks cumulative launches of a single source
type SourceMetrics struct {
	Name       string  `json:"name"`
	Packets    uint64  `json:"packets"`    // Packets launched over all segments
	Luminosity float64 `json:"luminosity"` // Summed packet luminosity over all segments (W)
}

// Metrics tracks launch statistics across emission segments
type Metrics struct {
	Segments        int             `json:"segments"`        // Completed emission segments
	TotalPackets    uint64          `json:"totalPackets"`    // Packets launched over all segments
	TotalLuminosity float64         `json:"totalLuminosity"` // Summed packet luminosity over all segments (W)
	PerSource       []SourceMetrics `json:"perSource"`

	// Worker cache effectiveness (particle spectra reused vs rebuilt)
	CacheHits     uint64  `json:"cacheHits"`
	CacheMisses   uint64  `json:"cacheMisses"`
	CacheHitRatio float64 `json:"cacheHitRatio"`

	// Last segment
	LastSegmentPackets       uint64  `json:"lastSegmentPackets"`
	LastSegmentDurationSec   float64 `json:"lastSegmentDurationSec"`
	LastSegmentPacketsPerSec float64 `json:"lastSegmentPacketsPerSec"`
}

// NewMetrics creates an empty metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{
		PerSource: make([]SourceMetrics, 0),
	}
}

// Update folds a completed segment into the cumulative metrics
func (m *Metrics) Update(r *SegmentResult) {
	if r == nil {
		return
	}
	m.Segments++
	m.TotalPackets += r.NumPackets
	m.TotalLuminosity += r.LaunchedLuminosity

	for len(m.PerSource) < len(r.Sources) {
		m.PerSource = append(m.PerSource, SourceMetrics{})
	}
	for s, st := range r.Sources {
		m.PerSource[s].Name = st.Name
		m.PerSource[s].Packets += st.Packets
		m.PerSource[s].Luminosity += st.Luminosity
	}

	m.CacheHits += r.CacheHits
	m.CacheMisses += r.CacheMisses
	if lookups := m.CacheHits + m.CacheMisses; lookups > 0 {
		m.CacheHitRatio = float64(m.CacheHits) / float64(lookups)
	}

	m.LastSegmentPackets = r.NumPackets
	m.LastSegmentDurationSec = r.DurationSec
	m.LastSegmentPacketsPerSec = 0
	if r.DurationSec > 0 {
		m.LastSegmentPacketsPerSec = float64(r.NumPackets) / r.DurationSec
	}
}

// Reset clears all accumulated metrics
func (m *Metrics) Reset() {
	*m = *NewMetrics()
}
