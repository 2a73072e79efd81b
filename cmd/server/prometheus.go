package main

import (
	"github.com/miretskiy/photonlaunch/launcher"
	"github.com/prometheus/client_golang/prometheus"
)

// promMetrics exports launch statistics
type promMetrics struct {
	packets         *prometheus.CounterVec
	luminosity      *prometheus.CounterVec
	segments        prometheus.Counter
	segmentDuration prometheus.Histogram
	packetRate      prometheus.Gauge
	cacheHitRatio   prometheus.Gauge
	totalLuminosity prometheus.Gauge
}

func newPromMetrics() *promMetrics {
	return &promMetrics{
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photonlaunch_packets_launched_total",
			Help: "Photon packets launched, by source",
		}, []string{"source"}),
		luminosity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photonlaunch_luminosity_launched_watts_total",
			Help: "Summed packet luminosity launched, by source (W)",
		}, []string{"source"}),
		segments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photonlaunch_segments_total",
			Help: "Completed emission segments",
		}),
		segmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "photonlaunch_segment_duration_seconds",
			Help:    "Wall-clock duration of emission segments",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		packetRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "photonlaunch_last_segment_packets_per_second",
			Help: "Launch rate of the last segment",
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "photonlaunch_cache_hit_ratio",
			Help: "Fraction of particle spectrum lookups served from worker caches",
		}),
		totalLuminosity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "photonlaunch_source_system_luminosity_watts",
			Help: "Total bolometric luminosity of the configured source system (W)",
		}),
	}
}

func (m *promMetrics) register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.packets,
		m.luminosity,
		m.segments,
		m.segmentDuration,
		m.packetRate,
		m.cacheHitRatio,
		m.totalLuminosity,
	)
}

func (m *promMetrics) configured(sys *launcher.SourceSystem) {
	m.totalLuminosity.Set(sys.Luminosity())
}

func (m *promMetrics) observe(result *launcher.SegmentResult, metrics *launcher.Metrics) {
	for _, st := range result.Sources {
		m.packets.WithLabelValues(st.Name).Add(float64(st.Packets))
		m.luminosity.WithLabelValues(st.Name).Add(st.Luminosity)
	}
	m.segments.Inc()
	m.segmentDuration.Observe(result.DurationSec)
	m.packetRate.Set(metrics.LastSegmentPacketsPerSec)
	m.cacheHitRatio.Set(metrics.CacheHitRatio)
}
