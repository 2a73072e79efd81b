package launcher

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// chunksPerWorker controls how finely [0, N) is split when no chunk size is
// configured; more chunks balance better, fewer chunks keep longer
// consecutive runs per particle cache.
const chunksPerWorker = 16

// SegmentOptions controls how an emission segment is executed
type SegmentOptions struct {
	Workers   int // Launching goroutines (0 = config value, then runtime.NumCPU())
	ChunkSize int // Consecutive history indices per work item (0 = config value, then auto)

	// OnPacket, when set, is called for every launched packet. It runs on
	// the launching goroutine, so it is called concurrently for different
	// workers and must not retain pp.
	OnPacket func(worker int, pp *PhotonPacket)
}

// SourceTally summarizes the packets launched by one source in a segment
type SourceTally struct {
	Name           string  `json:"name"`
	Start          uint64  `json:"start"`          // First history index
	Packets        uint64  `json:"packets"`        // Packets launched
	Luminosity     float64 `json:"luminosity"`     // Sum of packet luminosities (W)
	MeanWavelength float64 `json:"meanWavelength"` // Mean launched wavelength (m)

	wavelengthSum float64
}

// SegmentResult describes a completed emission segment
type SegmentResult struct {
	Generation          uint64        `json:"generation"`
	NumPackets          uint64        `json:"numPackets"`
	Boundaries          []uint64      `json:"boundaries"`
	AvgPacketLuminosity float64       `json:"avgPacketLuminosity"`
	LaunchedLuminosity  float64       `json:"launchedLuminosity"`
	Sources             []SourceTally `json:"sources"`
	Workers             int           `json:"workers"`
	ChunkSize           int           `json:"chunkSize"`
	CacheHits           uint64        `json:"cacheHits"`
	CacheMisses         uint64        `json:"cacheMisses"`
	DurationSec         float64       `json:"durationSec"`
}

type indexRange struct {
	start, end uint64
}

// workerTally accumulates per-worker results; merged after the join
type workerTally struct {
	sources []SourceTally
	hits    uint64
	misses  uint64
}

func (t *workerTally) add(pp *PhotonPacket) {
	st := &t.sources[pp.SourceIndex]
	st.Packets++
	st.Luminosity += pp.Luminosity
	st.wavelengthSum += pp.Wavelength
}

func resolveChunkSize(chunkSize int, numPackets uint64, workers int) uint64 {
	if chunkSize > 0 {
		return uint64(chunkSize)
	}
	chunk := numPackets / uint64(workers*chunksPerWorker)
	if chunk < 1 {
		chunk = 1
	}
	return chunk
}

// RunSegment prepares the source system for numPackets launches and launches
// every history index in [0, numPackets) on a pool of workers. Each worker
// takes contiguous chunks of indices and owns its WorkerContext. RunSegment
// returns only after all workers have stopped, so the next segment may
// safely call PrepareForLaunch again.
//
// Cancelling ctx stops handing out chunks; in-flight chunks are finished and
// ctx.Err() is returned.
func RunSegment(ctx context.Context, sys *SourceSystem, numPackets uint64, opts SegmentOptions) (*SegmentResult, error) {
	ctx, span := tracer.Start(ctx, "RunSegment")
	defer span.End()
	startTime := time.Now()

	workers := opts.Workers
	if workers <= 0 {
		workers = sys.config.Workers
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = sys.config.ChunkSize
	}
	chunk := resolveChunkSize(chunkSize, numPackets, workers)

	plan := sys.PrepareForLaunch(ctx, numPackets)
	numSources := sys.NumSources()

	chunks := make(chan indexRange)
	tallies := make([]workerTally, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		wid := w
		go func() {
			defer wg.Done()
			wc := sys.NewWorkerContext()
			tally := workerTally{sources: make([]SourceTally, numSources)}
			var pp PhotonPacket
			for r := range chunks {
				for h := r.start; h < r.end; h++ {
					sys.Launch(wc, &pp, h)
					tally.add(&pp)
					if opts.OnPacket != nil {
						opts.OnPacket(wid, &pp)
					}
				}
			}
			tally.hits = wc.CacheHits()
			tally.misses = wc.CacheMisses()
			tallies[wid] = tally
		}()
	}

	var err error
feed:
	for start := uint64(0); start < numPackets; start += chunk {
		if err = ctx.Err(); err != nil {
			break
		}
		end := min(start+chunk, numPackets)
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case chunks <- indexRange{start: start, end: end}:
		}
	}
	close(chunks)
	wg.Wait()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "segment cancelled")
		sys.logf("Segment #%d cancelled: %v", plan.Generation(), err)
		return nil, err
	}

	result := &SegmentResult{
		Generation:          plan.Generation(),
		NumPackets:          plan.NumPackets(),
		Boundaries:          plan.Boundaries(),
		AvgPacketLuminosity: plan.AveragePacketLuminosity(),
		Sources:             make([]SourceTally, numSources),
		Workers:             workers,
		ChunkSize:           int(chunk),
	}
	for s := range result.Sources {
		start, _ := plan.Range(s)
		result.Sources[s].Name = sys.SourceName(s)
		result.Sources[s].Start = start
	}
	for _, t := range tallies {
		for s, st := range t.sources {
			result.Sources[s].Packets += st.Packets
			result.Sources[s].Luminosity += st.Luminosity
			result.Sources[s].wavelengthSum += st.wavelengthSum
		}
		result.CacheHits += t.hits
		result.CacheMisses += t.misses
	}
	for s := range result.Sources {
		st := &result.Sources[s]
		if st.Packets > 0 {
			st.MeanWavelength = st.wavelengthSum / float64(st.Packets)
		}
		result.LaunchedLuminosity += st.Luminosity
	}
	result.DurationSec = time.Since(startTime).Seconds()

	span.SetAttributes(
		attribute.Int64("launch.num_packets", int64(result.NumPackets)),
		attribute.Int("launch.workers", workers),
		attribute.Float64("launch.launched_luminosity", result.LaunchedLuminosity),
	)
	sys.logf("Segment #%d launched %d packets on %d workers in %.3fs", result.Generation, result.NumPackets, workers, result.DurationSec)
	return result, nil
}
