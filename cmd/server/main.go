package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/miretskiy/photonlaunch/launcher"
	"github.com/miretskiy/photonlaunch/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		return true
	},
}

// Client message types: configure | plan | run | stop | reset
type ClientMessage struct {
	Type     string                 `json:"type"`
	Config   *launcher.SystemConfig `json:"config,omitempty"`
	Packets  uint64                 `json:"packets,omitempty"`  // Requested packets per segment
	Segments int                    `json:"segments,omitempty"` // Segments per run (default 1)
}

// Server message types: status | plan | result | metrics | done | error
type ServerMessage struct {
	Type    string                  `json:"type"`
	Running *bool                   `json:"running,omitempty"`
	Config  *launcher.SystemConfig  `json:"config,omitempty"`
	Plan    *planView               `json:"plan,omitempty"`
	Result  *launcher.SegmentResult `json:"result,omitempty"`
	Metrics *launcher.Metrics       `json:"metrics,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

type sourceView struct {
	Name               string  `json:"name"`
	Dimension          int     `json:"dimension"`
	Luminosity         float64 `json:"luminosity"`
	RelativeLuminosity float64 `json:"relativeLuminosity"`
	RelativeWeight     float64 `json:"relativeWeight"`
	Start              uint64  `json:"start"`
	Packets            uint64  `json:"packets"`
	PacketLuminosity   float64 `json:"packetLuminosity"`
}

// planView is the client-facing rendition of a launch plan
type planView struct {
	Generation          uint64       `json:"generation"`
	NumPackets          uint64       `json:"numPackets"`
	Boundaries          []uint64     `json:"boundaries"`
	AvgPacketLuminosity float64      `json:"avgPacketLuminosity"`
	Sources             []sourceView `json:"sources"`
}

func newPlanView(sys *launcher.SourceSystem, plan *launcher.LaunchPlan) *planView {
	view := &planView{
		Generation:          plan.Generation(),
		NumPackets:          plan.NumPackets(),
		Boundaries:          plan.Boundaries(),
		AvgPacketLuminosity: plan.AveragePacketLuminosity(),
		Sources:             make([]sourceView, sys.NumSources()),
	}
	for i, src := range sys.Sources() {
		start, count := plan.Range(i)
		view.Sources[i] = sourceView{
			Name:               sys.SourceName(i),
			Dimension:          src.Dimension(),
			Luminosity:         src.Luminosity(),
			RelativeLuminosity: sys.RelativeLuminosity(i),
			RelativeWeight:     sys.RelativeWeight(i),
			Start:              start,
			Packets:            count,
			PacketLuminosity:   plan.PacketLuminosity(i),
		}
	}
	return view
}

// launchState manages one client's source system and its running emission
type launchState struct {
	mu      sync.Mutex
	config  launcher.SystemConfig
	sys     *launcher.SourceSystem
	metrics *launcher.Metrics
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func newLaunchState(config launcher.SystemConfig) (*launchState, error) {
	sys, err := launcher.NewSourceSystemFromConfig(config)
	if err != nil {
		return nil, err
	}
	return &launchState{
		config:  config,
		sys:     sys,
		metrics: launcher.NewMetrics(),
	}, nil
}

// configure replaces the source system; rejected while a run is in flight
func (s *launchState) configure(config launcher.SystemConfig) (*launcher.SourceSystem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, fmt.Errorf("cannot reconfigure while running")
	}
	sys, err := launcher.NewSourceSystemFromConfig(config)
	if err != nil {
		return nil, err
	}
	sys.LogEvent = s.sys.LogEvent
	s.config = config
	s.sys = sys
	s.metrics.Reset()
	return sys, nil
}

// preview prepares a plan without launching; rejected while a run is in flight
func (s *launchState) preview(ctx context.Context, packets uint64) (*planView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, fmt.Errorf("cannot prepare a plan while running")
	}
	plan := s.sys.PrepareForLaunch(ctx, s.sys.NumPackets(packets))
	return newPlanView(s.sys, plan), nil
}

// begin marks the state running and returns the system to launch from
func (s *launchState) begin(parent context.Context) (context.Context, *launcher.SourceSystem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, nil, fmt.Errorf("already running")
	}
	ctx, cancel := context.WithCancel(parent)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	return ctx, s.sys, nil
}

func (s *launchState) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel()
	s.running = false
	close(s.done)
}

// stop cancels a running emission and waits for its workers to drain
func (s *launchState) stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	done := s.done
	s.mu.Unlock()
	<-done
}

func (s *launchState) record(result *launcher.SegmentResult) *launcher.Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Update(result)
	snapshot := *s.metrics
	snapshot.PerSource = append([]launcher.SourceMetrics(nil), s.metrics.PerSource...)
	return &snapshot
}

func (s *launchState) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Reset()
}

func (s *launchState) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *launchState) getConfig() launcher.SystemConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// safeConn wraps a WebSocket connection with a mutex to prevent concurrent writes
type safeConn struct {
	*websocket.Conn
	writeMu sync.Mutex
}

func (sc *safeConn) WriteJSON(v interface{}) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	return sc.Conn.WriteJSON(v)
}

type server struct {
	prom *promMetrics
}

func (srv *server) sendStatus(conn *safeConn, state *launchState) {
	running := state.isRunning()
	cfg := state.getConfig()
	if err := conn.WriteJSON(ServerMessage{Type: "status", Running: &running, Config: &cfg}); err != nil {
		log.Printf("Error sending status: %v", err)
	}
}

func (srv *server) sendError(conn *safeConn, err error) {
	log.Printf("Request failed: %v", err)
	if werr := conn.WriteJSON(ServerMessage{Type: "error", Error: err.Error()}); werr != nil {
		log.Printf("Error sending error: %v", werr)
	}
}

// runLoop launches the requested segments, streaming each result and the
// cumulative metrics to the client. It runs in its own goroutine.
func (srv *server) runLoop(ctx context.Context, conn *safeConn, state *launchState, sys *launcher.SourceSystem, packets uint64, segments int) {
	defer func() {
		state.finish()
		srv.sendStatus(conn, state)
	}()

	n := sys.NumPackets(packets)
	for i := 0; i < segments; i++ {
		result, err := launcher.RunSegment(ctx, sys, n, launcher.SegmentOptions{})
		if err != nil {
			log.Printf("Run stopped after %d segments: %v", i, err)
			srv.sendError(conn, err)
			return
		}
		metrics := state.record(result)
		srv.prom.observe(result, metrics)

		if err := conn.WriteJSON(ServerMessage{Type: "result", Result: result}); err != nil {
			log.Printf("Error sending result: %v", err)
			return
		}
		if err := conn.WriteJSON(ServerMessage{Type: "metrics", Metrics: metrics}); err != nil {
			log.Printf("Error sending metrics: %v", err)
			return
		}
	}
	if err := conn.WriteJSON(ServerMessage{Type: "done"}); err != nil {
		log.Printf("Error sending done: %v", err)
	}
}

func (srv *server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading connection: %v", err)
		return
	}
	defer conn.Close()

	// Wrap connection with mutex for safe concurrent writes
	safeConn := &safeConn{Conn: conn}

	log.Println("Client connected")

	// Create source system with default config
	state, err := newLaunchState(launcher.DefaultConfig())
	if err != nil {
		log.Printf("Error creating source system: %v", err)
		return
	}
	state.sys.LogEvent = func(msg string) {
		log.Printf("[LAUNCH] %s", msg)
	}
	srv.prom.configured(state.sys)

	srv.sendStatus(safeConn, state)

	// Handle messages from client
	for {
		var msg ClientMessage
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Error reading message: %v", err)
			}
			break
		}

		log.Printf("Received command: %s", msg.Type)

		switch msg.Type {
		case "configure":
			if msg.Config == nil {
				srv.sendError(safeConn, fmt.Errorf("configure requires a config"))
				continue
			}
			sys, err := state.configure(*msg.Config)
			if err != nil {
				srv.sendError(safeConn, err)
				continue
			}
			srv.prom.configured(sys)
			log.Printf("Config updated: %d sources, L = %.6g W", sys.NumSources(), sys.Luminosity())
			srv.sendStatus(safeConn, state)

		case "plan":
			view, err := state.preview(r.Context(), msg.Packets)
			if err != nil {
				srv.sendError(safeConn, err)
				continue
			}
			safeConn.WriteJSON(ServerMessage{Type: "plan", Plan: view})

		case "run":
			segments := msg.Segments
			if segments <= 0 {
				segments = 1
			}
			ctx, sys, err := state.begin(context.Background())
			if err != nil {
				srv.sendError(safeConn, err)
				continue
			}
			log.Printf("Run started: %d segments of %d requested packets", segments, msg.Packets)
			srv.sendStatus(safeConn, state)
			go srv.runLoop(ctx, safeConn, state, sys, msg.Packets, segments)

		case "stop":
			state.stop()
			log.Println("Run stopped")

		case "reset":
			state.stop()
			state.reset()
			log.Println("Metrics reset")
			srv.sendStatus(safeConn, state)

		default:
			srv.sendError(safeConn, fmt.Errorf("unknown message type %q", msg.Type))
		}
	}

	// Clean up
	state.stop()
	log.Println("Client disconnected")
}

func (srv *server) routes(gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.handleWebSocket)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/quitquitquit", quitHandler)
	return mux
}

func quitHandler(w http.ResponseWriter, r *http.Request) {
	log.Println("Shutdown requested via /quitquitquit")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Server shutting down...")

	go func() {
		time.Sleep(100 * time.Millisecond)
		log.Println("Server stopped")
		os.Exit(0)
	}()
}

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	traceEnabled := flag.Bool("trace", false, "Export OpenTelemetry spans (see PHOTONLAUNCH_TRACING_* for exporter settings)")
	flag.Parse()

	tracingConfig := observability.TracingConfigFromEnv()
	tracingConfig.Enabled = tracingConfig.Enabled || *traceEnabled
	shutdown, err := observability.InitTracing(context.Background(), tracingConfig, log.Printf)
	if err != nil {
		log.Fatalf("Error initializing tracing: %v", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log.Printf)

	srv := &server{prom: newPromMetrics()}
	srv.prom.register(prometheus.DefaultRegisterer)

	log.Printf("Server starting on http://localhost%s", *addr)
	log.Printf("WebSocket endpoint: ws://localhost%s/ws", *addr)
	log.Printf("Metrics endpoint: http://localhost%s/metrics", *addr)
	log.Printf("Shutdown endpoint: http://localhost%s/quitquitquit", *addr)
	log.Fatal(http.ListenAndServe(*addr, srv.routes(prometheus.DefaultGatherer)))
}
