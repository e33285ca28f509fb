package gateway

import (
	"log/slog"
	"runtime"
	"time"
)

// DefaultSampleInterval is how often the sampler reads process stats and
// directory sizes into the metrics registry.
const DefaultSampleInterval = 5 * time.Second

// Sampler periodically writes process-level stats and the live directory
// counts as gauges. It is the only component with a background timer, and
// it stops cleanly so tests never leak tickers.
type Sampler struct {
	hub      *Hub
	metrics  *Metrics
	interval time.Duration
	logger   *slog.Logger
	start    time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewSampler(hub *Hub, metrics *Metrics, interval time.Duration, logger *slog.Logger) *Sampler {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		hub:      hub,
		metrics:  metrics,
		interval: interval,
		logger:   logger,
		start:    time.Now(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (s *Sampler) Run() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sample()
		case <-s.stopCh:
			return
		}
	}
}

// Sample takes one reading. Exposed so tests can sample deterministically
// instead of waiting on the ticker.
func (s *Sampler) Sample() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	s.metrics.HeapAllocBytes.Set(float64(mem.HeapAlloc))
	s.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))
	s.metrics.UptimeSeconds.Set(time.Since(s.start).Seconds())

	counts := s.hub.Counts()
	s.metrics.ConnectedClients.Set(float64(counts.Connections))
	s.metrics.ActiveRooms.Set(float64(counts.Rooms))
}

// Stop signals the Run loop to exit.
func (s *Sampler) Stop() {
	close(s.stopCh)
}

// Wait blocks until the Run loop has completely finished.
func (s *Sampler) Wait() {
	<-s.doneCh
}
