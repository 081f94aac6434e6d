package transport

import (
	"time"

	"github.com/sensiasoft/atomix/pkg/transport/metrics"
)

// runSweeper periodically fails every pending request, on every channel
// this service knows about, that has outlived its deadline. It exits when
// stopCh is closed.
func (s *Service) runSweeper(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.pool.Sweep()
			s.sweepInbound()
			s.updatePendingGauge()
		case <-stopCh:
			return
		}
	}
}

// sweepInbound runs the callback sweep for channels accepted by this
// service's listeners (as opposed to pool.Sweep, which covers connections
// this service dialed out).
func (s *Service) sweepInbound() {
	for _, ch := range s.channels.snapshot() {
		for _, e := range ch.Sweep() {
			metrics.RequestsTimedOut.WithLabelValues(e.Subject).Inc()
		}
	}
}

// updatePendingGauge recomputes PendingCallbacks from the current set of
// pool and inbound channels. Called once per sweep tick rather than on
// every Register/Complete, since it's a point-in-time snapshot rather
// than a value worth the lock contention of tracking incrementally.
func (s *Service) updatePendingGauge() {
	total := s.pool.PendingCount()
	for _, ch := range s.channels.snapshot() {
		total += ch.Len()
	}
	metrics.PendingCallbacks.Set(float64(total))
}
