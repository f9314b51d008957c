package session

import "time"

// DefaultFlushInterval is the period of the sync scheduler when none is
// configured.
const DefaultFlushInterval = 2000 * time.Millisecond

// Scheduler is the periodic-flush resource owned by the editing state. It
// is acquired on entering the editing session and released, after a forced
// final flush, on leaving it. Ticks() returns a nil channel while stopped,
// so a select over it simply never fires outside the editing state.
type Scheduler struct {
	interval time.Duration
	ticker   *time.Ticker
}

// NewScheduler creates a stopped scheduler with the given flush interval.
func NewScheduler(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Scheduler{interval: interval}
}

// Start begins ticking. Starting a running scheduler resets its period.
func (s *Scheduler) Start() {
	if s.ticker != nil {
		s.ticker.Reset(s.interval)
		return
	}
	s.ticker = time.NewTicker(s.interval)
}

// Stop tears the ticker down. Safe to call when already stopped.
func (s *Scheduler) Stop() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.ticker = nil
}

// Ticks returns the tick channel, or nil while the scheduler is stopped.
func (s *Scheduler) Ticks() <-chan time.Time {
	if s.ticker == nil {
		return nil
	}
	return s.ticker.C
}

// Running reports whether the scheduler is ticking.
func (s *Scheduler) Running() bool {
	return s.ticker != nil
}
