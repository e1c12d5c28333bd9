package publish

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a snapshot of publisher counters, useful for health endpoints and
// tests. The HTTP and validation drop counts are also exposed as internal
// meters on the registry so they reach the backend like any other
// measurement; the other fields exist only in this snapshot.
type Stats struct {
	Batches           int64
	Attempts          int64
	Retries           int64
	MeasurementsSent  int64
	DroppedHTTP       int64
	DroppedValidation int64
	BytesSent         int64
	LastSendTime      time.Time
	LastError         string
}

type statsTracker struct {
	batches           atomic.Int64
	attempts          atomic.Int64
	retries           atomic.Int64
	measurementsSent  atomic.Int64
	droppedHTTP       atomic.Int64
	droppedValidation atomic.Int64
	bytesSent         atomic.Int64

	mu           sync.Mutex
	lastSendTime time.Time
	lastError    string
}

func (s *statsTracker) recordSend(measurements int, bytes int64, at time.Time) {
	s.batches.Add(1)
	s.measurementsSent.Add(int64(measurements))
	s.bytesSent.Add(bytes)

	s.mu.Lock()
	s.lastSendTime = at
	s.mu.Unlock()
}

func (s *statsTracker) recordError(err error) {
	if err == nil {
		return
	}

	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}

func (s *statsTracker) snapshot() Stats {
	s.mu.Lock()
	lastSend := s.lastSendTime
	lastErr := s.lastError
	s.mu.Unlock()

	return Stats{
		Batches:           s.batches.Load(),
		Attempts:          s.attempts.Load(),
		Retries:           s.retries.Load(),
		MeasurementsSent:  s.measurementsSent.Load(),
		DroppedHTTP:       s.droppedHTTP.Load(),
		DroppedValidation: s.droppedValidation.Load(),
		BytesSent:         s.bytesSent.Load(),
		LastSendTime:      lastSend,
		LastError:         lastErr,
	}
}
