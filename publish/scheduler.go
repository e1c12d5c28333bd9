package publish

import (
	"sync/atomic"
	"time"

	"github.com/xraph/pulse/log"
	"github.com/xraph/pulse/meter"
)

// scheduler fires a task at every wall-clock step boundary. It is a single
// cooperative loop: the task runs inline, so at most one harvest is ever in
// flight. If a task overruns its step the missed ticks are skipped, never
// queued; if the wall clock jumps backward by more than one step the loop
// realigns to the new clock instead of emitting for the missed boundary.
type scheduler struct {
	clock  meter.Clock
	step   time.Duration
	log    log.Logger
	task   func(boundary int64)
	onErr  func(recovered any)
	stopCh chan struct{}
	doneCh chan struct{}

	running atomic.Bool
}

func newScheduler(clock meter.Clock, step time.Duration, logger log.Logger, task func(int64), onErr func(any)) *scheduler {
	return &scheduler{
		clock:  clock,
		step:   step,
		log:    logger.Named("scheduler"),
		task:   task,
		onErr:  onErr,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// start launches the loop. Starting a running scheduler is a no-op with a
// warning.
func (s *scheduler) start() {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("scheduler already running")

		return
	}

	go s.loop()
}

// stop signals the loop to exit after its current tick and waits for it.
func (s *scheduler) stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	close(s.stopCh)
	<-s.doneCh
}

// align returns the largest step boundary not after now.
func (s *scheduler) align(nowMs int64) int64 {
	stepMs := s.step.Milliseconds()

	return nowMs - nowMs%stepMs
}

func (s *scheduler) loop() {
	defer close(s.doneCh)

	stepMs := s.step.Milliseconds()
	next := s.align(s.clock.WallTime()) + stepMs

	for {
		delay := time.Duration(next-s.clock.WallTime()) * time.Millisecond
		if delay < 0 {
			delay = 0
		}

		timer := time.NewTimer(delay)

		select {
		case <-s.stopCh:
			timer.Stop()

			return
		case <-timer.C:
		}

		now := s.clock.WallTime()

		if now < next-stepMs {
			// Clock jumped backward more than one step: realign rather
			// than emit for a boundary the clock has not reached.
			s.log.Warn("wall clock moved backward, realigning",
				log.Int64("now", now), log.Int64("expected", next))

			next = s.align(now) + stepMs

			continue
		}

		if now < next {
			// Spurious early wakeup; wait out the remainder.
			continue
		}

		s.fire(next)

		now = s.clock.WallTime()

		next += stepMs
		if next <= now {
			// The task overran one or more steps: skip the missed ticks.
			skipped := (now - next) / stepMs
			s.log.Warn("harvest overran step, skipping ticks",
				log.Int64("skipped", skipped+1))

			next = s.align(now) + stepMs
		}
	}
}

// fire runs the task, containing panics so a failing harvest never kills the
// scheduler.
func (s *scheduler) fire(boundary int64) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("harvest task panicked", log.Any("panic", r))

			if s.onErr != nil {
				s.onErr(r)
			}
		}
	}()

	s.task(boundary)
}
