package socketio

import (
	"sync"
	"time"
)

// Frame kinds understood by FrameCoalescer.
const (
	FrameState    = "state"
	FramePosition = "position"
	FrameQueue    = "queue"
)

// FrameCoalescer collapses bursts of controller events into at most one
// broadcast of each kind per frame. Unlike a debouncer it never postpones a
// pending frame, so steady position updates still go out once per interval.
type FrameCoalescer struct {
	interval         time.Duration
	stateCallback    func()
	positionCallback func()
	queueCallback    func()

	mu              sync.Mutex
	pendingState    bool
	pendingPosition bool
	pendingQueue    bool
	timer           *time.Timer
	stopped         bool
}

// NewFrameCoalescer creates a coalescer that flushes at most once per interval.
func NewFrameCoalescer(interval time.Duration, stateCallback, positionCallback, queueCallback func()) *FrameCoalescer {
	return &FrameCoalescer{
		interval:         interval,
		stateCallback:    stateCallback,
		positionCallback: positionCallback,
		queueCallback:    queueCallback,
	}
}

// Trigger marks a frame kind as pending and schedules a flush if none is.
func (f *FrameCoalescer) Trigger(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return
	}

	switch kind {
	case FrameState:
		f.pendingState = true
	case FramePosition:
		f.pendingPosition = true
	case FrameQueue:
		// A new queue changes queueLength and possibly the current track.
		f.pendingQueue = true
		f.pendingState = true
	default:
		return
	}

	if f.timer == nil {
		f.timer = time.AfterFunc(f.interval, f.flush)
	}
}

// flush fires callbacks for any pending flags and resets them.
func (f *FrameCoalescer) flush() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	doState := f.pendingState
	doPosition := f.pendingPosition
	doQueue := f.pendingQueue
	f.pendingState = false
	f.pendingPosition = false
	f.pendingQueue = false
	f.timer = nil
	f.mu.Unlock()

	if doQueue && f.queueCallback != nil {
		f.queueCallback()
	}
	if doState && f.stateCallback != nil {
		f.stateCallback()
	}
	if doPosition && f.positionCallback != nil {
		f.positionCallback()
	}
}

// Stop prevents any further callbacks from firing.
func (f *FrameCoalescer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopped = true
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.pendingState = false
	f.pendingPosition = false
	f.pendingQueue = false
}
