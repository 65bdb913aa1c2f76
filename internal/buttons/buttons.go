// Package buttons latches asynchronous button presses for the wake cycle.
//
// Press may be called from any goroutine, the software equivalent of an
// edge-triggered interrupt. It only sets flags; the cycle drains them once
// per wake and acts on them itself.
package buttons

import (
	"sync/atomic"
)

// Button identifies one of the hardware buttons.
type Button int

const (
	// Button1 wakes the device for a configuration session.
	Button1 Button = iota + 1
	Button2
	// Button3 toggles pressure correction.
	Button3

	count = 3
)

// Latch holds one pending flag and a press counter per button.
type Latch struct {
	pending [count]atomic.Bool
	presses [count]atomic.Uint32
	wake    chan struct{}
}

func NewLatch() *Latch {
	return &Latch{wake: make(chan struct{}, 1)}
}

// Press records a press of b. It reports false if the button was already
// pending, which debounces repeated edges until the next drain. A press of
// Button1 also signals Wake.
func (l *Latch) Press(b Button) bool {
	i := int(b) - 1
	if i < 0 || i >= count {
		return false
	}
	if !l.pending[i].CompareAndSwap(false, true) {
		return false
	}
	l.presses[i].Add(1)

	if b == Button1 {
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
	return true
}

// Wake receives once for every accepted Button1 press not yet consumed.
func (l *Latch) Wake() <-chan struct{} {
	return l.wake
}

// Pending is a snapshot of the drained flags.
type Pending struct {
	Button1 bool
	Button2 bool
	Button3 bool
}

// Any reports whether any button was pending.
func (p Pending) Any() bool {
	return p.Button1 || p.Button2 || p.Button3
}

// Drain returns and clears the pending flags.
func (l *Latch) Drain() Pending {
	return Pending{
		Button1: l.pending[0].Swap(false),
		Button2: l.pending[1].Swap(false),
		Button3: l.pending[2].Swap(false),
	}
}

// Presses is the number of accepted presses of b since the latch was made.
func (l *Latch) Presses(b Button) uint32 {
	i := int(b) - 1
	if i < 0 || i >= count {
		return 0
	}
	return l.presses[i].Load()
}
