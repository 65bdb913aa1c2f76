package control

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/chrissnell/barograph/internal/core"
	"github.com/chrissnell/barograph/internal/metrics"
	"github.com/chrissnell/barograph/internal/rescale"
)

// Handler applies validated commands to a state.
type Handler struct {
	logger  *zap.SugaredLogger
	metrics metrics.Provider
}

func NewHandler(logger *zap.SugaredLogger, m metrics.Provider) *Handler {
	if m == nil {
		m = metrics.New(false, nil)
	}
	return &Handler{logger: logger, metrics: m}
}

// Apply applies c to st. It reports whether c ends the configuration
// session. Every accepted command other than exit sets
// PreferencesChanged; a rejected command leaves st untouched.
func (h *Handler) Apply(st *core.State, c Command) (bool, error) {
	if err := c.Validate(); err != nil {
		h.reject(c, err)
		return false, err
	}

	switch c.Op {
	case OpExit:
		h.logger.Info("configuration session ended")
		return true, nil
	case OpInvert:
		st.Prefs.InversionEnabled = !st.Prefs.InversionEnabled
	case OpSetPressureCorrection:
		st.Prefs.PressureCorrectionEnabled = c.Enabled
	case OpSetPressureCorrectionValue:
		st.Prefs.PressureCorrectionValue = c.Value
	case OpSetTimeRange:
		st.SetTimeRange(c.Hours)
	case OpSetGraphicsMode:
		st.Prefs.GraphicsMode = c.Mode
	case OpRescale:
		if err := rescale.CheckTransition(st.Timeline, c.Transform); err != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidCommand, err)
			h.reject(c, err)
			return false, err
		}
		from := st.Timeline.Interval()
		rescale.Apply(st, c.Transform)
		h.metrics.IncRescales(c.Transform.String())
		h.logger.Infof("rescaled timeline %s: interval %d s -> %d s", c.Transform, from, st.Timeline.Interval())
	}

	st.PreferencesChanged = true
	h.logger.Infof("applied command %s", c)
	return false, nil
}

func (h *Handler) reject(c Command, err error) {
	h.metrics.IncRejectedCommands()
	h.logger.Warnf("rejected command %s: %v", c, err)
}

// Session summarizes one configuration session.
type Session struct {
	Applied  int
	Rejected []error
	Exited   bool
}

// Queue buffers commands submitted at any time and applies them when the
// cycle opens a configuration session.
type Queue struct {
	mu      sync.Mutex
	pending []Command
	handler *Handler
}

func NewQueue(h *Handler) *Queue {
	return &Queue{handler: h}
}

// Submit validates and enqueues commands. Invalid commands are rejected
// immediately and nothing is enqueued.
func (q *Queue) Submit(cmds ...Command) error {
	for _, c := range cmds {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	q.mu.Lock()
	q.pending = append(q.pending, cmds...)
	q.mu.Unlock()
	return nil
}

// Pending is the number of queued commands.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Configure applies queued commands in order until the queue is empty, an
// exit command is reached or ctx is done. Commands after an exit stay
// queued for the next session.
func (q *Queue) Configure(ctx context.Context, st *core.State) Session {
	var s Session
	for {
		if ctx.Err() != nil {
			return s
		}

		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return s
		}
		c := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		done, err := q.handler.Apply(st, c)
		if err != nil {
			s.Rejected = append(s.Rejected, err)
		} else if !done {
			s.Applied++
		}
		if done {
			s.Exited = true
			return s
		}
	}
}
