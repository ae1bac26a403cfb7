package render

import (
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/slideshow/internal/job"
)

// Event is one progress step of a render.
type Event struct {
	JobID   string
	Status  job.Status
	Percent int
	Message string
	Time    time.Time
}

// Observer receives progress events. OnProgress is called from the render
// worker and must not block for long.
type Observer interface {
	OnProgress(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnProgress implements Observer.
func (f ObserverFunc) OnProgress(e Event) {
	f(e)
}

// Observers fans events out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	list := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			list = append(list, o)
		}
	}
	return ObserverFunc(func(e Event) {
		for _, o := range list {
			o.OnProgress(e)
		}
	})
}

// ChannelObserver delivers events on a bounded channel. When the channel is
// full the oldest pending event is dropped, so a slow reader only ever misses
// stale progress and never stalls the worker.
type ChannelObserver struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewChannelObserver creates a ChannelObserver buffering up to size events.
func NewChannelObserver(size int) *ChannelObserver {
	if size < 1 {
		size = 1
	}
	return &ChannelObserver{ch: make(chan Event, size)}
}

// Events returns the receive side. It is closed by Close.
func (c *ChannelObserver) Events() <-chan Event {
	return c.ch
}

// OnProgress implements Observer.
func (c *ChannelObserver) OnProgress(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for {
		select {
		case c.ch <- e:
			return
		default:
		}
		select {
		case <-c.ch:
		default:
		}
	}
}

// Close closes the channel. Later events are discarded.
func (c *ChannelObserver) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

// NewLogObserver returns an Observer that logs every event at INFO.
func NewLogObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return ObserverFunc(func(e Event) {
		logger.Info("render progress",
			slog.String("job_id", e.JobID),
			slog.String("status", string(e.Status)),
			slog.Int("percent", e.Percent),
			slog.String("message", e.Message),
		)
	})
}

// Verify interface implementation at compile time.
var (
	_ Observer = ObserverFunc(nil)
	_ Observer = (*ChannelObserver)(nil)
)
