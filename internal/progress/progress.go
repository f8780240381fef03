// Package progress carries run status events from the run worker to one
// external consumer.
package progress

import (
	"context"
	"fmt"
	"sync"
)

// Event tags as seen by consumers
const (
	TagIteration = "IT"
	TagBest      = "BEST"
	TagProgress  = "PROG"
)

// Event is one of IterationUpdate, BestUpdate or ProgressUpdate
type Event interface {
	Tag() string
}

// IterationUpdate is emitted once per completed strategy iteration
type IterationUpdate struct {
	Iteration int
	Best      float64
}

func (IterationUpdate) Tag() string { return TagIteration }

func (e IterationUpdate) String() string {
	return fmt.Sprintf("IT(%d, %g)", e.Iteration, e.Best)
}

// BestUpdate is emitted whenever the best-so-far objective strictly improves.
// X is in normalized space.
type BestUpdate struct {
	Best []float64
	X    []float64
}

func (BestUpdate) Tag() string { return TagBest }

func (e BestUpdate) String() string {
	return fmt.Sprintf("BEST(%v, %v)", e.Best, e.X)
}

// ProgressUpdate reports batch completion counts
type ProgressUpdate struct {
	Finished           int
	Total              int
	Errors             int
	Iteration          int
	CumulativeFinished int
	CumulativeErrors   int
}

func (ProgressUpdate) Tag() string { return TagProgress }

func (e ProgressUpdate) String() string {
	return fmt.Sprintf("PROG(%d, %d, %d, %d, %d, %d)",
		e.Finished, e.Total, e.Errors, e.Iteration, e.CumulativeFinished, e.CumulativeErrors)
}

// Channel is a bounded single-producer/single-consumer event stream. The
// run worker publishes; one consumer reads Events until it is closed.
// Publish blocks while the buffer is full, so events are never dropped
// unless the consumer detaches or the run context ends.
type Channel struct {
	ctx        context.Context
	events     chan Event
	detached   chan struct{}
	detachOnce sync.Once
	closeOnce  sync.Once
}

// NewChannel creates a channel buffering up to size events. A publish
// blocked on a full buffer gives up once ctx is done.
func NewChannel(ctx context.Context, size int) *Channel {
	if size < 1 {
		size = 1
	}
	return &Channel{
		ctx:      ctx,
		events:   make(chan Event, size),
		detached: make(chan struct{}),
	}
}

// Publish delivers ev in order. It reports false if the event was
// discarded because the consumer detached, or because the buffer was full
// after the run context ended. Producer side only.
func (c *Channel) Publish(ev Event) bool {
	select {
	case <-c.detached:
		return false
	default:
	}

	// Room in the buffer wins over a cancelled context.
	select {
	case c.events <- ev:
		return true
	default:
	}

	select {
	case c.events <- ev:
		return true
	case <-c.detached:
		return false
	case <-c.ctx.Done():
		return false
	}
}

// Events returns the receive side. Consumer side only.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// Detach tells the producer nobody is listening any more. Later publishes
// return immediately. Consumer side only.
func (c *Channel) Detach() {
	c.detachOnce.Do(func() { close(c.detached) })
}

// Close ends the stream after the last publish. Producer side only.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.events) })
}
