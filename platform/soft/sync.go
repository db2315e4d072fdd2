package soft

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gpualloc/platform"
)

// CommandContext is a command recording context that only counts how often it has been recycled
type CommandContext struct {
	device    *Device
	id        uint64
	resets    int
	destroyed bool
}

var _ platform.CommandContext = &CommandContext{}

func (c *CommandContext) ID() uint64  { return c.id }
func (c *CommandContext) Resets() int { return c.resets }

func (c *CommandContext) Reset() error {
	if c.destroyed {
		return errors.New("attempted to reset a destroyed command context")
	}

	c.resets++
	return nil
}

func (c *CommandContext) Destroy() error {
	if c.destroyed {
		return errors.New("command context was destroyed twice")
	}

	c.destroyed = true
	c.device.liveContexts.Add(-1)
	return nil
}

// Fence is a monotonic counter standing in for a GPU fence
type Fence struct {
	value atomic.Uint64
}

var _ platform.Fence = &Fence{}

func (f *Fence) CompletedValue() uint64 { return f.value.Load() }

// Complete marks every value up to and including value as completed. Values lower than the current
// completed value are ignored.
func (f *Fence) Complete(value uint64) {
	for {
		current := f.value.Load()
		if value <= current || f.value.CompareAndSwap(current, value) {
			return
		}
	}
}

// Queue simulates a GPU queue that runs a fixed number of frames behind the CPU. Signals complete on
// the fence once more than Latency newer signals have been submitted after them.
type Queue struct {
	fence   *Fence
	latency int

	mutex    sync.Mutex
	inflight []uint64
}

var _ platform.Queue = &Queue{}

// NewQueue creates a Queue that completes signals on fence after latency further submissions
func NewQueue(fence *Fence, latency int) *Queue {
	return &Queue{fence: fence, latency: latency}
}

func (q *Queue) Signal(value uint64) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if len(q.inflight) > 0 && value <= q.inflight[len(q.inflight)-1] {
		return errors.Newf("signal value %d does not advance past the last signaled value %d", value, q.inflight[len(q.inflight)-1])
	}

	q.inflight = append(q.inflight, value)
	for len(q.inflight) > q.latency {
		q.fence.Complete(q.inflight[0])
		q.inflight = q.inflight[1:]
	}

	return nil
}

// Flush completes every outstanding signal, as if waiting for the GPU to go idle
func (q *Queue) Flush() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, value := range q.inflight {
		q.fence.Complete(value)
	}
	q.inflight = nil
}

// InFlight is the number of signals that have not yet completed
func (q *Queue) InFlight() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return len(q.inflight)
}
