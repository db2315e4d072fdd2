package platform

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// Timeline pairs the CPU submission counter with the device fence that reports completion. The current
// value is the one that will be signaled once every command recorded so far has executed, so anything
// logically freed now is safe to reuse once the fence reaches it.
type Timeline struct {
	fence   Fence
	current atomic.Uint64
}

// NewTimeline creates a Timeline whose first value to be signaled is one past what the fence has
// already completed
func NewTimeline(fence Fence) *Timeline {
	t := &Timeline{fence: fence}
	t.current.Store(fence.CompletedValue() + 1)
	return t
}

// CurrentValue is the fence value that will be signaled after the commands being recorded now
func (t *Timeline) CurrentValue() uint64 { return t.current.Load() }

// CompletedValue is the last fence value the GPU has signaled
func (t *Timeline) CompletedValue() uint64 { return t.fence.CompletedValue() }

// Advance moves the timeline to the next value and returns the value that should be signaled for the
// work recorded so far
func (t *Timeline) Advance() uint64 {
	return t.current.Add(1) - 1
}

// RenderContext carries the device, fence timeline and logger that every component in this module
// is constructed against
type RenderContext struct {
	Device   Device
	Timeline *Timeline
	Logger   *slog.Logger
}

// NewRenderContext builds a RenderContext. A nil logger is replaced with slog.Default().
func NewRenderContext(logger *slog.Logger, device Device, fence Fence) (*RenderContext, error) {
	if device == nil {
		return nil, errors.New("attempted to create a render context with a nil device")
	}
	if fence == nil {
		return nil, errors.New("attempted to create a render context with a nil fence")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RenderContext{
		Device:   device,
		Timeline: NewTimeline(fence),
		Logger:   logger,
	}, nil
}
