// Package frame bundles the heap manager, descriptor manager and command pool of one render context and
// drives their reclamation at frame boundaries.
package frame

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/gpualloc/command"
	"github.com/vkngwrapper/gpualloc/descriptor"
	"github.com/vkngwrapper/gpualloc/heap"
	"github.com/vkngwrapper/gpualloc/platform"
	"golang.org/x/exp/slog"
)

// Options configures every component of a Core
type Options struct {
	Heap       heap.CreateOptions
	Descriptor descriptor.CreateOptions
	Command    command.CreateOptions
}

// Core is the allocation core of one render context
type Core struct {
	ctx *platform.RenderContext

	Heaps       *heap.Manager
	Descriptors *descriptor.Manager
	Commands    *command.Pool
}

// New creates every component of a Core against ctx
func New(ctx *platform.RenderContext, options Options) (*Core, error) {
	if ctx == nil {
		return nil, errors.New("attempted to create a frame core with a nil render context")
	}

	heaps, err := heap.NewManager(ctx, options.Heap)
	if err != nil {
		return nil, err
	}

	descriptors, err := descriptor.NewManager(ctx, options.Descriptor)
	if err != nil {
		return nil, errors.CombineErrors(err, heaps.Destroy())
	}

	commands, err := command.NewPool(ctx, options.Command)
	if err != nil {
		return nil, errors.CombineErrors(err, errors.CombineErrors(heaps.Destroy(), descriptors.Destroy()))
	}

	return &Core{
		ctx:         ctx,
		Heaps:       heaps,
		Descriptors: descriptors,
		Commands:    commands,
	}, nil
}

// Context returns the render context the core was created against
func (c *Core) Context() *platform.RenderContext {
	return c.ctx
}

// EndFrame signals the fence value covering everything recorded so far, advances the timeline, and
// reclaims everything whose fence value has completed. It returns the value that was signaled.
func (c *Core) EndFrame(queue platform.Queue) (uint64, error) {
	signaled := c.ctx.Timeline.CurrentValue()
	err := queue.Signal(signaled)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to signal fence value %d", signaled)
	}
	c.ctx.Timeline.Advance()

	cpuFence := c.ctx.Timeline.CurrentValue()
	completed := c.ctx.Timeline.CompletedValue()

	allocations := c.Heaps.DelayedDelete(cpuFence, completed)
	descriptors := c.Descriptors.DelayedDelete(cpuFence, completed)
	contexts := c.Commands.DelayedDelete(cpuFence, completed)

	c.ctx.Logger.LogAttrs(context.Background(), slog.LevelDebug, "frame ended",
		slog.Uint64("signaled", signaled),
		slog.Uint64("completed", completed),
		slog.Int("allocationsReclaimed", allocations),
		slog.Int("descriptorRangesReclaimed", descriptors),
		slog.Int("commandContextsDestroyed", contexts),
	)

	return signaled, nil
}

// BuildStatsString returns a json document combining the heap and descriptor statistics
func (c *Core) BuildStatsString(detailed bool) string {
	writer := jwriter.NewWriter()
	objState := writer.Object()

	objState.Name("CpuFence").Float64(float64(c.ctx.Timeline.CurrentValue()))
	objState.Name("CompletedFence").Float64(float64(c.ctx.Timeline.CompletedValue()))

	c.Heaps.PrintJson(objState.Name("Memory"), detailed)
	c.Descriptors.PrintJson(objState.Name("Descriptors"), detailed)

	commandsObj := objState.Name("Commands").Object()
	commandsObj.Name("Size").Int(c.Commands.Size())
	commandsObj.Name("Idle").Int(c.Commands.Idle())
	commandsObj.End()

	objState.End()
	return string(writer.Bytes())
}

// Destroy destroys every component. The caller must have waited for the GPU to go idle.
func (c *Core) Destroy() error {
	err := c.Commands.Destroy()
	err = errors.CombineErrors(err, c.Descriptors.Destroy())
	return errors.CombineErrors(err, c.Heaps.Destroy())
}
