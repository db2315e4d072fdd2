// Package command recycles command recording contexts. A context handed back to the pool is tagged with
// the fence value that will be signaled once the commands recorded into it have executed, and is only
// reset and handed out again once that value has completed.
package command

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/gpualloc/internal/utils"
	"github.com/vkngwrapper/gpualloc/memutils"
	"github.com/vkngwrapper/gpualloc/platform"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific pool behaviors to activate or deactivate
type CreateFlags int32

var createFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	createFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return createFlagsMapping.FlagsToString(f)
}

const (
	// CreateExternallySynchronized ensures that pools created with this flag will not be synchronized
	// internally. The consumer must guarantee they are used from only one thread at a time.
	CreateExternallySynchronized CreateFlags = 1 << iota
)

func init() {
	CreateExternallySynchronized.Register("CreateExternallySynchronized")
}

const defaultMaxIdle int = 8

// CreateOptions contains optional settings when creating a Pool
type CreateOptions struct {
	Flags CreateFlags
	// MaxIdle is the number of idle contexts DelayedDelete keeps for reuse. Zero selects the default.
	MaxIdle int
}

type idleContext struct {
	context platform.CommandContext
	fence   uint64
}

// Pool is a FIFO of discarded command contexts, each tagged with the fence value it was discarded at
type Pool struct {
	ctx     *platform.RenderContext
	logger  *slog.Logger
	maxIdle int

	mutex utils.OptionalMutex
	idle  []idleContext
	size  int
}

// NewPool creates an empty Pool. Contexts are created on demand by RequestAllocator.
func NewPool(ctx *platform.RenderContext, options CreateOptions) (*Pool, error) {
	if ctx == nil {
		return nil, errors.New("attempted to create a command pool with a nil render context")
	}
	if options.MaxIdle < 0 {
		return nil, errors.Newf("MaxIdle cannot be negative but was %d", options.MaxIdle)
	}
	if options.MaxIdle == 0 {
		options.MaxIdle = defaultMaxIdle
	}

	return &Pool{
		ctx:     ctx,
		logger:  ctx.Logger,
		maxIdle: options.MaxIdle,
		mutex:   utils.NewOptionalMutex(options.Flags&CreateExternallySynchronized == 0),
	}, nil
}

// RequestAllocator returns the oldest discarded context if the GPU has finished with it, resetting it
// first. Otherwise a new context is created.
func (p *Pool) RequestAllocator(completedFence uint64) (platform.CommandContext, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if len(p.idle) > 0 && p.idle[0].fence <= completedFence {
		recycled := p.idle[0].context
		p.idle = slices.Delete(p.idle, 0, 1)

		err := recycled.Reset()
		if err != nil {
			p.size--
			return nil, errors.CombineErrors(errors.Wrap(err, "failed to reset a recycled command context"), recycled.Destroy())
		}
		return recycled, nil
	}

	created, err := p.ctx.Device.CreateCommandContext()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create a command context")
	}
	p.size++

	p.logger.LogAttrs(context.Background(), slog.LevelDebug, "command pool created a context",
		slog.Int("size", p.size),
		slog.Int("idle", len(p.idle)),
		slog.Uint64("completedFence", completedFence),
	)

	return created, nil
}

// DiscardAllocator hands a context back to the pool. cpuFence is the fence value that will be signaled
// once every command recorded into the context has executed. A context discarded at a fence older than
// the newest idle context is destroyed and an error is returned, since it could otherwise never be
// recycled in fence order.
func (p *Pool) DiscardAllocator(commandContext platform.CommandContext, cpuFence uint64) error {
	if commandContext == nil {
		return errors.New("attempted to discard a nil command context")
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if len(p.idle) > 0 && cpuFence < p.idle[len(p.idle)-1].fence {
		p.size--
		err := errors.Newf("command context discarded at fence %d after a context discarded at fence %d", cpuFence, p.idle[len(p.idle)-1].fence)
		return errors.CombineErrors(err, commandContext.Destroy())
	}

	p.idle = append(p.idle, idleContext{context: commandContext, fence: cpuFence})
	return nil
}

// DelayedDelete destroys the oldest idle contexts the GPU has finished with until at most MaxIdle
// remain, and returns the number destroyed
func (p *Pool) DelayedDelete(cpuFence, completedFence uint64) int {
	memutils.DebugCheckFenceOrder(cpuFence, completedFence)

	p.mutex.Lock()
	defer p.mutex.Unlock()

	destroyed := 0
	for len(p.idle) > p.maxIdle && p.idle[0].fence <= completedFence {
		err := p.idle[0].context.Destroy()
		if err != nil {
			panic(fmt.Sprintf("failed to destroy an idle command context: %+v", err))
		}

		p.idle = slices.Delete(p.idle, 0, 1)
		p.size--
		destroyed++
	}

	return destroyed
}

// Size is the number of contexts the pool has created and not yet destroyed, including those in use
func (p *Pool) Size() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.size
}

// Idle is the number of discarded contexts waiting to be reused
func (p *Pool) Idle() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return len(p.idle)
}

// Destroy destroys every idle context. Contexts that were requested and never discarded are reported.
func (p *Pool) Destroy() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if outstanding := p.size - len(p.idle); outstanding > 0 {
		p.logger.LogAttrs(context.Background(), slog.LevelWarn, "[UNRELEASED COMMAND CONTEXTS] command pool destroyed while contexts are in use",
			slog.Int("outstanding", outstanding),
		)
	}

	var err error
	for _, entry := range p.idle {
		err = errors.CombineErrors(err, entry.context.Destroy())
	}
	p.size -= len(p.idle)
	p.idle = nil

	return err
}
