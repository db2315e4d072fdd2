package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
	"github.com/vkngwrapper/gpualloc/platform"
)

// CommandContext wraps a transient command pool. Resetting it recycles every command buffer
// allocated from the pool.
type CommandContext struct {
	pool      core1_0.CommandPool
	callbacks *driver.AllocationCallbacks
	destroyed bool
}

var _ platform.CommandContext = &CommandContext{}

// CommandPool returns the underlying vkCommandPool
func (c *CommandContext) CommandPool() core1_0.CommandPool { return c.pool }

func (c *CommandContext) Reset() error {
	if c.destroyed {
		return errors.New("attempted to reset a destroyed command context")
	}

	res, err := c.pool.Reset(0)
	if err != nil {
		return errors.Wrapf(err, "failed to reset command pool: %s", res)
	}
	return nil
}

func (c *CommandContext) Destroy() error {
	if c.destroyed {
		return errors.New("command context was destroyed twice")
	}

	c.destroyed = true
	c.pool.Destroy(c.callbacks)
	return nil
}
