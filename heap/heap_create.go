package heap

import (
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/gpualloc/memutils"
)

// CreateFlags indicate specific heap behaviors to activate or deactivate
type CreateFlags int32

var createFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	createFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return createFlagsMapping.FlagsToString(f)
}

const (
	// CreateExternallySynchronized ensures that heaps created with this flag will not be synchronized
	// internally. The consumer must guarantee they are used from only one thread at a time.
	CreateExternallySynchronized CreateFlags = 1 << iota
)

func init() {
	CreateExternallySynchronized.Register("CreateExternallySynchronized")
}

const (
	// defaultPageSize is the page size of buddy heaps and the smallest size class of seglist heaps. It
	// matches the 64KiB resource placement alignment of desktop GPUs.
	defaultPageSize int = 64 * 1024
	// defaultBuddyArenaPages is the number of pages in each buddy arena, for 16MiB arenas
	defaultBuddyArenaPages int = 256
	// defaultMaxTexturePageSize is the largest seglist size class, 32MiB
	defaultMaxTexturePageSize int = 32 * 1024 * 1024
	// defaultTextureArenaSize is the target size of each seglist arena, 64MiB
	defaultTextureArenaSize int = 64 * 1024 * 1024
)

// CreateOptions contains optional settings when creating heaps. Zero values select defaults.
type CreateOptions struct {
	// Flags indicates specific heap behaviors to activate or deactivate
	Flags CreateFlags

	// PageSize is the smallest unit of placement. It must be a power of two and at least as large as
	// the device's placement alignment.
	PageSize int
	// BuddyArenaPages is the number of pages in each arena of a buddy heap
	BuddyArenaPages int

	// MaxTexturePageSize is the largest size class of a seglist heap. It must be a power of two.
	MaxTexturePageSize int
	// TextureArenaSize is the target size of each arena of a seglist heap. Size classes larger than
	// this get one slot per arena.
	TextureArenaSize int
}

func (o CreateOptions) withDefaults() (CreateOptions, error) {
	if o.PageSize == 0 {
		o.PageSize = defaultPageSize
	}
	if o.BuddyArenaPages == 0 {
		o.BuddyArenaPages = defaultBuddyArenaPages
	}
	if o.MaxTexturePageSize == 0 {
		o.MaxTexturePageSize = defaultMaxTexturePageSize
	}
	if o.TextureArenaSize == 0 {
		o.TextureArenaSize = defaultTextureArenaSize
	}

	err := memutils.CheckPow2(o.PageSize, "PageSize")
	if err != nil {
		return o, err
	}
	err = memutils.CheckPow2(o.MaxTexturePageSize, "MaxTexturePageSize")
	if err != nil {
		return o, err
	}

	return o, nil
}
