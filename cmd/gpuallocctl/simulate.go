package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"unsafe"

	"github.com/bytedance/gopkg/util/xxhash3"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/gpualloc/command"
	"github.com/vkngwrapper/gpualloc/descriptor"
	"github.com/vkngwrapper/gpualloc/frame"
	"github.com/vkngwrapper/gpualloc/heap"
	"github.com/vkngwrapper/gpualloc/platform"
	"github.com/vkngwrapper/gpualloc/platform/soft"
)

type simulateOptions struct {
	frames     int
	latency    int
	buffers    int
	textures   int
	persistent int
	seed       int64
	budget     int
	detailed   bool

	pageSize       int
	arenaPages     int
	cpuHeapSize    int
	gpuSectionSize int
	maxIdle        int
}

func newSimulateCmd() *cobra.Command {
	var opts simulateOptions

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a number of frames of transient allocations and print statistics",
		Long: `The simulate command renders a number of simulated frames. Every frame places random
buffers and textures, writes a descriptor for each of them, gathers the descriptors into a
shader-visible table and frees everything again at the end of the frame. A queue that runs
--latency frames behind the CPU decides when freed memory can be reused.

Example:
  gpuallocctl simulate --frames 64 --latency 2
  gpuallocctl simulate --frames 8 --detailed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.frames, "frames", 16, "Number of frames to simulate")
	cmd.Flags().IntVar(&opts.latency, "latency", 2, "Number of frames the GPU runs behind the CPU")
	cmd.Flags().IntVar(&opts.buffers, "buffers", 8, "Transient buffers placed each frame")
	cmd.Flags().IntVar(&opts.textures, "textures", 4, "Transient textures placed each frame")
	cmd.Flags().IntVar(&opts.persistent, "persistent", 4, "Textures kept alive for the whole run")
	cmd.Flags().Int64Var(&opts.seed, "seed", 1, "Random seed for resource sizes")
	cmd.Flags().IntVar(&opts.budget, "budget", 0, "Device memory budget in bytes, 0 for unlimited")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "Print the detailed allocation map")
	cmd.Flags().IntVar(&opts.pageSize, "page-size", 0, "Heap page size in bytes")
	cmd.Flags().IntVar(&opts.arenaPages, "arena-pages", 0, "Pages per buddy heap arena")
	cmd.Flags().IntVar(&opts.cpuHeapSize, "cpu-heap-size", 0, "Descriptors per cpu descriptor heap")
	cmd.Flags().IntVar(&opts.gpuSectionSize, "gpu-section-size", 0, "Descriptors per shader-visible heap section")
	cmd.Flags().IntVar(&opts.maxIdle, "max-idle", 0, "Idle command contexts kept for reuse")
	return cmd
}

type simulation struct {
	core  *frame.Core
	queue *soft.Queue
	rng   *rand.Rand
	opts  simulateOptions

	persistent []*heap.AllocInfo
	digest     uint64
}

func runSimulate(out, errOut io.Writer, opts simulateOptions) error {
	if opts.frames < 0 || opts.latency < 0 || opts.buffers < 0 || opts.textures < 0 || opts.persistent < 0 {
		return errors.New("frame, latency and resource counts must not be negative")
	}

	logger := newLogger(errOut)
	device, err := soft.New(logger, soft.Options{MemoryBudget: opts.budget})
	if err != nil {
		return err
	}

	fence := &soft.Fence{}
	ctx, err := platform.NewRenderContext(logger, device, fence)
	if err != nil {
		return err
	}

	core, err := frame.New(ctx, frame.Options{
		Heap: heap.CreateOptions{
			PageSize:        opts.pageSize,
			BuddyArenaPages: opts.arenaPages,
		},
		Descriptor: descriptor.CreateOptions{
			CpuHeapSize:    opts.cpuHeapSize,
			GpuSectionSize: opts.gpuSectionSize,
		},
		Command: command.CreateOptions{
			MaxIdle: opts.maxIdle,
		},
	})
	if err != nil {
		return err
	}

	sim := &simulation{
		core:  core,
		queue: soft.NewQueue(fence, opts.latency),
		rng:   rand.New(rand.NewSource(opts.seed)),
		opts:  opts,
	}

	err = sim.run()
	if err != nil {
		return errors.CombineErrors(err, core.Destroy())
	}

	stats := core.BuildStatsString(opts.detailed)
	err = core.Destroy()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "frames: %d\n", opts.frames)
	fmt.Fprintf(out, "table digest: %016x\n", sim.digest)
	fmt.Fprintf(out, "live arenas after destroy: %d\n", device.LiveArenas())
	fmt.Fprintln(out, stats)
	return nil
}

func (s *simulation) run() error {
	for i := 0; i < s.opts.persistent; i++ {
		info, err := s.placeTexture()
		if err != nil {
			return err
		}
		s.persistent = append(s.persistent, info)
	}

	for frameIndex := 0; frameIndex < s.opts.frames; frameIndex++ {
		err := s.frame(frameIndex)
		if err != nil {
			return errors.Wrapf(err, "frame %d", frameIndex)
		}
	}

	for _, info := range s.persistent {
		err := s.core.Heaps.Deallocate(info)
		if err != nil {
			return err
		}
	}
	s.persistent = nil

	// Two frame boundaries with the queue drained in between retire everything freed above
	for i := 0; i < 2; i++ {
		_, err := s.core.EndFrame(s.queue)
		if err != nil {
			return err
		}
		s.queue.Flush()
	}

	return nil
}

func (s *simulation) placeTexture() (*heap.AllocInfo, error) {
	dimension := 64 << s.rng.Intn(5)
	return s.core.Heaps.GetTexturesHeap().Allocate(platform.TextureDesc(dimension, dimension, platform.FormatR8G8B8A8Unorm, platform.ResourceUsageShaderResource|platform.ResourceUsageCopyDest))
}

func (s *simulation) placeBuffer() (*heap.AllocInfo, error) {
	size := s.rng.Intn(256*1024) + 1

	switch s.rng.Intn(3) {
	case 0:
		return s.core.Heaps.GetDefaultBuffersHeap().Allocate(platform.BufferDesc(size, platform.ResourceUsageShaderResource|platform.ResourceUsageCopyDest))
	case 1:
		info, err := s.core.Heaps.GetUploadBuffersHeap().Allocate(platform.BufferDesc(size, platform.ResourceUsageCopySource))
		if err != nil {
			return nil, err
		}

		data := unsafe.Slice((*byte)(info.MappedData), size)
		for i := range data {
			data[i] = byte(i)
		}
		return info, nil
	default:
		return s.core.Heaps.GetReadbackBuffersHeap().Allocate(platform.BufferDesc(size, platform.ResourceUsageCopyDest))
	}
}

func (s *simulation) frame(frameIndex int) error {
	ctx := s.core.Context()

	commandContext, err := s.core.Commands.RequestAllocator(ctx.Timeline.CompletedValue())
	if err != nil {
		return err
	}

	var transient []*heap.AllocInfo
	for i := 0; i < s.opts.buffers; i++ {
		info, err := s.placeBuffer()
		if err != nil {
			return err
		}
		transient = append(transient, info)
	}
	for i := 0; i < s.opts.textures; i++ {
		info, err := s.placeTexture()
		if err != nil {
			return err
		}
		transient = append(transient, info)
	}

	resources := append(append([]*heap.AllocInfo{}, s.persistent...), transient...)
	if len(resources) > 0 {
		err = s.buildTable(frameIndex, resources)
		if err != nil {
			return err
		}
	}

	for _, info := range transient {
		err = s.core.Heaps.Deallocate(info)
		if err != nil {
			return err
		}
	}

	err = s.core.Commands.DiscardAllocator(commandContext, ctx.Timeline.CurrentValue())
	if err != nil {
		return err
	}

	_, err = s.core.EndFrame(s.queue)
	return err
}

// buildTable writes one descriptor per resource into a cpu range, gathers it into a shader-visible
// table and folds the table contents into the running digest
func (s *simulation) buildTable(frameIndex int, resources []*heap.AllocInfo) error {
	descriptors := s.core.Descriptors

	cpuRange, err := descriptors.CpuCbvSrvUavAllocate(len(resources))
	if err != nil {
		return err
	}

	payload := make([]byte, 16)
	for i, info := range resources {
		binary.LittleEndian.PutUint64(payload[0:], info.Resource.GPUAddress())
		binary.LittleEndian.PutUint64(payload[8:], uint64(frameIndex))
		err = descriptors.WriteDescriptor(cpuRange, i, payload)
		if err != nil {
			return err
		}
	}

	table, err := descriptors.GpuCbvSrvUavAllocate(len(resources))
	if errors.Is(err, descriptor.ErrGpuHeapExpanded) {
		table, err = descriptors.GpuCbvSrvUavAllocate(len(resources))
	}
	if err != nil {
		return err
	}

	err = descriptors.CopyDescriptors(table, []descriptor.AllocInfo{cpuRange})
	if err != nil {
		return err
	}

	gpuHeap := descriptors.GpuHeap()
	contents := make([]byte, 0, len(resources)*gpuHeap.Stride())
	for i := 0; i < table.Count; i++ {
		slot, err := gpuHeap.ReadDescriptor(table.Start + i)
		if err != nil {
			return err
		}
		contents = append(contents, slot...)
	}

	var digestBytes [8]byte
	binary.LittleEndian.PutUint64(digestBytes[:], s.digest)
	s.digest = xxhash3.Hash(append(digestBytes[:], contents...))

	return errors.CombineErrors(descriptors.CpuCbvSrvUavDeallocate(cpuRange), descriptors.GpuCbvSrvUavDeallocate(table))
}
