package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/gpualloc/memutils"
	"github.com/vkngwrapper/gpualloc/memutils/buddy"
)

type buddyOptions struct {
	pages    int
	pageSize int
	free     []int
}

func newBuddyCmd() *cobra.Command {
	var opts buddyOptions

	cmd := &cobra.Command{
		Use:   "buddy <size>...",
		Short: "Replay a sequence of buddy allocations",
		Long: `The buddy command allocates each size in order from a single buddy arena, then
frees the allocations named by --free and prints the resulting free lists.

Example:
  gpuallocctl buddy --pages 16 4 2 1
  gpuallocctl buddy --pages 16 4 2 1 --free 0,2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sizes := make([]int, 0, len(args))
			for _, arg := range args {
				size, err := strconv.Atoi(arg)
				if err != nil {
					return errors.Wrapf(err, "invalid size %q", arg)
				}
				sizes = append(sizes, size)
			}

			return runBuddy(cmd.OutOrStdout(), opts, sizes)
		},
	}

	cmd.Flags().IntVar(&opts.pages, "pages", 16, "Number of pages in the arena")
	cmd.Flags().IntVar(&opts.pageSize, "page-size", 1, "Size of one page, a power of two")
	cmd.Flags().IntSliceVar(&opts.free, "free", nil, "Indices of allocations to free after allocating")
	return cmd
}

func runBuddy(out io.Writer, opts buddyOptions, sizes []int) error {
	allocator, err := buddy.New(opts.pages, opts.pageSize)
	if err != nil {
		return err
	}

	allocations := make([]buddy.AllocInfo, len(sizes))
	for i, size := range sizes {
		allocations[i], err = allocator.Allocate(size)
		if errors.Is(err, memutils.OutOfSpaceError) {
			fmt.Fprintf(out, "alloc[%d] size=%d: out of space\n", i, size)
			continue
		} else if err != nil {
			return errors.Wrapf(err, "allocation %d", i)
		}

		fmt.Fprintf(out, "alloc[%d] size=%d page=%d pages=%d offset=%d\n", i, size, allocations[i].PageID, allocations[i].NumPages, allocator.Offset(allocations[i]))
	}

	for _, index := range opts.free {
		if index < 0 || index >= len(allocations) {
			return errors.Newf("cannot free allocation %d of %d", index, len(allocations))
		}
		if allocations[index].IsEmpty() {
			continue
		}

		err = allocator.Deallocate(allocations[index])
		if err != nil {
			return errors.Wrapf(err, "free %d", index)
		}
		allocations[index] = buddy.AllocInfo{}
		fmt.Fprintf(out, "free[%d]\n", index)
	}

	writer := jwriter.NewWriter()
	objState := writer.Object()
	objState.Name("Pages").Int(allocator.ArenaPages())
	objState.Name("FreePages").Int(allocator.FreePages())

	freeBlocks := objState.Name("FreeBlocks").Object()
	for order := 0; order <= allocator.Order(); order++ {
		freeBlocks.Name(strconv.Itoa(order)).Int(allocator.FreeBlocks(order))
	}
	freeBlocks.End()

	var stats memutils.DetailedStatistics
	stats.Clear()
	allocator.AddDetailedStatistics(&stats)
	statsObj := objState.Name("Stats").Object()
	stats.PrintJson(&statsObj)
	statsObj.End()

	objState.End()
	fmt.Fprintln(out, string(writer.Bytes()))
	return nil
}
