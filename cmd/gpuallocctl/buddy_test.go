package main

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type buddyReport struct {
	Pages      int
	FreePages  int
	FreeBlocks map[string]int
	Stats      struct {
		AllocationCount int
	}
}

func TestBuddyCommand(t *testing.T) {
	var out bytes.Buffer
	err := runBuddy(&out, buddyOptions{pages: 16, pageSize: 1}, []int{3, 16})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Equal(t, "alloc[0] size=3 page=0 pages=4 offset=0", lines[0])
	require.Equal(t, "alloc[1] size=16: out of space", lines[1])

	var report buddyReport
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &report))
	require.Equal(t, 16, report.Pages)
	require.Equal(t, 12, report.FreePages)
	require.Equal(t, 1, report.Stats.AllocationCount)
}

func TestBuddyFreeMergesBack(t *testing.T) {
	var out bytes.Buffer
	err := runBuddy(&out, buddyOptions{pages: 16, pageSize: 1, free: []int{0, 1, 2}}, []int{4, 2, 1})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")

	var report buddyReport
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &report))
	require.Equal(t, 16, report.FreePages)
	require.Equal(t, 1, report.FreeBlocks["4"])
	require.Equal(t, 0, report.FreeBlocks["0"])
	require.Equal(t, 0, report.Stats.AllocationCount)
}

func TestBuddyRejectsBadInput(t *testing.T) {
	err := runBuddy(io.Discard, buddyOptions{pages: 16, pageSize: 3}, []int{1})
	require.Error(t, err)

	err = runBuddy(io.Discard, buddyOptions{pages: 16, pageSize: 1, free: []int{5}}, []int{1})
	require.Error(t, err)

	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"buddy", "four"})
	require.Error(t, cmd.Execute())
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	require.True(t, strings.HasPrefix(out.String(), "gpuallocctl dev"))
}
