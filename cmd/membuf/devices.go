package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/membuf/internal/alloc"
	"github.com/born-ml/membuf/internal/buffer"
	"github.com/born-ml/membuf/internal/platform"
)

const probeBytes = 4096

func newDevicesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Probe which memory types can be allocated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.devices(cmd.OutOrStdout())
		},
	}
}

// probe is the outcome of allocating one block of a memory type.
type probe struct {
	memory platform.MemoryType
	status string
	detail string
	block  buffer.Block
	al     alloc.Allocator
}

func (a *app) devices(w io.Writer) error {
	var probes []probe
	for _, mem := range []platform.MemoryType{platform.CPU, platform.Pinned, platform.GPU} {
		probes = append(probes, a.probe(mem))
	}
	defer func() {
		for _, p := range probes {
			if p.block != nil {
				_ = p.block.Free()
			}
			if p.al != nil {
				_ = p.al.Close()
			}
		}
	}()

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"MEMORY", "STATUS", "DETAIL"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	for _, p := range probes {
		table.Append([]string{p.memory.String(), p.status, p.detail})
	}
	table.Render()

	// Regions are listed while the probe blocks are still held.
	regions := platform.Default().Regions()
	if len(regions) == 0 {
		return nil
	}
	fmt.Fprintln(w)

	table = tablewriter.NewWriter(w)
	table.SetHeader([]string{"REGION", "BYTES", "MEMORY", "LABEL"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	for _, r := range regions {
		table.Append([]string{
			fmt.Sprintf("%#x", r.Start),
			strconv.Itoa(r.Bytes),
			r.Memory.String(),
			r.Label,
		})
	}
	table.Render()
	return nil
}

func (a *app) probe(mem platform.MemoryType) probe {
	p := probe{memory: mem}

	al, err := alloc.New(alloc.Options{Memory: mem, PinnedLock: a.cfg.Pinned.Lock})
	if err != nil {
		p.status, p.detail = "unavailable", err.Error()
		return p
	}
	p.al = al

	block, err := al.Allocate(probeBytes)
	if err != nil {
		p.status, p.detail = "unavailable", err.Error()
		return p
	}
	p.block = block

	p.status = "ok"
	got := platform.Classify(block.Pointer())
	p.detail = fmt.Sprintf("%d bytes at %p, classified %s", block.Len(), block.Pointer(), got)
	if dev, ok := al.(*alloc.Device); ok {
		p.detail = dev.Name() + ": " + p.detail
	}
	return p
}
