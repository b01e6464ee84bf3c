package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/born-ml/membuf/internal/buffer"
	"github.com/born-ml/membuf/internal/serialization"
)

func newPackCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pack OUT.bbuf IN.safetensors",
		Short: "Convert a SafeTensors file into a .bbuf file",
		Long: "Convert a SafeTensors file into a .bbuf file.\n\n" +
			"Tensors are flattened and staged through the configured allocator.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.pack(cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func (a *app) pack(w io.Writer, out, in string) (err error) {
	al, err := a.allocator()
	if err != nil {
		return err
	}
	defer closeAllocator(al, &err)

	buffers, metadata, err := serialization.ReadSafeTensors(in, al)
	if err != nil {
		return err
	}
	defer func() {
		for _, b := range buffers {
			b.Release()
		}
	}()

	names := make([]string, 0, len(buffers))
	for name := range buffers {
		names = append(names, name)
	}
	sort.Strings(names)

	named := make([]serialization.NamedBuffer, len(names))
	for i, name := range names {
		named[i] = serialization.NamedBuffer{Name: name, Buffer: buffers[name]}
	}
	if err := serialization.WriteFile(out, named, metadata); err != nil {
		return err
	}

	a.log.Info("packed buffers", zap.String("from", in), zap.String("to", out), zap.Int("buffers", len(named)))
	fmt.Fprintf(w, "wrote %d buffers to %s\n", len(named), out)
	return nil
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export IN.bbuf OUT.safetensors",
		Short: "Export a .bbuf file as SafeTensors",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.export(cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func (a *app) export(w io.Writer, in, out string) error {
	r, err := serialization.NewMmapReader(in)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.VerifyChecksum(); err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}

	buffers := make(map[string]buffer.ConstBuffer, len(r.Header().Buffers))
	for _, name := range r.BufferNames() {
		b, err := r.Buffer(name)
		if err != nil {
			return err
		}
		buffers[name] = b
	}
	if err := serialization.WriteSafeTensors(out, buffers, r.Header().Metadata); err != nil {
		return err
	}

	a.log.Info("exported buffers", zap.String("from", in), zap.String("to", out), zap.Int("buffers", len(buffers)))
	fmt.Fprintf(w, "wrote %d tensors to %s\n", len(buffers), out)
	return nil
}
