package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/membuf/internal/buffer"
	"github.com/born-ml/membuf/internal/serialization"
)

func newInspectCmd(a *app) *cobra.Command {
	var (
		preview int
		verify  bool
	)

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "List the buffers stored in a .bbuf file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.inspect(cmd.OutOrStdout(), args[0], preview, verify)
		},
	}

	cmd.Flags().IntVarP(&preview, "preview", "n", 4, "Number of leading elements to show per buffer (0 disables)")
	cmd.Flags().BoolVar(&verify, "verify", false, "Verify the data checksum")
	return cmd
}

func (a *app) inspect(w io.Writer, path string, preview int, verify bool) error {
	r, err := serialization.NewMmapReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	if verify {
		if err := r.VerifyChecksum(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	header := r.Header()
	fmt.Fprintf(w, "%s: format v%d, producer %s, created %s\n",
		path, r.Version(), header.Producer, header.CreatedAt.Format("2006-01-02 15:04:05"))
	for k, v := range header.Metadata {
		fmt.Fprintf(w, "  %s = %s\n", k, v)
	}
	fmt.Fprintln(w)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"NAME", "DTYPE", "SIZE", "BYTES", "OFFSET", "SAVED FROM", "VALUES"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")

	for _, meta := range header.Buffers {
		values := "-"
		if preview > 0 {
			b, err := r.Buffer(meta.Name)
			if err != nil {
				return err
			}
			values = previewValues(b, preview)
		}
		table.Append([]string{
			meta.Name,
			meta.DType,
			strconv.FormatInt(meta.Size, 10),
			strconv.FormatInt(meta.Bytes, 10),
			strconv.FormatInt(meta.Offset, 10),
			meta.Memory,
			values,
		})
	}
	table.Render()
	return nil
}

// previewValues renders up to n leading elements of b.
func previewValues(b buffer.ConstBuffer, n int) string {
	n = min(n, b.Size())
	head, err := buffer.SliceConst(b, 0, n)
	if err != nil {
		return "-"
	}
	values, err := buffer.Float32s(head)
	if err != nil {
		return "-"
	}

	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(float64(v), 'g', 6, 32)
	}
	s := "[" + strings.Join(parts, " ")
	if n < b.Size() {
		s += " ..."
	}
	return s + "]"
}
