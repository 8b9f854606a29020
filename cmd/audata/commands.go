package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/robert-malhotra/go-audata/audata"
	"github.com/robert-malhotra/go-audata/audata/arrowtable"
)

func isRoot(p string) bool { return strings.Trim(p, "/") == "" }

func (a *app) lsCmd() *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "ls FILE [GROUP]",
		Short: "List the members of a group",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			g := f.Root()
			if len(args) > 1 && !isRoot(args[1]) {
				if g, err = f.Group(args[1]); err != nil {
					return err
				}
			}
			if recursive {
				paths, err := g.Recurse()
				if err != nil {
					return err
				}
				return a.emit(paths, func() string { return strings.Join(paths, "\n") })
			}
			l, err := g.List()
			if err != nil {
				return err
			}
			return a.emit(l, g.String)
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "List every dataset below the group")
	return cmd
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE DATASET",
		Short: "Describe the columns of a dataset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ds, err := f.Dataset(args[1])
			if err != nil {
				return err
			}
			info, err := describe(ds)
			if err != nil {
				return err
			}
			return a.emit(info, ds.String)
		},
	}
}

type selection struct {
	last, head, step int
}

func (s *selection) flags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&s.last, "last", "n", 0, "Read only the final N rows")
	cmd.Flags().IntVar(&s.head, "head", 0, "Read only the first N rows")
	cmd.Flags().IntVar(&s.step, "step", 1, "Keep every k-th row")
}

func (s *selection) rng() audata.Range {
	r := audata.All()
	switch {
	case s.last > 0:
		r = audata.Last(s.last)
	case s.head > 0:
		r = audata.Upto(s.head)
	}
	return r.Step(s.step)
}

func (a *app) catCmd() *cobra.Command {
	var (
		sel  selection
		unix bool
	)
	cmd := &cobra.Command{
		Use:   "cat FILE DATASET",
		Short: "Print the rows of a dataset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ds, err := f.Dataset(args[1])
			if err != nil {
				return err
			}
			t, err := ds.Get(sel.rng(), audata.Datetimes(!unix))
			if err != nil {
				return err
			}
			return a.emit(toRows(t), func() string { return tableText(t) })
		},
	}
	sel.flags(cmd)
	cmd.Flags().BoolVar(&unix, "unix", false, "Print time columns as Unix seconds")
	return cmd
}

func (a *app) metaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "meta FILE [PATH]",
		Short: "Print the metadata of the file, a group or a dataset",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			var meta map[string]any
			switch {
			case len(args) == 1 || isRoot(args[1]):
				meta, err = f.FileMeta()
			default:
				if g, gerr := f.Group(args[1]); gerr == nil {
					meta, err = g.Meta()
				} else if ds, derr := f.Dataset(args[1]); derr == nil {
					meta, err = ds.Meta()
				} else {
					err = gerr
				}
			}
			if err != nil {
				return err
			}
			return a.emit(meta, func() string { return metaText(meta) })
		},
	}
}

func metaText(meta map[string]any) string {
	keys := sortedAttrNames(meta)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("%s: %v", k, meta[k])
	}
	return strings.Join(lines, "\n")
}

func (a *app) exportCmd() *cobra.Command {
	var sel selection
	cmd := &cobra.Command{
		Use:   "export FILE DATASET OUT",
		Short: "Write a dataset as an Arrow IPC file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ds, err := f.Dataset(args[1])
			if err != nil {
				return err
			}
			mem := memory.NewGoAllocator()
			rec, err := arrowtable.ReadDataset(ds, sel.rng(), mem)
			if err != nil {
				return err
			}
			defer rec.Release()

			out, err := os.Create(args[2])
			if err != nil {
				return err
			}
			defer out.Close()
			w, err := ipc.NewFileWriter(out, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
			if err != nil {
				return fmt.Errorf("create arrow writer: %w", err)
			}
			if err := w.Write(rec); err != nil {
				return fmt.Errorf("write record batch: %w", err)
			}
			if err := w.Close(); err != nil {
				return fmt.Errorf("close arrow writer: %w", err)
			}
			a.log.Info("exported dataset",
				zap.String("dataset", ds.Path()),
				zap.Int64("rows", rec.NumRows()),
				zap.String("out", args[2]),
			)
			return out.Close()
		},
	}
	sel.flags(cmd)
	return cmd
}
