package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/robert-malhotra/go-audata/hdf5"
)

// objectInfo is one HDF5 object as seen below the audata layer.
type objectInfo struct {
	Path      string         `json:"path" yaml:"path"`
	Kind      string         `json:"kind" yaml:"kind"`
	Rows      uint64         `json:"rows,omitempty" yaml:"rows,omitempty"`
	ChunkRows uint64         `json:"chunk_rows,omitempty" yaml:"chunk_rows,omitempty"`
	Filters   []uint16       `json:"filters,omitempty" yaml:"filters,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty" yaml:"attrs,omitempty"`
	Head      []any          `json:"head,omitempty" yaml:"head,omitempty"`
	Error     string         `json:"error,omitempty" yaml:"error,omitempty"`
}

func (a *app) h5Cmd() *cobra.Command {
	var head int
	cmd := &cobra.Command{
		Use:   "h5 FILE",
		Short: "Walk the raw HDF5 objects of a file",
		Long: `Walk every HDF5 group and dataset of a file, including hidden
ones, with their shapes, chunking, filters and attributes. Soft and
external links show the object they point at. Unreadable objects are
reported rather than aborting the walk.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := hdf5.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			objs, err := walkObjects(f, head, a.log)
			if err != nil {
				return err
			}
			return a.emit(objs, func() string {
				return fmt.Sprintf("superblock v%d\n%s", f.Version(), objectsText(objs))
			})
		},
	}
	cmd.Flags().IntVar(&head, "head", 0, "Decode the first N elements of every dataset")
	return cmd
}

func walkObjects(f *hdf5.File, head int, log *zap.Logger) ([]objectInfo, error) {
	var objs []objectInfo
	byPath := make(map[string]int)
	err := f.Walk("/", func(p string, kind hdf5.Kind, err error) error {
		obj := objectInfo{Path: p, Kind: kind.String()}
		if err != nil {
			log.Warn("unreadable object", zap.String("path", p), zap.Error(err))
			obj.Kind, obj.Error = "unknown", err.Error()
			objs = append(objs, obj)
			return nil
		}
		if kind == hdf5.KindDataset {
			describeDataset(f, &obj, head)
		}
		byPath[p] = len(objs)
		objs = append(objs, obj)
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = f.WalkAttrs("/", func(info hdf5.AttrInfo) error {
		i, ok := byPath[info.ObjectPath]
		if !ok {
			return nil
		}
		if objs[i].Attrs == nil {
			objs[i].Attrs = make(map[string]any)
		}
		if info.Err != nil {
			objs[i].Attrs[info.Name] = "<" + info.Err.Error() + ">"
			return nil
		}
		objs[i].Attrs[info.Name] = printable(info.Value)
		return nil
	})
	return objs, err
}

func describeDataset(f *hdf5.File, obj *objectInfo, head int) {
	ds, err := f.OpenDataset(obj.Path)
	if err != nil {
		obj.Error = err.Error()
		return
	}
	if obj.Rows, err = ds.NumRows(); err != nil {
		obj.Error = err.Error()
		return
	}
	// Contiguous and compact datasets have no chunk size.
	obj.ChunkRows, _ = ds.ChunkRows()
	obj.Filters, _ = ds.Filters()
	if n := min(uint64(max(head, 0)), obj.Rows); n > 0 {
		vals, err := ds.Values(0, n)
		if err != nil {
			obj.Error = err.Error()
			return
		}
		for _, v := range vals {
			obj.Head = append(obj.Head, printable(v))
		}
	}
}

// printable replaces values the json and yaml encoders reject, complex
// numbers, with their text form.
func printable(v any) any {
	switch v := v.(type) {
	case complex128:
		return fmt.Sprint(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = printable(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = printable(e)
		}
		return out
	}
	return v
}

func objectsText(objs []objectInfo) string {
	var b strings.Builder
	for _, o := range objs {
		depth := strings.Count(strings.Trim(o.Path, "/"), "/")
		if o.Path != "/" {
			depth++
		}
		indent := strings.Repeat("  ", depth)
		fmt.Fprintf(&b, "%s%s %s", indent, o.Kind, o.Path)
		if o.Kind == hdf5.KindDataset.String() {
			fmt.Fprintf(&b, " rows=%d", o.Rows)
			if o.ChunkRows > 0 {
				fmt.Fprintf(&b, " chunk=%d", o.ChunkRows)
			}
			if len(o.Filters) > 0 {
				fmt.Fprintf(&b, " filters=%v", o.Filters)
			}
		}
		if o.Error != "" {
			fmt.Fprintf(&b, " ERROR: %s", o.Error)
		}
		b.WriteByte('\n')
		for _, name := range sortedAttrNames(o.Attrs) {
			fmt.Fprintf(&b, "%s  @%s = %v\n", indent, name, o.Attrs[name])
		}
		for i, v := range o.Head {
			fmt.Fprintf(&b, "%s  [%d] %v\n", indent, i, v)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
