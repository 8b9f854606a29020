package audata

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/robert-malhotra/go-audata/container"
)

// Group is a container of datasets and other groups.
type Group struct {
	file *File
	path string
}

func (g *Group) Path() string { return g.path }

func (g *Group) Name() string {
	_, name := container.Split(g.path)
	return name
}

// File returns the file the group belongs to.
func (g *Group) File() *File { return g.file }

func (g *Group) child(name string) (string, error) {
	if err := g.file.valid(); err != nil {
		return "", err
	}
	if strings.Trim(name, "/") == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidParent)
	}
	return container.Join(g.path, name), nil
}

// Listing is the content of a group.
type Listing struct {
	Attributes []string `json:"attributes" yaml:"attributes"`
	Groups     []string `json:"groups" yaml:"groups"`
	Datasets   []string `json:"datasets" yaml:"datasets"`
}

// List returns the attribute names, groups and datasets of the group.
func (g *Group) List() (Listing, error) {
	if err := g.file.valid(); err != nil {
		return Listing{}, err
	}
	var l Listing
	attrs, err := g.file.store.Attrs(g.path)
	if err != nil {
		return l, storeErr(err)
	}
	l.Attributes = attrs
	kids, err := g.file.store.Children(g.path)
	if err != nil {
		return l, storeErr(err)
	}
	for _, k := range kids {
		if k.Kind == container.KindGroup {
			l.Groups = append(l.Groups, k.Name)
		} else {
			l.Datasets = append(l.Datasets, k.Name)
		}
	}
	return l, nil
}

// Recurse returns the paths of every dataset below the group, depth first.
// Names starting with a dot are skipped along with their contents.
func (g *Group) Recurse() ([]string, error) {
	if err := g.file.valid(); err != nil {
		return nil, err
	}
	var out []string
	var walk func(p string) error
	walk = func(p string) error {
		kids, err := g.file.store.Children(p)
		if err != nil {
			return storeErr(err)
		}
		for _, k := range kids {
			if strings.HasPrefix(k.Name, ".") {
				continue
			}
			cp := container.Join(p, k.Name)
			if k.Kind == container.KindBlob {
				out = append(out, cp)
				continue
			}
			if err := walk(cp); err != nil {
				return err
			}
		}
		return nil
	}
	return out, walk(g.path)
}

// Exists reports whether name is a member of the group.
func (g *Group) Exists(name string) bool {
	p, err := g.child(name)
	if err != nil {
		return false
	}
	_, err = g.file.store.Stat(p)
	return err == nil
}

// NewGroup creates a group, with any missing parents.
func (g *Group) NewGroup(name string) (*Group, error) {
	p, err := g.child(name)
	if err != nil {
		return nil, err
	}
	if err := g.file.store.CreateGroup(p); err != nil {
		return nil, storeErr(err)
	}
	return &Group{file: g.file, path: p}, nil
}

// Group opens a member group.
func (g *Group) Group(name string) (*Group, error) {
	p, err := g.child(name)
	if err != nil {
		return nil, err
	}
	kind, err := g.file.store.Stat(p)
	if err != nil {
		return nil, storeErr(err)
	}
	if kind != container.KindGroup {
		return nil, fmt.Errorf("%w: %s is a dataset", ErrInvalidParent, p)
	}
	return &Group{file: g.file, path: p}, nil
}

// Delete removes a member group or dataset.
func (g *Group) Delete(name string) error {
	p, err := g.child(name)
	if err != nil {
		return err
	}
	return storeErr(g.file.store.Delete(p))
}

// Meta returns the group's .meta document, or an empty map.
func (g *Group) Meta() (map[string]any, error) {
	return readMeta(g.file, g.path)
}

// SetMeta replaces the group's .meta document.
func (g *Group) SetMeta(meta map[string]any) error {
	return writeMeta(g.file, g.path, meta)
}

func readMeta(f *File, p string) (map[string]any, error) {
	if err := f.valid(); err != nil {
		return nil, err
	}
	text, err := f.store.Attr(p, MetaAttr)
	if errors.Is(err, container.ErrNotFound) {
		if _, serr := f.store.Stat(p); serr != nil {
			return nil, storeErr(serr)
		}
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, storeErr(err)
	}
	doc, err := parseDocument([]byte(text))
	if err != nil {
		return nil, &SchemaDecodeError{Raw: text, Err: err}
	}
	return doc.toMap()
}

func writeMeta(f *File, p string, meta map[string]any) error {
	if err := f.valid(); err != nil {
		return err
	}
	doc := newDocument()
	for _, k := range sortedKeys(meta) {
		if err := doc.set(k, meta[k]); err != nil {
			return fmt.Errorf("meta key %q: %w", k, err)
		}
	}
	text, err := doc.text()
	if err != nil {
		return err
	}
	return storeErr(f.store.SetAttr(p, MetaAttr, text))
}

// Dataset opens a member dataset and loads its schema.
func (g *Group) Dataset(name string) (*Dataset, error) {
	p, err := g.child(name)
	if err != nil {
		return nil, err
	}
	return openDataset(g.file, p)
}

// NewDataset stores value as a new dataset. value is a *Table, a
// *record.Batch or a *Dataset whose full contents are copied.
func (g *Group) NewDataset(name string, value any, opts ...DatasetOption) (*Dataset, error) {
	p, err := g.child(name)
	if err != nil {
		return nil, err
	}
	o := &datasetOptions{}
	for _, opt := range opts {
		opt.applyDataset(o)
	}
	return createDataset(g.file, p, value, o)
}

func (g *Group) String() string {
	l, err := g.List()
	if err != nil {
		return fmt.Sprintf("%s: %v", g.path, err)
	}
	var b strings.Builder
	if g.path == "/" {
		b.WriteString("<ROOT>")
	} else {
		b.WriteString(g.path)
	}
	for _, a := range l.Attributes {
		fmt.Fprintf(&b, "\n  [A] %s", a)
	}
	for _, s := range l.Groups {
		fmt.Fprintf(&b, "\n  [G] %s", s)
	}
	for _, d := range l.Datasets {
		fmt.Fprintf(&b, "\n  [D] %s", d)
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
