package hdf5

import (
	"fmt"
	"path"
)

// Group is a handle on a group path. Every call reads the group's current
// header, so handles stay valid across writes made through other handles.
type Group struct {
	file *File
	path string
}

// Name returns the last component of the group path.
func (g *Group) Name() string {
	if g.path == "/" {
		return "/"
	}
	return path.Base(g.path)
}

// Path returns the absolute group path.
func (g *Group) Path() string {
	return g.path
}

// File returns the file the group belongs to.
func (g *Group) File() *File {
	return g.file
}

func (g *Group) node() (node, error) {
	n, err := g.file.lookup(g.path)
	if err != nil {
		return node{}, err
	}
	if n.isDataset() {
		return node{}, fmt.Errorf("%s: %w", g.path, ErrNotGroup)
	}
	return n, nil
}

// OpenGroup opens a subgroup by relative path.
func (g *Group) OpenGroup(rel string) (*Group, error) {
	return g.file.OpenGroup(joinPath(g.path, rel))
}

// OpenDataset opens a dataset by relative path.
func (g *Group) OpenDataset(rel string) (*Dataset, error) {
	return g.file.OpenDataset(joinPath(g.path, rel))
}

// Exists reports whether rel names an object below this group.
func (g *Group) Exists(rel string) bool {
	return g.file.Exists(joinPath(g.path, rel))
}

// Members returns the names of the group's members in link order.
func (g *Group) Members() ([]string, error) {
	n, err := g.node()
	if err != nil {
		return nil, err
	}
	links, err := g.file.links(n)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(links))
	for i, l := range links {
		names[i] = l.Name
	}
	return names, nil
}

// Children returns the group's members with their kinds.
func (g *Group) Children() ([]Child, error) {
	n, err := g.node()
	if err != nil {
		return nil, err
	}
	return g.file.children(n)
}

// NumObjects returns the number of members.
func (g *Group) NumObjects() (int, error) {
	members, err := g.Members()
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

// Attrs returns the attribute names of the group.
func (g *Group) Attrs() ([]string, error) {
	return g.file.attrNames(g.path)
}

// Attr returns the named attribute, or ErrNotFound.
func (g *Group) Attr(name string) (*Attribute, error) {
	return g.file.attr(g.path, name)
}

// HasAttr reports whether the group carries the named attribute.
func (g *Group) HasAttr(name string) bool {
	_, err := g.Attr(name)
	return err == nil
}

// Children lists the members of the group at p.
func (f *File) Children(p string) ([]Child, error) {
	g, err := f.OpenGroup(p)
	if err != nil {
		return nil, err
	}
	return g.Children()
}
