package hdf5

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/robert-malhotra/go-audata/internal/btree"
	"github.com/robert-malhotra/go-audata/internal/message"
	"github.com/robert-malhotra/go-audata/internal/object"
)

// Kind tells groups and datasets apart.
type Kind int

const (
	KindGroup Kind = iota
	KindDataset
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindDataset:
		return "dataset"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Child is one member of a group.
type Child struct {
	Name string
	Kind Kind
}

// node is one object on a resolved path, read fresh from the file. file is
// where the header lives and home is the object's path there; both differ
// from the resolving file past an external link.
type node struct {
	name   string
	path   string
	home   string
	addr   uint64
	header *object.Header
	file   *File
}

// A dataset carries a dataspace message; groups never do.
func (n node) isDataset() bool {
	return n.header.GetMessage(message.TypeDataspace) != nil
}

func (n node) kind() Kind {
	if n.isDataset() {
		return KindDataset
	}
	return KindGroup
}

func (f *File) readNode(name, p string, addr uint64) (node, error) {
	header, err := object.Read(f.reader, addr)
	if err != nil {
		return node{}, fmt.Errorf("reading object header for %s: %w", p, err)
	}
	return node{name: name, path: p, home: p, addr: addr, header: header, file: f}, nil
}

// lookup resolves p for reading, following soft links.
func (f *File) lookup(p string) (node, error) {
	chain, err := f.resolve(p, true, 0)
	if err != nil {
		return node{}, err
	}
	return chain[len(chain)-1], nil
}

// resolve walks p from the root and returns every object on the way, root
// first. Write paths pass follow=false: a soft or external link there is
// reported as ErrUnsupported, because rewriting a header must update the
// parent that actually holds the link.
func (f *File) resolve(p string, follow bool, depth int) ([]node, error) {
	if f.closed {
		return nil, ErrClosed
	}
	if depth > MaxLinkDepth {
		return nil, ErrLinkDepth
	}
	parts, err := splitChecked(p)
	if err != nil {
		return nil, err
	}

	root, err := f.readNode("", "/", f.superblock.RootGroupAddress)
	if err != nil {
		return nil, err
	}
	chain := []node{root}

	for _, name := range parts {
		cur := chain[len(chain)-1]
		childPath := joinPath(cur.path, name)
		if cur.isDataset() {
			return nil, fmt.Errorf("%s: %w", cur.path, ErrNotGroup)
		}

		link, err := f.findLink(cur, name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", childPath, err)
		}

		switch {
		case link.IsHard():
			n, err := cur.file.readNode(name, childPath, link.ObjectAddress)
			if err != nil {
				return nil, err
			}
			n.home = joinPath(cur.home, name)
			chain = append(chain, n)

		case link.IsSoft():
			if !follow {
				return nil, fmt.Errorf("%w: %s is a soft link", ErrUnsupported, childPath)
			}
			target := link.SoftLinkValue
			if !strings.HasPrefix(target, "/") {
				target = joinPath(cur.home, target)
			}
			// Soft links resolve in the file that holds them.
			targetChain, err := cur.file.resolve(target, true, depth+1)
			if err != nil {
				return nil, fmt.Errorf("following %s -> %s: %w", childPath, target, err)
			}
			n := targetChain[len(targetChain)-1]
			n.name, n.path = name, childPath
			chain = append(chain, n)

		case link.IsExternal():
			if !follow {
				return nil, fmt.Errorf("%w: %s is an external link", ErrUnsupported, childPath)
			}
			ext, err := cur.file.external(link.ExternalFile)
			if err != nil {
				return nil, fmt.Errorf("following %s: %w", childPath, err)
			}
			targetChain, err := ext.resolve(link.ExternalPath, true, depth+1)
			if err != nil {
				return nil, fmt.Errorf("following %s -> %s:%s: %w", childPath, link.ExternalFile, link.ExternalPath, err)
			}
			n := targetChain[len(targetChain)-1]
			n.name, n.path = name, childPath
			chain = append(chain, n)

		default:
			return nil, fmt.Errorf("%w: %s has link type %d", ErrUnsupported, childPath, link.LinkType)
		}
	}
	return chain, nil
}

// external opens the file named by an external link read-only, relative to
// the directory of f. Opened files are kept until f is closed.
func (f *File) external(name string) (*File, error) {
	if ext, ok := f.externals[name]; ok {
		return ext, nil
	}
	p := name
	if !filepath.IsAbs(p) {
		p = filepath.Join(filepath.Dir(f.path), name)
	}
	ext, err := Open(p)
	if err != nil {
		return nil, fmt.Errorf("opening external file %q: %w", name, err)
	}
	if f.externals == nil {
		f.externals = make(map[string]*File)
	}
	f.externals[name] = ext
	return ext, nil
}

// findLink finds the link called name inside group n.
func (f *File) findLink(n node, name string) (*message.Link, error) {
	links, err := f.links(n)
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		if l.Name == name {
			return l, nil
		}
	}
	return nil, ErrNotFound
}

// links lists the links of group n. Newer groups keep them as link messages
// in the header; older ones use a symbol table B-tree and a local heap.
func (f *File) links(n node) ([]*message.Link, error) {
	var links []*message.Link
	for _, msg := range n.header.GetMessages(message.TypeLink) {
		links = append(links, msg.(*message.Link))
	}
	if len(links) > 0 {
		return links, nil
	}

	var symTable *message.SymbolTable
	if msg := n.header.GetMessage(message.TypeSymbolTable); msg != nil {
		symTable = msg.(*message.SymbolTable)
	} else if sb := n.file.superblock; n.addr == sb.RootGroupAddress && sb.RootGroupBTreeAddress != 0 {
		// Version 0 and 1 superblocks cache the root symbol table.
		symTable = &message.SymbolTable{
			BTreeAddress:     sb.RootGroupBTreeAddress,
			LocalHeapAddress: sb.RootGroupLocalHeapAddress,
		}
	}
	if symTable == nil {
		return nil, nil
	}

	entries, err := btree.ReadGroup(n.file.reader, symTable.BTreeAddress, symTable.LocalHeapAddress)
	if err != nil {
		return nil, fmt.Errorf("reading symbol table: %w", err)
	}
	for _, e := range entries {
		if e.Soft() {
			links = append(links, message.NewSoftLink(e.Name, e.Target))
			continue
		}
		links = append(links, message.NewHardLink(e.Name, e.Address))
	}
	return links, nil
}

// children lists the members of group n with their kinds, in link order.
func (f *File) children(n node) ([]Child, error) {
	links, err := f.links(n)
	if err != nil {
		return nil, err
	}
	out := make([]Child, 0, len(links))
	for _, l := range links {
		c, err := f.lookup(joinPath(n.path, l.Name))
		if err != nil {
			return nil, err
		}
		out = append(out, Child{Name: l.Name, Kind: c.kind()})
	}
	return out, nil
}

func joinPath(dir, name string) string {
	return path.Join("/", dir, name)
}

// splitChecked splits p into names, rejecting "." and "..".
func splitChecked(p string) ([]string, error) {
	parts := SplitPath(p)
	for _, part := range parts {
		if part == "." || part == ".." {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return parts, nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/@") {
		return fmt.Errorf("%w: bad member name %q", ErrInvalidPath, name)
	}
	return nil
}
