package container

import (
	"fmt"
	"slices"
	"strings"

	"github.com/robert-malhotra/go-audata/record"
)

type memNode struct {
	kind      Kind
	attrNames []string
	attrs     map[string]string
	children  []string
	members   map[string]*memNode
	batch     *record.Batch
	maxRows   int
}

func newMemNode(kind Kind) *memNode {
	return &memNode{kind: kind, attrs: make(map[string]string), members: make(map[string]*memNode)}
}

// Memory is an in-process Store.
type Memory struct {
	root     *memNode
	closed   bool
	readOnly bool
}

// NewMemory returns an empty store holding only the root group.
func NewMemory() *Memory {
	return &Memory{root: newMemNode(KindGroup)}
}

// ReadOnly makes every later mutation fail with ErrReadOnly.
func (m *Memory) ReadOnly() {
	m.readOnly = true
}

func (m *Memory) check(write bool) error {
	if m.closed {
		return ErrClosed
	}
	if write && m.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (m *Memory) lookup(p string) (*memNode, error) {
	if err := checkName(p); err != nil {
		return nil, err
	}
	n := m.root
	for _, part := range parts(p) {
		if n.kind != KindGroup {
			return nil, fmt.Errorf("%w: %s", ErrNotGroup, p)
		}
		next, ok := n.members[part]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		n = next
	}
	return n, nil
}

func parts(p string) []string {
	p = strings.Trim(Clean(p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// mkdirs returns the group at p, creating missing groups on the way.
func (m *Memory) mkdirs(p string) (*memNode, error) {
	n := m.root
	for _, part := range parts(p) {
		next, ok := n.members[part]
		if !ok {
			next = newMemNode(KindGroup)
			n.members[part] = next
			n.children = append(n.children, part)
		}
		if next.kind != KindGroup {
			return nil, fmt.Errorf("%w: %s", ErrNotGroup, p)
		}
		n = next
	}
	return n, nil
}

func (m *Memory) link(p string, child *memNode) error {
	if err := checkName(p); err != nil {
		return err
	}
	dir, name := Split(p)
	if name == "" {
		return fmt.Errorf("%w: %s", ErrExists, p)
	}
	parent, err := m.mkdirs(dir)
	if err != nil {
		return err
	}
	if _, ok := parent.members[name]; ok {
		return fmt.Errorf("%w: %s", ErrExists, p)
	}
	parent.members[name] = child
	parent.children = append(parent.children, name)
	return nil
}

func (m *Memory) CreateGroup(p string) error {
	if err := m.check(true); err != nil {
		return err
	}
	return m.link(p, newMemNode(KindGroup))
}

func (m *Memory) CreateBlob(p string, b *record.Batch, opts BlobOptions) error {
	if err := m.check(true); err != nil {
		return err
	}
	if opts.MaxRows > 0 && b.Len() > opts.MaxRows {
		return fmt.Errorf("%w: %d rows exceed maximum %d", ErrRange, b.Len(), opts.MaxRows)
	}
	n := newMemNode(KindBlob)
	n.batch = b.Clone()
	n.maxRows = opts.MaxRows
	if err := m.link(p, n); err != nil {
		return err
	}
	for _, k := range sortedKeys(opts.Attrs) {
		n.setAttr(k, opts.Attrs[k])
	}
	return nil
}

func (m *Memory) blob(p string) (*memNode, error) {
	n, err := m.lookup(p)
	if err != nil {
		return nil, err
	}
	if n.kind != KindBlob {
		return nil, fmt.Errorf("%w: %s", ErrNotBlob, p)
	}
	return n, nil
}

func (m *Memory) Resize(p string, size int) error {
	if err := m.check(true); err != nil {
		return err
	}
	n, err := m.blob(p)
	if err != nil {
		return err
	}
	if size < 0 || (n.maxRows > 0 && size > n.maxRows) {
		return fmt.Errorf("%w: resize %s to %d", ErrRange, p, size)
	}
	cur := n.batch.Len()
	switch {
	case size < cur:
		n.batch, err = n.batch.Slice(0, size)
		return err
	case size > cur:
		return n.batch.Append(record.New(n.batch.Layout(), size-cur))
	}
	return nil
}

func (m *Memory) WriteRows(p string, start int, b *record.Batch) error {
	if err := m.check(true); err != nil {
		return err
	}
	n, err := m.blob(p)
	if err != nil {
		return err
	}
	if start < 0 || start+b.Len() > n.batch.Len() {
		return fmt.Errorf("%w: write [%d, %d) of %d", ErrRange, start, start+b.Len(), n.batch.Len())
	}
	src, err := b.Convert(n.batch.Layout())
	if err != nil {
		return err
	}
	head, err := n.batch.Slice(0, start)
	if err != nil {
		return err
	}
	tail, err := n.batch.Slice(start+src.Len(), n.batch.Len())
	if err != nil {
		return err
	}
	n.batch, err = record.Concat(head, src, tail)
	return err
}

func (m *Memory) ReadRows(p string, start, stop int) (*record.Batch, error) {
	if err := m.check(false); err != nil {
		return nil, err
	}
	n, err := m.blob(p)
	if err != nil {
		return nil, err
	}
	if start < 0 || stop > n.batch.Len() || start > stop {
		return nil, fmt.Errorf("%w: read [%d, %d) of %d", ErrRange, start, stop, n.batch.Len())
	}
	return n.batch.Slice(start, stop)
}

func (m *Memory) Blob(p string) (BlobInfo, error) {
	if err := m.check(false); err != nil {
		return BlobInfo{}, err
	}
	n, err := m.blob(p)
	if err != nil {
		return BlobInfo{}, err
	}
	return BlobInfo{Layout: n.batch.Layout(), Len: n.batch.Len()}, nil
}

func (m *Memory) Attr(p, name string) (string, error) {
	if err := m.check(false); err != nil {
		return "", err
	}
	n, err := m.lookup(p)
	if err != nil {
		return "", err
	}
	v, ok := n.attrs[name]
	if !ok {
		return "", fmt.Errorf("%w: attribute %q of %s", ErrNotFound, name, Clean(p))
	}
	return v, nil
}

func (m *Memory) Attrs(p string) ([]string, error) {
	if err := m.check(false); err != nil {
		return nil, err
	}
	n, err := m.lookup(p)
	if err != nil {
		return nil, err
	}
	return slices.Clone(n.attrNames), nil
}

func (m *Memory) SetAttr(p, name, value string) error {
	if err := m.check(true); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: empty attribute name", ErrInvalidPath)
	}
	n, err := m.lookup(p)
	if err != nil {
		return err
	}
	n.setAttr(name, value)
	return nil
}

func (n *memNode) setAttr(name, value string) {
	if _, ok := n.attrs[name]; !ok {
		n.attrNames = append(n.attrNames, name)
	}
	n.attrs[name] = value
}

func (m *Memory) Delete(p string) error {
	if err := m.check(true); err != nil {
		return err
	}
	if Clean(p) == "/" {
		return fmt.Errorf("%w: cannot delete the root group", ErrInvalidPath)
	}
	if _, err := m.lookup(p); err != nil {
		return err
	}
	dir, name := Split(p)
	parent, err := m.lookup(dir)
	if err != nil {
		return err
	}
	delete(parent.members, name)
	parent.children = slices.DeleteFunc(parent.children, func(s string) bool { return s == name })
	return nil
}

func (m *Memory) Stat(p string) (Kind, error) {
	if err := m.check(false); err != nil {
		return 0, err
	}
	n, err := m.lookup(p)
	if err != nil {
		return 0, err
	}
	return n.kind, nil
}

func (m *Memory) Children(p string) ([]Child, error) {
	if err := m.check(false); err != nil {
		return nil, err
	}
	n, err := m.lookup(p)
	if err != nil {
		return nil, err
	}
	if n.kind != KindGroup {
		return nil, fmt.Errorf("%w: %s", ErrNotGroup, p)
	}
	out := make([]Child, len(n.children))
	for i, name := range n.children {
		out[i] = Child{Name: name, Kind: n.members[name].kind}
	}
	return out, nil
}

func (m *Memory) Flush() error {
	return m.check(false)
}

func (m *Memory) Close() error {
	m.closed = true
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

var _ Store = (*Memory)(nil)
