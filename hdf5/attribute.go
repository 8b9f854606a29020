package hdf5

import (
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/dtype"
	"github.com/robert-malhotra/go-audata/internal/heap"
	"github.com/robert-malhotra/go-audata/internal/message"
)

// Attribute is an attribute value as read from an object header.
type Attribute struct {
	msg  *message.Attribute
	file *File
}

// Name returns the attribute name.
func (a *Attribute) Name() string {
	return a.msg.Name
}

// Shape returns the dimensions of the value, or nil for a scalar.
func (a *Attribute) Shape() []uint64 {
	if a.IsScalar() {
		return nil
	}
	return a.msg.Dataspace.Dimensions
}

// IsScalar reports whether the value is a single element.
func (a *Attribute) IsScalar() bool {
	return a.msg.Dataspace == nil || a.msg.Dataspace.IsScalar()
}

// NumElements returns the element count.
func (a *Attribute) NumElements() uint64 {
	if a.msg.Dataspace == nil {
		return 1
	}
	return a.msg.Dataspace.NumElements()
}

// Datatype returns the stored element type.
func (a *Attribute) Datatype() *message.Datatype {
	return a.msg.Datatype
}

// Values decodes every element. See dtype.Values for the Go types used.
func (a *Attribute) Values() ([]any, error) {
	if a.msg.Datatype == nil {
		return nil, fmt.Errorf("attribute %q has no datatype", a.msg.Name)
	}
	if a.msg.Dataspace != nil && a.msg.Dataspace.IsNull() {
		return nil, nil
	}
	return dtype.Values(a.msg.Datatype, a.msg.Data, int(a.NumElements()),
		heap.NewCache(a.file.reader), a.file.reader.OffsetSize())
}

// Value returns the single element of a scalar attribute, or the element
// slice otherwise.
func (a *Attribute) Value() (any, error) {
	vals, err := a.Values()
	if err != nil {
		return nil, err
	}
	if a.IsScalar() && len(vals) == 1 {
		return vals[0], nil
	}
	return vals, nil
}

// String returns a scalar string attribute.
func (a *Attribute) String() (string, error) {
	v, err := a.Value()
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("attribute %q holds %T, not a string", a.msg.Name, v)
	}
	return s, nil
}

// attrMessages returns the attributes of the object at p and the file that
// holds its header.
func (f *File) attrMessages(p string) ([]*message.Attribute, *File, error) {
	n, err := f.lookup(p)
	if err != nil {
		return nil, nil, err
	}
	var attrs []*message.Attribute
	for _, msg := range n.header.GetMessages(message.TypeAttribute) {
		attrs = append(attrs, msg.(*message.Attribute))
	}
	return attrs, n.file, nil
}

func (f *File) attrNames(p string) ([]string, error) {
	attrs, _, err := f.attrMessages(p)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.Name
	}
	return names, nil
}

func (f *File) attr(p, name string) (*Attribute, error) {
	attrs, owner, err := f.attrMessages(p)
	if err != nil {
		return nil, err
	}
	for _, a := range attrs {
		if a.Name == name {
			return &Attribute{msg: a, file: owner}, nil
		}
	}
	return nil, fmt.Errorf("attribute %q on %s: %w", name, CleanPath(p), ErrNotFound)
}

// Attr returns the named attribute of the object at p.
func (f *File) Attr(p, name string) (*Attribute, error) {
	return f.attr(p, name)
}

// Attrs returns the attribute names of the object at p.
func (f *File) Attrs(p string) ([]string, error) {
	return f.attrNames(p)
}
