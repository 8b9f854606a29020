package hdf5

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/heap"
	"github.com/robert-malhotra/go-audata/internal/message"
	"github.com/robert-malhotra/go-audata/internal/object"
)

// Room reserved in new headers so that links, attributes and layout updates
// usually fit in place.
const (
	groupSlack   = 512
	datasetSlack = 256
)

func rawMessages(h *object.Header) []message.Message {
	msgs := make([]message.Message, len(h.Raw))
	for i, raw := range h.Raw {
		msgs[i] = raw
	}
	return msgs
}

func (f *File) parseRaw(raw *object.RawMessage) (message.Message, error) {
	return message.Parse(raw.MsgType, raw.Data, raw.Flags, f.reader)
}

// update rewrites the header of the object at p with the messages returned
// by edit, which receives the header's current raw messages.
func (f *File) update(p string, edit func(raws []*object.RawMessage) ([]message.Message, error)) error {
	if err := f.checkWritable(); err != nil {
		return err
	}
	chain, err := f.resolve(p, false, 0)
	if err != nil {
		return err
	}
	msgs, err := edit(chain[len(chain)-1].header.Raw)
	if err != nil {
		return err
	}
	return f.rewrite(chain, msgs)
}

// rewrite stores msgs as the header of the last object in chain. A header
// is rewritten in place when the new messages fit its first chunk;
// otherwise it moves to fresh space and the parent's link is updated, which
// may in turn move the parent, up to the superblock root address.
func (f *File) rewrite(chain []node, msgs []message.Message) error {
	n := chain[len(chain)-1]
	h := n.header
	if h.Version == 2 && !h.Continued && object.Fits(f.writer, msgs, h.ChunkSize) {
		if err := object.Rewrite(f.writer, n.addr, h.ChunkSize, msgs); err != nil {
			return fmt.Errorf("rewriting %s: %w", n.path, err)
		}
		return nil
	}

	slack := groupSlack
	if n.isDataset() {
		slack = datasetSlack
	}
	minChunk := object.Slack(f.writer, msgs, slack)
	size := object.Size(f.writer, msgs, minChunk)
	addr := f.allocate(int64(size))
	if _, err := object.Write(f.writer.At(int64(addr)), msgs, minChunk); err != nil {
		return fmt.Errorf("moving %s: %w", n.path, err)
	}

	if len(chain) == 1 {
		f.superblock.RootGroupAddress = addr
		if err := f.writeSuperblock(); err != nil {
			return err
		}
		return f.release(h)
	}

	parent := chain[len(chain)-2]
	pmsgs, err := f.relink(parent, n.name, addr)
	if err != nil {
		return err
	}
	if err := f.rewrite(chain[:len(chain)-1], pmsgs); err != nil {
		return err
	}
	return f.release(h)
}

// release hands the space of a moved header back to the allocator. Only
// headers written in this session are released, since those are known to
// have a single link.
func (f *File) release(h *object.Header) error {
	if h.Version != 2 || h.Continued || h.Address < f.baseAddr {
		return nil
	}
	return f.allocator.Free(h.Address, h.Size)
}

// relink returns parent's messages with the link called name pointed at addr.
func (f *File) relink(parent node, name string, addr uint64) ([]message.Message, error) {
	msgs := rawMessages(parent.header)
	for i, raw := range parent.header.Raw {
		if raw.MsgType != message.TypeLink {
			continue
		}
		msg, err := f.parseRaw(raw)
		if err != nil {
			return nil, err
		}
		if msg.(*message.Link).Name == name {
			msgs[i] = message.NewHardLink(name, addr)
			return msgs, nil
		}
	}
	return nil, fmt.Errorf("%w: %s keeps %q outside its header", ErrUnsupported, parent.path, name)
}

// compactGroup rejects groups whose links live in a symbol table, which the
// writer cannot edit.
func compactGroup(n node) error {
	if n.isDataset() {
		return fmt.Errorf("%s: %w", n.path, ErrNotGroup)
	}
	if n.header.GetMessage(message.TypeSymbolTable) != nil {
		return fmt.Errorf("%w: %s uses a symbol table", ErrUnsupported, n.path)
	}
	return nil
}

// createObject writes a new object header with msgs and links it into the
// group at parent as name.
func (f *File) createObject(parent, name string, msgs []message.Message, slack int) error {
	return f.addLink(parent, name, func() (*message.Link, error) {
		minChunk := object.Slack(f.writer, msgs, slack)
		size := object.Size(f.writer, msgs, minChunk)
		addr := f.allocate(int64(size))
		if _, err := object.Write(f.writer.At(int64(addr)), msgs, minChunk); err != nil {
			return nil, fmt.Errorf("writing header for %s: %w", joinPath(parent, name), err)
		}
		return message.NewHardLink(name, addr), nil
	})
}

// addLink adds the link made by mk to the group at parent, after checking
// that name is free.
func (f *File) addLink(parent, name string, mk func() (*message.Link, error)) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := f.checkWritable(); err != nil {
		return err
	}
	chain, err := f.resolve(parent, false, 0)
	if err != nil {
		return err
	}
	pn := chain[len(chain)-1]
	if err := compactGroup(pn); err != nil {
		return err
	}
	if _, err := f.findLink(pn, name); err == nil {
		return fmt.Errorf("%s: %w", joinPath(parent, name), ErrExists)
	}
	link, err := mk()
	if err != nil {
		return err
	}
	return f.rewrite(chain, append(rawMessages(pn.header), link))
}

// CreateSoftLink makes p an alias of target, a path in this file. The
// target need not exist yet.
func (f *File) CreateSoftLink(p, target string) error {
	dir, name := parentPath(p)
	return f.addLink(dir, name, func() (*message.Link, error) {
		return message.NewSoftLink(name, target), nil
	})
}

// CreateExternalLink makes p refer to the object at target in another file.
// A relative file name is taken from the directory of this file when the
// link is followed.
func (f *File) CreateExternalLink(p, file, target string) error {
	if file == "" {
		return fmt.Errorf("%w: external link without a file", ErrInvalidPath)
	}
	dir, name := parentPath(p)
	return f.addLink(dir, name, func() (*message.Link, error) {
		return message.NewExternalLink(name, file, CleanPath(target)), nil
	})
}

// CreateGroup creates the group at p along with any missing parents. It
// fails with ErrExists when p already exists.
func (f *File) CreateGroup(p string) (*Group, error) {
	parts, err := splitChecked(p)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("/: %w", ErrExists)
	}

	cur := "/"
	for i, name := range parts {
		next := joinPath(cur, name)
		kind, err := f.Stat(next)
		switch {
		case err == nil && i == len(parts)-1:
			return nil, fmt.Errorf("%s: %w", next, ErrExists)
		case err == nil && kind == KindDataset:
			return nil, fmt.Errorf("%s: %w", next, ErrNotGroup)
		case err == nil:
		case errors.Is(err, ErrNotFound):
			if err := f.createObject(cur, name, object.GroupMessages(), groupSlack); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
		cur = next
	}
	return &Group{file: f, path: cur}, nil
}

// CreateGroup creates a subgroup; name may be a relative path.
func (g *Group) CreateGroup(name string) (*Group, error) {
	return g.file.CreateGroup(joinPath(g.path, name))
}

// Delete unlinks the object at p. Its storage is not reclaimed.
func (f *File) Delete(p string) error {
	dir, name := parentPath(p)
	if name == "" {
		return fmt.Errorf("%w: cannot delete the root group", ErrInvalidPath)
	}
	if err := checkName(name); err != nil {
		return err
	}
	return f.update(dir, func(raws []*object.RawMessage) ([]message.Message, error) {
		msgs := make([]message.Message, 0, len(raws))
		found := false
		for _, raw := range raws {
			if raw.MsgType == message.TypeLink {
				msg, err := f.parseRaw(raw)
				if err != nil {
					return nil, err
				}
				if msg.(*message.Link).Name == name {
					found = true
					continue
				}
			}
			msgs = append(msgs, raw)
		}
		if !found {
			return nil, fmt.Errorf("%s: %w", joinPath(dir, name), ErrNotFound)
		}
		return msgs, nil
	})
}

// Delete unlinks a member of the group.
func (g *Group) Delete(name string) error {
	return g.file.Delete(joinPath(g.path, name))
}

// SetAttr stores value as a scalar variable-length UTF-8 string attribute
// on the object at p, replacing any attribute of the same name.
func (f *File) SetAttr(p, name, value string) error {
	if name == "" {
		return fmt.Errorf("%w: empty attribute name", ErrInvalidPath)
	}
	if err := f.checkWritable(); err != nil {
		return err
	}
	refs, err := heap.WriteVlenStrings(f.writer, f.allocate, []string{value})
	if err != nil {
		return fmt.Errorf("storing attribute %q: %w", name, err)
	}
	offsetSize := f.writer.OffsetSize()
	data := make([]byte, heap.VlenRefSize(offsetSize))
	heap.PutVlenRef(data, refs[0], offsetSize)

	dt := message.NewVarLenStringDatatype(message.CharsetUTF8)
	dt.Size = uint32(len(data))
	attr := message.NewScalarAttribute(name, dt, data)

	return f.update(p, func(raws []*object.RawMessage) ([]message.Message, error) {
		msgs, _, err := f.withoutAttr(raws, name)
		if err != nil {
			return nil, err
		}
		return append(msgs, attr), nil
	})
}

// DeleteAttr removes the named attribute from the object at p.
func (f *File) DeleteAttr(p, name string) error {
	return f.update(p, func(raws []*object.RawMessage) ([]message.Message, error) {
		msgs, found, err := f.withoutAttr(raws, name)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("attribute %q on %s: %w", name, CleanPath(p), ErrNotFound)
		}
		return msgs, nil
	})
}

func (f *File) withoutAttr(raws []*object.RawMessage, name string) ([]message.Message, bool, error) {
	msgs := make([]message.Message, 0, len(raws)+1)
	found := false
	for _, raw := range raws {
		if raw.MsgType == message.TypeAttribute {
			msg, err := f.parseRaw(raw)
			if err != nil {
				return nil, false, err
			}
			if msg.(*message.Attribute).Name == name {
				found = true
				continue
			}
		}
		msgs = append(msgs, raw)
	}
	return msgs, found, nil
}

// SetAttr sets a string attribute on the group.
func (g *Group) SetAttr(name, value string) error {
	return g.file.SetAttr(g.path, name, value)
}

// DeleteAttr removes an attribute from the group.
func (g *Group) DeleteAttr(name string) error {
	return g.file.DeleteAttr(g.path, name)
}
