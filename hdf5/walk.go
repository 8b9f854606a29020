package hdf5

import (
	"errors"
)

// SkipDir returned by a WalkFunc for a group skips that group's members.
var SkipDir = errors.New("skip this group")

// WalkFunc is called for each object reached by Walk. err reports a member
// that could not be read; kind is meaningless in that case.
type WalkFunc func(p string, kind Kind, err error) error

// Walk visits the object at root and, when it is a group, everything below
// it in link order. Soft and external links are reported with the kind of
// their target but not descended into.
func (f *File) Walk(root string, fn WalkFunc) error {
	if f.closed {
		return ErrClosed
	}
	p := CleanPath(root)
	kind, err := f.Stat(p)
	if err != nil {
		return fn(p, 0, err)
	}
	return f.walk(p, kind, fn)
}

func (f *File) walk(p string, kind Kind, fn WalkFunc) error {
	err := fn(p, kind, nil)
	if errors.Is(err, SkipDir) && kind == KindGroup {
		return nil
	}
	if err != nil || kind != KindGroup {
		return err
	}

	children, err := f.Children(p)
	if err != nil {
		return fn(p, kind, err)
	}
	for _, c := range children {
		cp := joinPath(p, c.Name)
		if c.Kind == KindGroup && f.isAlias(p, c.Name) {
			if err := fn(cp, c.Kind, nil); err != nil && !errors.Is(err, SkipDir) {
				return err
			}
			continue
		}
		if err := f.walk(cp, c.Kind, fn); err != nil {
			return err
		}
	}
	return nil
}

// isAlias reports whether name in dir is a soft or external link.
func (f *File) isAlias(dir, name string) bool {
	n, err := f.lookup(dir)
	if err != nil {
		return false
	}
	l, err := f.findLink(n, name)
	return err == nil && (l.IsSoft() || l.IsExternal())
}

// AttrInfo describes one attribute reached by WalkAttrs.
type AttrInfo struct {
	// Path is the attribute path, "/group/dataset@attr".
	Path       string
	ObjectPath string
	ObjectKind Kind
	Name       string
	Attr       *Attribute

	// Value is the decoded value, or nil when Err is set.
	Value any
	Err   error
}

// WalkAttrs calls fn for every attribute on root and the objects below it.
func (f *File) WalkAttrs(root string, fn func(AttrInfo) error) error {
	return f.Walk(root, func(p string, kind Kind, err error) error {
		if err != nil {
			return err
		}
		names, err := f.attrNames(p)
		if err != nil {
			return err
		}
		for _, name := range names {
			info := AttrInfo{
				Path:       JoinAttrPath(p, name),
				ObjectPath: p,
				ObjectKind: kind,
				Name:       name,
			}
			info.Attr, info.Err = f.attr(p, name)
			if info.Err == nil {
				info.Value, info.Err = info.Attr.Value()
			}
			if err := fn(info); err != nil {
				return err
			}
		}
		return nil
	})
}
