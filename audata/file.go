package audata

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/robert-malhotra/go-audata/container"
)

const (
	// Version is written as audata_pkg_version.
	Version = "1.0.2"
	// DataVersion is the on-disk schema version, audata_version.
	DataVersion = 1
)

// MetaAttr is the attribute holding JSON metadata on groups and datasets.
const MetaAttr = ".meta"

// File is an audata container. Group operations on a File act on its root
// group.
type File struct {
	root   *Group
	store  container.Store
	opts   *fileOptions
	log    *zap.Logger
	closed bool
}

// Create makes a new audata file at path. An existing file is an error
// unless WithOverwrite is given.
func Create(path string, opts ...FileOption) (*File, error) {
	o := buildOptions(opts)
	if _, err := os.Stat(path); err == nil && !o.overwrite {
		return nil, fmt.Errorf("%w: file %s", ErrAlreadyExists, path)
	}
	s, err := container.CreateHDF5(path, o.log)
	if err != nil {
		return nil, storeErr(err)
	}
	f, err := initFile(s, o)
	if err != nil {
		s.Close()
		return nil, err
	}
	return f, nil
}

// Open opens an existing audata file, read-only unless WithReadOnly(false)
// is given. With WithCreate a missing file is created instead.
func Open(path string, opts ...FileOption) (*File, error) {
	o := buildOptions(opts)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if !o.create {
			return nil, fmt.Errorf("%w: file %s", ErrNotFound, path)
		}
		return Create(path, opts...)
	}
	s, err := container.OpenHDF5(path, o.readOnly, o.log)
	if err != nil {
		return nil, storeErr(err)
	}
	return wrapFile(s, o), nil
}

// CreateIn initializes a new audata file inside an empty store.
func CreateIn(s container.Store, opts ...FileOption) (*File, error) {
	return initFile(s, buildOptions(opts))
}

// OpenIn opens the audata file held by s.
func OpenIn(s container.Store, opts ...FileOption) *File {
	return wrapFile(s, buildOptions(opts))
}

func buildOptions(opts []FileOption) *fileOptions {
	o := defaultFileOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func wrapFile(s container.Store, o *fileOptions) *File {
	f := &File{store: s, opts: o, log: o.log}
	f.root = &Group{file: f, path: "/"}
	return f
}

func initFile(s container.Store, o *fileOptions) (*File, error) {
	f := wrapFile(s, o)
	ref := o.timeReference
	if ref.IsZero() {
		ref = time.Now()
	}
	doc := newDocument()
	for _, kv := range []struct {
		key string
		val any
	}{
		{"audata_pkg_version", Version},
		{"audata_version", DataVersion},
		{"time_origin", FormatTimeOrigin(ref)},
	} {
		if err := doc.set(kv.key, kv.val); err != nil {
			return nil, err
		}
	}
	for _, k := range sortedKeys(o.metadata) {
		if err := doc.set(k, o.metadata[k]); err != nil {
			return nil, fmt.Errorf("metadata key %q: %w", k, err)
		}
	}
	if err := f.writeFileMeta(doc); err != nil {
		return nil, err
	}
	f.log.Debug("created audata file", zap.String("time_origin", FormatTimeOrigin(ref)))
	return f, nil
}

func (f *File) valid() error {
	if f.closed {
		return ErrInvalidHandle
	}
	return nil
}

// Store returns the container holding the file.
func (f *File) Store() container.Store { return f.store }

// fileMeta reads the root metadata document. A missing or unreadable
// document is logged and treated as empty.
func (f *File) fileMeta() (*document, error) {
	if err := f.valid(); err != nil {
		return nil, err
	}
	text, err := f.store.Attr("/", MetaAttr)
	if err != nil {
		if errors.Is(err, container.ErrNotFound) {
			f.log.Warn("file metadata not found")
			return newDocument(), nil
		}
		return nil, storeErr(err)
	}
	doc, err := parseDocument([]byte(text))
	if err != nil {
		f.log.Warn("cannot decode file metadata", zap.String("raw", text), zap.Error(err))
		return newDocument(), nil
	}
	return doc, nil
}

func (f *File) writeFileMeta(doc *document) error {
	text, err := doc.text()
	if err != nil {
		return err
	}
	return storeErr(f.store.SetAttr("/", MetaAttr, text))
}

// FileMeta returns the root metadata document.
func (f *File) FileMeta() (map[string]any, error) {
	doc, err := f.fileMeta()
	if err != nil {
		return nil, err
	}
	return doc.toMap()
}

// TimeReference returns the file's time reference. Files without one, or
// with one that cannot be read, fall back to the Unix epoch.
func (f *File) TimeReference() (time.Time, error) {
	doc, err := f.fileMeta()
	if err != nil {
		return time.Time{}, err
	}
	var origin any
	ok, err := doc.get("time_origin", &origin)
	if err != nil || !ok || origin == nil {
		if legacy, found := f.legacyTimeOrigin(); found {
			origin = legacy
		} else {
			f.log.Warn("no time origin found, imputing epoch time")
			return epoch(), nil
		}
	}
	switch v := origin.(type) {
	case string:
		t, err := ParseTimeOrigin(v)
		if err != nil {
			f.log.Warn("cannot parse time origin, imputing epoch time", zap.Error(err))
			return epoch(), nil
		}
		return t, nil
	case float64:
		return addSeconds(epoch(), v), nil
	default:
		f.log.Warn("time origin has no usable type, imputing epoch time", zap.String("type", fmt.Sprintf("%T", origin)))
		return epoch(), nil
	}
}

func epoch() time.Time { return time.Unix(0, 0).UTC() }

// legacyTimeOrigin reads time.origin from the data attribute of the /.meta
// group, where older writers kept it.
func (f *File) legacyTimeOrigin() (string, bool) {
	text, err := f.store.Attr(legacyMetaGroup, "data")
	if err != nil {
		return "", false
	}
	var data struct {
		Time struct {
			Origin *string `json:"origin"`
		} `json:"time"`
	}
	if err := json.Unmarshal([]byte(text), &data); err != nil || data.Time.Origin == nil {
		f.log.Warn("legacy metadata has no time origin", zap.String("raw", text))
		return "", false
	}
	return *data.Time.Origin, true
}

// SetTimeReference stores a new time reference. Existing time columns keep
// their offsets and so shift with it.
func (f *File) SetTimeReference(t time.Time) error {
	if t.IsZero() {
		return fmt.Errorf("%w: zero time", ErrMissingTimeReference)
	}
	doc, err := f.fileMeta()
	if err != nil {
		return err
	}
	if err := doc.set("time_origin", FormatTimeOrigin(t)); err != nil {
		return err
	}
	return f.writeFileMeta(doc)
}

func (f *File) codecOptions() (CodecOptions, error) {
	ref, err := f.TimeReference()
	if err != nil {
		return CodecOptions{}, err
	}
	return CodecOptions{TimeReference: ref, UnixTimes: f.opts.unixTimes}, nil
}

// Root returns the root group.
func (f *File) Root() *Group { return f.root }

func (f *File) List() (Listing, error)     { return f.root.List() }
func (f *File) Recurse() ([]string, error) { return f.root.Recurse() }
func (f *File) Exists(name string) bool    { return f.root.Exists(name) }
func (f *File) Delete(name string) error   { return f.root.Delete(name) }

func (f *File) NewGroup(name string) (*Group, error) { return f.root.NewGroup(name) }
func (f *File) Group(name string) (*Group, error)    { return f.root.Group(name) }
func (f *File) Dataset(name string) (*Dataset, error) {
	return f.root.Dataset(name)
}

func (f *File) NewDataset(name string, value any, opts ...DatasetOption) (*Dataset, error) {
	return f.root.NewDataset(name, value, opts...)
}

func (f *File) String() string { return f.root.String() }

// Flush writes pending changes to disk.
func (f *File) Flush() error {
	if err := f.valid(); err != nil {
		return err
	}
	return storeErr(f.store.Flush())
}

// Close closes the file. Groups and datasets of the file become invalid.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return storeErr(f.store.Close())
}
