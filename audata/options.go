package audata

import (
	"time"

	"go.uber.org/zap"

	"github.com/robert-malhotra/go-audata/container"
)

// FileOption configures Create and Open.
type FileOption func(*fileOptions)

type fileOptions struct {
	overwrite     bool
	create        bool
	readOnly      bool
	timeReference time.Time
	metadata      map[string]any
	log           *zap.Logger
	unixTimes     bool
	blob          container.BlobOptions
}

func defaultFileOptions() *fileOptions {
	return &fileOptions{
		readOnly: true,
		log:      zap.NewNop(),
		blob:     container.DefaultBlobOptions(),
	}
}

// WithOverwrite lets Create truncate an existing file.
func WithOverwrite() FileOption {
	return func(o *fileOptions) { o.overwrite = true }
}

// WithCreate lets Open create a missing file.
func WithCreate() FileOption {
	return func(o *fileOptions) { o.create = true }
}

// WithReadOnly sets whether Open grants write access. Files are opened
// read-only unless told otherwise.
func WithReadOnly(readOnly bool) FileOption {
	return func(o *fileOptions) { o.readOnly = readOnly }
}

// WithTimeReference sets the time reference of a new file. The default is
// the creation instant.
func WithTimeReference(t time.Time) FileOption {
	return func(o *fileOptions) { o.timeReference = t }
}

// WithMetadata adds keys to the root metadata document of a new file.
func WithMetadata(meta map[string]any) FileOption {
	return func(o *fileOptions) { o.metadata = meta }
}

func WithLogger(log *zap.Logger) FileOption {
	return func(o *fileOptions) {
		if log != nil {
			o.log = log
		}
	}
}

// WithUnixTimes makes reads return time columns as Unix seconds.
func WithUnixTimes() FileOption {
	return func(o *fileOptions) { o.unixTimes = true }
}

// WithChunkRows sets the chunk length of new datasets.
func WithChunkRows(n int) FileOption {
	return func(o *fileOptions) {
		if n > 0 {
			o.blob.ChunkRows = n
		}
	}
}

// WithCompressionLevel sets the deflate level of new datasets; 0 stores
// them uncompressed.
func WithCompressionLevel(level int) FileOption {
	return func(o *fileOptions) {
		if level >= 0 && level <= 9 {
			o.blob.CompressionLevel = level
		}
	}
}

type datasetOptions struct {
	overwrite        bool
	timeColumns      []string
	timedeltaColumns []string
	chunkRows        int
}

type appendOptions struct {
	direct           bool
	timeColumns      []string
	timedeltaColumns []string
}

// DatasetOption configures NewDataset.
type DatasetOption interface {
	applyDataset(*datasetOptions)
}

// AppendOption configures Dataset.Append.
type AppendOption interface {
	applyAppend(*appendOptions)
}

// CodecOption applies to both NewDataset and Append.
type CodecOption interface {
	DatasetOption
	AppendOption
}

type datasetOptionFunc func(*datasetOptions)

func (f datasetOptionFunc) applyDataset(o *datasetOptions) { f(o) }

type appendOptionFunc func(*appendOptions)

func (f appendOptionFunc) applyAppend(o *appendOptions) { f(o) }

type overrideOption struct {
	timedelta bool
	names     []string
}

func (c overrideOption) applyDataset(o *datasetOptions) {
	if c.timedelta {
		o.timedeltaColumns = append(o.timedeltaColumns, c.names...)
	} else {
		o.timeColumns = append(o.timeColumns, c.names...)
	}
}

func (c overrideOption) applyAppend(o *appendOptions) {
	if c.timedelta {
		o.timedeltaColumns = append(o.timedeltaColumns, c.names...)
	} else {
		o.timeColumns = append(o.timeColumns, c.names...)
	}
}

// TimeColumns names numeric columns holding seconds from the time reference.
func TimeColumns(names ...string) CodecOption {
	return overrideOption{names: names}
}

// TimedeltaColumns names numeric columns holding durations in seconds.
func TimedeltaColumns(names ...string) CodecOption {
	return overrideOption{timedelta: true, names: names}
}

// Overwrite replaces an existing object of the same name.
func Overwrite() DatasetOption {
	return datasetOptionFunc(func(o *datasetOptions) { o.overwrite = true })
}

// ChunkRows overrides the file's chunk length for one dataset.
func ChunkRows(n int) DatasetOption {
	return datasetOptionFunc(func(o *datasetOptions) { o.chunkRows = n })
}

// Direct appends a record batch already in the dataset's layout, skipping
// the encoder.
func Direct() AppendOption {
	return appendOptionFunc(func(o *appendOptions) { o.direct = true })
}

// ReadOption configures Dataset.Get.
type ReadOption func(*readOptions)

type readOptions struct {
	datetimes bool
}

// Datetimes chooses between time.Time values (true) and Unix seconds
// (false) for time columns.
func Datetimes(on bool) ReadOption {
	return func(o *readOptions) { o.datetimes = on }
}
