package audata

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-audata/container"
)

var (
	ErrAlreadyExists            = errors.New("audata: already exists")
	ErrNotFound                 = errors.New("audata: not found")
	ErrInvalidParent            = errors.New("audata: invalid parent")
	ErrInvalidHandle            = errors.New("audata: invalid handle")
	ErrUnsupportedColumnType    = errors.New("audata: unsupported column type")
	ErrMissingTimeReference     = errors.New("audata: missing time reference")
	ErrInvalidAppendMode        = errors.New("audata: invalid append mode")
	ErrSchemaDecode             = errors.New("audata: cannot decode schema")
	ErrIncompatibleFactorLevels = errors.New("audata: incompatible factor levels")
	ErrIncompatibleSchema       = errors.New("audata: incompatible schema")
	ErrIndexOutOfRange          = errors.New("audata: index out of range")
	ErrReadOnly                 = errors.New("audata: read-only")
)

// SchemaDecodeError reports stored metadata text that could not be parsed.
type SchemaDecodeError struct {
	Raw string
	Err error
}

func (e *SchemaDecodeError) Error() string {
	return fmt.Sprintf("audata: cannot decode schema %q: %v", truncate(e.Raw, 80), e.Err)
}

func (e *SchemaDecodeError) Is(target error) bool { return target == ErrSchemaDecode }
func (e *SchemaDecodeError) Unwrap() error        { return e.Err }

// UnsupportedColumnTypeError names a column the classifier cannot map.
type UnsupportedColumnTypeError struct {
	Column string
	Value  any
}

func (e *UnsupportedColumnTypeError) Error() string {
	return fmt.Sprintf("audata: column %q: unsupported column type %T", e.Column, e.Value)
}

func (e *UnsupportedColumnTypeError) Unwrap() error { return ErrUnsupportedColumnType }

// storeErr maps container errors onto the audata taxonomy, keeping the cause.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	for _, m := range []struct{ from, to error }{
		{container.ErrNotFound, ErrNotFound},
		{container.ErrExists, ErrAlreadyExists},
		{container.ErrNotGroup, ErrInvalidParent},
		{container.ErrNotBlob, ErrInvalidParent},
		{container.ErrClosed, ErrInvalidHandle},
		{container.ErrReadOnly, ErrReadOnly},
		{container.ErrRange, ErrIndexOutOfRange},
	} {
		if errors.Is(err, m.from) {
			return fmt.Errorf("%w: %w", m.to, err)
		}
	}
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
