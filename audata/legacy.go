package audata

import (
	"fmt"
	"strings"

	"github.com/robert-malhotra/go-audata/container"
	"github.com/robert-malhotra/go-audata/record"
)

// Older writers kept file metadata in the data attribute of this group.
const legacyMetaGroup = "/.meta"

// They also kept string columns outside the record, one blob per column
// under this group.
const sideTableRoot = legacyMetaGroup + "/strings"

func sideTablePath(dataset, column string) string {
	return container.Join(sideTableRoot, strings.TrimPrefix(dataset, "/")+"/"+column)
}

// readSideTable returns the strings of column for the rows of sp.
func readSideTable(f *File, dataset, column string, sp span) ([]string, error) {
	p := sideTablePath(dataset, column)
	b, err := f.store.ReadRows(p, sp.start, sp.end())
	if err != nil {
		return nil, fmt.Errorf("string column %q: %w", column, storeErr(err))
	}
	if sp.step > 1 {
		if b, err = b.Take(sp.indices()); err != nil {
			return nil, err
		}
	}
	for _, fld := range b.Layout().Fields {
		if fld.Kind == record.String {
			return b.Strings(fld.Name), nil
		}
	}
	return nil, fmt.Errorf("%w: side table %s holds no strings", ErrIncompatibleSchema, p)
}
