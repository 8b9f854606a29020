package audata

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/robert-malhotra/go-audata/record"
)

// Schema is the ordered column metadata of a dataset. It is stored as the
// JSON document {"columns": {name: {...}}} in the dataset's .meta attribute.
type Schema struct {
	cols []ColumnMeta
}

func NewSchema(cols ...ColumnMeta) *Schema {
	s := &Schema{}
	for _, c := range cols {
		s.Set(c)
	}
	return s
}

func (s *Schema) Len() int { return len(s.cols) }

// Columns returns the columns in document order.
func (s *Schema) Columns() []ColumnMeta {
	out := make([]ColumnMeta, len(s.cols))
	for i, c := range s.cols {
		c.Levels = slices.Clone(c.Levels)
		out[i] = c
	}
	return out
}

func (s *Schema) Names() []string {
	out := make([]string, len(s.cols))
	for i, c := range s.cols {
		out[i] = c.Name
	}
	return out
}

func (s *Schema) Column(name string) (ColumnMeta, bool) {
	for _, c := range s.cols {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnMeta{}, false
}

// Set replaces the column of the same name in place, or appends c.
func (s *Schema) Set(c ColumnMeta) {
	for i := range s.cols {
		if s.cols[i].Name == c.Name {
			s.cols[i] = c
			return
		}
	}
	s.cols = append(s.cols, c)
}

// Merge lays over on top of s: columns keep the order of s, entries of over
// replace those of s, and columns only in over follow at the end.
func (s *Schema) Merge(over *Schema) *Schema {
	out := NewSchema(s.cols...)
	for _, c := range over.cols {
		out.Set(c)
	}
	return out
}

// Equal reports whether both schemas hold the same columns in order.
func (s *Schema) Equal(o *Schema) bool {
	return slices.EqualFunc(s.cols, o.cols, ColumnMeta.Equal)
}

func (s *Schema) document() (*document, error) {
	cols := newDocument()
	for _, c := range s.cols {
		doc := newDocument()
		if err := doc.set("type", c.Type); err != nil {
			return nil, err
		}
		switch c.Type {
		case TypeInteger:
			if err := doc.set("signed", c.Signed); err != nil {
				return nil, err
			}
		case TypeFactor:
			levels := c.Levels
			if levels == nil {
				levels = []string{}
			}
			if err := doc.set("levels", levels); err != nil {
				return nil, err
			}
			if err := doc.set("ordered", c.Ordered); err != nil {
				return nil, err
			}
		}
		raw, err := doc.MarshalJSON()
		if err != nil {
			return nil, err
		}
		cols.setRaw(c.Name, raw)
	}
	raw, err := cols.MarshalJSON()
	if err != nil {
		return nil, err
	}
	top := newDocument()
	top.setRaw("columns", raw)
	return top, nil
}

func (s *Schema) MarshalJSON() ([]byte, error) {
	doc, err := s.document()
	if err != nil {
		return nil, err
	}
	return doc.MarshalJSON()
}

// Text renders the schema as stored: JSON indented with four spaces.
func (s *Schema) Text() (string, error) {
	doc, err := s.document()
	if err != nil {
		return "", err
	}
	return doc.text()
}

func (s *Schema) String() string {
	text, err := s.Text()
	if err != nil {
		return fmt.Sprintf("<schema: %v>", err)
	}
	return text
}

type columnDoc struct {
	Type    ColumnType        `json:"type"`
	Signed  *bool             `json:"signed"`
	Levels  []json.RawMessage `json:"levels"`
	Ordered bool              `json:"ordered"`
}

// ParseSchema reads a stored schema document. A document without a columns
// key is an empty schema. Failures are *SchemaDecodeError.
func ParseSchema(text string) (*Schema, error) {
	fail := func(err error) (*Schema, error) {
		return nil, &SchemaDecodeError{Raw: text, Err: err}
	}
	top, err := parseDocument([]byte(text))
	if err != nil {
		return fail(err)
	}
	s := NewSchema()
	raw, ok := top.vals["columns"]
	if !ok {
		return s, nil
	}
	cols, err := parseDocument(raw)
	if err != nil {
		return fail(fmt.Errorf("columns: %w", err))
	}
	for _, name := range cols.keys {
		var cd columnDoc
		if err := json.Unmarshal(cols.vals[name], &cd); err != nil {
			return fail(fmt.Errorf("column %q: %w", name, err))
		}
		if !cd.Type.valid() {
			return fail(fmt.Errorf("column %q: unknown type %q", name, cd.Type))
		}
		meta := ColumnMeta{Name: name, Type: cd.Type, Ordered: cd.Ordered}
		if cd.Type == TypeInteger {
			meta.Signed = cd.Signed == nil || *cd.Signed
		}
		if cd.Type == TypeFactor {
			meta.Levels = make([]string, len(cd.Levels))
			for i, l := range cd.Levels {
				meta.Levels[i] = levelLabel(l)
			}
		} else {
			meta.Ordered = false
		}
		s.Set(meta)
	}
	return s, nil
}

// levelLabel reads a factor level; non-string levels keep their JSON text.
func levelLabel(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if f, err := strconv.ParseFloat(string(raw), 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return string(raw)
}

// InferSchema derives column metadata from a record layout alone. Factor
// levels and time semantics cannot be recovered this way.
func InferSchema(l record.Layout) *Schema {
	s := NewSchema()
	for _, f := range l.Fields {
		meta := ColumnMeta{Name: f.Name}
		switch f.Kind {
		case record.Int:
			meta.Type, meta.Signed = TypeInteger, true
		case record.Uint:
			meta.Type = TypeInteger
		case record.Float:
			meta.Type = TypeReal
		case record.Bool:
			meta.Type = TypeBoolean
		case record.Complex:
			meta.Type = TypeComplex
		case record.String:
			meta.Type = TypeString
		}
		s.Set(meta)
	}
	return s
}
