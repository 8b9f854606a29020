package audata

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// document is a JSON object that keeps its key order.
type document struct {
	keys []string
	vals map[string]json.RawMessage
}

func newDocument() *document {
	return &document{vals: make(map[string]json.RawMessage)}
}

func parseDocument(data []byte) (*document, error) {
	vals := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &vals); err != nil {
		return nil, err
	}
	keys, err := keyOrder(data)
	if err != nil {
		return nil, err
	}
	return &document{keys: keys, vals: vals}, nil
}

// keyOrder lists the top-level keys of a JSON object in text order.
func keyOrder(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	t, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := t.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected a JSON object, found %v", t)
	}
	var keys []string
	seen := make(map[string]bool)
	for dec.More() {
		t, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := t.(string)
		if !ok {
			return nil, fmt.Errorf("expected an object key, found %v", t)
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
		if err := skipValue(dec); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func skipValue(dec *json.Decoder) error {
	depth := 0
	for {
		t, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := t.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
		if depth == 0 {
			return nil
		}
	}
}

func (d *document) has(key string) bool {
	_, ok := d.vals[key]
	return ok
}

// get decodes the value at key into v and reports whether it was present.
func (d *document) get(key string, v any) (bool, error) {
	raw, ok := d.vals[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

func (d *document) set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	d.setRaw(key, raw)
	return nil
}

func (d *document) setRaw(key string, raw json.RawMessage) {
	if _, ok := d.vals[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.vals[key] = raw
}

func (d *document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(d.vals[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// text renders the document indented with four spaces.
func (d *document) text() (string, error) {
	compact, err := d.MarshalJSON()
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "    "); err != nil {
		return "", err
	}
	return out.String(), nil
}

// toMap decodes the document into plain Go values.
func (d *document) toMap() (map[string]any, error) {
	out := make(map[string]any, len(d.keys))
	for _, k := range d.keys {
		var v any
		if err := json.Unmarshal(d.vals[k], &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}
