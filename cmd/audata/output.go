package main

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/robert-malhotra/go-audata/audata"
)

// emit writes v in the chosen format; text renders the text form.
func (a *app) emit(v any, text func() string) error {
	switch a.format {
	case "json":
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.out, string(b))
		return err
	case "yaml":
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	_, err := fmt.Fprintln(a.out, text())
	return err
}

type columnInfo struct {
	Name    string   `json:"name" yaml:"name"`
	Type    string   `json:"type" yaml:"type"`
	Signed  *bool    `json:"signed,omitempty" yaml:"signed,omitempty"`
	Levels  []string `json:"levels,omitempty" yaml:"levels,omitempty"`
	Ordered bool     `json:"ordered,omitempty" yaml:"ordered,omitempty"`
}

type datasetInfo struct {
	Path    string       `json:"path" yaml:"path"`
	Rows    int          `json:"rows" yaml:"rows"`
	Columns []columnInfo `json:"columns" yaml:"columns"`
}

func describe(ds *audata.Dataset) (datasetInfo, error) {
	rows, err := ds.NumRows()
	if err != nil {
		return datasetInfo{}, err
	}
	cols, err := ds.Columns()
	if err != nil {
		return datasetInfo{}, err
	}
	info := datasetInfo{Path: ds.Path(), Rows: rows}
	for _, c := range cols {
		ci := columnInfo{Name: c.Name, Type: string(c.Type), Levels: c.Levels, Ordered: c.Ordered}
		if c.Type == audata.TypeInteger {
			signed := c.Signed
			ci.Signed = &signed
		}
		info.Columns = append(info.Columns, ci)
	}
	return info, nil
}

// rowSet is a table laid out row by row for json and yaml.
type rowSet struct {
	Columns []string `json:"columns" yaml:"columns"`
	Rows    [][]any  `json:"rows" yaml:"rows"`
}

func toRows(t *audata.Table) rowSet {
	rs := rowSet{Columns: t.Names(), Rows: make([][]any, t.Len())}
	cols := t.Columns()
	for r := range rs.Rows {
		row := make([]any, len(cols))
		for i, c := range cols {
			row[i] = cellValue(c.Values, r)
		}
		rs.Rows[r] = row
	}
	return rs
}

// cellValue returns row r of a column in a form json and yaml can encode.
// Missing factor values are nil.
func cellValue(values any, r int) any {
	switch v := values.(type) {
	case audata.Factor:
		if l, ok := v.Label(r); ok {
			return l
		}
		return nil
	case []time.Time:
		return v[r].Format(time.RFC3339Nano)
	case []time.Duration:
		return v[r].String()
	case []complex64:
		return fmt.Sprint(v[r])
	case []complex128:
		return fmt.Sprint(v[r])
	}
	return reflect.ValueOf(values).Index(r).Interface()
}

func tableText(t *audata.Table) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(t.Names(), "\t"))
	rs := toRows(t)
	for _, row := range rs.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			if c == nil {
				cells[i] = "NA"
				continue
			}
			cells[i] = fmt.Sprint(c)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

func sortedAttrNames(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
