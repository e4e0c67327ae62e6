package cli

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/objectagent/internal/agent"
	"github.com/roach88/objectagent/internal/metadata"
)

// Record is an object rendered for output.
type Record struct {
	Type   string         `json:"type,omitempty" yaml:"type,omitempty"`
	Fields map[string]any `json:"fields" yaml:"fields"`
}

// renderObject turns an entity into a Record. Parent objects are replaced
// by their identifier. Projected rows (map[string]any) are kept as is.
func renderObject(classes *metadata.Registry, a agent.Agent, obj any) (Record, error) {
	if row, ok := obj.(map[string]any); ok {
		return Record{Fields: row}, nil
	}
	class, ok := classes.ClassOf(obj)
	if !ok {
		return Record{}, fmt.Errorf("no class registered for %T", obj)
	}
	values, err := class.Values(obj)
	if err != nil {
		return Record{}, err
	}
	if f, ok := class.ParentField(); ok && values[f.Name] != nil {
		id, err := a.Identifier(values[f.Name])
		if err != nil {
			return Record{}, fmt.Errorf("identify parent: %w", err)
		}
		values[f.Name] = id
	}
	for k, v := range values {
		if t, ok := v.(time.Time); ok {
			values[k] = t.Format(time.RFC3339Nano)
		}
	}
	return Record{Type: class.Name(), Fields: values}, nil
}

// writeRecords prints records as a YAML sequence of field maps, keys in
// name order.
func writeRecords(w io.Writer, records []Record) error {
	rows := make([]map[string]any, len(records))
	for i, r := range records {
		rows[i] = r.Fields
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rows); err != nil {
		return err
	}
	return enc.Close()
}
