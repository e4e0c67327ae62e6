package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/objectagent/internal/query"
)

// LoadError represents an error that occurred while reading an input file.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants for input handling.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeNotFound      = "E002" // Input file not found
	ErrCodeUnknownFormat = "E003" // File extension not recognized
	ErrCodeParseFailed   = "E004" // YAML or JSON parse error
	ErrCodeBuildFailed   = "E005" // CUE build or validation failed
	ErrCodeNotAnObject   = "E006" // Document root is not a map
	ErrCodeConfig        = "E007" // Config file error
)

// QueryFormats are the accepted input file extensions.
var QueryFormats = []string{".cue", ".yaml", ".yml", ".json"}

// LoadQuery reads a query document and converts it with query.FromMap:
//
//	from: page
//	criteria:
//	  eq: {title: Hello}
//	  or:
//	    lt: {rank: 3}
//	    null: {summary: true}
//	orderings: {rank: desc}
//	maxResults: 10
func LoadQuery(path string) (*query.Query, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	return query.FromMap(doc)
}

// LoadDocument reads a CUE, YAML or JSON file whose root is a map. Whole
// JSON and CUE numbers decode to int64, others to float64. Multi-key
// mappings under selects, criteria, having, orderings and join conditions
// become lists of single-key mappings in document order.
func LoadDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error reading %s: %v", path, err)}
	}

	var doc any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue":
		doc, err = decodeCUE(path, data)
	case ".yaml", ".yml":
		doc, err = decodeYAML(data)
	case ".json":
		doc, err = decodeJSON(data)
	default:
		return nil, &LoadError{Code: ErrCodeUnknownFormat, Message: fmt.Sprintf("unknown format %q, expected one of %s", ext, strings.Join(QueryFormats, ", "))}
	}
	if err != nil {
		return nil, err
	}

	m, ok := doc.(map[string]any)
	if !ok {
		return nil, &LoadError{Code: ErrCodeNotAnObject, Message: fmt.Sprintf("%s: document must be a map, got %T", path, doc)}
	}
	return m, nil
}

func decodeCUE(path string, data []byte) (any, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, cueLoadError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(err)
	}
	js, err := v.MarshalJSON()
	if err != nil {
		return nil, cueLoadError(err)
	}
	return decodeJSON(js)
}

// cueLoadError keeps the position of the first CUE error.
func cueLoadError(err error) *LoadError {
	loadErr := &LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return loadErr
	}
	loadErr.Message = errs[0].Error()
	if positions := cueerrors.Positions(errs[0]); len(positions) > 0 {
		loadErr.Pos = positions[0]
	}
	return loadErr
}

func decodeYAML(data []byte) (any, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("parsing YAML: %v", err)}
	}
	v, err := fromNode(&node)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("parsing YAML: %v", err)}
	}
	return document(v), nil
}

// fromNode decodes node keeping mapping keys in document order.
func fromNode(node *yaml.Node) (any, error) {
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, nil
		}
		return fromNode(node.Content[0])
	case yaml.AliasNode:
		return fromNode(node.Alias)
	case yaml.MappingNode:
		m := make(mapping, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var key string
			if err := node.Content[i].Decode(&key); err != nil {
				return nil, err
			}
			v, err := fromNode(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			m = append(m, pair{key: key, value: v})
		}
		return m, nil
	case yaml.SequenceNode:
		list := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			v, err := fromNode(item)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	default:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := readJSON(dec)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("parsing JSON: %v", err)}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: "parsing JSON: trailing data after document"}
	}
	return document(v), nil
}

// readJSON reads one value token by token, keeping object keys in document
// order. Whole numbers decode to int64, others to float64.
func readJSON(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			var m mapping
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key must be a string, got %v", keyTok)
				}
				v, err := readJSON(dec)
				if err != nil {
					return nil, err
				}
				m = append(m, pair{key: key, value: v})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			if m == nil {
				m = mapping{}
			}
			return m, nil
		case '[':
			list := []any{}
			for dec.More() {
				v, err := readJSON(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		default:
			return nil, fmt.Errorf("unexpected %v", t)
		}
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return t, nil
	}
}

// pair is one key of a mapping.
type pair struct {
	key   string
	value any
}

// mapping is a decoded mapping in document order.
type mapping []pair

// orderedKeys are the query keys whose mapping form carries priority or
// evaluation order.
var orderedKeys = map[string]bool{"selects": true, "criteria": true, "having": true, "orderings": true}

// document turns decoded values into the plain form. At the root, the
// values of orderedKeys and of a join "condition" keep their key order as
// lists of single-key mappings, the form query.FromMap visits in list order.
func document(v any) any {
	m, ok := v.(mapping)
	if !ok {
		return plain(v)
	}
	out := make(map[string]any, len(m))
	for _, p := range m {
		switch {
		case orderedKeys[p.key]:
			out[p.key] = sequence(p.value)
		case p.key == "joins":
			out[p.key] = joins(p.value)
		default:
			out[p.key] = plain(p.value)
		}
	}
	return out
}

func joins(v any) any {
	list, ok := v.([]any)
	if !ok {
		return plain(v)
	}
	out := make([]any, len(list))
	for i, item := range list {
		m, ok := item.(mapping)
		if !ok {
			out[i] = plain(item)
			continue
		}
		join := make(map[string]any, len(m))
		for _, p := range m {
			if p.key == "condition" {
				join[p.key] = sequence(p.value)
			} else {
				join[p.key] = plain(p.value)
			}
		}
		out[i] = join
	}
	return out
}

// plain converts mappings to map[string]any.
func plain(v any) any {
	switch v := v.(type) {
	case mapping:
		out := make(map[string]any, len(v))
		for _, p := range v {
			out[p.key] = plain(p.value)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = plain(e)
		}
		return out
	}
	return v
}

// sequence converts mappings with several keys into lists of single-key
// mappings, recursively.
func sequence(v any) any {
	switch v := v.(type) {
	case mapping:
		if len(v) <= 1 {
			out := make(map[string]any, len(v))
			for _, p := range v {
				out[p.key] = sequence(p.value)
			}
			return out
		}
		out := make([]any, len(v))
		for i, p := range v {
			out[i] = map[string]any{p.key: sequence(p.value)}
		}
		return out
	case []any:
		out := make([]any, 0, len(v))
		for _, e := range v {
			// A multi-key item joins the surrounding list in place.
			if m, ok := e.(mapping); ok && len(m) > 1 {
				out = append(out, sequence(m).([]any)...)
				continue
			}
			out = append(out, sequence(e))
		}
		return out
	}
	return v
}
