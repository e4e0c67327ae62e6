package cli

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/roach88/objectagent/internal/agenterr"
	"github.com/roach88/objectagent/internal/metadata"
)

// TypeConfig declares one entity type in the config file:
//
//	types:
//	  page:
//	    table: pages
//	    aliases: [page_proxy]
//	    fields:
//	      - {name: id, kind: int, id: true}
//	      - {name: title, kind: string}
//	      - {name: summary, kind: string, nullable: true}
type TypeConfig struct {
	Table   string        `mapstructure:"table"`
	Aliases []string      `mapstructure:"aliases"`
	Fields  []FieldConfig `mapstructure:"fields"`
}

// FieldConfig declares one field of an entity type.
type FieldConfig struct {
	Name     string `mapstructure:"name"`
	Kind     string `mapstructure:"kind"`
	ID       bool   `mapstructure:"id"`
	Parent   bool   `mapstructure:"parent"`
	NodeName bool   `mapstructure:"nodename"`
	Ref      string `mapstructure:"ref"`
	Nullable bool   `mapstructure:"nullable"`
}

// ValidKinds are the field kinds accepted in type declarations.
var ValidKinds = []string{"string", "int", "float", "bool", "time"}

var kindTypes = map[string]reflect.Type{
	"string": reflect.TypeOf(""),
	"int":    reflect.TypeOf(int64(0)),
	"float":  reflect.TypeOf(float64(0)),
	"bool":   reflect.TypeOf(false),
	"time":   reflect.TypeOf(time.Time{}),
}

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// BuildClasses registers a struct type per declared entity type, in name
// order. Parent fields hold any object and need no kind.
func BuildClasses(types map[string]TypeConfig) (*metadata.Registry, error) {
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	slices.Sort(names)

	classes := metadata.NewRegistry()
	for _, name := range names {
		tc := types[name]
		typ, err := structType(name, tc.Fields)
		if err != nil {
			return nil, err
		}
		var opts []metadata.ClassOption
		if tc.Table != "" {
			opts = append(opts, metadata.WithTable(tc.Table))
		}
		if len(tc.Aliases) > 0 {
			opts = append(opts, metadata.WithAliases(tc.Aliases...))
		}
		if _, err := classes.Register(name, reflect.New(typ).Interface(), opts...); err != nil {
			return nil, err
		}
	}
	return classes, nil
}

// structType builds the struct for one entity type. The leading Entity
// field is skipped by metadata; its tag keeps the struct types of types with
// identical fields distinct.
func structType(entity string, fields []FieldConfig) (reflect.Type, error) {
	if len(fields) == 0 {
		return nil, agenterr.InvalidArgument("type %q declares no fields", entity)
	}
	sfs := []reflect.StructField{{
		Name: "Entity",
		Type: reflect.TypeOf(struct{}{}),
		Tag:  reflect.StructTag(fmt.Sprintf(`%s:"-" entity:%q`, metadata.TagName, entity)),
	}}
	used := map[string]bool{"Entity": true}
	for i, f := range fields {
		if f.Name == "" {
			return nil, agenterr.InvalidArgument("type %q: field %d has no name", entity, i)
		}
		typ, err := fieldType(entity, f)
		if err != nil {
			return nil, err
		}
		gn := goName(i, f.Name)
		if used[gn] {
			gn = fmt.Sprintf("%s%d", gn, i)
		}
		used[gn] = true
		sfs = append(sfs, reflect.StructField{
			Name: gn,
			Type: typ,
			Tag:  reflect.StructTag(fmt.Sprintf(`%s:%q`, metadata.TagName, tagValue(f))),
		})
	}
	return reflect.StructOf(sfs), nil
}

func fieldType(entity string, f FieldConfig) (reflect.Type, error) {
	if f.Parent {
		return anyType, nil
	}
	typ, ok := kindTypes[f.Kind]
	if !ok {
		return nil, agenterr.InvalidArgument("type %q: field %q has kind %q, valid kinds: %s",
			entity, f.Name, f.Kind, strings.Join(ValidKinds, ", "))
	}
	if f.Nullable {
		typ = reflect.PointerTo(typ)
	}
	return typ, nil
}

func tagValue(f FieldConfig) string {
	parts := []string{f.Name}
	if f.ID {
		parts = append(parts, "id")
	}
	if f.Parent {
		parts = append(parts, "parent")
	}
	if f.NodeName {
		parts = append(parts, "nodename")
	}
	if f.Ref != "" {
		parts = append(parts, "ref="+f.Ref)
	}
	return strings.Join(parts, ",")
}

// goName derives an exported Go identifier from a field name.
func goName(i int, name string) string {
	var b strings.Builder
	upper := true
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	s := b.String()
	if s == "" || !unicode.IsLetter([]rune(s)[0]) {
		s = fmt.Sprintf("F%d%s", i, s)
	}
	return s
}
