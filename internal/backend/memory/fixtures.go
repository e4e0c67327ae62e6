package memory

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/objectagent/internal/agenterr"
)

// LoadFixtures reads a YAML document mapping entity types to lists of
// records and adds them to s:
//
//	page:
//	  - id: 1
//	    title: Hello
//	  - id: 2
//	    title: World
//
// Records keep their listed order.
func LoadFixtures(s *Store, r io.Reader) error {
	var doc map[string][]map[string]any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("decode fixtures: %w", err)
	}

	types := make([]string, 0, len(doc))
	for t := range doc {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, entityType := range types {
		class, ok := s.Classes().Class(entityType)
		if !ok {
			return agenterr.InvalidArgument("fixtures reference unknown type %q", entityType)
		}
		objects := make([]any, 0, len(doc[entityType]))
		for i, record := range doc[entityType] {
			obj := class.New()
			for field, v := range record {
				if err := class.Set(obj, field, v); err != nil {
					return fmt.Errorf("fixture %s[%d]: %w", entityType, i, err)
				}
			}
			objects = append(objects, obj)
		}
		if err := s.AddCollection(entityType, objects...); err != nil {
			return err
		}
	}
	return nil
}
