package schema

import (
	"fmt"
	"strings"
)

// Destination captures where a stage writes its output.
type Destination string

const (
	DestinationLocal Destination = "local"
	DestinationS3    Destination = "s3"
)

// Field captures the minimal behavior-relevant schema fields.
type Field struct {
	Name     string
	Type     string
	Nullable bool
}

// Contract is the logical column contract of a CSV produced or consumed by a stage.
type Contract struct {
	Fields []Field
}

// Names returns the column names in contract order.
func (c Contract) Names() []string {
	out := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		out = append(out, f.Name)
	}
	return out
}

// Index maps a CSV header onto column positions and checks that every
// non-nullable field is present. Header names are matched case-insensitively.
func (c Contract) Index(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := index[key]; dup {
			continue
		}
		index[key] = i
	}
	out := make(map[string]int, len(c.Fields))
	for _, f := range c.Fields {
		i, ok := index[strings.ToLower(f.Name)]
		if !ok {
			if !f.Nullable {
				return nil, fmt.Errorf("missing required column %q", f.Name)
			}
			continue
		}
		out[f.Name] = i
	}
	return out, nil
}

// ResolveDestination classifies an output location. s3://bucket/key URIs go to
// S3; everything else is a local path.
func ResolveDestination(raw string) Destination {
	s := strings.TrimSpace(strings.ToLower(raw))
	if strings.HasPrefix(s, "s3://") {
		return DestinationS3
	}
	return DestinationLocal
}
