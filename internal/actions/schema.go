package actions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
)

// Property describes one argument. Validate runs after the type check and
// receives the decoded value (string, json.Number, bool, map or slice).
type Property struct {
	Type        string          `json:"type,omitempty"`
	Description string          `json:"description,omitempty"`
	Enum        []string        `json:"enum,omitempty"`
	Default     any             `json:"default,omitempty"`
	Minimum     *float64        `json:"minimum,omitempty"`
	Maximum     *float64        `json:"maximum,omitempty"`
	Pattern     string          `json:"pattern,omitempty"`
	Items       *Property       `json:"items,omitempty"`
	Validate    func(any) error `json:"-"`
}

type Schema struct {
	Properties map[string]*Property
	Required   []string
}

func (s *Schema) MarshalJSON() ([]byte, error) {
	props := s.Properties
	if props == nil {
		props = map[string]*Property{}
	}
	required := s.Required
	if required == nil {
		required = []string{}
	}
	return json.Marshal(struct {
		Type       string               `json:"type"`
		Properties map[string]*Property `json:"properties"`
		Required   []string             `json:"required"`
	}{"object", props, required})
}

func Float(v float64) *float64 { return &v }

// Validate checks raw arguments and returns them normalized: defaults filled
// in, numbers kept exact. Unknown fields are passed through.
func (s *Schema) Validate(raw json.RawMessage) (json.RawMessage, error) {
	args := map[string]any{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&args); err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "arguments must be a JSON object", err)
		}
		if args == nil {
			args = map[string]any{}
		}
	}
	if s == nil {
		return json.Marshal(args)
	}

	var problems []string
	for _, name := range s.Required {
		if v, ok := args[name]; !ok || v == nil {
			problems = append(problems, fmt.Sprintf("%s: field required", name))
		}
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		prop := s.Properties[name]
		v, ok := args[name]
		if !ok || v == nil {
			if prop.Default != nil {
				args[name] = prop.Default
			}
			continue
		}
		if err := prop.check(v); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(problems) > 0 {
		return nil, clierr.New(clierr.CodeUsage, "invalid arguments: "+strings.Join(problems, "; "))
	}
	return json.Marshal(args)
}

func (p *Property) check(v any) error {
	switch p.Type {
	case "string":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string")
		}
		if len(p.Enum) > 0 && !contains(p.Enum, s) {
			return fmt.Errorf("must be one of %s", strings.Join(p.Enum, ", "))
		}
		if p.Pattern != "" {
			re, err := regexp.Compile(p.Pattern)
			if err != nil {
				return fmt.Errorf("invalid pattern %q", p.Pattern)
			}
			if !re.MatchString(s) {
				return fmt.Errorf("does not match %s", p.Pattern)
			}
		}
	case "integer", "number":
		n, ok := v.(json.Number)
		if !ok {
			return fmt.Errorf("expected %s", p.Type)
		}
		f, err := n.Float64()
		if err != nil {
			return fmt.Errorf("expected %s", p.Type)
		}
		if p.Type == "integer" {
			if _, err := n.Int64(); err != nil {
				return fmt.Errorf("expected integer")
			}
		}
		if p.Minimum != nil && f < *p.Minimum {
			return fmt.Errorf("must be >= %v", *p.Minimum)
		}
		if p.Maximum != nil && f > *p.Maximum {
			return fmt.Errorf("must be <= %v", *p.Maximum)
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected boolean")
		}
	case "object":
		if _, ok := v.(map[string]any); !ok {
			return fmt.Errorf("expected object")
		}
	case "array":
		items, ok := v.([]any)
		if !ok {
			return fmt.Errorf("expected array")
		}
		if p.Items != nil {
			for i, item := range items {
				if err := p.Items.check(item); err != nil {
					return fmt.Errorf("item %d: %w", i, err)
				}
			}
		}
	case "":
	default:
		return fmt.Errorf("unsupported schema type %q", p.Type)
	}
	if p.Validate != nil {
		return p.Validate(v)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
