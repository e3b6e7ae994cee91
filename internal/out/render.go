// Package out renders command envelopes as JSON or as plain key=value lines.
package out

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/ggonzalez94/agentkit-go/internal/config"
	"github.com/ggonzalez94/agentkit-go/internal/model"
)

// keyColor highlights keys in plain output. fatih/color turns itself off
// when the process is not attached to a terminal.
var keyColor = color.New(color.FgCyan)

// Render writes env in the configured output mode. --select accepts dotted
// paths such as network.caip2; the selected leaf keeps its full path as key.
func Render(w io.Writer, env model.Envelope, settings config.Settings) error {
	data := env.Data
	if len(settings.SelectFields) > 0 {
		data = selectFields(generic(data), settings.SelectFields)
	}

	var payload any = data
	if !settings.ResultsOnly {
		env.Data = data
		payload = env
	}
	if settings.OutputMode == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}
	return writePlain(w, generic(payload))
}

// generic converts typed values into the map/slice shapes encoding/json
// produces so selection and plain rendering see one representation.
func generic(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}

func selectFields(data any, fields []string) any {
	switch t := data.(type) {
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, pick(m, fields))
			}
		}
		return out
	case map[string]any:
		return pick(t, fields)
	default:
		return data
	}
}

func pick(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := lookup(m, strings.Split(f, ".")); ok {
			out[f] = v
		}
	}
	return out
}

func lookup(m map[string]any, path []string) (any, bool) {
	v, ok := m[path[0]]
	if !ok || len(path) == 1 {
		return v, ok
	}
	next, isMap := v.(map[string]any)
	if !isMap {
		return nil, false
	}
	return lookup(next, path[1:])
}

func writePlain(w io.Writer, v any) error {
	items, isList := v.([]any)
	if !isList {
		_, err := fmt.Fprintln(w, line(v))
		return err
	}
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "[]")
		return err
	}
	for _, item := range items {
		if _, err := fmt.Fprintln(w, line(item)); err != nil {
			return err
		}
	}
	return nil
}

func line(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return scalar(v)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, keyColor.Sprint(k)+"="+scalar(m[k]))
	}
	return strings.Join(parts, " ")
}

// scalar prints strings raw so multi-line action results stay readable;
// nested values are inlined as compact JSON.
func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case map[string]any, []any:
		buf, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(buf)
	default:
		return fmt.Sprintf("%v", t)
	}
}
