package facts

import (
	"fmt"
	"strconv"
	"strings"

	jmes "github.com/jmespath/go-jmespath"
)

// Mapping extracts one fact from a JSON document: a JMESPath expression
// followed by an optional transform.
type Mapping struct {
	Path          string
	Transform     string
	TransformArgs []any
}

// Resolve applies a mapping to doc.
func Resolve(m Mapping, doc any) (any, error) {
	val, err := jmes.Search(m.Path, doc)
	if err != nil {
		return nil, fmt.Errorf("jmespath %q: %w", m.Path, err)
	}
	if m.Transform == "" {
		return val, nil
	}
	return applyTransform(m.Transform, val, m.TransformArgs...)
}

// Known reports whether name is a transform Resolve understands; the empty
// name means no transform.
func Known(name string) bool {
	switch name {
	case "", "count", "exists", "any", "all", "covers", "first", "to_number", "to_string":
		return true
	}
	return false
}

func applyTransform(name string, v any, args ...any) (any, error) {
	switch name {
	case "count":
		if arr, ok := v.([]any); ok {
			return len(arr), nil
		}
		return 0, nil
	case "exists":
		return v != nil, nil
	case "any":
		if arr, ok := v.([]any); ok {
			return len(arr) > 0, nil
		}
		return v != nil, nil
	case "all":
		if len(args) == 1 {
			src := toArray(v)
			pred, _ := args[0].(string)
			if len(src) == 0 {
				return false, nil
			}
			for _, it := range src {
				if !matchPredicate(it, pred) {
					return false, nil
				}
			}
			return true, nil
		}
		if arr, ok := v.([]any); ok {
			return len(arr) > 0, nil
		}
		return v != nil, nil
	case "covers":
		// every arg appears in v (case-insensitive for strings)
		have := map[string]bool{}
		for _, it := range toArray(v) {
			have[strings.ToLower(fmt.Sprint(it))] = true
		}
		for _, want := range args {
			if !have[strings.ToLower(fmt.Sprint(want))] {
				return false, nil
			}
		}
		return true, nil
	case "first":
		if arr, ok := v.([]any); ok {
			if len(arr) > 0 {
				return arr[0], nil
			}
			return nil, nil
		}
		return v, nil
	case "to_number":
		switch t := v.(type) {
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if err != nil {
				return 0, nil
			}
			return f, nil
		default:
			return toFloat(v), nil
		}
	case "to_string":
		return fmt.Sprintf("%v", v), nil
	default:
		return nil, fmt.Errorf("unknown transform %q", name)
	}
}

// Truthy reports whether a resolved fact counts as satisfied.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return strings.TrimSpace(t) != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}

func toArray(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	default:
		if v == nil {
			return nil
		}
		return []any{v}
	}
}

// Very limited predicate support: field=='value'
func matchPredicate(v any, pred string) bool {
	parts := strings.Split(pred, "==")
	if len(parts) != 2 {
		return false
	}
	left := strings.TrimSpace(parts[0])
	right := strings.Trim(strings.TrimSpace(parts[1]), "'\"")
	if m, ok := v.(map[string]any); ok {
		if lv, ok := m[left]; ok {
			return fmt.Sprint(lv) == right
		}
	}
	return false
}
