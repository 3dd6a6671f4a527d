package dispatch

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_\.]+)\s*\}\}`)
	pathParamRe   = regexp.MustCompile(`\{([a-zA-Z0-9_\.]+)\}`)
)

// lookup resolves a dotted key (a.b.c) over nested maps.
func lookup(vars map[string]any, key string) (any, bool) {
	cur := any(vars)
	for _, seg := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// resolveString substitutes {{key}} placeholders. A string that is exactly
// one placeholder yields the raw value so lists and objects survive.
func resolveString(s string, vars map[string]any) (any, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	if g := placeholderRe.FindStringSubmatch(s); g != nil && g[0] == strings.TrimSpace(s) {
		v, ok := lookup(vars, g[1])
		if !ok {
			return nil, fmt.Errorf("unresolved placeholder {{%s}}", g[1])
		}
		return v, nil
	}
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := lookup(vars, key)
		if !ok {
			missing = append(missing, key)
			return m
		}
		return fmt.Sprintf("%v", v)
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("unresolved placeholder {{%s}}", missing[0])
	}
	return out, nil
}

func resolveText(s string, vars map[string]any) (string, error) {
	v, err := resolveString(s, vars)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", v), nil
}

// resolveValue walks a YAML body and resolves every string in it.
func resolveValue(v any, vars map[string]any) (any, error) {
	switch t := v.(type) {
	case string:
		return resolveString(t, vars)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			rv, err := resolveValue(val, vars)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			rv, err := resolveValue(val, vars)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// resolvePath binds {{key}} placeholders, then {name} path parameters. Every
// bound value is escaped as a single path segment, and the call fails when
// any placeholder is left.
func resolvePath(p string, vars map[string]any) (string, error) {
	var missing []string
	p = placeholderRe.ReplaceAllStringFunc(p, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := lookup(vars, key)
		if !ok {
			missing = append(missing, key)
			return m
		}
		return url.PathEscape(fmt.Sprint(v))
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unresolved placeholder {{%s}}", missing[0])
	}
	p = pathParamRe.ReplaceAllStringFunc(p, func(m string) string {
		v, ok := lookup(vars, strings.Trim(m, "{}"))
		if !ok {
			return m
		}
		val := url.PathEscape(fmt.Sprint(v))
		if val == "" {
			return m
		}
		return val
	})
	if strings.ContainsAny(p, "{}") {
		return "", fmt.Errorf("unresolved path parameters in %q", p)
	}
	return p, nil
}
