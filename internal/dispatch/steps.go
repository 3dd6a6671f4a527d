package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"go.uber.org/zap"

	"m365prov/internal/facts"
	"m365prov/pkg/artifact"
	"m365prov/pkg/graph"
)

// runSteps executes an artifact's request templates in order against c.
// Values captured by one step are visible to the following ones.
func runSteps(ctx context.Context, c *graph.Client, art *artifact.Artifact, vars map[string]any, log *zap.SugaredLogger) (map[string]any, error) {
	var trace []map[string]any
	captured := map[string]any{}
	for i, st := range art.Steps {
		name := st.Name
		if name == "" {
			name = fmt.Sprintf("step-%d", i+1)
		}
		items := st.Items
		if len(items) == 0 {
			items = []map[string]any{nil}
		}
		for n, item := range items {
			if item != nil {
				vars["item"] = item
				vars["index"] = n
			}
			rec, err := runStep(ctx, c, st, vars, captured)
			rec["step"] = name
			trace = append(trace, rec)
			if err != nil {
				log.Warnw("step failed", "artifact", art.Name, "step", name, "item", n, "err", err)
				return map[string]any{"steps": trace, "captured": captured}, fmt.Errorf("%s: %w", name, err)
			}
			log.Debugw("step done", "artifact", art.Name, "step", name, "status", rec["status"])
		}
		delete(vars, "item")
		delete(vars, "index")
	}
	return map[string]any{"steps": trace, "captured": captured}, nil
}

func runStep(ctx context.Context, c *graph.Client, st artifact.Step, vars, captured map[string]any) (map[string]any, error) {
	rec := map[string]any{}
	path, err := resolvePath(st.Path, vars)
	if err != nil {
		return rec, err
	}
	method := st.Method
	if method == "" {
		method = http.MethodGet
	}
	rec["method"], rec["path"] = method, path

	req := graph.Request{Method: method, Path: path, Headers: map[string]string{}}
	// stable order for testing/logging
	keys := make([]string, 0, len(st.Query))
	for k := range st.Query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		req.Query = url.Values{}
	}
	for _, k := range keys {
		v, err := resolveText(st.Query[k], vars)
		if err != nil {
			return rec, err
		}
		req.Query.Set(k, v)
	}
	for k, v := range st.Headers {
		hv, err := resolveText(v, vars)
		if err != nil {
			return rec, err
		}
		req.Headers[k] = hv
	}
	if st.Body != nil {
		if req.Body, err = resolveValue(st.Body, vars); err != nil {
			return rec, err
		}
	}

	resp, err := c.Do(ctx, req)
	var apiErr *graph.APIError
	switch {
	case err == nil:
		rec["status"] = resp.Status
		if len(st.Expect) > 0 && !expected(st.Expect, resp.Status) {
			return rec, fmt.Errorf("unexpected status %d", resp.Status)
		}
	case errors.As(err, &apiErr) && expected(st.Expect, apiErr.Status):
		// e.g. 409 for objects that already exist
		rec["status"] = apiErr.Status
		rec["note"] = apiErr.Error()
	default:
		if apiErr != nil {
			rec["status"] = apiErr.Status
		}
		return rec, err
	}

	for k, c := range st.Capture {
		v, err := facts.Resolve(facts.Mapping{Path: c.Path, Transform: c.Transform, TransformArgs: c.Args}, resp.Body)
		if err != nil {
			return rec, fmt.Errorf("capture %s: %w", k, err)
		}
		captured[k] = v
		vars[k] = v
	}
	return rec, nil
}

func expected(codes []int, status int) bool {
	for _, c := range codes {
		if c == status {
			return true
		}
	}
	return false
}
