package dispatch

import (
	"m365prov/pkg/problems"
)

// Result is the outcome of one dispatch: either Ok with the handler's
// payload or Err with the reason. The zero value is an Err.
type Result struct {
	ok      bool
	payload map[string]any
	err     error
}

func Ok(payload map[string]any) Result { return Result{ok: true, payload: payload} }

func Err(err error) Result {
	if err == nil {
		err = problems.Newf(problems.KindDispatch, "action failed", "no reason given")
	}
	return Result{err: err}
}

func (r Result) OK() bool { return r.ok }

func (r Result) Payload() map[string]any { return r.payload }

func (r Result) Err() error {
	if r.ok {
		return nil
	}
	if r.err == nil {
		return problems.Newf(problems.KindDispatch, "action failed", "empty result")
	}
	return r.err
}

// Kind classifies a failure; empty for Ok.
func (r Result) Kind() problems.Kind {
	if r.ok {
		return ""
	}
	return problems.KindOf(r.Err())
}

// Reason is the message shown to the operator for a failure.
func (r Result) Reason() string {
	if r.ok {
		return ""
	}
	return r.Err().Error()
}
