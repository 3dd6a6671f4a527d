package problems

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Kind classifies a failure for the shell and the run journal.
type Kind string

const (
	KindAuth     Kind = "auth"
	KindFetch    Kind = "fetch"
	KindDispatch Kind = "dispatch"
	KindProbe    Kind = "probe"
	KindPolicy   Kind = "policy"
	KindConfig   Kind = "config"
)

// Problem is the error type returned across package boundaries.
type Problem struct {
	Kind   Kind
	Title  string
	Detail string
	Err    error
}

func (p *Problem) Error() string {
	msg := p.Title
	if p.Detail != "" {
		msg += ": " + p.Detail
	}
	if p.Err != nil {
		msg += ": " + p.Err.Error()
	}
	return msg
}

func (p *Problem) Unwrap() error { return p.Err }

// Type is the problem type URI recorded with failed runs.
func (p *Problem) Type() string { return Type(string(p.Kind)) }

func New(kind Kind, title string, err error) *Problem {
	return &Problem{Kind: kind, Title: title, Err: err}
}

func Newf(kind Kind, title, format string, args ...any) *Problem {
	return &Problem{Kind: kind, Title: title, Detail: fmt.Sprintf(format, args...)}
}

func Auth(err error) *Problem { return New(KindAuth, "authentication failed", err) }
func Fetch(path string, err error) *Problem {
	return &Problem{Kind: KindFetch, Title: "artifact unavailable", Detail: path, Err: err}
}
func Dispatch(err error) *Problem { return New(KindDispatch, "action failed", err) }
func Probe(name string, err error) *Problem {
	return &Problem{Kind: KindProbe, Title: "probe failed", Detail: name, Err: err}
}

// Is reports whether err carries a Problem of the given kind.
func Is(err error, kind Kind) bool {
	var p *Problem
	if errors.As(err, &p) {
		return p.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, KindDispatch when it carries none.
func KindOf(err error) Kind {
	var p *Problem
	if errors.As(err, &p) {
		return p.Kind
	}
	return KindDispatch
}

// Base returns the base URL for problem type identifiers.
// Order of precedence:
// 1. PROBLEM_BASE_URL (exact base, e.g. https://mydomain.com/problems)
// 2. https://m365prov.dev/problems (fallback)
func Base() string {
	if b := os.Getenv("PROBLEM_BASE_URL"); b != "" {
		return strings.TrimRight(b, "/")
	}
	return "https://m365prov.dev/problems"
}

// Type builds a full problem type URL for the given slug.
func Type(slug string) string { return Base() + "/" + slug }
