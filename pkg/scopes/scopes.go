package scopes

import (
	"sort"
	"strings"
)

const GraphResource = "https://graph.microsoft.com/"

// Set is an order-independent, duplicate-insensitive set of permission
// scopes. Names compare case-insensitively and without their resource prefix,
// so "https://graph.microsoft.com/Group.Read.All" equals "group.read.all".
type Set struct {
	m map[string]string // normalized -> first spelling seen
}

func New(scopes ...string) Set {
	s := Set{m: make(map[string]string, len(scopes))}
	for _, sc := range scopes {
		s.add(sc)
	}
	return s
}

// Parse splits a space separated scope claim ("scp").
func Parse(claim string) Set { return New(strings.Fields(claim)...) }

func (s *Set) add(sc string) {
	sc = strings.TrimSpace(sc)
	if sc == "" {
		return
	}
	key := normalize(sc)
	if _, ok := s.m[key]; ok {
		return
	}
	s.m[key] = trimResource(sc)
}

func normalize(sc string) string { return strings.ToLower(trimResource(sc)) }

func trimResource(sc string) string {
	if i := strings.LastIndex(sc, "/"); i >= 0 && strings.Contains(sc, "://") {
		return sc[i+1:]
	}
	return sc
}

func (s Set) Len() int { return len(s.m) }

func (s Set) Has(sc string) bool {
	_, ok := s.m[normalize(sc)]
	return ok
}

// Equal is set equality: same members regardless of order, case or duplicates.
func (s Set) Equal(o Set) bool {
	if len(s.m) != len(o.m) {
		return false
	}
	for k := range s.m {
		if _, ok := o.m[k]; !ok {
			return false
		}
	}
	return true
}

// IsSubsetOf reports whether every member of s is in o.
func (s Set) IsSubsetOf(o Set) bool {
	for k := range s.m {
		if _, ok := o.m[k]; !ok {
			return false
		}
	}
	return true
}

func (s Set) Contains(o Set) bool { return o.IsSubsetOf(s) }

func (s Set) Union(o Set) Set {
	out := New()
	for _, v := range s.m {
		out.add(v)
	}
	for _, v := range o.m {
		out.add(v)
	}
	return out
}

// Missing returns the members of required not present in s, sorted.
func (s Set) Missing(required Set) []string {
	var out []string
	for k, v := range required.m {
		if _, ok := s.m[k]; !ok {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// Slice returns the unqualified scope names sorted case-insensitively.
func (s Set) Slice() []string {
	out := make([]string, 0, len(s.m))
	for _, v := range s.m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}

// Qualified prefixes every member with resource, the form token requests use.
// OIDC scopes (openid, profile, offline_access, email) stay bare.
func (s Set) Qualified(resource string) []string {
	names := s.Slice()
	out := make([]string, 0, len(names))
	for _, n := range names {
		switch strings.ToLower(n) {
		case "openid", "profile", "offline_access", "email":
			out = append(out, n)
		default:
			out = append(out, strings.TrimRight(resource, "/")+"/"+n)
		}
	}
	return out
}

func (s Set) String() string { return strings.Join(s.Slice(), " ") }
