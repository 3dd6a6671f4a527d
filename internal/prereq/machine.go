package prereq

import (
	"context"
	"net/url"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"m365prov/internal/facts"
	"m365prov/pkg/problems"
	"m365prov/pkg/telemetry"
)

// Lister runs a Graph collection query.
type Lister interface {
	List(ctx context.Context, path string, query url.Values) ([]any, error)
}

// Machine tracks prerequisite state for the connected tenant.
type Machine struct {
	log     *zap.SugaredLogger
	lister  Lister
	metrics *telemetry.Metrics
	defs    []Prerequisite

	mu    sync.Mutex
	state map[Name]Status
}

func NewMachine(lister Lister, log *zap.SugaredLogger, metrics *telemetry.Metrics) *Machine {
	return NewMachineWith(Catalog(), lister, log, metrics)
}

func NewMachineWith(defs []Prerequisite, lister Lister, log *zap.SugaredLogger, metrics *telemetry.Metrics) *Machine {
	m := &Machine{log: log, lister: lister, metrics: metrics, defs: defs}
	m.state = m.initial()
	return m
}

func (m *Machine) initial() map[Name]Status {
	st := make(map[Name]Status, len(m.defs))
	for _, d := range m.defs {
		if d.Check == nil {
			st[d.Name] = Unimplemented
		} else {
			st[d.Name] = NotMet
		}
	}
	return st
}

// Reset forgets everything learned; used when the console switches tenant.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = m.initial()
}

// Probe runs every existence check concurrently. A failing check leaves its
// prerequisite NotMet; Probe itself never fails.
func (m *Machine) Probe(ctx context.Context) map[Name]Status {
	var g errgroup.Group
	g.SetLimit(4)
	for _, d := range m.defs {
		if d.Check == nil {
			continue
		}
		d := d
		g.Go(func() error {
			met := m.check(ctx, d)
			if m.metrics != nil {
				m.metrics.Probes.WithLabelValues(string(d.Name), statusOf(met).String()).Inc()
			}
			if met {
				m.set(d.Name)
			}
			return nil
		})
	}
	_ = g.Wait()
	return m.Snapshot()
}

func (m *Machine) check(ctx context.Context, d Prerequisite) bool {
	items, err := m.lister.List(ctx, d.Check.Path, d.Check.Query)
	if err != nil {
		m.log.Warnw("probe failed", "prerequisite", d.Name, "err", problems.Probe(string(d.Name), err))
		return false
	}
	if items == nil {
		items = []any{}
	}
	v, err := facts.Resolve(d.Check.Fact, map[string]any{"items": items})
	if err != nil {
		m.log.Warnw("probe condition failed", "prerequisite", d.Name, "err", problems.Probe(string(d.Name), err))
		return false
	}
	met := facts.Truthy(v)
	m.log.Infow("probe", "prerequisite", d.Name, "met", met, "objects", len(items))
	return met
}

// set moves a prerequisite to Met unless it is Unimplemented.
func (m *Machine) set(n Name) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.state[n]; ok && st == NotMet {
		m.state[n] = Met
	}
}

// RecordSuccess marks what a successful run of path establishes. Unknown
// paths are a no-op.
func (m *Machine) RecordSuccess(path string) {
	for _, n := range satisfiedBy[pathKey(path)] {
		m.set(n)
		m.log.Infow("prerequisite met", "prerequisite", n, "path", path)
	}
}

// Requirements lists the prerequisites of step with their current status.
func (m *Machine) Requirements(step string) []Requirement {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Requirement
	for _, n := range steps[step] {
		out = append(out, Requirement{Name: n, Title: m.title(n), Status: m.state[n]})
	}
	return out
}

// IsSatisfied is the conjunction of step's prerequisites; steps without
// prerequisites are always satisfied.
func (m *Machine) IsSatisfied(step string) bool {
	return len(m.Missing(step)) == 0
}

// Missing returns the prerequisites of step that are not Met.
func (m *Machine) Missing(step string) []Requirement {
	var out []Requirement
	for _, r := range m.Requirements(step) {
		if r.Status != Met {
			out = append(out, r)
		}
	}
	return out
}

// Unavailable reports whether step depends on an Unimplemented prerequisite.
func (m *Machine) Unavailable(step string) bool {
	for _, r := range m.Requirements(step) {
		if r.Status == Unimplemented {
			return true
		}
	}
	return false
}

func (m *Machine) Snapshot() map[Name]Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Name]Status, len(m.state))
	for k, v := range m.state {
		out[k] = v
	}
	return out
}

// Prerequisites returns the catalog with current status, in display order.
func (m *Machine) Prerequisites() []Requirement {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Requirement, 0, len(m.defs))
	for _, d := range m.defs {
		out = append(out, Requirement{Name: d.Name, Title: d.Title, Status: m.state[d.Name]})
	}
	return out
}

func (m *Machine) title(n Name) string {
	for _, d := range m.defs {
		if d.Name == n {
			return d.Title
		}
	}
	return string(n)
}

func statusOf(met bool) Status {
	if met {
		return Met
	}
	return NotMet
}
