package journal

import "time"

// Entry is one dispatched action.
type Entry struct {
	RunID       string
	TenantID    string
	Principal   string
	Action      string // catalog key, e.g. entra.security-groups
	Path        string // artifact path
	Service     string
	Status      string // ok | error
	ProblemType string // problem type URI for failures
	Detail      string
	StartedAt   time.Time
	Duration    time.Duration
}

func (e Entry) OK() bool { return e.Status == "ok" }
