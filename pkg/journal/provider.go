package journal

import (
	"context"
)

type Store interface {
	// Record appends a run.
	Record(ctx context.Context, e Entry) error
	// Recent returns the newest runs for a tenant, newest first.
	Recent(ctx context.Context, tenantID string, limit int) ([]Entry, error)
}
