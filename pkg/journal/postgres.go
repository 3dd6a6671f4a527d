package journal

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"m365prov/pkg/db"
)

// pgStore implements Store backed by PostgreSQL.
type pgStore struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

// NewPostgresStore constructs a PostgreSQL-backed run journal.
func NewPostgresStore(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Store {
	return &pgStore{dbPool: dbPool, log: log}
}

// EnsureSchema creates the journal table if it does not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS provisioning_runs (
  run_id uuid PRIMARY KEY,
  tenant_id text NOT NULL,
  principal text,
  action text,
  path text NOT NULL,
  service text,
  status text NOT NULL,
  problem_type text,
  detail text,
  started_at timestamptz NOT NULL DEFAULT NOW(),
  duration_ms bigint NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS provisioning_runs_tenant_started_idx ON provisioning_runs(tenant_id, started_at DESC);
ALTER TABLE provisioning_runs ENABLE ROW LEVEL SECURITY;
DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_policies WHERE tablename='provisioning_runs' AND policyname='provisioning_runs_tenant') THEN
		EXECUTE 'CREATE POLICY provisioning_runs_tenant ON provisioning_runs USING (tenant_id = current_setting(''app.tenant_id'', true))';
	END IF;
END $$;
`)
	return err
}

func (p *pgStore) Record(ctx context.Context, e Entry) error {
	tx, err := db.BeginTxWithTenant(ctx, p.dbPool, e.TenantID)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	_, err = tx.Exec(ctx, `INSERT INTO provisioning_runs(run_id,tenant_id,principal,action,path,service,status,problem_type,detail,started_at,duration_ms)
	  VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	  ON CONFLICT (run_id) DO NOTHING`,
		e.RunID, e.TenantID, e.Principal, e.Action, e.Path, e.Service, e.Status, e.ProblemType, e.Detail, e.StartedAt, e.Duration.Milliseconds())
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *pgStore) Recent(ctx context.Context, tenantID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	tx, err := db.BeginTxWithTenant(ctx, p.dbPool, tenantID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	rows, err := tx.Query(ctx, `SELECT run_id::text, tenant_id, COALESCE(principal,''), COALESCE(action,''), path, COALESCE(service,''), status,
		COALESCE(problem_type,''), COALESCE(detail,''), started_at, duration_ms
		FROM provisioning_runs WHERE tenant_id=$1 ORDER BY started_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.RunID, &e.TenantID, &e.Principal, &e.Action, &e.Path, &e.Service, &e.Status, &e.ProblemType, &e.Detail, &e.StartedAt, &ms); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}
