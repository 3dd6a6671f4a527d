package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"m365prov/pkg/problems"
	"m365prov/pkg/telemetry"
)

// Source fetches raw artifact bodies by path.
type Source interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Fetcher reads artifacts from {base}/{branch}/{path}. It never retries.
type Fetcher struct {
	base    string
	branch  string
	http    *http.Client
	log     *zap.SugaredLogger
	metrics *telemetry.Metrics
}

func NewFetcher(base, branch string, hc *http.Client, log *zap.SugaredLogger, metrics *telemetry.Metrics) *Fetcher {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Fetcher{base: strings.TrimRight(base, "/"), branch: branch, http: hc, log: log, metrics: metrics}
}

func (f *Fetcher) Branch() string { return f.branch }

func (f *Fetcher) URL(path string) string {
	return f.base + "/" + f.branch + "/" + strings.TrimLeft(path, "/")
}

func (f *Fetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	body, err := f.get(ctx, path)
	if f.metrics != nil {
		f.metrics.Fetches.WithLabelValues(telemetry.Outcome(err == nil)).Inc()
	}
	if err != nil {
		f.log.Warnw("artifact fetch failed", "path", path, "err", err)
		return nil, problems.Fetch(path, err)
	}
	f.log.Debugw("artifact fetched", "path", path, "bytes", len(body))
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(path), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: %s", f.URL(path), resp.Status)
	}
	return io.ReadAll(resp.Body)
}
