// Package health exposes the optional health surface described in
// spec.md §6: a liveness probe plus {totalRows, totalCols}, backed by a
// small sqlite audit trail of index build/load decisions. Grounded on
// the teacher's internal/api/server.go "/live" handler and
// internal/jobs/jobs.go's row-store shape, repurposed here for build
// events instead of download jobs.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/tkim90/billion-row-table/internal/db"
)

// TableSource is the minimal surface health needs to report table shape.
type TableSource interface {
	TotalRows() int
	NumCols() int
}

// Recorder persists index build/load decisions for later inspection. A
// nil *Recorder is valid and simply does nothing (so the audit trail is
// optional infrastructure, never a startup requirement).
type Recorder struct {
	store *db.DB
}

// NewRecorder opens (creating if necessary) the sqlite audit database at
// path. Pass an empty path to disable recording entirely.
func NewRecorder(path string) (*Recorder, error) {
	if path == "" {
		return &Recorder{}, nil
	}
	d, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	return &Recorder{store: d}, nil
}

func (r *Recorder) Close() error {
	if r == nil || r.store == nil {
		return nil
	}
	return r.store.Close()
}

// Decision labels why an index build/load pass did what it did. Defined
// as plain string constants (rather than a distinct named type) so
// *Recorder satisfies rowindex.Recorder's decision-string parameter
// without an adapter.
const (
	DecisionLoadedFresh    = "loaded_fresh"
	DecisionRebuiltStale   = "rebuilt_stale"
	DecisionRebuiltNoCache = "rebuilt_no_cache"
)

// Record appends one audit row. Failures are logged by the caller, not
// returned as fatal: the audit trail is diagnostic, never load-bearing
// for spec.md's freshness invariant, which stays a pure function of
// (fileSize, totalRows).
func (r *Recorder) Record(ctx context.Context, dataPath, indexPath, decision string, fileSize int64, totalRows, granularity int, duration time.Duration) error {
	if r == nil || r.store == nil {
		return nil
	}
	_, err := r.store.SQL.ExecContext(ctx,
		`INSERT INTO index_build_events (data_path, index_path, decision, file_size, total_rows, granularity, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		dataPath, indexPath, decision, fileSize, totalRows, granularity, duration.Milliseconds(), time.Now().Unix())
	return err
}

// Handler returns an http.Handler serving the liveness/metadata surface
// at the paths the teacher uses for its own "/live" endpoint.
func Handler(table TableSource) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/live", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":   true,
			"time": time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"totalRows": table.TotalRows(),
			"totalCols": table.NumCols(),
		})
	})
	return mux
}
