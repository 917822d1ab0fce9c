package rowindex

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sync/singleflight"
)

// buildGroup deduplicates concurrent cold (re)builds of the same index
// path: if several requests race to trigger a rebuild before the server
// finishes accepting traffic, only one scan runs. Mirrors the teacher's
// fetchGroup in rawfs.go.
var buildGroup singleflight.Group

// Recorder receives a record of each load/build decision, so a caller
// (internal/health) can persist a diagnostic audit trail. It never
// influences the decision itself.
type Recorder interface {
	Record(ctx context.Context, dataPath, indexPath, decision string, fileSize int64, totalRows, granularity int, duration time.Duration) error
}

// LoadOrBuild loads the cached index at indexPath if present and fresh for
// a data file of dataPath's current size; otherwise it scans dataPath and
// persists the result, overwriting any stale cache. rec may be nil.
func LoadOrBuild(ctx context.Context, dataPath, indexPath string, granularity uint64, rec Recorder) (*Index, error) {
	start := time.Now()
	st, err := os.Stat(dataPath)
	if err != nil {
		return nil, fmt.Errorf("rowindex: stat data file %s: %w", dataPath, err)
	}

	sawCache := false
	if indexPath != "" {
		cached, err := Load(indexPath)
		if err != nil {
			log.Printf("rowindex: cached index %s unreadable, rebuilding: %v", indexPath, err)
		} else if cached != nil && cached.Granularity == granularity && IsFresh(cached, st.Size()) {
			log.Printf("rowindex: loaded cached index %s (rows=%d anchors=%d)", indexPath, cached.TotalRows, len(cached.Offsets))
			recordDecision(ctx, rec, dataPath, indexPath, "loaded_fresh", st.Size(), int(cached.TotalRows), int(granularity), time.Since(start))
			return cached, nil
		} else if cached != nil {
			log.Printf("rowindex: cached index %s stale or granularity mismatch, rebuilding", indexPath)
			sawCache = true
		}
	}

	v, err, _ := buildGroup.Do(dataPath, func() (any, error) {
		unlock, lockErr := acquireBuildLock(indexPath)
		if lockErr == nil {
			defer unlock()
		}
		// lockErr is non-fatal: a missing indexPath (in-memory only use)
		// simply means no cross-process lock file to take, and a lock held
		// by another builder means this process still scans but leaves
		// persisting the index file to the lock holder.

		idx, buildErr := Build(ctx, dataPath, granularity)
		if buildErr != nil {
			return nil, buildErr
		}
		if indexPath != "" && lockErr == nil {
			if err := Save(indexPath, idx); err != nil {
				log.Printf("rowindex: failed to persist index to %s: %v", indexPath, err)
			}
		}
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	idx := v.(*Index)
	decision := "rebuilt_no_cache"
	if sawCache {
		decision = "rebuilt_stale"
	}
	recordDecision(ctx, rec, dataPath, indexPath, decision, st.Size(), int(idx.TotalRows), int(granularity), time.Since(start))
	return idx, nil
}

func recordDecision(ctx context.Context, rec Recorder, dataPath, indexPath, decision string, fileSize int64, totalRows, granularity int, duration time.Duration) {
	if rec == nil {
		return
	}
	if err := rec.Record(ctx, dataPath, indexPath, decision, fileSize, totalRows, granularity, duration); err != nil {
		log.Printf("rowindex: audit record failed: %v", err)
	}
}

// acquireBuildLock takes an exclusive, process-external lock so two
// server instances pointed at the same indexPath don't both write the
// index file and clobber each other's output. Modeled on the
// teacher's O_CREATE|O_EXCL health-repair lock (internal/runner/health_lock.go).
func acquireBuildLock(indexPath string) (func(), error) {
	if indexPath == "" {
		return func() {}, fmt.Errorf("rowindex: no index path, nothing to lock")
	}
	lockPath := indexPath + ".lock"

	if st, err := os.Stat(lockPath); err == nil {
		if time.Since(st.ModTime()) > 30*time.Minute {
			_ = os.Remove(lockPath)
		}
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return func() {}, fmt.Errorf("rowindex: lock %s held by another builder", lockPath)
	}
	f.Close()
	return func() { _ = os.Remove(lockPath) }, nil
}
