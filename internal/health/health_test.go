package health

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

type fakeTable struct{ rows, cols int }

func (f fakeTable) TotalRows() int { return f.rows }
func (f fakeTable) NumCols() int   { return f.cols }

func TestHandlerLiveEndpoint(t *testing.T) {
	h := Handler(fakeTable{rows: 10, cols: 2})
	req := httptest.NewRequest("GET", "/live", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal /live body: %v", err)
	}
	if ok, _ := body["ok"].(bool); !ok {
		t.Fatalf("/live body = %v, want ok:true", body)
	}
}

func TestHandlerHealthzEndpoint(t *testing.T) {
	h := Handler(fakeTable{rows: 777, cols: 4})
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body struct {
		TotalRows int `json:"totalRows"`
		TotalCols int `json:"totalCols"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal /healthz body: %v", err)
	}
	if body.TotalRows != 777 || body.TotalCols != 4 {
		t.Fatalf("body = %+v, want TotalRows=777 TotalCols=4", body)
	}
}

func TestNilRecorderNoOpsSafely(t *testing.T) {
	rec, err := NewRecorder("")
	if err != nil {
		t.Fatalf("NewRecorder(\"\"): %v", err)
	}
	if err := rec.Record(context.Background(), "data.csv", "data.idx", DecisionLoadedFresh, 1024, 10, 5, time.Millisecond); err != nil {
		t.Fatalf("Record on disabled recorder: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close on disabled recorder: %v", err)
	}
}

func TestRecorderPersistsBuildEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	rec, err := NewRecorder(path)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	defer rec.Close()

	if err := rec.Record(context.Background(), "/data/weather.csv", "/data/weather.csv.idx",
		DecisionRebuiltNoCache, 2048, 20, 1000, 5*time.Millisecond); err != nil {
		t.Fatalf("Record: %v", err)
	}

	var count int
	if err := rec.store.SQL.QueryRow(`SELECT COUNT(*) FROM index_build_events`).Scan(&count); err != nil {
		t.Fatalf("query count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}
