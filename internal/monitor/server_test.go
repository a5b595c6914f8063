package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/cdfmlr/sham"
)

type envelope struct {
	Status    string          `json:"status"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
}

func doGet(t *testing.T, srv *Server, path string, want int) envelope {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != want {
		t.Fatalf("GET %s: status=%d, want %d, body=%s", path, w.Code, want, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	if env.RequestID == "" {
		t.Errorf("GET %s: missing request id", path)
	}
	if want == http.StatusOK && w.Header().Get("X-Sham-Tick") == "" {
		t.Errorf("GET %s: missing X-Sham-Tick header", path)
	}
	return env
}

func bootOS(t *testing.T) *sham.OS {
	t.Helper()
	shamOS := sham.NewOS(sham.DefaultConfig())
	shamOS.Boot()
	t.Cleanup(shamOS.Shutdown)
	return shamOS
}

func TestHealth(t *testing.T) {
	shamOS := bootOS(t)
	srv := New(shamOS)

	env := doGet(t, srv, "/api/v1/health", http.StatusOK)
	var h healthResponse
	if err := json.Unmarshal(env.Data, &h); err != nil {
		t.Fatal(err)
	}
	if h.Status != "healthy" || h.Boot != shamOS.BootID() || h.Policy != "priority" {
		t.Errorf("health = %+v", h)
	}
}

func TestThreadsAndReady(t *testing.T) {
	shamOS := bootOS(t)
	srv := New(shamOS)

	tid, err := shamOS.Create("low", sham.PriMin+1, func(interface{}) {}, nil)
	if err != nil {
		t.Fatal(err)
	}

	env := doGet(t, srv, "/api/v1/ready", http.StatusOK)
	var q queueResponse
	if err := json.Unmarshal(env.Data, &q); err != nil {
		t.Fatal(err)
	}
	if q.Running != shamOS.Current().Tid() || len(q.Threads) != 1 || q.Threads[0] != tid {
		t.Errorf("ready = %+v", q)
	}

	env = doGet(t, srv, "/api/v1/threads/"+strconv.Itoa(int(tid)), http.StatusOK)
	var ti sham.ThreadInfo
	if err := json.Unmarshal(env.Data, &ti); err != nil {
		t.Fatal(err)
	}
	if ti.Name != "low" || ti.Status != "ready" || ti.Priority != sham.PriMin+1 {
		t.Errorf("thread = %+v", ti)
	}

	env = doGet(t, srv, "/api/v1/threads/", http.StatusOK)
	var all []sham.ThreadInfo
	if err := json.Unmarshal(env.Data, &all); err != nil {
		t.Fatal(err)
	}
	// main, low, idle
	if len(all) != 3 {
		t.Errorf("got %d threads, want 3", len(all))
	}

	doGet(t, srv, "/api/v1/threads/999", http.StatusNotFound)
	doGet(t, srv, "/api/v1/threads/abc", http.StatusBadRequest)
}

func TestStats(t *testing.T) {
	shamOS := bootOS(t)
	srv := New(shamOS)

	shamOS.Sleep(3)

	env := doGet(t, srv, "/api/v1/stats", http.StatusOK)
	var st statsResponse
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatal(err)
	}
	if st.Ticks < 3 || st.IdleTicks < 3 {
		t.Errorf("stats = %+v", st)
	}
}

type unbooted struct{}

func (unbooted) Snapshot() *sham.Snapshot { return nil }
func (unbooted) Stats() sham.Stats        { return sham.Stats{} }

func TestNotBooted(t *testing.T) {
	srv := New(unbooted{})

	env := doGet(t, srv, "/api/v1/health", http.StatusServiceUnavailable)
	if env.Status != "error" || env.Error != "kernel not booted" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestSnapshotHeaders(t *testing.T) {
	shamOS := bootOS(t)
	srv := New(shamOS)
	shamOS.Sleep(2)

	req := httptest.NewRequest("GET", "/api/v1/ready", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if got := w.Header().Get("X-Sham-Boot"); got != shamOS.BootID() {
		t.Errorf("X-Sham-Boot = %q, want %q", got, shamOS.BootID())
	}
	if got := w.Header().Get("X-Sham-Tick"); got != strconv.FormatInt(shamOS.Snapshot().Tick, 10) {
		t.Errorf("X-Sham-Tick = %q, want %d", got, shamOS.Snapshot().Tick)
	}
}
