package monitor

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/cdfmlr/sham"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Response 是所有接口的外层信封
type Response struct {
	Status    string      `json:"status"`
	RequestID string      `json:"request_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

func respondOK(w http.ResponseWriter, r *http.Request, data interface{}) {
	respondJSON(w, r, http.StatusOK, data, "")
}

func respondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	respondJSON(w, r, status, nil, msg)
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}, msg string) {
	resp := Response{
		Status:    "ok",
		RequestID: middleware.GetReqID(r.Context()),
		Timestamp: time.Now().UTC(),
		Data:      data,
		Error:     msg,
	}
	if msg != "" {
		resp.Status = "error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

type healthResponse struct {
	Status    string `json:"status"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Boot      string `json:"boot"`
	Policy    string `json:"policy"`
	Tick      int64  `json:"tick"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := snapshotFrom(r)
	respondOK(w, r, healthResponse{
		Status:    "healthy",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Boot:      snap.Boot,
		Policy:    snap.Policy,
		Tick:      snap.Tick,
	})
}

type statsResponse struct {
	sham.Stats
	LoadAvg string `json:"load_avg"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := snapshotFrom(r)
	respondOK(w, r, statsResponse{Stats: s.src.Stats(), LoadAvg: snap.LoadAvg})
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	snap := snapshotFrom(r)
	respondOK(w, r, snap.Threads)
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	tid, err := strconv.Atoi(chi.URLParam(r, "tid"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid tid")
		return
	}
	snap := snapshotFrom(r)
	for _, ti := range snap.Threads {
		if ti.Tid == sham.Tid(tid) {
			respondOK(w, r, ti)
			return
		}
	}
	respondError(w, r, http.StatusNotFound, "thread not found")
}

type queueResponse struct {
	Tick    int64      `json:"tick"`
	Running sham.Tid   `json:"running"`
	Threads []sham.Tid `json:"threads"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	snap := snapshotFrom(r)
	respondOK(w, r, queueResponse{Tick: snap.Tick, Running: snap.Running, Threads: snap.Ready})
}

func (s *Server) handleSleeping(w http.ResponseWriter, r *http.Request) {
	snap := snapshotFrom(r)
	respondOK(w, r, queueResponse{Tick: snap.Tick, Running: snap.Running, Threads: snap.Sleep})
}
