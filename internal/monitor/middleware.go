package monitor

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cdfmlr/sham"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

type ctxKey struct{}

// snapshotFrom 取出 snapshotMiddleware 为本次请求固定下来的快照
func snapshotFrom(r *http.Request) *sham.Snapshot {
	snap, _ := r.Context().Value(ctxKey{}).(*sham.Snapshot)
	return snap
}

// snapshotMiddleware 每个请求只读一次快照：
// 同一个响应里的数据都来自同一个 tick，响应头里带上 boot 和 tick。
// 内核还没发布过快照时直接 503。
func snapshotMiddleware(src Source) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Request-Id", middleware.GetReqID(r.Context()))

			snap := src.Snapshot()
			if snap == nil {
				respondError(w, r, http.StatusServiceUnavailable, "kernel not booted")
				return
			}
			w.Header().Set("X-Sham-Boot", snap.Boot)
			w.Header().Set("X-Sham-Tick", strconv.FormatInt(snap.Tick, 10))

			ctx := context.WithValue(r.Context(), ctxKey{}, snap)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// loggingMiddleware 每个请求打一行 Debug 日志，带上看到的 tick
func loggingMiddleware(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.WithFields(log.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   ww.Status(),
				"tick":     ww.Header().Get("X-Sham-Tick"),
				"duration": time.Since(start).String(),
				"req":      middleware.GetReqID(r.Context()),
			}).Debug("[Monitor] request")
		})
	}
}
