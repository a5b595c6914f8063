// Package monitor 提供一个只读的 HTTP API，查看运行中内核发布的快照。
package monitor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cdfmlr/sham"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// Source 是快照的来源，*sham.OS 实现了它。任何 goroutine 都可以调用。
type Source interface {
	Snapshot() *sham.Snapshot
	Stats() sham.Stats
}

// Server 是监控 HTTP 服务
type Server struct {
	src       Source
	router    chi.Router
	log       *log.Entry
	startTime time.Time
}

// New 新建监控服务
func New(src Source) *Server {
	s := &Server{
		src:       src,
		router:    chi.NewRouter(),
		log:       log.WithField("component", "monitor"),
		startTime: time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(s.log))
	r.Use(snapshotMiddleware(s.src))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
		r.Get("/ready", s.handleReady)
		r.Get("/sleeping", s.handleSleeping)
		r.Route("/threads", func(r chi.Router) {
			r.Get("/", s.handleListThreads)
			r.Get("/{tid}", s.handleGetThread)
		})
	})
}

// ServeHTTP 让 Server 可以直接当 http.Handler 用
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe 在 addr 上提供服务，直到 ctx 结束
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("[Monitor] listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
