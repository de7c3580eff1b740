package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"thumbq/internal/domain"
	"thumbq/internal/infra/redisq"
	"thumbq/internal/usecase"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Scheduler is the part of the scheduler the HTTP surface needs.
type Scheduler interface {
	Submit(ctx context.Context, s usecase.Submission) (domain.Batch, []domain.Task, error)
	Batch(ctx context.Context, id string) (domain.Batch, error)
	Tasks(ctx context.Context, batchID string) ([]domain.Task, error)
	Task(ctx context.Context, id string) (domain.Task, error)
	QueueLen(ctx context.Context) (int, error)
}

type Inbox interface {
	List(ctx context.Context, owner string, limit int64) ([]redisq.Notification, error)
}

type Deps struct {
	Scheduler Scheduler
	// Inbox is optional; without it the notifications route answers 404.
	Inbox Inbox
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

type Server struct {
	router *chi.Mux
	deps   Deps
}

type submitResp struct {
	BatchID  string          `json:"batch_id"`
	Priority domain.Priority `json:"priority"`
	TaskIDs  []string        `json:"task_ids"`
}

type batchResp struct {
	domain.Batch
	SuccessRate float64 `json:"success_rate"`
	Outstanding int     `json:"outstanding"`
}

func NewServer(deps Deps) *Server {
	s := &Server{router: chi.NewRouter(), deps: deps}
	r := s.router

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/batches", s.submit)
	r.Get("/batches/{id}", s.batch)
	r.Get("/batches/{id}/tasks", s.tasks)
	r.Get("/tasks/{id}", s.task)
	r.Get("/queue", s.queue)
	r.Get("/owners/{ownerID}/notifications", s.notifications)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	return s
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return chainMiddleware(
		s.router,
		requestIDHandler,
		realIPHandler,
		loggerHandler(func(w http.ResponseWriter, r *http.Request) bool {
			return r.URL.Path == "/" || r.URL.Path == "/metrics"
		}),
		recoverHandler,
		corsHandler,
	)
}

// Run serves HTTP on port until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)

	httpServer := http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		log.Info().Msg("Server is shutting down...")

		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		close(done)
	}()

	log.Info().Msgf("server serving on port %d", port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}

	<-done
	log.Info().Msg("Server stopped")
	return nil
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var req usecase.Submission
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	b, tasks, err := s.deps.Scheduler.Submit(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	writeJSON(w, http.StatusAccepted, submitResp{BatchID: b.ID, Priority: b.Priority, TaskIDs: ids})
}

func (s *Server) batch(w http.ResponseWriter, r *http.Request) {
	b, err := s.deps.Scheduler.Batch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batchResp{Batch: b, SuccessRate: b.SuccessRate(), Outstanding: b.Outstanding()})
}

func (s *Server) tasks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.deps.Scheduler.Batch(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	tasks, err := s.deps.Scheduler.Tasks(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) task(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Scheduler.Task(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) queue(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Scheduler.QueueLen(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"ready": n})
}

func (s *Server) notifications(w http.ResponseWriter, r *http.Request) {
	if s.deps.Inbox == nil {
		writeError(w, http.StatusNotFound, "notifications are not enabled")
		return
	}

	var limit int64
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	list, err := s.deps.Inbox.List(r.Context(), chi.URLParam(r, "ownerID"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrEmptyBatch), errors.Is(err, domain.ErrInvalidPriority):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
