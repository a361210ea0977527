package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"genstudio/internal/domain"
	"genstudio/internal/middleware"
	"genstudio/internal/progress"
)

// planBatch fills the route's project id and the request locale into req
// and plans it.
func (a *App) planBatch(r *http.Request, req *domain.BatchRequest) (*domain.BatchRun, error) {
	req.ProjectID = chi.URLParam(r, "projectID")
	if req.Locale == "" {
		req.Locale = middleware.LocaleFromContext(r.Context())
	}
	if err := a.check(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPlannerValidation, err)
	}
	return a.Planner.Plan(r.Context(), *req)
}

// RunBatch plans a batch and streams its events as server-sent events. Errors
// found while planning are plain JSON responses; once the stream is open every
// outcome is an event.
func (a *App) RunBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchRequest
	if err := a.read(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	run, err := a.planBatch(r, &req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("X-Batch-ID", run.ID)
	sse, err := progress.NewSSESink(w, r)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}
	a.stream(r, run, sse)
}

// RunBatchWS is RunBatch over a websocket. The first client frame carries the
// batch request.
func (a *App) RunBatchWS(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	var req domain.BatchRequest
	if err := conn.ReadJSON(&req); err != nil {
		a.rejectWS(conn, "invalid payload: "+err.Error())
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	run, err := a.planBatch(r, &req)
	if err != nil {
		a.rejectWS(conn, err.Error())
		return
	}
	a.stream(r, run, progress.NewWSSink(conn))
}

func (a *App) rejectWS(conn *websocket.Conn, msg string) {
	_ = conn.WriteJSON(progress.Event{
		Name: progress.EventFatalError,
		At:   time.Now().UTC(),
		Data: progress.FatalData{Message: msg},
	})
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "rejected"))
	_ = conn.Close()
}

func (a *App) stream(r *http.Request, run *domain.BatchRun, primary progress.Sink) {
	logger := a.Logger.With().
		Str("batch_id", run.ID).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Logger()
	sink := progress.NewTee(primary, progress.NewLogSink(logger))
	summary, err := a.Engine.Run(r.Context(), run, sink)
	if err != nil {
		logger.Warn().Err(err).Msg("batch ended with fatal error")
		return
	}
	if summary != nil && summary.Detached {
		logger.Info().Int("pending", summary.Counts.Pending).Msg("stream detached before completion")
	}
}

type enqueueResponse struct {
	BatchID   string    `json:"batchId"`
	Status    string    `json:"status"`
	Jobs      int       `json:"jobs"`
	CreatedAt time.Time `json:"createdAt"`
}

// EnqueueBatch validates a batch by planning it, then queues it for the worker.
func (a *App) EnqueueBatch(w http.ResponseWriter, r *http.Request) {
	if a.Queue == nil {
		a.error(w, http.StatusServiceUnavailable, "queue_disabled", "batch queue is not configured")
		return
	}
	var req domain.BatchRequest
	if err := a.read(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	run, err := a.planBatch(r, &req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	b, err := a.Queue.Enqueue(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, enqueueResponse{BatchID: b.ID, Status: string(b.Status), Jobs: len(run.Jobs), CreatedAt: b.CreatedAt})
}

func (a *App) BatchStatus(w http.ResponseWriter, r *http.Request) {
	if a.Queue == nil {
		a.error(w, http.StatusServiceUnavailable, "queue_disabled", "batch queue is not configured")
		return
	}
	b, err := a.Queue.Get(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "batchID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, b)
}
