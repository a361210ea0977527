package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"genstudio/internal/batchqueue"
	"genstudio/internal/domain"
	"genstudio/internal/engine"
	"genstudio/internal/planner"
	"genstudio/internal/progress"
	"genstudio/internal/projects"
	"genstudio/internal/resolver"
	"genstudio/internal/templates"
)

// BatchQueue is the Postgres queue used by the asynchronous batch routes.
type BatchQueue interface {
	Enqueue(ctx context.Context, req domain.BatchRequest) (*batchqueue.Batch, error)
	Get(ctx context.Context, projectID, id string) (*batchqueue.Batch, error)
}

// BatchRunner executes a planned batch against a sink.
type BatchRunner interface {
	Run(ctx context.Context, run *domain.BatchRun, sink progress.Sink) (*domain.Summary, error)
}

type App struct {
	Logger    zerolog.Logger
	Planner   *planner.Planner
	Engine    BatchRunner
	Resolver  *resolver.Service
	Templates *templates.Repository
	Editor    *templates.Editor
	Items     *projects.Items
	Blobs     projects.Downloader
	// Queue is nil when no database is configured.
	Queue BatchQueue

	// PromptTestTimeout bounds POST /v1/prompts/test.
	PromptTestTimeout time.Duration

	validate *validator.Validate
	upgrader websocket.Upgrader
}

func NewApp(logger zerolog.Logger) *App {
	return &App{
		Logger:            logger,
		PromptTestTimeout: engine.DefaultAdaptorTimeout,
		validate:          validator.New(validator.WithRequiredStructEnabled()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origins are enforced by the CORS middleware.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, msg string) {
	a.json(w, status, map[string]errorBody{"error": {Code: code, Message: msg}})
}

func (a *App) read(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// decode reads a JSON body into v and runs struct validation.
func (a *App) decode(r *http.Request, v any) error {
	if err := a.read(r, v); err != nil {
		return err
	}
	return a.check(v)
}

func (a *App) check(v any) error {
	err := a.validate.Struct(v)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("invalid payload: %s", strings.Join(fields, "; "))
	}
	return err
}

// fail maps domain errors to HTTP statuses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrPlannerValidation):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrTemplateNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrActiveVersion):
		a.error(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrAdaptorUnavailable):
		a.error(w, http.StatusUnprocessableEntity, "adaptor_unavailable", err.Error())
	case errors.Is(err, domain.ErrAdaptorTimeout), errors.Is(err, context.DeadlineExceeded):
		a.error(w, http.StatusGatewayTimeout, string(domain.KindOf(err)), err.Error())
	case errors.Is(err, domain.ErrProviderUnreachable), errors.Is(err, domain.ErrProviderFailure):
		a.error(w, http.StatusBadGateway, string(domain.KindOf(err)), err.Error())
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
