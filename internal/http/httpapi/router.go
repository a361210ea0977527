package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"genstudio/internal/http/handlers"
	"genstudio/internal/middleware"
)

type Options struct {
	Logger          zerolog.Logger
	CORSOrigins     []string
	RateLimitPerMin int
	DefaultLocale   string
	// Countries resolves client IPs when no edge header names a country.
	Countries middleware.CountryLookup
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Media serves stored blobs under /media when set.
	Media http.Handler
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, nil, opts.Countries),
	)

	r.Get("/v1/healthz", app.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.Media != nil {
		r.Handle("/media/*", http.StripPrefix("/media", opts.Media))
	}
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))

		r.Route("/v1/projects/{projectID}", func(r chi.Router) {
			r.Route("/batches", func(r chi.Router) {
				r.Post("/", app.RunBatch)
				r.Get("/ws", app.RunBatchWS)
				r.Post("/queue", app.EnqueueBatch)
				r.Get("/{batchID}", app.BatchStatus)
			})
			r.Get("/items/{stage}", app.ListItems)
			r.Get("/items/{stage}/{itemID}", app.GetItem)
			r.Get("/export/{stage}", app.ExportStage)
			r.Put("/prompts/{stageType}/{promptID}", app.SaveOverride)
			r.Delete("/prompts/{stageType}/{promptID}", app.DeleteOverride)
			r.Put("/models/{stageType}/{capability}", app.SaveModelConfig)
		})

		r.Route("/v1/prompts", func(r chi.Router) {
			r.Post("/", app.CreateTemplate)
			r.Post("/cache/invalidate", app.InvalidateCache)
			r.Post("/test", app.TestPrompt)
			r.Route("/{stageType}/{promptID}", func(r chi.Router) {
				r.Put("/", app.UpdateTemplate)
				// Resolution is keyed by capability; the segment carries it.
				r.Get("/resolve", app.ResolvePrompt)
				r.Get("/versions", app.ListVersions)
				r.Post("/versions", app.CreateVersion)
				r.Post("/versions/{version}/activate", app.ActivateVersion)
				r.Delete("/versions/{version}", app.DeleteVersion)
			})
		})
	})

	return r
}
