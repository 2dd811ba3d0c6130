package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"adforge/internal/http/handlers"
	"adforge/internal/infra"
	"adforge/internal/middleware"
)

// FilesPrefix is where stored creatives and archives are served from.
const FilesPrefix = "/static"

type Options struct {
	Logger          infra.Logger
	CORSOrigins     []string
	RateLimitPerMin int
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// FilesDir is served under FilesPrefix when set.
	FilesDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get(handlers.OpenAPIPath, app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1/pipeline", func(r chi.Router) {
		r.Get("/status", app.PipelineStatus)
		r.Get("/jobs/{jobID}/archive", app.PipelineArchive)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
			r.Post("/start", app.PipelineStart)
			r.Post("/jobs/{jobID}/approve", app.PipelineApprove)
			r.Post("/jobs/{jobID}/deliver", app.PipelineDeliver)
		})
	})

	if dir := strings.TrimSpace(opts.FilesDir); dir != "" {
		fs := http.StripPrefix(FilesPrefix, http.FileServer(http.Dir(dir)))
		r.Handle(FilesPrefix+"/*", fs)
	}

	return r
}
