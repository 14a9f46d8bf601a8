package httptransport

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"beacon/internal/flush"
	"beacon/internal/queue"
	"beacon/internal/tracker"
	"beacon/pkg/platform/httputil"
	"beacon/pkg/platform/middleware/admin"
	"beacon/pkg/platform/middleware/metadata"
)

//go:generate mockgen -source=router.go -destination=mocks/mocks.go -package=mocks Tracker,Flusher

// Tracker records events.
type Tracker interface {
	Track(ctx context.Context, name string, props map[string]any) tracker.Outcome
	TrackCatalog(ctx context.Context, name string, args tracker.CatalogArgs) (tracker.Outcome, error)
}

// Flusher runs a flush pass on demand.
type Flusher interface {
	Flush(ctx context.Context) flush.Result
}

// QueueReader exposes the queued events.
type QueueReader interface {
	Load(ctx context.Context) []queue.Event
}

// Identity yields the distinct id.
type Identity interface {
	Ensure(ctx context.Context) string
}

// Connectivity is the host-reported network signal.
type Connectivity interface {
	Online() bool
	Set(online bool)
}

// Handler is the thin HTTP layer over the tracker. It delegates to the
// tracker and coordinator without embedding delivery logic.
type Handler struct {
	tracker    Tracker
	flusher    Flusher
	queue      QueueReader
	identity   Identity
	conn       Connectivity
	logger     *slog.Logger
	gatherer   prometheus.Gatherer
	adminToken string
}

// Option configures a Handler.
type Option func(*Handler)

// WithGatherer exposes gatherer on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.gatherer = g
	}
}

// WithAdminToken requires X-Admin-Token on the flush, queue, identity and
// connectivity routes.
func WithAdminToken(token string) Option {
	return func(h *Handler) {
		h.adminToken = token
	}
}

// NewHandler creates a Handler.
func NewHandler(t Tracker, f Flusher, q QueueReader, id Identity, conn Connectivity, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		tracker:  t,
		flusher:  f,
		queue:    q,
		identity: id,
		conn:     conn,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewRouter wires all agent endpoints.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.logger))
	r.Use(metadata.ClientHints)

	r.Get("/healthz", h.handleHealth)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.With(requireJSON).Post("/track", h.handleTrack)
		r.With(requireJSON).Post("/events/{name}", h.handleCatalogEvent)

		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdminToken(h.adminToken, h.logger))
			r.Post("/flush", h.handleFlush)
			r.Get("/queue", h.handleQueue)
			r.Get("/identity", h.handleIdentity)
			r.Get("/connectivity", h.handleGetConnectivity)
			r.With(requireJSON).Put("/connectivity", h.handleSetConnectivity)
		})
	})
	return r
}

// requireJSON rejects bodies that are missing or not application/json.
func requireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, "content type must be application/json")
			return
		}
		if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
			httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, "request body is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.DebugContext(r.Context(), "http request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
