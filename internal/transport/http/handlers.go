package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"beacon/internal/flush"
	"beacon/internal/queue"
	"beacon/internal/tracker"
	"beacon/pkg/platform/httputil"
	"beacon/pkg/platform/middleware/metadata"
)

// TrackRequest is the body of POST /v1/track.
type TrackRequest struct {
	Event      string         `json:"event"`
	Properties map[string]any `json:"properties"`
}

// TrackResponse reports what happened to a tracked event.
type TrackResponse struct {
	Outcome tracker.Outcome `json:"outcome"`
}

// FlushResponse mirrors flush.Result.
type FlushResponse struct {
	Status    flush.Status `json:"status"`
	Queued    int          `json:"queued"`
	Delivered int          `json:"delivered"`
	Error     string       `json:"error,omitempty"`
}

// QueueResponse lists queued events.
type QueueResponse struct {
	Count  int           `json:"count"`
	Events []queue.Event `json:"events"`
}

// ConnectivityRequest is the host-reported signal.
type ConnectivityRequest struct {
	Online *bool `json:"online"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"online": h.conn.Online(),
	})
}

func (h *Handler) handleTrack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req TrackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid track request",
			"request_id", middleware.GetReqID(ctx),
			"error", err,
		)
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, "invalid request body")
		return
	}
	if req.Event == "" {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, "event is required")
		return
	}

	props := metadata.ClientProperties(ctx)
	for k, v := range req.Properties {
		props[k] = v
	}

	outcome := h.tracker.Track(ctx, req.Event, props)
	httputil.WriteJSON(w, http.StatusAccepted, TrackResponse{Outcome: outcome})
}

func (h *Handler) handleCatalogEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	var args tracker.CatalogArgs
	if err := decodeJSON(w, r, &args); err != nil {
		h.logger.WarnContext(ctx, "invalid catalog event request",
			"request_id", middleware.GetReqID(ctx),
			"event", name,
			"error", err,
		)
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, "invalid request body")
		return
	}

	outcome, err := h.tracker.TrackCatalog(ctx, name, args)
	if errors.Is(err, tracker.ErrUnknownEvent) {
		httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, err.Error())
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, httputil.CodeInternal, "")
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, TrackResponse{Outcome: outcome})
}

func (h *Handler) handleFlush(w http.ResponseWriter, r *http.Request) {
	res := h.flusher.Flush(r.Context())
	resp := FlushResponse{
		Status:    res.Status,
		Queued:    res.Queued,
		Delivered: res.Delivered,
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	events := h.queue.Load(r.Context())
	httputil.WriteJSON(w, http.StatusOK, QueueResponse{Count: len(events), Events: events})
}

func (h *Handler) handleIdentity(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"distinctId": h.identity.Ensure(r.Context()),
	})
}

func (h *Handler) handleGetConnectivity(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"online": h.conn.Online()})
}

func (h *Handler) handleSetConnectivity(w http.ResponseWriter, r *http.Request) {
	var req ConnectivityRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Online == nil {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeBadRequest, "online must be a boolean")
		return
	}
	h.conn.Set(*req.Online)
	h.logger.InfoContext(r.Context(), "connectivity reported", "online", *req.Online)
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"online": h.conn.Online()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.UseNumber()
	return dec.Decode(v)
}
