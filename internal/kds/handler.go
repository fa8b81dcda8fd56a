package kds

import (
	"net/http"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/go-chi/chi/v5"
)

// Handler serves the kitchen display board over HTTP: a poll endpoint for
// one-shot snapshots and an SSE endpoint for push updates.
type Handler struct {
	builder *Builder
	stream  *SSEHandler
	logger  apt.Logger
	tlm     *telemetry.HTTP
}

func NewHandler(builder *Builder, stream *SSEHandler, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{
		builder: builder,
		stream:  stream,
		logger:  logger,
		tlm:     telemetry.NewHTTP(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/kitchen", func(r chi.Router) {
		r.Get("/view", h.GetView)
		if h.stream != nil {
			r.Get("/stream", h.stream.ServeHTTP)
		}
	})
}

// GetView returns a fresh kitchen view snapshot.
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetKitchenView")
	defer finish()

	log := h.logger.With("request_id", apt.RequestIDFrom(r.Context()))

	view := h.builder.Build()
	log.Debug("kitchen view built",
		"pending", len(view.Pending),
		"preparing", len(view.Preparing),
		"ready", len(view.Ready),
	)

	apt.RespondSuccess(w, view)
}
