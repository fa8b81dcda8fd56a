package audit

import (
	"net/http"
	"strconv"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const defaultListLimit = 100

// Handler exposes read access to the audit trail.
type Handler struct {
	repo   EventRepo
	logger apt.Logger
	tlm    *telemetry.HTTP
}

func NewHandler(repo EventRepo, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{
		repo:   repo,
		logger: logger,
		tlm:    telemetry.NewHTTP(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.Get("/events", h.ListEvents)
	})
}

// ListEvents returns recent audit events, optionally filtered to one entity
// via ?entity_id=.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListAuditEvents")
	defer finish()

	log := h.logger.With("request_id", apt.RequestIDFrom(r.Context()))

	if raw := r.URL.Query().Get("entity_id"); raw != "" {
		entityID, err := uuid.Parse(raw)
		if err != nil {
			apt.RespondError(w, http.StatusBadRequest, "Invalid entity ID")
			return
		}

		list, err := h.repo.ListByEntity(r.Context(), entityID)
		if err != nil {
			log.Error("cannot list audit events", "error", err, "entity_id", entityID.String())
			apt.RespondError(w, http.StatusInternalServerError, "Could not list audit events")
			return
		}

		apt.RespondCollection(w, list, "audit-event")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			apt.RespondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	list, err := h.repo.List(r.Context(), limit)
	if err != nil {
		log.Error("cannot list audit events", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not list audit events")
		return
	}

	apt.RespondCollection(w, list, "audit-event")
}
