package tables

import (
	"net/http"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handler exposes read access to the floor plan. Occupancy changes happen
// through order fulfillment, not through this API.
type Handler struct {
	repo   TableRepo
	logger apt.Logger
	tlm    *telemetry.HTTP
}

func NewHandler(repo TableRepo, logger apt.Logger) *Handler {
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
	r.Route("/tables", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
	})
}

func (h *Handler) log(r *http.Request) apt.Logger {
	return h.logger.With("request_id", apt.RequestIDFrom(r.Context()))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListTables")
	defer finish()

	log := h.log(r)

	list, err := h.repo.List(r.Context())
	if err != nil {
		log.Error("cannot list tables", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not list tables")
		return
	}

	apt.RespondCollection(w, list, "table")
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetTable")
	defer finish()

	log := h.log(r)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid table ID")
		return
	}

	table, err := h.repo.Get(r.Context(), id)
	if err != nil {
		log.Error("cannot get table", "error", err, "table_id", id.String())
		apt.RespondError(w, http.StatusInternalServerError, "Could not get table")
		return
	}
	if table == nil {
		apt.RespondError(w, http.StatusNotFound, "Table not found")
		return
	}

	apt.RespondSuccess(w, table, apt.RESTfulLinksFor(table)...)
}
