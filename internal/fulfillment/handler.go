package fulfillment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const MaxBodyBytes = 1 << 20

type Handler struct {
	service   *Service
	orderRepo OrderRepo
	itemRepo  OrderItemRepo
	logger    apt.Logger
	config    *apt.Config
	tlm       *telemetry.HTTP
}

type HandlerDeps struct {
	Service   *Service
	OrderRepo OrderRepo
	ItemRepo  OrderItemRepo
}

func NewHandler(hd HandlerDeps, config *apt.Config, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{
		service:   hd.Service,
		orderRepo: hd.OrderRepo,
		itemRepo:  hd.ItemRepo,
		logger:    logger,
		config:    config,
		tlm:       telemetry.NewHTTP(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Get("/", h.ListOrders)
		r.Get("/{id}", h.GetOrder)
		r.Patch("/{id}/status", h.ChangeOrderStatus)

		r.Route("/{orderID}/items", func(r chi.Router) {
			r.Post("/", h.AddItem)
			r.Get("/", h.ListOrderItems)
		})
	})

	r.Route("/order-items", func(r chi.Router) {
		r.Get("/{id}", h.GetOrderItem)
		r.Patch("/{id}/status", h.ChangeItemStatus)
	})
}

func (h *Handler) log(r *http.Request) apt.Logger {
	return h.logger.With("request_id", apt.RequestIDFrom(r.Context()))
}

// Order Handlers

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.CreateOrder")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	actorID, ok := h.parseActor(w, r, log)
	if !ok {
		return
	}

	req, ok := h.decodeOrderCreatePayload(w, r, log)
	if !ok {
		return
	}

	order, err := h.service.CreateOrder(ctx, req, actorID)
	if err != nil {
		h.respondServiceError(w, log, err, "Could not create order")
		return
	}

	links := apt.RESTfulLinksFor(order)
	w.WriteHeader(http.StatusCreated)
	apt.RespondSuccess(w, order, links...)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetOrder")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseIDParam(w, r, log)
	if !ok {
		return
	}

	order, err := h.orderRepo.Get(ctx, id)
	if err != nil {
		log.Error("error loading order", "error", err, "id", id.String())
		apt.RespondError(w, http.StatusNotFound, "Order not found")
		return
	}
	if order == nil {
		apt.RespondError(w, http.StatusNotFound, "Order not found")
		return
	}

	links := apt.RESTfulLinksFor(order)
	apt.RespondSuccess(w, order, links...)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListOrders")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	tableIDStr := r.URL.Query().Get("table_id")
	status := r.URL.Query().Get("status")

	var orders []*Order
	var err error

	if tableIDStr != "" {
		tableID, parseErr := uuid.Parse(tableIDStr)
		if parseErr != nil {
			log.Debug("invalid table_id parameter", "table_id", tableIDStr)
			apt.RespondError(w, http.StatusBadRequest, "Invalid table_id parameter")
			return
		}
		orders, err = h.orderRepo.ListByTable(ctx, tableID)
	} else if status != "" {
		orders, err = h.orderRepo.ListByStatus(ctx, OrderStatus(status))
	} else {
		orders, err = h.orderRepo.List(ctx)
	}

	if err != nil {
		log.Error("error retrieving orders", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not retrieve orders")
		return
	}

	apt.RespondCollection(w, orders, "order")
}

func (h *Handler) ChangeOrderStatus(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ChangeOrderStatus")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseIDParam(w, r, log)
	if !ok {
		return
	}

	actorID, ok := h.parseActor(w, r, log)
	if !ok {
		return
	}

	req, ok := h.decodeStatusChangePayload(w, r, log)
	if !ok {
		return
	}
	if errs := ValidateStatusChange(req.Status); len(errs) > 0 {
		apt.RespondError(w, http.StatusBadRequest, errs[0])
		return
	}

	order, err := h.service.ChangeOrderStatus(ctx, id, OrderStatus(req.Status), actorID)
	if err != nil {
		h.respondServiceError(w, log, err, "Could not update order status")
		return
	}

	links := apt.RESTfulLinksFor(order)
	apt.RespondSuccess(w, order, links...)
}

// OrderItem Handlers

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.AddItem")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	orderIDStr := chi.URLParam(r, "orderID")
	orderID, err := uuid.Parse(orderIDStr)
	if err != nil {
		log.Debug("invalid order ID", "orderID", orderIDStr)
		apt.RespondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	actorID, ok := h.parseActor(w, r, log)
	if !ok {
		return
	}

	req, ok := h.decodeOrderItemCreatePayload(w, r, log)
	if !ok {
		return
	}

	item, err := h.service.AddItem(ctx, orderID, req, actorID)
	if err != nil {
		h.respondServiceError(w, log, err, "Could not create order item")
		return
	}

	links := apt.RESTfulLinksFor(item)
	w.WriteHeader(http.StatusCreated)
	apt.RespondSuccess(w, item, links...)
}

func (h *Handler) GetOrderItem(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetOrderItem")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseIDParam(w, r, log)
	if !ok {
		return
	}

	item, err := h.itemRepo.Get(ctx, id)
	if err != nil {
		log.Error("error loading order item", "error", err, "id", id.String())
		apt.RespondError(w, http.StatusNotFound, "Order item not found")
		return
	}
	if item == nil {
		apt.RespondError(w, http.StatusNotFound, "Order item not found")
		return
	}

	links := apt.RESTfulLinksFor(item)
	apt.RespondSuccess(w, item, links...)
}

func (h *Handler) ListOrderItems(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListOrderItems")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	orderIDStr := chi.URLParam(r, "orderID")
	orderID, err := uuid.Parse(orderIDStr)
	if err != nil {
		log.Debug("invalid order ID", "orderID", orderIDStr)
		apt.RespondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	items, err := h.itemRepo.ListByOrder(ctx, orderID)
	if err != nil {
		log.Error("error retrieving order items", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not retrieve order items")
		return
	}

	apt.RespondCollection(w, items, "order-item")
}

func (h *Handler) ChangeItemStatus(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ChangeItemStatus")
	defer finish()

	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseIDParam(w, r, log)
	if !ok {
		return
	}

	actorID, ok := h.parseActor(w, r, log)
	if !ok {
		return
	}

	req, ok := h.decodeStatusChangePayload(w, r, log)
	if !ok {
		return
	}
	if errs := ValidateStatusChange(req.Status); len(errs) > 0 {
		apt.RespondError(w, http.StatusBadRequest, errs[0])
		return
	}

	item, err := h.service.ChangeItemStatus(ctx, id, ItemStatus(req.Status), actorID)
	if err != nil {
		h.respondServiceError(w, log, err, "Could not update order item status")
		return
	}

	links := apt.RESTfulLinksFor(item)
	apt.RespondSuccess(w, item, links...)
}

// Helper methods

func (h *Handler) parseIDParam(w http.ResponseWriter, r *http.Request, log apt.Logger) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	if idStr == "" {
		log.Debug("missing id parameter")
		apt.RespondError(w, http.StatusBadRequest, "Missing id parameter")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		log.Debug("invalid id parameter", "id", idStr)
		apt.RespondError(w, http.StatusBadRequest, "Invalid id parameter")
		return uuid.Nil, false
	}

	return id, true
}

func (h *Handler) parseActor(w http.ResponseWriter, r *http.Request, log apt.Logger) (uuid.UUID, bool) {
	actorStr := r.Header.Get("X-Actor-ID")
	if actorStr == "" {
		log.Debug("missing actor header")
		apt.RespondError(w, http.StatusBadRequest, "Missing X-Actor-ID header")
		return uuid.Nil, false
	}

	actorID, err := uuid.Parse(actorStr)
	if err != nil {
		log.Debug("invalid actor header", "actor_id", actorStr)
		apt.RespondError(w, http.StatusBadRequest, "Invalid X-Actor-ID header")
		return uuid.Nil, false
	}

	return actorID, true
}

// respondServiceError maps typed rejections to stable HTTP statuses.
func (h *Handler) respondServiceError(w http.ResponseWriter, log apt.Logger, err error, fallback string) {
	var fe *Error
	if !errors.As(err, &fe) {
		log.Error("unexpected service error", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, fallback)
		return
	}

	log.Debug("operation rejected", "code", fe.Code, "message", fe.Message)

	switch fe.Code {
	case CodeValidation:
		apt.RespondError(w, http.StatusBadRequest, fe.Message)
	case CodeNotFound:
		apt.RespondError(w, http.StatusNotFound, fe.Message)
	case CodeInvalidTransition, CodeOrderNotModifiable, CodeTableNotFree:
		apt.RespondError(w, http.StatusConflict, fe.Message)
	case CodePermissionDenied:
		apt.RespondError(w, http.StatusForbidden, fe.Message)
	default:
		apt.RespondError(w, http.StatusInternalServerError, fallback)
	}
}

// Payload decoders

type OrderCreateRequest struct {
	TableID       *uuid.UUID `json:"table_id,omitempty"`
	StaffID       uuid.UUID  `json:"staff_id"`
	ServePolicy   string     `json:"serve_policy,omitempty"`
	CustomerLabel string     `json:"customer_label,omitempty"`
	Notes         string     `json:"notes,omitempty"`
}

type OrderItemCreateRequest struct {
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Quantity   int       `json:"quantity"`
	Notes      string    `json:"notes,omitempty"`
}

type StatusChangeRequest struct {
	Status string `json:"status"`
}

func (h *Handler) decodeOrderCreatePayload(w http.ResponseWriter, r *http.Request, log apt.Logger) (OrderCreateRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Debug("failed to read request body", "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Failed to read request body")
		return OrderCreateRequest{}, false
	}

	var req OrderCreateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		log.Debug("failed to decode request body", "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return OrderCreateRequest{}, false
	}

	return req, true
}

func (h *Handler) decodeOrderItemCreatePayload(w http.ResponseWriter, r *http.Request, log apt.Logger) (OrderItemCreateRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Debug("failed to read request body", "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Failed to read request body")
		return OrderItemCreateRequest{}, false
	}

	var req OrderItemCreateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		log.Debug("failed to decode request body", "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return OrderItemCreateRequest{}, false
	}

	return req, true
}

func (h *Handler) decodeStatusChangePayload(w http.ResponseWriter, r *http.Request, log apt.Logger) (StatusChangeRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Debug("failed to read request body", "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Failed to read request body")
		return StatusChangeRequest{}, false
	}

	var req StatusChangeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		log.Debug("failed to decode request body", "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return StatusChangeRequest{}, false
	}

	return req, true
}
