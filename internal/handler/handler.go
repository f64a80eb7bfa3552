// Package handler содержит HTTP-обработчики API сервиса обмена вещами.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/mmeshcher/ecoshare/internal/lending"
	"github.com/mmeshcher/ecoshare/internal/middleware"
	"github.com/mmeshcher/ecoshare/internal/model"
	"github.com/mmeshcher/ecoshare/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 1 << 20

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	AddItem(ctx context.Context, ownerID string, draft model.ItemDraft) (*model.Item, error)
	ListAvailableItems(ctx context.Context, q service.BrowseQuery) ([]model.Item, error)
	GetItem(ctx context.Context, itemID string) (*model.Item, error)
	UpdateItem(ctx context.Context, itemID, actorID string, patch model.ItemPatch) (*model.Item, error)
	DeleteItem(ctx context.Context, itemID, actorID string) error
	SubmitRequest(ctx context.Context, itemID, requesterID, message string) (*model.BorrowRequest, error)
	RespondToRequest(ctx context.Context, itemID, requestID, actorID, decision string) (*model.Item, error)
	ReturnItem(ctx context.Context, itemID, actorID string, rating *int, review string) (*model.Item, error)
	MyOwnedItems(ctx context.Context, userID string) ([]model.Item, error)
	MyBorrowedItems(ctx context.Context, userID string) ([]model.Item, error)
	MyPendingRequests(ctx context.Context, userID string) ([]model.PendingRequest, error)
	GetRewards(ctx context.Context, userID string) (*model.RewardSummary, error)
}

// Handler реализует HTTP-обработчики API сервиса обмена вещами.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type itemRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Images      []string        `json:"images"`
	Location    *model.Location `json:"location"`
	Condition   model.Condition `json:"condition"`
}

type itemPatchRequest struct {
	Title        *string          `json:"title"`
	Description  *string          `json:"description"`
	Category     *string          `json:"category"`
	Images       []string         `json:"images"`
	Location     *model.Location  `json:"location"`
	Condition    *model.Condition `json:"condition"`
	Availability *bool            `json:"availability"`
}

type borrowRequestBody struct {
	Message string `json:"message"`
}

type respondRequestBody struct {
	Status string `json:"status"`
}

type returnRequestBody struct {
	Rating *int   `json:"rating"`
	Review string `json:"review"`
}

// AddItem публикует новую вещь текущего пользователя.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}

	it, err := h.service.AddItem(r.Context(), userID, model.ItemDraft{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Images:      req.Images,
		Location:    req.Location,
		Condition:   req.Condition,
	})
	if err != nil {
		h.writeError(w, r, "add item", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newItemResponse(it))
}

// ListItems возвращает каталог доступных вещей с фильтрами category, lat, lng и radius.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := service.BrowseQuery{Category: q.Get("category")}

	var err error
	if query.Lat, err = parseOptionalFloat(q.Get("lat")); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid lat")
		return
	}
	if query.Lng, err = parseOptionalFloat(q.Get("lng")); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid lng")
		return
	}
	radius, err := parseOptionalFloat(q.Get("radius"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid radius")
		return
	}
	if radius != nil {
		query.RadiusKm = *radius
	}

	items, err := h.service.ListAvailableItems(r.Context(), query)
	if err != nil {
		h.writeError(w, r, "list items", err)
		return
	}

	h.writeJSON(w, http.StatusOK, newItemsResponse(items))
}

// GetItem возвращает вещь по идентификатору.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.service.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "get item", err)
		return
	}

	h.writeJSON(w, http.StatusOK, newItemResponse(it))
}

// UpdateItem изменяет вещь текущего пользователя.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req itemPatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	it, err := h.service.UpdateItem(r.Context(), chi.URLParam(r, "id"), userID, model.ItemPatch{
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Images:       req.Images,
		Location:     req.Location,
		Condition:    req.Condition,
		Availability: req.Availability,
	})
	if err != nil {
		h.writeError(w, r, "update item", err)
		return
	}

	h.writeJSON(w, http.StatusOK, newItemResponse(it))
}

// DeleteItem удаляет вещь текущего пользователя.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteItem(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		h.writeError(w, r, "delete item", err)
		return
	}

	writeMessage(w, http.StatusOK, "Item deleted")
}

// RequestItem создаёт заявку текущего пользователя на вещь.
func (h *Handler) RequestItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req borrowRequestBody
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.service.SubmitRequest(r.Context(), chi.URLParam(r, "id"), userID, req.Message)
	if err != nil {
		h.writeError(w, r, "submit request", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newRequestResponse(*created))
}

// RespondToRequest применяет решение владельца по заявке.
func (h *Handler) RespondToRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req respondRequestBody
	if !h.decode(w, r, &req) {
		return
	}

	it, err := h.service.RespondToRequest(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "requestID"), userID, req.Status)
	if err != nil {
		h.writeError(w, r, "respond to request", err)
		return
	}

	h.writeJSON(w, http.StatusOK, newItemResponse(it))
}

// ReturnItem завершает заём вещи.
func (h *Handler) ReturnItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req returnRequestBody
	if !h.decode(w, r, &req) {
		return
	}

	it, err := h.service.ReturnItem(r.Context(), chi.URLParam(r, "id"), userID, req.Rating, req.Review)
	if err != nil {
		h.writeError(w, r, "return item", err)
		return
	}

	h.writeJSON(w, http.StatusOK, newItemResponse(it))
}

// MyShared возвращает вещи текущего пользователя.
func (h *Handler) MyShared(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	items, err := h.service.MyOwnedItems(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, "list owned items", err)
		return
	}

	h.writeJSON(w, http.StatusOK, newItemsResponse(items))
}

// MyBorrowed возвращает вещи, которые сейчас у текущего пользователя.
func (h *Handler) MyBorrowed(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	items, err := h.service.MyBorrowedItems(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, "list borrowed items", err)
		return
	}

	h.writeJSON(w, http.StatusOK, newItemsResponse(items))
}

// MyRequests возвращает заявки на рассмотрении по вещам текущего пользователя.
func (h *Handler) MyRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	pending, err := h.service.MyPendingRequests(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, "list pending requests", err)
		return
	}
	if pending == nil {
		pending = []model.PendingRequest{}
	}

	h.writeJSON(w, http.StatusOK, pending)
}

// Rewards возвращает баланс эко-баллов и журнал начислений текущего пользователя.
func (h *Handler) Rewards(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	summary, err := h.service.GetRewards(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, "get rewards", err)
		return
	}

	h.writeJSON(w, http.StatusOK, newRewardsResponse(summary))
}

// Health отвечает на проверку живости.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}
	return userID, ok
}

// decode читает JSON-тело запроса. Пустое тело даёт нулевое значение.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeError переводит виды ошибок в HTTP-статусы. Неизвестные ошибки логируются.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var status int
	switch {
	case errors.Is(err, lending.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, lending.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, lending.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, lending.ErrValidation):
		status = http.StatusBadRequest
	default:
		h.logger.Error(op+" error",
			zap.Error(err),
			zap.String("path", r.URL.Path),
		)
		writeMessage(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	writeMessage(w, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response error", zap.Error(err))
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}

func parseOptionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
