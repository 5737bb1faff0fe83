package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/todolist-api/internal/events"
	"github.com/vyrodovalexey/todolist-api/internal/model"
	"github.com/vyrodovalexey/todolist-api/internal/store"
)

// TodoItemsPath is the base path of the todo items resource.
const TodoItemsPath = "/api/todoitems"

// routeTodoItem names the get-by-id route used to build Location headers.
const routeTodoItem = "todoitem"

// Response messages not covered by model validation errors.
const (
	msgInvalidBody = "invalid request body"
	msgInvalidID   = "invalid todo item ID"
)

var todoOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "todolist",
		Name:      "operations_total",
		Help:      "Total number of todo item operations by outcome",
	},
	[]string{"operation", "outcome"},
)

// RepositoryFactory opens a fresh unit of work for one request.
type RepositoryFactory func() store.Repository[model.TodoItem]

// TodoHandler handles REST API requests for todo items.
type TodoHandler struct {
	backend       store.Backend[model.TodoItem]
	newRepository RepositoryFactory
	publisher     events.Publisher
	logger        *zap.Logger
	router        *mux.Router
}

// NewTodoHandler creates a new TodoHandler instance. A nil publisher
// discards events.
func NewTodoHandler(
	backend store.Backend[model.TodoItem],
	publisher events.Publisher,
	logger *zap.Logger,
) *TodoHandler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &TodoHandler{
		backend: backend,
		newRepository: func() store.Repository[model.TodoItem] {
			return store.NewRepository[model.TodoItem](backend)
		},
		publisher: publisher,
		logger:    logger,
	}
}

// RegisterRoutes registers the REST API routes with the router.
func (h *TodoHandler) RegisterRoutes(router *mux.Router) {
	h.router = router

	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.ReadyCheck).Methods(http.MethodGet)
	router.HandleFunc(TodoItemsPath, h.ListTodoItems).Methods(http.MethodGet)
	router.HandleFunc(TodoItemsPath, h.CreateTodoItem).Methods(http.MethodPost)
	router.HandleFunc(TodoItemsPath+"/{id}", h.GetTodoItem).Methods(http.MethodGet).Name(routeTodoItem)
	router.HandleFunc(TodoItemsPath+"/{id}", h.UpdateTodoItem).Methods(http.MethodPut)
	router.HandleFunc(TodoItemsPath+"/{id}", h.DeleteTodoItem).Methods(http.MethodDelete)
}

// ListTodoItems handles GET /api/todoitems requests. Only incomplete
// items are returned.
func (h *TodoHandler) ListTodoItems(w http.ResponseWriter, r *http.Request) {
	repo := h.newRepository()

	items, err := repo.List(r.Context())
	if err != nil {
		h.handleStoreError(w, err, "list")
		return
	}

	todoOperationsTotal.WithLabelValues("list", "ok").Inc()
	h.writeJSON(w, http.StatusOK, model.Incomplete(items))
}

// GetTodoItem handles GET /api/todoitems/{id} requests.
func (h *TodoHandler) GetTodoItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	item, err := h.newRepository().Get(r.Context(), id)
	if err != nil {
		h.handleStoreError(w, err, "get")
		return
	}

	todoOperationsTotal.WithLabelValues("get", "ok").Inc()
	h.writeJSON(w, http.StatusOK, item)
}

// CreateTodoItem handles POST /api/todoitems requests.
func (h *TodoHandler) CreateTodoItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input model.TodoItem
	if !h.decodeBody(w, r, &input) {
		return
	}

	// Identity and completion state are owned by the server at creation.
	input.ID = uuid.Nil
	input.IsCompleted = false

	if err := input.Validate(); err != nil {
		h.rejectValidation(w, "create", err)
		return
	}

	repo := h.newRepository()

	items, err := repo.List(ctx)
	if err != nil {
		h.handleStoreError(w, err, "create")
		return
	}
	if _, exists := model.FindOpenDuplicate(items, input.Description, uuid.Nil); exists {
		h.rejectValidation(w, "create", model.ErrDescriptionExists)
		return
	}

	created, err := repo.Add(&input)
	if err != nil {
		h.handleStoreError(w, err, "create")
		return
	}
	if err := repo.SaveChanges(ctx); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			h.rejectValidation(w, "create", model.ErrDescriptionExists)
			return
		}
		h.handleStoreError(w, err, "create")
		return
	}

	h.publish(r, model.EventTodoCreated, *created)
	todoOperationsTotal.WithLabelValues("create", "ok").Inc()

	w.Header().Set("Location", h.itemLocation(created.ID))
	h.writeJSON(w, http.StatusCreated, created)
}

// UpdateTodoItem handles PUT /api/todoitems/{id} requests.
func (h *TodoHandler) UpdateTodoItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var input model.TodoItem
	if !h.decodeBody(w, r, &input) {
		return
	}

	if input.ID != id {
		h.rejectValidation(w, "update", model.ErrIDMismatch)
		return
	}

	if err := input.Validate(); err != nil {
		h.rejectValidation(w, "update", err)
		return
	}

	repo := h.newRepository()

	if !input.IsCompleted {
		items, err := repo.List(ctx)
		if err != nil {
			h.handleStoreError(w, err, "update")
			return
		}
		if _, exists := model.FindOpenDuplicate(items, input.Description, id); exists {
			h.rejectValidation(w, "update", model.ErrDescriptionExists)
			return
		}
	}

	if _, err := repo.Update(&input); err != nil {
		h.handleStoreError(w, err, "update")
		return
	}

	if err := repo.SaveChanges(ctx); err != nil {
		h.handleUpdateCommitError(w, r, repo, id, err)
		return
	}

	h.publish(r, model.EventTodoUpdated, input)
	todoOperationsTotal.WithLabelValues("update", "ok").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateCommitError maps a failed update commit. A conflict caused
// by the record having been deleted is a 404; any other conflict is
// unrecoverable.
func (h *TodoHandler) handleUpdateCommitError(
	w http.ResponseWriter,
	r *http.Request,
	repo store.Repository[model.TodoItem],
	id uuid.UUID,
	err error,
) {
	switch {
	case errors.Is(err, store.ErrConcurrencyConflict):
		_, getErr := repo.Get(r.Context(), id)
		if errors.Is(getErr, store.ErrNotFound) {
			h.logger.Info("update target was deleted concurrently", zap.String("id", id.String()))
			todoOperationsTotal.WithLabelValues("update", "not_found").Inc()
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if getErr != nil {
			err = errors.Join(err, getErr)
		}
		h.handleStoreError(w, err, "update")
	case errors.Is(err, store.ErrAlreadyExists):
		h.rejectValidation(w, "update", model.ErrDescriptionExists)
	default:
		h.handleStoreError(w, err, "update")
	}
}

// DeleteTodoItem handles DELETE /api/todoitems/{id} requests.
func (h *TodoHandler) DeleteTodoItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	repo := h.newRepository()

	item, err := repo.Get(ctx, id)
	if err != nil {
		h.handleStoreError(w, err, "delete")
		return
	}

	if _, err := repo.Delete(item); err != nil {
		h.handleStoreError(w, err, "delete")
		return
	}

	if err := repo.SaveChanges(ctx); err != nil {
		if errors.Is(err, store.ErrConcurrencyConflict) {
			todoOperationsTotal.WithLabelValues("delete", "not_found").Inc()
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.handleStoreError(w, err, "delete")
		return
	}

	h.publish(r, model.EventTodoDeleted, *item)
	todoOperationsTotal.WithLabelValues("delete", "ok").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// pathID parses the {id} route variable, writing a 400 on failure.
func (h *TodoHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := mux.Vars(r)["id"]

	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		h.logger.Warn("invalid todo item id", zap.String("id", raw))
		h.writeText(w, http.StatusBadRequest, msgInvalidID)
		return uuid.Nil, false
	}

	return id, true
}

// decodeBody decodes the JSON request body into dst, writing a 400 on
// failure.
func (h *TodoHandler) decodeBody(w http.ResponseWriter, r *http.Request, dst *model.TodoItem) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		h.writeText(w, http.StatusBadRequest, msgInvalidBody)
		return false
	}
	return true
}

// rejectValidation writes a 400 with the validation message as body.
func (h *TodoHandler) rejectValidation(w http.ResponseWriter, operation string, err error) {
	h.logger.Warn("validation failed", zap.String("operation", operation), zap.Error(err))
	todoOperationsTotal.WithLabelValues(operation, "invalid").Inc()
	h.writeText(w, http.StatusBadRequest, err.Error())
}

// publish emits event for item. Failures are logged and do not affect
// the response.
func (h *TodoHandler) publish(r *http.Request, eventType model.TodoEventType, item model.TodoItem) {
	if err := h.publisher.Publish(r.Context(), model.NewTodoEvent(eventType, item)); err != nil {
		h.logger.Warn("failed to publish todo event",
			zap.String("type", string(eventType)),
			zap.String("id", item.ID.String()),
			zap.Error(err),
		)
	}
}

// itemLocation returns the URL of the get-by-id route for id.
func (h *TodoHandler) itemLocation(id uuid.UUID) string {
	if h.router != nil {
		if route := h.router.Get(routeTodoItem); route != nil {
			if u, err := route.URL("id", id.String()); err == nil {
				return u.String()
			}
		}
	}
	return TodoItemsPath + "/" + id.String()
}

// handleStoreError handles store errors and writes appropriate HTTP responses.
func (h *TodoHandler) handleStoreError(w http.ResponseWriter, err error, operation string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		todoOperationsTotal.WithLabelValues(operation, "not_found").Inc()
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, store.ErrInvalidID):
		todoOperationsTotal.WithLabelValues(operation, "invalid").Inc()
		h.writeText(w, http.StatusBadRequest, msgInvalidID)
	default:
		todoOperationsTotal.WithLabelValues(operation, "error").Inc()
		h.logger.Error("store operation failed", zap.String("operation", operation), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
