// Package httpapi provides the REST HTTP adapter for the engine service.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hylla/flyt/internal/app"
	"github.com/hylla/flyt/internal/domain"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	service *app.Service
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter over the engine service.
func NewHandler(service *app.Service) *Handler {
	return &Handler{service: service}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := normalizePath(r.URL.Path)
	segments := strings.Split(path, "/")

	switch {
	case path == "boards":
		switch r.Method {
		case http.MethodGet:
			h.handleListBoards(w, r)
		case http.MethodPost:
			h.handleCreateBoard(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case len(segments) == 2 && segments[0] == "boards":
		if r.Method != http.MethodPatch {
			writeMethodNotAllowed(w, http.MethodPatch)
			return
		}
		h.handleRenameBoard(w, r, segments[1])
	case len(segments) == 3 && segments[0] == "boards" && segments[2] == "containers":
		switch r.Method {
		case http.MethodGet:
			h.handleListContainers(w, r, segments[1])
		case http.MethodPost:
			h.handleCreateContainer(w, r, segments[1])
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case len(segments) == 2 && segments[0] == "containers":
		switch r.Method {
		case http.MethodPatch:
			h.handleRenameContainer(w, r, segments[1])
		case http.MethodDelete:
			h.handleDeleteContainer(w, r, segments[1])
		default:
			writeMethodNotAllowed(w, http.MethodPatch, http.MethodDelete)
		}
	case len(segments) == 3 && segments[0] == "containers" && segments[2] == "move":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleMoveContainer(w, r, segments[1])
	case len(segments) == 3 && segments[0] == "containers" && segments[2] == "items":
		switch r.Method {
		case http.MethodGet:
			h.handleListItems(w, r, segments[1])
		case http.MethodPost:
			h.handleCreateItem(w, r, segments[1])
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case len(segments) == 2 && segments[0] == "items":
		switch r.Method {
		case http.MethodGet:
			h.handleGetItem(w, r, segments[1])
		case http.MethodPatch:
			h.handleRetitleItem(w, r, segments[1])
		case http.MethodDelete:
			h.handleDeleteItem(w, r, segments[1])
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
		}
	case len(segments) == 3 && segments[0] == "items" && segments[2] == "move":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleMoveItem(w, r, segments[1])
	case len(segments) == 3 && segments[0] == "items" && segments[2] == "timeline":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleItemTimeline(w, r, segments[1])
	case path == "timelines":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleItemTimelines(w, r)
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	}
}

type createBoardRequest struct {
	Name string `json:"name"`
}

type boardResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// handleCreateBoard serves POST `/boards`.
func (h *Handler) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	var req createBoardRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	board, err := h.service.CreateBoard(r.Context(), req.Name)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBoardResponse(board))
}

// handleListBoards serves GET `/boards`.
func (h *Handler) handleListBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := h.service.ListBoards(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	out := make([]boardResponse, 0, len(boards))
	for _, board := range boards {
		out = append(out, toBoardResponse(board))
	}
	writeJSON(w, http.StatusOK, map[string]any{"boards": out})
}

type renameBoardRequest struct {
	Name string `json:"name"`
}

// handleRenameBoard serves PATCH `/boards/{id}`.
func (h *Handler) handleRenameBoard(w http.ResponseWriter, r *http.Request, boardID string) {
	var req renameBoardRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	board, err := h.service.RenameBoard(r.Context(), boardID, req.Name)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBoardResponse(board))
}

type createContainerRequest struct {
	Name string `json:"name"`
}

type containerResponse struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"board_id"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// handleCreateContainer serves POST `/boards/{id}/containers`.
func (h *Handler) handleCreateContainer(w http.ResponseWriter, r *http.Request, boardID string) {
	var req createContainerRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	container, err := h.service.CreateContainer(r.Context(), boardID, req.Name)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContainerResponse(container))
}

// handleListContainers serves GET `/boards/{id}/containers`.
func (h *Handler) handleListContainers(w http.ResponseWriter, r *http.Request, boardID string) {
	containers, err := h.service.ListContainers(r.Context(), boardID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	out := make([]containerResponse, 0, len(containers))
	for _, container := range containers {
		out = append(out, toContainerResponse(container))
	}
	writeJSON(w, http.StatusOK, map[string]any{"containers": out})
}

type renameContainerRequest struct {
	Name string `json:"name"`
}

// handleRenameContainer serves PATCH `/containers/{id}`.
func (h *Handler) handleRenameContainer(w http.ResponseWriter, r *http.Request, containerID string) {
	var req renameContainerRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	container, err := h.service.RenameContainer(r.Context(), containerID, req.Name)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContainerResponse(container))
}

type moveContainerRequest struct {
	// Position < 0 or absent moves the container to the end of its board.
	Position *int `json:"position"`
}

// handleMoveContainer serves POST `/containers/{id}/move`.
func (h *Handler) handleMoveContainer(w http.ResponseWriter, r *http.Request, containerID string) {
	var req moveContainerRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	position := -1
	if req.Position != nil {
		position = *req.Position
	}
	container, err := h.service.MoveContainer(r.Context(), containerID, position)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContainerResponse(container))
}

// handleDeleteContainer serves DELETE `/containers/{id}`.
func (h *Handler) handleDeleteContainer(w http.ResponseWriter, r *http.Request, containerID string) {
	if err := h.service.DeleteContainer(r.Context(), containerID); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createItemRequest struct {
	Title string `json:"title"`
}

type itemResponse struct {
	ID          string    `json:"id"`
	BoardID     string    `json:"board_id"`
	ContainerID string    `json:"container_id"`
	Position    int       `json:"position"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// handleCreateItem serves POST `/containers/{id}/items`.
func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request, containerID string) {
	var req createItemRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	item, err := h.service.CreateItem(r.Context(), app.CreateItemInput{
		ContainerID: containerID,
		Title:       req.Title,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemResponse(item))
}

// handleListItems serves GET `/containers/{id}/items`.
func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request, containerID string) {
	items, err := h.service.ListItems(r.Context(), containerID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

// handleGetItem serves GET `/items/{id}`.
func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request, itemID string) {
	item, err := h.service.GetItem(r.Context(), itemID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

type retitleItemRequest struct {
	Title string `json:"title"`
}

// handleRetitleItem serves PATCH `/items/{id}`.
func (h *Handler) handleRetitleItem(w http.ResponseWriter, r *http.Request, itemID string) {
	var req retitleItemRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	item, err := h.service.RetitleItem(r.Context(), itemID, req.Title)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

// handleDeleteItem serves DELETE `/items/{id}`.
func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request, itemID string) {
	if err := h.service.DeleteItem(r.Context(), itemID); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveItemRequest struct {
	ToContainerID string `json:"to_container_id"`
	// Position < 0 or absent appends to the end of the target container.
	Position *int `json:"position"`
}

// handleMoveItem serves POST `/items/{id}/move`.
func (h *Handler) handleMoveItem(w http.ResponseWriter, r *http.Request, itemID string) {
	var req moveItemRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	position := -1
	if req.Position != nil {
		position = *req.Position
	}
	item, err := h.service.MoveItem(r.Context(), itemID, req.ToContainerID, position)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

type segmentResponse struct {
	ContainerID    string    `json:"container_id"`
	ContainerLabel string    `json:"container_label"`
	StartAt        time.Time `json:"start_at"`
	EndAt          time.Time `json:"end_at"`
	DurationDays   int       `json:"duration_days"`
	IsCurrent      bool      `json:"is_current"`
}

type timelineResponse struct {
	ItemID   string            `json:"item_id"`
	Found    bool              `json:"found"`
	Segments []segmentResponse `json:"segments"`
}

// handleItemTimeline serves GET `/items/{id}/timeline`.
func (h *Handler) handleItemTimeline(w http.ResponseWriter, r *http.Request, itemID string) {
	segments, err := h.service.ItemTimeline(r.Context(), itemID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"item_id":  itemID,
		"segments": toSegmentResponses(segments),
	})
}

// handleItemTimelines serves GET `/timelines?ids=a,b,c`.
func (h *Handler) handleItemTimelines(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("ids"))
	if raw == "" {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "ids query parameter is required",
			Hint:    "Pass a comma-separated list of item ids.",
		})
		return
	}
	ids := strings.Split(raw, ",")
	timelines, err := h.service.ItemTimelines(r.Context(), ids)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	out := make([]timelineResponse, 0, len(timelines))
	for _, timeline := range timelines {
		out = append(out, timelineResponse{
			ItemID:   timeline.ItemID,
			Found:    timeline.Found,
			Segments: toSegmentResponses(timeline.Segments),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"timelines": out})
}

func toBoardResponse(b domain.Board) boardResponse {
	return boardResponse{ID: b.ID, Name: b.Name, CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt}
}

func toContainerResponse(c domain.Container) containerResponse {
	return containerResponse{
		ID:        c.ID,
		BoardID:   c.BoardID,
		Name:      c.Name,
		Position:  c.Position,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toItemResponse(item domain.Item) itemResponse {
	return itemResponse{
		ID:          item.ID,
		BoardID:     item.BoardID,
		ContainerID: item.ContainerID,
		Position:    item.Position,
		Title:       item.Title,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func toSegmentResponses(segments []domain.ResidencySegment) []segmentResponse {
	out := make([]segmentResponse, 0, len(segments))
	for _, segment := range segments {
		out = append(out, segmentResponse{
			ContainerID:    segment.ContainerID,
			ContainerLabel: segment.ContainerLabel,
			StartAt:        segment.StartAt,
			EndAt:          segment.EndAt,
			DurationDays:   segment.DurationDays,
			IsCurrent:      segment.IsCurrent,
		})
	}
	return out
}

// errInvalidBody marks request bodies that fail strict decoding.
var errInvalidBody = errors.New("invalid request body")

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps service errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, app.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, app.ErrBatchTooLarge):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "batch_too_large",
			Message: err.Error(),
			Hint:    "Split the request into smaller id batches.",
		})
	case errors.Is(err, errInvalidBody),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidTitle),
		errors.Is(err, domain.ErrInvalidPosition),
		errors.Is(err, domain.ErrInvalidContainerID):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSONError(w, http.StatusGatewayTimeout, APIError{
			Code:    "timeout",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(errInvalidBody, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", errInvalidBody)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
