package http

import (
	"io"
	"net/http"

	metaerrors "github.com/arkilian/catalogmeta/internal/errors"
	"github.com/arkilian/catalogmeta/internal/lifecycle"
	"github.com/arkilian/catalogmeta/pkg/partitions"
	jsoniter "github.com/json-iterator/go"
)

// PartitionsResponse is returned by GET /v1/entities/{entity}/partitions.
type PartitionsResponse struct {
	Entity     string                `json:"entity"`
	Partitions []jsoniter.RawMessage `json:"partitions"`
	RequestID  string                `json:"request_id"`
}

// EntityListResponse is returned by GET /v1/entities.
type EntityListResponse struct {
	Entities  []string `json:"entities"`
	RequestID string   `json:"request_id"`
}

// EntitiesHandler serves the entity lifecycle endpoints.
type EntitiesHandler struct {
	service *lifecycle.Service
}

// NewEntitiesHandler creates a new entities handler.
func NewEntitiesHandler(service *lifecycle.Service) *EntitiesHandler {
	return &EntitiesHandler{service: service}
}

// List handles GET /v1/entities.
func (h *EntitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	names, err := h.service.Entities(r.Context())
	if err != nil {
		writeMetaError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, EntityListResponse{Entities: names, RequestID: requestID})
}

// Create handles POST /v1/kinds/{kind}/entities/{entity}.
func (h *EntitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	req, ok := decodeProperties(w, r, requestID)
	if !ok {
		return
	}

	kind, entity := r.PathValue("kind"), r.PathValue("entity")
	shown, err := h.service.Create(r.Context(), kind, entity, req.Properties)
	if err != nil {
		writeMetaError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusCreated, PropertiesResult{Kind: kind, Entity: entity, Properties: shown, RequestID: requestID})
}

// Alter handles PATCH /v1/kinds/{kind}/entities/{entity}.
func (h *EntitiesHandler) Alter(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	req, ok := decodeProperties(w, r, requestID)
	if !ok {
		return
	}

	kind, entity := r.PathValue("kind"), r.PathValue("entity")
	shown, err := h.service.Alter(r.Context(), kind, entity, req.Properties)
	if err != nil {
		writeMetaError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, PropertiesResult{Kind: kind, Entity: entity, Properties: shown, RequestID: requestID})
}

// Describe handles GET /v1/kinds/{kind}/entities/{entity}.
func (h *EntitiesHandler) Describe(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	kind, entity := r.PathValue("kind"), r.PathValue("entity")

	shown, err := h.service.Describe(r.Context(), kind, entity)
	if err != nil {
		writeMetaError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, PropertiesResult{Kind: kind, Entity: entity, Properties: shown, RequestID: requestID})
}

// HistoryResponse is returned by GET /v1/kinds/{kind}/entities/{entity}/history.
type HistoryResponse struct {
	Kind      string              `json:"kind"`
	Entity    string              `json:"entity"`
	Revisions []map[string]string `json:"revisions"`
	RequestID string              `json:"request_id"`
}

// History handles GET /v1/kinds/{kind}/entities/{entity}/history.
func (h *EntitiesHandler) History(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	kind, entity := r.PathValue("kind"), r.PathValue("entity")

	revisions, err := h.service.History(r.Context(), kind, entity)
	if err != nil {
		writeMetaError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Kind: kind, Entity: entity, Revisions: revisions, RequestID: requestID})
}

// AddPartition handles POST /v1/entities/{entity}/partitions. The body is a
// partition in its wire form.
func (h *EntitiesHandler) AddPartition(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		bodyError(w, err, requestID)
		return
	}
	p, err := partitions.Unmarshal(body)
	if err != nil {
		if metaerrors.GetCategory(err) == "" {
			writeError(w, http.StatusBadRequest, err.Error(), requestID)
			return
		}
		writeMetaError(w, err, requestID)
		return
	}

	if err := h.service.AddPartition(r.Context(), r.PathValue("entity"), p); err != nil {
		writeMetaError(w, err, requestID)
		return
	}
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(http.StatusNoContent)
}

// Partitions handles GET /v1/entities/{entity}/partitions.
func (h *EntitiesHandler) Partitions(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	entity := r.PathValue("entity")

	parts, err := h.service.Partitions(r.Context(), entity)
	if err != nil {
		writeMetaError(w, err, requestID)
		return
	}

	resp := PartitionsResponse{Entity: entity, Partitions: []jsoniter.RawMessage{}, RequestID: requestID}
	for _, p := range parts {
		data, err := partitions.Marshal(p)
		if err != nil {
			writeMetaError(w, err, requestID)
			return
		}
		resp.Partitions = append(resp.Partitions, data)
	}
	writeJSON(w, http.StatusOK, resp)
}
