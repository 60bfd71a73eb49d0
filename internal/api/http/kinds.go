package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/arkilian/catalogmeta/internal/catalogs"
	"github.com/arkilian/catalogmeta/internal/property"
)

// KindSummary describes one registered kind.
type KindSummary struct {
	Name        string `json:"name"`
	Entity      string `json:"entity"`
	Description string `json:"description"`
}

// KindsResponse is returned by GET /v1/kinds.
type KindsResponse struct {
	Kinds     []KindSummary `json:"kinds"`
	RequestID string        `json:"request_id"`
}

// PropertyInfo documents one visible declaration.
type PropertyInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Immutable   bool     `json:"immutable"`
	Reserved    bool     `json:"reserved"`
	Default     *string  `json:"default,omitempty"`
	EnumValues  []string `json:"enum_values,omitempty"`
}

// PropertiesResponse is returned by GET /v1/kinds/{kind}/properties.
type PropertiesResponse struct {
	Kind       string         `json:"kind"`
	Strict     bool           `json:"strict_unknown_keys"`
	Properties []PropertyInfo `json:"properties"`
	RequestID  string         `json:"request_id"`
}

// PropertiesRequest carries caller-supplied properties.
type PropertiesRequest struct {
	Properties map[string]string `json:"properties"`
}

// PropertiesResult carries the caller-facing view of an entity's properties.
type PropertiesResult struct {
	Kind       string            `json:"kind"`
	Entity     string            `json:"entity,omitempty"`
	Properties map[string]string `json:"properties"`
	RequestID  string            `json:"request_id"`
}

// KindsHandler serves kind discovery and dry-run validation.
type KindsHandler struct {
	registry *catalogs.Registry
}

// NewKindsHandler creates a new kinds handler.
func NewKindsHandler(registry *catalogs.Registry) *KindsHandler {
	return &KindsHandler{registry: registry}
}

// List handles GET /v1/kinds.
func (h *KindsHandler) List(w http.ResponseWriter, r *http.Request) {
	resp := KindsResponse{Kinds: []KindSummary{}, RequestID: GetRequestID(r.Context())}
	for _, name := range h.registry.Names() {
		k, err := h.registry.Get(name)
		if err != nil {
			continue
		}
		resp.Kinds = append(resp.Kinds, KindSummary{
			Name:        k.Name,
			Entity:      string(k.Entity),
			Description: k.Description,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Properties handles GET /v1/kinds/{kind}/properties.
func (h *KindsHandler) Properties(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	k, err := h.registry.Get(r.PathValue("kind"))
	if err != nil {
		writeMetaError(w, err, requestID)
		return
	}

	resp := PropertiesResponse{
		Kind:       k.Name,
		Strict:     k.Schema.Strict(),
		Properties: []PropertyInfo{},
		RequestID:  requestID,
	}
	for _, d := range k.Schema.Visible() {
		resp.Properties = append(resp.Properties, describe(d))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Validate handles POST /v1/kinds/{kind}/validate. The properties are
// checked as for a create and nothing is stored.
func (h *KindsHandler) Validate(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	k, err := h.registry.Get(r.PathValue("kind"))
	if err != nil {
		writeMetaError(w, err, requestID)
		return
	}

	req, ok := decodeProperties(w, r, requestID)
	if !ok {
		return
	}

	normalized, err := k.Schema.ValidateForCreate(req.Properties)
	if err != nil {
		writeMetaError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, PropertiesResult{
		Kind:       k.Name,
		Properties: k.Schema.Display(normalized),
		RequestID:  requestID,
	})
}

func describe(d property.Declaration) PropertyInfo {
	info := PropertyInfo{
		Name:        d.Name(),
		Description: d.Description(),
		Type:        d.TypeName(),
		Required:    d.IsRequired(),
		Immutable:   d.IsImmutable(),
		Reserved:    d.IsReserved(),
	}
	if def, ok := d.EncodedDefault(); ok {
		info.Default = &def
	}
	if d.ValueType() == property.Enum {
		info.EnumValues = d.EnumType().Names()
	}
	return info
}

// maxRequestBodySize bounds the body of every request that carries one.
const maxRequestBodySize = 1 << 20

// bodyError writes the response for a body that could not be read or
// decoded.
func bodyError(w http.ResponseWriter, err error, requestID string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), requestID)
		return
	}
	writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
}

func decodeProperties(w http.ResponseWriter, r *http.Request, requestID string) (PropertiesRequest, bool) {
	var req PropertiesRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		bodyError(w, err, requestID)
		return req, false
	}
	if req.Properties == nil {
		req.Properties = map[string]string{}
	}
	return req, true
}
