// Package server exposes the download pipeline over HTTP with a chi
// router, using hand declared request/response types in place of
// oapi-codegen output, since no OpenAPI document ships with this module
// (see DESIGN.md).
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mlb/dezoomify-rs/internal/config"
	"github.com/mlb/dezoomify-rs/internal/dezoomer"
	"github.com/mlb/dezoomify-rs/internal/download"
	"github.com/mlb/dezoomify-rs/internal/fetch"
	"github.com/mlb/dezoomify-rs/internal/tilecache"
)

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    int       `json:"uptime"`
	Version   string    `json:"version"`
}

// DezoomRequest is the body of POST /api/v1/dezoom.
type DezoomRequest struct {
	URL         string            `json:"url"`
	Dezoomer    string            `json:"dezoomer,omitempty"`
	ZoomLevel   *int              `json:"zoom_level,omitempty"`
	ImageIndex  *int              `json:"image_index,omitempty"`
	MaxWidth    int               `json:"max_width,omitempty"`
	MaxHeight   int               `json:"max_height,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Compression int               `json:"compression,omitempty"`
}

// ErrorResponse is the body returned for any non-2xx/206 response.
type ErrorResponse struct {
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// TileErrorResponse is the body returned when some tiles downloaded and
// others failed (HTTP 206).
type TileErrorResponse struct {
	Error           string   `json:"error"`
	Message         string   `json:"message"`
	FailedTiles     []string `json:"failed_tiles"`
	SuccessfulTiles int      `json:"successful_tiles"`
	TotalTiles      int      `json:"total_tiles"`
	RequestID       string   `json:"request_id,omitempty"`
}

// Server implements the dezoom HTTP surface: resolve, select, download,
// and stream the resulting image back, or accumulate and report partial
// tile failures.
type Server struct {
	startTime time.Time
	version   string
	registry  *dezoomer.Registry
	client    *fetch.Client
	cache     *tilecache.Cache
}

func New(version string, reg *dezoomer.Registry, client *fetch.Client, cache *tilecache.Cache) *Server {
	return &Server{startTime: time.Now(), version: version, registry: reg, client: client, cache: cache}
}

func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    int(time.Since(s.startTime).Seconds()),
		Version:   s.version,
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateDezoomedImage handles POST /api/v1/dezoom: runs the full C6->C7->C5
// pipeline against a temp file and streams the result back as the body.
func (s *Server) CreateDezoomedImage(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	var req DezoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid JSON in request body", requestID, nil)
		return
	}
	if req.URL == "" {
		s.writeValidationError(w, "url is required", requestID)
		return
	}

	args := config.Default()
	// A request has no terminal attached to answer a prompt, so an ambiguous
	// image or zoom level always falls back to the first/largest, exactly
	// like the bulk driver.
	args.Interactive = false
	if req.Dezoomer != "" {
		args.Dezoomer = req.Dezoomer
	}
	if req.ZoomLevel != nil {
		args.HasZoom = true
		args.ZoomLevel = *req.ZoomLevel
	}
	if req.ImageIndex != nil {
		args.HasImage = true
		args.ImageIndex = *req.ImageIndex
	}
	args.MaxWidth = req.MaxWidth
	args.MaxHeight = req.MaxHeight
	if req.Compression > 0 {
		args.Compression = uint8(req.Compression)
	}

	tmp, err := os.CreateTemp("", "dezoom-*.png")
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "creating temp output file", requestID, nil)
		return
	}
	outfile := tmp.Name()
	tmp.Close()
	defer os.Remove(outfile)

	pipeline := &download.Pipeline{
		Registry: s.registry,
		Client:   s.client,
		Cache:    s.cache,
		Args:     args,
	}

	outcome, err := pipeline.Run(r.Context(), req.URL, outfile)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "DEZOOM_FAILED", err.Error(), requestID, nil)
		return
	}
	if len(outcome.Result.Failures) > 0 {
		failed := make([]string, len(outcome.Result.Failures))
		for i, f := range outcome.Result.Failures {
			failed[i] = f.Ref.URL
		}
		resp := TileErrorResponse{
			Error:           "PARTIAL_DOWNLOAD",
			Message:         "some tiles could not be downloaded",
			FailedTiles:     failed,
			SuccessfulTiles: outcome.Result.Successes,
			TotalTiles:      outcome.Result.Successes + len(outcome.Result.Failures),
			RequestID:       requestID,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPartialContent)
		json.NewEncoder(w).Encode(resp)
		return
	}

	data, err := os.ReadFile(outfile)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "reading generated output", requestID, nil)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("error writing dezoom response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message, requestID string, details map[string]any) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message, RequestID: requestID, Details: details})
}

func (s *Server) writeValidationError(w http.ResponseWriter, message, requestID string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "VALIDATION_ERROR", Message: message, RequestID: requestID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("error encoding response: %v", err)
	}
}
