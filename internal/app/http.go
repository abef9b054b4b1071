package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"rabbithole/api/internal/auth"
	"rabbithole/api/internal/validate"
)

type HTTPServer struct {
	service    *Service
	identity   *auth.Resolver
	metrics    *Metrics
	corsOrigin string
	log        zerolog.Logger
}

// NewHTTPServer wires the routes over service. A nil identity resolver
// trusts the caller-supplied identity; nil metrics get a fresh registry.
func NewHTTPServer(service *Service, identity *auth.Resolver, metrics *Metrics, corsOrigin string, log zerolog.Logger) *HTTPServer {
	if identity == nil {
		identity, _ = auth.NewResolver(string(auth.ModeTrusted), "")
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &HTTPServer{
		service:    service,
		identity:   identity,
		metrics:    metrics,
		corsOrigin: corsOrigin,
		log:        log,
	}
}

const apiPrefix = "/api"

// Handler serves every route at the root and again under /api.
func (s *HTTPServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(handleNotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(handleMethodNotAllowed)
	router.Use(s.metrics.middleware)
	s.routes(router)

	return s.withMiddleware(router)
}

// trimAPIPrefix maps /api/... onto the root routes so both share one
// router and its 404 and 405 handling.
func trimAPIPrefix(r *http.Request) *http.Request {
	path := r.URL.Path
	if path != apiPrefix && !strings.HasPrefix(path, apiPrefix+"/") {
		return r
	}
	trimmed := strings.TrimPrefix(path, apiPrefix)
	if trimmed == "" {
		trimmed = "/"
	}
	out := new(http.Request)
	*out = *r
	out.URL = new(url.URL)
	*out.URL = *r.URL
	out.URL.Path = trimmed
	out.URL.RawPath = strings.TrimPrefix(r.URL.RawPath, apiPrefix)
	return out
}

func (s *HTTPServer) routes(r *mux.Router) {
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/items", s.authed(s.handleSaveItem)).Methods(http.MethodPost)
	r.HandleFunc("/items/by-url", s.authed(s.handleItemByURL)).Methods(http.MethodGet)
	r.HandleFunc("/items/{id}", s.authed(s.handleGetItem)).Methods(http.MethodGet)
	r.HandleFunc("/items/{id}", s.authed(s.handleUpdateItem)).Methods(http.MethodPatch)
	r.HandleFunc("/items/{id}", s.authed(s.handleDeleteItem)).Methods(http.MethodDelete)
	r.HandleFunc("/items/{id}/notes", s.authed(s.handleSaveNote)).Methods(http.MethodPost)
	r.HandleFunc("/items/{id}/highlights", s.authed(s.handleSaveHighlight)).Methods(http.MethodPost)
	r.HandleFunc("/items/{id}/drawings", s.authed(s.handleSaveDrawing)).Methods(http.MethodPost)
	r.HandleFunc("/items/{id}/export", s.authed(s.handleExport)).Methods(http.MethodGet)

	r.HandleFunc("/notes/{id}", s.authed(s.handleDeleteNote)).Methods(http.MethodDelete)
	r.HandleFunc("/notes/{id}/history", s.authed(s.handleNoteHistory)).Methods(http.MethodGet)
	r.HandleFunc("/highlights/{id}", s.authed(s.handleDeleteHighlight)).Methods(http.MethodDelete)
	r.HandleFunc("/drawings/{id}", s.authed(s.handleDeleteDrawing)).Methods(http.MethodDelete)

	r.HandleFunc("/groups", s.authed(s.handleListGroups)).Methods(http.MethodGet)
	r.HandleFunc("/recommendations", s.authed(s.handleRecommendations)).Methods(http.MethodGet)
	r.HandleFunc("/search", s.authed(s.handleSearch)).Methods(http.MethodGet)
	r.HandleFunc("/blobs", s.authed(s.handleUploadBlob)).Methods(http.MethodPost)
	r.HandleFunc("/blobs/{ref}", s.authed(s.handleGetBlob)).Methods(http.MethodGet)
}

type authedHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (s *HTTPServer) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.identity.Identify(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		next(w, r, userID)
	}
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// Items

func (s *HTTPServer) handleSaveItem(w http.ResponseWriter, r *http.Request, userID string) {
	var input SaveItemInput
	if err := decodeBody(r, &input); err != nil {
		s.fail(w, r, err)
		return
	}
	item, err := s.service.SaveItem(r.Context(), userID, input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (s *HTTPServer) handleItemByURL(w http.ResponseWriter, r *http.Request, userID string) {
	bundle, err := s.service.GetItemByURL(r.Context(), userID, r.URL.Query().Get("url"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *HTTPServer) handleGetItem(w http.ResponseWriter, r *http.Request, userID string) {
	bundle, err := s.service.GetItem(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *HTTPServer) handleUpdateItem(w http.ResponseWriter, r *http.Request, userID string) {
	var input UpdateItemInput
	if err := decodeBody(r, &input); err != nil {
		s.fail(w, r, err)
		return
	}
	item, err := s.service.UpdateItem(r.Context(), userID, mux.Vars(r)["id"], input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (s *HTTPServer) handleDeleteItem(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.service.DeleteItem(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, userID string) {
	result, err := s.service.ExportItem(r.Context(), userID, mux.Vars(r)["id"], r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
	w.Header().Set("Content-Type", result.MimeType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// Annotations

func (s *HTTPServer) handleSaveNote(w http.ResponseWriter, r *http.Request, userID string) {
	var input NoteInput
	if err := decodeBody(r, &input); err != nil {
		s.fail(w, r, err)
		return
	}
	note, err := s.service.SaveNote(r.Context(), userID, mux.Vars(r)["id"], input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"note": note})
}

func (s *HTTPServer) handleDeleteNote(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.service.DeleteNote(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleNoteHistory(w http.ResponseWriter, r *http.Request, userID string) {
	revisions, err := s.service.NoteHistory(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": revisions})
}

func (s *HTTPServer) handleSaveHighlight(w http.ResponseWriter, r *http.Request, userID string) {
	var input HighlightInput
	if err := decodeBody(r, &input); err != nil {
		s.fail(w, r, err)
		return
	}
	highlight, err := s.service.SaveHighlight(r.Context(), userID, mux.Vars(r)["id"], input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"highlight": highlight})
}

func (s *HTTPServer) handleDeleteHighlight(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.service.DeleteHighlight(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleSaveDrawing(w http.ResponseWriter, r *http.Request, userID string) {
	var input DrawingInput
	if err := decodeBody(r, &input); err != nil {
		s.fail(w, r, err)
		return
	}
	drawing, err := s.service.SaveDrawing(r.Context(), userID, mux.Vars(r)["id"], input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drawing": drawing})
}

func (s *HTTPServer) handleDeleteDrawing(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.service.DeleteDrawing(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Groups, recommendations and search

func (s *HTTPServer) handleListGroups(w http.ResponseWriter, r *http.Request, userID string) {
	groups, err := s.service.ListGroups(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (s *HTTPServer) handleRecommendations(w http.ResponseWriter, r *http.Request, userID string) {
	result := s.service.Recommendations(r.Context(), userID)
	s.metrics.observeRecommendations(len(result.Recommendations))
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, userID string) {
	query := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.fail(w, r, validationError("limit", "number", "limit must be a non-negative number"))
			return
		}
		limit = parsed
	}
	response, err := s.service.Search(r.Context(), userID, query.Get("q"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// Ink blobs

func (s *HTTPServer) handleUploadBlob(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	upload, err := s.service.UploadBlob(r.Context(), userID, r.Body, r.Header.Get("Content-Type"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, upload)
}

func (s *HTTPServer) handleGetBlob(w http.ResponseWriter, r *http.Request, userID string) {
	info, reader, err := s.service.OpenBlob(r.Context(), userID, mux.Vars(r)["ref"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer reader.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = defaultInkMIME
	}
	w.Header().Set("Content-Type", contentType)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("stream blob failed")
	}
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, codeNotFound, "Not found", nil)
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Method not allowed", nil)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = randomRequestID()
		}
		logger := s.log.With().Str("request_id", requestID).Logger()
		r = r.WithContext(logger.WithContext(r.Context()))

		started := time.Now()
		path := r.URL.Path
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusOK)
		} else {
			next.ServeHTTP(writer, trimAPIPrefix(r))
		}

		logger.Info().
			Str("method", r.Method).
			Str("path", path).
			Int("status", writer.status).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-Id, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body != nil {
		defer r.Body.Close()
	}
	return validate.Decode(r.Body, target)
}
