// Package app is the HTTP surface over the artifact, export, search and
// asset services. Authentication happens in the upstream chat gateway,
// which forwards the caller's identity in the X-Atelier-User header.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"atelier/api/internal/artifact"
	"atelier/api/internal/assets"
	"atelier/api/internal/export"
	"atelier/api/internal/search"
	"atelier/api/internal/store"
)

const userHeader = "X-Atelier-User"

// Pinger reports storage liveness for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HTTPServer struct {
	artifacts  *artifact.Service
	exporter   *export.Service
	searcher   *search.Service
	assets     *assets.Store
	pinger     Pinger
	corsOrigin string
}

// NewHTTPServer wires the handler. searcher and assets may be nil; the
// corresponding endpoints then report 503.
func NewHTTPServer(artifacts *artifact.Service, exporter *export.Service, searcher *search.Service, assetStore *assets.Store, pinger Pinger, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		artifacts:  artifacts,
		exporter:   exporter,
		searcher:   searcher,
		assets:     assetStore,
		pinger:     pinger,
		corsOrigin: corsOrigin,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	parts := splitPath(r.URL.Path)

	// /api/threads/{threadID}/artifacts
	if len(parts) == 4 && parts[0] == "api" && parts[1] == "threads" && parts[3] == "artifacts" {
		threadID := parts[2]
		switch r.Method {
		case http.MethodPost:
			s.handleCreateArtifact(w, r, threadID)
			return
		case http.MethodGet:
			s.handleListArtifacts(w, r, threadID)
			return
		}
	}

	// /api/artifacts/{id}[/versions|/revert|/export]
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "artifacts" {
		artifactID := parts[2]

		if len(parts) == 3 {
			switch r.Method {
			case http.MethodGet:
				s.handleGetCurrent(w, r, artifactID)
				return
			case http.MethodPut:
				s.handleUpdateArtifact(w, r, artifactID)
				return
			case http.MethodDelete:
				s.handleDeleteArtifact(w, r, artifactID)
				return
			}
		}

		if len(parts) == 4 {
			switch {
			case parts[3] == "versions" && r.Method == http.MethodGet:
				s.handleGetVersions(w, r, artifactID)
				return
			case parts[3] == "revert" && r.Method == http.MethodPost:
				s.handleRevertArtifact(w, r, artifactID)
				return
			case parts[3] == "export" && r.Method == http.MethodGet:
				s.handleExportArtifact(w, r, artifactID)
				return
			}
		}
	}

	// /api/assets[/{object}]
	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "assets" {
		switch {
		case len(parts) == 2 && r.Method == http.MethodPost:
			s.handleUploadAsset(w, r)
			return
		case len(parts) == 3 && r.Method == http.MethodGet:
			s.handleAssetURL(w, r, parts[2])
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.pinger.Ping(ctx); err != nil {
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

func (s *HTTPServer) handleCreateArtifact(w http.ResponseWriter, r *http.Request, threadID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body struct {
		Title      string `json:"title"`
		Content    string `json:"content"`
		AuthorType string `json:"authorType"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.Title) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
		return
	}
	if body.AuthorType == "" {
		body.AuthorType = store.AuthorUser
	}

	created, err := s.artifacts.Create(r.Context(), threadID, userID, body.Title, body.Content, body.AuthorType)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, artifactPayload(created))
}

func (s *HTTPServer) handleListArtifacts(w http.ResponseWriter, r *http.Request, threadID string) {
	items, err := s.artifacts.ListByThread(r.Context(), threadID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, artifactPayload(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"artifacts": payload})
}

func (s *HTTPServer) handleGetCurrent(w http.ResponseWriter, r *http.Request, artifactID string) {
	a, v, err := s.artifacts.Current(r.Context(), artifactID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	payload := artifactPayload(a)
	payload["content"] = v.Content
	payload["version"] = versionPayload(v, false)
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleGetVersions(w http.ResponseWriter, r *http.Request, artifactID string) {
	a, err := s.artifacts.WithVersions(r.Context(), artifactID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	versions := make([]map[string]any, 0, len(a.Versions))
	for _, v := range a.Versions {
		versions = append(versions, versionPayload(v, true))
	}
	payload := artifactPayload(a)
	payload["versions"] = versions
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleUpdateArtifact(w http.ResponseWriter, r *http.Request, artifactID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body struct {
		Content    string `json:"content"`
		AuthorType string `json:"authorType"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.AuthorType == "" {
		body.AuthorType = store.AuthorUser
	}

	v, err := s.artifacts.Update(r.Context(), artifactID, userID, body.Content, body.AuthorType)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, versionPayload(v, true))
}

func (s *HTTPServer) handleRevertArtifact(w http.ResponseWriter, r *http.Request, artifactID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body struct {
		VersionNumber int `json:"versionNumber"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.VersionNumber < 1 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "versionNumber must be >= 1", nil)
		return
	}

	v, err := s.artifacts.Revert(r.Context(), artifactID, userID, body.VersionNumber)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, versionPayload(v, true))
}

func (s *HTTPServer) handleDeleteArtifact(w http.ResponseWriter, r *http.Request, artifactID string) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	if err := s.artifacts.Delete(r.Context(), artifactID); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleExportArtifact(w http.ResponseWriter, r *http.Request, artifactID string) {
	format := export.Format(r.URL.Query().Get("format"))
	if format != export.FormatPDF && format != export.FormatDOCX {
		writeError(w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", "format must be 'pdf' or 'docx'", nil)
		return
	}

	a, v, err := s.artifacts.Current(r.Context(), artifactID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	result, err := s.exporter.Export(r.Context(), a.Title, v.Content, format)
	if err != nil {
		status, code, message, details := mapError(err)
		if status == http.StatusInternalServerError {
			log.Printf("export artifact %s as %s: %v", artifactID, format, err)
		}
		writeError(w, status, code, message, details)
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
	w.Header().Set("Content-Type", result.MimeType)
	w.Write(result.Data)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.searcher == nil {
		writeError(w, http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
		return
	}
	q := search.Query{
		Text:           r.URL.Query().Get("q"),
		FilterThreadID: r.URL.Query().Get("thread"),
		Limit:          intQuery(r, "limit"),
		Offset:         intQuery(r, "offset"),
	}
	writeJSON(w, http.StatusOK, s.searcher.Search(q))
}

func (s *HTTPServer) handleUploadAsset(w http.ResponseWriter, r *http.Request) {
	if s.assets == nil {
		writeError(w, http.StatusServiceUnavailable, "ASSETS_UNAVAILABLE", "Asset storage is not configured", nil)
		return
	}
	if _, ok := requireUser(w, r); !ok {
		return
	}

	// 10 MiB upload ceiling
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart 'file' field is required", nil)
		return
	}
	defer file.Close()

	objectName, err := s.assets.Put(r.Context(), header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	url, err := s.assets.PresignedGetURL(r.Context(), objectName, 15*time.Minute)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"object": objectName, "url": url})
}

func (s *HTTPServer) handleAssetURL(w http.ResponseWriter, r *http.Request, objectName string) {
	if s.assets == nil {
		writeError(w, http.StatusServiceUnavailable, "ASSETS_UNAVAILABLE", "Asset storage is not configured", nil)
		return
	}
	url, err := s.assets.PresignedGetURL(r.Context(), objectName, 15*time.Minute)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Asset not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}

func artifactPayload(a store.Artifact) map[string]any {
	return map[string]any{
		"id":             a.ID,
		"threadId":       a.ThreadID,
		"userId":         a.UserID,
		"title":          a.Title,
		"currentVersion": a.CurrentVersion,
		"createdAt":      a.CreatedAt,
		"updatedAt":      a.UpdatedAt,
	}
}

func versionPayload(v store.ArtifactVersion, withContent bool) map[string]any {
	payload := map[string]any{
		"id":            v.ID,
		"artifactId":    v.ArtifactID,
		"versionNumber": v.VersionNumber,
		"authorType":    v.AuthorType,
		"createdAt":     v.CreatedAt,
	}
	if v.AuthorID != nil {
		payload["authorId"] = *v.AuthorID
	}
	if withContent {
		payload["content"] = v.Content
	}
	return payload
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(userHeader))
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing "+userHeader+" header", nil)
		return "", false
	}
	return userID, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

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
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, "+userHeader)
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
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
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func intQuery(r *http.Request, name string) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
