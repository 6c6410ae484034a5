package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"atelier/api/internal/artifact"
	"atelier/api/internal/export"
	"atelier/api/internal/store"
)

type fakeStore struct {
	threadExistsFn              func(context.Context, string) (bool, error)
	createArtifactWithVersionFn func(context.Context, store.Artifact, store.ArtifactVersion, string) error
	getArtifactFn               func(context.Context, string) (store.Artifact, error)
	getArtifactWithVersionsFn   func(context.Context, string) (store.Artifact, error)
	getVersionFn                func(context.Context, string, int) (store.ArtifactVersion, error)
	appendVersionFn             func(context.Context, store.ArtifactVersion, int, string) error
	listArtifactsByThreadFn     func(context.Context, string) ([]store.Artifact, error)
	deleteArtifactFn            func(context.Context, string) (bool, error)
}

func (f *fakeStore) ThreadExists(ctx context.Context, threadID string) (bool, error) {
	if f.threadExistsFn != nil {
		return f.threadExistsFn(ctx, threadID)
	}
	return true, nil
}
func (f *fakeStore) CreateArtifactWithVersion(ctx context.Context, a store.Artifact, v store.ArtifactVersion, plain string) error {
	if f.createArtifactWithVersionFn != nil {
		return f.createArtifactWithVersionFn(ctx, a, v, plain)
	}
	return nil
}
func (f *fakeStore) GetArtifact(ctx context.Context, id string) (store.Artifact, error) {
	if f.getArtifactFn != nil {
		return f.getArtifactFn(ctx, id)
	}
	return store.Artifact{ID: id, ThreadID: "thr_1", UserID: "usr_1", Title: "Doc", CurrentVersion: 1}, nil
}
func (f *fakeStore) GetArtifactWithVersions(ctx context.Context, id string) (store.Artifact, error) {
	if f.getArtifactWithVersionsFn != nil {
		return f.getArtifactWithVersionsFn(ctx, id)
	}
	return store.Artifact{ID: id, CurrentVersion: 1}, nil
}
func (f *fakeStore) GetVersion(ctx context.Context, id string, n int) (store.ArtifactVersion, error) {
	if f.getVersionFn != nil {
		return f.getVersionFn(ctx, id, n)
	}
	return store.ArtifactVersion{ID: "ver_1", ArtifactID: id, VersionNumber: n, Content: "<p>hello</p>", AuthorType: store.AuthorUser}, nil
}
func (f *fakeStore) AppendVersion(ctx context.Context, v store.ArtifactVersion, expected int, plain string) error {
	if f.appendVersionFn != nil {
		return f.appendVersionFn(ctx, v, expected, plain)
	}
	return nil
}
func (f *fakeStore) ListArtifactsByThread(ctx context.Context, threadID string) ([]store.Artifact, error) {
	if f.listArtifactsByThreadFn != nil {
		return f.listArtifactsByThreadFn(ctx, threadID)
	}
	return nil, nil
}
func (f *fakeStore) DeleteArtifact(ctx context.Context, id string) (bool, error) {
	if f.deleteArtifactFn != nil {
		return f.deleteArtifactFn(ctx, id)
	}
	return true, nil
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

func newTestServer(fs *fakeStore) *HTTPServer {
	svc := artifact.NewService(fs, nil, nil, 1<<20)
	return NewHTTPServer(svc, export.NewService(nil), nil, nil, &fakePinger{}, "*")
}

func doJSON(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return payload
}

func TestHealth(t *testing.T) {
	h := newTestServer(&fakeStore{}).Handler()
	rec := doJSON(t, h, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestReadyReportsDatabaseFailure(t *testing.T) {
	svc := artifact.NewService(&fakeStore{}, nil, nil, 1<<20)
	server := NewHTTPServer(svc, export.NewService(nil), nil, nil, &fakePinger{err: errors.New("connection refused")}, "*")
	rec := doJSON(t, server.Handler(), http.MethodGet, "/api/ready", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	payload := decodeJSON(t, rec)
	if payload["ok"] != false {
		t.Errorf("expected ok=false: %v", payload)
	}
}

func TestCreateArtifact(t *testing.T) {
	var persisted store.ArtifactVersion
	fs := &fakeStore{
		createArtifactWithVersionFn: func(_ context.Context, a store.Artifact, v store.ArtifactVersion, _ string) error {
			persisted = v
			return nil
		},
	}
	h := newTestServer(fs).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/threads/thr_1/artifacts", "usr_1", map[string]any{
		"title":   "Notes",
		"content": `<p>fine</p><script>alert(1)</script>`,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(persisted.Content, "script") {
		t.Errorf("unsanitized content reached the store: %q", persisted.Content)
	}
	payload := decodeJSON(t, rec)
	if payload["currentVersion"] != float64(1) {
		t.Errorf("expected currentVersion 1: %v", payload)
	}
}

func TestCreateArtifactRequiresIdentity(t *testing.T) {
	h := newTestServer(&fakeStore{}).Handler()
	rec := doJSON(t, h, http.MethodPost, "/api/threads/thr_1/artifacts", "", map[string]any{
		"title": "t", "content": "<p>x</p>",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateArtifactRequiresTitle(t *testing.T) {
	h := newTestServer(&fakeStore{}).Handler()
	rec := doJSON(t, h, http.MethodPost, "/api/threads/thr_1/artifacts", "usr_1", map[string]any{
		"title": "  ", "content": "<p>x</p>",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestCreateArtifactMissingThread(t *testing.T) {
	fs := &fakeStore{
		threadExistsFn: func(context.Context, string) (bool, error) { return false, nil },
	}
	h := newTestServer(fs).Handler()
	rec := doJSON(t, h, http.MethodPost, "/api/threads/thr_x/artifacts", "usr_1", map[string]any{
		"title": "t", "content": "<p>x</p>",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if decodeJSON(t, rec)["code"] != "THREAD_NOT_FOUND" {
		t.Errorf("unexpected error code: %s", rec.Body.String())
	}
}

func TestGetCurrentArtifact(t *testing.T) {
	h := newTestServer(&fakeStore{}).Handler()
	rec := doJSON(t, h, http.MethodGet, "/api/artifacts/art_1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeJSON(t, rec)
	if payload["content"] != "<p>hello</p>" {
		t.Errorf("current content missing: %v", payload)
	}
}

func TestGetMissingArtifact(t *testing.T) {
	fs := &fakeStore{
		getArtifactFn: func(context.Context, string) (store.Artifact, error) {
			return store.Artifact{}, sql.ErrNoRows
		},
	}
	h := newTestServer(fs).Handler()
	rec := doJSON(t, h, http.MethodGet, "/api/artifacts/art_x", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUpdateConflictMapsTo409(t *testing.T) {
	fs := &fakeStore{
		appendVersionFn: func(context.Context, store.ArtifactVersion, int, string) error {
			return store.ErrVersionConflict
		},
	}
	h := newTestServer(fs).Handler()
	rec := doJSON(t, h, http.MethodPut, "/api/artifacts/art_1", "usr_1", map[string]any{
		"content": "<p>new</p>",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if decodeJSON(t, rec)["code"] != "VERSION_CONFLICT" {
		t.Errorf("unexpected error code: %s", rec.Body.String())
	}
}

func TestUpdateTooLargeMapsTo413(t *testing.T) {
	svc := artifact.NewService(&fakeStore{}, nil, nil, 8)
	server := NewHTTPServer(svc, export.NewService(nil), nil, nil, &fakePinger{}, "*")
	rec := doJSON(t, server.Handler(), http.MethodPut, "/api/artifacts/art_1", "usr_1", map[string]any{
		"content": "<p>this is longer than eight bytes</p>",
	})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	payload := decodeJSON(t, rec)
	details, _ := payload["details"].(map[string]any)
	if details["max"] != float64(8) {
		t.Errorf("details must name the limit: %v", payload)
	}
}

func TestRevertMissingVersionMapsTo404(t *testing.T) {
	fs := &fakeStore{
		getVersionFn: func(context.Context, string, int) (store.ArtifactVersion, error) {
			return store.ArtifactVersion{}, sql.ErrNoRows
		},
	}
	h := newTestServer(fs).Handler()
	rec := doJSON(t, h, http.MethodPost, "/api/artifacts/art_1/revert", "usr_1", map[string]any{
		"versionNumber": 42,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	if decodeJSON(t, rec)["code"] != "VERSION_NOT_FOUND" {
		t.Errorf("unexpected error code: %s", rec.Body.String())
	}
}

func TestRevertRejectsNonPositiveVersion(t *testing.T) {
	h := newTestServer(&fakeStore{}).Handler()
	rec := doJSON(t, h, http.MethodPost, "/api/artifacts/art_1/revert", "usr_1", map[string]any{
		"versionNumber": 0,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestExportArtifactDOCX(t *testing.T) {
	h := newTestServer(&fakeStore{}).Handler()
	rec := doJSON(t, h, http.MethodGet, "/api/artifacts/art_1/export?format=docx", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, `filename="Doc.docx"`) {
		t.Errorf("unexpected disposition %q", got)
	}
	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "officedocument") {
		t.Errorf("unexpected content type %q", got)
	}
	// docx packages start with the zip magic
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Error("response body is not a zip archive")
	}
}

func TestExportArtifactBadFormat(t *testing.T) {
	h := newTestServer(&fakeStore{}).Handler()
	rec := doJSON(t, h, http.MethodGet, "/api/artifacts/art_1/export?format=odt", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestExportPDFWithoutRendererMapsTo503(t *testing.T) {
	h := newTestServer(&fakeStore{}).Handler()
	rec := doJSON(t, h, http.MethodGet, "/api/artifacts/art_1/export?format=pdf", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteArtifact(t *testing.T) {
	fs := &fakeStore{
		deleteArtifactFn: func(context.Context, string) (bool, error) { return false, nil },
	}
	h := newTestServer(fs).Handler()
	rec := doJSON(t, h, http.MethodDelete, "/api/artifacts/art_x", "usr_1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing artifact, got %d", rec.Code)
	}
}

func TestSearchUnavailableWithoutBackend(t *testing.T) {
	h := newTestServer(&fakeStore{}).Handler()
	rec := doJSON(t, h, http.MethodGet, "/api/search?q=report", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	h := newTestServer(&fakeStore{}).Handler()
	rec := doJSON(t, h, http.MethodGet, "/api/unknown", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestVersionsEndpoint(t *testing.T) {
	author := "usr_1"
	fs := &fakeStore{
		getArtifactWithVersionsFn: func(_ context.Context, id string) (store.Artifact, error) {
			return store.Artifact{
				ID:             id,
				CurrentVersion: 2,
				Versions: []store.ArtifactVersion{
					{ID: "ver_1", ArtifactID: id, VersionNumber: 1, Content: "<p>a</p>", AuthorType: store.AuthorAssistant},
					{ID: "ver_2", ArtifactID: id, VersionNumber: 2, Content: "<p>b</p>", AuthorType: store.AuthorUser, AuthorID: &author},
				},
			}, nil
		},
	}
	h := newTestServer(fs).Handler()
	rec := doJSON(t, h, http.MethodGet, "/api/artifacts/art_1/versions", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	payload := decodeJSON(t, rec)
	versions, _ := payload["versions"].([]any)
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %v", payload)
	}
	first, _ := versions[0].(map[string]any)
	if first["versionNumber"] != float64(1) || first["content"] != "<p>a</p>" {
		t.Errorf("unexpected first version: %v", first)
	}
	if _, ok := first["authorId"]; ok {
		t.Error("assistant version must not expose an author id")
	}
}
