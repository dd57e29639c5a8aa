package models

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/deskhand/deskhand/internal/catalog"
)

func newTestHandlers(t *testing.T, entries []catalog.Entry, infURL string) (*Handlers, *testEnv) {
	t.Helper()
	env := newTestEnv(t, entries, infURL)
	return NewHandlers(env.service), env
}

func doRequest(h echo.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, h(c)
}

// parseSSE collects the JSON payload of every data: line in a stream body.
func parseSSE(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("malformed event %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestHealthHandler(t *testing.T) {
	inf := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.Write([]byte(`{"status":"ok"}`))
		case "/props":
			w.Write([]byte(`{"model_path":"/models/m.gguf"}`))
		}
	}))
	defer inf.Close()

	h, _ := newTestHandlers(t, catalogFor("https://example.com/m.gguf"), inf.URL)

	rec, err := doRequest(h.Health, httptest.NewRequest(http.MethodGet, "/health", nil))
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var health Health
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" || !health.ModelLoaded || health.ModelPath != "/models/m.gguf" {
		t.Errorf("health = %+v", health)
	}
}

func TestListModelsHandler(t *testing.T) {
	h, env := newTestHandlers(t, catalogFor("https://example.com/m.gguf"), "")

	if err := os.WriteFile(env.store.Path("m.gguf"), make([]byte, 10), 0644); err != nil {
		t.Fatal(err)
	}

	rec, err := doRequest(h.ListModels, httptest.NewRequest(http.MethodGet, "/models", nil))
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var overview Overview
	if err := json.Unmarshal(rec.Body.Bytes(), &overview); err != nil {
		t.Fatal(err)
	}
	if len(overview.Recommended) != 1 || overview.Recommended[0].Filename != "m.gguf" {
		t.Errorf("Recommended = %+v", overview.Recommended)
	}
	if len(overview.Downloaded) != 1 {
		t.Fatalf("Downloaded = %+v, want one entry", overview.Downloaded)
	}
	if got := overview.Downloaded[0]; got.Filename != "m.gguf" || got.Size != "10B" {
		t.Errorf("Downloaded[0] = %+v, want {m.gguf 10B}", got)
	}
}

func downloadRequestBody(t *testing.T, url, filename string) *http.Request {
	t.Helper()
	body, err := json.Marshal(map[string]string{"modelUrl": url, "filename": filename})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/models/download", strings.NewReader(string(body)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestDownloadModelHandler_StreamsProgressAndComplete(t *testing.T) {
	srv, _ := serveBytes(t, 10)
	h, env := newTestHandlers(t, catalogFor(srv.URL+"/m.gguf"), "")

	rec, err := doRequest(h.DownloadModel, downloadRequestBody(t, srv.URL+"/m.gguf", "m.gguf"))
	if err != nil {
		t.Fatalf("DownloadModel() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	events := parseSSE(t, rec.Body.String())
	if len(events) != 2 {
		t.Fatalf("got %d events %v, want progress then complete", len(events), events)
	}
	if got := events[0]["progress"]; got != float64(100) {
		t.Errorf("first event = %v, want progress 100", events[0])
	}
	if got := events[1]["complete"]; got != true {
		t.Errorf("last event = %v, want complete", events[1])
	}
	if got := events[1]["modelPath"]; got != env.store.Path("m.gguf") {
		t.Errorf("modelPath = %v, want %q", got, env.store.Path("m.gguf"))
	}

	artifacts := env.store.List()
	if len(artifacts) != 1 || artifacts[0].Filename != "m.gguf" || artifacts[0].SizeBytes != 10 {
		t.Errorf("store contents = %+v, want single 10-byte m.gguf", artifacts)
	}
}

func TestDownloadModelHandler_UnknownModel(t *testing.T) {
	h, _ := newTestHandlers(t, catalogFor("https://example.com/m.gguf"), "")

	_, err := doRequest(h.DownloadModel, downloadRequestBody(t, "https://example.com/x.gguf", "x.gguf"))
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("DownloadModel() error = %v, want *echo.HTTPError", err)
	}
	if he.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", he.Code)
	}
}

func TestDownloadModelHandler_MissingFilename(t *testing.T) {
	h, _ := newTestHandlers(t, catalogFor("https://example.com/m.gguf"), "")

	_, err := doRequest(h.DownloadModel, downloadRequestBody(t, "https://example.com/m.gguf", ""))
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("DownloadModel() error = %v, want *echo.HTTPError", err)
	}
	if he.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", he.Code)
	}
}

func TestDownloadModelHandler_RemoteErrorIsTerminalEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()
	h, env := newTestHandlers(t, catalogFor(srv.URL+"/m.gguf"), "")

	rec, err := doRequest(h.DownloadModel, downloadRequestBody(t, srv.URL+"/m.gguf", "m.gguf"))
	if err != nil {
		t.Fatalf("DownloadModel() error = %v, failures after streaming starts should be events", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	events := parseSSE(t, rec.Body.String())
	if len(events) != 1 {
		t.Fatalf("got %d events %v, want a single error event", len(events), events)
	}
	if msg, ok := events[0]["error"].(string); !ok || msg == "" {
		t.Errorf("event = %v, want non-empty error", events[0])
	}
	if env.store.Exists("m.gguf") {
		t.Error("failed download left an artifact")
	}
}

func TestDownloadModelHandler_ConflictingDownload(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.Header().Set("Content-Length", "10")
		w.Write(make([]byte, 10))
	}))
	defer srv.Close()

	h, env := newTestHandlers(t, catalogFor(srv.URL+"/m.gguf"), "")

	done := make(chan error, 1)
	go func() {
		_, err := env.service.StartDownload(context.Background(), "m.gguf", nil)
		done <- err
	}()
	<-entered

	_, err := doRequest(h.DownloadModel, downloadRequestBody(t, srv.URL+"/m.gguf", "m.gguf"))
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("DownloadModel() error = %v, want *echo.HTTPError", err)
	}
	if he.Code != http.StatusConflict {
		t.Errorf("code = %d, want 409", he.Code)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first download failed: %v", err)
	}
}

func TestDeleteModelHandler(t *testing.T) {
	h, env := newTestHandlers(t, catalogFor("https://example.com/m.gguf"), "")

	if err := os.WriteFile(env.store.Path("m.gguf"), make([]byte, 10), 0644); err != nil {
		t.Fatal(err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/models/m.gguf", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("filename")
	c.SetParamValues("m.gguf")

	if err := h.DeleteModel(c); err != nil {
		t.Fatalf("DeleteModel() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp["message"], "m.gguf") {
		t.Errorf("message = %q, want it to name the file", resp["message"])
	}
	if env.store.Exists("m.gguf") {
		t.Error("model still on disk")
	}
}

func TestDeleteModelHandler_NotFound(t *testing.T) {
	h, _ := newTestHandlers(t, catalogFor("https://example.com/m.gguf"), "")

	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/models/ghost.gguf", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("filename")
	c.SetParamValues("ghost.gguf")

	err := h.DeleteModel(c)
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("DeleteModel() error = %v, want *echo.HTTPError", err)
	}
	if he.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", he.Code)
	}
}
