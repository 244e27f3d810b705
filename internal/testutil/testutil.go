// Package testutil provides shared test helpers for PostCraft tests, including
// fake upstream providers and a fully wired in-process server.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/BTreeMap/PostCraft/internal/api"
	"github.com/BTreeMap/PostCraft/internal/export"
	"github.com/BTreeMap/PostCraft/internal/gateway"
	"github.com/BTreeMap/PostCraft/internal/genai"
	"github.com/BTreeMap/PostCraft/internal/imagegen"
	"github.com/BTreeMap/PostCraft/internal/objectstore"
	"github.com/BTreeMap/PostCraft/internal/store"
	"github.com/BTreeMap/PostCraft/internal/twiliowhatsapp"
)

// TestingT is the subset of *testing.T used by the assertion helpers.
type TestingT interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// PNGBytes is the image body served by FakeProviders.
var PNGBytes = encodePNG()

func encodePNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < 8; i++ {
		img.Set(i, i, color.RGBA{R: 0x2e, G: 0x7d, B: 0x32, A: 0xff})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// FakeProviders emulates the chat-completion and image providers.
type FakeProviders struct {
	Server *httptest.Server

	mu          sync.Mutex
	completion  string
	textStatus  int
	imageStatus int
	chatBodies  []map[string]interface{}
	chatHeaders []http.Header
	imageURLs   []string
}

// NewFakeProviders starts a fake provider server. It is closed on test cleanup.
func NewFakeProviders(t *testing.T) *FakeProviders {
	t.Helper()
	f := &FakeProviders{
		completion:  "Fresh ideas, fresh coffee. #coffee #launch",
		textStatus:  http.StatusOK,
		imageStatus: http.StatusOK,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/completions", f.handleChat)
	mux.HandleFunc("GET /prompt/", f.handleImage)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// SetCompletion changes the caption returned by the fake chat endpoint.
func (f *FakeProviders) SetCompletion(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completion = s
}

// FailText makes the chat endpoint answer with status.
func (f *FakeProviders) FailText(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textStatus = status
}

// FailImage makes the image endpoint answer with status.
func (f *FakeProviders) FailImage(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageStatus = status
}

// ChatRequests returns the decoded chat request bodies received so far.
func (f *FakeProviders) ChatRequests() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]interface{}(nil), f.chatBodies...)
}

// ChatHeaders returns the headers of chat requests received so far.
func (f *FakeProviders) ChatHeaders() []http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]http.Header(nil), f.chatHeaders...)
}

// ImageRequests returns the request URIs received by the image endpoint.
func (f *FakeProviders) ImageRequests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.imageURLs...)
}

func (f *FakeProviders) handleChat(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.chatBodies = append(f.chatBodies, body)
	f.chatHeaders = append(f.chatHeaders, r.Header.Clone())
	status, completion := f.textStatus, f.completion
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		fmt.Fprint(w, `{"error":{"message":"provider failure","type":"server_error"}}`)
		return
	}
	model, _ := body["model"].(string)
	resp := map[string]interface{}{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   model,
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]interface{}{"role": "assistant", "content": completion},
		}},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *FakeProviders) handleImage(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.imageURLs = append(f.imageURLs, r.URL.RequestURI())
	status := f.imageStatus
	f.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, "image provider failure", status)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(PNGBytes)
}

// Stack is a fully wired PostCraft server running against FakeProviders with
// SQLite persistence and a local object store under a temp directory.
type Stack struct {
	Server    *httptest.Server
	API       *api.Server
	Providers *FakeProviders
	Store     store.Store
	Objects   *objectstore.LocalStore
	Sharer    *twiliowhatsapp.MockClient
}

// NewStack builds the stack. Everything is torn down on test cleanup.
func NewStack(t *testing.T) *Stack {
	t.Helper()
	providers := NewFakeProviders(t)

	// The public URL is needed to build the object store, so start the
	// listener first and install the handler once the server exists.
	var handler http.Handler = http.NotFoundHandler()
	var handlerMu sync.RWMutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerMu.RLock()
		h := handler
		handlerMu.RUnlock()
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	stateDir := t.TempDir()
	st, err := store.NewSQLiteStore(store.WithSQLiteDSN(filepath.Join(stateDir, "postcraft.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	objects, err := objectstore.NewLocalStore(filepath.Join(stateDir, "media"), srv.URL+"/media")
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}

	textClient, err := genai.NewClient(
		genai.WithAPIKey("test-key"),
		genai.WithBaseURL(providers.Server.URL),
		genai.WithReferer(srv.URL),
	)
	if err != nil {
		t.Fatalf("genai.NewClient failed: %v", err)
	}
	imageClient := imagegen.NewClient(
		imagegen.WithBaseURL(providers.Server.URL),
		imagegen.WithHTTPClient(providers.Server.Client()),
	)

	sharer := twiliowhatsapp.NewMockClient()
	server, err := api.NewServer(api.Dependencies{
		Text:     gateway.NewTextGateway(textClient),
		Image:    gateway.NewImageGateway(imageClient, objects),
		Posts:    gateway.NewPostGateway(st),
		Exporter: export.NewExporter(export.WithLocalStore(objects)),
		Sharer:   sharer,
		MediaDir: objects.Root(),
	}, api.WithPublicURL(srv.URL))
	if err != nil {
		t.Fatalf("api.NewServer failed: %v", err)
	}

	handlerMu.Lock()
	handler = server.Handler()
	handlerMu.Unlock()

	return &Stack{Server: srv, API: server, Providers: providers, Store: st, Objects: objects, Sharer: sharer}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TestingT, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON envelope and validates the status field.
func AssertJSONResponse(t TestingT, body io.Reader, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return nil
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Errorf("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t TestingT, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody io.Reader = http.NoBody
	if body != nil {
		reqBody = bytes.NewReader(MustMarshalJSON(t, body))
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
		return nil
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TestingT, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t TestingT, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}

// ResultField re-decodes the "result" member of a decoded envelope into target.
func ResultField(t TestingT, envelope map[string]interface{}, target interface{}) {
	t.Helper()
	raw, ok := envelope["result"]
	if !ok {
		t.Fatalf("envelope has no result")
		return
	}
	MustUnmarshalJSON(t, MustMarshalJSON(t, raw), target)
}
