package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/BTreeMap/PostCraft/internal/export"
	"github.com/BTreeMap/PostCraft/internal/gateway"
	"github.com/BTreeMap/PostCraft/internal/models"
	"github.com/BTreeMap/PostCraft/internal/store"
	"github.com/BTreeMap/PostCraft/internal/twiliowhatsapp"
)

type fakeText struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeText) Generate(ctx context.Context, req models.GenerateRequest) (models.TextResult, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	f.mu.Unlock()
	if verr := req.Validate(); verr != nil {
		return models.TextResult{}, &gateway.ValidationError{Err: verr}
	}
	if err != nil {
		return models.TextResult{}, err
	}
	return models.TextResult{Content: "Caption for " + req.Prompt + "\n#" + string(req.Platform)}, nil
}

type fakeImage struct {
	err error
}

func (f *fakeImage) Generate(ctx context.Context, req models.GenerateRequest) (models.ImageResult, error) {
	if verr := req.Validate(); verr != nil {
		return models.ImageResult{}, &gateway.ValidationError{Err: verr}
	}
	if f.err != nil {
		return models.ImageResult{}, f.err
	}
	return models.ImageResult{ImageURL: "https://cdn.example/posts/post-images/1-abcdef12.png"}, nil
}

type fakeExporter struct {
	err error
}

func (f *fakeExporter) Export(ctx context.Context, post models.Post) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("DOCX:" + post.Content), nil
}

type testEnv struct {
	server *Server
	text   *fakeText
	image  *fakeImage
	sharer *twiliowhatsapp.MockClient
	posts  *gateway.PostGateway
}

func newTestEnv(t *testing.T, withSharer bool, mediaDir string) *testEnv {
	t.Helper()
	env := &testEnv{
		text:  &fakeText{},
		image: &fakeImage{},
		posts: gateway.NewPostGateway(store.NewInMemoryStore()),
	}
	deps := Dependencies{Text: env.text, Image: env.image, Posts: env.posts, Exporter: &fakeExporter{}, MediaDir: mediaDir}
	if withSharer {
		env.sharer = twiliowhatsapp.NewMockClient()
		deps.Sharer = env.sharer
	}
	s, err := NewServer(deps)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	env.server = s
	return env
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder, result interface{}) models.APIResponse {
	t.Helper()
	var raw struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if result != nil && len(raw.Result) > 0 {
		if err := json.Unmarshal(raw.Result, result); err != nil {
			t.Fatalf("failed to decode result: %v", err)
		}
	}
	return models.APIResponse{Status: raw.Status, Message: raw.Message}
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	if _, err := NewServer(Dependencies{}); err == nil {
		t.Error("expected error for missing dependencies")
	}
}

func TestGenerateTextHandler(t *testing.T) {
	env := newTestEnv(t, false, "")
	h := env.server.Handler()

	rr := doJSON(t, h, http.MethodPost, "/api/generate/text", models.GenerateRequest{Prompt: "coffee", Platform: "twitter"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var res models.TextResult
	if resp := decodeEnvelope(t, rr, &res); resp.Status != "ok" {
		t.Errorf("unexpected status %q", resp.Status)
	}
	if !strings.HasPrefix(res.Content, "Caption for coffee") {
		t.Errorf("unexpected content %q", res.Content)
	}

	rr = doJSON(t, h, http.MethodPost, "/api/generate/text", models.GenerateRequest{Prompt: "", Platform: "twitter"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty prompt, got %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/api/generate/text", "{not json")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad JSON, got %d", rr.Code)
	}

	env.text.err = errors.New("upstream said 401 with key sk-secret")
	rr = doJSON(t, h, http.MethodPost, "/api/generate/text", models.GenerateRequest{Prompt: "coffee", Platform: "twitter"})
	if rr.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "sk-secret") {
		t.Error("upstream error details must not reach the client")
	}
}

func TestGenerateImageHandler(t *testing.T) {
	env := newTestEnv(t, false, "")
	h := env.server.Handler()

	rr := doJSON(t, h, http.MethodPost, "/api/generate/image", models.GenerateRequest{Prompt: "coffee", Platform: "instagram"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"imageUrl":"https://cdn.example/`) {
		t.Errorf("unexpected body %s", rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodPost, "/api/generate/image", models.GenerateRequest{Prompt: "coffee", Platform: "myspace"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid platform, got %d", rr.Code)
	}

	env.image.err = errors.New("pollinations 503")
	rr = doJSON(t, h, http.MethodPost, "/api/generate/image", models.GenerateRequest{Prompt: "coffee", Platform: "instagram"})
	if rr.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rr.Code)
	}
}

func TestPostsHandlers(t *testing.T) {
	env := newTestEnv(t, false, "")
	h := env.server.Handler()

	req := models.SavePostRequest{Prompt: "coffee", Platform: "facebook", Content: "Hello", ImageURL: "https://cdn.example/a.png"}
	rr := doJSON(t, h, http.MethodPost, "/api/posts", req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var saved models.Post
	decodeEnvelope(t, rr, &saved)
	if saved.ID == "" || saved.Content != "Hello" || saved.ImageURL != req.ImageURL || saved.Platform != models.PlatformFacebook {
		t.Errorf("unexpected saved post %+v", saved)
	}

	rr = doJSON(t, h, http.MethodPost, "/api/posts", models.SavePostRequest{Prompt: "x", Platform: "facebook"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing content, got %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodGet, "/api/posts/"+saved.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got models.Post
	decodeEnvelope(t, rr, &got)
	if got.ID != saved.ID {
		t.Errorf("unexpected post %+v", got)
	}

	rr = doJSON(t, h, http.MethodGet, "/api/posts/does-not-exist", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodGet, "/api/posts?limit=5", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var list []models.Post
	decodeEnvelope(t, rr, &list)
	if len(list) != 1 {
		t.Errorf("expected 1 post, got %d", len(list))
	}

	rr = doJSON(t, h, http.MethodGet, "/api/posts?limit=abc", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodGet, "/api/posts/"+saved.ID+"/export", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for export, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "wordprocessingml") {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "social-media-post.docx") {
		t.Errorf("unexpected disposition %q", cd)
	}
}

func TestExportPostHandlerFailures(t *testing.T) {
	env := newTestEnv(t, false, "")
	h := env.server.Handler()
	saved, err := env.posts.Save(context.Background(), models.SavePostRequest{Prompt: "p", Platform: "twitter", Content: "c", ImageURL: "http://169.254.169.254/latest/meta-data/iam"})
	if err != nil {
		t.Fatalf("seed post: %v", err)
	}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"untrusted image url", export.ErrUntrustedImageURL, http.StatusUnprocessableEntity},
		{"upstream failure", &export.StatusError{StatusCode: http.StatusNotFound}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.server.exporter = &fakeExporter{err: tt.err}
			rr := doJSON(t, h, http.MethodGet, "/api/posts/"+saved.ID+"/export", nil)
			if rr.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rr.Code)
			}
			if strings.Contains(rr.Body.String(), "169.254") {
				t.Error("response leaks the image url")
			}
		})
	}
}

func TestSharePostHandler(t *testing.T) {
	disabled := newTestEnv(t, false, "")
	rr := doJSON(t, disabled.server.Handler(), http.MethodPost, "/api/posts/x/share", models.ShareRequest{To: "+15551234567"})
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without Twilio, got %d", rr.Code)
	}

	env := newTestEnv(t, true, "")
	h := env.server.Handler()
	saved, err := env.posts.Save(context.Background(), models.SavePostRequest{Prompt: "p", Platform: "twitter", Content: "Share me", ImageURL: "https://cdn.example/a.png"})
	if err != nil {
		t.Fatalf("seed post: %v", err)
	}

	rr = doJSON(t, h, http.MethodPost, "/api/posts/"+saved.ID+"/share", models.ShareRequest{To: "abc"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid recipient, got %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/api/posts/missing/share", models.ShareRequest{To: "+15551234567"})
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing post, got %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/api/posts/"+saved.ID+"/share", models.ShareRequest{To: "+1 555 123 4567"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	msgs := env.sharer.Messages()
	if len(msgs) != 1 || msgs[0].To != "15551234567" || msgs[0].Body != "Share me" || msgs[0].MediaURL != saved.ImageURL {
		t.Errorf("unexpected sent messages %+v", msgs)
	}

	env.sharer.Err = errors.New("twilio down")
	rr = doJSON(t, h, http.MethodPost, "/api/posts/"+saved.ID+"/share", models.ShareRequest{To: "+15551234567"})
	if rr.Code != http.StatusBadGateway {
		t.Errorf("expected 502 on send failure, got %d", rr.Code)
	}
}

func TestHealthAndNotFound(t *testing.T) {
	env := newTestEnv(t, false, "")
	h := env.server.Handler()

	rr := doJSON(t, h, http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != `{"status":"ok"}` {
		t.Errorf("unexpected health response %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodGet, "/nope", nil)
	if rr.Code != http.StatusNotFound || !strings.Contains(rr.Body.String(), "404 - Page Not Found") {
		t.Errorf("expected HTML 404 page, got %d", rr.Code)
	}
}

func TestMediaServing(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "posts", "post-images"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "posts", "post-images", "a.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, false, dir)
	h := env.server.Handler()

	rr := doJSON(t, h, http.MethodGet, "/media/posts/post-images/a.png", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "png" {
		t.Errorf("expected media file, got %d %q", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, h, http.MethodGet, "/media/posts/", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected directory listing to be hidden, got %d", rr.Code)
	}
}

// newBrowser returns a client that keeps cookies and does not follow redirects.
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func getBody(t *testing.T, c *http.Client, u string) (int, string) {
	t.Helper()
	resp, err := c.Get(u)
	if err != nil {
		t.Fatalf("GET %s: %v", u, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestUI_InitialPageDisablesSubmit(t *testing.T) {
	env := newTestEnv(t, false, "")
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()
	c := newBrowser(t)

	code, body := getBody(t, c, srv.URL+"/")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !strings.Contains(body, `id="submit" aria-label="Generate" disabled`) {
		t.Error("submit must be disabled without prompt and platform")
	}
	if !strings.Contains(body, "Craft Your Perfect Post") {
		t.Error("greeting should be shown before any post exists")
	}
	for _, label := range []string{"Instagram", "Facebook", "LinkedIn", "X (Twitter)"} {
		if !strings.Contains(body, label) {
			t.Errorf("platform %q missing from selector", label)
		}
	}

	code, _ = getBody(t, c, srv.URL+"/download")
	if code != http.StatusNotFound {
		t.Errorf("download without a post should 404, got %d", code)
	}
}

func TestUI_GenerateSuccess(t *testing.T) {
	env := newTestEnv(t, false, "")
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()
	c := newBrowser(t)

	resp, err := c.PostForm(srv.URL+"/generate", url.Values{"prompt": {"launch day"}, "platform": {"instagram"}})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	_, body := getBody(t, c, srv.URL+"/")
	if !strings.Contains(body, `data-layout="instagram"`) {
		t.Error("expected instagram mockup")
	}
	if !strings.Contains(body, "Caption for launch day") {
		t.Error("expected generated caption in mockup")
	}
	if strings.Contains(body, "Craft Your Perfect Post") {
		t.Error("greeting should be hidden once a post exists")
	}
	if strings.Contains(body, `id="error-toast"`) {
		t.Error("no error toast expected on success")
	}
	if strings.Contains(body, `aria-label="Generate" disabled`) {
		t.Error("submit should be enabled with prompt and platform retained")
	}

	code, doc := getBody(t, c, srv.URL+"/download")
	if code != http.StatusOK || !strings.HasPrefix(doc, "DOCX:Caption for launch day") {
		t.Errorf("unexpected download %d %q", code, doc)
	}

	posts, _ := env.posts.List(context.Background(), 10)
	if len(posts) != 1 || posts[0].Prompt != "launch day" {
		t.Errorf("expected one persisted post, got %+v", posts)
	}
}

func TestUI_GenerateFailureShowsSingleToast(t *testing.T) {
	env := newTestEnv(t, false, "")
	env.text.err = errors.New("upstream 500")
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()
	c := newBrowser(t)

	resp, err := c.PostForm(srv.URL+"/generate", url.Values{"prompt": {"launch"}, "platform": {"linkedin"}})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	_, body := getBody(t, c, srv.URL+"/")
	if n := strings.Count(body, "Failed to generate post. Please try again."); n != 1 {
		t.Errorf("expected exactly one error message, got %d", n)
	}
	if strings.Contains(body, `id="result"`) {
		t.Error("no post should be shown after failure")
	}

	resp, err = c.PostForm(srv.URL+"/dismiss", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	_, body = getBody(t, c, srv.URL+"/")
	if strings.Contains(body, `id="error-toast"`) {
		t.Error("toast should be gone after dismiss")
	}
}

func TestUI_DisabledSubmitDoesNotCallProviders(t *testing.T) {
	env := newTestEnv(t, false, "")
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()
	c := newBrowser(t)

	resp, err := c.PostForm(srv.URL+"/generate", url.Values{"prompt": {""}, "platform": {"twitter"}})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if env.text.calls != 0 {
		t.Errorf("provider called for disabled submit")
	}
	_, body := getBody(t, c, srv.URL+"/")
	if !strings.Contains(body, `id="platform-twitter" value="twitter" checked`) {
		t.Error("selected platform should be retained")
	}
}
