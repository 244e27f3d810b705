package gateway

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/PostCraft/internal/models"
	"github.com/BTreeMap/PostCraft/internal/store"
)

type mockCompleter struct {
	content    string
	err        error
	lastPrompt string
	calls      int
}

func (m *mockCompleter) Complete(ctx context.Context, userPrompt string) (string, error) {
	m.calls++
	m.lastPrompt = userPrompt
	return m.content, m.err
}

type mockFetcher struct {
	data            []byte
	err             error
	lastDescription string
}

func (m *mockFetcher) Fetch(ctx context.Context, description string) ([]byte, error) {
	m.lastDescription = description
	return m.data, m.err
}

type uploadCall struct {
	bucket, path, contentType string
	data                      []byte
}

type mockObjects struct {
	err     error
	uploads []uploadCall
}

func (m *mockObjects) Upload(ctx context.Context, bucket, objectPath string, data []byte, contentType string) error {
	if m.err != nil {
		return m.err
	}
	m.uploads = append(m.uploads, uploadCall{bucket: bucket, path: objectPath, contentType: contentType, data: data})
	return nil
}

func (m *mockObjects) PublicURL(bucket, objectPath string) string {
	return "https://cdn.example/" + bucket + "/" + objectPath
}

type failingStore struct {
	store.InMemoryStore
	err error
}

func (f *failingStore) AddPost(ctx context.Context, req models.SavePostRequest) (models.Post, error) {
	return models.Post{}, f.err
}

func TestBuildInstruction(t *testing.T) {
	got := BuildInstruction(models.PlatformLinkedIn, "hiring engineers")
	want := "Write a creative and engaging social media post for linkedin.\nTopic: hiring engineers.\nInclude a few hashtags. Return ONLY the text content."
	if got != want {
		t.Errorf("BuildInstruction() = %q, want %q", got, want)
	}
}

func TestTextGateway_Success(t *testing.T) {
	c := &mockCompleter{content: "Big news! #launch"}
	g := NewTextGateway(c)

	res, err := g.Generate(context.Background(), models.GenerateRequest{Prompt: "product launch", Platform: "Instagram"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if res.Content != "Big news! #launch" {
		t.Errorf("unexpected content %q", res.Content)
	}
	if !strings.Contains(c.lastPrompt, "post for instagram.") || !strings.Contains(c.lastPrompt, "Topic: product launch.") {
		t.Errorf("unexpected instruction %q", c.lastPrompt)
	}
}

func TestTextGateway_Validation(t *testing.T) {
	c := &mockCompleter{content: "x"}
	g := NewTextGateway(c)

	_, err := g.Generate(context.Background(), models.GenerateRequest{Prompt: "", Platform: models.PlatformTwitter})
	if !IsValidationError(err) || !errors.Is(err, models.ErrEmptyPrompt) {
		t.Errorf("expected empty prompt validation error, got %v", err)
	}
	_, err = g.Generate(context.Background(), models.GenerateRequest{Prompt: "x", Platform: "myspace"})
	if !IsValidationError(err) || !errors.Is(err, models.ErrInvalidPlatform) {
		t.Errorf("expected invalid platform validation error, got %v", err)
	}
	if c.calls != 0 {
		t.Errorf("provider must not be called for invalid input, got %d calls", c.calls)
	}
}

func TestTextGateway_UpstreamError(t *testing.T) {
	upstream := errors.New("401 unauthorized")
	g := NewTextGateway(&mockCompleter{err: upstream})

	_, err := g.Generate(context.Background(), models.GenerateRequest{Prompt: "x", Platform: models.PlatformTwitter})
	if !errors.Is(err, ErrTextGeneration) || !errors.Is(err, upstream) {
		t.Errorf("expected wrapped text generation error, got %v", err)
	}
	if IsValidationError(err) {
		t.Error("upstream failure must not be reported as validation error")
	}
}

func TestImageGateway_Success(t *testing.T) {
	f := &mockFetcher{data: []byte{0x89, 'P', 'N', 'G'}}
	objs := &mockObjects{}
	fixed := time.UnixMilli(1700000000123)
	g := NewImageGateway(f, objs, WithClock(func() time.Time { return fixed }))

	res, err := g.Generate(context.Background(), models.GenerateRequest{Prompt: "coffee", Platform: models.PlatformFacebook})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if f.lastDescription != "Professional facebook social media image about: coffee" {
		t.Errorf("unexpected description %q", f.lastDescription)
	}
	if len(objs.uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(objs.uploads))
	}
	up := objs.uploads[0]
	if up.bucket != "posts" || up.contentType != "image/png" || string(up.data) != string(f.data) {
		t.Errorf("unexpected upload %+v", up)
	}
	if !regexp.MustCompile(`^post-images/1700000000123-[0-9a-f]{8}\.png$`).MatchString(up.path) {
		t.Errorf("unexpected object path %q", up.path)
	}
	if res.ImageURL != "https://cdn.example/posts/"+up.path {
		t.Errorf("unexpected public URL %q", res.ImageURL)
	}
}

func TestImageGateway_Options(t *testing.T) {
	objs := &mockObjects{}
	g := NewImageGateway(&mockFetcher{data: []byte("x")}, objs, WithBucket("media"), WithPathPrefix("/custom/"))
	if g.Bucket() != "media" {
		t.Errorf("unexpected bucket %q", g.Bucket())
	}
	if _, err := g.Generate(context.Background(), models.GenerateRequest{Prompt: "x", Platform: models.PlatformTwitter}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.HasPrefix(objs.uploads[0].path, "custom/") {
		t.Errorf("expected custom prefix, got %q", objs.uploads[0].path)
	}
}

func TestImageGateway_Failures(t *testing.T) {
	req := models.GenerateRequest{Prompt: "x", Platform: models.PlatformTwitter}

	g := NewImageGateway(&mockFetcher{err: errors.New("503")}, &mockObjects{})
	if _, err := g.Generate(context.Background(), req); !errors.Is(err, ErrImageGeneration) {
		t.Errorf("expected ErrImageGeneration, got %v", err)
	}

	g = NewImageGateway(&mockFetcher{data: []byte("x")}, &mockObjects{err: errors.New("bucket missing")})
	if _, err := g.Generate(context.Background(), req); !errors.Is(err, ErrImageUpload) {
		t.Errorf("expected ErrImageUpload, got %v", err)
	}

	g = NewImageGateway(&mockFetcher{data: []byte("x")}, &mockObjects{})
	if _, err := g.Generate(context.Background(), models.GenerateRequest{Prompt: "x"}); !IsValidationError(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestPostGateway_SaveMirrorsInput(t *testing.T) {
	g := NewPostGateway(store.NewInMemoryStore())
	req := models.SavePostRequest{Prompt: "coffee", Platform: "Twitter", Content: "Brewing #coffee", ImageURL: "https://cdn.example/a.png"}

	p, err := g.Save(context.Background(), req)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if p.Prompt != "coffee" || p.Platform != models.PlatformTwitter || p.Content != req.Content || p.ImageURL != req.ImageURL {
		t.Errorf("saved post does not mirror input: %+v", p)
	}
	if p.ID == "" || p.CreatedAt.IsZero() {
		t.Errorf("expected datastore-assigned fields, got %+v", p)
	}

	got, err := g.Get(context.Background(), p.ID)
	if err != nil || got.ID != p.ID {
		t.Errorf("Get returned %+v, %v", got, err)
	}
	if _, err := g.Get(context.Background(), "missing"); !errors.Is(err, store.ErrPostNotFound) {
		t.Errorf("expected ErrPostNotFound, got %v", err)
	}

	list, err := g.List(context.Background(), 0)
	if err != nil || len(list) != 1 {
		t.Errorf("List returned %d posts, %v", len(list), err)
	}
}

func TestPostGateway_Errors(t *testing.T) {
	g := NewPostGateway(store.NewInMemoryStore())
	if _, err := g.Save(context.Background(), models.SavePostRequest{Prompt: "x", Platform: "twitter"}); !IsValidationError(err) {
		t.Errorf("expected validation error, got %v", err)
	}

	g = NewPostGateway(&failingStore{err: errors.New("connection refused")})
	_, err := g.Save(context.Background(), models.SavePostRequest{Prompt: "x", Platform: "twitter", Content: "c", ImageURL: "u"})
	if !errors.Is(err, ErrSavePost) {
		t.Errorf("expected ErrSavePost, got %v", err)
	}

	empty, err := NewPostGateway(store.NewInMemoryStore()).List(context.Background(), 5)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil list, got %v, %v", empty, err)
	}
}
