// Package api provides the HTTP server for PostCraft.
//
// It serves the server-rendered composer UI, the JSON gateway endpoints, the
// .docx export and, when the local object store is in use, the generated
// images themselves.
package api

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/PostCraft/internal/flow"
	"github.com/BTreeMap/PostCraft/internal/models"
	"github.com/BTreeMap/PostCraft/internal/twiliowhatsapp"
)

// Server defaults.
const (
	DefaultAddr                 = ":8080"
	DefaultShutdownTimeout      = 10 * time.Second
	DefaultReadHeaderTimeout    = 10 * time.Second
	DefaultSessionSweepInterval = 10 * time.Minute
	// DefaultGenerateTimeout bounds one full text, image and save cycle.
	DefaultGenerateTimeout = 5 * time.Minute
	// MaxRequestBodyBytes caps JSON and form bodies.
	MaxRequestBodyBytes = 1 << 20
)

// PostService persists and reads back posts.
type PostService interface {
	Save(ctx context.Context, req models.SavePostRequest) (models.Post, error)
	Get(ctx context.Context, id string) (models.Post, error)
	List(ctx context.Context, limit int) ([]models.Post, error)
}

// Exporter renders a post as a .docx document.
type Exporter interface {
	Export(ctx context.Context, post models.Post) ([]byte, error)
}

// Dependencies are the services the server relays to. Sharer and MediaDir are optional.
type Dependencies struct {
	Text     flow.TextGenerator
	Image    flow.ImageGenerator
	Posts    PostService
	Exporter Exporter
	Sharer   twiliowhatsapp.Sender
	// MediaDir, when set, is served under /media/.
	MediaDir string
}

// Opts holds configuration for the API server.
type Opts struct {
	Addr                 string
	PublicURL            string
	SecureCookies        bool
	GenerateTimeout      time.Duration
	ShutdownTimeout      time.Duration
	SessionSweepInterval time.Duration
	SessionIdleTimeout   time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithPublicURL sets the externally reachable base URL.
func WithPublicURL(u string) Option {
	return func(o *Opts) { o.PublicURL = strings.TrimRight(u, "/") }
}

// WithSecureCookies marks the session cookie Secure.
func WithSecureCookies(secure bool) Option {
	return func(o *Opts) { o.SecureCookies = secure }
}

// WithGenerateTimeout bounds one UI generation cycle.
func WithGenerateTimeout(d time.Duration) Option {
	return func(o *Opts) { o.GenerateTimeout = d }
}

// WithShutdownTimeout sets how long Run waits for in-flight requests on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ShutdownTimeout = d }
}

// WithSessionExpiry sets the idle timeout for UI sessions and how often they are swept.
func WithSessionExpiry(idle, sweepInterval time.Duration) Option {
	return func(o *Opts) {
		o.SessionIdleTimeout = idle
		o.SessionSweepInterval = sweepInterval
	}
}

// Server wires HTTP routes to the gateways and the generation orchestrator.
type Server struct {
	text         flow.TextGenerator
	image        flow.ImageGenerator
	posts        PostService
	exporter     Exporter
	sharer       twiliowhatsapp.Sender
	mediaDir     string
	orchestrator *flow.Orchestrator
	sessions     *flow.SessionManager
	opts         Opts
}

// NewServer creates a Server. Text, Image, Posts and Exporter are required.
func NewServer(deps Dependencies, opts ...Option) (*Server, error) {
	cfg := Opts{
		Addr:                 DefaultAddr,
		GenerateTimeout:      DefaultGenerateTimeout,
		ShutdownTimeout:      DefaultShutdownTimeout,
		SessionSweepInterval: DefaultSessionSweepInterval,
		SessionIdleTimeout:   flow.DefaultSessionIdleTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if deps.Text == nil || deps.Image == nil || deps.Posts == nil || deps.Exporter == nil {
		return nil, errors.New("api: text, image, posts and exporter dependencies are required")
	}
	slog.Debug("Server.NewServer: creating server", "addr", cfg.Addr, "public_url", cfg.PublicURL,
		"share_enabled", deps.Sharer != nil, "media_dir", deps.MediaDir)

	return &Server{
		text:         deps.Text,
		image:        deps.Image,
		posts:        deps.Posts,
		exporter:     deps.Exporter,
		sharer:       deps.Sharer,
		mediaDir:     deps.MediaDir,
		orchestrator: flow.NewOrchestrator(deps.Text, deps.Image, deps.Posts),
		sessions:     flow.NewSessionManager(),
		opts:         cfg,
	}, nil
}

// Sessions exposes the UI session manager.
func (s *Server) Sessions() *flow.SessionManager {
	return s.sessions
}

// Handler returns the fully routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.indexHandler)
	mux.HandleFunc("POST /generate", s.generateFormHandler)
	mux.HandleFunc("POST /dismiss", s.dismissHandler)
	mux.HandleFunc("GET /download", s.downloadHandler)

	mux.HandleFunc("POST /api/generate/text", s.generateTextHandler)
	mux.HandleFunc("POST /api/generate/image", s.generateImageHandler)
	mux.HandleFunc("POST /api/posts", s.createPostHandler)
	mux.HandleFunc("GET /api/posts", s.listPostsHandler)
	mux.HandleFunc("GET /api/posts/{id}", s.getPostHandler)
	mux.HandleFunc("POST /api/posts/{id}/share", s.sharePostHandler)
	mux.HandleFunc("GET /api/posts/{id}/export", s.exportPostHandler)

	mux.HandleFunc("GET /healthz", s.healthHandler)

	if s.mediaDir != "" {
		mux.Handle("GET /media/", http.StripPrefix("/media/", http.FileServer(noDirListing{http.Dir(s.mediaDir)})))
	}

	mux.HandleFunc("/", s.notFoundHandler)
	return logRequests(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	s.sessions.StartSweeper(sweepCtx, s.opts.SessionSweepInterval, s.opts.SessionIdleTimeout)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("PostCraft API server listening", "addr", s.opts.Addr, "public_url", s.opts.PublicURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("Server.Run: listener failed", "error", err)
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down", "timeout", s.opts.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: graceful shutdown failed", "error", err)
		return fmt.Errorf("shutdown failed: %w", err)
	}
	slog.Info("Server.Run: shutdown complete")
	return nil
}

// noDirListing hides directory indexes from the media file server.
type noDirListing struct {
	fs http.FileSystem
}

func (n noDirListing) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests logs one line per request at debug level.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
