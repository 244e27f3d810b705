// Package supabase wraps the supabase-go client for the two Supabase services
// PostCraft uses: Storage (object upload and public URLs) and PostgREST (row
// insert/select).
package supabase

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/BTreeMap/PostCraft/internal/util"
	storage_go "github.com/supabase-community/storage-go"
	supabasego "github.com/supabase-community/supabase-go"
)

// PostgREST error codes PostCraft reacts to.
const (
	CodeInvalidTextRepresentation = "22P02"
	CodeNoRows                    = "PGRST116"
)

var (
	// ErrMissingURL is returned when no project URL is configured.
	ErrMissingURL = errors.New("supabase URL not set")
	// ErrMissingKey is returned when no usable key is configured.
	ErrMissingKey = errors.New("supabase service role key not set (set SUPABASE_ALLOW_ANON_KEY=true to use the anon key)")
)

// APIError is an error reported by Storage or PostgREST.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("supabase error %s: %s", e.Code, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("supabase returned %d: %s", e.StatusCode, e.Message)
	}
	return "supabase error: " + e.Message
}

// HasCode reports whether err is an APIError carrying one of codes.
func HasCode(err error, codes ...string) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, c := range codes {
		if apiErr.Code == c {
			return true
		}
	}
	return false
}

// postgrestError matches the "(code) message" errors postgrest-go returns.
var postgrestError = regexp.MustCompile(`^\(([^)]*)\) (.*)$`)

// toAPIError converts library errors into *APIError and leaves others alone.
func toAPIError(err error) error {
	if err == nil {
		return nil
	}
	var se *storage_go.StorageError
	if errors.As(err, &se) {
		return &APIError{StatusCode: se.Status, Message: se.Message}
	}
	if m := postgrestError.FindStringSubmatch(err.Error()); m != nil {
		return &APIError{Code: m[1], Message: m[2]}
	}
	return err
}

// Opts holds configuration options for the Supabase client.
type Opts struct {
	URL            string
	ServiceRoleKey string
	AnonKey        string
	AllowAnonKey   bool
}

// Option defines a configuration option for the Supabase client.
type Option func(*Opts)

// WithURL sets the project URL, e.g. https://abc.supabase.co.
func WithURL(u string) Option {
	return func(o *Opts) { o.URL = u }
}

// WithServiceRoleKey sets the privileged key. It is always preferred.
func WithServiceRoleKey(key string) Option {
	return func(o *Opts) { o.ServiceRoleKey = key }
}

// WithAnonKey sets the public anon key, used only when AllowAnonKey is set.
func WithAnonKey(key string) Option {
	return func(o *Opts) { o.AnonKey = key }
}

// WithAllowAnonKey permits falling back to the anon key.
func WithAllowAnonKey(allow bool) Option {
	return func(o *Opts) { o.AllowAnonKey = allow }
}

// Client talks to one Supabase project.
type Client struct {
	api     *supabasego.Client
	baseURL string
	key     string
	anon    bool

	// storage-go keeps per-upload headers on a shared transport.
	uploadMu sync.Mutex
}

// NewClient builds a client. Unset options fall back to SUPABASE_URL / VITE_SUPABASE_URL,
// SUPABASE_SERVICE_ROLE_KEY, SUPABASE_ANON_KEY / VITE_SUPABASE_ANON_KEY and SUPABASE_ALLOW_ANON_KEY.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.URL == "" {
		cfg.URL = util.FirstEnv("SUPABASE_URL", "VITE_SUPABASE_URL")
	}
	if cfg.ServiceRoleKey == "" {
		cfg.ServiceRoleKey = os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	}
	if cfg.AnonKey == "" {
		cfg.AnonKey = util.FirstEnv("SUPABASE_ANON_KEY", "VITE_SUPABASE_ANON_KEY")
	}
	if !cfg.AllowAnonKey {
		cfg.AllowAnonKey = util.ParseBoolEnv("SUPABASE_ALLOW_ANON_KEY", false)
	}

	slog.Debug("Supabase client config loaded",
		"url_set", cfg.URL != "",
		"service_role_key_set", cfg.ServiceRoleKey != "",
		"anon_key_set", cfg.AnonKey != "",
		"allow_anon", cfg.AllowAnonKey)

	if cfg.URL == "" {
		return nil, ErrMissingURL
	}

	c := &Client{baseURL: strings.TrimRight(cfg.URL, "/")}
	switch {
	case cfg.ServiceRoleKey != "":
		c.key = cfg.ServiceRoleKey
	case cfg.AnonKey != "" && cfg.AllowAnonKey:
		c.key = cfg.AnonKey
		c.anon = true
		slog.Warn("Supabase client using anon key; storage and table writes depend on row-level security policies")
	default:
		return nil, ErrMissingKey
	}

	api, err := supabasego.NewClient(c.baseURL, c.key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	c.api = api
	return c, nil
}

// UsingAnonKey reports whether the client fell back to the anon key.
func (c *Client) UsingAnonKey() bool {
	return c.anon
}
